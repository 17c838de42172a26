package filesystem

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/GriffinCanCode/SameFileServer/backend/internal/providers/permissions"
	"github.com/stretchr/testify/require"
)

var (
	admin = permissions.Identity{ID: "admin", Role: permissions.RoleAdmin}
	alice = permissions.Identity{ID: "alice", Role: permissions.RoleUser, Groups: []string{"finance"}}
	bob   = permissions.Identity{ID: "bob", Role: permissions.RoleRestricted}
)

func newTestService(t *testing.T, mutate func(*Config), opts ...Option) (*Service, string) {
	t.Helper()
	root := t.TempDir()
	cfg := DefaultConfig()
	cfg.Root = root
	if mutate != nil {
		mutate(&cfg)
	}
	svc, err := New(cfg, evaluatorForTest(), opts...)
	require.NoError(t, err)
	return svc, svc.Resolver().Root()
}

func evaluatorForTest() Evaluator {
	return permissions.NewEvaluator(permissions.DefaultLayout(), nil)
}

func writeFile(t *testing.T, root, rel string, size int) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	data := make([]byte, size)
	for i := range data {
		data[i] = byte('a' + i%26)
	}
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func mkdir(t *testing.T, root, rel string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(root, filepath.FromSlash(rel)), 0o755))
}

// reportsFixture builds Reports/q1.csv (300 B), Reports/q2.csv (700 B) and
// notes.txt (50 B).
func reportsFixture(t *testing.T, root string) {
	t.Helper()
	writeFile(t, root, "Reports/q1.csv", 300)
	writeFile(t, root, "Reports/q2.csv", 700)
	writeFile(t, root, "notes.txt", 50)
}
