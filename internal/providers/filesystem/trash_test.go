package filesystem

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/GriffinCanCode/SameFileServer/backend/internal/providers/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTrashService(t *testing.T) (*Service, *storage.Store, string) {
	t.Helper()
	store, err := storage.Open(storage.Options{}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	trashDir := t.TempDir()
	svc, root := newTestService(t, func(c *Config) {
		c.TrashEnabled = true
		c.TrashDir = trashDir
	}, WithTrash(store), WithHistory(store))
	return svc, store, root
}

func TestNewRequiresTrashOutsideRoot(t *testing.T) {
	store, err := storage.Open(storage.Options{}, zap.NewNop())
	require.NoError(t, err)
	defer store.Close()

	root := t.TempDir()
	cfg := DefaultConfig()
	cfg.Root = root
	cfg.TrashEnabled = true
	cfg.TrashDir = filepath.Join(root, ".trash")
	_, err = New(cfg, evaluatorForTest(), WithTrash(store))
	assert.Error(t, err)

	cfg.TrashDir = t.TempDir()
	_, err = New(cfg, evaluatorForTest())
	assert.Error(t, err, "trash index is required")
}

func TestDeleteMovesToTrashAndRestores(t *testing.T) {
	svc, _, root := newTrashService(t)
	reportsFixture(t, root)
	ctx := context.Background()

	res, err := svc.Delete(ctx, admin, DeleteRequest{Path: "Reports"})
	require.NoError(t, err)
	require.NotEmpty(t, res.TrashID)
	assert.NoDirExists(t, filepath.Join(root, "Reports"))

	entries, err := svc.ListTrash(admin)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Reports", entries[0].OriginalPath)
	assert.True(t, entries[0].IsDirectory)
	assert.Equal(t, int64(1000), entries[0].Size)
	assert.Equal(t, "admin", entries[0].DeletedBy)

	restored, err := svc.Restore(ctx, admin, res.TrashID)
	require.NoError(t, err)
	require.NotNil(t, restored.Folder)
	assert.Equal(t, int64(1000), restored.Folder.Size)
	assert.FileExists(t, filepath.Join(root, "Reports", "q1.csv"))

	entries, err = svc.ListTrash(admin)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRestoreCollision(t *testing.T) {
	svc, _, root := newTrashService(t)
	writeFile(t, root, "a.txt", 5)
	ctx := context.Background()

	res, err := svc.Delete(ctx, admin, DeleteRequest{Path: "a.txt"})
	require.NoError(t, err)
	writeFile(t, root, "a.txt", 9)

	_, err = svc.Restore(ctx, admin, res.TrashID)
	assert.ErrorIs(t, err, ErrAlreadyExists)

	info, err := os.Stat(filepath.Join(root, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, int64(9), info.Size())

	entries, err := svc.ListTrash(admin)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestTrashVisibility(t *testing.T) {
	svc, _, root := newTrashService(t)
	writeFile(t, root, "users/alice/a.txt", 1)
	writeFile(t, root, "users/carol/c.txt", 1)
	carol := alice
	carol.ID = "carol"
	ctx := context.Background()

	aliceRes, err := svc.Delete(ctx, alice, DeleteRequest{Path: "users/alice/a.txt"})
	require.NoError(t, err)
	_, err = svc.Delete(ctx, carol, DeleteRequest{Path: "users/carol/c.txt"})
	require.NoError(t, err)

	mine, err := svc.ListTrash(alice)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "users/alice/a.txt", mine[0].OriginalPath)

	all, err := svc.ListTrash(admin)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = svc.Restore(ctx, carol, aliceRes.TrashID)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = svc.Restore(ctx, alice, "trash_not-a-ulid")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPurgeTrash(t *testing.T) {
	svc, _, root := newTrashService(t)
	writeFile(t, root, "old.txt", 3)
	ctx := context.Background()

	res, err := svc.Delete(ctx, admin, DeleteRequest{Path: "old.txt"})
	require.NoError(t, err)

	purged, err := svc.PurgeTrash(ctx, admin, res.TrashID)
	require.NoError(t, err)
	assert.True(t, purged.Success)

	_, err = svc.Restore(ctx, admin, res.TrashID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoFileExists(t, filepath.Join(root, "old.txt"))
}

func TestConcurrentRestoreAndPurgeOneWins(t *testing.T) {
	svc, store, root := newTrashService(t)
	ctx := context.Background()
	target := filepath.Join(root, "race.txt")

	for i := range 50 {
		writeFile(t, root, "race.txt", 4)
		res, err := svc.Delete(ctx, admin, DeleteRequest{Path: "race.txt"})
		require.NoError(t, err)

		var (
			wg                   sync.WaitGroup
			restoreErr, purgeErr error
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, restoreErr = svc.Restore(ctx, admin, res.TrashID)
		}()
		go func() {
			defer wg.Done()
			_, purgeErr = svc.PurgeTrash(ctx, admin, res.TrashID)
		}()
		wg.Wait()

		if restoreErr == nil {
			assert.ErrorIs(t, purgeErr, ErrNotFound, "iteration %d", i)
			assert.FileExists(t, target)
		} else {
			assert.ErrorIs(t, restoreErr, ErrNotFound, "iteration %d", i)
			assert.NoError(t, purgeErr, "iteration %d", i)
			assert.NoFileExists(t, target)
		}
		_, err = store.GetTrash(res.TrashID)
		assert.ErrorIs(t, err, storage.ErrNotFound)
		require.NoError(t, os.RemoveAll(target))
	}
	assert.Equal(t, 0, svc.Locks().Len())
}

func TestPurgeOlderThanSkipsRestoredEntries(t *testing.T) {
	svc, _, root := newTrashService(t)
	writeFile(t, root, "kept.txt", 1)
	ctx := context.Background()

	res, err := svc.Delete(ctx, admin, DeleteRequest{Path: "kept.txt"})
	require.NoError(t, err)
	_, err = svc.Restore(ctx, admin, res.TrashID)
	require.NoError(t, err)

	purged, err := svc.purgeExpired(ctx, res.TrashID)
	require.NoError(t, err)
	assert.False(t, purged)
	assert.FileExists(t, filepath.Join(root, "kept.txt"))
}

func TestPurgeOlderThan(t *testing.T) {
	svc, store, root := newTrashService(t)
	writeFile(t, root, "x.txt", 1)
	writeFile(t, root, "y.txt", 1)
	ctx := context.Background()

	_, err := svc.Delete(ctx, admin, DeleteRequest{Path: "x.txt"})
	require.NoError(t, err)
	_, err = svc.Delete(ctx, admin, DeleteRequest{Path: "y.txt"})
	require.NoError(t, err)

	n, err := svc.PurgeOlderThan(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = svc.PurgeOlderThan(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	left, err := store.ListTrash("")
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestTrashDisabled(t *testing.T) {
	svc, _ := newTestService(t, nil)

	_, err := svc.ListTrash(admin)
	assert.ErrorIs(t, err, ErrInvalidOperation)
	_, err = svc.Restore(context.Background(), admin, "trash_x")
	assert.ErrorIs(t, err, ErrInvalidOperation)
}

func TestRunJanitorStopsWithContext(t *testing.T) {
	svc, _, root := newTrashService(t)
	writeFile(t, root, "gone.txt", 1)
	_, err := svc.Delete(context.Background(), admin, DeleteRequest{Path: "gone.txt"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.RunJanitor(ctx, 10*time.Millisecond, time.Nanosecond)
		close(done)
	}()

	require.Eventually(t, func() bool {
		entries, err := svc.ListTrash(admin)
		return err == nil && len(entries) == 0
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}
