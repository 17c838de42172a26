package permissions

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const yamlPolicy = `
rules:
  - path: groups/finance/archive
    groups: [finance]
    access: read
  - path: /shared/
    access: write
  - path: shared/board
    roles: [restricted]
    access: none
`

const tomlPolicy = `
[[rules]]
path = "groups/finance/archive"
groups = ["finance"]
access = "read"
`

func TestPolicyOverridesGroupAccess(t *testing.T) {
	p, err := ParsePolicy([]byte(yamlPolicy), "yaml")
	require.NoError(t, err)

	e := NewEvaluator(DefaultLayout(), p)
	member := Identity{ID: "alice", Role: RoleUser, Groups: []string{"finance"}}

	assert.Equal(t, AccessAll, e.Access(member, "groups/finance"))
	assert.Equal(t, AccessRead, e.Access(member, "groups/finance/archive"))
	assert.Equal(t, AccessRead, e.Access(member, "groups/finance/archive/2023"))
	assert.Equal(t, AccessAll, e.Access(member, "groups/finance/archived"))
}

func TestPolicyLongestPrefixWins(t *testing.T) {
	p, err := ParsePolicy([]byte(yamlPolicy), "yml")
	require.NoError(t, err)
	e := NewEvaluator(DefaultLayout(), p)

	user := Identity{ID: "u", Role: RoleUser}
	restricted := Identity{ID: "r", Role: RoleRestricted}

	assert.Equal(t, AccessWrite, e.Access(user, "shared/board"))
	assert.Equal(t, AccessNone, e.Access(restricted, "shared/board/minutes.txt"))
	assert.Equal(t, AccessWrite, e.Access(restricted, "shared"))
}

func TestPolicyDoesNotApplyToAdmin(t *testing.T) {
	p, err := ParsePolicy([]byte(yamlPolicy), "yaml")
	require.NoError(t, err)
	e := NewEvaluator(DefaultLayout(), p)

	assert.Equal(t, AccessAll, e.Access(Identity{ID: "a", Role: RoleAdmin}, "shared/board"))
}

func TestLoadPolicyTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.toml")
	require.NoError(t, os.WriteFile(path, []byte(tomlPolicy), 0o644))

	p, err := LoadPolicy(path)
	require.NoError(t, err)
	require.Len(t, p.Rules, 1)

	a, ok := p.Match(Identity{ID: "x", Role: RoleUser, Groups: []string{"finance"}}, "groups/finance/archive")
	assert.True(t, ok)
	assert.Equal(t, AccessRead, a)

	_, ok = p.Match(Identity{ID: "x", Role: RoleUser}, "groups/finance/archive")
	assert.False(t, ok)
}

func TestParsePolicyErrors(t *testing.T) {
	_, err := ParsePolicy([]byte("rules:\n  - path: a\n    access: owner\n"), "yaml")
	assert.Error(t, err)

	_, err = ParsePolicy([]byte("rules:\n  - path: a/../b\n    access: read\n"), "yaml")
	assert.Error(t, err)

	_, err = ParsePolicy([]byte("{}"), "json")
	assert.Error(t, err)
}
