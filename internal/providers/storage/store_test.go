package storage

import (
	"testing"
	"time"

	"github.com/GriffinCanCode/SameFileServer/backend/internal/shared/id"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Options{}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestTrashLifecycle(t *testing.T) {
	s := newTestStore(t)

	e := TrashEntry{
		ID:           id.NewTrashID().String(),
		OriginalPath: "users/alice/report.pdf",
		Name:         "report.pdf",
		Size:         42,
		DeletedAt:    time.Now().UTC(),
		DeletedBy:    "alice",
	}
	require.NoError(t, s.PutTrash(e))

	got, err := s.GetTrash(e.ID)
	require.NoError(t, err)
	assert.Equal(t, e.OriginalPath, got.OriginalPath)
	assert.Equal(t, int64(42), got.Size)

	require.NoError(t, s.DeleteTrash(e.ID))
	_, err = s.GetTrash(e.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.DeleteTrash(e.ID), ErrNotFound)
}

func TestListTrashFiltersByOwnerNewestFirst(t *testing.T) {
	s := newTestStore(t)

	owners := []string{"alice", "bob", "alice"}
	ids := make([]string, len(owners))
	for i, owner := range owners {
		ids[i] = id.NewTrashID().String()
		require.NoError(t, s.PutTrash(TrashEntry{ID: ids[i], DeletedBy: owner, DeletedAt: time.Now()}))
	}

	all, err := s.ListTrash("")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, ids[2], all[0].ID)

	mine, err := s.ListTrash("alice")
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, ids[2], mine[0].ID)
	assert.Equal(t, ids[0], mine[1].ID)
}

func TestTrashOlderThan(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()

	old := TrashEntry{ID: id.NewTrashID().String(), DeletedAt: now.Add(-48 * time.Hour)}
	fresh := TrashEntry{ID: id.NewTrashID().String(), DeletedAt: now}
	require.NoError(t, s.PutTrash(old))
	require.NoError(t, s.PutTrash(fresh))

	expired, err := s.TrashOlderThan(now.Add(-24 * time.Hour))
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, old.ID, expired[0].ID)
}

func TestHistoryLimitAndUserFilter(t *testing.T) {
	s := newTestStore(t)

	for i, user := range []string{"alice", "bob", "alice", "alice"} {
		require.NoError(t, s.AppendHistory(HistoryRecord{
			ID:        id.NewRecordID().String(),
			Time:      time.Now(),
			UserID:    user,
			Operation: OpUpload,
			Path:      "users/" + user,
			Success:   i%2 == 0,
		}))
	}

	recent, err := s.History("", 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "alice", recent[0].UserID)
	assert.Equal(t, "alice", recent[1].UserID)

	bobs, err := s.History("bob", 0)
	require.NoError(t, err)
	require.Len(t, bobs, 1)
	assert.Equal(t, OpUpload, bobs[0].Operation)
}

func TestAppendHistoryRequiresID(t *testing.T) {
	s := newTestStore(t)
	assert.Error(t, s.AppendHistory(HistoryRecord{UserID: "x"}))
	assert.Error(t, s.PutTrash(TrashEntry{}))
}
