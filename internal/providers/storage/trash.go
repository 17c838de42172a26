package storage

import (
	"fmt"
	"time"

	"github.com/bytedance/sonic"
)

const trashPrefix = "trash/"

// TrashEntry records an item moved into the trash.
type TrashEntry struct {
	ID           string    `json:"id"`
	OriginalPath string    `json:"originalPath"`
	Name         string    `json:"name"`
	IsDirectory  bool      `json:"isDirectory"`
	Size         int64     `json:"size"`
	DeletedAt    time.Time `json:"deletedAt"`
	DeletedBy    string    `json:"deletedBy"`
}

// PutTrash stores or replaces an entry.
func (s *Store) PutTrash(e TrashEntry) error {
	if e.ID == "" {
		return fmt.Errorf("trash entry without id")
	}
	return s.put(trashPrefix+e.ID, e)
}

// GetTrash loads an entry by ID.
func (s *Store) GetTrash(id string) (*TrashEntry, error) {
	var e TrashEntry
	if err := s.get(trashPrefix+id, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// DeleteTrash removes an entry from the index.
func (s *Store) DeleteTrash(id string) error {
	return s.delete(trashPrefix + id)
}

// ListTrash returns entries deleted by owner, newest first. An empty owner
// returns every entry.
func (s *Store) ListTrash(owner string) ([]TrashEntry, error) {
	out := []TrashEntry{}
	err := s.scan(trashPrefix, true, func(val []byte) (bool, error) {
		var e TrashEntry
		if err := sonic.Unmarshal(val, &e); err != nil {
			return false, err
		}
		if owner == "" || e.DeletedBy == owner {
			out = append(out, e)
		}
		return true, nil
	})
	return out, err
}

// TrashOlderThan returns entries deleted before cutoff.
func (s *Store) TrashOlderThan(cutoff time.Time) ([]TrashEntry, error) {
	var out []TrashEntry
	err := s.scan(trashPrefix, false, func(val []byte) (bool, error) {
		var e TrashEntry
		if err := sonic.Unmarshal(val, &e); err != nil {
			return false, err
		}
		if e.DeletedAt.Before(cutoff) {
			out = append(out, e)
		}
		return true, nil
	})
	return out, err
}
