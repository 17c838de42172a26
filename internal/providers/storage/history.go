package storage

import (
	"fmt"
	"time"

	"github.com/bytedance/sonic"
)

const historyPrefix = "history/"

// Operation types recorded in the work history.
const (
	OpCreateFolder = "create_folder"
	OpDelete       = "delete"
	OpUpload       = "upload"
	OpDownload     = "download"
	OpRestore      = "restore"
	OpPurge        = "purge"
)

// HistoryRecord is one entry of the work history.
type HistoryRecord struct {
	ID        string    `json:"id"`
	Time      time.Time `json:"time"`
	UserID    string    `json:"userId"`
	Operation string    `json:"operation"`
	Path      string    `json:"path"`
	Success   bool      `json:"success"`
	Message   string    `json:"message,omitempty"`
}

// AppendHistory stores a record. IDs must sort by creation time.
func (s *Store) AppendHistory(r HistoryRecord) error {
	if r.ID == "" {
		return fmt.Errorf("history record without id")
	}
	return s.put(historyPrefix+r.ID, r)
}

// History returns up to limit records, newest first. An empty userID
// returns records of every user; limit <= 0 means no limit.
func (s *Store) History(userID string, limit int) ([]HistoryRecord, error) {
	out := []HistoryRecord{}
	err := s.scan(historyPrefix, true, func(val []byte) (bool, error) {
		var r HistoryRecord
		if err := sonic.Unmarshal(val, &r); err != nil {
			return false, err
		}
		if userID == "" || r.UserID == userID {
			out = append(out, r)
		}
		return limit <= 0 || len(out) < limit, nil
	})
	return out, err
}
