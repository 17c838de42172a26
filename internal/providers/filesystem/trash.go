package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/GriffinCanCode/SameFileServer/backend/internal/providers/permissions"
	"github.com/GriffinCanCode/SameFileServer/backend/internal/providers/storage"
	"github.com/GriffinCanCode/SameFileServer/backend/internal/shared/id"
	"go.uber.org/zap"
)

// Trashed items live at <TrashDir>/<trash id>/<original name>.

func (s *Service) trashPath(e storage.TrashEntry) string {
	return filepath.Join(s.cfg.TrashDir, e.ID, e.Name)
}

// moveToTrash renames r into the trash and indexes it. Either both steps
// succeed or the item is left where it was.
func (s *Service) moveToTrash(ctx context.Context, who permissions.Identity, r Resolved, info fs.FileInfo) (*storage.TrashEntry, error) {
	entry := storage.TrashEntry{
		ID:           id.NewTrashID().String(),
		OriginalPath: r.Virtual.String(),
		Name:         r.Virtual.Base(),
		IsDirectory:  info.IsDir(),
		Size:         info.Size(),
		DeletedAt:    time.Now().UTC(),
		DeletedBy:    who.ID,
	}
	if info.IsDir() {
		entry.Size = 0
		for _, n := range s.aggregator.Sizes(ctx, r.Abs) {
			entry.Size += n
		}
	}

	slot := filepath.Join(s.cfg.TrashDir, entry.ID)
	if err := os.Mkdir(slot, 0o755); err != nil {
		return nil, wrapIO(r.Virtual, "prepare trash", err)
	}
	dst := s.trashPath(entry)
	if err := os.Rename(r.Abs, dst); err != nil {
		_ = os.Remove(slot)
		return nil, wrapIO(r.Virtual, "move to trash", err)
	}
	if err := s.trash.PutTrash(entry); err != nil {
		if rerr := os.Rename(dst, r.Abs); rerr != nil {
			s.logger.Error("trashed item could not be restored after index failure",
				zap.String("trash_id", entry.ID), zap.String("path", entry.OriginalPath), zap.Error(rerr))
		} else {
			_ = os.Remove(slot)
		}
		return nil, wrapIO(r.Virtual, "index trash", err)
	}
	return &entry, nil
}

func (s *Service) requireTrash() error {
	if !s.cfg.TrashEnabled || s.trash == nil {
		return newError(KindInvalidOperation, "", "trash is disabled")
	}
	return nil
}

// ListTrash returns trash entries visible to who, newest first.
func (s *Service) ListTrash(who permissions.Identity) ([]storage.TrashEntry, error) {
	if err := s.requireTrash(); err != nil {
		return nil, err
	}
	if who.ID == "" {
		return nil, forbidden(RootPath, "list trash of")
	}
	owner := who.ID
	if who.IsAdmin() {
		owner = ""
	}
	entries, err := s.trash.ListTrash(owner)
	if err != nil {
		return nil, wrapIO(RootPath, "list trash", err)
	}
	return entries, nil
}

// loadTrash fetches an entry and checks that who may act on it.
func (s *Service) loadTrash(who permissions.Identity, trashID string) (*storage.TrashEntry, error) {
	if !id.IsValidPrefixed(trashID, id.TrashPrefix) {
		return nil, newError(KindNotFound, "", "trash entry %q not found", trashID)
	}
	entry, err := s.trash.GetTrash(trashID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, newError(KindNotFound, "", "trash entry %q not found", trashID)
	}
	if err != nil {
		return nil, wrapIO("", "read trash", err)
	}
	if !who.IsAdmin() && (who.ID == "" || entry.DeletedBy != who.ID) {
		return nil, newError(KindForbidden, "", "not allowed to manage trash entry %q", trashID)
	}
	return entry, nil
}

// lockTrash serializes restore and purge of one trash entry. Once the lock
// is held the entry is read again: a caller that lost the race to another
// restore or purge gets NotFound.
func (s *Service) lockTrash(ctx context.Context, trashID string) (func(), *storage.TrashEntry, error) {
	release, err := s.locks.Acquire(ctx, filepath.Join(s.cfg.TrashDir, trashID))
	if err != nil {
		return nil, nil, wrapIO("", "lock", err)
	}
	entry, err := s.trash.GetTrash(trashID)
	if err != nil {
		release()
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil, newError(KindNotFound, "", "trash entry %q not found", trashID)
		}
		return nil, nil, wrapIO("", "read trash", err)
	}
	return release, entry, nil
}

// Restore moves a trashed item back to its original location. It fails
// with AlreadyExists if that location has been reused.
func (s *Service) Restore(ctx context.Context, who permissions.Identity, trashID string) (*OperationResult, error) {
	start := time.Now()
	res, vp, err := s.restore(ctx, who, trashID)
	return s.finish(who, storage.OpRestore, vp, start, res, err)
}

func (s *Service) restore(ctx context.Context, who permissions.Identity, trashID string) (*OperationResult, VirtualPath, error) {
	if err := s.requireTrash(); err != nil {
		return nil, "", err
	}
	if _, err := s.loadTrash(who, trashID); err != nil {
		return nil, "", err
	}
	unlock, entry, err := s.lockTrash(ctx, trashID)
	if err != nil {
		return nil, "", err
	}
	defer unlock()

	target, err := s.resolver.Resolve(entry.OriginalPath)
	if err != nil {
		return nil, "", err
	}
	parent, err := s.resolver.ResolveVirtual(target.Virtual.Parent())
	if err != nil {
		return nil, target.Virtual, err
	}
	if err := s.allowed(who, parent.Virtual, permissions.ActionUpload); err != nil {
		return nil, target.Virtual, err
	}
	if err := requireFolder(parent); err != nil {
		return nil, target.Virtual, err
	}

	release, err := s.locks.Acquire(ctx, target.Abs)
	if err != nil {
		return nil, target.Virtual, wrapIO(target.Virtual, "lock", err)
	}
	defer release()

	if _, err := os.Lstat(target.Abs); err == nil {
		return nil, target.Virtual, newError(KindAlreadyExists, target.Virtual, "%q already exists", displayPath(target.Virtual))
	}
	if err := os.Rename(s.trashPath(*entry), target.Abs); err != nil {
		return nil, target.Virtual, classifyIO(target.Virtual, "restore", err)
	}
	if err := s.trash.DeleteTrash(entry.ID); err != nil {
		s.logger.Warn("restored item still indexed in trash", zap.String("trash_id", entry.ID), zap.Error(err))
	}
	_ = os.Remove(filepath.Join(s.cfg.TrashDir, entry.ID))

	res := Success(fmt.Sprintf("%q restored", entry.Name))
	res.TrashID = entry.ID
	described, err := s.aggregator.Describe(ctx, target, s.visibleTo(who))
	if err == nil {
		switch v := described.(type) {
		case *FileInfo:
			res.File = v
		case *FolderInfo:
			res.Folder = v
		}
	}
	return res, target.Virtual, nil
}

// PurgeTrash permanently removes one trash entry.
func (s *Service) PurgeTrash(ctx context.Context, who permissions.Identity, trashID string) (*OperationResult, error) {
	start := time.Now()
	res, vp, err := s.purgeOne(ctx, who, trashID)
	return s.finish(who, storage.OpPurge, vp, start, res, err)
}

func (s *Service) purgeOne(ctx context.Context, who permissions.Identity, trashID string) (*OperationResult, VirtualPath, error) {
	if err := s.requireTrash(); err != nil {
		return nil, "", err
	}
	if _, err := s.loadTrash(who, trashID); err != nil {
		return nil, "", err
	}
	unlock, entry, err := s.lockTrash(ctx, trashID)
	if err != nil {
		return nil, "", err
	}
	defer unlock()

	vp := VirtualPath(entry.OriginalPath)
	if err := s.removeTrashed(*entry); err != nil {
		return nil, vp, wrapIO(vp, "purge", err)
	}
	res := Success(fmt.Sprintf("%q permanently deleted", entry.Name))
	res.TrashID = entry.ID
	return res, vp, nil
}

func (s *Service) removeTrashed(e storage.TrashEntry) error {
	if err := os.RemoveAll(filepath.Join(s.cfg.TrashDir, e.ID)); err != nil {
		return err
	}
	if err := s.trash.DeleteTrash(e.ID); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	return nil
}

// PurgeOlderThan removes every trash entry deleted before cutoff and
// returns how many were purged.
func (s *Service) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	if err := s.requireTrash(); err != nil {
		return 0, err
	}
	expired, err := s.trash.TrashOlderThan(cutoff)
	if err != nil {
		return 0, wrapIO("", "scan trash", err)
	}
	purged := 0
	for _, e := range expired {
		if err := ctx.Err(); err != nil {
			return purged, err
		}
		ok, err := s.purgeExpired(ctx, e.ID)
		if err != nil {
			s.logger.Warn("failed to purge trash entry", zap.String("trash_id", e.ID), zap.Error(err))
			continue
		}
		if ok {
			purged++
		}
	}
	return purged, nil
}

// purgeExpired removes one entry found by the janitor scan. It reports
// false when a concurrent restore or purge got there first.
func (s *Service) purgeExpired(ctx context.Context, trashID string) (bool, error) {
	unlock, entry, err := s.lockTrash(ctx, trashID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	defer unlock()
	if err := s.removeTrashed(*entry); err != nil {
		return false, err
	}
	return true, nil
}

// RunJanitor purges entries older than retention every interval until ctx
// is done.
func (s *Service) RunJanitor(ctx context.Context, interval, retention time.Duration) {
	if s.requireTrash() != nil || interval <= 0 || retention <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := s.PurgeOlderThan(ctx, now.Add(-retention))
			if err != nil && ctx.Err() == nil {
				s.logger.Warn("trash purge failed", zap.Error(err))
			}
			if n > 0 {
				s.logger.Info("purged expired trash entries", zap.Int("count", n))
			}
		}
	}
}
