package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/GriffinCanCode/SameFileServer/backend/internal/providers/permissions"
	"github.com/GriffinCanCode/SameFileServer/backend/internal/providers/storage"
	"github.com/charlievieth/fastwalk"
	"github.com/google/uuid"
)

const reservedChars = `<>:"|?*`

// ValidateName returns every problem with name as a folder or file name.
// An empty result means the name is acceptable.
func ValidateName(name string, maxLen int) []string {
	var errs []string
	if strings.TrimSpace(name) == "" {
		return []string{"name must not be empty"}
	}
	if name == "." || name == ".." {
		errs = append(errs, fmt.Sprintf("%q is not a valid name", name))
	}
	if strings.ContainsAny(name, `/\`) {
		errs = append(errs, "name must not contain path separators")
	}
	if strings.ContainsAny(name, reservedChars) {
		errs = append(errs, fmt.Sprintf("name must not contain any of %s", reservedChars))
	}
	if !utf8.ValidString(name) {
		errs = append(errs, "name must be valid UTF-8")
	}
	if strings.ContainsFunc(name, unicode.IsControl) {
		errs = append(errs, "name must not contain control characters")
	}
	if name != strings.TrimSpace(name) {
		errs = append(errs, "name must not start or end with whitespace")
	}
	if maxLen > 0 && len(name) > maxLen {
		errs = append(errs, fmt.Sprintf("name must be at most %d bytes", maxLen))
	}
	if isInternalName(name) {
		errs = append(errs, fmt.Sprintf("names starting with %q are reserved", uploadPrefix))
	}
	return errs
}

func (s *Service) validateName(parent VirtualPath, name, what string) error {
	if errs := ValidateName(name, s.cfg.MaxNameLength); len(errs) > 0 {
		return &Error{Kind: KindValidation, Path: parent, Message: "invalid " + what + " name", Details: errs}
	}
	return nil
}

// requireFolder checks that r exists and is a directory.
func requireFolder(r Resolved) error {
	info, _, err := statFollow(r)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return newError(KindInvalidOperation, r.Virtual, "%q is not a folder", displayPath(r.Virtual))
	}
	return nil
}

// CreateFolder creates req.FolderName inside req.Path.
func (s *Service) CreateFolder(ctx context.Context, who permissions.Identity, req CreateFolderRequest) (*OperationResult, error) {
	start := time.Now()
	res, vp, err := s.createFolder(ctx, who, req)
	return s.finish(who, storage.OpCreateFolder, vp, start, res, err)
}

func (s *Service) createFolder(ctx context.Context, who permissions.Identity, req CreateFolderRequest) (*OperationResult, VirtualPath, error) {
	parent, err := s.resolver.Resolve(req.Path)
	if err != nil {
		return nil, "", err
	}
	if err := s.allowed(who, parent.Virtual, permissions.ActionCreateFolder); err != nil {
		return nil, parent.Virtual, err
	}
	if err := s.validateName(parent.Virtual, req.FolderName, "folder"); err != nil {
		return nil, parent.Virtual, err
	}
	if err := requireFolder(parent); err != nil {
		return nil, parent.Virtual, err
	}

	target, err := s.resolver.ResolveVirtual(parent.Virtual.Join(req.FolderName))
	if err != nil {
		return nil, parent.Virtual, err
	}
	release, err := s.locks.Acquire(ctx, target.Abs)
	if err != nil {
		return nil, target.Virtual, wrapIO(target.Virtual, "lock", err)
	}
	defer release()

	if err := os.Mkdir(target.Abs, 0o755); err != nil {
		return nil, target.Virtual, classifyIO(target.Virtual, "create folder", err)
	}

	folder, err := s.aggregator.AggregateFolder(ctx, target, s.visibleTo(who))
	if err != nil {
		return nil, target.Virtual, err
	}
	res := Success(fmt.Sprintf("folder %q created", folder.Name))
	res.Folder = folder
	return res, target.Virtual, nil
}

// Delete removes req.Path. With the trash enabled the item is moved there
// in one rename; otherwise the subtree is removed in place and anything
// left behind is reported as a partial failure.
func (s *Service) Delete(ctx context.Context, who permissions.Identity, req DeleteRequest) (*OperationResult, error) {
	start := time.Now()
	res, vp, err := s.delete(ctx, who, req)
	return s.finish(who, storage.OpDelete, vp, start, res, err)
}

func (s *Service) delete(ctx context.Context, who permissions.Identity, req DeleteRequest) (*OperationResult, VirtualPath, error) {
	r, err := s.resolver.Resolve(req.Path)
	if err != nil {
		return nil, "", err
	}
	if r.Virtual.IsRoot() {
		return nil, r.Virtual, newError(KindInvalidOperation, r.Virtual, "the root folder cannot be deleted")
	}
	if err := s.allowed(who, r.Virtual, permissions.ActionDelete); err != nil {
		return nil, r.Virtual, err
	}

	release, err := s.locks.Acquire(ctx, r.Abs)
	if err != nil {
		return nil, r.Virtual, wrapIO(r.Virtual, "lock", err)
	}
	defer release()

	info, err := os.Lstat(r.Abs)
	if err != nil {
		return nil, r.Virtual, classifyIO(r.Virtual, "stat", err)
	}

	if s.cfg.TrashEnabled {
		entry, err := s.moveToTrash(ctx, who, r, info)
		if err != nil {
			return nil, r.Virtual, err
		}
		res := Success(fmt.Sprintf("%q moved to trash", r.Virtual.Base()))
		res.TrashID = entry.ID
		return res, r.Virtual, nil
	}

	if err := os.RemoveAll(r.Abs); err != nil {
		remaining := s.survivors(r)
		if len(remaining) > 0 {
			return nil, r.Virtual, &Error{
				Kind:    KindPartialFailure,
				Path:    r.Virtual,
				Message: fmt.Sprintf("%d entries under %q could not be deleted", len(remaining), displayPath(r.Virtual)),
				Entries: remaining,
				Err:     err,
			}
		}
	}
	return Success(fmt.Sprintf("%q deleted", r.Virtual.Base())), r.Virtual, nil
}

// survivors lists the virtual paths still present under r after a failed
// removal, sorted.
func (s *Service) survivors(r Resolved) []string {
	if _, err := os.Lstat(r.Abs); err != nil {
		return nil
	}
	var (
		mu  sync.Mutex
		out []string
	)
	conf := fastwalk.Config{Follow: false}
	_ = fastwalk.Walk(&conf, r.Abs, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if path != r.Abs && isInternalName(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(r.Abs, path)
		if err != nil {
			return nil
		}
		vp := r.Virtual.Descend(filepath.ToSlash(rel))
		mu.Lock()
		out = append(out, vp.String())
		mu.Unlock()
		return nil
	})
	sort.Strings(out)
	return out
}

// UploadRequest streams Content into a new file named Filename inside Path.
type UploadRequest struct {
	Path     string
	Filename string
	Content  io.Reader
	// Size is the declared length, or -1 when unknown.
	Size int64
}

// Upload writes a new file. Existing names are never overwritten: a
// collision fails with AlreadyExists and leaves the original untouched.
// Content is staged in a hidden temporary file next to the destination
// and linked into place, so readers never observe a partial file.
func (s *Service) Upload(ctx context.Context, who permissions.Identity, req UploadRequest) (*OperationResult, error) {
	start := time.Now()
	res, vp, err := s.upload(ctx, who, req)
	return s.finish(who, storage.OpUpload, vp, start, res, err)
}

func (s *Service) upload(ctx context.Context, who permissions.Identity, req UploadRequest) (*OperationResult, VirtualPath, error) {
	parent, err := s.resolver.Resolve(req.Path)
	if err != nil {
		return nil, "", err
	}
	if err := s.allowed(who, parent.Virtual, permissions.ActionUpload); err != nil {
		return nil, parent.Virtual, err
	}
	if err := s.validateName(parent.Virtual, req.Filename, "file"); err != nil {
		return nil, parent.Virtual, err
	}
	if req.Size > s.cfg.MaxUploadSize {
		return nil, parent.Virtual, s.tooLarge(parent.Virtual)
	}
	if err := requireFolder(parent); err != nil {
		return nil, parent.Virtual, err
	}

	target, err := s.resolver.ResolveVirtual(parent.Virtual.Join(req.Filename))
	if err != nil {
		return nil, parent.Virtual, err
	}
	release, err := s.locks.Acquire(ctx, target.Abs)
	if err != nil {
		return nil, target.Virtual, wrapIO(target.Virtual, "lock", err)
	}
	defer release()

	if _, err := os.Lstat(target.Abs); err == nil {
		return nil, target.Virtual, newError(KindAlreadyExists, target.Virtual, "%q already exists", target.Virtual.Base())
	}

	n, err := s.stageAndPlace(ctx, target, req.Content)
	s.observer.ObserveBytes("upload", n)
	if err != nil {
		return nil, target.Virtual, err
	}

	info, err := os.Stat(target.Abs)
	if err != nil {
		return nil, target.Virtual, classifyIO(target.Virtual, "stat", err)
	}
	res := Success(fmt.Sprintf("file %q uploaded", target.Virtual.Base()))
	res.File = newFileInfo(target.Virtual, info)
	return res, target.Virtual, nil
}

// stageAndPlace writes content to a temp file in the destination folder,
// then links it to target without replacing an existing entry. The temp
// file is removed on every exit path.
func (s *Service) stageAndPlace(ctx context.Context, target Resolved, content io.Reader) (int64, error) {
	dir := filepath.Dir(target.Abs)
	tmpPath := filepath.Join(dir, uploadPrefix+uuid.NewString())
	tmp, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return 0, wrapIO(target.Virtual, "stage upload", err)
	}
	defer os.Remove(tmpPath)

	limit := s.cfg.MaxUploadSize
	n, err := io.Copy(tmp, io.LimitReader(&contextReader{ctx: ctx, r: content}, limit+1))
	if err == nil && n > limit {
		tmp.Close()
		return n, s.tooLarge(target.Virtual.Parent())
	}
	if err == nil {
		err = tmp.Sync()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, wrapIO(target.Virtual, "write upload", err)
	}

	if err := os.Link(tmpPath, target.Abs); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return n, newError(KindAlreadyExists, target.Virtual, "%q already exists", target.Virtual.Base())
		}
		// No hard links on this file system; the path lock keeps the
		// check and rename below free of racing uploads.
		if _, statErr := os.Lstat(target.Abs); statErr == nil {
			return n, newError(KindAlreadyExists, target.Virtual, "%q already exists", target.Virtual.Base())
		}
		if err := os.Rename(tmpPath, target.Abs); err != nil {
			return n, wrapIO(target.Virtual, "place upload", err)
		}
	}
	return n, nil
}

func (s *Service) tooLarge(vp VirtualPath) *Error {
	e := newError(KindValidation, vp, "file exceeds the %s upload limit", ReadableSize(s.cfg.MaxUploadSize))
	e.TooLarge = true
	return e
}
