package filesystem

import (
	"context"
	"errors"
	"io/fs"
	"os"

	"github.com/GriffinCanCode/SameFileServer/backend/internal/providers/permissions"
)

// Details describes a single entry together with the caller's capabilities.
type Details struct {
	File        *FileInfo               `json:"file,omitempty"`
	Folder      *FolderInfo             `json:"folder,omitempty"`
	ContentType string                  `json:"contentType,omitempty"`
	Permissions permissions.Permissions `json:"permissions"`
}

// Info describes the entry at raw.
func (s *Service) Info(ctx context.Context, who permissions.Identity, raw string) (*Details, error) {
	r, err := s.resolver.Resolve(raw)
	if err != nil {
		return nil, err
	}
	perms := s.evaluator.Evaluate(who, r.Virtual.String())
	if !perms.CanDownload {
		return nil, forbidden(r.Virtual, "read")
	}

	entry, err := s.aggregator.Describe(ctx, r, s.visibleTo(who))
	if err != nil {
		return nil, err
	}
	d := &Details{Permissions: perms}
	switch v := entry.(type) {
	case *FileInfo:
		d.File = v
		if _, canonical, err := statFollow(r); err == nil {
			d.ContentType = DetectContentType(canonical)
		}
	case *FolderInfo:
		d.Folder = v
	}
	return d, nil
}

// Exists reports whether raw names an existing entry. Missing entries
// are not an error.
func (s *Service) Exists(ctx context.Context, who permissions.Identity, raw string) (bool, error) {
	r, err := s.resolver.Resolve(raw)
	if err != nil {
		return false, err
	}
	if err := s.allowed(who, r.Virtual, permissions.ActionDownload); err != nil {
		return false, err
	}
	if _, err := os.Lstat(r.Abs); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, classifyIO(r.Virtual, "stat", err)
	}
	return true, nil
}
