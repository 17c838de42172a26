package filesystem

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"github.com/GriffinCanCode/SameFileServer/backend/internal/providers/permissions"
	"github.com/GriffinCanCode/SameFileServer/backend/internal/providers/storage"
)

// Download is a prepared stream for a file or a folder archive. The
// caller must Close it; Close is safe after Stream and on every path.
type Download struct {
	Name        string
	ContentType string
	// Size is -1 for archives, whose length is unknown up front.
	Size    int64
	ModTime time.Time
	Archive bool

	file    *os.File
	archive func(ctx context.Context, w io.Writer) error
	done    func(n int64, err error)
	once    sync.Once
}

// Stream copies the content to w. Cancelling ctx aborts the copy and
// releases the underlying handles.
func (d *Download) Stream(ctx context.Context, w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	var err error
	if d.archive != nil {
		err = d.archive(ctx, cw)
	} else {
		_, err = io.Copy(cw, &contextReader{ctx: ctx, r: d.file})
	}
	d.complete(cw.n, err)
	return cw.n, err
}

// Close releases the open file, if any.
func (d *Download) Close() error {
	d.complete(0, context.Canceled)
	if d.file != nil {
		return d.file.Close()
	}
	return nil
}

func (d *Download) complete(n int64, err error) {
	d.once.Do(func() {
		if d.done != nil {
			d.done(n, err)
		}
	})
}

// Download prepares a download of req.Path. Folders become archives when
// archive downloads are enabled and are rejected otherwise.
func (s *Service) Download(ctx context.Context, who permissions.Identity, req DownloadRequest) (*Download, error) {
	return s.open(ctx, who, req, true)
}

// Open prepares an inline view of a file. Folders are rejected.
func (s *Service) Open(ctx context.Context, who permissions.Identity, path string) (*Download, error) {
	return s.open(ctx, who, DownloadRequest{Path: path}, false)
}

func (s *Service) open(ctx context.Context, who permissions.Identity, req DownloadRequest, allowArchive bool) (*Download, error) {
	start := time.Now()
	r, err := s.resolver.Resolve(req.Path)
	if err != nil {
		return nil, s.fail(who, storage.OpDownload, "", start, err)
	}
	if err := s.allowed(who, r.Virtual, permissions.ActionDownload); err != nil {
		return nil, s.fail(who, storage.OpDownload, r.Virtual, start, err)
	}

	info, canonical, err := statFollow(r)
	if err != nil {
		return nil, s.fail(who, storage.OpDownload, r.Virtual, start, err)
	}

	done := func(n int64, err error) {
		s.observer.ObserveBytes("download", n)
		if err != nil {
			err = wrapIO(r.Virtual, "download", err)
		}
		s.record(who, storage.OpDownload, r.Virtual, start, "download completed", err)
	}

	if !info.IsDir() {
		if !info.Mode().IsRegular() {
			return nil, s.fail(who, storage.OpDownload, r.Virtual, start,
				newError(KindInvalidOperation, r.Virtual, "%q is not a regular file", displayPath(r.Virtual)))
		}
		contentType := DetectContentType(canonical)
		f, err := os.Open(canonical)
		if err != nil {
			return nil, s.fail(who, storage.OpDownload, r.Virtual, start, classifyIO(r.Virtual, "open", err))
		}
		return &Download{
			Name:        r.Virtual.Base(),
			ContentType: contentType,
			Size:        info.Size(),
			ModTime:     info.ModTime(),
			file:        f,
			done:        done,
		}, nil
	}

	if !allowArchive || !s.cfg.ArchiveDownloads {
		return nil, s.fail(who, storage.OpDownload, r.Virtual, start,
			newError(KindInvalidOperation, r.Virtual, "%q is a folder and cannot be downloaded directly", displayPath(r.Virtual)))
	}

	format := s.cfg.ArchiveFormat
	if req.Format != "" {
		if format, err = ParseArchiveFormat(string(req.Format)); err != nil {
			return nil, s.fail(who, storage.OpDownload, r.Virtual, start, err)
		}
	}
	prefix := archivePrefix(r.Virtual)
	return &Download{
		Name:        prefix + format.Extension(),
		ContentType: format.ContentType(),
		Size:        -1,
		ModTime:     info.ModTime(),
		Archive:     true,
		archive: func(ctx context.Context, w io.Writer) error {
			return s.writeArchive(ctx, format, w, canonical, r.Virtual, s.visibleTo(who), prefix, info)
		},
		done: done,
	}, nil
}

func archivePrefix(vp VirtualPath) string {
	if vp.IsRoot() {
		return "root"
	}
	return vp.Base()
}

// fail records a failed operation that produced no result object.
func (s *Service) fail(who permissions.Identity, op string, vp VirtualPath, start time.Time, err error) error {
	s.record(who, op, vp, start, "", err)
	return err
}
