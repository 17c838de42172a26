package filesystem

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charlievieth/fastwalk"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
)

// ArchiveFormat selects how a folder download is encoded.
type ArchiveFormat string

const (
	FormatZip    ArchiveFormat = "zip"
	FormatTarGz  ArchiveFormat = "tar.gz"
	FormatTarZst ArchiveFormat = "tar.zst"
)

// ParseArchiveFormat accepts zip, tar.gz (or tgz) and tar.zst (or tzst).
func ParseArchiveFormat(s string) (ArchiveFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "zip":
		return FormatZip, nil
	case "tar.gz", "tgz":
		return FormatTarGz, nil
	case "tar.zst", "tzst":
		return FormatTarZst, nil
	}
	return "", newError(KindValidation, "", "unsupported archive format %q", s)
}

// Extension returns the file suffix including the dot.
func (f ArchiveFormat) Extension() string { return "." + string(f) }

// ContentType returns the MIME type of the encoded stream.
func (f ArchiveFormat) ContentType() string {
	switch f {
	case FormatTarGz:
		return "application/gzip"
	case FormatTarZst:
		return "application/zstd"
	}
	return "application/zip"
}

type archiveMember struct {
	rel  string
	abs  string
	info fs.FileInfo
}

// collectMembers gathers the folder's regular files and subfolders and
// sorts them byte-wise by relative path, which also puts every folder
// before its contents. Symlinks, in-flight uploads and whatever visible
// rejects are left out. base is the virtual path of dir.
func (s *Service) collectMembers(ctx context.Context, dir string, base VirtualPath, visible Visibility) ([]archiveMember, error) {
	var (
		mu      sync.Mutex
		members []archiveMember
	)
	conf := fastwalk.Config{Follow: false, NumWorkers: s.cfg.AggregateWorkers}
	err := fastwalk.Walk(&conf, dir, func(path string, d fs.DirEntry, err error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil || path == dir {
			return nil
		}
		if isInternalName(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() && !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if !visible(base.Descend(rel)) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		mu.Lock()
		members = append(members, archiveMember{rel: rel, abs: path, info: info})
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(members, func(i, j int) bool { return members[i].rel < members[j].rel })
	return members, nil
}

// writeArchive streams the folder at dir (virtual path base) into w under
// the top-level name prefix. Member mtimes are truncated to seconds and
// rendered in UTC.
func (s *Service) writeArchive(ctx context.Context, format ArchiveFormat, w io.Writer, dir string, base VirtualPath, visible Visibility, prefix string, rootInfo fs.FileInfo) error {
	members, err := s.collectMembers(ctx, dir, base, visible)
	if err != nil {
		return err
	}

	switch format {
	case FormatZip:
		return writeZip(ctx, w, prefix, rootInfo, members)
	case FormatTarGz:
		gz := gzip.NewWriter(w)
		if err := writeTar(ctx, gz, prefix, rootInfo, members); err != nil {
			_ = gz.Close()
			return err
		}
		return gz.Close()
	case FormatTarZst:
		zw, err := zstd.NewWriter(w)
		if err != nil {
			return fmt.Errorf("zstd writer: %w", err)
		}
		if err := writeTar(ctx, zw, prefix, rootInfo, members); err != nil {
			_ = zw.Close()
			return err
		}
		return zw.Close()
	}
	return fmt.Errorf("unsupported archive format %q", format)
}

func archiveTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

func writeZip(ctx context.Context, w io.Writer, prefix string, rootInfo fs.FileInfo, members []archiveMember) error {
	zw := zip.NewWriter(w)

	root := &zip.FileHeader{Name: prefix + "/", Method: zip.Store, Modified: archiveTime(rootInfo.ModTime())}
	root.SetMode(fs.ModeDir | 0o755)
	if _, err := zw.CreateHeader(root); err != nil {
		return err
	}

	for _, m := range members {
		if err := ctx.Err(); err != nil {
			return err
		}
		name := prefix + "/" + m.rel
		if m.info.IsDir() {
			hdr := &zip.FileHeader{Name: name + "/", Method: zip.Store, Modified: archiveTime(m.info.ModTime())}
			hdr.SetMode(fs.ModeDir | 0o755)
			if _, err := zw.CreateHeader(hdr); err != nil {
				return err
			}
			continue
		}

		f, err := os.Open(m.abs)
		if err != nil {
			// Removed since the walk.
			continue
		}
		hdr := &zip.FileHeader{Name: name, Method: zip.Deflate, Modified: archiveTime(m.info.ModTime())}
		hdr.SetMode(0o644)
		fw, err := zw.CreateHeader(hdr)
		if err == nil {
			_, err = io.Copy(fw, &contextReader{ctx: ctx, r: f})
		}
		f.Close()
		if err != nil {
			return err
		}
	}
	return zw.Close()
}

func writeTar(ctx context.Context, w io.Writer, prefix string, rootInfo fs.FileInfo, members []archiveMember) error {
	tw := tar.NewWriter(w)

	header := func(name string, info fs.FileInfo, dir bool) *tar.Header {
		h := &tar.Header{
			Name:    name,
			ModTime: archiveTime(info.ModTime()),
			Mode:    0o644,
			Format:  tar.FormatPAX,
		}
		if dir {
			h.Typeflag = tar.TypeDir
			h.Mode = 0o755
		} else {
			h.Typeflag = tar.TypeReg
		}
		return h
	}

	if err := tw.WriteHeader(header(prefix+"/", rootInfo, true)); err != nil {
		return err
	}
	for _, m := range members {
		if err := ctx.Err(); err != nil {
			return err
		}
		name := prefix + "/" + m.rel
		if m.info.IsDir() {
			if err := tw.WriteHeader(header(name+"/", m.info, true)); err != nil {
				return err
			}
			continue
		}

		f, err := os.Open(m.abs)
		if err != nil {
			continue
		}
		// The header size must match the bytes written; use the size at
		// open time.
		st, err := f.Stat()
		if err != nil {
			f.Close()
			continue
		}
		h := header(name, m.info, false)
		h.Size = st.Size()
		err = tw.WriteHeader(h)
		if err == nil {
			_, err = io.CopyN(tw, &contextReader{ctx: ctx, r: f}, h.Size)
		}
		f.Close()
		if err != nil {
			return err
		}
	}
	return tw.Close()
}
