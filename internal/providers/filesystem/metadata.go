package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/charlievieth/fastwalk"
	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"
)

// uploadPrefix marks in-flight uploads. Such entries are invisible to
// listings, sizes and archives.
const uploadPrefix = ".upload-"

var errStopWalk = errors.New("stop walk")

func isInternalName(name string) bool {
	return strings.HasPrefix(name, uploadPrefix)
}

// Aggregator computes metadata for files and folders. It keeps no cache:
// every call reflects the tree as it is while the call runs.
type Aggregator struct {
	workers int
	logger  *zap.Logger
}

// NewAggregator creates an aggregator. workers bounds fastwalk parallelism;
// zero lets fastwalk choose.
func NewAggregator(workers int, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{workers: workers, logger: logger}
}

// Sizes yields (path, size) for every regular file below root, depth first
// per directory. The sequence is finite and can be ranged over again for a
// fresh walk. Entries that vanish mid-walk are skipped.
func (a *Aggregator) Sizes(ctx context.Context, root string) iter.Seq2[string, int64] {
	return a.sizes(ctx, root, RootPath, nil)
}

// Visibility reports whether the entry at a virtual path may contribute to
// an aggregate. A nil Visibility admits everything.
type Visibility func(VirtualPath) bool

// sizes is Sizes restricted to what visible admits. base is the virtual
// path of root; hidden folders are not descended into.
func (a *Aggregator) sizes(ctx context.Context, root string, base VirtualPath, visible Visibility) iter.Seq2[string, int64] {
	return func(yield func(string, int64) bool) {
		var (
			mu      sync.Mutex
			stopped bool
		)
		conf := fastwalk.Config{Follow: false, NumWorkers: a.workers}
		err := fastwalk.Walk(&conf, root, func(path string, d fs.DirEntry, err error) error {
			if ctx.Err() != nil {
				return errStopWalk
			}
			if err != nil {
				a.logger.Debug("skipping unreadable entry", zap.Error(err))
				return nil
			}
			if path == root {
				return nil
			}
			if isInternalName(d.Name()) {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if visible != nil {
				rel, err := filepath.Rel(root, path)
				if err != nil {
					return nil
				}
				if !visible(base.Descend(filepath.ToSlash(rel))) {
					if d.IsDir() {
						return filepath.SkipDir
					}
					return nil
				}
			}
			if !d.Type().IsRegular() {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return nil
			}

			mu.Lock()
			defer mu.Unlock()
			if stopped {
				return errStopWalk
			}
			if !yield(path, info.Size()) {
				stopped = true
				return errStopWalk
			}
			return nil
		})
		if err != nil && !errors.Is(err, errStopWalk) {
			a.logger.Debug("size walk ended early", zap.Error(err))
		}
	}
}

// AggregateFolder sums descendant file sizes and counts direct children.
// Descendants rejected by visible are left out of the size.
func (a *Aggregator) AggregateFolder(ctx context.Context, r Resolved, visible Visibility) (*FolderInfo, error) {
	info, walkRoot, err := statFollow(r)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, newError(KindInvalidOperation, r.Virtual, "%q is not a folder", displayPath(r.Virtual))
	}

	count, err := countChildren(walkRoot)
	if err != nil {
		return nil, classifyIO(r.Virtual, "read folder", err)
	}

	var size int64
	for _, n := range a.sizes(ctx, walkRoot, r.Virtual, visible) {
		size += n
	}
	if err := ctx.Err(); err != nil {
		return nil, wrapIO(r.Virtual, "aggregate", err)
	}

	return &FolderInfo{
		Name:         r.Virtual.Base(),
		FullPath:     r.Virtual.String(),
		LastModified: formatTime(info.ModTime()),
		Size:         size,
		ReadableSize: ReadableSize(size),
		ItemCount:    count,
		IsDirectory:  true,
	}, nil
}

// Describe returns a *FileInfo or *FolderInfo for r.
func (a *Aggregator) Describe(ctx context.Context, r Resolved, visible Visibility) (Entry, error) {
	info, _, err := statFollow(r)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return a.AggregateFolder(ctx, r, visible)
	}
	return newFileInfo(r.Virtual, info), nil
}

// statFollow stats r, following a final symlink (already vetted by the
// resolver). It returns the real path to walk.
func statFollow(r Resolved) (fs.FileInfo, string, error) {
	info, err := os.Lstat(r.Abs)
	if err != nil {
		return nil, "", classifyIO(r.Virtual, "stat", err)
	}
	if info.Mode()&fs.ModeSymlink == 0 {
		return info, r.Abs, nil
	}
	canonical, err := filepath.EvalSymlinks(r.Abs)
	if err != nil {
		return nil, "", classifyIO(r.Virtual, "stat", err)
	}
	info, err = os.Stat(canonical)
	if err != nil {
		return nil, "", classifyIO(r.Virtual, "stat", err)
	}
	return info, canonical, nil
}

func countChildren(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, e := range entries {
		if !isInternalName(e.Name()) {
			n++
		}
	}
	return n, nil
}

func newFileInfo(vp VirtualPath, info fs.FileInfo) *FileInfo {
	name := vp.Base()
	return &FileInfo{
		Name:         name,
		FullPath:     vp.String(),
		LastModified: formatTime(info.ModTime()),
		Size:         info.Size(),
		Extension:    strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), "."),
		ReadableSize: ReadableSize(info.Size()),
		IsDirectory:  false,
	}
}

var sizeUnits = []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB", "EiB"}

// ReadableSize formats n in binary units with one decimal, rounding half-up.
func ReadableSize(n int64) string {
	if n < 1024 {
		if n < 0 {
			n = 0
		}
		return fmt.Sprintf("%d B", n)
	}
	v := float64(n)
	unit := 0
	for v >= 1024 && unit < len(sizeUnits)-1 {
		v /= 1024
		unit++
	}
	rounded := math.Floor(v*10+0.5) / 10
	if rounded >= 1024 && unit < len(sizeUnits)-1 {
		rounded = math.Floor(rounded/1024*10+0.5) / 10
		unit++
	}
	return strconv.FormatFloat(rounded, 'f', 1, 64) + " " + sizeUnits[unit]
}

// DetectContentType sniffs the MIME type of the file at abs.
func DetectContentType(abs string) string {
	mt, err := mimetype.DetectFile(abs)
	if err != nil {
		return "application/octet-stream"
	}
	return mt.String()
}
