package filesystem

import (
	"context"
	"sort"
	"strings"

	"github.com/GriffinCanCode/SameFileServer/backend/internal/providers/permissions"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// List returns one snapshot of the folder named by req.Path. Listing takes
// no locks: children that vanish or fail to read while it runs are
// omitted from the response.
func (s *Service) List(ctx context.Context, who permissions.Identity, req ListRequest) (*FileSystemResponse, error) {
	r, err := s.resolver.Resolve(req.Path)
	if err != nil {
		return nil, err
	}

	perms := s.evaluator.Evaluate(who, r.Virtual.String())
	if !perms.CanDownload {
		return nil, forbidden(r.Virtual, "list")
	}

	info, dir, err := statFollow(r)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, newError(KindInvalidOperation, r.Virtual, "%q is not a folder", displayPath(r.Virtual))
	}
	if req.Offset < 0 || req.Limit < 0 {
		return nil, newError(KindValidation, r.Virtual, "offset and limit must not be negative")
	}

	m, err := newMatcher(req.Query, req.Glob)
	if err != nil {
		return nil, err
	}

	visible := s.visibleTo(who)
	var candidates []candidate
	if req.Recursive {
		candidates, err = s.subtree(ctx, r.Virtual, dir, m, visible)
	} else {
		candidates, err = s.directChildren(r.Virtual, dir, m)
	}
	if err != nil {
		return nil, err
	}

	entries := s.describeAll(ctx, candidates, visible)
	if err := ctx.Err(); err != nil {
		return nil, wrapIO(r.Virtual, "list", err)
	}

	resp := &FileSystemResponse{
		Path:        r.Virtual.String(),
		Files:       []*FileInfo{},
		Folders:     []*FolderInfo{},
		Permissions: perms,
	}
	if !r.Virtual.IsRoot() {
		parent := r.Virtual.Parent().String()
		resp.ParentPath = &parent
	}

	for _, e := range entries {
		switch v := e.(type) {
		case *FolderInfo:
			resp.Folders = append(resp.Folders, v)
		case *FileInfo:
			resp.Files = append(resp.Files, v)
		}
	}
	sortEntries(resp.Folders)
	sortEntries(resp.Files)

	resp.TotalFiles = len(resp.Files)
	resp.TotalFolders = len(resp.Folders)
	resp.TotalSize = ReadableSize(totalSize(resp.Folders, resp.Files))

	if req.Limit > 0 {
		s.paginate(resp, req.Offset, req.Limit)
	}
	return resp, nil
}

// describeAll reads metadata for every candidate concurrently. The
// returned slice keeps candidate order and drops entries that failed.
func (s *Service) describeAll(ctx context.Context, candidates []candidate, visible Visibility) []Entry {
	results := make([]Entry, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.AggregateWorkers)
	for i, c := range candidates {
		g.Go(func() error {
			r := Resolved{Virtual: c.vp, Abs: c.abs}
			if c.link {
				// Links pointing outside the root are dropped here.
				resolved, err := s.resolver.ResolveVirtual(c.vp)
				if err != nil {
					s.logger.Debug("omitting entry", zap.String("path", c.vp.String()), zap.Error(err))
					return nil
				}
				r = resolved
			}
			e, err := s.aggregator.Describe(gctx, r, visible)
			if err != nil {
				s.logger.Debug("omitting entry", zap.String("path", c.vp.String()), zap.Error(err))
				return nil
			}
			results[i] = e
			return nil
		})
	}
	_ = g.Wait()

	out := results[:0]
	for _, e := range results {
		if e != nil {
			out = append(out, e)
		}
	}
	return out
}

// totalSize sums the listed entries. A recursive listing can return a
// folder together with some of its descendants, whose bytes the folder
// size already holds; those descendants are not counted again.
func totalSize(folders []*FolderInfo, files []*FileInfo) int64 {
	listed := make(map[string]struct{}, len(folders))
	for _, f := range folders {
		listed[f.FullPath] = struct{}{}
	}
	covered := func(p string) bool {
		for vp := VirtualPath(p).Parent(); !vp.IsRoot(); vp = vp.Parent() {
			if _, ok := listed[vp.String()]; ok {
				return true
			}
		}
		return false
	}

	var total int64
	add := func(e Entry) {
		if !covered(e.entryPath()) {
			total += e.entrySize()
		}
	}
	for _, f := range folders {
		add(f)
	}
	for _, f := range files {
		add(f)
	}
	return total
}

// paginate windows the combined folders-then-files sequence.
func (s *Service) paginate(resp *FileSystemResponse, offset, limit int) {
	total := len(resp.Folders) + len(resp.Files)
	if limit <= 0 || limit > s.cfg.MaxPageSize {
		limit = s.cfg.MaxPageSize
	}
	offset = min(offset, total)
	end := min(offset+limit, total)

	nf := len(resp.Folders)
	folders := resp.Folders[min(offset, nf):min(end, nf)]
	files := resp.Files[max(offset-nf, 0):max(end-nf, 0)]

	resp.Folders = folders
	resp.Files = files
	resp.Page = &Page{Offset: offset, Limit: limit, Total: total}
}

// sortEntries orders by case-insensitive name, then full path so the
// order is total.
func sortEntries[T Entry](entries []T) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := strings.ToLower(entries[i].entryName()), strings.ToLower(entries[j].entryName())
		if a != b {
			return a < b
		}
		return entries[i].entryPath() < entries[j].entryPath()
	})
}
