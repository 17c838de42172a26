package filesystem

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charlievieth/fastwalk"
	"go.uber.org/zap"
)

// matcher filters candidate entries by name substring and relative glob.
type matcher struct {
	query string
	glob  string
}

func newMatcher(query, glob string) (matcher, error) {
	glob = strings.TrimSpace(glob)
	if glob != "" && !doublestar.ValidatePattern(glob) {
		return matcher{}, newError(KindValidation, "", "invalid glob pattern %q", glob)
	}
	return matcher{query: strings.ToLower(strings.TrimSpace(query)), glob: glob}, nil
}

func (m matcher) active() bool { return m.query != "" || m.glob != "" }

// match reports whether an entry with name at rel (slash separated,
// relative to the listed folder) passes the filter.
func (m matcher) match(name, rel string) bool {
	if m.query != "" && !strings.Contains(strings.ToLower(name), m.query) {
		return false
	}
	if m.glob != "" {
		ok, err := doublestar.Match(m.glob, rel)
		if err != nil || !ok {
			return false
		}
	}
	return true
}

// candidate is a child found while listing, before metadata is read.
type candidate struct {
	vp   VirtualPath
	abs  string
	link bool
}

// directChildren lists the immediate children of dir.
func (s *Service) directChildren(parent VirtualPath, dir string, m matcher) ([]candidate, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, classifyIO(parent, "read folder", err)
	}
	out := make([]candidate, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if isInternalName(name) || !m.match(name, name) {
			continue
		}
		out = append(out, candidate{
			vp:   parent.Join(name),
			abs:  filepath.Join(dir, name),
			link: e.Type()&fs.ModeSymlink != 0,
		})
	}
	return out, nil
}

// subtree walks dir up to the configured depth and returns matching
// descendants. Unreadable entries and anything visible rejects are
// skipped; a rejected folder is not descended into.
func (s *Service) subtree(ctx context.Context, parent VirtualPath, dir string, m matcher, visible Visibility) ([]candidate, error) {
	var (
		mu  sync.Mutex
		out []candidate
	)
	maxDepth := s.cfg.SearchMaxDepth
	conf := fastwalk.Config{Follow: false, NumWorkers: s.cfg.AggregateWorkers}
	err := fastwalk.Walk(&conf, dir, func(path string, d fs.DirEntry, err error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			s.logger.Debug("search skipped entry", zap.Error(err))
			return nil
		}
		if path == dir {
			return nil
		}
		if isInternalName(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		depth := strings.Count(rel, "/") + 1
		if depth > maxDepth {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		vp := parent.Descend(rel)
		if !visible(vp) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !m.match(d.Name(), rel) {
			return nil
		}

		mu.Lock()
		out = append(out, candidate{vp: vp, abs: path, link: d.Type()&fs.ModeSymlink != 0})
		mu.Unlock()
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, wrapIO(parent, "search", ctx.Err())
		}
		return nil, wrapIO(parent, "search", err)
	}
	return out, nil
}
