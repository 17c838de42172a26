package filesystem

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"
)

// VirtualPath is a normalized, slash-separated location relative to the
// storage root. The root itself is the empty string.
type VirtualPath string

// RootPath is the virtual path of the storage root.
const RootPath VirtualPath = ""

func (p VirtualPath) String() string { return string(p) }

// IsRoot reports whether p names the storage root.
func (p VirtualPath) IsRoot() bool { return p == RootPath }

// Segments splits p into its components. The root has none.
func (p VirtualPath) Segments() []string {
	if p.IsRoot() {
		return nil
	}
	return strings.Split(string(p), "/")
}

// Base returns the last segment, or "" for the root.
func (p VirtualPath) Base() string {
	if p.IsRoot() {
		return ""
	}
	if i := strings.LastIndexByte(string(p), '/'); i >= 0 {
		return string(p[i+1:])
	}
	return string(p)
}

// Parent returns the containing directory. The parent of the root is the root.
func (p VirtualPath) Parent() VirtualPath {
	if i := strings.LastIndexByte(string(p), '/'); i >= 0 {
		return p[:i]
	}
	return RootPath
}

// Join appends a single already-validated name.
func (p VirtualPath) Join(name string) VirtualPath {
	if p.IsRoot() {
		return VirtualPath(name)
	}
	return VirtualPath(string(p) + "/" + name)
}

// Descend appends a slash-separated relative path found by walking below p.
func (p VirtualPath) Descend(rel string) VirtualPath {
	if rel == "" || rel == "." {
		return p
	}
	return p.Join(rel)
}

// Resolved pairs a virtual path with its canonical location on disk.
type Resolved struct {
	Virtual VirtualPath
	// Abs has a symlink-free parent; the final component is left as-is
	// so operations on a link act on the link.
	Abs string
}

// Resolver maps raw client paths into the storage root.
type Resolver struct {
	root          string
	maxPathLength int
}

// NewResolver canonicalizes root and returns a resolver bound to it.
func NewResolver(root string, maxPathLength int) (*Resolver, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve storage root: %w", err)
	}
	canonical, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("canonicalize storage root: %w", err)
	}
	info, err := os.Stat(canonical)
	if err != nil {
		return nil, fmt.Errorf("stat storage root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage root %s is not a directory", canonical)
	}
	if maxPathLength <= 0 {
		maxPathLength = 4096
	}
	return &Resolver{root: canonical, maxPathLength: maxPathLength}, nil
}

// Root returns the canonical storage root.
func (r *Resolver) Root() string { return r.root }

// Normalize validates raw and returns its virtual form without touching
// the file system.
func (r *Resolver) Normalize(raw string) (VirtualPath, error) {
	p := strings.ReplaceAll(raw, `\`, "/")

	if !utf8.ValidString(p) {
		return "", newError(KindValidation, "", "path is not valid UTF-8")
	}
	if strings.ContainsFunc(p, unicode.IsControl) {
		return "", newError(KindValidation, "", "path contains control characters")
	}
	if len(p) > r.maxPathLength {
		return "", newError(KindValidation, "", "path exceeds %d bytes", r.maxPathLength)
	}
	if strings.HasPrefix(p, "/") || hasDrivePrefix(p) {
		return "", newError(KindPathTraversal, "", "absolute paths are not allowed")
	}
	if p == "" || p == "." {
		return RootPath, nil
	}

	parts := strings.Split(p, "/")
	kept := make([]string, 0, len(parts))
	for _, seg := range parts {
		switch seg {
		case "":
			return "", newError(KindValidation, "", "path contains an empty segment")
		case ".":
			continue
		case "..":
			return "", newError(KindPathTraversal, "", "path contains a parent reference")
		}
		kept = append(kept, seg)
	}
	return VirtualPath(strings.Join(kept, "/")), nil
}

// Resolve normalizes raw and verifies that it stays inside the root once
// symlinks are resolved.
func (r *Resolver) Resolve(raw string) (Resolved, error) {
	vp, err := r.Normalize(raw)
	if err != nil {
		return Resolved{}, err
	}
	return r.ResolveVirtual(vp)
}

// ResolveVirtual performs the on-disk half of Resolve for an already
// normalized path.
func (r *Resolver) ResolveVirtual(vp VirtualPath) (Resolved, error) {
	if vp.IsRoot() {
		return Resolved{Virtual: vp, Abs: r.root}, nil
	}

	parent, err := r.canonicalDir(vp.Parent())
	if err != nil {
		return Resolved{}, err
	}
	abs := filepath.Join(parent, vp.Base())

	// A final-component symlink may exist; its target must stay inside.
	if info, err := os.Lstat(abs); err == nil && info.Mode()&fs.ModeSymlink != 0 {
		target, err := filepath.EvalSymlinks(abs)
		if err != nil {
			// Dangling links are treated as absent.
			if errors.Is(err, fs.ErrNotExist) {
				return Resolved{Virtual: vp, Abs: abs}, nil
			}
			return Resolved{}, wrapIO(vp, "resolve", err)
		}
		if !r.contains(target) {
			return Resolved{}, newError(KindPathTraversal, "", "path escapes storage root")
		}
	}
	return Resolved{Virtual: vp, Abs: abs}, nil
}

// canonicalDir resolves the deepest existing ancestor of vp and re-appends
// the missing tail.
func (r *Resolver) canonicalDir(vp VirtualPath) (string, error) {
	segs := vp.Segments()
	for i := len(segs); i >= 0; i-- {
		candidate := filepath.Join(append([]string{r.root}, segs[:i]...)...)
		canonical, err := filepath.EvalSymlinks(candidate)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return "", wrapIO(vp, "resolve", err)
		}
		if !r.contains(canonical) {
			return "", newError(KindPathTraversal, "", "path escapes storage root")
		}
		return filepath.Join(append([]string{canonical}, segs[i:]...)...), nil
	}
	return filepath.Join(append([]string{r.root}, segs...)...), nil
}

func (r *Resolver) contains(abs string) bool {
	if abs == r.root {
		return true
	}
	rel, err := filepath.Rel(r.root, abs)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

// Virtualize maps an absolute path under the root back to its virtual form.
func (r *Resolver) Virtualize(abs string) (VirtualPath, bool) {
	rel, err := filepath.Rel(r.root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	if rel == "." {
		return RootPath, true
	}
	return VirtualPath(filepath.ToSlash(rel)), true
}

func hasDrivePrefix(p string) bool {
	if len(p) >= 2 && p[1] == ':' {
		c := p[0]
		return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
	}
	return false
}
