// Package permissions derives capability sets for an identity on a
// virtual path.
//
// Evaluation is a pure policy function over (identity, path): no I/O, no
// panics, and unknown roles fail closed. The baseline is role based:
//   - admin: all access everywhere
//   - own home (users/<id>): all access
//   - member group folder (groups/<name>): all for users, read for restricted
//   - other homes and non-member groups: no access
//   - anything else: read only
//
// A Policy loaded from YAML or TOML can override the baseline for any
// subtree except for admins.
package permissions

import "strings"

// Layout names the top-level folders that carry ownership.
type Layout struct {
	HomeDir   string
	GroupsDir string
}

// DefaultLayout matches the on-disk convention users/<id>, groups/<name>.
func DefaultLayout() Layout {
	return Layout{HomeDir: "users", GroupsDir: "groups"}
}

// Evaluator applies the baseline and optional policy overrides.
type Evaluator struct {
	layout Layout
	policy *Policy
}

// NewEvaluator creates an evaluator. policy may be nil.
func NewEvaluator(layout Layout, policy *Policy) *Evaluator {
	if layout.HomeDir == "" {
		layout.HomeDir = DefaultLayout().HomeDir
	}
	if layout.GroupsDir == "" {
		layout.GroupsDir = DefaultLayout().GroupsDir
	}
	return &Evaluator{layout: layout, policy: policy}
}

// Evaluate returns the capability set for id on path.
func (e *Evaluator) Evaluate(id Identity, path string) Permissions {
	return e.Access(id, path).Permissions()
}

// Allowed reports whether id may perform action on path.
func (e *Evaluator) Allowed(id Identity, path string, action Action) bool {
	return e.Evaluate(id, path).Allows(action)
}

// Access returns the effective access level of id on path.
func (e *Evaluator) Access(id Identity, path string) Access {
	if e == nil || id.ID == "" {
		return AccessNone
	}
	switch id.Role {
	case RoleAdmin:
		return AccessAll
	case RoleUser, RoleRestricted:
	default:
		return AccessNone
	}

	path = strings.Trim(path, "/")
	if e.policy != nil {
		if a, ok := e.policy.Match(id, path); ok {
			return a
		}
	}
	return e.baseline(id, path)
}

// HomeOf returns the virtual home folder of id, or "" when the ID cannot
// name a folder.
func (e *Evaluator) HomeOf(id Identity) string {
	if !validSegment(id.ID) {
		return ""
	}
	return e.layout.HomeDir + "/" + id.ID
}

// Layout returns the configured layout.
func (e *Evaluator) Layout() Layout { return e.layout }

func (e *Evaluator) baseline(id Identity, path string) Access {
	segs := strings.Split(path, "/")
	if path == "" || len(segs) < 2 {
		return AccessRead
	}

	owner := segs[1]
	switch segs[0] {
	case e.layout.HomeDir:
		if owner == id.ID && validSegment(id.ID) {
			return AccessAll
		}
		return AccessNone
	case e.layout.GroupsDir:
		if !id.InGroup(owner) {
			return AccessNone
		}
		if id.Role == RoleRestricted {
			return AccessRead
		}
		return AccessAll
	}
	return AccessRead
}

func validSegment(s string) bool {
	return s != "" && s != "." && s != ".." && !strings.ContainsAny(s, `/\`)
}
