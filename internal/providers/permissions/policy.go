package permissions

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"
)

// Rule overrides the baseline for a subtree. Empty subject lists match
// every non-admin identity.
type Rule struct {
	Path       string   `yaml:"path" toml:"path"`
	Users      []string `yaml:"users" toml:"users"`
	Groups     []string `yaml:"groups" toml:"groups"`
	Roles      []string `yaml:"roles" toml:"roles"`
	AccessName string   `yaml:"access" toml:"access"`

	access Access
}

// Policy is an ordered set of override rules.
type Policy struct {
	Rules []Rule `yaml:"rules" toml:"rules"`
}

// LoadPolicy reads a policy file. The extension picks the format:
// .yaml/.yml or .toml.
func LoadPolicy(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}
	return ParsePolicy(data, strings.TrimPrefix(filepath.Ext(path), "."))
}

// ParsePolicy decodes data in the given format ("yaml", "yml" or "toml").
func ParsePolicy(data []byte, format string) (*Policy, error) {
	var p Policy
	switch strings.ToLower(format) {
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("parse yaml policy: %w", err)
		}
	case "toml":
		if err := toml.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("parse toml policy: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported policy format %q", format)
	}
	if err := p.compile(); err != nil {
		return nil, err
	}
	return &p, nil
}

func (p *Policy) compile() error {
	for i := range p.Rules {
		r := &p.Rules[i]
		a, err := ParseAccess(r.AccessName)
		if err != nil {
			return fmt.Errorf("rule %d (%q): %w", i, r.Path, err)
		}
		r.access = a
		r.Path = strings.Trim(strings.ReplaceAll(r.Path, `\`, "/"), "/")
		if slices.Contains(strings.Split(r.Path, "/"), "..") {
			return fmt.Errorf("rule %d: path %q must not contain ..", i, r.Path)
		}
	}
	return nil
}

// Match returns the access of the most specific rule covering path for
// id. Later rules win ties.
func (p *Policy) Match(id Identity, path string) (Access, bool) {
	best := -1
	var access Access
	for _, r := range p.Rules {
		if !covers(r.Path, path) || !r.appliesTo(id) {
			continue
		}
		if len(r.Path) >= best {
			best = len(r.Path)
			access = r.access
		}
	}
	return access, best >= 0
}

func (r Rule) appliesTo(id Identity) bool {
	if len(r.Users) == 0 && len(r.Groups) == 0 && len(r.Roles) == 0 {
		return true
	}
	if slices.Contains(r.Users, id.ID) || slices.Contains(r.Roles, string(id.Role)) {
		return true
	}
	for _, g := range r.Groups {
		if id.InGroup(g) {
			return true
		}
	}
	return false
}

func covers(prefix, path string) bool {
	if prefix == "" || prefix == path {
		return true
	}
	return strings.HasPrefix(path, prefix+"/")
}
