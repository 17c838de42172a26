package permissions

import (
	"fmt"
	"slices"
	"strings"
)

// Role is the coarse role assigned to an identity by the auth collaborator.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleUser       Role = "user"
	RoleRestricted Role = "restricted"
)

// Identity is the already-authenticated caller.
type Identity struct {
	ID     string   `json:"id"`
	Name   string   `json:"name,omitempty"`
	Role   Role     `json:"role"`
	Groups []string `json:"groups,omitempty"`
}

// IsAdmin reports whether the identity carries the admin role.
func (i Identity) IsAdmin() bool { return i.Role == RoleAdmin && i.ID != "" }

// InGroup reports group membership.
func (i Identity) InGroup(group string) bool {
	return slices.Contains(i.Groups, group)
}

// Access is an ordered capability level.
type Access int

const (
	AccessNone Access = iota
	AccessRead
	AccessWrite
	AccessAll
)

var accessNames = map[Access]string{
	AccessNone:  "none",
	AccessRead:  "read",
	AccessWrite: "write",
	AccessAll:   "all",
}

func (a Access) String() string {
	if s, ok := accessNames[a]; ok {
		return s
	}
	return fmt.Sprintf("access(%d)", int(a))
}

// ParseAccess parses none, read, write or all.
func ParseAccess(s string) (Access, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none":
		return AccessNone, nil
	case "read":
		return AccessRead, nil
	case "write":
		return AccessWrite, nil
	case "all":
		return AccessAll, nil
	}
	return AccessNone, fmt.Errorf("unknown access level %q", s)
}

// Permissions is the capability set reported with every listing.
type Permissions struct {
	CanUpload       bool `json:"canUpload"`
	CanCreateFolder bool `json:"canCreateFolder"`
	CanDelete       bool `json:"canDelete"`
	CanDownload     bool `json:"canDownload"`
}

// Permissions expands an access level into capabilities.
func (a Access) Permissions() Permissions {
	return Permissions{
		CanDownload:     a >= AccessRead,
		CanUpload:       a >= AccessWrite,
		CanCreateFolder: a >= AccessWrite,
		CanDelete:       a >= AccessAll,
	}
}

// Action names a single capability.
type Action string

const (
	ActionDownload     Action = "download"
	ActionUpload       Action = "upload"
	ActionCreateFolder Action = "create folder in"
	ActionDelete       Action = "delete"
)

// Allows reports whether p grants action.
func (p Permissions) Allows(action Action) bool {
	switch action {
	case ActionDownload:
		return p.CanDownload
	case ActionUpload:
		return p.CanUpload
	case ActionCreateFolder:
		return p.CanCreateFolder
	case ActionDelete:
		return p.CanDelete
	}
	return false
}
