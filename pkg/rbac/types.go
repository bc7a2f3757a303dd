package rbac

import (
	"fmt"
	"strings"
)

// SuperAdminRole is the role name that bypasses every check.
const SuperAdminRole = "Super Admin"

// AdminPermission is the page permission that implies every other permission on that page.
const AdminPermission = "admin"

// Capability is an operation a role can be granted on a data table
type Capability int

const (
	CapabilityView Capability = iota + 1
	CapabilityCreate
	CapabilityEdit
	CapabilityDelete
	CapabilityExport
)

var capabilityNames = map[Capability]string{
	CapabilityView:   "view",
	CapabilityCreate: "create",
	CapabilityEdit:   "edit",
	CapabilityDelete: "delete",
	CapabilityExport: "export",
}

func (c Capability) String() string {
	if name, ok := capabilityNames[c]; ok {
		return name
	}
	return fmt.Sprintf("capability(%d)", int(c))
}

// Valid reports whether c is one of the defined capabilities
func (c Capability) Valid() bool {
	_, ok := capabilityNames[c]
	return ok
}

// ParseCapability converts a capability name ("view", "create", ...) into a Capability
func ParseCapability(s string) (Capability, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for c, n := range capabilityNames {
		if n == name {
			return c, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidCapability, s)
}

// Scope is the row-level visibility granted on a table.
// Scopes are ordered from narrowest to broadest: own < department < organization < all.
type Scope int

const (
	ScopeOwn Scope = iota
	ScopeDepartment
	ScopeOrganization
	ScopeAll
)

var scopeNames = map[Scope]string{
	ScopeOwn:          "own",
	ScopeDepartment:   "department",
	ScopeOrganization: "organization",
	ScopeAll:          "all",
}

func (s Scope) String() string {
	if name, ok := scopeNames[s]; ok {
		return name
	}
	return fmt.Sprintf("scope(%d)", int(s))
}

// Valid reports whether s is one of the defined scopes
func (s Scope) Valid() bool {
	_, ok := scopeNames[s]
	return ok
}

// Broader reports whether s grants wider visibility than other
func (s Scope) Broader(other Scope) bool {
	return s > other
}

// MarshalText implements encoding.TextMarshaler
func (s Scope) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid scope %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (s *Scope) UnmarshalText(text []byte) error {
	parsed, ok := ParseScope(string(text))
	if !ok {
		return fmt.Errorf("invalid scope %q", string(text))
	}
	*s = parsed
	return nil
}

// ParseScope converts a stored scope string into a Scope.
// Unknown values return ScopeOwn and false.
func ParseScope(s string) (Scope, bool) {
	name := strings.ToLower(strings.TrimSpace(s))
	for scope, n := range scopeNames {
		if n == name {
			return scope, true
		}
	}
	return ScopeOwn, false
}

// TablePermission is the effective set of capabilities on one table
type TablePermission struct {
	View   bool  `json:"can_view"`
	Create bool  `json:"can_create"`
	Edit   bool  `json:"can_edit"`
	Delete bool  `json:"can_delete"`
	Export bool  `json:"can_export"`
	Scope  Scope `json:"scope_filter"`
}

// Allows reports whether the capability flag for c is set
func (p TablePermission) Allows(c Capability) bool {
	switch c {
	case CapabilityView:
		return p.View
	case CapabilityCreate:
		return p.Create
	case CapabilityEdit:
		return p.Edit
	case CapabilityDelete:
		return p.Delete
	case CapabilityExport:
		return p.Export
	default:
		return false
	}
}

// merge combines two grants on the same table. Capabilities are OR-ed and
// the broader scope wins.
func (p TablePermission) merge(other TablePermission) TablePermission {
	merged := TablePermission{
		View:   p.View || other.View,
		Create: p.Create || other.Create,
		Edit:   p.Edit || other.Edit,
		Delete: p.Delete || other.Delete,
		Export: p.Export || other.Export,
		Scope:  p.Scope,
	}
	if other.Scope.Broader(p.Scope) {
		merged.Scope = other.Scope
	}
	return merged
}

// UserRecord is the identity row read from the role store
type UserRecord struct {
	ID             int64
	OrganizationID int64
	DepartmentID   *int64
	PrimaryRoleID  *int64
}

// PageGrant is one granted (page path, permission name) pair of an active role
type PageGrant struct {
	Path       string
	Permission string
}

// TableGrant is the table permission row of one active role.
// Scope holds the raw stored value and is parsed during resolution.
type TableGrant struct {
	Table  string
	View   bool
	Create bool
	Edit   bool
	Delete bool
	Export bool
	Scope  string
}
