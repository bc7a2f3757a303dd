package rbac

import (
	"encoding/json"
	"sort"
)

// UserPermissions is the resolved, immutable permission snapshot of one user.
// A snapshot never changes after construction; role or grant changes are
// observed only once the cached snapshot expires or is invalidated.
type UserPermissions struct {
	userID         int64
	organizationID int64
	departmentID   *int64
	roles          map[string]struct{}
	pages          map[string]map[string]struct{}
	tables         map[string]TablePermission
}

func newUserPermissions(user UserRecord) *UserPermissions {
	p := &UserPermissions{
		userID:         user.ID,
		organizationID: user.OrganizationID,
		roles:          make(map[string]struct{}),
		pages:          make(map[string]map[string]struct{}),
		tables:         make(map[string]TablePermission),
	}
	if user.DepartmentID != nil {
		dept := *user.DepartmentID
		p.departmentID = &dept
	}
	return p
}

func (p *UserPermissions) addRole(name string) {
	p.roles[name] = struct{}{}
}

func (p *UserPermissions) addPage(path, permission string) {
	perms, ok := p.pages[path]
	if !ok {
		perms = make(map[string]struct{})
		p.pages[path] = perms
	}
	perms[permission] = struct{}{}
}

func (p *UserPermissions) addTable(table string, perm TablePermission) {
	if existing, ok := p.tables[table]; ok {
		perm = existing.merge(perm)
	}
	p.tables[table] = perm
}

// UserID returns the user the snapshot was resolved for
func (p *UserPermissions) UserID() int64 {
	return p.userID
}

// OrganizationID returns the user's organization
func (p *UserPermissions) OrganizationID() int64 {
	return p.organizationID
}

// DepartmentID returns the user's department and whether one is set
func (p *UserPermissions) DepartmentID() (int64, bool) {
	if p.departmentID == nil {
		return 0, false
	}
	return *p.departmentID, true
}

// Roles returns the sorted names of the user's active roles
func (p *UserPermissions) Roles() []string {
	return sortedKeys(p.roles)
}

// HasRole reports whether the user holds the named active role
func (p *UserPermissions) HasRole(name string) bool {
	_, ok := p.roles[name]
	return ok
}

// IsSuperAdmin reports whether the user holds the bypass role
func (p *UserPermissions) IsSuperAdmin() bool {
	return p.HasRole(SuperAdminRole)
}

// PagePermissions returns the sorted permission names granted on path
func (p *UserPermissions) PagePermissions(path string) []string {
	return sortedKeys(p.pages[path])
}

// TablePermission returns the effective permission on table and whether any role grants it
func (p *UserPermissions) TablePermission(table string) (TablePermission, bool) {
	perm, ok := p.tables[table]
	return perm, ok
}

func (p *UserPermissions) allowsPage(path, permission string) bool {
	if p.IsSuperAdmin() {
		return true
	}
	perms, ok := p.pages[path]
	if !ok {
		return false
	}
	if _, ok := perms[permission]; ok {
		return true
	}
	_, ok = perms[AdminPermission]
	return ok
}

func (p *UserPermissions) allowsTable(table string, capability Capability) bool {
	if p.IsSuperAdmin() {
		return true
	}
	perm, ok := p.tables[table]
	if !ok {
		return false
	}
	return perm.Allows(capability)
}

func (p *UserPermissions) scopeFor(table string) Scope {
	if p.IsSuperAdmin() {
		return ScopeAll
	}
	perm, ok := p.tables[table]
	if !ok || !perm.Scope.Valid() {
		return ScopeOwn
	}
	return perm.Scope
}

type userPermissionsJSON struct {
	UserID           int64                      `json:"user_id"`
	OrganizationID   int64                      `json:"organization_id"`
	DepartmentID     *int64                     `json:"department_id,omitempty"`
	Roles            []string                   `json:"roles"`
	PagePermissions  map[string][]string        `json:"page_permissions"`
	TablePermissions map[string]TablePermission `json:"table_permissions"`
}

// MarshalJSON renders the snapshot for diagnostics
func (p *UserPermissions) MarshalJSON() ([]byte, error) {
	out := userPermissionsJSON{
		UserID:           p.userID,
		OrganizationID:   p.organizationID,
		DepartmentID:     p.departmentID,
		Roles:            p.Roles(),
		PagePermissions:  make(map[string][]string, len(p.pages)),
		TablePermissions: make(map[string]TablePermission, len(p.tables)),
	}
	for path := range p.pages {
		out.PagePermissions[path] = p.PagePermissions(path)
	}
	for table, perm := range p.tables {
		out.TablePermissions[table] = perm
	}
	return json.Marshal(out)
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
