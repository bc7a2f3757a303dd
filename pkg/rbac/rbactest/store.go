// Package rbactest provides an in-memory role store for tests of packages
// built on rbac.
package rbactest

import (
	"context"
	"sync"

	"github.com/platinummonkey/warrant/pkg/rbac"
)

// MemoryStore is a concurrency-safe rbac.RoleStore held in memory
type MemoryStore struct {
	mu     sync.Mutex
	users  map[int64]rbac.UserRecord
	roles  map[int64][]string
	pages  map[int64][]rbac.PageGrant
	tables map[int64][]rbac.TableGrant
	err    error
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:  make(map[int64]rbac.UserRecord),
		roles:  make(map[int64][]string),
		pages:  make(map[int64][]rbac.PageGrant),
		tables: make(map[int64][]rbac.TableGrant),
	}
}

// AddUser adds a user in organizationID and, when departmentID is non-nil, that department
func (s *MemoryStore) AddUser(userID, organizationID int64, departmentID *int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[userID] = rbac.UserRecord{ID: userID, OrganizationID: organizationID, DepartmentID: departmentID}
}

// GrantRole assigns an active role
func (s *MemoryStore) GrantRole(userID int64, role string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roles[userID] = append(s.roles[userID], role)
}

// GrantPage grants permission on path
func (s *MemoryStore) GrantPage(userID int64, path, permission string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages[userID] = append(s.pages[userID], rbac.PageGrant{Path: path, Permission: permission})
}

// GrantTable adds a table grant row
func (s *MemoryStore) GrantTable(userID int64, grant rbac.TableGrant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[userID] = append(s.tables[userID], grant)
}

// Revoke removes every role and grant of userID
func (s *MemoryStore) Revoke(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.roles, userID)
	delete(s.pages, userID)
	delete(s.tables, userID)
}

// SetError makes every read fail with err until it is reset with nil
func (s *MemoryStore) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *MemoryStore) GetUser(_ context.Context, userID int64) (*rbac.UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	user, ok := s.users[userID]
	if !ok {
		return nil, rbac.ErrUserNotFound
	}
	return &user, nil
}

func (s *MemoryStore) ListActiveRoles(_ context.Context, userID int64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return append([]string(nil), s.roles[userID]...), nil
}

func (s *MemoryStore) ListPageGrants(_ context.Context, userID int64) ([]rbac.PageGrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return append([]rbac.PageGrant(nil), s.pages[userID]...), nil
}

func (s *MemoryStore) ListTableGrants(_ context.Context, userID int64) ([]rbac.TableGrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return append([]rbac.TableGrant(nil), s.tables[userID]...), nil
}
