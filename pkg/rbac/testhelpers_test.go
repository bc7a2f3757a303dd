package rbac

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// memStore is an in-memory RoleStore for tests
type memStore struct {
	mu     sync.Mutex
	users  map[int64]UserRecord
	roles  map[int64][]string
	pages  map[int64][]PageGrant
	tables map[int64][]TableGrant
	err    error

	// gate, when set, makes GetUser block until it is closed.
	// started receives once per GetUser call before blocking.
	gate    chan struct{}
	started chan struct{}

	loads atomic.Int32
}

func newMemStore() *memStore {
	return &memStore{
		users:  make(map[int64]UserRecord),
		roles:  make(map[int64][]string),
		pages:  make(map[int64][]PageGrant),
		tables: make(map[int64][]TableGrant),
	}
}

func (m *memStore) addUser(id, orgID int64, deptID *int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[id] = UserRecord{ID: id, OrganizationID: orgID, DepartmentID: deptID}
}

func (m *memStore) grantRole(userID int64, role string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roles[userID] = append(m.roles[userID], role)
}

func (m *memStore) grantPage(userID int64, path, permission string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages[userID] = append(m.pages[userID], PageGrant{Path: path, Permission: permission})
}

func (m *memStore) grantTable(userID int64, grant TableGrant) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables[userID] = append(m.tables[userID], grant)
}

func (m *memStore) setErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *memStore) GetUser(ctx context.Context, userID int64) (*UserRecord, error) {
	m.loads.Add(1)

	m.mu.Lock()
	gate, started := m.gate, m.started
	m.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	user, ok := m.users[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &user, nil
}

func (m *memStore) ListActiveRoles(ctx context.Context, userID int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return append([]string(nil), m.roles[userID]...), nil
}

func (m *memStore) ListPageGrants(ctx context.Context, userID int64) ([]PageGrant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return append([]PageGrant(nil), m.pages[userID]...), nil
}

func (m *memStore) ListTableGrants(ctx context.Context, userID int64) ([]TableGrant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return append([]TableGrant(nil), m.tables[userID]...), nil
}

func int64Ptr(v int64) *int64 {
	return &v
}

// recordingMetrics counts the telemetry the package emits
type recordingMetrics struct {
	mu            sync.Mutex
	hits          int
	negativeHits  int
	misses        int
	invalidations map[string]int
	resolves      int
	resolveErrors int
	decisions     map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{
		invalidations: make(map[string]int),
		decisions:     make(map[string]int),
	}
}

func (r *recordingMetrics) CacheHit(negative bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hits++
	if negative {
		r.negativeHits++
	}
}

func (r *recordingMetrics) CacheMiss() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.misses++
}

func (r *recordingMetrics) CacheInvalidated(scope string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invalidations[scope]++
}

func (r *recordingMetrics) ObserveResolve(_ time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolves++
	if err != nil {
		r.resolveErrors++
	}
}

func (r *recordingMetrics) RecordDecision(kind, result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decisions[kind+"/"+result]++
}
