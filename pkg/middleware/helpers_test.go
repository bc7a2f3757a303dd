package middleware

import (
	"context"
	"io"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/warrant/pkg/audit"
	"github.com/platinummonkey/warrant/pkg/observability"
	"github.com/platinummonkey/warrant/pkg/rbac"
	"github.com/platinummonkey/warrant/pkg/rbac/rbactest"
	"github.com/platinummonkey/warrant/pkg/tenant"
)

func testLogger() *observability.Logger {
	return observability.NewLogger(observability.ErrorLevel, io.Discard)
}

type recordingAudit struct {
	mu     sync.Mutex
	events []*audit.Event
}

func (a *recordingAudit) Log(_ context.Context, event *audit.Event) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
	return nil
}

func (a *recordingAudit) Close() error { return nil }

func (a *recordingAudit) recorded() []*audit.Event {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]*audit.Event(nil), a.events...)
}

func newTestTenant(t *testing.T, id string, store rbac.RoleStore) *tenant.Tenant {
	t.Helper()

	engine, err := rbac.NewEngine(store, rbac.EngineConfig{}, rbac.WithLogger(testLogger()))
	require.NoError(t, err)
	return &tenant.Tenant{ID: id, Engine: engine}
}

type staticSource struct {
	tenants map[string]*tenant.Tenant
	err     error
}

func (s staticSource) Get(_ context.Context, id string) (*tenant.Tenant, error) {
	if s.err != nil {
		return nil, s.err
	}
	t, ok := s.tenants[id]
	if !ok {
		return nil, tenant.ErrUnknownTenant
	}
	return t, nil
}

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func storeWithAuditor() *rbactest.MemoryStore {
	store := rbactest.NewMemoryStore()
	store.AddUser(1, 10, nil)
	store.GrantRole(1, "Auditor")
	store.GrantPage(1, "/risks", "view")
	store.GrantTable(1, rbac.TableGrant{Table: "risks", View: true, Scope: "organization"})
	return store
}
