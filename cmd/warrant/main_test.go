package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/warrant/pkg/audit"
	"github.com/platinummonkey/warrant/pkg/config"
	"github.com/platinummonkey/warrant/pkg/invalidation"
	"github.com/platinummonkey/warrant/pkg/middleware"
	"github.com/platinummonkey/warrant/pkg/observability"
	"github.com/platinummonkey/warrant/pkg/rbac"
	"github.com/platinummonkey/warrant/pkg/tenant"
)

func testLogger() *observability.Logger {
	return observability.NewLogger(observability.ErrorLevel, io.Discard)
}

func newSQLiteRegistry(t *testing.T) *tenant.Registry {
	t.Helper()

	cfg := tenant.Config{ID: "acme", Driver: tenant.DriverSQLite, DSN: filepath.Join(t.TempDir(), "acme.db")}
	registry, err := tenant.NewRegistry([]tenant.Config{cfg}, rbac.EngineConfig{}, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { registry.Close() })
	return registry
}

func TestMigrate(t *testing.T) {
	ctx := context.Background()
	registry := newSQLiteRegistry(t)

	require.NoError(t, migrate(ctx, registry, true, testLogger()))
	// Idempotent
	require.NoError(t, migrate(ctx, registry, true, testLogger()))

	db, err := registry.DB(ctx, "acme")
	require.NoError(t, err)

	var versions int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM rbac_migrations`).Scan(&versions))
	assert.Equal(t, len(rbac.GetMigrations()), versions)

	dbLogger, err := audit.NewDBLogger(registry)
	require.NoError(t, err)
	require.NoError(t, dbLogger.Log(ctx, &audit.Event{
		TenantID:  "acme",
		EventType: audit.EventTypeCacheInvalidate,
		Status:    audit.EventStatusSuccess,
	}))

	var events int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM authz_audit_logs`).Scan(&events))
	assert.Equal(t, 1, events)
}

func TestPurgeCaches(t *testing.T) {
	ctx := context.Background()
	registry := newSQLiteRegistry(t)
	require.NoError(t, migrate(ctx, registry, false, testLogger()))

	tn, err := registry.Get(ctx, "acme")
	require.NoError(t, err)

	// Unknown users are cached too
	perms, err := tn.Authorizer().Permissions(ctx, 42)
	require.NoError(t, err)
	assert.Nil(t, perms)

	metrics := observability.NewMetrics(prometheus.NewRegistry())
	purgeCaches(registry, metrics, testLogger())

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.CacheEntries.WithLabelValues("acme")))
}

func TestSweepLimiter(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	limiter := middleware.NewMemoryLimiter(middleware.RateLimitConfig{RequestsPerWindow: 10, WindowDuration: time.Minute}, clock)

	_, err := limiter.Allow(ctx, "user:acme:1")
	require.NoError(t, err)
	clock.Advance(90 * time.Second)
	_, err = limiter.Allow(ctx, "user:acme:2")
	require.NoError(t, err)

	clock.Advance(time.Minute)
	sweepLimiter(limiter, testLogger())
	// Only the bucket idle for more than two windows is dropped
	assert.Equal(t, 1, limiter.Len())

	// Limiters without local state are left alone
	sweepLimiter(middleware.NewRedisLimiter(nil, middleware.RateLimitConfig{}, ""), testLogger())
}

func TestNewAuditLogger(t *testing.T) {
	registry := newSQLiteRegistry(t)

	logger, err := newAuditLogger(config.AuditConfig{}, registry)
	require.NoError(t, err)
	assert.IsType(t, audit.NoopLogger{}, logger)

	logger, err = newAuditLogger(config.AuditConfig{LogEnabled: true, DBEnabled: true}, registry)
	require.NoError(t, err)
	assert.IsType(t, &audit.MultiLogger{}, logger)
}

func TestNewRouter(t *testing.T) {
	registry := newSQLiteRegistry(t)
	promRegistry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(promRegistry)

	cfg := &config.Config{
		Identity:      config.IdentityConfig{UserHeader: "X-User-ID", TenantHeader: "X-Tenant-ID"},
		Admin:         config.AdminConfig{RateLimit: 10},
		Observability: config.ObservabilityConfig{MetricsEnabled: true},
	}
	limiter := middleware.NewMemoryLimiter(middleware.RateLimitConfig{RequestsPerWindow: 10, WindowDuration: time.Minute}, nil)
	router := newRouter(cfg, testLogger(), promRegistry, metrics, registry, nil,
		invalidation.NewLocalBus(registry, metrics), audit.NoopLogger{}, limiter)

	tests := []struct {
		name       string
		path       string
		headers    map[string]string
		wantStatus int
	}{
		{name: "liveness", path: "/health/live", wantStatus: http.StatusOK},
		{name: "readiness", path: "/health/ready", wantStatus: http.StatusOK},
		{name: "metrics", path: "/metrics", wantStatus: http.StatusOK},
		{name: "admin without identity", path: "/authz/users/1/permissions", wantStatus: http.StatusUnauthorized},
		{
			name:       "admin with unknown tenant",
			path:       "/authz/users/1/permissions",
			headers:    map[string]string{"X-User-ID": "1", "X-Tenant-ID": "globex"},
			wantStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))
		})
	}
}
