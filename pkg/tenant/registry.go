package tenant

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/platinummonkey/warrant/pkg/observability"
	"github.com/platinummonkey/warrant/pkg/rbac"
)

var (
	// ErrUnknownTenant is returned for a tenant ID that is malformed or not configured
	ErrUnknownTenant = errors.New("unknown tenant")

	// ErrRegistryClosed is returned once the registry has been closed
	ErrRegistryClosed = errors.New("tenant registry closed")
)

// Tenant is an opened partition: its database and its own decision engine
type Tenant struct {
	ID     string
	Config Config
	DB     *sql.DB
	Engine *rbac.Engine
}

// Authorizer returns the tenant's decision functions
func (t *Tenant) Authorizer() *rbac.Authorizer {
	return t.Engine.Authorizer
}

// Cache returns the tenant's permission cache
func (t *Tenant) Cache() *rbac.Cache {
	return t.Engine.Cache
}

// Opener opens the database of a tenant
type Opener func(cfg Config) (*sql.DB, error)

// OpenDB is the default Opener
func OpenDB(cfg Config) (*sql.DB, error) {
	dsn, err := cfg.DataSourceName()
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	return db, nil
}

// RegistryOption configures a Registry
type RegistryOption func(*Registry)

// WithOpener replaces the database opener
func WithOpener(open Opener) RegistryOption {
	return func(r *Registry) {
		r.open = open
	}
}

// WithEngineOptions passes options to every tenant engine
func WithEngineOptions(opts ...rbac.Option) RegistryOption {
	return func(r *Registry) {
		r.engineOpts = append(r.engineOpts, opts...)
	}
}

// WithActiveGauge reports the number of opened tenants
func WithActiveGauge(gauge prometheus.Gauge) RegistryOption {
	return func(r *Registry) {
		r.active = gauge
	}
}

// Registry maps tenant IDs to lazily opened partitions.
// Every tenant has its own permission cache, so user IDs never collide across tenants.
type Registry struct {
	engineCfg  rbac.EngineConfig
	engineOpts []rbac.Option
	open       Opener
	logger     *observability.Logger
	active     prometheus.Gauge

	mu      sync.RWMutex
	configs map[string]Config
	tenants map[string]*Tenant
	closed  bool
}

// NewRegistry creates a registry over configs
func NewRegistry(configs []Config, engineCfg rbac.EngineConfig, logger *observability.Logger, opts ...RegistryOption) (*Registry, error) {
	r := &Registry{
		engineCfg: engineCfg,
		open:      OpenDB,
		logger:    logger,
		configs:   make(map[string]Config),
		tenants:   make(map[string]*Tenant),
	}
	for _, opt := range opts {
		opt(r)
	}

	for _, cfg := range configs {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		r.configs[cfg.ID] = cfg
	}

	return r, nil
}

// Get returns the tenant, opening it on first use
func (r *Registry) Get(ctx context.Context, id string) (*Tenant, error) {
	if !ValidID(id) {
		return nil, ErrUnknownTenant
	}

	r.mu.RLock()
	t, ok := r.tenants[id]
	closed := r.closed
	r.mu.RUnlock()
	if closed {
		return nil, ErrRegistryClosed
	}
	if ok {
		return t, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrRegistryClosed
	}
	if t, ok := r.tenants[id]; ok {
		return t, nil
	}

	cfg, ok := r.configs[id]
	if !ok {
		return nil, ErrUnknownTenant
	}

	db, err := r.open(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open tenant %s: %w", id, err)
	}

	logger := r.logger.WithField("tenant_id", id)
	opts := append([]rbac.Option{rbac.WithLogger(logger)}, r.engineOpts...)
	engine, err := rbac.NewEngine(rbac.NewSQLStore(db), r.engineCfg, opts...)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to build engine for tenant %s: %w", id, err)
	}

	t = &Tenant{ID: id, Config: cfg, DB: db, Engine: engine}
	r.tenants[id] = t
	r.reportActive()
	logger.Info("Tenant opened")

	return t, nil
}

// DB returns the database of a tenant
func (r *Registry) DB(ctx context.Context, id string) (*sql.DB, error) {
	t, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return t.DB, nil
}

// Invalidate drops one user's cached permissions in a tenant, or the whole
// tenant cache when userID is nil. A configured tenant that was never
// opened has nothing cached.
func (r *Registry) Invalidate(tenantID string, userID *int64) error {
	r.mu.RLock()
	t, opened := r.tenants[tenantID]
	_, configured := r.configs[tenantID]
	r.mu.RUnlock()

	if !opened {
		if configured {
			return nil
		}
		return ErrUnknownTenant
	}

	if userID == nil {
		t.Cache().InvalidateAll()
	} else {
		t.Cache().Invalidate(*userID)
	}
	return nil
}

// IDs returns the sorted configured tenant IDs
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.configs))
	for id := range r.configs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Opened returns the tenants opened so far
func (r *Registry) Opened() []*Tenant {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tenants := make([]*Tenant, 0, len(r.tenants))
	for _, t := range r.tenants {
		tenants = append(tenants, t)
	}
	sort.Slice(tenants, func(i, j int) bool { return tenants[i].ID < tenants[j].ID })
	return tenants
}

// Databases returns the databases of opened tenants keyed by tenant ID
func (r *Registry) Databases() map[string]*sql.DB {
	r.mu.RLock()
	defer r.mu.RUnlock()

	dbs := make(map[string]*sql.DB, len(r.tenants))
	for id, t := range r.tenants {
		dbs[id] = t.DB
	}
	return dbs
}

// Reload replaces the tenant configuration. Opened tenants that were removed
// or whose configuration changed are closed and reopened on next use.
func (r *Registry) Reload(configs []Config) error {
	next := make(map[string]Config, len(configs))
	for _, cfg := range configs {
		if err := cfg.Validate(); err != nil {
			return err
		}
		next[cfg.ID] = cfg
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRegistryClosed
	}

	var errs []error
	for id, t := range r.tenants {
		if cfg, ok := next[id]; ok && cfg == t.Config {
			continue
		}
		if err := t.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close tenant %s: %w", id, err))
		}
		delete(r.tenants, id)
		r.logger.WithField("tenant_id", id).Info("Tenant closed after reload")
	}

	r.configs = next
	r.reportActive()
	r.logger.Infof("Tenant configuration reloaded: %d tenants", len(next))

	return errors.Join(errs...)
}

// Close closes every opened tenant database
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	var errs []error
	for id, t := range r.tenants {
		if err := t.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close tenant %s: %w", id, err))
		}
	}
	r.tenants = make(map[string]*Tenant)
	r.reportActive()

	return errors.Join(errs...)
}

// reportActive must be called with mu held
func (r *Registry) reportActive() {
	if r.active != nil {
		r.active.Set(float64(len(r.tenants)))
	}
}
