package rbac

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"github.com/platinummonkey/warrant/pkg/observability"
)

const (
	// DefaultCacheTTL is how long a resolved snapshot is served before it is resolved again
	DefaultCacheTTL = 5 * time.Minute
	// DefaultCacheMaxEntries bounds the number of cached users per tenant
	DefaultCacheMaxEntries = 10000
)

// Loader resolves a snapshot on a cache miss. *Resolver implements it.
type Loader interface {
	Resolve(ctx context.Context, userID int64) (*UserPermissions, error)
}

// CacheConfig holds cache sizing
type CacheConfig struct {
	TTL        time.Duration
	MaxEntries int
}

type cacheEntry struct {
	perms     *UserPermissions
	expiresAt time.Time
}

// Cache serves permission snapshots keyed by user ID.
// A nil snapshot records an unknown user and is cached like any other entry.
// Loader errors are never cached.
type Cache struct {
	loader  Loader
	ttl     time.Duration
	clock   clockwork.Clock
	entries *lru.Cache[int64, cacheEntry]
	group   singleflight.Group
	metrics MetricsRecorder
	logger  *observability.Logger

	// mu orders generation bumps against stores so a load that began before
	// an invalidation cannot write its result after it.
	mu         sync.Mutex
	generation atomic.Uint64
}

// NewCache creates a permission cache in front of loader
func NewCache(loader Loader, cfg CacheConfig, opts ...Option) (*Cache, error) {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultCacheTTL
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultCacheMaxEntries
	}

	entries, err := lru.New[int64, cacheEntry](cfg.MaxEntries)
	if err != nil {
		return nil, fmt.Errorf("failed to create permission cache: %w", err)
	}

	s := newSettings(opts)
	return &Cache{
		loader:  loader,
		ttl:     cfg.TTL,
		clock:   s.clock,
		entries: entries,
		metrics: s.metrics,
		logger:  s.logger,
	}, nil
}

// Get returns the user's snapshot, resolving it when absent or expired
func (c *Cache) Get(ctx context.Context, userID int64) (*UserPermissions, error) {
	if entry, ok := c.entries.Get(userID); ok && c.clock.Now().Before(entry.expiresAt) {
		c.metrics.CacheHit(entry.perms == nil)
		return entry.perms, nil
	}
	c.metrics.CacheMiss()

	gen := c.generation.Load()
	key := strconv.FormatInt(userID, 10) + "/" + strconv.FormatUint(gen, 10)

	// Joined callers share one load, so it must not be cut short by the
	// first caller going away. The resolver applies its own timeout.
	loadCtx := context.WithoutCancel(ctx)

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		perms, err := c.loader.Resolve(loadCtx, userID)
		if err != nil {
			return nil, err
		}
		c.store(userID, perms, gen)
		return perms, nil
	})
	if err != nil {
		return nil, err
	}

	perms, _ := v.(*UserPermissions)
	return perms, nil
}

func (c *Cache) store(userID int64, perms *UserPermissions, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.generation.Load() != gen {
		return
	}
	c.entries.Add(userID, cacheEntry{
		perms:     perms,
		expiresAt: c.clock.Now().Add(c.ttl),
	})
}

// Invalidate drops the cached snapshot of one user
func (c *Cache) Invalidate(userID int64) {
	c.mu.Lock()
	c.generation.Add(1)
	c.entries.Remove(userID)
	c.mu.Unlock()

	c.metrics.CacheInvalidated("user")
	c.logger.WithField("user_id", userID).Debug("Invalidated cached permissions")
}

// InvalidateAll drops every cached snapshot
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	c.generation.Add(1)
	c.entries.Purge()
	c.mu.Unlock()

	c.metrics.CacheInvalidated("all")
	c.logger.Debug("Invalidated all cached permissions")
}

// PurgeExpired removes entries whose TTL has elapsed and returns how many were removed
func (c *Cache) PurgeExpired() int {
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for _, userID := range c.entries.Keys() {
		entry, ok := c.entries.Peek(userID)
		if ok && !now.Before(entry.expiresAt) {
			c.entries.Remove(userID)
			removed++
		}
	}
	return removed
}

// Len returns the number of cached entries, expired ones included
func (c *Cache) Len() int {
	return c.entries.Len()
}
