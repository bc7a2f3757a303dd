package rbac

import "time"

// EngineConfig sizes the resolver and cache of one partition
type EngineConfig struct {
	CacheTTL        time.Duration
	CacheMaxEntries int
	ResolveTimeout  time.Duration
}

// Engine wires a store, resolver, cache and authorizer together
type Engine struct {
	Resolver   *Resolver
	Cache      *Cache
	Authorizer *Authorizer
}

// NewEngine builds the full decision stack over store
func NewEngine(store RoleStore, cfg EngineConfig, opts ...Option) (*Engine, error) {
	resolver := NewResolver(store, cfg.ResolveTimeout, opts...)

	cache, err := NewCache(resolver, CacheConfig{
		TTL:        cfg.CacheTTL,
		MaxEntries: cfg.CacheMaxEntries,
	}, opts...)
	if err != nil {
		return nil, err
	}

	return &Engine{
		Resolver:   resolver,
		Cache:      cache,
		Authorizer: NewAuthorizer(cache, opts...),
	}, nil
}
