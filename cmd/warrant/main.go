package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/warrant/pkg/admin"
	"github.com/platinummonkey/warrant/pkg/audit"
	"github.com/platinummonkey/warrant/pkg/config"
	"github.com/platinummonkey/warrant/pkg/invalidation"
	"github.com/platinummonkey/warrant/pkg/middleware"
	"github.com/platinummonkey/warrant/pkg/observability"
	"github.com/platinummonkey/warrant/pkg/rbac"
	"github.com/platinummonkey/warrant/pkg/tenant"
)

var version = "dev"

var migrateOnly = flag.Bool("migrate", false, "Apply role store migrations to every configured tenant and exit")

func main() {
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout).WithField("service", "warrant")

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("warrant stopped with error")
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *observability.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	configs, err := tenant.LoadFile(cfg.Tenants.File)
	if err != nil {
		return err
	}

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(promRegistry)

	tenants, err := tenant.NewRegistry(configs, cfg.EngineConfig(), logger,
		tenant.WithEngineOptions(rbac.WithMetrics(metrics)),
		tenant.WithActiveGauge(metrics.TenantsActive),
	)
	if err != nil {
		return err
	}

	if *migrateOnly {
		defer tenants.Close()
		return migrate(ctx, tenants, cfg.Audit.DBEnabled, logger)
	}

	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout)
	shutdown.Register("tenants", func(context.Context) error { return tenants.Close() })

	providers, err := observability.InitTracing(ctx, cfg.OTelConfig(), logger)
	if err != nil {
		return err
	}
	shutdown.Register("tracing", providers.Shutdown)

	var (
		bus         invalidation.Bus
		redisClient *redis.Client
		limiter     middleware.Limiter
	)
	if cfg.Redis.URL != "" {
		redisClient, err = invalidation.NewRedisClient(ctx, cfg.Redis.URL)
		if err != nil {
			return err
		}
		shutdown.Register("redis", func(context.Context) error { return redisClient.Close() })

		bus = invalidation.NewRedisBus(redisClient, tenants, logger,
			invalidation.WithChannel(cfg.Redis.InvalidationChannel),
			invalidation.WithRecorder(metrics),
		)
		limiter = middleware.NewRedisLimiter(redisClient, cfg.RateLimitConfig(), "")
	} else {
		logger.Warn("WARRANT_REDIS_URL not set, cache invalidations stay in this process")
		bus = invalidation.NewLocalBus(tenants, metrics)
		limiter = middleware.NewMemoryLimiter(cfg.RateLimitConfig(), nil)
	}

	go func() {
		defer observability.RecoverPanic(logger, "invalidation bus")
		if err := bus.Run(ctx); err != nil {
			logger.WithError(err).Error("Invalidation bus stopped")
		}
	}()

	auditLogger, err := newAuditLogger(cfg.Audit, tenants)
	if err != nil {
		return err
	}
	shutdown.Register("audit", func(context.Context) error { return auditLogger.Close() })

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.Authz.CachePurgeSchedule, func() {
		purgeCaches(tenants, metrics, logger)
		sweepLimiter(limiter, logger)
	}); err != nil {
		return fmt.Errorf("failed to schedule cache purge: %w", err)
	}
	scheduler.Start()
	shutdown.Register("scheduler", func(ctx context.Context) error {
		select {
		case <-scheduler.Stop().Done():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	if cfg.Tenants.Watch {
		go func() {
			defer observability.RecoverPanic(logger, "tenants watcher")
			if err := tenant.Watch(ctx, cfg.Tenants.File, tenants, logger); err != nil {
				logger.WithError(err).Error("Tenants watcher stopped")
			}
		}()
	}

	router := newRouter(cfg, logger, promRegistry, metrics, tenants, redisClient, bus, auditLogger, limiter)

	server := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      otelhttp.NewHandler(router, "warrant"),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	shutdown.Register("http server", server.Shutdown)

	serverErr := make(chan error, 1)
	go func() {
		logger.Infof("Listening on %s (%d tenants configured)", server.Addr, len(configs))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-serverErr:
		logger.WithError(err).Error("HTTP server failed")
	}
	stop()

	return shutdown.Shutdown(context.Background())
}

func newRouter(
	cfg *config.Config,
	logger *observability.Logger,
	promRegistry *prometheus.Registry,
	metrics *observability.Metrics,
	tenants *tenant.Registry,
	redisClient *redis.Client,
	bus invalidation.Bus,
	auditLogger audit.Logger,
	limiter middleware.Limiter,
) *mux.Router {
	router := mux.NewRouter()
	router.Use(middleware.Recovery)
	router.Use(middleware.RequestID(logger))

	if cfg.Observability.MetricsEnabled {
		router.Use(observability.HTTPMetricsMiddleware(metrics))
		observability.RegisterMetricsEndpoint(router, promRegistry)
	}
	observability.RegisterHealthRoutes(router, observability.NewHealthChecker(tenants, redisClient, version))

	chain := []mux.MiddlewareFunc{
		middleware.IdentityMiddleware(middleware.IdentityConfig{
			UserHeader:   cfg.Identity.UserHeader,
			TenantHeader: cfg.Identity.TenantHeader,
			TenantCookie: cfg.Identity.TenantCookie,
		}),
		middleware.TenantMiddleware(tenants),
	}
	if cfg.Admin.RateLimit > 0 {
		chain = append(chain, middleware.RateLimit(limiter, cfg.RateLimitConfig()))
	}

	guard := middleware.NewGuard(auditLogger)
	admin.NewHandlers(bus, auditLogger, guard).RegisterRoutes(router, chain...)

	return router
}

func newAuditLogger(cfg config.AuditConfig, tenants *tenant.Registry) (audit.Logger, error) {
	var loggers []audit.Logger
	if cfg.LogEnabled {
		loggers = append(loggers, audit.NewLogrusLogger(os.Stdout))
	}
	if cfg.DBEnabled {
		dbLogger, err := audit.NewDBLogger(tenants)
		if err != nil {
			return nil, err
		}
		loggers = append(loggers, dbLogger)
	}
	if len(loggers) == 0 {
		return audit.NoopLogger{}, nil
	}
	return audit.NewMultiLogger(loggers...), nil
}

// purgeCaches drops expired snapshots of every opened tenant and refreshes the size gauges
func purgeCaches(tenants *tenant.Registry, metrics *observability.Metrics, logger *observability.Logger) {
	metrics.CacheEntries.Reset()
	for _, t := range tenants.Opened() {
		removed := t.Cache().PurgeExpired()
		metrics.CacheEntries.WithLabelValues(t.ID).Set(float64(t.Cache().Len()))
		if removed > 0 {
			logger.WithField("tenant_id", t.ID).Debugf("Purged %d expired permission snapshots", removed)
		}
	}
}

// sweepLimiter drops idle buckets of the in-process rate limiter; Redis windows expire on their own
func sweepLimiter(limiter middleware.Limiter, logger *observability.Logger) {
	mem, ok := limiter.(*middleware.MemoryLimiter)
	if !ok {
		return
	}
	if removed := mem.Cleanup(); removed > 0 {
		logger.Debugf("Dropped %d idle rate limit buckets", removed)
	}
}

// migrate applies the role store schema, and the audit table when enabled, to every tenant
func migrate(ctx context.Context, tenants *tenant.Registry, auditTable bool, logger *observability.Logger) error {
	for _, id := range tenants.IDs() {
		t, err := tenants.Get(ctx, id)
		if err != nil {
			return err
		}
		if err := rbac.RunMigrations(ctx, t.DB); err != nil {
			return fmt.Errorf("tenant %s: %w", id, err)
		}
		if auditTable {
			if _, err := t.DB.ExecContext(ctx, audit.TableSQL); err != nil {
				return fmt.Errorf("tenant %s: failed to create audit table: %w", id, err)
			}
		}
		logger.WithField("tenant_id", id).Info("Tenant migrated")
	}
	return nil
}
