// Package observability provides structured logging, Prometheus metrics, health checks and OpenTelemetry tracing.
//
// # Structured Logging
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("tenant_id", "acme").Info("Tenant opened")
//
// Request-scoped logging:
//
//	observability.FromContext(r.Context()).WithError(err).Error("Permission check failed")
//
// # Prometheus Metrics
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	engine, err := rbac.NewEngine(store, cfg, rbac.WithMetrics(metrics))
//
// Metrics implements the telemetry interface of pkg/rbac, so decision, cache and
// resolver counters are recorded without further wiring.
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(registry, redisClient, version)
//	observability.RegisterHealthRoutes(router, checker)
//
// # OpenTelemetry
//
//	providers, err := observability.InitTracing(ctx, observability.OTelConfig{
//		Enabled:     true,
//		Endpoint:    "otel-collector:4317",
//		ServiceName: "warrant",
//	}, logger)
//	defer providers.Shutdown(ctx)
//
// # Related Packages
//
//   - pkg/config: Observability configuration
//   - pkg/middleware: Request ID and logger propagation
package observability
