package observability

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Decision metrics
	DecisionsTotal *prometheus.CounterVec

	// Permission cache metrics
	CacheHitsTotal          *prometheus.CounterVec
	CacheMissesTotal        prometheus.Counter
	CacheInvalidationsTotal *prometheus.CounterVec
	CacheEntries            *prometheus.GaugeVec

	// Resolver metrics
	ResolveDuration    prometheus.Histogram
	ResolveErrorsTotal *prometheus.CounterVec

	// Tenant and invalidation bus metrics
	TenantsActive           prometheus.Gauge
	InvalidationEventsTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warrant_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "warrant_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		DecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warrant_decisions_total",
				Help: "Total number of access decisions by kind and result",
			},
			[]string{"kind", "result"},
		),
		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warrant_permission_cache_hits_total",
				Help: "Total number of permission cache hits",
			},
			[]string{"negative"},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "warrant_permission_cache_misses_total",
				Help: "Total number of permission cache misses",
			},
		),
		CacheInvalidationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warrant_permission_cache_invalidations_total",
				Help: "Total number of permission cache invalidations",
			},
			[]string{"scope"},
		),
		CacheEntries: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "warrant_permission_cache_entries",
				Help: "Number of cached permission snapshots per tenant",
			},
			[]string{"tenant"},
		),
		ResolveDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "warrant_resolve_duration_seconds",
				Help:    "Permission resolution duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
		),
		ResolveErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warrant_resolve_errors_total",
				Help: "Total number of failed permission resolutions",
			},
			[]string{"reason"},
		),
		TenantsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "warrant_tenants_active",
				Help: "Number of tenants with an open partition",
			},
		),
		InvalidationEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warrant_invalidation_events_total",
				Help: "Total number of invalidation bus events",
			},
			[]string{"direction", "status"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.DecisionsTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.CacheInvalidationsTotal,
		m.CacheEntries,
		m.ResolveDuration,
		m.ResolveErrorsTotal,
		m.TenantsActive,
		m.InvalidationEventsTotal,
	)

	return m
}

// CacheHit counts a cache hit. Negative hits served a cached unknown user.
func (m *Metrics) CacheHit(negative bool) {
	m.CacheHitsTotal.WithLabelValues(strconv.FormatBool(negative)).Inc()
}

// CacheMiss counts a cache miss
func (m *Metrics) CacheMiss() {
	m.CacheMissesTotal.Inc()
}

// CacheInvalidated counts an invalidation of one user or of the whole cache
func (m *Metrics) CacheInvalidated(scope string) {
	m.CacheInvalidationsTotal.WithLabelValues(scope).Inc()
}

// ObserveResolve records the duration and outcome of one resolution
func (m *Metrics) ObserveResolve(duration time.Duration, err error) {
	m.ResolveDuration.Observe(duration.Seconds())
	if err == nil {
		return
	}

	reason := "store"
	if errors.Is(err, context.DeadlineExceeded) {
		reason = "timeout"
	}
	m.ResolveErrorsTotal.WithLabelValues(reason).Inc()
}

// RecordDecision counts one access decision
func (m *Metrics) RecordDecision(kind, result string) {
	m.DecisionsTotal.WithLabelValues(kind, result).Inc()
}

// RecordInvalidationEvent counts a published or received bus event
func (m *Metrics) RecordInvalidationEvent(direction string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.InvalidationEventsTotal.WithLabelValues(direction, status).Inc()
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics.
// Requests are labelled with the mux route template to bound cardinality.
func HTTPMetricsMiddleware(metrics *Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			route := "unmatched"
			if current := mux.CurrentRoute(r); current != nil {
				if tpl, err := current.GetPathTemplate(); err == nil {
					route = tpl
				}
			}

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(router *mux.Router, registry *prometheus.Registry) {
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
}
