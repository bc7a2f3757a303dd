package rbac

import (
	"io"
	"time"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/warrant/pkg/observability"
)

// MetricsRecorder receives authorization telemetry.
// observability.Metrics satisfies it.
type MetricsRecorder interface {
	CacheHit(negative bool)
	CacheMiss()
	CacheInvalidated(scope string)
	ObserveResolve(duration time.Duration, err error)
	RecordDecision(kind, result string)
}

type noopMetrics struct{}

func (noopMetrics) CacheHit(bool) {}
func (noopMetrics) CacheMiss() {}
func (noopMetrics) CacheInvalidated(string) {}
func (noopMetrics) ObserveResolve(time.Duration, error) {}
func (noopMetrics) RecordDecision(string, string) {}

// Option configures a Resolver, Cache or Authorizer
type Option func(*settings)

type settings struct {
	logger  *observability.Logger
	metrics MetricsRecorder
	clock   clockwork.Clock
	tracer  trace.Tracer
}

// WithLogger sets the logger used for warnings and failures
func WithLogger(logger *observability.Logger) Option {
	return func(s *settings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics sets the telemetry sink
func WithMetrics(metrics MetricsRecorder) Option {
	return func(s *settings) {
		if metrics != nil {
			s.metrics = metrics
		}
	}
}

// WithClock sets the clock used for cache expiry
func WithClock(clock clockwork.Clock) Option {
	return func(s *settings) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithTracer sets the tracer used for resolution spans
func WithTracer(tracer trace.Tracer) Option {
	return func(s *settings) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

func newSettings(opts []Option) settings {
	s := settings{
		logger:  observability.NewLogger(observability.InfoLevel, io.Discard),
		metrics: noopMetrics{},
		clock:   clockwork.NewRealClock(),
		tracer:  otel.Tracer("github.com/platinummonkey/warrant/pkg/rbac"),
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}
