package audit

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/platinummonkey/warrant/pkg/contextkeys"
)

// Logger is the interface for audit logging
type Logger interface {
	// Log records an audit event
	Log(ctx context.Context, event *Event) error

	// Close flushes and releases the logger
	Close() error
}

// NoopLogger discards every event
type NoopLogger struct{}

func (NoopLogger) Log(context.Context, *Event) error { return nil }
func (NoopLogger) Close() error { return nil }

// FromRequest builds an event carrying the request's method, path, client address and user agent
func FromRequest(r *http.Request, eventType EventType, status EventStatus) *Event {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		ip = host
	}
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		ip = forwarded
	}

	return &Event{
		EventType: eventType,
		Status:    status,
		Method:    r.Method,
		Path:      r.URL.Path,
		IPAddress: ip,
		UserAgent: r.UserAgent(),
	}
}

// enrich fills unset fields from the request context
func enrich(ctx context.Context, event *Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.RequestID == "" {
		event.RequestID = contextkeys.GetRequestID(ctx)
	}
	if event.TenantID == "" {
		event.TenantID = contextkeys.GetTenantID(ctx)
	}
	if event.UserID == nil {
		if userID, ok := contextkeys.GetUserID(ctx); ok {
			event.UserID = &userID
		}
	}
}

// MultiLogger fans events out to several loggers
type MultiLogger struct {
	loggers []Logger
}

// NewMultiLogger creates a logger writing to every destination in order
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	return &MultiLogger{loggers: loggers}
}

// Log writes to all loggers, continuing past failures, and returns the joined errors
func (m *MultiLogger) Log(ctx context.Context, event *Event) error {
	var errs []error
	for _, logger := range m.loggers {
		if err := logger.Log(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes all loggers
func (m *MultiLogger) Close() error {
	var errs []error
	for _, logger := range m.loggers {
		if err := logger.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
