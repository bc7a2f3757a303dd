// Package invalidation propagates permission cache invalidations between
// processes. Every process keeps its own per-tenant caches, so an admin change
// handled by one replica must reach the others.
package invalidation

import (
	"context"
	"errors"
	"fmt"
)

// DefaultChannel is the Redis channel used when none is configured
const DefaultChannel = "warrant:invalidate"

// ErrMissingTenant is returned for an event without a tenant
var ErrMissingTenant = errors.New("invalidation event has no tenant")

// Event drops the cached permissions of one user, or of every user when
// UserID is nil, within a tenant
type Event struct {
	TenantID string `json:"tenant_id"`
	UserID   *int64 `json:"user_id,omitempty"`
	Origin   string `json:"origin,omitempty"`
}

// Validate checks that the event can be applied
func (e Event) Validate() error {
	if e.TenantID == "" {
		return ErrMissingTenant
	}
	return nil
}

func (e Event) String() string {
	if e.UserID == nil {
		return fmt.Sprintf("tenant=%s user=all", e.TenantID)
	}
	return fmt.Sprintf("tenant=%s user=%d", e.TenantID, *e.UserID)
}

// Applier applies an invalidation to local caches. tenant.Registry implements it.
type Applier interface {
	Invalidate(tenantID string, userID *int64) error
}

// EventRecorder counts bus traffic. observability.Metrics implements it.
type EventRecorder interface {
	RecordInvalidationEvent(direction string, err error)
}

type noopRecorder struct{}

func (noopRecorder) RecordInvalidationEvent(string, error) {}

// Bus publishes invalidations and applies the ones published elsewhere
type Bus interface {
	// Publish applies the event locally and announces it to other processes
	Publish(ctx context.Context, event Event) error

	// Run consumes events until ctx is done
	Run(ctx context.Context) error
}

func apply(applier Applier, event Event) error {
	if err := event.Validate(); err != nil {
		return err
	}
	return applier.Invalidate(event.TenantID, event.UserID)
}
