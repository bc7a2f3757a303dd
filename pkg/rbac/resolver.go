package rbac

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/warrant/pkg/observability"
)

// DefaultResolveTimeout bounds a single resolution when no timeout is configured
const DefaultResolveTimeout = 3 * time.Second

// Resolver builds permission snapshots from a RoleStore
type Resolver struct {
	store   RoleStore
	timeout time.Duration
	logger  *observability.Logger
	metrics MetricsRecorder
	tracer  trace.Tracer
}

// NewResolver creates a resolver. A non-positive timeout uses DefaultResolveTimeout.
func NewResolver(store RoleStore, timeout time.Duration, opts ...Option) *Resolver {
	if timeout <= 0 {
		timeout = DefaultResolveTimeout
	}
	s := newSettings(opts)
	return &Resolver{
		store:   store,
		timeout: timeout,
		logger:  s.logger,
		metrics: s.metrics,
		tracer:  s.tracer,
	}
}

// Resolve reads the user's roles and grants and assembles a snapshot.
// An unknown user yields (nil, nil). Store failures are wrapped in ErrRoleStoreUnavailable.
func (r *Resolver) Resolve(ctx context.Context, userID int64) (*UserPermissions, error) {
	ctx, span := r.tracer.Start(ctx, "rbac.Resolve", trace.WithAttributes(attribute.Int64("user.id", userID)))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	perms, err := r.resolve(ctx, userID)
	r.metrics.ObserveResolve(time.Since(start), err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "resolve failed")
		r.logger.WithField("user_id", userID).WithError(err).Error("Failed to resolve permissions")
		return nil, err
	}
	span.SetAttributes(attribute.Bool("user.found", perms != nil))
	return perms, nil
}

func (r *Resolver) resolve(ctx context.Context, userID int64) (*UserPermissions, error) {
	user, err := r.store.GetUser(ctx, userID)
	if errors.Is(err, ErrUserNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load user %d: %w", ErrRoleStoreUnavailable, userID, err)
	}

	perms := newUserPermissions(*user)

	roles, err := r.store.ListActiveRoles(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: load roles for user %d: %w", ErrRoleStoreUnavailable, userID, err)
	}
	for _, role := range roles {
		perms.addRole(role)
	}

	pages, err := r.store.ListPageGrants(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: load page grants for user %d: %w", ErrRoleStoreUnavailable, userID, err)
	}
	for _, grant := range pages {
		perms.addPage(grant.Path, grant.Permission)
	}

	tables, err := r.store.ListTableGrants(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: load table grants for user %d: %w", ErrRoleStoreUnavailable, userID, err)
	}
	for _, grant := range tables {
		scope, ok := ParseScope(grant.Scope)
		if !ok {
			r.logger.WithFields(map[string]interface{}{
				"user_id": userID,
				"table":   grant.Table,
				"scope":   grant.Scope,
			}).Warn("Unknown scope filter, treating as own")
		}
		perms.addTable(grant.Table, TablePermission{
			View:   grant.View,
			Create: grant.Create,
			Edit:   grant.Edit,
			Delete: grant.Delete,
			Export: grant.Export,
			Scope:  scope,
		})
	}

	return perms, nil
}
