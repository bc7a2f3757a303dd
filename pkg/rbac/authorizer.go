package rbac

import (
	"context"

	"github.com/platinummonkey/warrant/pkg/observability"
)

// Decision kinds reported to metrics
const (
	DecisionPage  = "page"
	DecisionTable = "table"
	DecisionScope = "scope"
)

// Decision results reported to metrics
const (
	ResultAllowed = "allowed"
	ResultDenied  = "denied"
	ResultError   = "error"
)

// PermissionSource supplies snapshots to the authorizer. *Cache implements it.
type PermissionSource interface {
	Get(ctx context.Context, userID int64) (*UserPermissions, error)
}

// Authorizer answers access questions for one tenant.
// On a lookup failure every method returns the narrowest answer along with the error.
type Authorizer struct {
	source  PermissionSource
	logger  *observability.Logger
	metrics MetricsRecorder
}

// NewAuthorizer creates an authorizer over source
func NewAuthorizer(source PermissionSource, opts ...Option) *Authorizer {
	s := newSettings(opts)
	return &Authorizer{
		source:  source,
		logger:  s.logger,
		metrics: s.metrics,
	}
}

// Permissions returns the user's snapshot, nil for an unknown user
func (a *Authorizer) Permissions(ctx context.Context, userID int64) (*UserPermissions, error) {
	return a.source.Get(ctx, userID)
}

// HasPagePermission reports whether the user may perform permission on the page at path.
// The "admin" permission on a page implies every other permission on it.
func (a *Authorizer) HasPagePermission(ctx context.Context, userID int64, path, permission string) (bool, error) {
	perms, err := a.source.Get(ctx, userID)
	if err != nil {
		a.failed(DecisionPage, userID, path, err)
		return false, err
	}

	allowed := perms != nil && perms.allowsPage(path, permission)
	a.record(DecisionPage, allowed)
	return allowed, nil
}

// HasTablePermission reports whether the user holds capability on table
func (a *Authorizer) HasTablePermission(ctx context.Context, userID int64, table string, capability Capability) (bool, error) {
	perms, err := a.source.Get(ctx, userID)
	if err != nil {
		a.failed(DecisionTable, userID, table, err)
		return false, err
	}

	allowed := perms != nil && perms.allowsTable(table, capability)
	a.record(DecisionTable, allowed)
	return allowed, nil
}

// DataScope returns the row visibility the user has on table.
// Missing data always yields ScopeOwn.
func (a *Authorizer) DataScope(ctx context.Context, userID int64, table string) (Scope, error) {
	perms, err := a.source.Get(ctx, userID)
	if err != nil {
		a.failed(DecisionScope, userID, table, err)
		return ScopeOwn, err
	}

	scope := ScopeOwn
	if perms != nil {
		scope = perms.scopeFor(table)
	}
	a.metrics.RecordDecision(DecisionScope, scope.String())
	return scope, nil
}

// ScopeFilter returns the row restriction the user's scope on table implies.
// On failure it returns the own-rows restriction along with the error.
func (a *Authorizer) ScopeFilter(ctx context.Context, userID int64, table string) (Filter, error) {
	_, filter, err := a.ScopeWithFilter(ctx, userID, table)
	return filter, err
}

// ScopeWithFilter returns the user's scope on table together with the row
// restriction it implies, both taken from the same snapshot. On failure it
// returns ScopeOwn and the own-rows restriction along with the error.
func (a *Authorizer) ScopeWithFilter(ctx context.Context, userID int64, table string) (Scope, Filter, error) {
	perms, err := a.source.Get(ctx, userID)
	if err != nil {
		a.failed(DecisionScope, userID, table, err)
		return ScopeOwn, ownFilter(userID), err
	}
	if perms == nil {
		a.metrics.RecordDecision(DecisionScope, ScopeOwn.String())
		return ScopeOwn, ownFilter(userID), nil
	}

	scope := perms.scopeFor(table)
	a.metrics.RecordDecision(DecisionScope, scope.String())
	return scope, BuildScopeFilter(perms.userID, perms.organizationID, perms.departmentID, scope), nil
}

func (a *Authorizer) record(kind string, allowed bool) {
	result := ResultDenied
	if allowed {
		result = ResultAllowed
	}
	a.metrics.RecordDecision(kind, result)
}

func (a *Authorizer) failed(kind string, userID int64, resource string, err error) {
	a.metrics.RecordDecision(kind, ResultError)
	a.logger.WithFields(map[string]interface{}{
		"user_id":  userID,
		"kind":     kind,
		"resource": resource,
	}).WithError(err).Error("Permission check failed")
}
