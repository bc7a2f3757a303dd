package middleware

import (
	"context"
	"net/http"

	"github.com/platinummonkey/warrant/pkg/audit"
	"github.com/platinummonkey/warrant/pkg/httputil"
	"github.com/platinummonkey/warrant/pkg/observability"
	"github.com/platinummonkey/warrant/pkg/rbac"
)

// Guard protects routes with access decisions and audits refusals
type Guard struct {
	audit audit.Logger
}

// NewGuard creates a guard writing to auditLogger. A nil logger disables auditing.
func NewGuard(auditLogger audit.Logger) *Guard {
	if auditLogger == nil {
		auditLogger = audit.NoopLogger{}
	}
	return &Guard{audit: auditLogger}
}

type decision func(ctx context.Context, a *rbac.Authorizer, userID int64) (bool, error)

// RequirePage allows the request only if the caller holds permission on page path
func (g *Guard) RequirePage(path, permission string) func(http.Handler) http.Handler {
	return g.require("page:"+path, permission, func(ctx context.Context, a *rbac.Authorizer, userID int64) (bool, error) {
		return a.HasPagePermission(ctx, userID, path, permission)
	})
}

// RequireTable allows the request only if the caller holds capability on table
func (g *Guard) RequireTable(table string, capability rbac.Capability) func(http.Handler) http.Handler {
	return g.require("table:"+table, capability.String(), func(ctx context.Context, a *rbac.Authorizer, userID int64) (bool, error) {
		return a.HasTablePermission(ctx, userID, table, capability)
	})
}

func (g *Guard) require(resource, action string, decide decision) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			id, ok := GetIdentity(ctx)
			if !ok {
				httputil.WriteUnauthorized(w, "missing or invalid user identity")
				return
			}
			t, ok := GetTenant(ctx)
			if !ok {
				observability.FromContext(ctx).Error("Route guard used without tenant binding")
				httputil.WriteInternalError(w)
				return
			}

			allowed, err := decide(ctx, t.Authorizer(), id.UserID)
			if err != nil {
				g.record(r, audit.EventTypeCheckFailed, audit.EventStatusFailure, resource, action, err)
				httputil.WriteServiceUnavailable(w, "authorization unavailable")
				return
			}
			if !allowed {
				g.record(r, audit.EventTypeAccessDenied, audit.EventStatusDenied, resource, action, nil)
				httputil.WriteForbidden(w, "access denied")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (g *Guard) record(r *http.Request, eventType audit.EventType, status audit.EventStatus, resource, action string, cause error) {
	event := audit.FromRequest(r, eventType, status)
	event.Resource = resource
	event.Action = action
	if cause != nil {
		event.ErrorMessage = cause.Error()
	}

	if err := g.audit.Log(r.Context(), event); err != nil {
		observability.FromContext(r.Context()).WithError(err).Warn("Failed to write audit event")
	}
}
