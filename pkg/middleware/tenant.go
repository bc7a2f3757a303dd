package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/platinummonkey/warrant/pkg/contextkeys"
	"github.com/platinummonkey/warrant/pkg/httputil"
	"github.com/platinummonkey/warrant/pkg/observability"
	"github.com/platinummonkey/warrant/pkg/tenant"
)

// TenantSource resolves tenant IDs. tenant.Registry implements it.
type TenantSource interface {
	Get(ctx context.Context, id string) (*tenant.Tenant, error)
}

// TenantMiddleware binds the caller's tenant partition. It must run after
// IdentityMiddleware. Unknown tenants get 404; a partition that cannot be
// opened gets 503.
func TenantMiddleware(source TenantSource) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := GetIdentity(r.Context())
			if !ok {
				httputil.WriteUnauthorized(w, "missing or invalid tenant")
				return
			}

			t, err := source.Get(r.Context(), id.TenantID)
			if errors.Is(err, tenant.ErrUnknownTenant) {
				httputil.WriteNotFound(w, "unknown tenant")
				return
			}
			if err != nil {
				observability.FromContext(r.Context()).WithError(err).Error("Failed to bind tenant")
				httputil.WriteServiceUnavailable(w, "tenant unavailable")
				return
			}

			ctx := WithTenant(r.Context(), t)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithTenant stores t on ctx
func WithTenant(ctx context.Context, t *tenant.Tenant) context.Context {
	return context.WithValue(ctx, contextkeys.TenantKey, t)
}

// GetTenant returns the tenant bound by TenantMiddleware
func GetTenant(ctx context.Context) (*tenant.Tenant, bool) {
	t, ok := ctx.Value(contextkeys.TenantKey).(*tenant.Tenant)
	return t, ok && t != nil
}
