package middleware

import (
	"context"
	"net/http"
	"strconv"

	"github.com/platinummonkey/warrant/pkg/contextkeys"
	"github.com/platinummonkey/warrant/pkg/httputil"
	"github.com/platinummonkey/warrant/pkg/tenant"
)

// Default identity headers
const (
	DefaultUserHeader   = "X-User-ID"
	DefaultTenantHeader = "X-Tenant-ID"
)

// Identity is the already-authenticated caller
type Identity struct {
	UserID   int64
	TenantID string
}

// IdentityConfig names where the upstream session layer puts the caller.
// TenantCookie, when set, is consulted if the tenant header is absent.
type IdentityConfig struct {
	UserHeader   string
	TenantHeader string
	TenantCookie string
}

func (c IdentityConfig) withDefaults() IdentityConfig {
	if c.UserHeader == "" {
		c.UserHeader = DefaultUserHeader
	}
	if c.TenantHeader == "" {
		c.TenantHeader = DefaultTenantHeader
	}
	return c
}

// IdentityMiddleware requires a positive user ID and a well-formed tenant ID
// and answers 401 otherwise
func IdentityMiddleware(cfg IdentityConfig) func(http.Handler) http.Handler {
	cfg = cfg.withDefaults()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := strconv.ParseInt(r.Header.Get(cfg.UserHeader), 10, 64)
			if err != nil || userID <= 0 {
				httputil.WriteUnauthorized(w, "missing or invalid user identity")
				return
			}

			tenantID := r.Header.Get(cfg.TenantHeader)
			if tenantID == "" && cfg.TenantCookie != "" {
				if cookie, err := r.Cookie(cfg.TenantCookie); err == nil {
					tenantID = cookie.Value
				}
			}
			if !tenant.ValidID(tenantID) {
				httputil.WriteUnauthorized(w, "missing or invalid tenant")
				return
			}

			ctx := WithIdentity(r.Context(), Identity{UserID: userID, TenantID: tenantID})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithIdentity stores id on ctx, including the user and tenant keys read by loggers and the audit trail
func WithIdentity(ctx context.Context, id Identity) context.Context {
	ctx = context.WithValue(ctx, contextkeys.IdentityKey, id)
	ctx = contextkeys.WithUserID(ctx, id.UserID)
	return contextkeys.WithTenantID(ctx, id.TenantID)
}

// GetIdentity returns the caller bound by IdentityMiddleware
func GetIdentity(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(contextkeys.IdentityKey).(Identity)
	return id, ok
}
