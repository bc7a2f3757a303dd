// Package admin serves the authorization admin API: cache invalidation and
// introspection of resolved permissions and data scopes.
package admin

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/warrant/pkg/audit"
	"github.com/platinummonkey/warrant/pkg/httputil"
	"github.com/platinummonkey/warrant/pkg/invalidation"
	"github.com/platinummonkey/warrant/pkg/middleware"
	"github.com/platinummonkey/warrant/pkg/observability"
	"github.com/platinummonkey/warrant/pkg/rbac"
	"github.com/platinummonkey/warrant/pkg/tenant"
)

// Page and permission required to use the admin API
const (
	AdminPage       = "/admin/roles"
	AdminPermission = "edit"
)

// Publisher announces cache invalidations. invalidation.Bus implements it.
type Publisher interface {
	Publish(ctx context.Context, event invalidation.Event) error
}

// Handlers serves the /authz routes. Every route runs against the tenant
// bound by middleware.TenantMiddleware.
type Handlers struct {
	bus   Publisher
	audit audit.Logger
	guard *middleware.Guard
}

// NewHandlers creates the admin handlers
func NewHandlers(bus Publisher, auditLogger audit.Logger, guard *middleware.Guard) *Handlers {
	if auditLogger == nil {
		auditLogger = audit.NoopLogger{}
	}
	if guard == nil {
		guard = middleware.NewGuard(auditLogger)
	}
	return &Handlers{
		bus:   bus,
		audit: auditLogger,
		guard: guard,
	}
}

// RegisterRoutes mounts the admin API under /authz. chain runs before the
// admin page guard and must bind identity and tenant.
func (h *Handlers) RegisterRoutes(router *mux.Router, chain ...mux.MiddlewareFunc) {
	// Routes sit on router itself: a PathPrefix subrouter lets a later
	// sibling's prefix match clear a method mismatch, turning 405 into 404.
	if router.MethodNotAllowedHandler == nil {
		router.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)
	}

	wrap := func(fn http.HandlerFunc) http.Handler {
		handler := h.guard.RequirePage(AdminPage, AdminPermission)(fn)
		for i := len(chain) - 1; i >= 0; i-- {
			handler = chain[i](handler)
		}
		return handler
	}

	router.Handle("/authz/cache/invalidate", wrap(h.InvalidateCache)).Methods(http.MethodPost)
	router.Handle("/authz/users/{id}/permissions", wrap(h.GetUserPermissions)).Methods(http.MethodGet)
	router.Handle("/authz/users/{id}/scope", wrap(h.GetUserScope)).Methods(http.MethodGet)
	router.Handle("/authz/check", wrap(h.CheckPermission)).Methods(http.MethodPost)
}

// InvalidateRequest selects one user, or every user of the tenant when UserID is absent
type InvalidateRequest struct {
	UserID *int64 `json:"user_id,omitempty"`
}

// InvalidateCache drops cached permissions locally and on every peer
func (h *Handlers) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	t, ok := boundTenant(w, r)
	if !ok {
		return
	}

	var req InvalidateRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.UserID != nil && *req.UserID <= 0 {
		httputil.WriteBadRequest(w, "user_id must be positive")
		return
	}

	event := invalidation.Event{TenantID: t.ID, UserID: req.UserID}
	err := h.bus.Publish(r.Context(), event)

	entry := audit.FromRequest(r, audit.EventTypeCacheInvalidate, audit.EventStatusSuccess)
	entry.Resource = "cache:" + t.ID
	entry.Action = "invalidate"
	entry.Message = event.String()
	if err != nil {
		entry.Status = audit.EventStatusFailure
		entry.ErrorMessage = err.Error()
	}
	if logErr := h.audit.Log(r.Context(), entry); logErr != nil {
		observability.FromContext(r.Context()).WithError(logErr).Warn("Failed to write audit event")
	}

	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("Cache invalidation was not propagated")
		httputil.WriteServiceUnavailable(w, "invalidation not propagated")
		return
	}

	httputil.WriteNoContent(w)
}

// GetUserPermissions returns the resolved snapshot of a user
func (h *Handlers) GetUserPermissions(w http.ResponseWriter, r *http.Request) {
	t, ok := boundTenant(w, r)
	if !ok {
		return
	}
	userID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	perms, err := t.Authorizer().Permissions(r.Context(), userID)
	if err != nil {
		unavailable(w, r, err)
		return
	}
	if perms == nil {
		httputil.WriteNotFound(w, "user not found")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, perms)
}

// ScopeResponse describes the rows a user may see in a table
type ScopeResponse struct {
	Table  string      `json:"table"`
	Scope  rbac.Scope  `json:"scope"`
	Filter rbac.Filter `json:"filter"`
}

// GetUserScope returns the data scope and row filter of a user for ?table=
func (h *Handlers) GetUserScope(w http.ResponseWriter, r *http.Request) {
	t, ok := boundTenant(w, r)
	if !ok {
		return
	}
	userID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	table, ok := httputil.RequireQuery(w, r, "table")
	if !ok {
		return
	}

	scope, filter, err := t.Authorizer().ScopeWithFilter(r.Context(), userID, table)
	if err != nil {
		unavailable(w, r, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, ScopeResponse{Table: table, Scope: scope, Filter: filter})
}

// CheckRequest asks for either a page decision or a table decision
type CheckRequest struct {
	UserID     int64  `json:"user_id"`
	Page       string `json:"page,omitempty"`
	Permission string `json:"permission,omitempty"`
	Table      string `json:"table,omitempty"`
	Capability string `json:"capability,omitempty"`
}

// CheckResponse is the outcome of a check
type CheckResponse struct {
	Allowed bool `json:"allowed"`
}

// CheckPermission evaluates a single access decision for any user of the tenant
func (h *Handlers) CheckPermission(w http.ResponseWriter, r *http.Request) {
	t, ok := boundTenant(w, r)
	if !ok {
		return
	}

	var req CheckRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.UserID <= 0 {
		httputil.WriteBadRequest(w, "user_id is required")
		return
	}

	var (
		allowed bool
		err     error
	)
	switch {
	case req.Page != "" && req.Table != "":
		httputil.WriteBadRequest(w, "page and table are mutually exclusive")
		return
	case req.Page != "":
		if req.Permission == "" {
			httputil.WriteBadRequest(w, "permission is required")
			return
		}
		allowed, err = t.Authorizer().HasPagePermission(r.Context(), req.UserID, req.Page, req.Permission)
	case req.Table != "":
		capability, parseErr := rbac.ParseCapability(req.Capability)
		if parseErr != nil {
			httputil.WriteBadRequest(w, parseErr.Error())
			return
		}
		allowed, err = t.Authorizer().HasTablePermission(r.Context(), req.UserID, req.Table, capability)
	default:
		httputil.WriteBadRequest(w, "page or table is required")
		return
	}

	if err != nil {
		unavailable(w, r, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, CheckResponse{Allowed: allowed})
}

func boundTenant(w http.ResponseWriter, r *http.Request) (*tenant.Tenant, bool) {
	t, ok := middleware.GetTenant(r.Context())
	if !ok {
		observability.FromContext(r.Context()).Error("Admin route used without tenant binding")
		httputil.WriteInternalError(w)
		return nil, false
	}
	return t, true
}

func methodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteErrorMessage(w, http.StatusMethodNotAllowed, "method not allowed")
}

func unavailable(w http.ResponseWriter, r *http.Request, err error) {
	observability.FromContext(r.Context()).WithError(err).Error("Authorization lookup failed")
	httputil.WriteServiceUnavailable(w, "authorization unavailable")
}
