// Package rbac resolves role-based permissions and answers access decisions.
//
// # Overview
//
// This package turns a user's role assignments into an immutable permission
// snapshot and answers three questions against it:
//
//   - may the user perform a named action on a UI page?
//   - may the user perform a capability (view, create, edit, delete, export) on a data table?
//   - which rows of that table may the user see?
//
// # Components
//
//	RoleStore   - read-only access to users, roles and grants (SQLStore for database/sql)
//	Resolver    - builds a UserPermissions snapshot from the store
//	Cache       - TTL + LRU cache of snapshots with miss deduplication
//	Authorizer  - decision functions over the cache
//
// Engine wires all of them for one tenant:
//
//	engine, err := rbac.NewEngine(rbac.NewSQLStore(db), rbac.EngineConfig{
//		CacheTTL:        5 * time.Minute,
//		CacheMaxEntries: 10000,
//		ResolveTimeout:  3 * time.Second,
//	}, rbac.WithLogger(logger), rbac.WithMetrics(metrics))
//
// # Decisions
//
// Page checks:
//
//	allowed, err := engine.Authorizer.HasPagePermission(ctx, userID, "/risks", "edit")
//
// A page granting "admin" implies every other permission on that page.
//
// Table checks:
//
//	allowed, err := engine.Authorizer.HasTablePermission(ctx, userID, "risks", rbac.CapabilityExport)
//
// Row scope:
//
//	filter, err := engine.Authorizer.ScopeFilter(ctx, userID, "risks")
//	cond, args := sqlfilter.Where("archived = $1", []any{false}, filter)
//	rows, err := db.QueryContext(ctx, "SELECT * FROM risks WHERE "+cond, args...)
//
// A user holding the "Super Admin" role is allowed everything and sees all rows.
// Unknown users, missing grants and unknown scope values always resolve to the
// narrowest answer: denied, or ScopeOwn.
//
// # Errors
//
// A failure to read the role store is returned as ErrRoleStoreUnavailable
// alongside the narrowest answer. Callers must report it as a server error
// rather than a denial:
//
//	allowed, err := authorizer.HasPagePermission(ctx, userID, path, "view")
//	if err != nil {
//		httputil.WriteErrorMessage(w, http.StatusServiceUnavailable, "authorization unavailable")
//		return
//	}
//
// # Cache Invalidation
//
// Snapshots are served for the configured TTL. Role or grant changes become
// visible after expiry, or immediately after:
//
//	engine.Cache.Invalidate(userID)
//	engine.Cache.InvalidateAll()
//
// # Scopes
//
// Scopes are ordered own < department < organization < all. When several roles
// grant the same table, capabilities are OR-ed and the broadest scope wins.
//
// # Related Packages
//
//   - pkg/sqlfilter: renders Filter values into parameterized SQL
//   - pkg/tenant: one Engine per tenant partition
//   - pkg/middleware: HTTP route guards
package rbac
