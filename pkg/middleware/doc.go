// Package middleware binds identity and tenant to requests and guards routes
// with access decisions.
//
// A typical chain, outermost first:
//
//	router.Use(middleware.Recovery)
//	router.Use(middleware.RequestID(logger))
//	router.Use(middleware.IdentityMiddleware(middleware.IdentityConfig{}))
//	router.Use(middleware.TenantMiddleware(registry))
//
//	guard := middleware.NewGuard(auditLogger)
//	risks := router.PathPrefix("/risks").Subrouter()
//	risks.Use(guard.RequirePage("/risks", "view"))
//	risks.Handle("/export", guard.RequireTable("risks", rbac.CapabilityExport)(exportHandler))
//
// IdentityMiddleware does not authenticate. It trusts the user and tenant headers set by
// the upstream session layer and only checks that they are well formed.
//
// Guards answer 403 {"error":"access denied"} on deny and 503
// {"error":"authorization unavailable"} when the role store cannot be read.
// Both outcomes are written to the audit trail.
package middleware
