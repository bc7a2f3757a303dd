// Package audit records authorization events.
//
// Route guards record denials, the admin API records cache invalidations,
// and role store failures during a check are recorded as check failures:
//
//	event := audit.FromRequest(r, audit.EventTypeAccessDenied, audit.EventStatusDenied)
//	event.Resource = "page:/risks"
//	event.Action = "edit"
//	_ = logger.Log(r.Context(), event)
//
// Request ID, tenant and user are filled from the request context when unset.
//
// Destinations:
//
//	LogrusLogger - JSON lines through logrus
//	DBLogger     - rows in the tenant's authz_audit_logs table
//	MultiLogger  - fan-out to several loggers
//	NoopLogger   - discards events
package audit
