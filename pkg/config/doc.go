// Package config loads service configuration from WARRANT_* environment variables.
//
// Server:
//
//	WARRANT_HOST="0.0.0.0"
//	WARRANT_PORT="8080"
//	WARRANT_READ_TIMEOUT="15s"
//	WARRANT_WRITE_TIMEOUT="15s"
//	WARRANT_IDLE_TIMEOUT="60s"
//	WARRANT_SHUTDOWN_TIMEOUT="30s"
//
// Authorization:
//
//	WARRANT_CACHE_TTL="5m"
//	WARRANT_CACHE_MAX_ENTRIES="10000"
//	WARRANT_RESOLVE_TIMEOUT="3s"
//	WARRANT_CACHE_PURGE_SCHEDULE="@every 1m"
//
// Tenants and identity:
//
//	WARRANT_TENANTS_FILE="/etc/warrant/tenants.yaml"  # required
//	WARRANT_TENANTS_WATCH="true"
//	WARRANT_USER_HEADER="X-User-ID"
//	WARRANT_TENANT_HEADER="X-Tenant-ID"
//	WARRANT_TENANT_COOKIE=""
//
// Invalidation, admin API and audit:
//
//	WARRANT_REDIS_URL="redis://localhost:6379/0"  # optional, enables cross-process invalidation
//	WARRANT_INVALIDATION_CHANNEL="warrant:invalidate"
//	WARRANT_ADMIN_RATE_LIMIT="600"  # requests per minute, 0 disables
//	WARRANT_ADMIN_RATE_BURST="50"
//	WARRANT_AUDIT_LOG_ENABLED="true"
//	WARRANT_AUDIT_DB_ENABLED="false"
//
// Observability:
//
//	WARRANT_LOG_LEVEL="info"
//	WARRANT_METRICS_ENABLED="true"
//	WARRANT_OTEL_ENABLED="false"
//	WARRANT_OTEL_ENDPOINT="localhost:4317"
//	WARRANT_OTEL_SERVICE_NAME="warrant"
//	WARRANT_OTEL_INSECURE="true"
//
// LoadConfig validates the result and fails fast on a missing tenants file
// setting, non-positive cache settings or an unparsable purge schedule.
package config
