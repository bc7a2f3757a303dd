package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/warrant/pkg/invalidation"
	"github.com/platinummonkey/warrant/pkg/middleware"
	"github.com/platinummonkey/warrant/pkg/observability"
	"github.com/platinummonkey/warrant/pkg/rbac"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Authz         AuthzConfig
	Tenants       TenantsConfig
	Identity      IdentityConfig
	Redis         RedisConfig
	Admin         AdminConfig
	Audit         AuditConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// AuthzConfig sizes the per-tenant permission caches
type AuthzConfig struct {
	CacheTTL           time.Duration
	CacheMaxEntries    int
	ResolveTimeout     time.Duration
	CachePurgeSchedule string
}

// TenantsConfig locates the tenants file
type TenantsConfig struct {
	File  string
	Watch bool
}

// IdentityConfig names the headers set by the upstream session layer
type IdentityConfig struct {
	UserHeader   string
	TenantHeader string
	TenantCookie string
}

// RedisConfig enables cross-process invalidation when URL is set
type RedisConfig struct {
	URL                 string
	InvalidationChannel string
}

// AdminConfig throttles the admin API. A zero RateLimit disables throttling.
type AdminConfig struct {
	RateLimit int
	RateBurst int
}

// AuditConfig selects audit destinations
type AuditConfig struct {
	// LogEnabled writes JSON audit events to stdout
	LogEnabled bool
	// DBEnabled writes audit events into each tenant's authz_audit_logs table
	DBEnabled bool
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel observability.LogLevel

	MetricsEnabled bool

	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool
	// OTelSampleRatio is the fraction of root traces sampled, 1 samples everything
	OTelSampleRatio float64
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Authz:         loadAuthzConfig(),
		Tenants:       loadTenantsConfig(),
		Identity:      loadIdentityConfig(),
		Redis:         loadRedisConfig(),
		Admin:         loadAdminConfig(),
		Audit:         loadAuditConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("WARRANT_HOST", "0.0.0.0"),
		Port:            getEnv("WARRANT_PORT", "8080"),
		ReadTimeout:     getEnvDuration("WARRANT_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("WARRANT_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("WARRANT_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("WARRANT_SHUTDOWN_TIMEOUT", 30*time.Second),
	}
}

func loadAuthzConfig() AuthzConfig {
	return AuthzConfig{
		CacheTTL:           getEnvDuration("WARRANT_CACHE_TTL", rbac.DefaultCacheTTL),
		CacheMaxEntries:    getEnvInt("WARRANT_CACHE_MAX_ENTRIES", rbac.DefaultCacheMaxEntries),
		ResolveTimeout:     getEnvDuration("WARRANT_RESOLVE_TIMEOUT", rbac.DefaultResolveTimeout),
		CachePurgeSchedule: getEnv("WARRANT_CACHE_PURGE_SCHEDULE", "@every 1m"),
	}
}

func loadTenantsConfig() TenantsConfig {
	return TenantsConfig{
		File:  getEnv("WARRANT_TENANTS_FILE", ""),
		Watch: getEnvBool("WARRANT_TENANTS_WATCH", true),
	}
}

func loadIdentityConfig() IdentityConfig {
	return IdentityConfig{
		UserHeader:   getEnv("WARRANT_USER_HEADER", middleware.DefaultUserHeader),
		TenantHeader: getEnv("WARRANT_TENANT_HEADER", middleware.DefaultTenantHeader),
		TenantCookie: getEnv("WARRANT_TENANT_COOKIE", ""),
	}
}

func loadRedisConfig() RedisConfig {
	return RedisConfig{
		URL:                 getEnv("WARRANT_REDIS_URL", ""),
		InvalidationChannel: getEnv("WARRANT_INVALIDATION_CHANNEL", invalidation.DefaultChannel),
	}
}

func loadAdminConfig() AdminConfig {
	defaults := middleware.DefaultRateLimitConfig()
	return AdminConfig{
		RateLimit: getEnvInt("WARRANT_ADMIN_RATE_LIMIT", defaults.RequestsPerWindow),
		RateBurst: getEnvInt("WARRANT_ADMIN_RATE_BURST", defaults.BurstSize),
	}
}

func loadAuditConfig() AuditConfig {
	return AuditConfig{
		LogEnabled: getEnvBool("WARRANT_AUDIT_LOG_ENABLED", true),
		DBEnabled:  getEnvBool("WARRANT_AUDIT_DB_ENABLED", false),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           observability.ParseLogLevel(getEnv("WARRANT_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("WARRANT_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("WARRANT_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("WARRANT_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("WARRANT_OTEL_SERVICE_NAME", "warrant"),
		OTelServiceVersion: getEnv("WARRANT_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("WARRANT_OTEL_INSECURE", true),
		OTelSampleRatio:    getEnvFloat("WARRANT_OTEL_SAMPLE_RATIO", 1),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}

	if c.Authz.CacheTTL <= 0 {
		return fmt.Errorf("cache TTL must be positive")
	}
	if c.Authz.CacheMaxEntries <= 0 {
		return fmt.Errorf("cache max entries must be positive")
	}
	if c.Authz.ResolveTimeout <= 0 {
		return fmt.Errorf("resolve timeout must be positive")
	}
	if _, err := cron.ParseStandard(c.Authz.CachePurgeSchedule); err != nil {
		return fmt.Errorf("invalid cache purge schedule %q: %w", c.Authz.CachePurgeSchedule, err)
	}

	if c.Tenants.File == "" {
		return fmt.Errorf("tenants file is required")
	}

	if c.Identity.UserHeader == "" || c.Identity.TenantHeader == "" {
		return fmt.Errorf("identity headers are required")
	}

	if c.Admin.RateLimit < 0 || c.Admin.RateBurst < 0 {
		return fmt.Errorf("admin rate limit must not be negative")
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
		if c.Observability.OTelSampleRatio < 0 || c.Observability.OTelSampleRatio > 1 {
			return fmt.Errorf("OpenTelemetry sample ratio must be between 0 and 1")
		}
	}

	return nil
}

// EngineConfig returns the per-tenant engine settings
func (c *Config) EngineConfig() rbac.EngineConfig {
	return rbac.EngineConfig{
		CacheTTL:        c.Authz.CacheTTL,
		CacheMaxEntries: c.Authz.CacheMaxEntries,
		ResolveTimeout:  c.Authz.ResolveTimeout,
	}
}

// RateLimitConfig returns the admin API limits
func (c *Config) RateLimitConfig() middleware.RateLimitConfig {
	return middleware.RateLimitConfig{
		RequestsPerWindow: c.Admin.RateLimit,
		WindowDuration:    time.Minute,
		BurstSize:         c.Admin.RateBurst,
	}
}

// OTelConfig returns the tracing settings
func (c *Config) OTelConfig() observability.OTelConfig {
	return observability.OTelConfig{
		Enabled:        c.Observability.OTelEnabled,
		Endpoint:       c.Observability.OTelEndpoint,
		ServiceName:    c.Observability.OTelServiceName,
		ServiceVersion: c.Observability.OTelServiceVersion,
		Insecure:       c.Observability.OTelInsecure,
		SampleRatio:    c.Observability.OTelSampleRatio,
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
