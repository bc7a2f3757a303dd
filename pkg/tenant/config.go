package tenant

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/lib/pq"
	"gopkg.in/yaml.v3"
)

// Supported database drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// ErrNoTenants is returned for a tenants file without entries
var ErrNoTenants = errors.New("no tenants configured")

var idPattern = regexp.MustCompile(`^[a-z0-9_]{1,63}$`)

// ValidID reports whether id is a well-formed tenant or schema identifier
func ValidID(id string) bool {
	return idPattern.MatchString(id)
}

// Config describes one tenant partition
type Config struct {
	ID           string `yaml:"id"`
	Driver       string `yaml:"driver"`
	DSN          string `yaml:"dsn"`
	Schema       string `yaml:"schema"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// File is the layout of the tenants file
type File struct {
	Tenants []Config `yaml:"tenants"`
}

// LoadFile reads and validates a tenants file. ${VAR} references in DSNs
// are expanded from the environment.
func LoadFile(path string) ([]Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tenants file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates tenants file content
func Parse(data []byte) ([]Config, error) {
	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse tenants file: %w", err)
	}
	if len(file.Tenants) == 0 {
		return nil, ErrNoTenants
	}

	seen := make(map[string]bool, len(file.Tenants))
	configs := make([]Config, 0, len(file.Tenants))
	for i, cfg := range file.Tenants {
		cfg.DSN = os.ExpandEnv(cfg.DSN)
		if cfg.Driver == "" {
			cfg.Driver = DriverPostgres
		}
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("tenant %d: %w", i, err)
		}
		if seen[cfg.ID] {
			return nil, fmt.Errorf("tenant %d: duplicate id %q", i, cfg.ID)
		}
		seen[cfg.ID] = true
		configs = append(configs, cfg)
	}

	return configs, nil
}

// Validate checks a single tenant configuration
func (c Config) Validate() error {
	if !ValidID(c.ID) {
		return fmt.Errorf("invalid tenant id %q", c.ID)
	}
	if c.DSN == "" {
		return fmt.Errorf("tenant %s: dsn is required", c.ID)
	}
	switch c.Driver {
	case DriverPostgres:
		if c.Schema != "" && !ValidID(c.Schema) {
			return fmt.Errorf("tenant %s: invalid schema %q", c.ID, c.Schema)
		}
	case DriverSQLite:
		if c.Schema != "" {
			return fmt.Errorf("tenant %s: schema is not supported by %s", c.ID, DriverSQLite)
		}
	default:
		return fmt.Errorf("tenant %s: unsupported driver %q", c.ID, c.Driver)
	}
	return nil
}

// DataSourceName returns the DSN to open, binding the tenant schema as the
// connection's search_path for PostgreSQL.
func (c Config) DataSourceName() (string, error) {
	if c.Driver != DriverPostgres || c.Schema == "" {
		return c.DSN, nil
	}

	dsn := c.DSN
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		converted, err := pq.ParseURL(dsn)
		if err != nil {
			return "", fmt.Errorf("tenant %s: invalid dsn: %w", c.ID, err)
		}
		dsn = converted
	}
	return dsn + " search_path=" + c.Schema, nil
}
