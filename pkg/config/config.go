package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// DefaultPath is where Load looks for the YAML file.
const DefaultPath = "config.yaml"

// Config holds all configuration for ekaya-gateway.
// Values come from config.yaml (optional) and environment variables, which
// always win. Secrets are read from the environment only.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"3480"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	BaseURL  string `yaml:"base_url" env:"BASE_URL" env-default:""` // Auto-derived from Port if empty
	Version  string `yaml:"-"`                                      // Set at load time, not from config

	// TLS configuration (optional - if both provided, server uses HTTPS)
	TLSCertPath string `yaml:"tls_cert_path" env:"TLS_CERT_PATH" env-default:""`
	TLSKeyPath  string `yaml:"tls_key_path" env:"TLS_KEY_PATH" env-default:""`

	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`

	// Target database the gateway executes against.
	Database DatabaseConfig `yaml:"database"`

	Gateway GatewayConfig `yaml:"gateway"`
	Catalog CatalogConfig `yaml:"catalog"`
	Redis   RedisConfig   `yaml:"redis"`
	MCP     MCPConfig     `yaml:"mcp"`
}

// DatabaseConfig holds PostgreSQL connection settings for the queried
// database. The configured role should itself be read-only; the gateway
// adds read-only transactions on top.
type DatabaseConfig struct {
	Host            string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port            int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User            string `yaml:"user" env:"PGUSER" env-default:"ekaya_reader"`
	Password        string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database        string `yaml:"database" env:"PGDATABASE" env-default:"postgres"`
	SSLMode         string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
	MaxConnections  int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"10"`
	MinConnections  int32  `yaml:"min_connections" env:"PGMIN_CONNECTIONS" env-default:"1"`
	ApplicationName string `yaml:"application_name" env:"PGAPPNAME" env-default:"ekaya-gateway"`
}

// GatewayConfig holds the execution policy.
type GatewayConfig struct {
	// MaxRowLimit is the ceiling for the outermost LIMIT.
	MaxRowLimit int64 `yaml:"max_row_limit" env:"GATEWAY_MAX_ROW_LIMIT" env-default:"100"`
	// StatementTimeout is enforced server-side per statement.
	StatementTimeout time.Duration `yaml:"statement_timeout" env:"GATEWAY_STATEMENT_TIMEOUT" env-default:"30s"`
	// CancelGrace is how much longer the client waits before giving up on
	// the connection.
	CancelGrace time.Duration `yaml:"cancel_grace" env:"GATEWAY_CANCEL_GRACE" env-default:"5s"`
	// AllowedFunctions lists user-defined routines that candidates may call,
	// bare or schema-qualified.
	AllowedFunctions []string `yaml:"allowed_functions" env:"GATEWAY_ALLOWED_FUNCTIONS" env-separator:","`
	AuditExecutions  bool     `yaml:"audit_executions" env:"GATEWAY_AUDIT_EXECUTIONS" env-default:"false"`
}

const (
	CatalogSourceDatabase = "database"
	CatalogSourceFile     = "file"
)

// CatalogConfig selects where the schema catalog comes from.
type CatalogConfig struct {
	Source        string   `yaml:"source" env:"CATALOG_SOURCE" env-default:"database"`
	FilePath      string   `yaml:"file_path" env:"CATALOG_FILE_PATH" env-default:""`
	Schemas       []string `yaml:"schemas" env:"CATALOG_SCHEMAS" env-separator:"," env-default:"public"`
	ExcludeTables []string `yaml:"exclude_tables" env:"CATALOG_EXCLUDE_TABLES" env-separator:","`
	WatchFile     bool     `yaml:"watch_file" env:"CATALOG_WATCH_FILE"`

	// RetryInterval paces startup load attempts while no catalog is loaded.
	RetryInterval time.Duration `yaml:"retry_interval" env:"CATALOG_RETRY_INTERVAL" env-default:"30s"`
}

// RedisConfig enables the catalog refresh channel. Redis is optional: an
// empty host disables it.
type RedisConfig struct {
	Host           string `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port           int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password       string `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
	DB             int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
	RefreshChannel string `yaml:"refresh_channel" env:"REDIS_REFRESH_CHANNEL" env-default:"ekaya-gateway:catalog-refresh"`
}

// MCPConfig controls the MCP tool server at /mcp.
//
// Booleans carry no env-default: cleanenv applies defaults to zero values,
// which would override an explicit false from YAML.
type MCPConfig struct {
	Enabled bool `yaml:"enabled" env:"MCP_ENABLED"`
}

// Load reads config.yaml from the working directory, if present, with
// environment variable overrides.
func Load(version string) (*Config, error) {
	return LoadFrom(DefaultPath, version)
}

// LoadFrom is Load with an explicit YAML path. A missing file is not an
// error; configuration then comes from the environment alone.
func LoadFrom(path, version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	_, statErr := os.Stat(path)
	switch {
	case statErr == nil:
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	case errors.Is(statErr, fs.ErrNotExist):
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	default:
		return nil, fmt.Errorf("failed to stat %s: %w", path, statErr)
	}

	cfg.normalize()

	if err := cfg.validateTLS(); err != nil {
		return nil, fmt.Errorf("invalid TLS configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// Auto-derive BaseURL from Port if not explicitly set
	if cfg.BaseURL == "" {
		scheme := "http"
		if cfg.TLSCertPath != "" {
			scheme = "https"
		}
		cfg.BaseURL = (&url.URL{
			Scheme: scheme,
			Host:   "localhost:" + cfg.Port,
		}).String()
	}

	return cfg, nil
}

// normalize trims list entries and drops empty ones; comma-separated env
// values commonly carry stray spaces.
func (c *Config) normalize() {
	c.Gateway.AllowedFunctions = trimList(c.Gateway.AllowedFunctions)
	c.Catalog.Schemas = trimList(c.Catalog.Schemas)
	c.Catalog.ExcludeTables = trimList(c.Catalog.ExcludeTables)
	c.Catalog.Source = strings.ToLower(strings.TrimSpace(c.Catalog.Source))
}

func trimList(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Validate checks settings that cannot be expressed as defaults.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}
	if c.Gateway.MaxRowLimit <= 0 {
		return fmt.Errorf("gateway.max_row_limit must be positive, got %d", c.Gateway.MaxRowLimit)
	}
	if c.Gateway.StatementTimeout <= 0 {
		return fmt.Errorf("gateway.statement_timeout must be positive, got %s", c.Gateway.StatementTimeout)
	}
	if c.Gateway.CancelGrace < 0 {
		return fmt.Errorf("gateway.cancel_grace must not be negative, got %s", c.Gateway.CancelGrace)
	}
	if c.Database.MaxConnections <= 0 {
		return fmt.Errorf("database.max_connections must be positive, got %d", c.Database.MaxConnections)
	}
	if c.Database.MinConnections < 0 || c.Database.MinConnections > c.Database.MaxConnections {
		return fmt.Errorf("database.min_connections must be between 0 and %d, got %d",
			c.Database.MaxConnections, c.Database.MinConnections)
	}

	if c.Catalog.RetryInterval <= 0 {
		return fmt.Errorf("catalog.retry_interval must be positive, got %s", c.Catalog.RetryInterval)
	}

	switch c.Catalog.Source {
	case CatalogSourceDatabase:
		if len(c.Catalog.Schemas) == 0 {
			return errors.New("catalog.schemas must name at least one schema")
		}
	case CatalogSourceFile:
		if c.Catalog.FilePath == "" {
			return errors.New("catalog.file_path is required when catalog.source is file")
		}
	default:
		return fmt.Errorf("catalog.source must be %q or %q, got %q",
			CatalogSourceDatabase, CatalogSourceFile, c.Catalog.Source)
	}
	return nil
}

// validateTLS ensures TLS configuration is valid if provided.
// Both cert and key must be provided together, and files must exist.
func (c *Config) validateTLS() error {
	certSet := c.TLSCertPath != ""
	keySet := c.TLSKeyPath != ""

	if certSet != keySet {
		return fmt.Errorf("both tls_cert_path and tls_key_path must be provided together")
	}

	if certSet {
		if _, err := os.Stat(c.TLSCertPath); err != nil {
			return fmt.Errorf("TLS cert file does not exist: %w", err)
		}
		if _, err := os.Stat(c.TLSKeyPath); err != nil {
			return fmt.Errorf("TLS key file does not exist: %w", err)
		}
	}

	return nil
}

// ConnectionURL returns a postgres:// URL for the target database. The
// host is adjusted for Docker, see ResolveHostForDocker.
func (c *DatabaseConfig) ConnectionURL() string {
	u := &url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   fmt.Sprintf("%s:%d", ResolveHostForDocker(c.Host), c.Port),
		Path:   "/" + c.Database,
	}
	q := url.Values{}
	q.Set("sslmode", c.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// Enabled reports whether a Redis host is configured.
func (c *RedisConfig) Enabled() bool {
	return c.Host != ""
}

func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", ResolveHostForDocker(c.Host), c.Port)
}
