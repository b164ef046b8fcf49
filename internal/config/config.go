// Package config loads service configuration from config.yaml, TRIALSCOUT_*
// environment variables and built-in defaults.
package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/viper"

	"github.com/trialscout/trial-matcher/internal/domain"
)

// EnvPrefix prefixes every environment override, e.g. TRIALSCOUT_SERVER_PORT
const EnvPrefix = "TRIALSCOUT"

// Catalog sources
const (
	CatalogSeed     = "seed"
	CatalogPostgres = "postgres"
	CatalogSQLite   = "sqlite"
)

// Manager implements the ConfigManager interface using Viper
type Manager struct {
	v          *viper.Viper
	configFile string
	config     *domain.Config
}

// NewManager creates a new configuration manager that searches the default config paths
func NewManager() (*Manager, error) {
	return NewManagerFromFile("")
}

// NewManagerFromFile creates a configuration manager reading configFile. An
// empty path searches ".", "./config" and "/etc/trialscout" for config.yaml.
func NewManagerFromFile(configFile string) (*Manager, error) {
	m := &Manager{configFile: configFile}
	if err := m.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return m, nil
}

// loadConfig loads configuration from various sources
func (m *Manager) loadConfig() error {
	v := viper.New()

	if m.configFile != "" {
		v.SetConfigFile(m.configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/trialscout/")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// the bare provider variable is what most deployments already export
	if err := v.BindEnv("extraction.gemini_api_key", EnvPrefix+"_EXTRACTION_GEMINI_API_KEY", "GEMINI_API_KEY"); err != nil {
		return err
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || m.configFile != "" {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &domain.Config{}
	if err := v.Unmarshal(config); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.v = v
	m.config = config
	return nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.request_timeout", "90s")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("server.tls_enabled", false)
	v.SetDefault("server.cert_file", "")
	v.SetDefault("server.key_file", "")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.database", "trialscout")
	v.SetDefault("database.username", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "5m")
	v.SetDefault("database.migrate_on_start", true)

	// Cache defaults; an empty redis_url keeps the catalog cache in-process only
	v.SetDefault("cache.redis_url", "")
	v.SetDefault("cache.default_ttl", "15m")
	v.SetDefault("cache.max_retries", 3)
	v.SetDefault("cache.pool_size", 10)
	v.SetDefault("cache.pool_timeout", "4s")
	v.SetDefault("cache.memory_items", 16)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	// Matching defaults
	v.SetDefault("matching.prior_therapy_exclusion", false)
	v.SetDefault("matching.dataset_version", "1.0")
	v.SetDefault("matching.max_batch_size", 20)

	// Catalog defaults
	v.SetDefault("catalog.source", CatalogSeed)
	v.SetDefault("catalog.sqlite_path", "./data/trials.db")
	v.SetDefault("catalog.seed_on_start", true)

	// Extraction defaults
	v.SetDefault("extraction.gemini_api_key", "")
	v.SetDefault("extraction.model", "gemini-2.5-flash")
	v.SetDefault("extraction.timeout", "60s")
	v.SetDefault("extraction.max_document_bytes", 10<<20)
	v.SetDefault("extraction.cache_size", 128)

	// Auth defaults
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "trialscout")

	// Rate limit defaults
	v.SetDefault("rate_limit.requests_per_hour", 100)
	v.SetDefault("rate_limit.burst", 20)

	// MCP defaults
	v.SetDefault("mcp.server_name", "trialscout")
	v.SetDefault("mcp.server_version", "1.0.0")
	v.SetDefault("mcp.transport_type", "none")
	v.SetDefault("mcp.http_port", 8081)
}

// GetConfig returns the complete configuration
func (m *Manager) GetConfig() *domain.Config {
	return m.config
}

// GetDatabaseConfig returns database configuration
func (m *Manager) GetDatabaseConfig() *domain.DatabaseConfig {
	return &m.config.Database
}

// GetServerConfig returns server configuration
func (m *Manager) GetServerConfig() *domain.ServerConfig {
	return &m.config.Server
}

// GetMatchingConfig returns matching engine configuration
func (m *Manager) GetMatchingConfig() *domain.MatchingConfig {
	return &m.config.Matching
}

// Reload reloads the configuration
func (m *Manager) Reload() error {
	return m.loadConfig()
}

// Validate validates the configuration
func (m *Manager) Validate() error {
	config := m.config

	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}
	if config.Server.TLSEnabled && (config.Server.CertFile == "" || config.Server.KeyFile == "") {
		return fmt.Errorf("TLS requires cert_file and key_file")
	}

	switch config.Catalog.Source {
	case CatalogSeed:
	case CatalogSQLite:
		if config.Catalog.SQLitePath == "" {
			return fmt.Errorf("catalog sqlite_path is required for the sqlite source")
		}
	case CatalogPostgres:
		if config.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if config.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
		if config.Database.Username == "" {
			return fmt.Errorf("database username is required")
		}
	default:
		return fmt.Errorf("invalid catalog source: %q (want seed, sqlite or postgres)", config.Catalog.Source)
	}

	if config.Cache.RedisURL != "" {
		if _, err := url.Parse(config.Cache.RedisURL); err != nil {
			return fmt.Errorf("invalid Redis URL: %w", err)
		}
	}

	if config.Matching.MaxBatchSize < 1 || config.Matching.MaxBatchSize > 100 {
		return fmt.Errorf("matching max_batch_size must be between 1 and 100, got %d", config.Matching.MaxBatchSize)
	}
	if config.RateLimit.RequestsPerHour <= 0 {
		return fmt.Errorf("rate_limit requests_per_hour must be positive")
	}
	if m.IsProduction() && config.Auth.JWTSecret == "" {
		return fmt.Errorf("auth jwt_secret is required in production")
	}

	switch config.MCP.TransportType {
	case "none", "":
	case "http":
		if config.MCP.HTTPPort <= 0 || config.MCP.HTTPPort > 65535 || config.MCP.HTTPPort == config.Server.Port {
			return fmt.Errorf("invalid mcp http_port: %d", config.MCP.HTTPPort)
		}
	default:
		return fmt.Errorf("invalid mcp transport_type: %q (the API server supports none or http)", config.MCP.TransportType)
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", config.Logging.Level)
	}

	return nil
}

// GetDatabaseConnectionString returns a formatted database connection string
func (m *Manager) GetDatabaseConnectionString() string {
	db := m.config.Database
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		db.Host, db.Port, db.Username, db.Password, db.Database, db.SSLMode)
}

// GetRedisConnectionString returns the Redis connection string
func (m *Manager) GetRedisConnectionString() string {
	return m.config.Cache.RedisURL
}

// IsProduction returns true if running in production mode
func (m *Manager) IsProduction() bool {
	return strings.ToLower(m.v.GetString("environment")) == "production"
}

// IsDevelopment returns true if running in development mode
func (m *Manager) IsDevelopment() bool {
	env := strings.ToLower(m.v.GetString("environment"))
	return env == "development" || env == "dev" || env == ""
}
