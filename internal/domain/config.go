package domain

import (
	"time"
)

// Config represents the main application configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Matching   MatchingConfig   `mapstructure:"matching"`
	Catalog    CatalogConfig    `mapstructure:"catalog"`
	Extraction ExtractionConfig `mapstructure:"extraction"`
	Auth       AuthConfig       `mapstructure:"auth"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	MCP        MCPConfig        `mapstructure:"mcp"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	TLSEnabled     bool          `mapstructure:"tls_enabled"`
	CertFile       string        `mapstructure:"cert_file"`
	KeyFile        string        `mapstructure:"key_file"`
}

// DatabaseConfig represents database connection configuration
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Database        string        `mapstructure:"database"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrateOnStart  bool          `mapstructure:"migrate_on_start"`
}

// CacheConfig represents cache configuration
type CacheConfig struct {
	RedisURL    string        `mapstructure:"redis_url"`
	DefaultTTL  time.Duration `mapstructure:"default_ttl"`
	MaxRetries  int           `mapstructure:"max_retries"`
	PoolSize    int           `mapstructure:"pool_size"`
	PoolTimeout time.Duration `mapstructure:"pool_timeout"`
	MemoryItems int           `mapstructure:"memory_items"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// MatchingConfig holds matching engine switches
type MatchingConfig struct {
	// PriorTherapyExclusion turns the "no prior <drug>" rule into a hard exclusion.
	// Off by default: prior exposure is surfaced as a confirmation item only.
	PriorTherapyExclusion bool   `mapstructure:"prior_therapy_exclusion"`
	DatasetVersion        string `mapstructure:"dataset_version"`
	MaxBatchSize          int    `mapstructure:"max_batch_size"`
}

// CatalogConfig selects where trial records are read from
type CatalogConfig struct {
	Source      string `mapstructure:"source"` // "seed", "postgres", "sqlite"
	SQLitePath  string `mapstructure:"sqlite_path"`
	SeedOnStart bool   `mapstructure:"seed_on_start"`
}

// ExtractionConfig configures document and LLM biomarker extraction
type ExtractionConfig struct {
	GeminiAPIKey     string        `mapstructure:"gemini_api_key"`
	Model            string        `mapstructure:"model"`
	Timeout          time.Duration `mapstructure:"timeout"`
	MaxDocumentBytes int64         `mapstructure:"max_document_bytes"`
	CacheSize        int           `mapstructure:"cache_size"`
}

// AuthConfig holds the shared secret used to verify admin tokens
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
}

// RateLimitConfig configures per-client request limits
type RateLimitConfig struct {
	RequestsPerHour int `mapstructure:"requests_per_hour"`
	Burst           int `mapstructure:"burst"`
}

// MCPConfig represents MCP server configuration
type MCPConfig struct {
	ServerName    string `mapstructure:"server_name"`
	ServerVersion string `mapstructure:"server_version"`
	TransportType string `mapstructure:"transport_type"` // "none", "http"
	HTTPPort      int    `mapstructure:"http_port"`
}
