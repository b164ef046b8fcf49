package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/trialscout/trial-matcher/internal/domain"
)

// LiteConfig is the configuration of the standalone MCP server and CLI.
// It needs no external services: trials and feedback live in SQLite files
// under DataDir.
type LiteConfig struct {
	// Data storage
	DataDir string

	// Catalog snapshot cache
	CacheMaxItems int
	CacheTTL      time.Duration

	// Matching
	PriorTherapyExclusion bool
	DatasetVersion        string

	// Optional: enables the extract_biomarkers tool
	GeminiAPIKey string
	GeminiModel  string

	// Transport settings
	Transport string // stdio, http
	HTTPPort  int

	// Logging
	LogLevel  string
	LogFormat string
}

// DefaultLiteConfig returns a configuration with sensible defaults.
func DefaultLiteConfig() *LiteConfig {
	homeDir, _ := os.UserHomeDir()

	return &LiteConfig{
		DataDir:        filepath.Join(homeDir, ".trialscout"),
		CacheMaxItems:  16,
		CacheTTL:       5 * time.Minute,
		DatasetVersion: "1.0",
		GeminiModel:    "gemini-2.5-flash",
		Transport:      "stdio",
		HTTPPort:       8081,
		LogLevel:       "info",
		LogFormat:      "json",
	}
}

// LoadLiteConfig loads configuration from TRIALSCOUT_* environment variables.
// Unset or malformed values keep their defaults.
func LoadLiteConfig() *LiteConfig {
	cfg := DefaultLiteConfig()

	if v := os.Getenv("TRIALSCOUT_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}

	if v := os.Getenv("TRIALSCOUT_CACHE_MAX_ITEMS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.CacheMaxItems = n
		}
	}
	if v := os.Getenv("TRIALSCOUT_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.CacheTTL = d
		}
	}

	if v := os.Getenv("TRIALSCOUT_PRIOR_THERAPY_EXCLUSION"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.PriorTherapyExclusion = b
		}
	}
	if v := os.Getenv("TRIALSCOUT_DATASET_VERSION"); v != "" {
		cfg.DatasetVersion = v
	}

	cfg.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	if v := os.Getenv("TRIALSCOUT_GEMINI_MODEL"); v != "" {
		cfg.GeminiModel = v
	}

	if v := os.Getenv("TRIALSCOUT_TRANSPORT"); v != "" {
		cfg.Transport = v
	}
	if v := os.Getenv("TRIALSCOUT_HTTP_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.HTTPPort = n
		}
	}

	if v := os.Getenv("TRIALSCOUT_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("TRIALSCOUT_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}

	return cfg
}

// Matching returns the matching engine settings
func (c *LiteConfig) Matching() domain.MatchingConfig {
	return domain.MatchingConfig{
		PriorTherapyExclusion: c.PriorTherapyExclusion,
		DatasetVersion:        c.DatasetVersion,
	}
}

// CatalogDBPath returns the path to the trial catalog SQLite database.
func (c *LiteConfig) CatalogDBPath() string {
	return filepath.Join(c.DataDir, "trials.db")
}

// FeedbackDBPath returns the path to the feedback SQLite database.
func (c *LiteConfig) FeedbackDBPath() string {
	return filepath.Join(c.DataDir, "feedback.db")
}

// ExportDir returns the directory for JSON exports.
func (c *LiteConfig) ExportDir() string {
	return filepath.Join(c.DataDir, "exports")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (c *LiteConfig) EnsureDataDir() error {
	if err := os.MkdirAll(c.DataDir, 0755); err != nil {
		return err
	}
	return os.MkdirAll(c.ExportDir(), 0755)
}
