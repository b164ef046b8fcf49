package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestManager_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	m, err := NewManager()
	require.NoError(t, err)
	require.NoError(t, m.Validate())

	cfg := m.GetConfig()
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, CatalogSeed, cfg.Catalog.Source)
	assert.Equal(t, 20, m.GetMatchingConfig().MaxBatchSize)
	assert.Equal(t, "1.0", m.GetMatchingConfig().DatasetVersion)
	assert.Equal(t, 100, cfg.RateLimit.RequestsPerHour)
	assert.Equal(t, "gemini-2.5-flash", cfg.Extraction.Model)
	assert.Equal(t, int64(10<<20), cfg.Extraction.MaxDocumentBytes)
	assert.Equal(t, "none", cfg.MCP.TransportType)
	assert.True(t, m.IsDevelopment())
	assert.False(t, m.IsProduction())
	assert.Empty(t, m.GetRedisConnectionString())
}

func TestManager_FileAndEnvironment(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9000
database:
  host: db.internal
  database: trials
  username: matcher
catalog:
  source: postgres
matching:
  prior_therapy_exclusion: true
cache:
  redis_url: redis://cache:6379/0
`)
	t.Setenv("TRIALSCOUT_SERVER_PORT", "9100")
	t.Setenv("GEMINI_API_KEY", "key-from-env")

	m, err := NewManagerFromFile(path)
	require.NoError(t, err)
	require.NoError(t, m.Validate())

	assert.Equal(t, 9100, m.GetServerConfig().Port, "environment beats the file")
	assert.Equal(t, "db.internal", m.GetDatabaseConfig().Host)
	assert.True(t, m.GetMatchingConfig().PriorTherapyExclusion)
	assert.Equal(t, "key-from-env", m.GetConfig().Extraction.GeminiAPIKey)
	assert.Equal(t, "redis://cache:6379/0", m.GetRedisConnectionString())
	assert.Contains(t, m.GetDatabaseConnectionString(), "host=db.internal port=5432 user=matcher")
	assert.Contains(t, m.GetDatabaseConnectionString(), "dbname=trials")
}

func TestManager_MissingExplicitFile(t *testing.T) {
	_, err := NewManagerFromFile(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestManager_Validate(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"bad port", "server:\n  port: 70000\n", "invalid server port"},
		{"tls without cert", "server:\n  tls_enabled: true\n", "TLS requires"},
		{"unknown catalog source", "catalog:\n  source: mongo\n", "invalid catalog source"},
		{"postgres without host", "catalog:\n  source: postgres\ndatabase:\n  host: \"\"\n", "database host is required"},
		{"batch size", "matching:\n  max_batch_size: 0\n", "max_batch_size"},
		{"log level", "logging:\n  level: verbose\n", "invalid log level"},
		{"production needs secret", "environment: production\n", "jwt_secret"},
		{"mcp stdio", "mcp:\n  transport_type: stdio\n", "invalid mcp transport_type"},
		{"mcp port clash", "mcp:\n  transport_type: http\n  http_port: 8080\n", "invalid mcp http_port"},
		{"mcp http", "mcp:\n  transport_type: http\n", ""},
		{"sqlite source", "catalog:\n  source: sqlite\n", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewManagerFromFile(writeConfig(t, tt.body))
			require.NoError(t, err)

			err = m.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestManager_Reload(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9000\n")
	m, err := NewManagerFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, m.GetServerConfig().Port)

	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9001\n"), 0o600))
	require.NoError(t, m.Reload())
	assert.Equal(t, 9001, m.GetServerConfig().Port)
}
