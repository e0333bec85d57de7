package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
database:
  postgres:
    host: localhost
    database: travel
    user: app
  elasticsearch:
    url: http://localhost:9200
  redis:
    address: localhost:6379
apis:
  genai:
    base_url: http://llm.local
workers:
  process-turn:
    enabled: true
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFromFile_AppliesDefaults(t *testing.T) {
	cfg, err := LoadFromFile(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, 60, cfg.Session.TTLMinutes)
	assert.Equal(t, time.Hour, cfg.SessionTTL())
	assert.Equal(t, 0.90, cfg.Cascade.High)
	assert.Equal(t, 0.75, cfg.Cascade.Medium)
	assert.Equal(t, 0.60, cfg.Cascade.Low)
	assert.Equal(t, "gateway", cfg.APIs.GenAI.Provider)
	assert.Equal(t, []string{"http://localhost:9200"}, cfg.Database.Elasticsearch.Addresses)
	assert.Equal(t, "travel_docs", cfg.Database.Elasticsearch.Index)
	assert.Equal(t, 3, cfg.RAG.MaxResults)
	assert.Equal(t, 30*time.Minute, cfg.RAGCacheTTL())

	wc := GetWorkerConfig(cfg, "process-turn")
	assert.True(t, wc.Enabled)
	assert.Equal(t, 5, wc.MaxJobsActive)
	assert.Equal(t, 30000, wc.Timeout)
	assert.Equal(t, 3, wc.MaxRetries)
}

func TestLoadFromFile_ExpandsEnvPlaceholders(t *testing.T) {
	t.Setenv("TEST_GENAI_URL", "http://expanded.local")
	body := `
database:
  postgres:
    host: localhost
    database: travel
  elasticsearch:
    url: http://localhost:9200
  redis:
    address: localhost:6379
apis:
  genai:
    base_url: "${TEST_GENAI_URL}"
`
	cfg, err := LoadFromFile(writeConfig(t, body))
	require.NoError(t, err)
	assert.Equal(t, "http://expanded.local", cfg.APIs.GenAI.BaseURL)
}

func TestLoadFromFile_SecretFallbackFromEnv(t *testing.T) {
	t.Setenv("GOOGLE_MAPS_API_KEY", "maps-key")
	cfg, err := LoadFromFile(writeConfig(t, minimalYAML))
	require.NoError(t, err)
	assert.Equal(t, "maps-key", cfg.APIs.Maps.APIKey)
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"missing redis", func(c *Config) { c.Database.Redis.Address = "" }, "redis.address"},
		{"camunda enabled without broker", func(c *Config) { c.Camunda.Enabled = true }, "broker_address"},
		{"thresholds out of order", func(c *Config) { c.Cascade.Medium = 0.95 }, "low < medium < high"},
		{"gemini without key", func(c *Config) { c.APIs.GenAI.Provider = "gemini" }, "gemini.api_key"},
		{"unknown provider", func(c *Config) { c.APIs.GenAI.Provider = "other" }, "gateway or gemini"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			cfg.Database.Redis.Address = "localhost:6379"
			cfg.Database.Postgres.Host = "localhost"
			cfg.Database.Postgres.Database = "travel"
			cfg.Database.Elasticsearch.URL = "http://localhost:9200"
			cfg.APIs.GenAI.BaseURL = "http://llm.local"
			applyDefaults(cfg)
			tt.mutate(cfg)

			err := validateConfig(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestIsWorkerEnabled(t *testing.T) {
	cfg := &Config{Workers: map[string]WorkerConfig{"process-turn": {Enabled: false}}}
	assert.False(t, IsWorkerEnabled(cfg, "process-turn"))
	assert.True(t, IsWorkerEnabled(cfg, "unknown-worker"))
	assert.Equal(t, 1500*time.Millisecond, GetDuration(1500))
}
