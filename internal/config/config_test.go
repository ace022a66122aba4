package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)

	assert.Equal(t, "pubmed_search.db", cfg.Database.Path)
	assert.True(t, cfg.Database.MigrationAutoRun)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)

	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.Equal(t, "pubmed_search", cfg.Metrics.Namespace)

	assert.Equal(t, "https://eutils.ncbi.nlm.nih.gov/entrez/eutils", cfg.PubMed.BaseURL)
	assert.InDelta(t, 3.0, cfg.PubMed.RateLimit, 0.001)
	assert.True(t, cfg.PubMed.MainJournalsOnly)

	assert.Equal(t, 1000, cfg.Fetcher.BatchSize)
	assert.Equal(t, time.Second, cfg.Fetcher.InterBatchDelay)
	assert.Equal(t, 2*time.Second, cfg.Fetcher.RetryDelay)
	assert.Equal(t, 3, cfg.Fetcher.MaxAttempts)

	assert.Equal(t, "anthropic/claude-4.5-sonnet", cfg.AIQuery.Model)
	assert.InDelta(t, 0.4, cfg.AIQuery.Temperature, 0.001)
	assert.InDelta(t, 0.8, cfg.AIQuery.TopP, 0.001)

	assert.Equal(t, time.Duration(0), cfg.Jobs.Timeout)
	assert.Equal(t, time.Hour, cfg.Jobs.RetentionTTL)

	assert.False(t, cfg.Kafka.Enabled)
	assert.Equal(t, "events.pubmed_search.completed", cfg.Kafka.Topic)
}

func TestLoad_SecretsFromEnvironment(t *testing.T) {
	t.Setenv("PUBMEDSEARCH_PUBMED_API_KEY", "ncbi-key")
	t.Setenv("PUBMEDSEARCH_AIQUERY_API_KEY", "router-key")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "ncbi-key", cfg.PubMed.APIKey)
	assert.Equal(t, "router-key", cfg.AIQuery.APIKey)
}

func TestLoad_EnvironmentOverride(t *testing.T) {
	t.Setenv("PUBMEDSEARCH_SERVER_HTTP_PORT", "9999")
	t.Setenv("PUBMEDSEARCH_LOGGING_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.HTTPPort)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := Load()
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"invalid http port", func(c *Config) { c.Server.HTTPPort = 0 }, "invalid HTTP port"},
		{"missing database path", func(c *Config) { c.Database.Path = "" }, "database path is required"},
		{"invalid log level", func(c *Config) { c.Logging.Level = "verbose" }, "invalid log level"},
		{"missing pubmed url", func(c *Config) { c.PubMed.BaseURL = "" }, "pubmed base URL is required"},
		{"zero rate limit", func(c *Config) { c.PubMed.RateLimit = 0 }, "rate limit must be positive"},
		{"zero batch size", func(c *Config) { c.Fetcher.BatchSize = 0 }, "batch size must be positive"},
		{"kafka without brokers", func(c *Config) {
			c.Kafka.Enabled = true
			c.Kafka.Brokers = nil
		}, "kafka brokers are required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	cfg := DatabaseConfig{Path: "search.db", BusyTimeout: 5 * time.Second}
	assert.Equal(t, "file:search.db?_busy_timeout=5000", cfg.DSN())

	cfg.BusyTimeout = 0
	assert.Equal(t, "file:search.db", cfg.DSN())
}

func TestServerConfig_HTTPAddress(t *testing.T) {
	cfg := ServerConfig{Host: "127.0.0.1", HTTPPort: 8080}
	assert.Equal(t, "127.0.0.1:8080", cfg.HTTPAddress())
}
