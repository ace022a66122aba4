// Package config provides configuration management for the PubMed search service.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the PubMed search service.
type Config struct {
	// Server contains HTTP server settings.
	Server ServerConfig `mapstructure:"server"`
	// Database contains SQLite storage settings.
	Database DatabaseConfig `mapstructure:"database"`
	// Logging contains structured logging settings.
	Logging LoggingConfig `mapstructure:"logging"`
	// Metrics contains Prometheus metrics exposure settings.
	Metrics MetricsConfig `mapstructure:"metrics"`
	// PubMed contains NCBI E-utilities API settings.
	PubMed PubMedConfig `mapstructure:"pubmed"`
	// Fetcher contains article detail retrieval settings.
	Fetcher FetcherConfig `mapstructure:"fetcher"`
	// AIQuery contains OpenRouter query generation settings.
	AIQuery AIQueryConfig `mapstructure:"aiquery"`
	// Jobs contains search job orchestration settings.
	Jobs JobsConfig `mapstructure:"jobs"`
	// Kafka contains Kafka publisher settings for search events.
	Kafka KafkaConfig `mapstructure:"kafka"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	// Host is the address to bind the server to (default: 0.0.0.0).
	Host string `mapstructure:"host"`
	// HTTPPort is the HTTP server port (default: 8080).
	HTTPPort int `mapstructure:"http_port"`
	// ReadTimeout is the maximum duration for reading request body.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout is the maximum duration for writing response.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds SQLite storage configuration.
type DatabaseConfig struct {
	// Path is the SQLite database file path (":memory:" for ephemeral storage).
	Path string `mapstructure:"path"`
	// BusyTimeout is how long SQLite waits on a locked database.
	BusyTimeout time.Duration `mapstructure:"busy_timeout"`
	// MigrationPath is the path to migration files (relative or absolute).
	MigrationPath string `mapstructure:"migration_path"`
	// MigrationAutoRun enables automatic migration on startup.
	MigrationAutoRun bool `mapstructure:"migration_auto_run"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level (trace, debug, info, warn, error, fatal, panic).
	Level string `mapstructure:"level"`
	// Format is the log format (json, console).
	Format string `mapstructure:"format"`
	// Output is the log output destination (stdout, stderr).
	Output string `mapstructure:"output"`
	// AddSource adds source file and line to log output.
	AddSource bool `mapstructure:"add_source"`
	// TimeFormat is the timestamp format.
	TimeFormat string `mapstructure:"time_format"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	// Enabled enables metrics collection and exposure.
	Enabled bool `mapstructure:"enabled"`
	// Path is the HTTP path for metrics endpoint.
	Path string `mapstructure:"path"`
	// Namespace is the prefix for all metric names.
	Namespace string `mapstructure:"namespace"`
}

// PubMedConfig holds NCBI E-utilities API configuration.
type PubMedConfig struct {
	// BaseURL is the E-utilities base URL.
	BaseURL string `mapstructure:"base_url"`
	// APIKey is the NCBI API key (loaded from PUBMEDSEARCH_PUBMED_API_KEY).
	// An API key raises the permitted request rate from 3 to 10 per second.
	APIKey string `mapstructure:"-"`
	// Timeout is the timeout for search API calls.
	Timeout time.Duration `mapstructure:"timeout"`
	// RateLimit is the maximum requests per second.
	RateLimit float64 `mapstructure:"rate_limit"`
	// BurstSize is the rate limiter burst size.
	BurstSize int `mapstructure:"burst_size"`
	// MainJournalsOnly restricts parsed articles to the curated journal list.
	MainJournalsOnly bool `mapstructure:"main_journals_only"`
}

// FetcherConfig holds article detail retrieval configuration.
type FetcherConfig struct {
	// BatchSize is the number of PMIDs fetched per EFetch call.
	BatchSize int `mapstructure:"batch_size"`
	// Timeout is the timeout for detail fetch calls.
	Timeout time.Duration `mapstructure:"timeout"`
	// InterBatchDelay is the pause between consecutive batches.
	InterBatchDelay time.Duration `mapstructure:"inter_batch_delay"`
	// RetryDelay is the initial delay before retrying a failed batch.
	RetryDelay time.Duration `mapstructure:"retry_delay"`
	// MaxAttempts is the number of attempts per batch.
	MaxAttempts int `mapstructure:"max_attempts"`
}

// AIQueryConfig holds OpenRouter query generation configuration.
type AIQueryConfig struct {
	// APIKey is the OpenRouter API key (loaded from PUBMEDSEARCH_AIQUERY_API_KEY).
	// When empty, query generation falls back to deterministic construction.
	APIKey string `mapstructure:"-"`
	// Model is the model identifier.
	Model string `mapstructure:"model"`
	// BaseURL is the API base URL.
	BaseURL string `mapstructure:"base_url"`
	// SiteURL is sent as the HTTP-Referer header for attribution.
	SiteURL string `mapstructure:"site_url"`
	// SiteName is sent as the X-Title header for attribution.
	SiteName string `mapstructure:"site_name"`
	// Temperature is the sampling temperature.
	Temperature float64 `mapstructure:"temperature"`
	// TopP is the nucleus sampling parameter.
	TopP float64 `mapstructure:"top_p"`
	// Timeout is the timeout for generation calls.
	Timeout time.Duration `mapstructure:"timeout"`
	// MaxRetries is the number of retries after a failed call.
	MaxRetries int `mapstructure:"max_retries"`
}

// JobsConfig holds search job orchestration configuration.
type JobsConfig struct {
	// Timeout is the maximum duration of a single search job. Zero
	// leaves jobs undeadlined; long fetches are bounded only by the
	// per-request transport timeouts.
	Timeout time.Duration `mapstructure:"timeout"`
	// RetentionTTL is how long finished jobs remain pollable before eviction.
	// Zero disables eviction.
	RetentionTTL time.Duration `mapstructure:"retention_ttl"`
	// CleanupInterval is how often expired jobs are evicted.
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

// KafkaConfig holds Kafka publisher settings for search events.
type KafkaConfig struct {
	// Enabled controls whether Kafka publishing is active.
	Enabled bool `mapstructure:"enabled"`
	// Brokers is the list of Kafka broker addresses.
	Brokers []string `mapstructure:"brokers"`
	// Topic is the Kafka topic to publish search events to.
	Topic string `mapstructure:"topic"`
	// BatchSize is the maximum number of messages to batch before sending.
	BatchSize int `mapstructure:"batch_size"`
	// BatchTimeout is the maximum time to wait for a batch to fill before sending.
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
}

// HTTPAddress returns the HTTP server address.
func (c *ServerConfig) HTTPAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.HTTPPort)
}

// DSN returns the SQLite connection string.
func (c *DatabaseConfig) DSN() string {
	if c.BusyTimeout > 0 {
		return fmt.Sprintf("file:%s?_busy_timeout=%d", c.Path, c.BusyTimeout.Milliseconds())
	}
	return "file:" + c.Path
}

// Load loads configuration from environment variables and config files.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("PUBMEDSEARCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/pubmed-search-service")

	if err := v.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK, we'll use env vars and defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Load secrets exclusively from environment variables.
	// These fields use mapstructure:"-" to prevent loading from config files.
	loadSecrets(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadSecrets populates secret fields exclusively from environment variables.
func loadSecrets(cfg *Config) {
	cfg.PubMed.APIKey = os.Getenv("PUBMEDSEARCH_PUBMED_API_KEY")
	cfg.AIQuery.APIKey = os.Getenv("PUBMEDSEARCH_AIQUERY_API_KEY")
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")

	// Database defaults
	v.SetDefault("database.path", "pubmed_search.db")
	v.SetDefault("database.busy_timeout", "5s")
	v.SetDefault("database.migration_path", "migrations")
	v.SetDefault("database.migration_auto_run", true)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("metrics.namespace", "pubmed_search")

	// PubMed defaults
	v.SetDefault("pubmed.base_url", "https://eutils.ncbi.nlm.nih.gov/entrez/eutils")
	v.SetDefault("pubmed.timeout", "30s")
	v.SetDefault("pubmed.rate_limit", 3.0) // NCBI allows max 3 req/sec without API key
	v.SetDefault("pubmed.burst_size", 3)
	v.SetDefault("pubmed.main_journals_only", true)

	// Fetcher defaults
	v.SetDefault("fetcher.batch_size", 1000)
	v.SetDefault("fetcher.timeout", "120s")
	v.SetDefault("fetcher.inter_batch_delay", "1s")
	v.SetDefault("fetcher.retry_delay", "2s")
	v.SetDefault("fetcher.max_attempts", 3)

	// AI query defaults
	// API keys are loaded exclusively from environment variables (see loadSecrets).
	v.SetDefault("aiquery.model", "anthropic/claude-4.5-sonnet")
	v.SetDefault("aiquery.base_url", "https://openrouter.ai/api/v1")
	v.SetDefault("aiquery.site_url", "")
	v.SetDefault("aiquery.site_name", "")
	v.SetDefault("aiquery.temperature", 0.4)
	v.SetDefault("aiquery.top_p", 0.8)
	v.SetDefault("aiquery.timeout", "60s")
	v.SetDefault("aiquery.max_retries", 2)

	// Jobs defaults
	v.SetDefault("jobs.timeout", "0")
	v.SetDefault("jobs.retention_ttl", "1h")
	v.SetDefault("jobs.cleanup_interval", "5m")

	// Kafka defaults
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "events.pubmed_search.completed")
	v.SetDefault("kafka.batch_size", 100)
	v.SetDefault("kafka.batch_timeout", "10ms")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.Server.HTTPPort)
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}

	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	if c.PubMed.BaseURL == "" {
		return fmt.Errorf("pubmed base URL is required")
	}
	if c.PubMed.RateLimit <= 0 {
		return fmt.Errorf("pubmed rate limit must be positive")
	}

	if c.Fetcher.BatchSize <= 0 {
		return fmt.Errorf("fetcher batch size must be positive")
	}
	if c.Fetcher.MaxAttempts <= 0 {
		return fmt.Errorf("fetcher max attempts must be positive")
	}

	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka brokers are required when kafka is enabled")
	}

	return nil
}
