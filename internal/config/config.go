// Package config provides the configuration value object for the cutover
// pipeline. All tunables live in one explicit Config passed into the
// orchestrator at construction; nothing reads environment variables at
// run time.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"
)

// Secret wraps a sensitive string to prevent accidental logging or marshalling.
type Secret string

// String implements fmt.Stringer, returning a redacted placeholder.
func (s Secret) String() string { return "[REDACTED]" }

// GoString implements fmt.GoStringer, returning a redacted placeholder.
func (s Secret) GoString() string { return "[REDACTED]" }

// MarshalText implements encoding.TextMarshaler, returning a redacted placeholder.
func (s Secret) MarshalText() ([]byte, error) { return []byte("[REDACTED]"), nil }

// Value returns the underlying secret string.
func (s Secret) Value() string { return string(s) }

// Defaults for every tunable. Flags and environment may override them,
// but the running pipeline only ever sees the resolved Config.
const (
	DefaultBatchSize      = 50
	DefaultMaxRetries     = 3
	DefaultRetryDelayBase = 2 * time.Second
	DefaultAPITimeout     = 300 * time.Second
	DefaultProbeTimeout   = 10 * time.Second
	DefaultMaxFileSize    = int64(5) << 30 // 5 GiB
	DefaultChunkSize      = 4096
	DefaultWorkers        = 4
)

// Config holds all pipeline configuration values.
type Config struct {
	// Source stores.
	DatabaseURL Secret // PostgreSQL holding file metadata and migration state
	GraphURI    string // Neo4j bolt URI for lineage export
	GraphUser   string
	GraphPass   Secret

	// Destination.
	APIURL      string // object-store HTTP API base URL
	APIToken    Secret // bearer token supplied at startup
	LineagePath string // destination SQLite database for lineage edges

	// Batch behaviour.
	BatchSize      int
	MaxRetries     int
	RetryDelayBase time.Duration
	Workers        int

	// Transfer limits.
	APITimeout   time.Duration
	ProbeTimeout time.Duration
	MaxFileSize  int64
	ChunkSize    int

	LogLevel string
}

// Default returns a Config carrying only the enumerated defaults.
func Default() Config {
	return Config{
		APIURL:         "http://localhost:8787",
		LineagePath:    "lineage.db",
		BatchSize:      DefaultBatchSize,
		MaxRetries:     DefaultMaxRetries,
		RetryDelayBase: DefaultRetryDelayBase,
		Workers:        DefaultWorkers,
		APITimeout:     DefaultAPITimeout,
		ProbeTimeout:   DefaultProbeTimeout,
		MaxFileSize:    DefaultMaxFileSize,
		ChunkSize:      DefaultChunkSize,
		LogLevel:       "info",
	}
}

// Load reads configuration from environment variables on top of the
// defaults and validates the result.
func Load() (Config, error) {
	cfg, err := LoadEnv()
	if err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// LoadEnv reads configuration from environment variables without
// validating, for callers that overlay further sources first.
func LoadEnv() (Config, error) {
	cfg := Default()
	cfg.DatabaseURL = Secret(envOrDefault("DATABASE_URL", ""))
	cfg.GraphURI = envOrDefault("GRAPH_URI", "")
	cfg.GraphUser = envOrDefault("GRAPH_USER", "neo4j")
	cfg.GraphPass = Secret(envOrDefault("GRAPH_PASSWORD", ""))
	cfg.APIURL = envOrDefault("CUTOVER_API_URL", cfg.APIURL)
	cfg.APIToken = Secret(envOrDefault("CUTOVER_API_TOKEN", ""))
	cfg.LineagePath = envOrDefault("CUTOVER_LINEAGE_PATH", cfg.LineagePath)
	cfg.LogLevel = envOrDefault("LOG_LEVEL", cfg.LogLevel)

	var err error
	if cfg.BatchSize, err = envInt("CUTOVER_BATCH_SIZE", cfg.BatchSize); err != nil {
		return cfg, err
	}
	if cfg.MaxRetries, err = envInt("CUTOVER_MAX_RETRIES", cfg.MaxRetries); err != nil {
		return cfg, err
	}
	if cfg.Workers, err = envInt("CUTOVER_WORKERS", cfg.Workers); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Validate checks the resolved configuration for internal consistency.
func (c Config) Validate() error {
	if err := c.validateDatabase(); err != nil {
		return err
	}

	if err := c.validateAPI(); err != nil {
		return err
	}

	return c.validateBatch()
}

func (c Config) validateDatabase() error {
	if c.DatabaseURL.Value() == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	dbURL, err := url.Parse(c.DatabaseURL.Value())
	if err != nil {
		return fmt.Errorf("DATABASE_URL is not a valid URL: %w", err)
	}

	if dbURL.Scheme != "postgres" && dbURL.Scheme != "postgresql" {
		return fmt.Errorf("DATABASE_URL scheme must be postgres:// or postgresql://")
	}

	if dbURL.Hostname() == "" {
		return fmt.Errorf("DATABASE_URL must include a host")
	}

	return nil
}

func (c Config) validateAPI() error {
	apiURL, err := url.ParseRequestURI(c.APIURL)
	if err != nil {
		return fmt.Errorf("destination API URL is not a valid URL: %w", err)
	}

	if apiURL.Scheme != "http" && apiURL.Scheme != "https" {
		return fmt.Errorf("destination API URL scheme must be http or https")
	}

	return nil
}

func (c Config) validateBatch() error {
	if c.BatchSize < 1 {
		return fmt.Errorf("batch size must be at least 1, got %d", c.BatchSize)
	}

	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries must not be negative, got %d", c.MaxRetries)
	}

	if c.Workers < 1 || c.Workers > 64 {
		return fmt.Errorf("workers must be between 1 and 64, got %d", c.Workers)
	}

	if c.ChunkSize < 1 {
		return fmt.Errorf("chunk size must be at least 1, got %d", c.ChunkSize)
	}

	if c.MaxFileSize < 1 {
		return fmt.Errorf("max file size must be positive, got %d", c.MaxFileSize)
	}

	if c.RetryDelayBase <= 0 {
		return fmt.Errorf("retry delay base must be positive, got %s", c.RetryDelayBase)
	}

	return nil
}

// RetryDelay returns the exponential backoff delay before the given attempt
// is retried: base doubling per completed attempt.
func (c Config) RetryDelay(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}

	return c.RetryDelayBase << (attempts - 1)
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}

	return n, nil
}
