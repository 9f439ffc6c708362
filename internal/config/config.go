// Package config provides configuration management for goalmatch.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

const (
	// DefaultWorkerPort is the default HTTP port for the worker service.
	DefaultWorkerPort = 38111

	// DefaultAlpha is the default similarity threshold for matching.
	DefaultAlpha = 0.9

	// DefaultBatchSize bounds how many goals are compared together.
	DefaultBatchSize = 500

	// DefaultEmbedTimeoutSeconds bounds a single embedding call so one
	// slow call cannot stall a whole batch.
	DefaultEmbedTimeoutSeconds = 30

	// DefaultEmbedConcurrency is how many embedding calls run in parallel
	// within a batch.
	DefaultEmbedConcurrency = 8

	// DefaultSweepIntervalHours is how often the cache sweep runs.
	DefaultSweepIntervalHours = 24
)

// Config holds the application configuration.
type Config struct {
	// Worker settings
	WorkerPort int `json:"worker_port"`

	// Database settings
	DatabaseDSN string `json:"database_dsn"`
	MaxConns    int    `json:"max_conns"`

	// Embedding provider settings
	EmbeddingProvider   string `json:"embedding_provider"` // e.g. "openai"
	EmbeddingBaseURL    string `json:"embedding_base_url"`
	EmbeddingAPIKey     string `json:"embedding_api_key"`
	EmbeddingModelName  string `json:"embedding_model_name"`
	EmbeddingDimensions int    `json:"embedding_dimensions"`
	EmbedTimeoutSeconds int    `json:"embed_timeout_seconds"`
	EmbedConcurrency    int    `json:"embed_concurrency"`

	// Matching settings
	Alpha     float64 `json:"alpha"`
	BatchSize int     `json:"batch_size"`

	// Cache sweep settings
	SweepEnabled       bool `json:"sweep_enabled"`
	SweepIntervalHours int  `json:"sweep_interval_hours"`
}

var (
	globalConfig *Config
	configOnce   sync.Once
)

// DataDir returns the data directory path (~/.goalmatch).
func DataDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".goalmatch")
}

// SettingsPath returns the settings file path.
func SettingsPath() string {
	return filepath.Join(DataDir(), "settings.json")
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		WorkerPort:          DefaultWorkerPort,
		MaxConns:            10,
		EmbeddingProvider:   "openai",
		EmbedTimeoutSeconds: DefaultEmbedTimeoutSeconds,
		EmbedConcurrency:    DefaultEmbedConcurrency,
		Alpha:               DefaultAlpha,
		BatchSize:           DefaultBatchSize,
		SweepEnabled:        true,
		SweepIntervalHours:  DefaultSweepIntervalHours,
	}
}

// Load loads configuration from the settings file, merging with defaults,
// then applies environment variable overrides.
func Load() (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(SettingsPath())
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err == nil {
		// Settings file values override defaults; unknown keys are ignored.
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

// applyEnv overlays GOALMATCH_* environment variables onto the config.
func applyEnv(cfg *Config) {
	if v := os.Getenv("GOALMATCH_WORKER_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 {
			cfg.WorkerPort = p
		}
	}
	if v := os.Getenv("GOALMATCH_DATABASE_DSN"); v != "" {
		cfg.DatabaseDSN = v
	}
	if v := os.Getenv("GOALMATCH_MAX_CONNS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxConns = n
		}
	}
	if v := os.Getenv("GOALMATCH_EMBEDDING_PROVIDER"); v != "" {
		cfg.EmbeddingProvider = v
	}
	if v := os.Getenv("GOALMATCH_EMBEDDING_BASE_URL"); v != "" {
		cfg.EmbeddingBaseURL = v
	}
	if v := os.Getenv("GOALMATCH_EMBEDDING_API_KEY"); v != "" {
		cfg.EmbeddingAPIKey = v
	}
	if v := os.Getenv("GOALMATCH_EMBEDDING_MODEL"); v != "" {
		cfg.EmbeddingModelName = v
	}
	if v := os.Getenv("GOALMATCH_EMBEDDING_DIMENSIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.EmbeddingDimensions = n
		}
	}
	if v := os.Getenv("GOALMATCH_EMBED_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.EmbedTimeoutSeconds = n
		}
	}
	if v := os.Getenv("GOALMATCH_EMBED_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.EmbedConcurrency = n
		}
	}
	if v := os.Getenv("GOALMATCH_ALPHA"); v != "" {
		if a, err := strconv.ParseFloat(v, 64); err == nil && a > 0 && a <= 1 {
			cfg.Alpha = a
		}
	}
	if v := os.Getenv("GOALMATCH_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.BatchSize = n
		}
	}
	if v := os.Getenv("GOALMATCH_SWEEP_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.SweepEnabled = b
		}
	}
	if v := os.Getenv("GOALMATCH_SWEEP_INTERVAL_HOURS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.SweepIntervalHours = n
		}
	}
}

// Get returns the global configuration, loading it if necessary.
func Get() *Config {
	configOnce.Do(func() {
		var err error
		globalConfig, err = Load()
		if err != nil {
			globalConfig = Default()
			applyEnv(globalConfig)
		}
	})
	return globalConfig
}

// Set replaces the global configuration. Intended for tests.
func Set(cfg *Config) {
	configOnce.Do(func() {})
	globalConfig = cfg
}
