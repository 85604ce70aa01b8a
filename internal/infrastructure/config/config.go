package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Executor  ExecutorConfig
	Fetch     FetchConfig
	Cache     CacheConfig
	Inference InferenceConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8000"`
	Host string `envconfig:"HOST" default:"127.0.0.1"`
}

// ExecutorConfig holds worker pool and task bookkeeping settings.
type ExecutorConfig struct {
	Workers   int           `envconfig:"EXECUTOR_WORKERS" default:"4"`
	QueueSize int           `envconfig:"EXECUTOR_QUEUE_SIZE" default:"64"`
	Retention time.Duration `envconfig:"EXECUTOR_RETENTION" default:"10m"`
}

// FetchConfig holds network retrieval defaults applied to tasks that do not
// carry their own retry policy or timeout.
type FetchConfig struct {
	Timeout           time.Duration `envconfig:"FETCH_TIMEOUT" default:"10s"`
	MaxAttempts       int           `envconfig:"FETCH_MAX_ATTEMPTS" default:"3"`
	BaseBackoff       time.Duration `envconfig:"FETCH_BASE_BACKOFF" default:"1s"`
	JitterFraction    float64       `envconfig:"FETCH_JITTER" default:"0.1"`
	TickInterval      time.Duration `envconfig:"FETCH_TICK_INTERVAL" default:"10ms"`
	MaxBodyBytes      int64         `envconfig:"FETCH_MAX_BODY_BYTES" default:"33554432"`
	RequestsPerSecond float64       `envconfig:"FETCH_RPS" default:"0"`
	UserAgent         string        `envconfig:"FETCH_USER_AGENT" default:"PageTools/1.0"`
}

// CacheConfig holds memo cache settings.
type CacheConfig struct {
	Capacity  int    `envconfig:"CACHE_CAPACITY" default:"10"`
	Algorithm string `envconfig:"CACHE_HASH" default:"sha256"`
}

// InferenceConfig holds the inference service connection settings.
type InferenceConfig struct {
	URL               string        `envconfig:"INFERENCE_URL" default:"https://api-inference.huggingface.co"`
	Token             string        `envconfig:"INFERENCE_TOKEN"`
	Timeout           time.Duration `envconfig:"INFERENCE_TIMEOUT" default:"60s"`
	RequestsPerSecond float64       `envconfig:"INFERENCE_RPS" default:"0"`
	OperationsFile    string        `envconfig:"INFERENCE_OPERATIONS_FILE"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds per-IP API rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"50"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"100"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Validate rejects settings the executor cannot run with.
func (c *Config) Validate() error {
	if c.Executor.Workers < 1 {
		return fmt.Errorf("EXECUTOR_WORKERS must be at least 1")
	}
	if c.Executor.QueueSize < 1 {
		return fmt.Errorf("EXECUTOR_QUEUE_SIZE must be at least 1")
	}
	if c.Fetch.MaxAttempts < 1 {
		return fmt.Errorf("FETCH_MAX_ATTEMPTS must be at least 1")
	}
	if c.Fetch.BaseBackoff <= 0 {
		return fmt.Errorf("FETCH_BASE_BACKOFF must be positive")
	}
	if c.Fetch.JitterFraction < 0 || c.Fetch.JitterFraction >= 1 {
		return fmt.Errorf("FETCH_JITTER must be in [0,1)")
	}
	if c.Fetch.Timeout <= 0 {
		return fmt.Errorf("FETCH_TIMEOUT must be positive")
	}
	if c.Cache.Capacity < 1 {
		return fmt.Errorf("CACHE_CAPACITY must be at least 1")
	}
	switch c.Cache.Algorithm {
	case "sha256", "blake2b":
	default:
		return fmt.Errorf("CACHE_HASH must be sha256 or blake2b, got %q", c.Cache.Algorithm)
	}
	return nil
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8000",
			Host: "127.0.0.1",
		},
		Executor: ExecutorConfig{
			Workers:   4,
			QueueSize: 64,
			Retention: 10 * time.Minute,
		},
		Fetch: FetchConfig{
			Timeout:        10 * time.Second,
			MaxAttempts:    3,
			BaseBackoff:    time.Second,
			JitterFraction: 0.1,
			TickInterval:   10 * time.Millisecond,
			MaxBodyBytes:   32 << 20,
			UserAgent:      "PageTools/1.0",
		},
		Cache: CacheConfig{
			Capacity:  10,
			Algorithm: "sha256",
		},
		Inference: InferenceConfig{
			URL:     "https://api-inference.huggingface.co",
			Timeout: 60 * time.Second,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 50,
			Burst:             100,
			Enabled:           true,
		},
	}
}
