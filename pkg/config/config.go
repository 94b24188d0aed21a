// Package config loads Pure API client settings from a YAML file and the
// environment.
//
// Sources, lowest priority first:
//
//  1. Defaults (DefaultConfig)
//  2. The YAML file passed to Load, if any
//  3. .env files: ENV_FILE if set, otherwise .env.local then .env
//  4. Process environment variables named in the env struct tags
//
// Values in .env files never replace variables already set in the process
// environment.
//
// Example YAML:
//
//	pure:
//	  domain: experts.example.edu
//	  version: "524"
//	retry:
//	  max_attempts: 5
//	redis:
//	  url: redis://localhost:6379/0
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/pure-api-client/pkg/client"
	"github.com/Sternrassler/pure-api-client/pkg/logging"
	"github.com/Sternrassler/pure-api-client/pkg/pagination"
	"github.com/Sternrassler/pure-api-client/pkg/pureapi"
	"github.com/Sternrassler/pure-api-client/pkg/ratelimit"
	"github.com/redis/go-redis/v9"
)

// ErrNoRedis is returned by RedisOptions when no Redis URL is configured.
var ErrNoRedis = errors.New("no redis url configured")

// Config is the complete client configuration.
type Config struct {
	Pure       PureConfig       `yaml:"pure"`
	Retry      RetryConfig      `yaml:"retry"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	Breaker    BreakerConfig    `yaml:"breaker"`
	Pagination PaginationConfig `yaml:"pagination"`
	Redis      RedisConfig      `yaml:"redis"`
	Log        LogConfig        `yaml:"log"`
}

// PureConfig addresses one Pure instance.
type PureConfig struct {
	Domain   string        `yaml:"domain" env:"PURE_API_DOMAIN"`
	Key      string        `yaml:"key" env:"PURE_API_KEY"`
	Version  string        `yaml:"version" env:"PURE_API_VERSION"`
	Protocol string        `yaml:"protocol" env:"PURE_API_PROTOCOL"`
	Path     string        `yaml:"path" env:"PURE_API_PATH"`
	Timeout  time.Duration `yaml:"timeout" env:"PURE_API_TIMEOUT"`
}

// RetryConfig controls request retries. MaxAttempts 0 retries forever.
type RetryConfig struct {
	MaxAttempts    int           `yaml:"max_attempts" env:"PURE_API_RETRY_MAX_ATTEMPTS"`
	InitialBackoff time.Duration `yaml:"initial_backoff" env:"PURE_API_RETRY_INITIAL_BACKOFF"`
	MaxBackoff     time.Duration `yaml:"max_backoff" env:"PURE_API_RETRY_MAX_BACKOFF"`
}

// RateLimitConfig throttles outgoing requests. 0 requests per second
// disables client-side throttling.
type RateLimitConfig struct {
	RequestsPerSecond float64       `yaml:"requests_per_second" env:"PURE_API_RATE_LIMIT"`
	Burst             int           `yaml:"burst" env:"PURE_API_RATE_BURST"`
	MaxRetryAfter     time.Duration `yaml:"max_retry_after" env:"PURE_API_MAX_RETRY_AFTER"`
}

// BreakerConfig enables the circuit breaker.
type BreakerConfig struct {
	Enabled             bool          `yaml:"enabled" env:"PURE_API_BREAKER"`
	ConsecutiveFailures uint32        `yaml:"consecutive_failures" env:"PURE_API_BREAKER_FAILURES"`
	Timeout             time.Duration `yaml:"timeout" env:"PURE_API_BREAKER_TIMEOUT"`
}

// PaginationConfig sets window and group sizes.
type PaginationConfig struct {
	WindowSize     int `yaml:"window_size" env:"PURE_API_WINDOW_SIZE"`
	ItemsPerGroup  int `yaml:"items_per_group" env:"PURE_API_ITEMS_PER_GROUP"`
	MaxConcurrency int `yaml:"max_concurrency" env:"PURE_API_MAX_CONCURRENCY"`
}

// RedisConfig locates the checkpoint store.
type RedisConfig struct {
	URL           string        `yaml:"url" env:"REDIS_URL"`
	CheckpointTTL time.Duration `yaml:"checkpoint_ttl" env:"PURE_API_CHECKPOINT_TTL"`
}

// LogConfig configures zerolog.
type LogConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`
	Pretty bool   `yaml:"pretty" env:"LOG_PRETTY"`
}

// DefaultConfig returns the defaults of every setting.
func DefaultConfig() Config {
	retry := client.DefaultRetryConfig()
	rl := ratelimit.DefaultConfig()
	breaker := client.DefaultBreakerConfig()
	batch := pagination.DefaultBatchConfig()

	return Config{
		Pure: PureConfig{
			Protocol: client.DefaultProtocol,
			Path:     client.DefaultBasePath,
			Timeout:  client.DefaultTimeout,
		},
		Retry: RetryConfig{
			MaxAttempts:    retry.MaxAttempts,
			InitialBackoff: retry.InitialBackoff,
			MaxBackoff:     retry.MaxBackoff,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: rl.RequestsPerSecond,
			Burst:             rl.Burst,
			MaxRetryAfter:     rl.MaxRetryAfter,
		},
		Breaker: BreakerConfig{
			ConsecutiveFailures: breaker.ConsecutiveFailures,
			Timeout:             breaker.Timeout,
		},
		Pagination: PaginationConfig{
			WindowSize:     pagination.DefaultWindowSize,
			ItemsPerGroup:  pagination.DefaultItemsPerGroup,
			MaxConcurrency: batch.MaxConcurrency,
		},
		Log: LogConfig{
			Level: string(logging.LevelInfo),
		},
	}
}

// Validate checks values that cannot be repaired by defaults. Domain and key
// are checked when a client is created, since some commands need neither.
func (c *Config) Validate() error {
	if c.Pure.Protocol != "http" && c.Pure.Protocol != "https" {
		return fmt.Errorf("pure.protocol: %w (got %q)", client.ErrInvalidProtocol, c.Pure.Protocol)
	}
	if c.Retry.MaxAttempts < 0 {
		return fmt.Errorf("retry.max_attempts must not be negative (got %d)", c.Retry.MaxAttempts)
	}
	if c.RateLimit.RequestsPerSecond < 0 {
		return fmt.Errorf("rate_limit.requests_per_second must not be negative (got %v)", c.RateLimit.RequestsPerSecond)
	}
	if c.Pagination.WindowSize < 0 || c.Pagination.ItemsPerGroup < 0 {
		return fmt.Errorf("pagination sizes must not be negative")
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}

// Client returns the request executor configuration.
func (c *Config) Client() client.Config {
	cfg := client.DefaultConfig(c.Pure.Domain, c.Pure.Key)
	cfg.Version = c.Pure.Version
	cfg.Protocol = c.Pure.Protocol
	cfg.BasePath = c.Pure.Path
	cfg.Timeout = c.Pure.Timeout

	cfg.Retry.MaxAttempts = c.Retry.MaxAttempts
	if c.Retry.InitialBackoff > 0 {
		cfg.Retry.InitialBackoff = c.Retry.InitialBackoff
	}
	if c.Retry.MaxBackoff > 0 {
		cfg.Retry.MaxBackoff = c.Retry.MaxBackoff
	}

	cfg.RateLimit.RequestsPerSecond = c.RateLimit.RequestsPerSecond
	if c.RateLimit.Burst > 0 {
		cfg.RateLimit.Burst = c.RateLimit.Burst
	}
	if c.RateLimit.MaxRetryAfter > 0 {
		cfg.RateLimit.MaxRetryAfter = c.RateLimit.MaxRetryAfter
	}

	if c.Breaker.Enabled {
		breaker := client.DefaultBreakerConfig()
		if c.Breaker.ConsecutiveFailures > 0 {
			breaker.ConsecutiveFailures = c.Breaker.ConsecutiveFailures
		}
		if c.Breaker.Timeout > 0 {
			breaker.Timeout = c.Breaker.Timeout
		}
		cfg.Breaker = &breaker
	}
	return cfg
}

// PureAPI returns the façade configuration without a checkpoint store.
func (c *Config) PureAPI() pureapi.Config {
	cfg := pureapi.DefaultConfig(c.Pure.Domain, c.Pure.Key)
	cfg.Client = c.Client()
	cfg.Pagination = pagination.Config{
		WindowSize:    c.Pagination.WindowSize,
		ItemsPerGroup: c.Pagination.ItemsPerGroup,
	}
	if c.Pagination.MaxConcurrency > 0 {
		cfg.Batch.MaxConcurrency = c.Pagination.MaxConcurrency
	}
	return cfg
}

// Logging returns the logger configuration.
func (c *Config) Logging() logging.Config {
	cfg := logging.DefaultConfig()
	if level, err := logging.ParseLevel(c.Log.Level); err == nil {
		cfg.Level = level
	}
	cfg.Pretty = c.Log.Pretty
	return cfg
}

// RedisOptions parses the Redis URL.
func (c *Config) RedisOptions() (*redis.Options, error) {
	if c.Redis.URL == "" {
		return nil, ErrNoRedis
	}
	opts, err := redis.ParseURL(c.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("redis.url: %w", err)
	}
	return opts, nil
}
