package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for a fetch job
type Config struct {
	// Rate limiting configuration
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	// Retry and backoff configuration
	Retry RetryConfig `yaml:"retry" json:"retry"`

	// Session persistence configuration
	Session SessionConfig `yaml:"session" json:"session"`

	// Batch job settings
	Job JobConfig `yaml:"job" json:"job"`

	// Output settings
	Output OutputConfig `yaml:"output" json:"output"`

	// Optional shared rate-limit state via Redis
	Redis RedisConfig `yaml:"redis" json:"redis"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// RateLimitConfig holds sliding-window and pacing configuration.
// Delays are in seconds; a window of zero or less disables limiting.
type RateLimitConfig struct {
	MinDelay             float64 `yaml:"min_delay" json:"min_delay"`
	MaxDelay             float64 `yaml:"max_delay" json:"max_delay"`
	MaxRequestsPerWindow int     `yaml:"max_requests_per_window" json:"max_requests_per_window"`
	WindowSeconds        int     `yaml:"window_seconds" json:"window_seconds"`
}

// RetryConfig holds retry and backoff configuration. Backoff values are in
// seconds. Rate-limit backoff is deliberately separate from the generic
// transient backoff: throttle responses need much longer cooldowns.
type RetryConfig struct {
	Attempts             int     `yaml:"retry_attempts" json:"retry_attempts"`
	BaseBackoff          float64 `yaml:"base_backoff" json:"base_backoff"`
	BackoffMultiplier    float64 `yaml:"backoff_multiplier" json:"backoff_multiplier"`
	RateLimitBaseBackoff float64 `yaml:"rate_limit_base_backoff" json:"rate_limit_base_backoff"`
	RateLimitBackoffCap  float64 `yaml:"rate_limit_backoff_cap" json:"rate_limit_backoff_cap"`
}

// SessionConfig holds session persistence configuration
type SessionConfig struct {
	// Store selects the backend: "file", "encrypted", or "keyring"
	Store string `yaml:"store" json:"store"`
	// File is the session blob path for the file-backed stores
	File string `yaml:"file" json:"file"`
	// Account identifies the session owner (one persisted blob per account)
	Account string `yaml:"account" json:"account"`
}

// JobConfig holds batch execution settings
type JobConfig struct {
	// Concurrency is the number of fetch workers. Workers sharing one
	// session identity still execute serially through the orchestrator.
	Concurrency int `yaml:"concurrency" json:"concurrency"`
	// ReportInterval logs a health report every N processed targets (0 disables)
	ReportInterval int `yaml:"report_interval" json:"report_interval"`
}

// OutputConfig holds result storage configuration
type OutputConfig struct {
	BaseDirectory string `yaml:"base_directory" json:"base_directory"`
}

// RedisConfig enables sharing rate-limit slots across processes
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Addr     string `yaml:"addr" json:"addr"`
	Password string `yaml:"password" json:"password"`
	DB       int    `yaml:"db" json:"db"`
	Key      string `yaml:"key" json:"key"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		RateLimit: RateLimitConfig{
			MinDelay:             5,
			MaxDelay:             10,
			MaxRequestsPerWindow: 100,
			WindowSeconds:        3600,
		},
		Retry: RetryConfig{
			Attempts:             3,
			BaseBackoff:          2,
			BackoffMultiplier:    2,
			RateLimitBaseBackoff: 30,
			RateLimitBackoffCap:  300,
		},
		Session: SessionConfig{
			Store: "file",
			File:  "session.json",
		},
		Job: JobConfig{
			Concurrency:    1,
			ReportInterval: 10,
		},
		Output: OutputConfig{
			BaseDirectory: "./results",
		},
		Redis: RedisConfig{
			Enabled: false,
			Addr:    "localhost:6379",
			Key:     "fetchkit:slots",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// MinDelayDuration returns the minimum inter-request delay
func (r *RateLimitConfig) MinDelayDuration() time.Duration {
	return time.Duration(r.MinDelay * float64(time.Second))
}

// MaxDelayDuration returns the maximum inter-request delay
func (r *RateLimitConfig) MaxDelayDuration() time.Duration {
	return time.Duration(r.MaxDelay * float64(time.Second))
}

// Window returns the sliding window duration
func (r *RateLimitConfig) Window() time.Duration {
	return time.Duration(r.WindowSeconds) * time.Second
}

// BaseBackoffDuration returns the generic transient backoff base
func (r *RetryConfig) BaseBackoffDuration() time.Duration {
	return time.Duration(r.BaseBackoff * float64(time.Second))
}

// RateLimitBaseBackoffDuration returns the rate-limit backoff base
func (r *RetryConfig) RateLimitBaseBackoffDuration() time.Duration {
	return time.Duration(r.RateLimitBaseBackoff * float64(time.Second))
}

// RateLimitBackoffCapDuration returns the rate-limit backoff ceiling
func (r *RetryConfig) RateLimitBackoffCapDuration() time.Duration {
	return time.Duration(r.RateLimitBackoffCap * float64(time.Second))
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("FETCHKIT_MIN_DELAY"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 {
			c.RateLimit.MinDelay = f
		}
	}
	if v := os.Getenv("FETCHKIT_MAX_DELAY"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 {
			c.RateLimit.MaxDelay = f
		}
	}
	if v := os.Getenv("FETCHKIT_MAX_REQUESTS_PER_WINDOW"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.RateLimit.MaxRequestsPerWindow = n
		}
	}
	if v := os.Getenv("FETCHKIT_WINDOW_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.RateLimit.WindowSeconds = n
		}
	}
	if v := os.Getenv("FETCHKIT_RETRY_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Retry.Attempts = n
		}
	}
	if v := os.Getenv("FETCHKIT_SESSION_FILE"); v != "" {
		c.Session.File = v
	}
	if v := os.Getenv("FETCHKIT_SESSION_STORE"); v != "" {
		c.Session.Store = v
	}
	if v := os.Getenv("FETCHKIT_ACCOUNT"); v != "" {
		c.Session.Account = v
	}
	if v := os.Getenv("FETCHKIT_OUTPUT_DIR"); v != "" {
		c.Output.BaseDirectory = v
	}
	if v := os.Getenv("FETCHKIT_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Job.Concurrency = n
		}
	}
	if v := os.Getenv("FETCHKIT_REDIS_ADDR"); v != "" {
		c.Redis.Enabled = true
		c.Redis.Addr = v
	}
	if v := os.Getenv("FETCHKIT_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}

	return nil
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	locations := []string{
		".fetchkit.yaml",
		".fetchkit.yml",
		filepath.Join(os.Getenv("HOME"), ".config", "fetchkit", "config.yaml"),
		filepath.Join(os.Getenv("HOME"), ".config", "fetchkit", "config.yml"),
		filepath.Join(os.Getenv("HOME"), ".fetchkit.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.RateLimit.MinDelay < 0 {
		errs = append(errs, errors.New("min delay cannot be negative"))
	}
	if c.RateLimit.MaxDelay < c.RateLimit.MinDelay {
		errs = append(errs, errors.New("max delay must not be less than min delay"))
	}
	// A window of zero or less is allowed: it means no limiting.

	if c.Retry.Attempts < 1 {
		errs = append(errs, errors.New("retry attempts must be at least 1"))
	}
	if c.Retry.BaseBackoff < 0 {
		errs = append(errs, errors.New("base backoff cannot be negative"))
	}
	if c.Retry.BackoffMultiplier < 1 {
		errs = append(errs, errors.New("backoff multiplier must be at least 1"))
	}
	if c.Retry.RateLimitBackoffCap < c.Retry.RateLimitBaseBackoff {
		errs = append(errs, errors.New("rate limit backoff cap must not be less than its base"))
	}

	switch strings.ToLower(c.Session.Store) {
	case "file", "encrypted", "keyring":
	default:
		errs = append(errs, errors.New("session store must be one of: file, encrypted, keyring"))
	}
	if c.Session.Store != "keyring" && c.Session.File == "" {
		errs = append(errs, errors.New("session file is required for file-backed stores"))
	}

	if c.Job.Concurrency < 1 {
		errs = append(errs, errors.New("concurrency must be at least 1"))
	}
	if c.Job.ReportInterval < 0 {
		errs = append(errs, errors.New("report interval cannot be negative"))
	}

	if c.Output.BaseDirectory == "" {
		errs = append(errs, errors.New("output directory is required"))
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, errors.New("redis address is required when redis is enabled"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Load loads configuration from all sources with proper precedence.
// Precedence order: Environment variables > .env file > Config file > Defaults
func Load(configPath string) (*Config, error) {
	// Try to load .env files (don't fail if they don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".fetchkit.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	// Override with environment variables (includes values from .env)
	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
