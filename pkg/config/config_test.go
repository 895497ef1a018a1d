package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 5.0, cfg.RateLimit.MinDelay)
	assert.Equal(t, 10.0, cfg.RateLimit.MaxDelay)
	assert.Equal(t, 100, cfg.RateLimit.MaxRequestsPerWindow)
	assert.Equal(t, 3600, cfg.RateLimit.WindowSeconds)

	assert.Equal(t, 3, cfg.Retry.Attempts)
	assert.Equal(t, 2.0, cfg.Retry.BaseBackoff)
	assert.Equal(t, 2.0, cfg.Retry.BackoffMultiplier)
	assert.Equal(t, 30.0, cfg.Retry.RateLimitBaseBackoff)
	assert.Equal(t, 300.0, cfg.Retry.RateLimitBackoffCap)

	assert.Equal(t, "file", cfg.Session.Store)
	assert.Equal(t, 1, cfg.Job.Concurrency)

	require.NoError(t, cfg.Validate())
}

func TestDurationHelpers(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 5*time.Second, cfg.RateLimit.MinDelayDuration())
	assert.Equal(t, 10*time.Second, cfg.RateLimit.MaxDelayDuration())
	assert.Equal(t, time.Hour, cfg.RateLimit.Window())
	assert.Equal(t, 2*time.Second, cfg.Retry.BaseBackoffDuration())
	assert.Equal(t, 30*time.Second, cfg.Retry.RateLimitBaseBackoffDuration())
	assert.Equal(t, 5*time.Minute, cfg.Retry.RateLimitBackoffCapDuration())

	// Fractional second delays survive the conversion
	cfg.RateLimit.MinDelay = 0.5
	assert.Equal(t, 500*time.Millisecond, cfg.RateLimit.MinDelayDuration())
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := `
rate_limit:
  min_delay: 1
  max_delay: 2
  max_requests_per_window: 50
  window_seconds: 600
retry:
  retry_attempts: 5
  base_backoff: 1
  backoff_multiplier: 3
  rate_limit_base_backoff: 60
  rate_limit_backoff_cap: 600
session:
  store: encrypted
  file: /tmp/session.enc
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromFile(path))

	assert.Equal(t, 1.0, cfg.RateLimit.MinDelay)
	assert.Equal(t, 50, cfg.RateLimit.MaxRequestsPerWindow)
	assert.Equal(t, 600, cfg.RateLimit.WindowSeconds)
	assert.Equal(t, 5, cfg.Retry.Attempts)
	assert.Equal(t, 3.0, cfg.Retry.BackoffMultiplier)
	assert.Equal(t, 60.0, cfg.Retry.RateLimitBaseBackoff)
	assert.Equal(t, "encrypted", cfg.Session.Store)

	// Unset sections keep their defaults
	assert.Equal(t, 1, cfg.Job.Concurrency)
	assert.Equal(t, "./results", cfg.Output.BaseDirectory)
}

func TestLoadFromFileMissing(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("FETCHKIT_MIN_DELAY", "0.1")
	t.Setenv("FETCHKIT_MAX_DELAY", "0.2")
	t.Setenv("FETCHKIT_MAX_REQUESTS_PER_WINDOW", "10")
	t.Setenv("FETCHKIT_WINDOW_SECONDS", "60")
	t.Setenv("FETCHKIT_RETRY_ATTEMPTS", "7")
	t.Setenv("FETCHKIT_SESSION_STORE", "keyring")
	t.Setenv("FETCHKIT_ACCOUNT", "alice")
	t.Setenv("FETCHKIT_OUTPUT_DIR", "/tmp/out")
	t.Setenv("FETCHKIT_REDIS_ADDR", "redis:6379")

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromEnv())

	assert.Equal(t, 0.1, cfg.RateLimit.MinDelay)
	assert.Equal(t, 10, cfg.RateLimit.MaxRequestsPerWindow)
	assert.Equal(t, 7, cfg.Retry.Attempts)
	assert.Equal(t, "keyring", cfg.Session.Store)
	assert.Equal(t, "alice", cfg.Session.Account)
	assert.Equal(t, "/tmp/out", cfg.Output.BaseDirectory)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		valid  bool
	}{
		{"defaults", func(c *Config) {}, true},
		{"zero window disables limiting", func(c *Config) { c.RateLimit.WindowSeconds = 0 }, true},
		{"negative min delay", func(c *Config) { c.RateLimit.MinDelay = -1 }, false},
		{"max delay below min", func(c *Config) { c.RateLimit.MaxDelay = 1 }, false},
		{"zero attempts", func(c *Config) { c.Retry.Attempts = 0 }, false},
		{"multiplier below one", func(c *Config) { c.Retry.BackoffMultiplier = 0.5 }, false},
		{"cap below base", func(c *Config) { c.Retry.RateLimitBackoffCap = 10 }, false},
		{"unknown session store", func(c *Config) { c.Session.Store = "pigeon" }, false},
		{"missing session file", func(c *Config) { c.Session.File = "" }, false},
		{"keyring needs no file", func(c *Config) { c.Session.Store = "keyring"; c.Session.File = "" }, true},
		{"zero concurrency", func(c *Config) { c.Job.Concurrency = 0 }, false},
		{"missing output dir", func(c *Config) { c.Output.BaseDirectory = "" }, false},
		{"redis enabled without addr", func(c *Config) { c.Redis.Enabled = true; c.Redis.Addr = "" }, false},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)

			err := cfg.Validate()
			if tc.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestSaveAndReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.RateLimit.MaxRequestsPerWindow = 42
	require.NoError(t, cfg.Save(path))

	reloaded := DefaultConfig()
	require.NoError(t, reloaded.LoadFromFile(path))
	assert.Equal(t, 42, reloaded.RateLimit.MaxRequestsPerWindow)
}
