package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/turtacn/apikeyd/pkg/logger"
)

func TestLoad(t *testing.T) {
	t.Run("defaults without a config file", func(t *testing.T) {
		cfg, _, err := load(logger.NewNoopLogger(), t.TempDir())
		require.NoError(t, err)

		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, "redis", cfg.RateLimit.Backend)
		assert.Equal(t, "log", cfg.Analytics.Sink)
		assert.Equal(t, 3, cfg.Cache.FetchAttempts)
		assert.Equal(t, time.Minute, cfg.Cache.FreshTTL)
		assert.Equal(t, 500*time.Millisecond, cfg.RateLimit.Timeout)
	})

	t.Run("file values override defaults", func(t *testing.T) {
		dir := t.TempDir()
		body := []byte("server:\n  port: 9090\nrate_limit:\n  backend: memory\ncache:\n  fresh_ttl: 10s\n")
		require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), body, 0o600))

		cfg, v, err := load(logger.NewNoopLogger(), dir)
		require.NoError(t, err)
		assert.Equal(t, 9090, cfg.Server.Port)
		assert.Equal(t, "memory", cfg.RateLimit.Backend)
		assert.Equal(t, 10*time.Second, cfg.Cache.FreshTTL)
		assert.NotEmpty(t, v.ConfigFileUsed())
	})

	t.Run("environment overrides file", func(t *testing.T) {
		t.Setenv("APIKEYD_SERVER_PORT", "7070")
		cfg, _, err := load(logger.NewNoopLogger(), t.TempDir())
		require.NoError(t, err)
		assert.Equal(t, 7070, cfg.Server.Port)
	})

	t.Run("invalid backend is rejected", func(t *testing.T) {
		t.Setenv("APIKEYD_RATE_LIMIT_BACKEND", "memcached")
		_, _, err := load(logger.NewNoopLogger(), t.TempDir())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "rate_limit.backend")
	})
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, _, err := load(logger.NewNoopLogger(), t.TempDir())
		require.NoError(t, err)
		return cfg
	}

	t.Run("kafka sink needs brokers", func(t *testing.T) {
		cfg := base()
		cfg.Analytics.Sink = "kafka"
		assert.Error(t, cfg.Validate())

		cfg.Analytics.Brokers = []string{"localhost:9092"}
		assert.NoError(t, cfg.Validate())
	})

	t.Run("stale ttl must cover fresh ttl", func(t *testing.T) {
		cfg := base()
		cfg.Cache.StaleTTL = cfg.Cache.FreshTTL / 2
		assert.Error(t, cfg.Validate())
	})
}
