package config

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"github.com/turtacn/apikeyd/pkg/constants"
	"github.com/turtacn/apikeyd/pkg/logger"
)

// setDefaults registers every default so that env-only deployments unmarshal fully.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.region", "local")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("server.idle_timeout", "60s")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "apikeyd")
	v.SetDefault("database.database", "apikeyd")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")
	v.SetDefault("database.query_timeout", constants.DefaultQueryTimeout)

	v.SetDefault("redis.mode", "standalone")
	v.SetDefault("redis.addresses", []string{"localhost:6379"})
	v.SetDefault("redis.pool_size", 50)
	v.SetDefault("redis.min_idle_conns", 5)
	v.SetDefault("redis.dial_timeout", "5s")
	v.SetDefault("redis.read_timeout", "3s")
	v.SetDefault("redis.write_timeout", "3s")

	v.SetDefault("cache.fresh_ttl", constants.DefaultCacheFreshTTL)
	v.SetDefault("cache.stale_ttl", constants.DefaultCacheStaleTTL)
	v.SetDefault("cache.hash_memo_ttl", constants.DefaultHashMemoTTL)
	v.SetDefault("cache.hash_memo_max_entries", constants.DefaultHashMemoMaxEntries)
	v.SetDefault("cache.fetch_attempts", constants.DefaultFetchAttempts)

	v.SetDefault("rate_limit.backend", "redis")
	v.SetDefault("rate_limit.timeout", constants.DefaultRatelimitTimeout)
	v.SetDefault("usage_limit.timeout", constants.DefaultUsageLimitTimeout)

	v.SetDefault("analytics.sink", "log")
	v.SetDefault("analytics.topic", "key_verifications")
	v.SetDefault("analytics.batch_size", 100)
	v.SetDefault("analytics.batch_timeout", "1s")
	v.SetDefault("analytics.timeout", constants.DefaultAnalyticsTimeout)

	v.SetDefault("invalidation.enabled", false)
	v.SetDefault("invalidation.topic", "key_invalidations")
	v.SetDefault("invalidation.group_id", "apikeyd-invalidation")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", constants.ServiceName)
	v.SetDefault("tracing.environment", "development")
	v.SetDefault("tracing.sampling_rate", 0.1)

	v.SetDefault("monitoring.pprof_enabled", false)
}

// LoadConfig loads the configuration from file and environment variables.
func LoadConfig(log logger.Logger) (*Config, *viper.Viper, error) {
	return load(log, "/etc/apikeyd/", ".")
}

func load(log logger.Logger, paths ...string) (*Config, *viper.Viper, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, nil, fmt.Errorf("read config: %w", err)
		}
		log.Info(context.Background(), "No config file found, using defaults and environment")
	} else {
		log.Info(context.Background(), "Loaded config file", logger.String("path", v.ConfigFileUsed()))
	}

	v.SetEnvPrefix("APIKEYD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg, err := decode(v)
	if err != nil {
		return nil, nil, err
	}
	return cfg, v, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Watch re-reads the config file on change and hands every valid result to onChange.
// Invalid edits are logged and ignored; the previous config stays in effect.
func Watch(v *viper.Viper, log logger.Logger, onChange func(*Config)) {
	if v.ConfigFileUsed() == "" {
		return
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		ctx := context.Background()
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := decode(v)
		if err != nil {
			log.Error(ctx, "Ignoring invalid config change", err, logger.String("file", e.Name))
			return
		}
		log.Info(ctx, "Config reloaded", logger.String("file", e.Name))
		onChange(cfg)
	})
	v.WatchConfig()
}
