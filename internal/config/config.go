package config

import (
	"fmt"
	"time"
)

// Config holds the application's configuration.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Cache        CacheConfig        `mapstructure:"cache"`
	RateLimit    RateLimitConfig    `mapstructure:"rate_limit"`
	UsageLimit   UsageLimitConfig   `mapstructure:"usage_limit"`
	Analytics    AnalyticsConfig    `mapstructure:"analytics"`
	// Invalidation consumes key change events that evict cached records.
	Invalidation InvalidationConfig `mapstructure:"invalidation"`
	Log          LogConfig          `mapstructure:"log"`
	Tracing      TracingConfig      `mapstructure:"tracing"`
	Monitoring   MonitoringConfig   `mapstructure:"monitoring"`
}

type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Region       string        `mapstructure:"region"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
	QueryTimeout    time.Duration `mapstructure:"query_timeout"`
}

func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

type RedisConfig struct {
	Mode         string        `mapstructure:"mode"`
	Addresses    []string      `mapstructure:"addresses"`
	MasterName   string        `mapstructure:"master_name"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// CacheConfig sizes the verification record cache and the digest memo.
type CacheConfig struct {
	FreshTTL           time.Duration `mapstructure:"fresh_ttl"`
	StaleTTL           time.Duration `mapstructure:"stale_ttl"`
	HashMemoTTL        time.Duration `mapstructure:"hash_memo_ttl"`
	HashMemoMaxEntries int           `mapstructure:"hash_memo_max_entries"`
	FetchAttempts      int           `mapstructure:"fetch_attempts"`
}

type RateLimitConfig struct {
	// Backend is "redis" or "memory".
	Backend string        `mapstructure:"backend"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type UsageLimitConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

type AnalyticsConfig struct {
	// Sink is "kafka" or "log".
	Sink         string        `mapstructure:"sink"`
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	BatchSize    int           `mapstructure:"batch_size"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// InvalidationConfig configures the Kafka consumer of key change events.
type InvalidationConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	GroupID string   `mapstructure:"group_id"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type TracingConfig struct {
	Enabled        bool    `mapstructure:"enabled"`
	JaegerEndpoint string  `mapstructure:"jaeger_endpoint"`
	ServiceName    string  `mapstructure:"service_name"`
	Environment    string  `mapstructure:"environment"`
	SamplingRate   float64 `mapstructure:"sampling_rate"`
}

type MonitoringConfig struct {
	PprofEnabled bool `mapstructure:"pprof_enabled"`
}

// Validate checks the configuration for values the service cannot start with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	switch c.RateLimit.Backend {
	case "redis":
		if len(c.Redis.Addresses) == 0 {
			return fmt.Errorf("redis.addresses is required when rate_limit.backend is redis")
		}
	case "memory":
	default:
		return fmt.Errorf("rate_limit.backend must be redis or memory, got %q", c.RateLimit.Backend)
	}
	switch c.Analytics.Sink {
	case "kafka":
		if len(c.Analytics.Brokers) == 0 || c.Analytics.Topic == "" {
			return fmt.Errorf("analytics.brokers and analytics.topic are required when analytics.sink is kafka")
		}
	case "log":
	default:
		return fmt.Errorf("analytics.sink must be kafka or log, got %q", c.Analytics.Sink)
	}
	if c.Invalidation.Enabled && (len(c.Invalidation.Brokers) == 0 || c.Invalidation.Topic == "" || c.Invalidation.GroupID == "") {
		return fmt.Errorf("invalidation.brokers, invalidation.topic and invalidation.group_id are required when invalidation is enabled")
	}
	if c.Cache.FreshTTL <= 0 || c.Cache.StaleTTL < c.Cache.FreshTTL {
		return fmt.Errorf("cache.stale_ttl must be >= cache.fresh_ttl > 0")
	}
	if c.Cache.FetchAttempts < 1 {
		return fmt.Errorf("cache.fetch_attempts must be at least 1")
	}
	return nil
}
