// Package config loads and validates resolver configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Cache backends.
const (
	BackendLocal    = "local"
	BackendMemory   = "memory"
	BackendGCS      = "gcs"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Validator ValidatorConfig `mapstructure:"validator"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Headless  HeadlessConfig  `mapstructure:"headless"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// HTTPConfig configures outbound fetches.
type HTTPConfig struct {
	UserAgent           string `mapstructure:"user_agent"`
	TimeoutSeconds      int    `mapstructure:"timeout_seconds"`
	ProbeTimeoutSeconds int    `mapstructure:"probe_timeout_seconds"`
	MaxBodyBytes        int    `mapstructure:"max_body_bytes"`
	InsecureSkipVerify  bool   `mapstructure:"insecure_skip_verify"`
}

// ValidatorConfig bounds candidate probing.
type ValidatorConfig struct {
	MaxConcurrency int `mapstructure:"max_concurrency"`
}

// CacheConfig selects and configures the icon cache.
type CacheConfig struct {
	Enabled         bool           `mapstructure:"enabled"`
	Backend         string         `mapstructure:"backend"`
	Dir             string         `mapstructure:"dir"`
	DurationSeconds int            `mapstructure:"duration_seconds"`
	MemoryMaxBytes  int64          `mapstructure:"memory_max_bytes"`
	GCS             GCSConfig      `mapstructure:"gcs"`
	Redis           RedisConfig    `mapstructure:"redis"`
	Postgres        PostgresConfig `mapstructure:"postgres"`
}

// GCSConfig locates cache objects in Cloud Storage.
type GCSConfig struct {
	Bucket string `mapstructure:"bucket"`
	Prefix string `mapstructure:"prefix"`
}

// RedisConfig locates cache objects in Redis.
type RedisConfig struct {
	Addr       string `mapstructure:"addr"`
	Password   string `mapstructure:"password"`
	DB         int    `mapstructure:"db"`
	Prefix     string `mapstructure:"prefix"`
	TTLSeconds int    `mapstructure:"ttl_seconds"`
}

// PostgresConfig locates cache rows in Postgres.
type PostgresConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// HeadlessConfig configures the headless rendering fallback.
type HeadlessConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxParallel   int  `mapstructure:"max_parallel"`
	NavTimeoutSec int  `mapstructure:"nav_timeout_seconds"`

	// DetectSPA renders only pages that look client-rendered.
	DetectSPA           bool `mapstructure:"detect_spa"`
	BodyLengthThreshold int  `mapstructure:"body_length_threshold"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ICONS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", true)
	v.SetDefault("http.user_agent", "favicon-resolver/1.0")
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("http.probe_timeout_seconds", 5)
	v.SetDefault("http.max_body_bytes", 10<<20)
	v.SetDefault("http.insecure_skip_verify", false)
	v.SetDefault("validator.max_concurrency", 0)
	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.backend", BackendLocal)
	v.SetDefault("cache.dir", "data/source-cache")
	v.SetDefault("cache.duration_seconds", 60)
	v.SetDefault("cache.memory_max_bytes", 0)
	v.SetDefault("cache.gcs.bucket", "")
	v.SetDefault("cache.gcs.prefix", "icons")
	v.SetDefault("cache.redis.addr", "")
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.prefix", "icons:")
	v.SetDefault("cache.redis.ttl_seconds", 0)
	v.SetDefault("cache.postgres.dsn", "")
	v.SetDefault("cache.postgres.table", "icon_cache")
	v.SetDefault("cache.postgres.max_conns", 4)
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 20)
	v.SetDefault("headless.detect_spa", true)
	v.SetDefault("headless.body_length_threshold", 2048)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.ProbeTimeoutSeconds < 0 {
		return fmt.Errorf("http.probe_timeout_seconds must be >= 0")
	}
	if c.HTTP.MaxBodyBytes <= 0 {
		return fmt.Errorf("http.max_body_bytes must be > 0")
	}
	if c.Validator.MaxConcurrency < 0 {
		return fmt.Errorf("validator.max_concurrency must be >= 0")
	}
	if c.Cache.DurationSeconds < 0 {
		return fmt.Errorf("cache.duration_seconds must be >= 0")
	}
	if c.Cache.MemoryMaxBytes < 0 {
		return fmt.Errorf("cache.memory_max_bytes must be >= 0")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	if !c.Cache.Enabled {
		return nil
	}
	switch c.Cache.Backend {
	case BackendLocal:
		if strings.TrimSpace(c.Cache.Dir) == "" {
			return fmt.Errorf("cache.dir must be set for the local backend")
		}
	case BackendMemory:
	case BackendGCS:
		if c.Cache.GCS.Bucket == "" {
			return fmt.Errorf("cache.gcs.bucket must be set for the gcs backend")
		}
	case BackendRedis:
		if c.Cache.Redis.Addr == "" {
			return fmt.Errorf("cache.redis.addr must be set for the redis backend")
		}
	case BackendPostgres:
		if c.Cache.Postgres.DSN == "" {
			return fmt.Errorf("cache.postgres.dsn must be set for the postgres backend")
		}
	default:
		return fmt.Errorf("cache.backend %q is not supported", c.Cache.Backend)
	}
	return nil
}

// FetchTimeout is the page fetch budget.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// ProbeTimeout is the per-candidate probe budget; zero disables it.
func (c Config) ProbeTimeout() time.Duration {
	return time.Duration(c.HTTP.ProbeTimeoutSeconds) * time.Second
}

// CacheMaxAge is the Cache-Control max-age served with icons.
func (c Config) CacheMaxAge() time.Duration {
	return time.Duration(c.Cache.DurationSeconds) * time.Second
}
