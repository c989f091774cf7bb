// Package config loads chartd configuration in three layers: built-in
// defaults, an optional YAML file, then environment variables (with an
// optional .env file) prefixed CHARTD_.
package config

import (
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"stockchart/internal/interval"
)

// EnvPrefix prefixes every environment variable, e.g. CHARTD_API_BASE_URL.
const EnvPrefix = "CHARTD_"

// Settings backends.
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Config holds all application configuration.
type Config struct {
	App      AppConfig      `yaml:"app" envPrefix:"APP_"`
	API      APIConfig      `yaml:"api" envPrefix:"API_"`
	Cache    CacheConfig    `yaml:"cache" envPrefix:"CACHE_"`
	Poller   PollerConfig   `yaml:"poller" envPrefix:"POLLER_"`
	Settings SettingsConfig `yaml:"settings" envPrefix:"SETTINGS_"`
	Breaker  BreakerConfig  `yaml:"breaker" envPrefix:"BREAKER_"`
}

// AppConfig is process-level configuration.
type AppConfig struct {
	Name      string `yaml:"name" env:"NAME"`
	LogLevel  string `yaml:"log_level" env:"LOG_LEVEL"`
	LogFormat string `yaml:"log_format" env:"LOG_FORMAT"`
	HTTPAddr  string `yaml:"http_addr" env:"HTTP_ADDR"`
	// MetricsAddr serves /metrics on its own listener when set; otherwise
	// it is mounted on HTTPAddr.
	MetricsAddr string `yaml:"metrics_addr" env:"METRICS_ADDR"`
	// CORSOrigins limits browser origins; empty allows any.
	CORSOrigins []string `yaml:"cors_origins" env:"CORS_ORIGINS" envSeparator:","`
}

// APIConfig describes the upstream price API.
type APIConfig struct {
	BaseURL   string        `yaml:"base_url" env:"BASE_URL"`
	Timeout   time.Duration `yaml:"timeout" env:"TIMEOUT"`
	PageLimit int           `yaml:"page_limit" env:"PAGE_LIMIT"`
	UserAgent string        `yaml:"user_agent" env:"USER_AGENT"`
}

// CacheConfig bounds the series cache.
type CacheConfig struct {
	Freshness    time.Duration `yaml:"freshness" env:"FRESHNESS"`
	Retention    time.Duration `yaml:"retention" env:"RETENTION"`
	RefreshAfter time.Duration `yaml:"refresh_after" env:"REFRESH_AFTER"`
	EvictEvery   time.Duration `yaml:"evict_every" env:"EVICT_EVERY"`
}

// PollerConfig drives the snapshot and catch-up cadence.
type PollerConfig struct {
	SnapshotSecond  int           `yaml:"snapshot_second" env:"SNAPSHOT_SECOND"`
	MinDelay        time.Duration `yaml:"min_delay" env:"MIN_DELAY"`
	RetryDelay      time.Duration `yaml:"retry_delay" env:"RETRY_DELAY"`
	CatchUpSpec     string        `yaml:"catch_up_spec" env:"CATCH_UP_SPEC"`
	DefaultStock    string        `yaml:"default_stock" env:"DEFAULT_STOCK"`
	DefaultInterval string        `yaml:"default_interval" env:"DEFAULT_INTERVAL"`
	WarmStocks      []string      `yaml:"warm_stocks" env:"WARM_STOCKS" envSeparator:","`
}

// SettingsConfig selects where user settings are persisted.
type SettingsConfig struct {
	Backend       string `yaml:"backend" env:"BACKEND"`
	SQLitePath    string `yaml:"sqlite_path" env:"SQLITE_PATH"`
	RedisAddr     string `yaml:"redis_addr" env:"REDIS_ADDR"`
	RedisPassword string `yaml:"redis_password" env:"REDIS_PASSWORD"`
	RedisDB       int    `yaml:"redis_db" env:"REDIS_DB"`
	Key           string `yaml:"key" env:"KEY"`
}

// BreakerConfig tunes the circuit breakers around the API and redis.
type BreakerConfig struct {
	MaxFailures  int           `yaml:"max_failures" env:"MAX_FAILURES"`
	ResetTimeout time.Duration `yaml:"reset_timeout" env:"RESET_TIMEOUT"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		App: AppConfig{
			Name:      "chartd",
			LogLevel:  "info",
			LogFormat: "json",
			HTTPAddr:  ":8080",
		},
		API: APIConfig{
			BaseURL:   "http://torn-stocks.jurcec.si/api",
			Timeout:   15 * time.Second,
			PageLimit: 1000,
			UserAgent: "chartd/1.0",
		},
		Cache: CacheConfig{
			Freshness:    65 * time.Second,
			Retention:    15 * time.Minute,
			RefreshAfter: 60 * time.Second,
			EvictEvery:   time.Minute,
		},
		Poller: PollerConfig{
			SnapshotSecond:  3,
			MinDelay:        5 * time.Second,
			RetryDelay:      5 * time.Second,
			CatchUpSpec:     "@every 60s",
			DefaultStock:    "TCT",
			DefaultInterval: string(interval.M1),
		},
		Settings: SettingsConfig{
			Backend:    BackendSQLite,
			SQLitePath: "data/settings.db",
			RedisAddr:  "localhost:6379",
			Key:        "settings",
		},
		Breaker: BreakerConfig{
			MaxFailures:  5,
			ResetTimeout: 30 * time.Second,
		},
	}
}

// Load builds the configuration. path may be empty or point to a missing
// file; envFiles default to ".env" and missing ones are ignored.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, errors.Wrap(err, "read config")
		}
		if len(data) > 0 {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, errors.Wrapf(err, "parse %s", path)
			}
		}
	}

	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !os.IsNotExist(err) {
			return nil, errors.Wrapf(err, "load %s", f)
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, errors.Wrap(err, "parse environment")
	}
	return cfg, nil
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	switch {
	case c.API.BaseURL == "":
		return errors.New("api.base_url is required")
	case c.API.PageLimit <= 0:
		return errors.New("api.page_limit must be positive")
	case c.API.Timeout <= 0:
		return errors.New("api.timeout must be positive")
	case c.Cache.Freshness <= 0 || c.Cache.Retention <= 0 || c.Cache.RefreshAfter <= 0 || c.Cache.EvictEvery <= 0:
		return errors.New("cache durations must be positive")
	case c.Poller.SnapshotSecond < 0 || c.Poller.SnapshotSecond > 59:
		return errors.New("poller.snapshot_second must be within 0..59")
	case c.Poller.MinDelay <= 0 || c.Poller.RetryDelay <= 0:
		return errors.New("poller delays must be positive")
	case c.Poller.DefaultStock == "":
		return errors.New("poller.default_stock is required")
	case c.Breaker.MaxFailures <= 0:
		return errors.New("breaker.max_failures must be positive")
	}
	if _, err := interval.Parse(c.Poller.DefaultInterval); err != nil {
		return errors.Wrap(err, "poller.default_interval")
	}
	switch c.Settings.Backend {
	case BackendSQLite:
		if c.Settings.SQLitePath == "" {
			return errors.New("settings.sqlite_path is required for the sqlite backend")
		}
	case BackendRedis:
		if c.Settings.RedisAddr == "" {
			return errors.New("settings.redis_addr is required for the redis backend")
		}
	case BackendMemory:
	default:
		return errors.Errorf("unknown settings backend %q", c.Settings.Backend)
	}
	if c.Settings.Key == "" {
		return errors.New("settings.key is required")
	}
	return nil
}

// DefaultCode returns the parsed default interval. Call after Validate.
func (c *Config) DefaultCode() interval.Code {
	code, _ := interval.Parse(c.Poller.DefaultInterval)
	return code
}
