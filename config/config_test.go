package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockchart/internal/interval"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("", filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 1000, cfg.API.PageLimit)
	assert.Equal(t, 65*time.Second, cfg.Cache.Freshness)
	assert.Equal(t, 15*time.Minute, cfg.Cache.Retention)
	assert.Equal(t, 3, cfg.Poller.SnapshotSecond)
	assert.Equal(t, interval.M1, cfg.DefaultCode())
	assert.Equal(t, BackendSQLite, cfg.Settings.Backend)
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	path := writeFile(t, "chartd.yaml", `
api:
  base_url: http://localhost:9000/api
  page_limit: 500
cache:
  retention: 5m
poller:
  default_interval: h1
  warm_stocks: [TCT, FHG]
settings:
  backend: memory
`)
	dotenv := writeFile(t, "test.env", "CHARTD_APP_LOG_LEVEL=debug\n")
	t.Cleanup(func() { os.Unsetenv("CHARTD_APP_LOG_LEVEL") })
	t.Setenv("CHARTD_API_PAGE_LIMIT", "250")
	t.Setenv("CHARTD_POLLER_WARM_STOCKS", "SYS,LSC")

	cfg, err := Load(path, dotenv)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "http://localhost:9000/api", cfg.API.BaseURL, "from yaml")
	assert.Equal(t, 250, cfg.API.PageLimit, "env overrides yaml")
	assert.Equal(t, 5*time.Minute, cfg.Cache.Retention)
	assert.Equal(t, 65*time.Second, cfg.Cache.Freshness, "default kept")
	assert.Equal(t, interval.H1, cfg.DefaultCode())
	assert.Equal(t, []string{"SYS", "LSC"}, cfg.Poller.WarmStocks)
	assert.Equal(t, BackendMemory, cfg.Settings.Backend)
	assert.Equal(t, "debug", cfg.App.LogLevel, "from .env")
}

func TestLoad_BadYAML(t *testing.T) {
	path := writeFile(t, "bad.yaml", "api: [unclosed")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_BadEnv(t *testing.T) {
	t.Setenv("CHARTD_CACHE_FRESHNESS", "soon")
	_, err := Load("")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty base url", func(c *Config) { c.API.BaseURL = "" }},
		{"zero page limit", func(c *Config) { c.API.PageLimit = 0 }},
		{"negative retention", func(c *Config) { c.Cache.Retention = -time.Second }},
		{"snapshot second", func(c *Config) { c.Poller.SnapshotSecond = 60 }},
		{"unknown interval", func(c *Config) { c.Poller.DefaultInterval = "m2" }},
		{"unknown backend", func(c *Config) { c.Settings.Backend = "etcd" }},
		{"sqlite without path", func(c *Config) { c.Settings.SQLitePath = "" }},
		{"redis without addr", func(c *Config) { c.Settings.Backend = BackendRedis; c.Settings.RedisAddr = "" }},
		{"breaker", func(c *Config) { c.Breaker.MaxFailures = 0 }},
		{"settings key", func(c *Config) { c.Settings.Key = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
	assert.NoError(t, Default().Validate())
}
