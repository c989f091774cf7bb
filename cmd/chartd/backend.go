package main

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"stockchart/config"
	"stockchart/internal/breaker"
	"stockchart/internal/metrics"
	"stockchart/internal/model"
	"stockchart/internal/settings"
	"stockchart/internal/store/redis"
	"stockchart/internal/store/sqlite"
)

// settingsBackend is a settings store whose liveness can be probed.
type settingsBackend interface {
	model.SettingsStore
	metrics.Pinger
}

// watchFunc blocks until ctx is done, reporting keys saved elsewhere.
type watchFunc func(ctx context.Context, onChange func(key string)) error

// openSettings opens the configured settings store. Only the redis backend
// returns a watch function.
func openSettings(ctx context.Context, cfg *config.Config, m *metrics.Metrics, log *zap.Logger) (settingsBackend, watchFunc, error) {
	switch cfg.Settings.Backend {
	case config.BackendSQLite:
		st, err := sqlite.New(sqlite.Config{Path: cfg.Settings.SQLitePath, Log: log})
		if err != nil {
			return nil, nil, errors.Wrap(err, "open sqlite settings")
		}
		return st, nil, nil

	case config.BackendRedis:
		cb := breaker.New(cfg.Breaker.MaxFailures, cfg.Breaker.ResetTimeout)
		if m != nil {
			cb.OnStateChange = m.ObserveBreaker("redis")
		}
		st, err := redis.New(ctx, redis.Config{
			Addr:     cfg.Settings.RedisAddr,
			Password: cfg.Settings.RedisPassword,
			DB:       cfg.Settings.RedisDB,
			Breaker:  cb,
			Log:      log,
		})
		if err != nil {
			return nil, nil, errors.Wrap(err, "open redis settings")
		}
		st.OnBuffer = func() { log.Warn("redis unavailable, settings save deferred") }
		st.OnFlush = func(n int) { log.Info("deferred settings saves written", zap.Int("count", n)) }
		return st, st.Watch, nil
	}
	return settings.NewMemoryStore(), nil, nil
}
