package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"stockchart/internal/breaker"
	"stockchart/internal/cache"
	"stockchart/internal/fetch"
	"stockchart/internal/gateway"
	"stockchart/internal/indicator"
	"stockchart/internal/metrics"
	"stockchart/internal/model"
	"stockchart/internal/poller"
	"stockchart/internal/settings"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Poll the price API and serve the chart",
	RunE:  runServe,
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, log, err := setup("chartd")
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewMetrics(reg)
	health := metrics.NewHealthStatus()

	// Upstream API
	apiBreaker := breaker.New(cfg.Breaker.MaxFailures, cfg.Breaker.ResetTimeout)
	apiBreaker.OnStateChange = m.ObserveBreaker("api")
	api := fetch.New(fetch.Config{
		BaseURL:   cfg.API.BaseURL,
		Timeout:   cfg.API.Timeout,
		UserAgent: cfg.API.UserAgent,
		Breaker:   apiBreaker,
		Log:       log,
	})
	api.OnRequest = func(kind string, elapsed time.Duration, err error) {
		m.FetchTotal.WithLabelValues(kind, metrics.Result(err)).Inc()
		m.FetchDur.WithLabelValues(kind).Observe(elapsed.Seconds())
	}

	// Series cache
	store := cache.New(
		cache.WithPageLimit(cfg.API.PageLimit),
		cache.WithFreshness(cfg.Cache.Freshness),
		cache.WithLogger(log),
	)
	store.OnDiscard = func(model.Key) { m.DiscardedResults.Inc() }
	store.OnOutOfOrder = func(model.Key) { m.OutOfOrderTicks.Inc() }
	store.OnEvict = func(_ model.Key, truncated bool) {
		reason := "deleted"
		if truncated {
			reason = "truncated"
		}
		m.Evictions.WithLabelValues(reason).Inc()
	}

	// Settings
	backend, watch, err := openSettings(ctx, cfg, m, log)
	if err != nil {
		return err
	}
	defer backend.Close()
	svc := settings.NewService(backend, cfg.Settings.Key, log)
	svc.OnPersist = func(op string, err error) {
		m.SettingsOps.WithLabelValues(op, metrics.Result(err)).Inc()
	}
	if err := svc.Load(ctx); err != nil {
		log.Warn("settings unavailable, using defaults", zap.Error(err))
	}
	health.CheckSettings(ctx, backend)
	health.StartLivenessChecker(ctx, backend, 30*time.Second)

	engine := indicator.NewEngine(log)
	engine.OnCompute = func(d time.Duration) { m.IndicatorComputeDur.Observe(d.Seconds()) }

	p := poller.New(poller.Config{
		PageLimit:       cfg.API.PageLimit,
		RefreshAfter:    cfg.Cache.RefreshAfter,
		Retention:       cfg.Cache.Retention,
		EvictEvery:      cfg.Cache.EvictEvery,
		SnapshotSecond:  cfg.Poller.SnapshotSecond,
		MinDelay:        cfg.Poller.MinDelay,
		RetryDelay:      cfg.Poller.RetryDelay,
		CatchUpSpec:     cfg.Poller.CatchUpSpec,
		DefaultStock:    cfg.Poller.DefaultStock,
		DefaultInterval: cfg.DefaultCode(),
		WarmStocks:      cfg.Poller.WarmStocks,
	}, api, store, log)

	var metricsHandler http.Handler
	if cfg.App.MetricsAddr == "" {
		metricsHandler = metrics.Handler(reg)
	}
	gw := gateway.New(gateway.Config{
		Addr:           cfg.App.HTTPAddr,
		AllowedOrigins: cfg.App.CORSOrigins,
		Poller:         p,
		Cache:          store,
		Settings:       svc,
		Engine:         engine,
		Health:         health,
		Metrics:        metricsHandler,
	}, log)
	gw.Hub().OnClients = func(n int) { m.WSClients.Set(float64(n)) }
	gw.Hub().OnDrop = m.WSDrops.Inc

	svc.OnChange = gw.SettingsChanged
	p.OnSnapshot = func(resp model.SnapshotResponse, err error) {
		m.PollCycles.WithLabelValues(metrics.Result(err)).Inc()
		health.SetSnapshot(time.Now(), err)
		if err == nil {
			gw.PublishWatchlist(resp)
		}
	}
	p.OnSeries = func(k model.Key) { gw.PublishSeries(k) }
	p.OnLive = func(o cache.LiveOutcome) { m.LiveOutcomes.WithLabelValues(o.String()).Inc() }
	p.OnEvict = func(_ cache.EvictReport, series, bars int) {
		m.CacheSeries.Set(float64(series))
		m.CacheBars.Set(float64(bars))
	}
	p.OnActive = func(k model.Key) { health.SetActive(k.String()) }
	health.SetActive(p.Active().String())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.Run(ctx) })
	g.Go(func() error { return gw.Run(ctx) })
	if cfg.App.MetricsAddr != "" {
		ms := metrics.NewServer(cfg.App.MetricsAddr, reg, log)
		g.Go(func() error { return ms.Run(ctx) })
	}
	if watch != nil {
		g.Go(func() error {
			return watch(ctx, func(key string) {
				if key != cfg.Settings.Key {
					return
				}
				if err := svc.Load(ctx); err != nil {
					log.Warn("reload settings failed", zap.Error(err))
					return
				}
				gw.SettingsChanged(svc.Get())
			})
		})
	}

	log.Info("chartd started",
		zap.String("http", cfg.App.HTTPAddr),
		zap.String("api", cfg.API.BaseURL),
		zap.String("settings", cfg.Settings.Backend),
		zap.Stringer("active", p.Active()),
	)
	err = g.Wait()
	log.Info("chartd stopped", zap.Error(err))
	return err
}
