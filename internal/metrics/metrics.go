// Package metrics exposes Prometheus metrics and the health endpoint.
package metrics

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"stockchart/internal/breaker"
)

// Metrics holds all Prometheus metrics for chartd.
type Metrics struct {
	// Upstream fetches (labels: kind=history|snapshot, result=ok|error|empty)
	FetchTotal *prometheus.CounterVec
	FetchDur   *prometheus.HistogramVec

	// Cache merge
	DiscardedResults prometheus.Counter
	LiveOutcomes     *prometheus.CounterVec // labels: outcome
	OutOfOrderTicks  prometheus.Counter
	Evictions        *prometheus.CounterVec // labels: reason=deleted|truncated
	CacheSeries      prometheus.Gauge
	CacheBars        prometheus.Gauge

	// Poller
	PollCycles *prometheus.CounterVec // labels: result=ok|error

	// Indicator engine
	IndicatorComputeDur prometheus.Histogram

	// Circuit breakers (labels: name=api|redis)
	BreakerState *prometheus.GaugeVec // 0=closed, 1=open, 2=half-open
	BreakerTrips *prometheus.CounterVec

	// Gateway
	WSClients prometheus.Gauge
	WSDrops   prometheus.Counter

	// Settings persistence (labels: op=load|save, result=ok|error)
	SettingsOps *prometheus.CounterVec
}

// NewMetrics creates all metrics and registers them with reg. A nil reg
// uses the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		FetchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chartd_fetch_total",
			Help: "Upstream API requests by kind and result",
		}, []string{"kind", "result"}),
		FetchDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "chartd_fetch_duration_seconds",
			Help:    "Upstream API request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),

		DiscardedResults: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chartd_cache_discarded_results_total",
			Help: "History pages discarded because the series was no longer loading",
		}),
		LiveOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chartd_cache_live_ticks_total",
			Help: "Live snapshot ticks by merge outcome",
		}, []string{"outcome"}),
		OutOfOrderTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chartd_cache_out_of_order_ticks_total",
			Help: "Live ticks dropped because they were older than the last bar",
		}),
		Evictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chartd_cache_evictions_total",
			Help: "Series deleted or truncated by the eviction pass",
		}, []string{"reason"}),
		CacheSeries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chartd_cache_series",
			Help: "Cached (stock, interval) series",
		}),
		CacheBars: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chartd_cache_bars",
			Help: "Bars held across all cached series",
		}),

		PollCycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chartd_poll_cycles_total",
			Help: "Snapshot poll cycles by result",
		}, []string{"result"}),

		IndicatorComputeDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "chartd_indicator_compute_duration_seconds",
			Help:    "Overlay computation latency per request",
			Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
		}),

		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "chartd_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		}, []string{"name"}),
		BreakerTrips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chartd_circuit_breaker_trips_total",
			Help: "Times a circuit breaker tripped open",
		}, []string{"name"}),

		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chartd_ws_clients",
			Help: "Connected WebSocket clients",
		}),
		WSDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chartd_ws_drops_total",
			Help: "Messages dropped because a client send buffer was full",
		}),

		SettingsOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chartd_settings_ops_total",
			Help: "Settings store operations by op and result",
		}, []string{"op", "result"}),
	}

	reg.MustRegister(
		m.FetchTotal,
		m.FetchDur,
		m.DiscardedResults,
		m.LiveOutcomes,
		m.OutOfOrderTicks,
		m.Evictions,
		m.CacheSeries,
		m.CacheBars,
		m.PollCycles,
		m.IndicatorComputeDur,
		m.BreakerState,
		m.BreakerTrips,
		m.WSClients,
		m.WSDrops,
		m.SettingsOps,
	)
	return m
}

// Result maps an error to the "ok"/"error" label value.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveBreaker returns an OnStateChange hook that tracks the named
// breaker's state and counts trips.
func (m *Metrics) ObserveBreaker(name string) func(from, to breaker.State) {
	m.BreakerState.WithLabelValues(name).Set(float64(breaker.StateClosed))
	return func(_, to breaker.State) {
		m.BreakerState.WithLabelValues(name).Set(float64(to))
		if to == breaker.StateOpen {
			m.BreakerTrips.WithLabelValues(name).Inc()
		}
	}
}

// Pinger is a dependency whose liveness the health endpoint reports.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	LastSnapshot    time.Time
	LastSnapshotErr string
	SettingsOK      bool
	SettingsLatency time.Duration
	LastCheckAt     time.Time
	StartedAt       time.Time
	Active          string

	// StaleAfter marks the snapshot feed degraded when no successful poll
	// happened for this long.
	StaleAfter time.Duration
	now        func() time.Time
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt:  time.Now(),
		SettingsOK: true,
		StaleAfter: 3 * time.Minute,
		now:        time.Now,
	}
}

// SetSnapshot records the outcome of one poll cycle.
func (h *HealthStatus) SetSnapshot(at time.Time, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err != nil {
		h.LastSnapshotErr = err.Error()
		return
	}
	h.LastSnapshot = at
	h.LastSnapshotErr = ""
}

// SetActive records the displayed pair.
func (h *HealthStatus) SetActive(key string) {
	h.mu.Lock()
	h.Active = key
	h.mu.Unlock()
}

// CheckSettings pings the settings store and records latency and health.
func (h *HealthStatus) CheckSettings(ctx context.Context, p Pinger) {
	start := time.Now()
	err := p.Ping(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SettingsOK = err == nil
	h.SettingsLatency = latency
	h.LastCheckAt = h.now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks until ctx is done.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, p Pinger, every time.Duration) {
	if p == nil {
		return
	}
	go func() {
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				h.CheckSettings(probeCtx, p)
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the health endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	now := h.now()
	snapshotAge := ""
	fresh := false
	if !h.LastSnapshot.IsZero() {
		age := now.Sub(h.LastSnapshot)
		snapshotAge = age.Round(time.Millisecond).String()
		fresh = age <= h.StaleAfter
	}

	overallStatus := "healthy"
	httpCode := http.StatusOK
	if !fresh || !h.SettingsOK {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}

	status := struct {
		Status            string  `json:"status"`
		Uptime            string  `json:"uptime"`
		Active            string  `json:"active,omitempty"`
		LastSnapshot      string  `json:"last_snapshot,omitempty"`
		SnapshotAge       string  `json:"snapshot_age,omitempty"`
		LastSnapshotError string  `json:"last_snapshot_error,omitempty"`
		SettingsOK        bool    `json:"settings_ok"`
		SettingsLatencyMs float64 `json:"settings_latency_ms"`
	}{
		Status:            overallStatus,
		Uptime:            now.Sub(h.StartedAt).Round(time.Second).String(),
		Active:            h.Active,
		SnapshotAge:       snapshotAge,
		LastSnapshotError: h.LastSnapshotErr,
		SettingsOK:        h.SettingsOK,
		SettingsLatencyMs: float64(h.SettingsLatency.Microseconds()) / 1000.0,
	}
	if !h.LastSnapshot.IsZero() {
		status.LastSnapshot = h.LastSnapshot.Format(time.RFC3339)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpCode)
	_ = json.NewEncoder(w).Encode(status)
}

// Handler returns the /metrics handler for g, or the default gatherer.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Server runs a dedicated HTTP listener exposing /metrics.
type Server struct {
	addr string
	srv  *http.Server
	log  *zap.Logger
}

// NewServer creates a metrics server.
func NewServer(addr string, g prometheus.Gatherer, log *zap.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(g))
	return &Server{
		addr: addr,
		log:  log,
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("metrics server listening", zap.String("addr", s.addr))
		errCh <- s.srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	}
}
