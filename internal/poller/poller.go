// Package poller drives the upstream API: the once-a-minute snapshot that
// feeds live ticks into every cached series, catch-up refreshes of the
// displayed pair, and on-demand backfill of older history.
//
// The cache decides whether a result is applied; the poller only decides
// when to ask.
package poller

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"stockchart/internal/cache"
	"stockchart/internal/fetch"
	"stockchart/internal/interval"
	"stockchart/internal/logger"
	"stockchart/internal/model"
	"stockchart/internal/scheduler"
)

// Timer names.
const (
	timerSnapshot = "snapshot"
	timerRetry    = "refresh-retry"
)

// ErrNoSeries is returned by LoadMore for a pair that is not cached.
var ErrNoSeries = errors.New("series not cached")

// Config drives the poll cadence.
type Config struct {
	PageLimit      int
	RefreshAfter   time.Duration // catch-up only when LastUpdate is older
	Retention      time.Duration // eviction window for unviewed series
	EvictEvery     time.Duration
	SnapshotSecond int           // second of the minute the snapshot is polled at
	MinDelay       time.Duration // lower bound between snapshot polls
	RetryDelay     time.Duration // wait before retrying a failed refresh of the active pair
	CatchUpSpec    string        // cron spec for refreshing the active pair

	DefaultStock    string
	DefaultInterval interval.Code
	WarmStocks      []string
	WarmParallel    int
}

// Poller owns all timing decisions for one cache.
type Poller struct {
	cfg    Config
	api    model.Fetcher
	cache  *cache.Store
	timers *scheduler.Timers
	cron   *scheduler.Cron
	log    *zap.Logger
	now    func() time.Time

	mu       sync.RWMutex
	active   model.Key
	snapshot model.SnapshotResponse
	snapAt   time.Time

	// Hooks (optional).
	OnSnapshot func(resp model.SnapshotResponse, err error)  // after every snapshot poll
	OnSeries   func(k model.Key)                             // a series gained or changed bars
	OnHistory  func(k model.Key, backfill bool, err error)   // after every history fetch
	OnLive     func(o cache.LiveOutcome)                     // per live tick applied
	OnEvict    func(rep cache.EvictReport, series, bars int) // after every eviction pass
	OnActive   func(k model.Key)                             // the displayed pair changed
}

// New creates a poller. Call Run to start it.
func New(cfg Config, api model.Fetcher, store *cache.Store, log *zap.Logger) *Poller {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.PageLimit <= 0 {
		cfg.PageLimit = store.PageLimit()
	}
	if cfg.WarmParallel <= 0 {
		cfg.WarmParallel = 4
	}
	if cfg.DefaultInterval == "" {
		cfg.DefaultInterval = interval.M1
	}
	log = log.Named("poller")
	return &Poller{
		cfg:    cfg,
		api:    api,
		cache:  store,
		timers: scheduler.NewTimers(),
		cron:   scheduler.NewCron(log),
		log:    log,
		now:    time.Now,
		active: model.Key{Stock: normalize(cfg.DefaultStock), Interval: cfg.DefaultInterval},
	}
}

func normalize(stock string) string { return strings.ToUpper(strings.TrimSpace(stock)) }

// Active returns the displayed pair.
func (p *Poller) Active() model.Key {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.active
}

// Snapshot returns the most recent snapshot and when it was fetched.
// ok is false before the first successful poll.
func (p *Poller) Snapshot() (resp model.SnapshotResponse, at time.Time, ok bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snapshot, p.snapAt, !p.snapAt.IsZero()
}

// Run warms the cache, starts the snapshot timer and the cron jobs, and
// blocks until ctx is done.
func (p *Poller) Run(ctx context.Context) error {
	if err := p.cron.Add("catch-up", p.cfg.CatchUpSpec, func() { p.refreshActive(ctx) }); err != nil {
		return err
	}
	if p.cfg.EvictEvery > 0 {
		if err := p.cron.Add("evict", "@every "+p.cfg.EvictEvery.String(), func() { p.Evict(p.now()) }); err != nil {
			return err
		}
	}

	p.Warm(ctx)
	p.timers.Set(timerSnapshot, 0, func() { p.snapshotCycle(ctx) })

	p.log.Info("poller started",
		zap.Stringer("active", p.Active()),
		zap.String("catch_up", p.cfg.CatchUpSpec),
		zap.Duration("evict_every", p.cfg.EvictEvery),
	)
	err := p.cron.Run(ctx)
	p.timers.Stop()
	p.log.Info("poller stopped")
	return err
}

// Warm loads the default interval of the default and warm stocks in
// parallel. Failures are logged; the pairs are retried by later triggers.
func (p *Poller) Warm(ctx context.Context) {
	seen := make(map[string]struct{})
	var stocks []string
	for _, s := range append([]string{p.cfg.DefaultStock}, p.cfg.WarmStocks...) {
		s = normalize(s)
		if _, dup := seen[s]; s == "" || dup {
			continue
		}
		seen[s] = struct{}{}
		stocks = append(stocks, s)
	}
	if len(stocks) == 0 {
		return
	}

	start := p.now()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.WarmParallel)
	for _, stock := range stocks {
		stock := stock
		g.Go(func() error {
			if _, err := p.Refresh(gctx, stock, p.cfg.DefaultInterval); err != nil {
				p.log.Warn("warm-up fetch failed", zap.String("stock", stock), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()
	p.log.Info("cache warmed", zap.Strings("stocks", stocks), zap.Duration("took", time.Since(start)))
}

// SetActive makes (stock, code) the displayed pair, marks it viewed and
// refreshes it if it is due.
func (p *Poller) SetActive(ctx context.Context, stock string, code interval.Code) error {
	stock = normalize(stock)
	if stock == "" {
		return fetch.ErrEmptyStock
	}
	if !interval.Valid(code) {
		return errors.Wrapf(interval.ErrUnknownCode, "%q", code)
	}

	k := model.Key{Stock: stock, Interval: code}
	p.mu.Lock()
	changed := p.active != k
	p.active = k
	p.mu.Unlock()
	if changed {
		p.timers.Clear(timerRetry)
		p.log.Info("active pair changed", zap.Stringer("key", k))
		if p.OnActive != nil {
			p.OnActive(k)
		}
	}

	_, err := p.Refresh(ctx, stock, code)
	p.cache.TouchView(stock, code)
	return err
}

func (p *Poller) refreshActive(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	k := p.Active()
	if k.Stock == "" {
		return
	}
	p.cache.TouchView(k.Stock, k.Interval)
	if _, err := p.Refresh(ctx, k.Stock, k.Interval); err != nil && ctx.Err() == nil && p.cfg.RetryDelay > 0 {
		p.timers.Set(timerRetry, p.cfg.RetryDelay, func() { p.refreshActive(ctx) })
	}
}

// Refresh fetches bars newer than the cached tail of (stock, code), or the
// newest page when nothing is cached. It does nothing while a fetch is in
// flight or when the series was updated within RefreshAfter, and reports
// whether a request was made.
func (p *Poller) Refresh(ctx context.Context, stock string, code interval.Code) (bool, error) {
	var from int64
	if ser, ok := p.cache.GetSeries(stock, code); ok {
		if ser.Loading() || !ser.LastUpdate.Before(p.now().Add(-p.cfg.RefreshAfter)) {
			return false, nil
		}
		if last, ok := ser.Last(); ok {
			from = last.Timestamp
		}
	}
	if !p.cache.StartFetch(stock, code) {
		return false, nil
	}
	return true, p.fetch(ctx, model.Key{Stock: stock, Interval: code}, from, 0)
}

// LoadMore backfills the page before the cached head of (stock, code) once
// the viewport has scrolled back to from. It does nothing while loading,
// once history is complete, while fewer than one page is cached, or while
// the bar half a page in is older than from.
func (p *Poller) LoadMore(ctx context.Context, stock string, code interval.Code, from int64) (bool, error) {
	ser, ok := p.cache.GetSeries(stock, code)
	if !ok {
		return false, errors.Wrapf(ErrNoSeries, "%s:%s", stock, code)
	}
	limit := p.cfg.PageLimit
	if ser.Loading() || ser.Complete || len(ser.Data) < limit || ser.Data[limit/2].Timestamp < from {
		return false, nil
	}
	to := ser.Data[0].Timestamp
	if !p.cache.StartFetch(stock, code) {
		return false, nil
	}
	return true, p.fetch(ctx, model.Key{Stock: stock, Interval: code}, 0, to)
}

// fetch runs one history request for a series already moved to loading.
func (p *Poller) fetch(ctx context.Context, k model.Key, from, to int64) error {
	backfill := to > 0
	ctx = logger.WithTraceID(ctx, logger.GenerateTraceID(k.String(), p.now()))

	rows, err := p.api.FetchHistory(ctx, k.Stock, k.Interval, from, to)
	if p.OnHistory != nil {
		p.OnHistory(k, backfill, err)
	}
	if err != nil {
		p.cache.StopFetch(k.Stock, k.Interval)
		p.log.Warn("history fetch failed",
			zap.Stringer("key", k), zap.Int64("from", from), zap.Int64("to", to), zap.Error(err))
		return err
	}

	if backfill && len(rows) == 0 {
		p.cache.MarkComplete(k.Stock, k.Interval)
		p.log.Debug("history complete", zap.Stringer("key", k))
		return nil
	}
	if p.cache.ApplyFetchResult(k.Stock, k.Interval, rows, p.cfg.PageLimit) && len(rows) > 0 && p.OnSeries != nil {
		p.OnSeries(k)
	}
	return nil
}

func (p *Poller) snapshotCycle(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	err := p.PollSnapshot(ctx)
	if ctx.Err() != nil {
		return
	}
	delay := scheduler.NextSnapshotDelay(p.now(), p.cfg.SnapshotSecond, p.cfg.MinDelay)
	p.timers.Set(timerSnapshot, delay, func() { p.snapshotCycle(ctx) })
	if err != nil {
		p.log.Warn("snapshot poll failed", zap.Duration("next_in", delay), zap.Error(err))
	}
}

// PollSnapshot fetches the full-universe snapshot, folds each stock's tick
// into every cached series of that stock and then evicts stale series.
func (p *Poller) PollSnapshot(ctx context.Context) error {
	now := p.now()
	ctx = logger.WithTraceID(ctx, logger.GenerateTraceID("snapshot", now))
	resp, err := p.api.FetchSnapshot(ctx)
	if err != nil {
		if p.OnSnapshot != nil {
			p.OnSnapshot(resp, err)
		}
		return err
	}

	ts := resp.Timestamp
	if ts <= 0 {
		ts = now.Unix()
	}

	p.mu.Lock()
	p.snapshot = resp
	p.snapAt = now
	p.mu.Unlock()

	changed := 0
	for _, k := range p.cache.Keys() {
		row, ok := resp.Find(k.Stock)
		if !ok {
			continue
		}
		o := p.cache.ApplyLiveSnapshot(k.Stock, k.Interval, ts, row)
		if p.OnLive != nil {
			p.OnLive(o)
		}
		if o == cache.LiveAppended || o == cache.LiveUpdated {
			changed++
			if p.OnSeries != nil {
				p.OnSeries(k)
			}
		}
	}

	p.log.Debug("snapshot applied", zap.Int("stocks", len(resp.Data)), zap.Int64("ts", ts), zap.Int("series_changed", changed))
	p.Evict(now)
	if p.OnSnapshot != nil {
		p.OnSnapshot(resp, nil)
	}
	return nil
}

// Evict drops or trims series nobody looked at within the retention
// window. The active pair is always kept.
func (p *Poller) Evict(now time.Time) cache.EvictReport {
	k := p.Active()
	rep := p.cache.EvictStale(now, k.Stock, k.Interval, p.cfg.Retention)
	series, bars := p.cache.Stats()
	if len(rep.Deleted)+len(rep.Truncated) > 0 {
		p.log.Info("evicted stale series",
			zap.Int("deleted", len(rep.Deleted)), zap.Int("truncated", len(rep.Truncated)),
			zap.Int("series", series), zap.Int("bars", bars))
	}
	if p.OnEvict != nil {
		p.OnEvict(rep, series, bars)
	}
	return rep
}
