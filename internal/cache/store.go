// Package cache holds the per-(stock, interval) bar series and the rules
// for folding history pages and live snapshot ticks into them.
//
// The Store is the only owner of Series values. Every operation runs under
// one mutex and publishes a fully merged Series, and readers always get a
// copy, so callers can never observe or cause a half-applied merge.
package cache

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"stockchart/internal/interval"
	"stockchart/internal/model"
)

const (
	// DefaultPageLimit is the upstream page size.
	DefaultPageLimit = 1000
	// DefaultFreshness is how recent LastUpdate must be for a series to
	// accept live snapshot ticks.
	DefaultFreshness = 65 * time.Second
	// DefaultRetention is how long an unviewed series survives eviction.
	DefaultRetention = 15 * time.Minute
)

// Store is the time-series cache: stock → interval → Series.
type Store struct {
	mu     sync.Mutex
	series map[string]map[interval.Code]*model.Series

	now       func() time.Time
	freshness time.Duration
	pageLimit int
	log       *zap.Logger

	// Hooks (optional). Called after the store lock is released.
	OnDiscard    func(k model.Key)                 // fetch result arrived when not loading
	OnOutOfOrder func(k model.Key)                 // live tick older than the last bar
	OnEvict      func(k model.Key, truncated bool) // series deleted or trimmed
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithFreshness sets the live-tick freshness window.
func WithFreshness(d time.Duration) Option {
	return func(s *Store) { s.freshness = d }
}

// WithPageLimit sets the bar count inactive series are trimmed to.
func WithPageLimit(n int) Option {
	return func(s *Store) { s.pageLimit = n }
}

// WithLogger attaches a logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.log = l }
}

// New creates an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		series:    make(map[string]map[interval.Code]*model.Series, 16),
		now:       time.Now,
		freshness: DefaultFreshness,
		pageLimit: DefaultPageLimit,
		log:       zap.NewNop(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// PageLimit returns the configured page size.
func (s *Store) PageLimit() int { return s.pageLimit }

func (s *Store) lookup(stock string, code interval.Code) *model.Series {
	if m, ok := s.series[stock]; ok {
		return m[code]
	}
	return nil
}

// GetSeries returns a copy of the series for (stock, code).
func (s *Store) GetSeries(stock string, code interval.Code) (model.Series, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ser := s.lookup(stock, code)
	if ser == nil {
		return model.Series{}, false
	}
	return ser.Clone(), true
}

// StartFetch moves (stock, code) into the loading state, creating an empty
// series if none exists. It returns false without changing anything when a
// fetch is already in flight; callers must not issue a request then.
func (s *Store) StartFetch(stock string, code interval.Code) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	ser := s.lookup(stock, code)
	if ser == nil {
		m, ok := s.series[stock]
		if !ok {
			m = make(map[interval.Code]*model.Series, 4)
			s.series[stock] = m
		}
		m[code] = &model.Series{State: model.StateLoading, LastView: s.now()}
		return true
	}
	if ser.Loading() {
		return false
	}
	ser.State = model.StateLoading
	return true
}

// StopFetch clears the loading state without touching data. Used when a
// fetch fails; any response still in flight is discarded when it lands.
func (s *Store) StopFetch(stock string, code interval.Code) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ser := s.lookup(stock, code); ser != nil {
		ser.State = model.StateIdle
	}
}

// MarkComplete records that no older history exists and clears loading.
// Used when a backfill page comes back empty.
func (s *Store) MarkComplete(stock string, code interval.Code) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ser := s.lookup(stock, code); ser != nil {
		ser.Complete = true
		ser.State = model.StateIdle
		ser.LastUpdate = s.now()
	}
}

// TouchView marks (stock, code) as viewed now.
func (s *Store) TouchView(stock string, code interval.Code) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ser := s.lookup(stock, code); ser != nil {
		ser.LastView = s.now()
	}
}

// Keys lists cached series ordered by stock, then interval from finest
// to coarsest.
func (s *Store) Keys() []model.Key {
	s.mu.Lock()
	keys := make([]model.Key, 0, len(s.series)*2)
	for stock, m := range s.series {
		for code := range m {
			keys = append(keys, model.Key{Stock: stock, Interval: code})
		}
	}
	s.mu.Unlock()

	rank := make(map[interval.Code]int, 16)
	for i, c := range interval.All() {
		rank[c] = i + 1
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Stock != keys[j].Stock {
			return keys[i].Stock < keys[j].Stock
		}
		ri, rj := rank[keys[i].Interval], rank[keys[j].Interval]
		if ri != rj {
			return ri < rj
		}
		return keys[i].Interval < keys[j].Interval
	})
	return keys
}

// Len returns the number of cached series.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.series {
		n += len(m)
	}
	return n
}

// Stats returns the number of cached series and the total bars they hold.
func (s *Store) Stats() (series, bars int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.series {
		for _, ser := range m {
			series++
			bars += len(ser.Data)
		}
	}
	return series, bars
}
