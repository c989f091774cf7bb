package poller

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockchart/internal/cache"
	"stockchart/internal/interval"
	"stockchart/internal/model"
)

// ── fakes ──

type historyCall struct {
	Key      model.Key
	From, To int64
}

type fakeAPI struct {
	mu      sync.Mutex
	calls   []historyCall
	pages   map[model.Key][][]model.Bar // consumed in order
	histErr error
	snap    model.SnapshotResponse
	snapErr error
	snaps   int
	block   chan struct{} // when set, FetchHistory waits on it
}

func newFakeAPI() *fakeAPI { return &fakeAPI{pages: make(map[model.Key][][]model.Bar)} }

func (f *fakeAPI) queue(stock string, code interval.Code, rows []model.Bar) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := model.Key{Stock: stock, Interval: code}
	f.pages[k] = append(f.pages[k], rows)
}

func (f *fakeAPI) FetchHistory(ctx context.Context, stock string, code interval.Code, from, to int64) ([]model.Bar, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	k := model.Key{Stock: stock, Interval: code}
	f.calls = append(f.calls, historyCall{Key: k, From: from, To: to})
	if f.histErr != nil {
		return nil, f.histErr
	}
	q := f.pages[k]
	if len(q) == 0 {
		return nil, nil
	}
	f.pages[k] = q[1:]
	return q[0], nil
}

func (f *fakeAPI) FetchSnapshot(context.Context) (model.SnapshotResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snaps++
	return f.snap, f.snapErr
}

func (f *fakeAPI) history() []historyCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]historyCall(nil), f.calls...)
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func ticks(ts ...int64) []model.Bar {
	out := make([]model.Bar, len(ts))
	for i, t := range ts {
		out[i] = model.NewTickBar(t, 10, 100, 0)
	}
	return out
}

func tickRange(start, n int64) []model.Bar {
	ts := make([]int64, n)
	for i := range ts {
		ts[i] = start + int64(i)*60
	}
	return ticks(ts...)
}

func newTestPoller(pageLimit int) (*Poller, *fakeAPI, *cache.Store, *clock) {
	clk := &clock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	store := cache.New(cache.WithClock(clk.now), cache.WithPageLimit(pageLimit))
	api := newFakeAPI()
	p := New(Config{
		PageLimit:       pageLimit,
		RefreshAfter:    60 * time.Second,
		Retention:       15 * time.Minute,
		SnapshotSecond:  3,
		MinDelay:        5 * time.Second,
		CatchUpSpec:     "@every 60s",
		DefaultStock:    "TCT",
		DefaultInterval: interval.M1,
	}, api, store, nil)
	p.now = clk.now
	return p, api, store, clk
}

// ── Refresh ──

func TestRefresh_FirstLoadThenCatchUp(t *testing.T) {
	ctx := context.Background()
	p, api, store, clk := newTestPoller(1000)
	api.queue("TCT", interval.M1, ticks(1000, 1060))
	api.queue("TCT", interval.M1, ticks(1120))

	fetched, err := p.Refresh(ctx, "TCT", interval.M1)
	require.NoError(t, err)
	assert.True(t, fetched)

	fetched, err = p.Refresh(ctx, "TCT", interval.M1)
	require.NoError(t, err)
	assert.False(t, fetched, "updated within the refresh window")

	clk.advance(61 * time.Second)
	fetched, err = p.Refresh(ctx, "TCT", interval.M1)
	require.NoError(t, err)
	assert.True(t, fetched)

	assert.Equal(t, []historyCall{
		{Key: model.Key{Stock: "TCT", Interval: interval.M1}},
		{Key: model.Key{Stock: "TCT", Interval: interval.M1}, From: 1060},
	}, api.history())

	ser, _ := store.GetSeries("TCT", interval.M1)
	assert.Len(t, ser.Data, 3)
	assert.False(t, ser.Loading())
}

func TestRefresh_FailureStopsFetch(t *testing.T) {
	p, api, store, _ := newTestPoller(1000)
	api.histErr = errors.New("boom")

	var reported error
	p.OnHistory = func(_ model.Key, backfill bool, err error) {
		assert.False(t, backfill)
		reported = err
	}

	_, err := p.Refresh(context.Background(), "TCT", interval.H1)
	require.Error(t, err)
	assert.Equal(t, err, reported)

	ser, ok := store.GetSeries("TCT", interval.H1)
	require.True(t, ok)
	assert.False(t, ser.Loading(), "failed fetch must clear loading so the next trigger retries")
	assert.True(t, ser.Empty())
}

func TestRefresh_SkipsWhileLoading(t *testing.T) {
	p, api, store, _ := newTestPoller(1000)
	require.True(t, store.StartFetch("TCT", interval.M1))

	fetched, err := p.Refresh(context.Background(), "TCT", interval.M1)
	require.NoError(t, err)
	assert.False(t, fetched)
	assert.Empty(t, api.history())
}

func TestRefresh_ConcurrentCallsIssueOneRequest(t *testing.T) {
	p, api, _, _ := newTestPoller(1000)
	api.block = make(chan struct{})
	api.queue("TCT", interval.M1, ticks(1000))

	var wg sync.WaitGroup
	results := make([]bool, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = p.Refresh(context.Background(), "TCT", interval.M1)
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(api.block)
	wg.Wait()

	n := 0
	for _, r := range results {
		if r {
			n++
		}
	}
	assert.Equal(t, 1, n)
	assert.Len(t, api.history(), 1)
}

// ── LoadMore ──

func TestLoadMore_Conditions(t *testing.T) {
	ctx := context.Background()
	p, api, store, _ := newTestPoller(4)
	k := model.Key{Stock: "TCT", Interval: interval.M1}

	_, err := p.LoadMore(ctx, "TCT", interval.M1, 0)
	assert.ErrorIs(t, err, ErrNoSeries)

	api.queue("TCT", interval.M1, ticks(1000, 1060, 1120))
	_, err = p.Refresh(ctx, "TCT", interval.M1)
	require.NoError(t, err)
	ser, _ := store.GetSeries("TCT", interval.M1)
	require.True(t, ser.Complete, "short first page")

	fetched, err := p.LoadMore(ctx, "TCT", interval.M1, 0)
	require.NoError(t, err)
	assert.False(t, fetched, "complete series")

	// Full page: eligible only when the viewport reached data[limit/2].
	p2, api2, store2, _ := newTestPoller(4)
	api2.queue("TCT", interval.M1, tickRange(1000, 4))
	_, err = p2.Refresh(ctx, "TCT", interval.M1)
	require.NoError(t, err)

	fetched, err = p2.LoadMore(ctx, "TCT", interval.M1, 1121)
	require.NoError(t, err)
	assert.False(t, fetched, "data[2] = 1120 < from")

	api2.queue("TCT", interval.M1, tickRange(760, 4))
	fetched, err = p2.LoadMore(ctx, "TCT", interval.M1, 1120)
	require.NoError(t, err)
	assert.True(t, fetched)
	assert.Equal(t, historyCall{Key: k, To: 1000}, api2.history()[1])

	ser, _ = store2.GetSeries("TCT", interval.M1)
	assert.Len(t, ser.Data, 8)
	assert.False(t, ser.Complete)
}

func TestLoadMore_EmptyPageMarksComplete(t *testing.T) {
	ctx := context.Background()
	p, api, store, _ := newTestPoller(2)
	api.queue("TCT", interval.M1, tickRange(1000, 2))
	_, err := p.Refresh(ctx, "TCT", interval.M1)
	require.NoError(t, err)

	var changed []model.Key
	p.OnSeries = func(k model.Key) { changed = append(changed, k) }

	fetched, err := p.LoadMore(ctx, "TCT", interval.M1, 0)
	require.NoError(t, err)
	assert.True(t, fetched)

	ser, _ := store.GetSeries("TCT", interval.M1)
	assert.True(t, ser.Complete)
	assert.False(t, ser.Loading())
	assert.Len(t, ser.Data, 2)
	assert.Empty(t, changed)
}

// ── Snapshot ──

func TestPollSnapshot_AppliesToEveryCachedSeries(t *testing.T) {
	ctx := context.Background()
	p, api, store, _ := newTestPoller(1000)
	api.queue("TCT", interval.M1, ticks(1000))
	api.queue("TCT", interval.H1, []model.Bar{model.NewAggregateBar(0, 9, 9, 9, 9, 100, 0)})
	api.queue("FHG", interval.M1, ticks(1000))
	for _, k := range []model.Key{{Stock: "TCT", Interval: interval.M1}, {Stock: "TCT", Interval: interval.H1}, {Stock: "FHG", Interval: interval.M1}} {
		_, err := p.Refresh(ctx, k.Stock, k.Interval)
		require.NoError(t, err)
	}

	api.snap = model.SnapshotResponse{
		Timestamp: 1060,
		Data: []model.StockSnapshot{
			model.NewStockSnapshot("tct", "Torn City Times", 11, 10, 100, 1100),
		},
	}

	outcomes := map[cache.LiveOutcome]int{}
	p.OnLive = func(o cache.LiveOutcome) { outcomes[o]++ }
	var changed []model.Key
	p.OnSeries = func(k model.Key) { changed = append(changed, k) }
	var snapErr error = errors.New("unset")
	p.OnSnapshot = func(_ model.SnapshotResponse, err error) { snapErr = err }

	require.NoError(t, p.PollSnapshot(ctx))
	assert.NoError(t, snapErr)
	assert.Equal(t, map[cache.LiveOutcome]int{cache.LiveAppended: 1, cache.LiveUpdated: 1}, outcomes)
	assert.ElementsMatch(t, []model.Key{{Stock: "TCT", Interval: interval.M1}, {Stock: "TCT", Interval: interval.H1}}, changed)

	m1, _ := store.GetSeries("TCT", interval.M1)
	assert.Equal(t, int64(1060), m1.Data[len(m1.Data)-1].Timestamp)
	h1, _ := store.GetSeries("TCT", interval.H1)
	assert.Equal(t, 11.0, h1.Data[0].High)

	resp, _, ok := p.Snapshot()
	require.True(t, ok)
	assert.Equal(t, int64(1060), resp.Timestamp)
}

func TestPollSnapshot_Error(t *testing.T) {
	p, api, _, _ := newTestPoller(1000)
	api.snapErr = errors.New("down")
	var got error
	p.OnSnapshot = func(_ model.SnapshotResponse, err error) { got = err }

	assert.Error(t, p.PollSnapshot(context.Background()))
	assert.Equal(t, api.snapErr, got)
	_, _, ok := p.Snapshot()
	assert.False(t, ok)
}

// ── Active pair, warm-up, eviction ──

func TestSetActive(t *testing.T) {
	ctx := context.Background()
	p, api, _, _ := newTestPoller(1000)
	api.queue("FHG", interval.H4, nil)

	var activated []model.Key
	p.OnActive = func(k model.Key) { activated = append(activated, k) }

	require.NoError(t, p.SetActive(ctx, " fhg ", interval.H4))
	assert.Equal(t, model.Key{Stock: "FHG", Interval: interval.H4}, p.Active())
	assert.Len(t, api.history(), 1)

	require.NoError(t, p.SetActive(ctx, "FHG", interval.H4))
	assert.Len(t, activated, 1, "same pair is not a change")

	assert.Error(t, p.SetActive(ctx, "FHG", interval.Code("m7")))
	assert.Error(t, p.SetActive(ctx, "", interval.M1))
}

func TestWarm_DeduplicatesStocks(t *testing.T) {
	p, api, store, _ := newTestPoller(1000)
	p.cfg.WarmStocks = []string{"fhg", "TCT", "", "SYS"}
	api.queue("SYS", interval.M1, ticks(1000))

	p.Warm(context.Background())

	assert.Len(t, api.history(), 3)
	assert.Equal(t, 3, store.Len())
}

func TestEvict_KeepsActivePair(t *testing.T) {
	ctx := context.Background()
	p, api, store, clk := newTestPoller(1000)
	api.queue("TCT", interval.M1, ticks(1000))
	api.queue("FHG", interval.M1, ticks(1000))
	_, _ = p.Refresh(ctx, "TCT", interval.M1)
	_, _ = p.Refresh(ctx, "FHG", interval.M1)

	var gotSeries int
	p.OnEvict = func(_ cache.EvictReport, series, _ int) { gotSeries = series }

	clk.advance(time.Hour)
	rep := p.Evict(clk.now())
	assert.Equal(t, []model.Key{{Stock: "FHG", Interval: interval.M1}}, rep.Deleted)
	assert.Equal(t, 1, store.Len())
	assert.Equal(t, 1, gotSeries)
}

func TestPollSnapshot_EvictsStaleSeries(t *testing.T) {
	ctx := context.Background()
	p, api, store, clk := newTestPoller(2)
	api.queue("TCT", interval.M1, ticks(1000))
	api.queue("FHG", interval.M1, ticks(1000))
	api.queue("SYS", interval.M1, ticks(1000, 1060))
	api.queue("SYS", interval.M1, ticks(880, 940))
	for _, stock := range []string{"TCT", "FHG", "SYS"} {
		_, err := p.Refresh(ctx, stock, interval.M1)
		require.NoError(t, err)
	}
	_, err := p.LoadMore(ctx, "SYS", interval.M1, 1000)
	require.NoError(t, err)

	clk.advance(10 * time.Minute)
	store.TouchView("SYS", interval.M1)
	clk.advance(10 * time.Minute)

	var rep cache.EvictReport
	p.OnEvict = func(r cache.EvictReport, _, _ int) { rep = r }
	api.snap = model.SnapshotResponse{Timestamp: 2200}
	require.NoError(t, p.PollSnapshot(ctx))

	assert.Equal(t, []model.Key{{Stock: "FHG", Interval: interval.M1}}, rep.Deleted)
	assert.Equal(t, []model.Key{{Stock: "SYS", Interval: interval.M1}}, rep.Truncated)
	_, ok := store.GetSeries("TCT", interval.M1)
	assert.True(t, ok, "active pair is kept")
	sys, _ := store.GetSeries("SYS", interval.M1)
	assert.Len(t, sys.Data, 2)
}

func TestRun_PollsSnapshotAndStops(t *testing.T) {
	p, api, _, _ := newTestPoller(1000)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error)
	go func() { done <- p.Run(ctx) }()

	assert.Eventually(t, func() bool {
		api.mu.Lock()
		defer api.mu.Unlock()
		return api.snaps >= 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return p.timers.Pending(timerSnapshot) }, time.Second, 10*time.Millisecond,
		"next snapshot is scheduled after the cycle")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return")
	}
	assert.False(t, p.timers.Pending(timerSnapshot))
}

func TestRun_BadCronSpec(t *testing.T) {
	p, _, _, _ := newTestPoller(1000)
	p.cfg.CatchUpSpec = "whenever"
	assert.Error(t, p.Run(context.Background()))
}
