// Package scheduler owns poll timing: named one-shot timers for the
// snapshot cadence and a cron runner for periodic catch-up work.
package scheduler

import (
	"sync"
	"time"
)

// Timers is a set of named one-shot timers. Setting a name that is already
// pending replaces it, so at most one callback per name is outstanding.
type Timers struct {
	mu     sync.Mutex
	timers map[string]*entry
	gen    uint64
}

type entry struct {
	t   *time.Timer
	gen uint64
}

// NewTimers creates an empty timer set.
func NewTimers() *Timers {
	return &Timers{timers: make(map[string]*entry)}
}

// Set schedules fn to run once after d under name, cancelling any timer
// already pending under that name. fn runs on its own goroutine.
func (ts *Timers) Set(name string, d time.Duration, fn func()) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if old, ok := ts.timers[name]; ok {
		old.t.Stop()
	}
	ts.gen++
	e := &entry{gen: ts.gen}
	e.t = time.AfterFunc(d, func() {
		// A replaced timer may already be firing; only the current
		// generation runs.
		ts.mu.Lock()
		cur, ok := ts.timers[name]
		if !ok || cur.gen != e.gen {
			ts.mu.Unlock()
			return
		}
		delete(ts.timers, name)
		ts.mu.Unlock()
		fn()
	})
	ts.timers[name] = e
}

// SetAt schedules fn at the wall-clock time at (immediately if past).
func (ts *Timers) SetAt(name string, at time.Time, fn func()) {
	ts.Set(name, time.Until(at), fn)
}

// Clear cancels the timer pending under name. It reports whether one was.
func (ts *Timers) Clear(name string) bool {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	e, ok := ts.timers[name]
	if !ok {
		return false
	}
	e.t.Stop()
	delete(ts.timers, name)
	return true
}

// Pending reports whether a timer is outstanding under name.
func (ts *Timers) Pending(name string) bool {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	_, ok := ts.timers[name]
	return ok
}

// Stop cancels every pending timer.
func (ts *Timers) Stop() {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	for name, e := range ts.timers {
		e.t.Stop()
		delete(ts.timers, name)
	}
}

// NextSnapshotDelay returns the wait until second `second` of the next
// minute, but never less than min.
func NextSnapshotDelay(now time.Time, second int, min time.Duration) time.Duration {
	next := now.Truncate(time.Minute).Add(time.Minute + time.Duration(second)*time.Second)
	if d := next.Sub(now); d > min {
		return d
	}
	return min
}
