// Package model holds the data types shared by the cache, the indicator
// engine, the poller and the gateway.
package model

import (
	"time"

	"stockchart/internal/interval"
)

// FetchState is the fetch state machine of a Series.
//
//	absent → loading → idle ⇄ loading
type FetchState uint8

const (
	StateIdle FetchState = iota
	StateLoading
)

func (s FetchState) String() string {
	if s == StateLoading {
		return "loading"
	}
	return "idle"
}

// MarshalText encodes the state as "idle" or "loading".
func (s FetchState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Series is the ordered bar array for one (stock, interval) pair plus its
// fetch and view bookkeeping. Data timestamps are strictly increasing.
type Series struct {
	Data       []Bar      `json:"data"`
	State      FetchState `json:"state"`
	Complete   bool       `json:"complete"`
	LastUpdate time.Time  `json:"lastUpdate"`
	LastView   time.Time  `json:"lastView"`
}

// Loading reports whether a fetch for this series is in flight.
func (s Series) Loading() bool { return s.State == StateLoading }

// Empty reports whether the series has no bars.
func (s Series) Empty() bool { return len(s.Data) == 0 }

// First returns the oldest bar. ok is false for an empty series.
func (s Series) First() (Bar, bool) {
	if len(s.Data) == 0 {
		return Bar{}, false
	}
	return s.Data[0], true
}

// Last returns the newest bar. ok is false for an empty series.
func (s Series) Last() (Bar, bool) {
	if len(s.Data) == 0 {
		return Bar{}, false
	}
	return s.Data[len(s.Data)-1], true
}

// Clone returns a copy that shares no bar storage with s.
func (s Series) Clone() Series {
	out := s
	if s.Data != nil {
		out.Data = make([]Bar, len(s.Data))
		copy(out.Data, s.Data)
	}
	return out
}

// Key identifies a cached series.
type Key struct {
	Stock    string        `json:"stock"`
	Interval interval.Code `json:"interval"`
}

// String returns "stock:interval".
func (k Key) String() string { return k.Stock + ":" + string(k.Interval) }
