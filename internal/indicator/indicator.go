// Package indicator computes technical indicator overlays over cached bar
// series.
//
// Two forms exist. The streaming indicators (SMA, EMA, SMMA, RSI) implement
// Indicator and consume one bar at a time; the series functions (SMASeries,
// EMASeries, RSISeries, Stochastic, MACD, ADX) rebuild a full overlay from
// scratch on every call. Every output point carries the timestamp of the
// bar that produced it.
//
// Lengths are assumed to be valid; clamping happens where specs are
// configured (see Clamp).
package indicator

import (
	"math"

	"stockchart/internal/model"
)

// Indicator is the interface for streaming indicators.
type Indicator interface {
	// Name returns the indicator name (e.g., "SMA", "RSI").
	Name() string

	// Update feeds the next bar.
	Update(b model.Bar)

	// Value returns the current value. NaN until Ready.
	Value() float64

	// Ready returns true once enough bars have been seen.
	Ready() bool

	// Peek computes what Value() would be if b were the next bar,
	// WITHOUT mutating internal state. Used for the forming bar.
	Peek(b model.Bar) float64
}

var nan = math.NaN()

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// closes extracts the closing value of each bar (price for tick bars).
func closes(bars []model.Bar) []model.Point {
	out := make([]model.Point, len(bars))
	for i, b := range bars {
		out[i] = model.Point{Timestamp: b.Timestamp, Value: b.Last()}
	}
	return out
}
