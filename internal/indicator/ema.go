package indicator

import (
	"math"

	"stockchart/internal/model"
)

// DefaultSmoothing is the conventional EMA smoothing factor.
const DefaultSmoothing = 2.0

// EMA calculates Exponential Moving Average.
// O(1) per update, no window storage needed.
type EMA struct {
	length     int
	multiplier float64
	current    float64
	count      int
	sum        float64
}

// NewEMA creates a new EMA indicator with the given length and the default
// smoothing factor.
func NewEMA(length int) *EMA {
	return NewEMAWithSmoothing(length, DefaultSmoothing)
}

// NewEMAWithSmoothing creates an EMA with K = smoothing / (length + 1).
func NewEMAWithSmoothing(length int, smoothing float64) *EMA {
	return &EMA{
		length:     length,
		multiplier: smoothing / float64(length+1),
		current:    math.NaN(),
	}
}

func (e *EMA) Name() string { return "EMA" }

func (e *EMA) Update(b model.Bar) { e.push(b.Last()) }

func (e *EMA) push(x float64) {
	e.count++
	if e.count <= e.length {
		// Accumulate for initial SMA seed
		e.sum += x
		if e.count == e.length {
			e.current = e.sum / float64(e.length)
		}
		return
	}
	e.current = e.next(x)
}

func (e *EMA) next(x float64) float64 {
	return (x-e.current)*e.multiplier + e.current
}

func (e *EMA) Value() float64 { return e.current }
func (e *EMA) Ready() bool    { return e.count >= e.length }

// Peek computes what Value() would be with b appended, without mutating state.
func (e *EMA) Peek(b model.Bar) float64 {
	x := b.Last()
	switch {
	case e.count+1 < e.length:
		return math.NaN()
	case e.count+1 == e.length:
		return (e.sum + x) / float64(e.length)
	}
	return e.next(x)
}

// Reset clears the EMA state for reuse.
func (e *EMA) Reset() {
	e.current = math.NaN()
	e.count = 0
	e.sum = 0
}

// EMASeries returns the EMA of the bar closes. The first point is the seed
// mean at bar length-1. The series must hold more than length bars,
// otherwise the result is empty.
func EMASeries(bars []model.Bar, length int) []model.Point {
	return emaPoints(closes(bars), length)
}

func emaPoints(in []model.Point, length int) []model.Point {
	if length <= 0 || len(in) <= length {
		return nil
	}
	e := NewEMA(length)
	out := make([]model.Point, 0, len(in)-length+1)
	for _, p := range in {
		e.push(p.Value)
		if e.Ready() {
			out = append(out, model.Point{Timestamp: p.Timestamp, Value: e.Value()})
		}
	}
	return out
}
