package indicator

import (
	"math"

	"stockchart/internal/model"
)

// SMA calculates Simple Moving Average over a rolling window of closes.
// Uses a preallocated circular buffer for zero-allocation hot path.
type SMA struct {
	length  int
	buf     []float64 // preallocated circular buffer
	idx     int       // current write position
	count   int       // total values received
	sum     float64   // sum of the finite values in the window
	bad     int       // non-finite values in the window
	current float64
}

// NewSMA creates a new SMA indicator with the given length.
func NewSMA(length int) *SMA {
	return &SMA{
		length:  length,
		buf:     make([]float64, length),
		current: math.NaN(),
	}
}

func (s *SMA) Name() string { return "SMA" }

func (s *SMA) Update(b model.Bar) { s.push(b.Last()) }

func (s *SMA) push(x float64) {
	if s.count >= s.length {
		// Subtract the oldest value being overwritten
		s.drop(s.buf[s.idx])
	}

	s.buf[s.idx] = x
	if finite(x) {
		s.sum += x
	} else {
		s.bad++
	}
	s.idx = (s.idx + 1) % s.length
	s.count++

	if s.count >= s.length {
		s.current = s.mean(s.sum, s.bad)
	}
}

func (s *SMA) drop(x float64) {
	if finite(x) {
		s.sum -= x
	} else {
		s.bad--
	}
}

// A single NaN or Inf anywhere in the window makes the mean NaN, and the
// window recovers once that value slides out.
func (s *SMA) mean(sum float64, bad int) float64 {
	if bad > 0 {
		return math.NaN()
	}
	return sum / float64(s.length)
}

func (s *SMA) Value() float64 { return s.current }
func (s *SMA) Ready() bool    { return s.count >= s.length }

// Peek computes what Value() would be with b appended, without mutating state.
func (s *SMA) Peek(b model.Bar) float64 {
	if s.count+1 < s.length {
		return math.NaN()
	}
	x := b.Last()
	sum, bad := s.sum, s.bad
	if s.count >= s.length {
		if old := s.buf[s.idx]; finite(old) {
			sum -= old
		} else {
			bad--
		}
	}
	if finite(x) {
		sum += x
	} else {
		bad++
	}
	return s.mean(sum, bad)
}

// Reset clears the SMA state for reuse.
func (s *SMA) Reset() {
	s.idx = 0
	s.count = 0
	s.sum = 0
	s.bad = 0
	s.current = math.NaN()
	for i := range s.buf {
		s.buf[i] = 0
	}
}

// SMASeries returns one point per bar once length bars are available.
func SMASeries(bars []model.Bar, length int) []model.Point {
	return smaPoints(closes(bars), length)
}

func smaPoints(in []model.Point, length int) []model.Point {
	if length <= 0 || len(in) < length {
		return nil
	}
	s := NewSMA(length)
	out := make([]model.Point, 0, len(in)-length+1)
	for _, p := range in {
		s.push(p.Value)
		if s.Ready() {
			out = append(out, model.Point{Timestamp: p.Timestamp, Value: s.Value()})
		}
	}
	return out
}
