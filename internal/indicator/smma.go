package indicator

import (
	"math"

	"stockchart/internal/model"
)

// SMMA calculates Smoothed Moving Average (Wilder-style smoothing).
// First value is SMA(length), then SMMA = (prev*(length-1) + x) / length.
// RSI and ADX use it for their running averages.
type SMMA struct {
	length  int
	count   int
	sum     float64
	current float64
}

// NewSMMA creates a new SMMA indicator with the given length.
func NewSMMA(length int) *SMMA {
	return &SMMA{length: length, current: math.NaN()}
}

func (s *SMMA) Name() string { return "SMMA" }

func (s *SMMA) Update(b model.Bar) { s.push(b.Last()) }

func (s *SMMA) push(x float64) {
	s.count++
	if s.count <= s.length {
		s.sum += x
		if s.count == s.length {
			s.current = s.sum / float64(s.length)
		}
		return
	}
	s.current = s.next(x)
}

func (s *SMMA) next(x float64) float64 {
	n := float64(s.length)
	return ((n-1)*s.current + x) / n
}

func (s *SMMA) Value() float64 { return s.current }
func (s *SMMA) Ready() bool    { return s.count >= s.length }

// Peek computes what Value() would be with b appended, without mutating state.
func (s *SMMA) Peek(b model.Bar) float64 { return s.peek(b.Last()) }

func (s *SMMA) peek(x float64) float64 {
	switch {
	case s.count+1 < s.length:
		return math.NaN()
	case s.count+1 == s.length:
		return (s.sum + x) / float64(s.length)
	}
	return s.next(x)
}

// Reset clears the SMMA state for reuse.
func (s *SMMA) Reset() {
	s.count = 0
	s.sum = 0
	s.current = math.NaN()
}
