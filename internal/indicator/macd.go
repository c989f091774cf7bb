package indicator

import (
	"math"

	"stockchart/internal/model"
)

// MACDResult holds the three MACD outputs. Signal and Histogram share
// timestamps; Line starts earlier by the signal seed window.
type MACDResult struct {
	Line      []model.Point
	Signal    []model.Point
	Histogram []model.HistogramPoint
}

// Empty reports whether the series was too short for any MACD output.
func (m MACDResult) Empty() bool { return len(m.Line) == 0 }

// MACD computes EMA(fast) - EMA(slow), the EMA of that line over signal
// bars, and the histogram line - signal. The longer EMA is trimmed at the
// front so both start on the same bar.
//
// Histogram bars use ToneLight when they keep the previous bar's sign but
// shrink in magnitude, ToneBase otherwise.
func MACD(bars []model.Bar, fast, slow, signal int) MACDResult {
	cl := closes(bars)
	f := emaPoints(cl, fast)
	s := emaPoints(cl, slow)
	if len(s) < len(f) {
		f = f[len(f)-len(s):]
	} else if len(f) < len(s) {
		s = s[len(s)-len(f):]
	}
	if len(s) == 0 {
		return MACDResult{}
	}

	line := make([]model.Point, len(s))
	for i := range s {
		line[i] = model.Point{Timestamp: s[i].Timestamp, Value: f[i].Value - s[i].Value}
	}
	sig := emaPoints(line, signal)
	off := len(line) - len(sig)

	hist := make([]model.HistogramPoint, len(sig))
	prev := 0.0
	for i := range sig {
		v := line[i+off].Value - sig[i].Value
		tone := model.ToneBase
		if v*prev > 0 && math.Abs(v) < math.Abs(prev) {
			tone = model.ToneLight
		}
		hist[i] = model.HistogramPoint{
			Point: model.Point{Timestamp: sig[i].Timestamp, Value: v},
			Tone:  tone,
		}
		prev = v
	}
	return MACDResult{Line: line, Signal: sig, Histogram: hist}
}
