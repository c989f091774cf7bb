package indicator

import (
	"math"

	"stockchart/internal/model"
)

// ADX computes the Average Directional Index.
//
// True range and directional movement start at bar 1. Each is
// Wilder-summed over n, DX is derived from the two directional indices,
// and ADX is the Wilder average of DX once more than n DX values exist.
// The first ADX point sits on the n-th DX point.
func ADX(bars []model.Bar, n int) []model.Point {
	if n <= 0 || len(bars) < 2 {
		return nil
	}
	tr := make([]model.Point, 0, len(bars)-1)
	plus := make([]model.Point, 0, len(bars)-1)
	minus := make([]model.Point, 0, len(bars)-1)

	for i := 1; i < len(bars); i++ {
		ts := bars[i].Timestamp
		ch, cl := bars[i].HighValue(), bars[i].LowValue()
		ph, pl, pc := bars[i-1].HighValue(), bars[i-1].LowValue(), bars[i-1].Last()

		up := ch - ph
		down := pl - cl
		dmp, dmm := 0.0, 0.0
		if up > down && up > 0 {
			dmp = up
		}
		if down > up && down > 0 {
			dmm = down
		}
		plus = append(plus, model.Point{Timestamp: ts, Value: dmp})
		minus = append(minus, model.Point{Timestamp: ts, Value: dmm})
		tr = append(tr, model.Point{Timestamp: ts, Value: max3(ch-cl, math.Abs(ch-pc), math.Abs(cl-pc))})
	}

	str := wilderSum(tr, n)
	sp := wilderSum(plus, n)
	sm := wilderSum(minus, n)

	dx := make([]model.Point, len(str))
	for i := range str {
		dip := sp[i].Value / str[i].Value * 100
		dim := sm[i].Value / str[i].Value * 100
		dx[i] = model.Point{Timestamp: str[i].Timestamp, Value: math.Abs(dip-dim) / (dip + dim) * 100}
	}
	if len(dx) <= n {
		return nil
	}

	avg := NewSMMA(n)
	out := make([]model.Point, 0, len(dx)-n+1)
	for _, p := range dx {
		avg.push(p.Value)
		if avg.Ready() {
			out = append(out, model.Point{Timestamp: p.Timestamp, Value: avg.Value()})
		}
	}
	return out
}

// wilderSum seeds with the plain sum of the first n values and continues
// with prev - prev/n + x. It needs more than n inputs.
func wilderSum(in []model.Point, n int) []model.Point {
	if len(in) <= n {
		return nil
	}
	out := make([]model.Point, 0, len(in)-n+1)
	sum := 0.0
	for _, p := range in[:n] {
		sum += p.Value
	}
	out = append(out, model.Point{Timestamp: in[n-1].Timestamp, Value: sum})
	prev := sum
	for _, p := range in[n:] {
		prev = prev - prev/float64(n) + p.Value
		out = append(out, model.Point{Timestamp: p.Timestamp, Value: prev})
	}
	return out
}

// max3 returns NaN if any argument is NaN.
func max3(a, b, c float64) float64 {
	return math.Max(a, math.Max(b, c))
}
