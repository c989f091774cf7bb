package indicator

import (
	"math"

	"stockchart/internal/model"
)

// Stochastic returns the %K and %D lines.
//
// %K = 100 * (close - lowest low) / (highest high - lowest low) over the
// last kLength bars; %D is the SMA of %K over dLength, stamped
// with the %K timestamps. A flat window divides by zero and yields NaN.
func Stochastic(bars []model.Bar, kLength, dLength int) (k, d []model.Point) {
	if kLength <= 0 || len(bars) < kLength {
		return nil, nil
	}
	k = make([]model.Point, 0, len(bars)-kLength+1)
	for i := kLength - 1; i < len(bars); i++ {
		lo, hi := math.Inf(1), math.Inf(-1)
		for _, b := range bars[i-kLength+1 : i+1] {
			lo = math.Min(lo, b.LowValue())
			hi = math.Max(hi, b.HighValue())
		}
		cp := bars[i].Last()
		k = append(k, model.Point{Timestamp: bars[i].Timestamp, Value: 100 * ((cp - lo) / (hi - lo))})
	}
	return k, smaPoints(k, dLength)
}
