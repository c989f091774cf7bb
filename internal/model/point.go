package model

import "strconv"

// Point is one indicator output aligned to the timestamp of the bar that
// produced it.
type Point struct {
	Timestamp int64
	Value     float64
}

// MarshalJSON encodes the point as [ts, value]; non-finite values become null.
func (p Point) MarshalJSON() ([]byte, error) {
	buf := make([]byte, 0, 32)
	buf = append(buf, '[')
	buf = strconv.AppendInt(buf, p.Timestamp, 10)
	buf = append(buf, ',')
	buf = AppendFloat(buf, p.Value)
	return append(buf, ']'), nil
}

// Histogram tones. ToneLight marks a bar whose magnitude shrank while
// keeping the sign of the previous bar.
const (
	ToneBase  uint8 = 0
	ToneLight uint8 = 1
)

// HistogramPoint is a MACD histogram bar with its two-tone color index.
type HistogramPoint struct {
	Point
	Tone uint8
}

// Negative reports whether the bar is drawn on the red side.
func (h HistogramPoint) Negative() bool { return h.Value < 0 }

// MarshalJSON encodes {"time":ts,"value":v,"tone":t,"negative":b}.
func (h HistogramPoint) MarshalJSON() ([]byte, error) {
	buf := make([]byte, 0, 64)
	buf = append(buf, `{"time":`...)
	buf = strconv.AppendInt(buf, h.Timestamp, 10)
	buf = append(buf, `,"value":`...)
	buf = AppendFloat(buf, h.Value)
	buf = append(buf, `,"tone":`...)
	buf = strconv.AppendUint(buf, uint64(h.Tone), 10)
	buf = append(buf, `,"negative":`...)
	buf = strconv.AppendBool(buf, h.Negative())
	return append(buf, '}'), nil
}

// Float is a float64 that encodes NaN and ±Inf as JSON null.
type Float float64

// MarshalJSON implements json.Marshaler.
func (f Float) MarshalJSON() ([]byte, error) {
	return AppendFloat(nil, float64(f)), nil
}
