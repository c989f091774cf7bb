// Package wire turns the upstream API's JSON payloads into model types.
//
// Numeric fields arrive as JSON numbers or numeric strings. Anything that
// does not parse becomes NaN and flows on; only a body that is not valid
// JSON is reported as an error.
package wire

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"stockchart/internal/interval"
	"stockchart/internal/model"
)

// Row is one raw history tuple:
// [ts, price, shares, marketCap?] for tick series or
// [ts, open, high, low, close, shares, marketCap?] for aggregates.
type Row []json.RawMessage

var null = []byte("null")

// Number parses a JSON number or numeric string. Missing, null and
// malformed values return NaN.
func Number(raw json.RawMessage) float64 {
	s := bytes.TrimSpace(raw)
	if len(s) == 0 || bytes.Equal(s, null) {
		return math.NaN()
	}
	if s[0] == '"' {
		var str string
		if err := json.Unmarshal(s, &str); err != nil {
			return math.NaN()
		}
		return parseFloat(str)
	}
	return parseFloat(string(s))
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return math.NaN()
	}
	return f
}

// at returns field i of the row as a number, NaN when the row is short.
func (r Row) at(i int) float64 {
	if i >= len(r) {
		return math.NaN()
	}
	return Number(r[i])
}

// Timestamp returns the row's bucket timestamp. ok is false when the
// field is missing or not a finite number.
func (r Row) Timestamp() (int64, bool) {
	f := r.at(0)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int64(f), true
}

// CoerceRow converts a raw tuple to a tagged Bar. The bar kind follows the
// interval: tick for m1, aggregate otherwise. An absent market cap is
// derived from price (or close) times shares; a malformed one stays NaN.
func CoerceRow(r Row, code interval.Code) model.Bar {
	ts, _ := r.Timestamp()
	var b model.Bar
	capIdx := 6
	if code.IsTick() {
		capIdx = 3
		b = model.NewTickBar(ts, r.at(1), r.at(2), math.NaN())
	} else {
		b = model.NewAggregateBar(ts, r.at(1), r.at(2), r.at(3), r.at(4), r.at(5), math.NaN())
	}
	if capIdx < len(r) && present(r[capIdx]) {
		b.MarketCap = Number(r[capIdx])
	}
	return b
}

// present reports whether a field was sent with a non-null value.
func present(raw json.RawMessage) bool {
	s := bytes.TrimSpace(raw)
	return len(s) > 0 && !bytes.Equal(s, null)
}

// CoerceRows converts every row with a usable timestamp. Rows whose
// timestamp is missing or non-numeric cannot be placed on the time axis
// and are dropped.
func CoerceRows(rows []Row, code interval.Code) []model.Bar {
	out := make([]model.Bar, 0, len(rows))
	for _, r := range rows {
		if _, ok := r.Timestamp(); !ok {
			continue
		}
		out = append(out, CoerceRow(r, code))
	}
	return out
}
