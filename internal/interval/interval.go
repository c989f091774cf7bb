// Package interval defines chart interval codes and maps timestamps onto
// the bucket an interval code assigns them to.
//
// Codes are "{unit}{count}": m (minutes), h (hours), d (days) are fixed
// durations; w (week), n (month) and y (year) are calendar-aligned in UTC.
package interval

import (
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Code is an interval code such as "m1", "h4" or "n1".
type Code string

const (
	M1  Code = "m1"
	M5  Code = "m5"
	M15 Code = "m15"
	M30 Code = "m30"
	H1  Code = "h1"
	H2  Code = "h2"
	H4  Code = "h4"
	H6  Code = "h6"
	H12 Code = "h12"
	D1  Code = "d1"
	W1  Code = "w1"
	N1  Code = "n1"
	Y1  Code = "y1"
)

// ErrUnknownCode is returned by Parse for codes outside All().
var ErrUnknownCode = errors.New("unknown interval code")

var unitSeconds = map[byte]int64{
	'm': 60,
	'h': 3600,
	'd': 86400,
}

var ordered = []Code{M1, M5, M15, M30, H1, H2, H4, H6, H12, D1, W1, N1, Y1}

var labels = map[Code]string{
	M1:  "1m",
	M5:  "5m",
	M15: "15m",
	M30: "30m",
	H1:  "1h",
	H2:  "2h",
	H4:  "4h",
	H6:  "6h",
	H12: "12h",
	D1:  "1D",
	W1:  "1W",
	N1:  "1M",
	Y1:  "1Y",
}

// All returns the supported codes from finest to coarsest.
func All() []Code {
	out := make([]Code, len(ordered))
	copy(out, ordered)
	return out
}

// Valid reports whether c is one of the supported codes.
func Valid(c Code) bool {
	_, ok := labels[c]
	return ok
}

// Parse normalizes s and checks it against the supported codes.
func Parse(s string) (Code, error) {
	c := Code(strings.ToLower(strings.TrimSpace(s)))
	if !Valid(c) {
		return "", errors.Wrapf(ErrUnknownCode, "parse %q", s)
	}
	return c, nil
}

func (c Code) String() string { return string(c) }

// Label is the short display label ("1m", "4h", "1D").
func (c Code) Label() string {
	if l, ok := labels[c]; ok {
		return l
	}
	return string(c)
}

// IsTick reports whether c is the base tick granularity. Tick series carry
// a single price per bar instead of OHLC.
func (c Code) IsTick() bool { return c == M1 }

// Duration returns the bucket length for fixed-duration codes. Calendar
// codes (week, month, year) report false.
func (c Code) Duration() (time.Duration, bool) {
	secs, ok := fixedSeconds(c)
	if !ok {
		return 0, false
	}
	return time.Duration(secs) * time.Second, true
}

// fixedSeconds resolves "{m|h|d}{count}" to a bucket length in seconds.
func fixedSeconds(c Code) (int64, bool) {
	if len(c) < 2 {
		return 0, false
	}
	unit, ok := unitSeconds[c[0]]
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(string(c[1:]))
	if err != nil || n <= 0 {
		return 0, false
	}
	return unit * int64(n), true
}
