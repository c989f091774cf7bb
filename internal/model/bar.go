package model

import (
	"math"
	"strconv"
)

// Kind tags the shape of a Bar.
type Kind uint8

const (
	// KindTick is a single-price bar at base (m1) granularity.
	KindTick Kind = iota
	// KindAggregate is an OHLC bar for any coarser interval.
	KindAggregate
)

func (k Kind) String() string {
	if k == KindTick {
		return "tick"
	}
	return "aggregate"
}

// Bar is one time bucket of market data. Tick bars only populate Price;
// aggregate bars only populate Open/High/Low/Close. Timestamp is the bucket
// start in UNIX seconds.
type Bar struct {
	Kind        Kind
	Timestamp   int64
	Price       float64
	Open        float64
	High        float64
	Low         float64
	Close       float64
	TotalShares float64
	MarketCap   float64
}

// NewTickBar builds a tick bar. A NaN marketCap is derived from price*shares.
func NewTickBar(ts int64, price, shares, marketCap float64) Bar {
	if math.IsNaN(marketCap) {
		marketCap = price * shares
	}
	return Bar{Kind: KindTick, Timestamp: ts, Price: price, TotalShares: shares, MarketCap: marketCap}
}

// NewAggregateBar builds an OHLC bar. A NaN marketCap is derived from close*shares.
func NewAggregateBar(ts int64, open, high, low, close, shares, marketCap float64) Bar {
	if math.IsNaN(marketCap) {
		marketCap = close * shares
	}
	return Bar{
		Kind:        KindAggregate,
		Timestamp:   ts,
		Open:        open,
		High:        high,
		Low:         low,
		Close:       close,
		TotalShares: shares,
		MarketCap:   marketCap,
	}
}

// Last is the closing value: Price for tick bars, Close otherwise.
func (b Bar) Last() float64 {
	if b.Kind == KindTick {
		return b.Price
	}
	return b.Close
}

// OpenValue is Price for tick bars.
func (b Bar) OpenValue() float64 {
	if b.Kind == KindTick {
		return b.Price
	}
	return b.Open
}

// HighValue is Price for tick bars.
func (b Bar) HighValue() float64 {
	if b.Kind == KindTick {
		return b.Price
	}
	return b.High
}

// LowValue is Price for tick bars.
func (b Bar) LowValue() float64 {
	if b.Kind == KindTick {
		return b.Price
	}
	return b.Low
}

// MarshalJSON encodes the bar as its wire tuple:
// [ts, price, shares, marketCap] or [ts, open, high, low, close, shares, marketCap].
func (b Bar) MarshalJSON() ([]byte, error) {
	buf := make([]byte, 0, 96)
	buf = append(buf, '[')
	buf = strconv.AppendInt(buf, b.Timestamp, 10)
	if b.Kind == KindTick {
		buf = appendNums(buf, b.Price, b.TotalShares, b.MarketCap)
	} else {
		buf = appendNums(buf, b.Open, b.High, b.Low, b.Close, b.TotalShares, b.MarketCap)
	}
	return append(buf, ']'), nil
}

func appendNums(buf []byte, vals ...float64) []byte {
	for _, v := range vals {
		buf = append(buf, ',')
		buf = AppendFloat(buf, v)
	}
	return buf
}

// AppendFloat appends v as a JSON number, or null when v is NaN or ±Inf.
func AppendFloat(buf []byte, v float64) []byte {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return append(buf, "null"...)
	}
	return strconv.AppendFloat(buf, v, 'f', -1, 64)
}
