package model

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTickBar_DerivesMarketCap(t *testing.T) {
	b := NewTickBar(1000, 10, 5, math.NaN())
	assert.Equal(t, KindTick, b.Kind)
	assert.Equal(t, 50.0, b.MarketCap)

	b = NewTickBar(1000, 10, 5, 7)
	assert.Equal(t, 7.0, b.MarketCap)
}

func TestNewAggregateBar_DerivesMarketCap(t *testing.T) {
	b := NewAggregateBar(3600, 1, 4, 0.5, 2, 10, math.NaN())
	assert.Equal(t, KindAggregate, b.Kind)
	assert.Equal(t, 20.0, b.MarketCap)
}

func TestBarAccessors(t *testing.T) {
	tick := NewTickBar(60, 9.5, 1, 0)
	assert.Equal(t, 9.5, tick.Last())
	assert.Equal(t, 9.5, tick.OpenValue())
	assert.Equal(t, 9.5, tick.HighValue())
	assert.Equal(t, 9.5, tick.LowValue())

	agg := NewAggregateBar(60, 1, 4, 0.5, 2, 1, 0)
	assert.Equal(t, 2.0, agg.Last())
	assert.Equal(t, 1.0, agg.OpenValue())
	assert.Equal(t, 4.0, agg.HighValue())
	assert.Equal(t, 0.5, agg.LowValue())
}

func TestBarMarshalJSON(t *testing.T) {
	tests := []struct {
		name string
		bar  Bar
		want string
	}{
		{"tick", NewTickBar(1000, 10.5, 2, 21), `[1000,10.5,2,21]`},
		{"aggregate", NewAggregateBar(3600, 1, 2, 0.5, 1.5, 10, 15), `[3600,1,2,0.5,1.5,10,15]`},
		{"nan becomes null", NewTickBar(1000, math.NaN(), 2, 0), `[1000,null,2,0]`},
		{"inf becomes null", NewTickBar(1000, 1, math.Inf(1), 0), `[1000,1,null,0]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := json.Marshal(tt.bar)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(got))
		})
	}
}

func TestPointMarshalJSON(t *testing.T) {
	got, err := json.Marshal([]Point{{1060, 10.5}, {1120, math.NaN()}})
	require.NoError(t, err)
	assert.JSONEq(t, `[[1060,10.5],[1120,null]]`, string(got))

	h, err := json.Marshal(HistogramPoint{Point: Point{1, -0.25}, Tone: ToneLight})
	require.NoError(t, err)
	assert.JSONEq(t, `{"time":1,"value":-0.25,"tone":1,"negative":true}`, string(h))
}

func TestSeriesClone(t *testing.T) {
	s := Series{Data: []Bar{NewTickBar(1, 1, 1, 1)}}
	c := s.Clone()
	c.Data[0].Price = 99
	assert.Equal(t, 1.0, s.Data[0].Price)

	last, ok := s.Last()
	require.True(t, ok)
	assert.Equal(t, int64(1), last.Timestamp)

	_, ok = Series{}.First()
	assert.False(t, ok)
}

func TestSnapshotFind(t *testing.T) {
	r := SnapshotResponse{Data: []StockSnapshot{NewStockSnapshot("TCT", "Torn City Times", 1, 1, 1, math.NaN())}}
	s, ok := r.Find("tct")
	require.True(t, ok)
	assert.Equal(t, 1.0, s.MarketCap)

	_, ok = r.Find("XYZ")
	assert.False(t, ok)
}
