package wire

import (
	"encoding/json"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockchart/internal/interval"
	"stockchart/internal/model"
)

func row(t *testing.T, s string) Row {
	t.Helper()
	var r Row
	require.NoError(t, json.Unmarshal([]byte(s), &r))
	return r
}

func TestNumber(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		nan  bool
	}{
		{`10`, 10, false},
		{`"10.25"`, 10.25, false},
		{`" 3 "`, 3, false},
		{`-0.5`, -0.5, false},
		{`"abc"`, 0, true},
		{`null`, 0, true},
		{``, 0, true},
		{`true`, 0, true},
	}
	for _, tt := range tests {
		got := Number(json.RawMessage(tt.in))
		if tt.nan {
			assert.True(t, math.IsNaN(got), "Number(%s): got %v, want NaN", tt.in, got)
			continue
		}
		assert.Equal(t, tt.want, got, "Number(%s)", tt.in)
	}
}

func TestCoerceRow_Tick(t *testing.T) {
	b := CoerceRow(row(t, `[1000,"10",5]`), interval.M1)
	assert.Equal(t, model.KindTick, b.Kind)
	assert.Equal(t, int64(1000), b.Timestamp)
	assert.Equal(t, 10.0, b.Price)
	assert.Equal(t, 5.0, b.TotalShares)
	assert.Equal(t, 50.0, b.MarketCap, "market cap derived from price*shares")

	b = CoerceRow(row(t, `[1000,"10",5,"77"]`), interval.M1)
	assert.Equal(t, 77.0, b.MarketCap)
}

func TestCoerceRow_Aggregate(t *testing.T) {
	b := CoerceRow(row(t, `[3600,"1","4","0.5","2",10]`), interval.H1)
	assert.Equal(t, model.KindAggregate, b.Kind)
	assert.Equal(t, 1.0, b.Open)
	assert.Equal(t, 4.0, b.High)
	assert.Equal(t, 0.5, b.Low)
	assert.Equal(t, 2.0, b.Close)
	assert.Equal(t, 20.0, b.MarketCap, "market cap derived from close*shares")
}

func TestCoerceRow_MalformedPropagatesNaN(t *testing.T) {
	b := CoerceRow(row(t, `[1000,"1.2.3"]`), interval.M1)
	assert.True(t, math.IsNaN(b.Price))
	assert.True(t, math.IsNaN(b.TotalShares))
	assert.True(t, math.IsNaN(b.MarketCap))
}

func TestCoerceRow_MalformedMarketCapIsNotDerived(t *testing.T) {
	b := CoerceRow(row(t, `[1000,"10",5,"n/a"]`), interval.M1)
	assert.Equal(t, 10.0, b.Price)
	assert.True(t, math.IsNaN(b.MarketCap))

	b = CoerceRow(row(t, `[3600,1,4,0.5,2,10,"?"]`), interval.H1)
	assert.True(t, math.IsNaN(b.MarketCap))

	b = CoerceRow(row(t, `[1000,"10",5,null]`), interval.M1)
	assert.Equal(t, 50.0, b.MarketCap, "null counts as absent")
}

func TestCoerceRows_DropsUnplaceableRows(t *testing.T) {
	rows := []Row{
		row(t, `[1000,"10"]`),
		row(t, `["soon","11"]`),
		row(t, `[]`),
		row(t, `["1120","9"]`),
	}
	bars := CoerceRows(rows, interval.M1)
	require.Len(t, bars, 2)
	assert.Equal(t, int64(1000), bars[0].Timestamp)
	assert.Equal(t, int64(1120), bars[1].Timestamp)
}

func TestDecodeHistory(t *testing.T) {
	body := `{"data":[[1000,"10"],[1060,"11"],[1120,"9"]]}`
	bars, err := DecodeHistory(strings.NewReader(body), interval.M1)
	require.NoError(t, err)
	require.Len(t, bars, 3)
	assert.Equal(t, 11.0, bars[1].Price)

	bars, err = DecodeHistory(strings.NewReader(`{}`), interval.H1)
	require.NoError(t, err)
	assert.Empty(t, bars)

	_, err = DecodeHistory(strings.NewReader(`{"data":`), interval.H1)
	assert.Error(t, err)
}

func TestDecodeSnapshot(t *testing.T) {
	body := `{
		"data":[
			{"stock":"TCT","name":"Torn City Times","price":"9.50","price_m1":"9.25","total_shares":1000},
			{"stock":"FHG","name":"Feathery Hotels","price":"x","price_m1":1,"total_shares":"2","market_cap":5,
			 "intervals":{"h1":"1.5"}}
		],
		"timestamp":1125,
		"intervals":{"m1":1140,"h1":"3600"}
	}`
	snap, err := DecodeSnapshot(strings.NewReader(body))
	require.NoError(t, err)
	assert.Equal(t, int64(1125), snap.Timestamp)
	assert.Equal(t, int64(3600), snap.Intervals["h1"])
	require.Len(t, snap.Data, 2)

	tct := snap.Data[0]
	assert.Equal(t, 9.5, tct.Price)
	assert.Equal(t, 9.25, tct.PriceM1)
	assert.Equal(t, 9500.0, tct.MarketCap)

	fhg := snap.Data[1]
	assert.True(t, math.IsNaN(fhg.Price))
	assert.Equal(t, 5.0, fhg.MarketCap)
	assert.Equal(t, 1.5, fhg.Intervals["h1"])
}

func TestDecodeSnapshot_MalformedMarketCap(t *testing.T) {
	body := `{"data":[{"stock":"TCT","price":2,"total_shares":3,"market_cap":"bad"},{"stock":"FHG","price":2,"total_shares":3}]}`
	snap, err := DecodeSnapshot(strings.NewReader(body))
	require.NoError(t, err)
	require.Len(t, snap.Data, 2)
	assert.True(t, math.IsNaN(snap.Data[0].MarketCap))
	assert.Equal(t, 6.0, snap.Data[1].MarketCap)
}

func TestDecodeSnapshot_Defaults(t *testing.T) {
	snap, err := DecodeSnapshot(strings.NewReader(`{}`))
	require.NoError(t, err)
	assert.Zero(t, snap.Timestamp)
	assert.Empty(t, snap.Data)
	assert.Nil(t, snap.Intervals)
}
