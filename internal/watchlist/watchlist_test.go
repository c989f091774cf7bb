package watchlist

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockchart/internal/model"
)

func snapshot() model.SnapshotResponse {
	return model.SnapshotResponse{
		Timestamp: 1700000000,
		Data: []model.StockSnapshot{
			model.NewStockSnapshot("TCT", "Torn City Times", 10, 8, 100, math.NaN()),
			model.NewStockSnapshot("fhg", "Feathery Hotels", 50, 55, 100, math.NaN()),
			model.NewStockSnapshot("SYS", "Syscore", 30, 30, 100, math.NaN()),
			model.NewStockSnapshot("BAD", "Broken", math.NaN(), 1, 100, math.NaN()),
		},
	}
}

func stocks(l List) []string {
	out := make([]string, len(l.Entries))
	for i, e := range l.Entries {
		out[i] = e.Stock
	}
	return out
}

func TestNewEntry_Diff(t *testing.T) {
	e := NewEntry(model.NewStockSnapshot("TCT", "", 10, 8, 100, math.NaN()))
	assert.Equal(t, model.Float(2), e.Diff)
	assert.Equal(t, model.Float(25), e.DiffPercent)
	assert.Equal(t, model.Float(1000), e.MarketCap)

	zero := NewEntry(model.NewStockSnapshot("TCT", "", 10, 0, 100, 0))
	assert.True(t, math.IsInf(float64(zero.DiffPercent), 1))
}

func TestParseOrder(t *testing.T) {
	tests := []struct {
		in   string
		want Order
	}{
		{"price-desc", Order{FieldPrice, Desc}},
		{"name-asc", Order{FieldName, Asc}},
		{"diffPercent-asc", Order{FieldDiffPercent, Asc}},
		{"volume-asc", Order{FieldName, Asc}},
		{"", Order{FieldName, Desc}},
		{"diff", Order{FieldDiff, Desc}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseOrder(tt.in))
		})
	}
}

func TestOrderSelect(t *testing.T) {
	o := ParseOrder(DefaultOrder)
	o = o.Select(FieldPrice)
	assert.Equal(t, "price-asc", o.String(), "same field toggles")
	o = o.Select(FieldPrice)
	assert.Equal(t, "price-desc", o.String())
	o = o.Select(FieldName)
	assert.Equal(t, "name-asc", o.String(), "name starts ascending")
	o = o.Select(FieldDiff)
	assert.Equal(t, "diff-desc", o.String(), "numeric fields start descending")
}

func TestBuild_OrderAndFavourites(t *testing.T) {
	l := Build(snapshot(), []string{"FHG", "nope"}, "price-desc")
	assert.Equal(t, []string{"fhg", "SYS", "TCT", "BAD"}, stocks(l))
	assert.Equal(t, int64(1700000000), l.Timestamp)
	assert.True(t, l.Entries[0].Favourite, "favourites match case-insensitively")
	assert.False(t, l.Entries[1].Favourite)

	l = Build(snapshot(), nil, "price-asc")
	assert.Equal(t, []string{"TCT", "SYS", "fhg", "BAD"}, stocks(l), "NaN stays last")

	l = Build(snapshot(), nil, "name-asc")
	assert.Equal(t, []string{"BAD", "fhg", "SYS", "TCT"}, stocks(l))

	l = Build(snapshot(), nil, "diff-desc")
	assert.Equal(t, []string{"TCT", "SYS", "fhg", "BAD"}, stocks(l))
}

func TestEntryJSON_NaNIsNull(t *testing.T) {
	l := Build(snapshot(), nil, "name-asc")
	raw, err := json.Marshal(l.Entries[0])
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"price":null`)
	assert.Contains(t, string(raw), `"stock":"BAD"`)
}
