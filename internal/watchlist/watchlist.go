// Package watchlist builds the ordered stock list shown beside the chart
// from the latest snapshot.
package watchlist

import (
	"math"
	"sort"
	"strings"

	"stockchart/internal/model"
)

// Entry is one watchlist row.
type Entry struct {
	Stock       string      `json:"stock"`
	Name        string      `json:"name"`
	Price       model.Float `json:"price"`
	PriceM1     model.Float `json:"priceM1"`
	Diff        model.Float `json:"diff"`
	DiffPercent model.Float `json:"diffPercent"`
	TotalShares model.Float `json:"totalShares"`
	MarketCap   model.Float `json:"marketCap"`
	Favourite   bool        `json:"favourite"`
}

// NewEntry derives the one-minute change from a snapshot row.
func NewEntry(s model.StockSnapshot) Entry {
	diff := s.Price - s.PriceM1
	return Entry{
		Stock:       s.Stock,
		Name:        s.Name,
		Price:       model.Float(s.Price),
		PriceM1:     model.Float(s.PriceM1),
		Diff:        model.Float(diff),
		DiffPercent: model.Float(diff / s.PriceM1 * 100),
		TotalShares: model.Float(s.TotalShares),
		MarketCap:   model.Float(s.MarketCap),
	}
}

// List is a snapshot rendered for display.
type List struct {
	Timestamp int64   `json:"timestamp"`
	Order     string  `json:"order"`
	Entries   []Entry `json:"entries"`
}

// Build converts rows into entries, flags favourites and sorts by order.
func Build(resp model.SnapshotResponse, favourites []string, order string) List {
	fav := make(map[string]struct{}, len(favourites))
	for _, f := range favourites {
		fav[strings.ToUpper(f)] = struct{}{}
	}

	entries := make([]Entry, len(resp.Data))
	for i, row := range resp.Data {
		e := NewEntry(row)
		_, e.Favourite = fav[strings.ToUpper(row.Stock)]
		entries[i] = e
	}

	o := ParseOrder(order)
	Sort(entries, o)
	return List{Timestamp: resp.Timestamp, Order: o.String(), Entries: entries}
}

// Sort orders entries in place. Name ordering is case-insensitive; numeric
// fields keep NaN values at the end in both directions.
func Sort(entries []Entry, o Order) {
	if o.Field == FieldName {
		sort.SliceStable(entries, func(i, j int) bool {
			a, b := strings.ToLower(entries[i].Stock), strings.ToLower(entries[j].Stock)
			if o.Direction == Asc {
				return a < b
			}
			return a > b
		})
		return
	}

	key := fieldValue(o.Field)
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := key(entries[i]), key(entries[j])
		switch {
		case math.IsNaN(a):
			return false
		case math.IsNaN(b):
			return true
		case o.Direction == Asc:
			return a < b
		default:
			return a > b
		}
	})
}

func fieldValue(field string) func(Entry) float64 {
	switch field {
	case FieldDiff:
		return func(e Entry) float64 { return float64(e.Diff) }
	case FieldDiffPercent:
		return func(e Entry) float64 { return float64(e.DiffPercent) }
	default:
		return func(e Entry) float64 { return float64(e.Price) }
	}
}
