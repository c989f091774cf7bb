package model

import (
	"math"
	"strings"
)

// StockSnapshot is one row of the periodic full-universe snapshot.
type StockSnapshot struct {
	Stock       string
	Name        string
	Price       float64
	PriceM1     float64 // price one minute earlier
	TotalShares float64
	MarketCap   float64
	Intervals   map[string]float64 // optional secondary interval columns
}

// NewStockSnapshot fills MarketCap from price*shares when it is NaN.
func NewStockSnapshot(stock, name string, price, priceM1, shares, marketCap float64) StockSnapshot {
	if math.IsNaN(marketCap) {
		marketCap = price * shares
	}
	return StockSnapshot{
		Stock:       stock,
		Name:        name,
		Price:       price,
		PriceM1:     priceM1,
		TotalShares: shares,
		MarketCap:   marketCap,
	}
}

// SnapshotResponse is the decoded snapshot endpoint payload.
type SnapshotResponse struct {
	Data      []StockSnapshot
	Timestamp int64
	Intervals map[string]int64 // interval code → expiry
}

// Find returns the row for stock, matching the symbol case-insensitively.
func (r SnapshotResponse) Find(stock string) (StockSnapshot, bool) {
	for _, s := range r.Data {
		if strings.EqualFold(s.Stock, stock) {
			return s, true
		}
	}
	return StockSnapshot{}, false
}
