package wire

import (
	"encoding/json"
	"io"
	"math"

	"github.com/pkg/errors"

	"stockchart/internal/interval"
	"stockchart/internal/model"
)

type historyEnvelope struct {
	Data []Row `json:"data"`
}

// DecodeHistory reads a {data: Row[]} body.
func DecodeHistory(r io.Reader, code interval.Code) ([]model.Bar, error) {
	var env historyEnvelope
	if err := json.NewDecoder(r).Decode(&env); err != nil {
		return nil, errors.Wrap(err, "decode history")
	}
	return CoerceRows(env.Data, code), nil
}

type snapshotRow struct {
	Stock       string                     `json:"stock"`
	Name        string                     `json:"name"`
	Price       json.RawMessage            `json:"price"`
	PriceM1     json.RawMessage            `json:"price_m1"`
	TotalShares json.RawMessage            `json:"total_shares"`
	MarketCap   json.RawMessage            `json:"market_cap"`
	Intervals   map[string]json.RawMessage `json:"intervals"`
}

type snapshotEnvelope struct {
	Data      []snapshotRow              `json:"data"`
	Timestamp json.RawMessage            `json:"timestamp"`
	Intervals map[string]json.RawMessage `json:"intervals"`
}

// DecodeSnapshot reads a {data: StockSnapshot[], timestamp, intervals?}
// body. A missing timestamp decodes as 0.
func DecodeSnapshot(r io.Reader) (model.SnapshotResponse, error) {
	var env snapshotEnvelope
	if err := json.NewDecoder(r).Decode(&env); err != nil {
		return model.SnapshotResponse{}, errors.Wrap(err, "decode snapshot")
	}

	out := model.SnapshotResponse{
		Data:      make([]model.StockSnapshot, 0, len(env.Data)),
		Timestamp: toUnix(Number(env.Timestamp)),
	}
	if len(env.Intervals) > 0 {
		out.Intervals = make(map[string]int64, len(env.Intervals))
		for code, raw := range env.Intervals {
			out.Intervals[code] = toUnix(Number(raw))
		}
	}

	for _, row := range env.Data {
		s := model.NewStockSnapshot(row.Stock, row.Name,
			Number(row.Price), Number(row.PriceM1), Number(row.TotalShares), math.NaN())
		if present(row.MarketCap) {
			s.MarketCap = Number(row.MarketCap)
		}
		if len(row.Intervals) > 0 {
			s.Intervals = make(map[string]float64, len(row.Intervals))
			for code, raw := range row.Intervals {
				s.Intervals[code] = Number(raw)
			}
		}
		out.Data = append(out.Data, s)
	}
	return out, nil
}

func toUnix(f float64) int64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return int64(f)
}
