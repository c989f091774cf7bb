package cache

import (
	"math"

	"go.uber.org/zap"

	"stockchart/internal/interval"
	"stockchart/internal/model"
)

// LiveOutcome reports what ApplyLiveSnapshot did.
type LiveOutcome uint8

const (
	// LiveSkipped: series absent, loading, or not fresh enough.
	LiveSkipped LiveOutcome = iota
	// LiveIgnored: the tick is older than the last bar.
	LiveIgnored
	// LiveAppended: a new bar was added.
	LiveAppended
	// LiveUpdated: the last bar was updated in place.
	LiveUpdated
)

func (o LiveOutcome) String() string {
	switch o {
	case LiveSkipped:
		return "skipped"
	case LiveIgnored:
		return "ignored"
	case LiveAppended:
		return "appended"
	case LiveUpdated:
		return "updated"
	default:
		return "unknown"
	}
}

// ApplyLiveSnapshot folds one snapshot tick for stock into its (stock, code)
// series. Series that are loading, or whose LastUpdate is older than the
// freshness window, are left for a real refetch.
//
// Tick series append when ts is newer than the last bar. Aggregate series
// bucket ts: same bucket updates the last bar (high/low extend, close and
// shares/market cap refresh), a newer bucket appends a flat bar, an older
// bucket is dropped.
func (s *Store) ApplyLiveSnapshot(stock string, code interval.Code, ts int64, snap model.StockSnapshot) LiveOutcome {
	key := model.Key{Stock: stock, Interval: code}

	s.mu.Lock()
	ser := s.lookup(stock, code)
	if ser == nil || ser.Loading() || s.now().Sub(ser.LastUpdate) > s.freshness {
		s.mu.Unlock()
		return LiveSkipped
	}

	outcome := applyTick(ser, code, ts, snap)
	s.mu.Unlock()

	if outcome == LiveIgnored {
		s.log.Debug("out-of-order live tick", zap.Stringer("key", key), zap.Int64("ts", ts))
		if s.OnOutOfOrder != nil {
			s.OnOutOfOrder(key)
		}
	}
	return outcome
}

func applyTick(ser *model.Series, code interval.Code, ts int64, snap model.StockSnapshot) LiveOutcome {
	last, ok := ser.Last()

	if code.IsTick() {
		if ok && ts <= last.Timestamp {
			return LiveIgnored
		}
		ser.Data = append(ser.Data, model.NewTickBar(ts, snap.Price, snap.TotalShares, snap.MarketCap))
		return LiveAppended
	}

	bucket := interval.BucketStart(ts, code, 0)
	switch {
	case !ok || bucket > last.Timestamp:
		p := snap.Price
		ser.Data = append(ser.Data, model.NewAggregateBar(bucket, p, p, p, p, snap.TotalShares, snap.MarketCap))
		return LiveAppended
	case bucket == last.Timestamp:
		b := &ser.Data[len(ser.Data)-1]
		b.High = math.Max(b.High, snap.Price)
		b.Low = math.Min(b.Low, snap.Price)
		b.Close = snap.Price
		b.TotalShares = snap.TotalShares
		b.MarketCap = snap.MarketCap
		return LiveUpdated
	default:
		return LiveIgnored
	}
}
