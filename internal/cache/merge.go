package cache

import (
	"go.uber.org/zap"

	"stockchart/internal/interval"
	"stockchart/internal/model"
)

// ApplyFetchResult folds one history page into (stock, code). The page is
// applied only while the series is loading; a response for a fetch that was
// already stopped or superseded is dropped and false is returned.
//
// A page whose first bar is older than the cached head is a backfill and is
// prepended; Complete becomes len(rows) < pageLimit. Anything else is a
// catch-up and is appended. Either way the series ends idle with
// LastUpdate and LastView set to now.
func (s *Store) ApplyFetchResult(stock string, code interval.Code, rows []model.Bar, pageLimit int) bool {
	key := model.Key{Stock: stock, Interval: code}

	s.mu.Lock()
	ser := s.lookup(stock, code)
	if ser == nil || !ser.Loading() {
		s.mu.Unlock()
		s.log.Debug("discarded fetch result", zap.Stringer("key", key), zap.Int("rows", len(rows)))
		if s.OnDiscard != nil {
			s.OnDiscard(key)
		}
		return false
	}

	ser.Data, ser.Complete = mergeFetch(ser.Data, rows, pageLimit, ser.Complete)
	now := s.now()
	ser.State = model.StateIdle
	ser.LastUpdate = now
	ser.LastView = now
	n := len(ser.Data)
	s.mu.Unlock()

	s.log.Debug("applied fetch result", zap.Stringer("key", key), zap.Int("rows", len(rows)), zap.Int("bars", n))
	return true
}

// mergeFetch returns the merged bar slice and completeness flag. The input
// slice is never modified.
func mergeFetch(data, rows []model.Bar, pageLimit int, complete bool) ([]model.Bar, bool) {
	if len(data) == 0 {
		return appendIncreasing(make([]model.Bar, 0, len(rows)), rows), len(rows) < pageLimit
	}
	if len(rows) == 0 {
		return data, complete
	}

	head := data[0].Timestamp
	if rows[0].Timestamp < head {
		// Backfill: keep only rows strictly older than the cached head.
		out := make([]model.Bar, 0, len(rows)+len(data))
		for _, r := range rows {
			if r.Timestamp >= head {
				break
			}
			if len(out) > 0 && r.Timestamp <= out[len(out)-1].Timestamp {
				continue
			}
			out = append(out, r)
		}
		return append(out, data...), len(rows) < pageLimit
	}

	// Catch-up. The upstream range is inclusive of the boundary bar, so a
	// page reaching the cached tail supersedes the bars it overlaps.
	keep := len(data)
	if rows[len(rows)-1].Timestamp >= data[len(data)-1].Timestamp {
		first := rows[0].Timestamp
		for keep > 0 && data[keep-1].Timestamp >= first {
			keep--
		}
	}
	out := make([]model.Bar, keep, keep+len(rows))
	copy(out, data[:keep])
	return appendIncreasing(out, rows), complete
}

// appendIncreasing appends the rows that keep timestamps strictly increasing.
func appendIncreasing(out, rows []model.Bar) []model.Bar {
	for _, r := range rows {
		if len(out) > 0 && r.Timestamp <= out[len(out)-1].Timestamp {
			continue
		}
		out = append(out, r)
	}
	return out
}
