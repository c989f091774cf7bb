package cache

import (
	"time"

	"go.uber.org/zap"

	"stockchart/internal/interval"
	"stockchart/internal/model"
)

// EvictReport lists what one EvictStale pass removed or trimmed.
type EvictReport struct {
	Deleted   []model.Key
	Truncated []model.Key
}

// EvictStale bounds memory for every series except the active pair:
// series not viewed within retention are deleted, and longer-than-a-page
// series are cut back to the newest page with Complete cleared so the next
// scroll-back refetches. Loading series are never trimmed.
func (s *Store) EvictStale(now time.Time, activeStock string, activeCode interval.Code, retention time.Duration) EvictReport {
	var rep EvictReport

	s.mu.Lock()
	for stock, m := range s.series {
		for code, ser := range m {
			if stock == activeStock && code == activeCode {
				continue
			}
			key := model.Key{Stock: stock, Interval: code}

			if now.Sub(ser.LastView) > retention {
				delete(m, code)
				rep.Deleted = append(rep.Deleted, key)
				continue
			}
			if !ser.Loading() && len(ser.Data) > s.pageLimit {
				trimmed := make([]model.Bar, s.pageLimit)
				copy(trimmed, ser.Data[len(ser.Data)-s.pageLimit:])
				ser.Data = trimmed
				ser.Complete = false
				rep.Truncated = append(rep.Truncated, key)
			}
		}
		if len(m) == 0 {
			delete(s.series, stock)
		}
	}
	s.mu.Unlock()

	if len(rep.Deleted)+len(rep.Truncated) > 0 {
		s.log.Debug("evicted series", zap.Int("deleted", len(rep.Deleted)), zap.Int("truncated", len(rep.Truncated)))
	}
	if s.OnEvict != nil {
		for _, k := range rep.Deleted {
			s.OnEvict(k, false)
		}
		for _, k := range rep.Truncated {
			s.OnEvict(k, true)
		}
	}
	return rep
}
