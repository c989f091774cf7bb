package gateway

import (
	"encoding/json"

	"go.uber.org/zap"

	"stockchart/internal/indicator"
	"stockchart/internal/model"
	"stockchart/internal/settings"
)

// SeriesUpdate is the payload pushed on a series channel.
type SeriesUpdate struct {
	SeriesView
	Overlays indicator.Result    `json:"overlays"`
	Latest   []indicator.Reading `json:"latest"`
}

// PublishSeries pushes the cached view of k, with its overlays, to the
// clients following it. Nothing is built when nobody follows k.
func (s *Server) PublishSeries(k model.Key) int {
	channel := SeriesChannel(k)
	if s.hub.Subscribers(channel) == 0 {
		return 0
	}
	ser, ok := s.cfg.Cache.GetSeries(k.Stock, k.Interval)
	if !ok {
		return 0
	}
	o := s.cfg.Settings.Get().Overlays()
	upd := SeriesUpdate{
		SeriesView: newSeriesView(k, ser),
		Overlays:   s.cfg.Engine.Compute(ser, o),
		Latest:     s.cfg.Engine.Latest(ser, o),
	}
	return s.publish(channel, TypeSeries, upd)
}

// PublishWatchlist renders resp and pushes it to every client.
func (s *Server) PublishWatchlist(resp model.SnapshotResponse) int {
	return s.publish(ChannelWatchlist, TypeWatchlist, s.watchlistFor(resp))
}

// PublishSettings pushes st to every client.
func (s *Server) PublishSettings(st settings.State) int {
	return s.publish(ChannelSettings, TypeSettings, st)
}

// SettingsChanged pushes st and then re-renders the active chart and the
// watchlist, whose overlays and order follow the settings.
func (s *Server) SettingsChanged(st settings.State) {
	s.PublishSettings(st)
	s.PublishSeries(s.cfg.Poller.Active())
	if resp, _, ok := s.cfg.Poller.Snapshot(); ok {
		s.PublishWatchlist(resp)
	}
}

func (s *Server) publish(channel, typ string, v interface{}) int {
	data, err := json.Marshal(v)
	if err != nil {
		s.log.Error("failed to encode update", zap.String("channel", channel), zap.Error(err))
		return 0
	}
	return s.hub.Broadcast(channel, typ, data)
}
