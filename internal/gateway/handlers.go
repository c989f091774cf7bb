package gateway

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"stockchart/internal/breaker"
	"stockchart/internal/fetch"
	"stockchart/internal/indicator"
	"stockchart/internal/interval"
	"stockchart/internal/model"
	"stockchart/internal/poller"
	"stockchart/internal/settings"
)

var (
	errBadRequest = errors.New("bad request")
	errNoSnapshot = errors.New("no snapshot yet")
)

type intervalInfo struct {
	Code  interval.Code `json:"code"`
	Label string        `json:"label"`
	Tick  bool          `json:"tick"`
}

// SeriesView is a cached series as served to the chart.
type SeriesView struct {
	Stock    string        `json:"stock"`
	Interval interval.Code `json:"interval"`
	model.Series
}

func newSeriesView(k model.Key, ser model.Series) SeriesView {
	if ser.Data == nil {
		ser.Data = []model.Bar{}
	}
	return SeriesView{Stock: k.Stock, Interval: k.Interval, Series: ser}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// statusOf maps domain errors onto HTTP status codes.
func statusOf(err error) int {
	var se *fetch.StatusError
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, indicator.ErrInvalidSpec),
		errors.Is(err, settings.ErrInvalidTheme),
		errors.Is(err, settings.ErrInvalidOrder),
		errors.Is(err, settings.ErrEmptyStock),
		errors.Is(err, interval.ErrUnknownCode),
		errors.Is(err, fetch.ErrEmptyStock):
		return http.StatusBadRequest
	case errors.Is(err, poller.ErrNoSeries),
		errors.Is(err, settings.ErrIndexOutOfRange):
		return http.StatusNotFound
	case errors.Is(err, settings.ErrTooManySimple),
		errors.Is(err, settings.ErrNoAdvanced):
		return http.StatusConflict
	case errors.Is(err, breaker.ErrCircuitOpen),
		errors.Is(err, errNoSnapshot):
		return http.StatusServiceUnavailable
	case errors.As(err, &se):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		s.log.Warn("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// pairVars reads and normalizes the {stock}/{interval} path variables.
func pairVars(r *http.Request) (model.Key, error) {
	vars := mux.Vars(r)
	stock := strings.ToUpper(strings.TrimSpace(vars["stock"]))
	if stock == "" {
		return model.Key{}, fetch.ErrEmptyStock
	}
	code, err := interval.Parse(vars["interval"])
	if err != nil {
		return model.Key{}, err
	}
	return model.Key{Stock: stock, Interval: code}, nil
}

func (s *Server) cachedSeries(r *http.Request) (model.Key, model.Series, error) {
	k, err := pairVars(r)
	if err != nil {
		return k, model.Series{}, err
	}
	ser, ok := s.cfg.Cache.GetSeries(k.Stock, k.Interval)
	if !ok {
		return k, model.Series{}, errors.Wrap(poller.ErrNoSeries, k.String())
	}
	return k, ser, nil
}

func decodeBody(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.Wrap(errBadRequest, err.Error())
	}
	return nil
}

func (s *Server) handleIntervals(w http.ResponseWriter, r *http.Request) {
	all := interval.All()
	out := make([]intervalInfo, len(all))
	for i, c := range all {
		out[i] = intervalInfo{Code: c, Label: c.Label(), Tick: c.IsTick()}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetActive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.cfg.Poller.Active())
}

func (s *Server) handleSetActive(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Stock    string `json:"stock"`
		Interval string `json:"interval"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	code, err := interval.Parse(req.Interval)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	// A failed refresh still leaves the pair active; the chart shows what is cached.
	if err := s.cfg.Poller.SetActive(r.Context(), req.Stock, code); err != nil {
		if statusOf(err) == http.StatusBadRequest {
			s.writeError(w, r, err)
			return
		}
		s.log.Warn("active refresh failed", zap.Error(err))
	}
	k := s.cfg.Poller.Active()
	ser, _ := s.cfg.Cache.GetSeries(k.Stock, k.Interval)
	writeJSON(w, http.StatusOK, newSeriesView(k, ser))
}

func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	k, ser, err := s.cachedSeries(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSeriesView(k, ser))
}

func (s *Server) handleLoadMore(w http.ResponseWriter, r *http.Request) {
	k, err := pairVars(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	from, err := strconv.ParseInt(r.URL.Query().Get("from"), 10, 64)
	if err != nil {
		s.writeError(w, r, errors.Wrap(errBadRequest, "from must be a unix timestamp"))
		return
	}
	requested, err := s.cfg.Poller.LoadMore(r.Context(), k.Stock, k.Interval, from)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if requested {
		go s.PublishSeries(k)
	}
	writeJSON(w, http.StatusOK, map[string]bool{"requested": requested})
}

func (s *Server) handleIndicators(w http.ResponseWriter, r *http.Request) {
	_, ser, err := s.cachedSeries(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.cfg.Engine.Compute(ser, s.cfg.Settings.Get().Overlays()))
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	_, ser, err := s.cachedSeries(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := s.cfg.Engine.Latest(ser, s.cfg.Settings.Get().Overlays())
	if out == nil {
		out = []indicator.Reading{}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleWatchlist(w http.ResponseWriter, r *http.Request) {
	resp, _, ok := s.cfg.Poller.Snapshot()
	if !ok {
		s.writeError(w, r, errNoSnapshot)
		return
	}
	writeJSON(w, http.StatusOK, s.watchlistFor(resp))
}

// handleMissed returns buffered envelopes so a client can fill a
// channel_seq gap: /api/missed?channel=...&from=N&to=M
func (s *Server) handleMissed(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	channel := q.Get("channel")
	from, err1 := strconv.ParseInt(q.Get("from"), 10, 64)
	to, err2 := strconv.ParseInt(q.Get("to"), 10, 64)
	if channel == "" || err1 != nil || err2 != nil || from > to {
		s.writeError(w, r, errors.Wrap(errBadRequest, "channel, from and to are required"))
		return
	}
	envs := s.hub.Replay(channel, from, to)
	out := make([]json.RawMessage, len(envs))
	for i, e := range envs {
		out[i] = e
	}
	writeJSON(w, http.StatusOK, out)
}
