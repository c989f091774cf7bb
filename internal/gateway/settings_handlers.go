package gateway

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"stockchart/internal/indicator"
	"stockchart/internal/settings"
)

// settingsResult writes the state returned by a settings action. A failed
// save still applied the change, so the state is written with a warning
// header instead of an error.
func (s *Server) settingsResult(w http.ResponseWriter, r *http.Request, st settings.State, err error) {
	if !s.settingsApplied(w, r, err) {
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) settingsApplied(w http.ResponseWriter, r *http.Request, err error) bool {
	var perr *settings.PersistError
	switch {
	case err == nil:
	case errors.As(err, &perr):
		s.log.Warn("settings change not persisted", zap.Error(err))
		w.Header().Set("X-Settings-Persisted", "false")
	default:
		s.writeError(w, r, err)
		return false
	}
	return true
}

func indexVar(r *http.Request) int {
	i, _ := strconv.Atoi(mux.Vars(r)["index"])
	return i
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.cfg.Settings.Get())
}

func (s *Server) handleReplaceSettings(w http.ResponseWriter, r *http.Request) {
	var st settings.State
	if err := decodeBody(r, &st); err != nil {
		s.writeError(w, r, err)
		return
	}
	st, err := s.cfg.Settings.Replace(r.Context(), st)
	s.settingsResult(w, r, st, err)
}

func (s *Server) handleCreateIndicator(w http.ResponseWriter, r *http.Request) {
	st, err := s.cfg.Settings.CreateIndicator(r.Context())
	s.settingsResult(w, r, st, err)
}

func (s *Server) handleSetIndicator(w http.ResponseWriter, r *http.Request) {
	var spec indicator.SimpleSpec
	if err := decodeBody(r, &spec); err != nil {
		s.writeError(w, r, err)
		return
	}
	st, err := s.cfg.Settings.SetIndicator(r.Context(), indexVar(r), spec)
	s.settingsResult(w, r, st, err)
}

func (s *Server) handleRemoveIndicator(w http.ResponseWriter, r *http.Request) {
	st, err := s.cfg.Settings.RemoveIndicator(r.Context(), indexVar(r))
	s.settingsResult(w, r, st, err)
}

func (s *Server) handleCreateAdvanced(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Type string `json:"type"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	st, err := s.cfg.Settings.CreateAdvanced(r.Context(), req.Type)
	s.settingsResult(w, r, st, err)
}

func (s *Server) handleSetAdvanced(w http.ResponseWriter, r *http.Request) {
	var spec indicator.AdvancedSpec
	if err := decodeBody(r, &spec); err != nil {
		s.writeError(w, r, err)
		return
	}
	st, err := s.cfg.Settings.SetAdvanced(r.Context(), spec)
	s.settingsResult(w, r, st, err)
}

func (s *Server) handleUpdateAdvanced(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Key   string `json:"key"`
		Value int    `json:"value"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	st, err := s.cfg.Settings.UpdateAdvanced(r.Context(), req.Key, req.Value)
	s.settingsResult(w, r, st, err)
}

func (s *Server) handleRemoveAdvanced(w http.ResponseWriter, r *http.Request) {
	st, err := s.cfg.Settings.RemoveAdvanced(r.Context())
	s.settingsResult(w, r, st, err)
}

func (s *Server) handleToggleFavourite(w http.ResponseWriter, r *http.Request) {
	added, st, err := s.cfg.Settings.ToggleFavourite(r.Context(), mux.Vars(r)["stock"])
	if !s.settingsApplied(w, r, err) {
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Added    bool           `json:"added"`
		Settings settings.State `json:"settings"`
	}{added, st})
}

func (s *Server) handleSelectOrder(w http.ResponseWriter, r *http.Request) {
	st, err := s.cfg.Settings.SelectOrder(r.Context(), mux.Vars(r)["field"])
	s.settingsResult(w, r, st, err)
}

func (s *Server) handleSetTheme(w http.ResponseWriter, r *http.Request) {
	st, err := s.cfg.Settings.SetTheme(r.Context(), mux.Vars(r)["theme"])
	s.settingsResult(w, r, st, err)
}
