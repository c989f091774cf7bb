// Package settings holds the user's chart preferences (overlays,
// favourites, watchlist order, theme) and persists them as one JSON
// document through a model.SettingsStore.
package settings

import (
	"strings"

	"stockchart/internal/indicator"
	"stockchart/internal/watchlist"
)

// Themes.
const (
	ThemeDark  = "dark"
	ThemeLight = "light"
)

// State is the persisted settings document.
type State struct {
	Indicators []indicator.SimpleSpec  `json:"indicators"`
	Advanced   *indicator.AdvancedSpec `json:"advanced,omitempty"`
	Favourites []string                `json:"favourites"`
	ListOrder  string                  `json:"listOrder"`
	Theme      string                  `json:"theme"`
}

// Default returns the settings used when nothing was saved.
func Default() State {
	return State{
		Indicators: []indicator.SimpleSpec{},
		Favourites: []string{},
		ListOrder:  watchlist.DefaultOrder,
		Theme:      ThemeDark,
	}
}

// Overlays returns the indicator part of the settings.
func (s State) Overlays() indicator.Overlays {
	return indicator.Overlays{Simple: s.Indicators, Advanced: s.Advanced}
}

// IsFavourite matches stock case-insensitively.
func (s State) IsFavourite(stock string) bool {
	return favouriteIndex(s.Favourites, stock) >= 0
}

func (s State) clone() State {
	out := s
	out.Indicators = append([]indicator.SimpleSpec{}, s.Indicators...)
	out.Favourites = append([]string{}, s.Favourites...)
	if s.Advanced != nil {
		a := *s.Advanced
		out.Advanced = &a
	}
	return out
}

// normalize repairs a loaded document: missing fields get defaults and
// lengths are clamped.
func (s State) normalize() State {
	d := Default()
	if s.Indicators == nil {
		s.Indicators = d.Indicators
	}
	if len(s.Indicators) > indicator.MaxSimpleOverlays {
		s.Indicators = s.Indicators[:indicator.MaxSimpleOverlays]
	}
	o := s.Overlays().Clamped()
	s.Indicators, s.Advanced = o.Simple, o.Advanced
	if s.Favourites == nil {
		s.Favourites = d.Favourites
	}
	if s.ListOrder == "" {
		s.ListOrder = d.ListOrder
	}
	if s.Theme != ThemeDark && s.Theme != ThemeLight {
		s.Theme = d.Theme
	}
	return s
}

func favouriteIndex(favs []string, stock string) int {
	for i, f := range favs {
		if strings.EqualFold(f, stock) {
			return i
		}
	}
	return -1
}
