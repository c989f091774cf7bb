package settings

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"stockchart/internal/indicator"
	"stockchart/internal/model"
	"stockchart/internal/watchlist"
)

var (
	ErrIndexOutOfRange = errors.New("indicator index out of range")
	ErrNoAdvanced      = errors.New("no advanced indicator")
	ErrTooManySimple   = errors.New("simple indicator limit reached")
	ErrInvalidTheme    = errors.New("invalid theme")
	ErrInvalidOrder    = errors.New("invalid order field")
	ErrEmptyStock      = errors.New("empty stock symbol")
)

// PersistError reports a change that was applied in memory but could not
// be written to the store.
type PersistError struct{ Err error }

func (e *PersistError) Error() string { return "save settings: " + e.Err.Error() }
func (e *PersistError) Unwrap() error { return e.Err }

// DefaultKey is the store key the settings document is saved under.
const DefaultKey = "settings"

// Service owns the settings state. Every action updates memory first and
// then writes the whole document back to the store; a failed write is
// returned but the in-memory change stands.
type Service struct {
	// saveMu orders updates end to end, so the stored document and the
	// OnChange sequence follow the in-memory order.
	saveMu sync.Mutex

	mu    sync.RWMutex
	state State
	store model.SettingsStore
	key   string
	log   *zap.Logger

	// OnChange is called with a copy of the new state after every action.
	// It must not call back into the Service.
	OnChange func(State)

	// OnPersist reports the outcome of each store operation ("load" or
	// "save").
	OnPersist func(op string, err error)
}

// NewService creates a service holding the default settings. Call Load to
// restore saved ones.
func NewService(store model.SettingsStore, key string, log *zap.Logger) *Service {
	if key == "" {
		key = DefaultKey
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		state: Default(),
		store: store,
		key:   key,
		log:   log.Named("settings"),
	}
}

// Load restores the saved document. A missing document keeps the defaults
// and is not an error; a corrupt one is logged and also keeps the defaults.
func (s *Service) Load(ctx context.Context) error {
	data, err := s.store.Load(ctx, s.key)
	s.persisted("load", err)
	if errors.Is(err, model.ErrNotFound) {
		s.log.Info("no saved settings, using defaults", zap.String("key", s.key))
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "load settings")
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		s.log.Warn("discarding unreadable settings", zap.String("key", s.key), zap.Error(err))
		return nil
	}
	st = st.normalize()

	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
	s.log.Info("settings restored",
		zap.Int("indicators", len(st.Indicators)),
		zap.Bool("advanced", st.Advanced != nil),
		zap.Int("favourites", len(st.Favourites)),
	)
	return nil
}

// Get returns a copy of the current settings.
func (s *Service) Get() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.clone()
}

// Replace validates and stores a complete document.
func (s *Service) Replace(ctx context.Context, st State) (State, error) {
	if err := indicator.Validate(st.Overlays()); err != nil {
		return s.Get(), err
	}
	if st.Theme != "" && st.Theme != ThemeDark && st.Theme != ThemeLight {
		return s.Get(), errors.Wrapf(ErrInvalidTheme, "%q", st.Theme)
	}
	return s.update(ctx, func(cur *State) error {
		*cur = st.normalize()
		return nil
	})
}

// CreateIndicator appends a simple SMA overlay with the default length.
func (s *Service) CreateIndicator(ctx context.Context) (State, error) {
	return s.update(ctx, func(st *State) error {
		if len(st.Indicators) >= indicator.MaxSimpleOverlays {
			return ErrTooManySimple
		}
		st.Indicators = append(st.Indicators, indicator.SimpleSpec{
			Type:   indicator.TypeSMA,
			Length: indicator.NextSimpleLength(st.Indicators),
		})
		return nil
	})
}

// SetIndicator replaces the simple overlay at i.
func (s *Service) SetIndicator(ctx context.Context, i int, spec indicator.SimpleSpec) (State, error) {
	if spec.Type != indicator.TypeSMA && spec.Type != indicator.TypeEMA {
		return s.Get(), errors.Wrapf(indicator.ErrInvalidSpec, "unknown type %q", spec.Type)
	}
	spec.Length = indicator.Clamp(spec.Length)
	return s.update(ctx, func(st *State) error {
		if i < 0 || i >= len(st.Indicators) {
			return errors.Wrapf(ErrIndexOutOfRange, "index %d", i)
		}
		st.Indicators[i] = spec
		return nil
	})
}

// RemoveIndicator deletes the simple overlay at i.
func (s *Service) RemoveIndicator(ctx context.Context, i int) (State, error) {
	return s.update(ctx, func(st *State) error {
		if i < 0 || i >= len(st.Indicators) {
			return errors.Wrapf(ErrIndexOutOfRange, "index %d", i)
		}
		st.Indicators = append(st.Indicators[:i], st.Indicators[i+1:]...)
		return nil
	})
}

// CreateAdvanced installs the default advanced overlay of type t,
// replacing any existing one. An empty type means RSI.
func (s *Service) CreateAdvanced(ctx context.Context, t string) (State, error) {
	a := indicator.DefaultAdvanced(t)
	return s.update(ctx, func(st *State) error {
		st.Advanced = &a
		return nil
	})
}

// SetAdvanced replaces the advanced overlay.
func (s *Service) SetAdvanced(ctx context.Context, a indicator.AdvancedSpec) (State, error) {
	if err := indicator.Validate(indicator.Overlays{Advanced: &a}); err != nil {
		return s.Get(), err
	}
	a = a.Clamped()
	return s.update(ctx, func(st *State) error {
		st.Advanced = &a
		return nil
	})
}

// UpdateAdvanced changes one parameter of the advanced overlay.
func (s *Service) UpdateAdvanced(ctx context.Context, key string, value int) (State, error) {
	return s.update(ctx, func(st *State) error {
		if st.Advanced == nil {
			return ErrNoAdvanced
		}
		return st.Advanced.Set(key, value)
	})
}

// RemoveAdvanced clears the advanced overlay.
func (s *Service) RemoveAdvanced(ctx context.Context) (State, error) {
	return s.update(ctx, func(st *State) error {
		if st.Advanced == nil {
			return ErrNoAdvanced
		}
		st.Advanced = nil
		return nil
	})
}

// ToggleFavourite adds or removes stock and reports whether it is now a
// favourite.
func (s *Service) ToggleFavourite(ctx context.Context, stock string) (bool, State, error) {
	stock = strings.ToUpper(strings.TrimSpace(stock))
	var added bool
	st, err := s.update(ctx, func(st *State) error {
		if stock == "" {
			return ErrEmptyStock
		}
		if i := favouriteIndex(st.Favourites, stock); i >= 0 {
			st.Favourites = append(st.Favourites[:i], st.Favourites[i+1:]...)
			return nil
		}
		st.Favourites = append(st.Favourites, stock)
		added = true
		return nil
	})
	return added, st, err
}

// SelectOrder applies a watchlist column click.
func (s *Service) SelectOrder(ctx context.Context, field string) (State, error) {
	if !watchlist.KnownField(field) {
		return s.Get(), errors.Wrapf(ErrInvalidOrder, "%q", field)
	}
	return s.update(ctx, func(st *State) error {
		st.ListOrder = watchlist.ParseOrder(st.ListOrder).Select(field).String()
		return nil
	})
}

// SetTheme switches between dark and light.
func (s *Service) SetTheme(ctx context.Context, theme string) (State, error) {
	if theme != ThemeDark && theme != ThemeLight {
		return s.Get(), errors.Wrapf(ErrInvalidTheme, "%q", theme)
	}
	return s.update(ctx, func(st *State) error {
		st.Theme = theme
		return nil
	})
}

// update applies fn to a copy of the state. If fn fails nothing changes.
func (s *Service) update(ctx context.Context, fn func(*State) error) (State, error) {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.Lock()
	next := s.state.clone()
	if err := fn(&next); err != nil {
		cur := s.state.clone()
		s.mu.Unlock()
		return cur, err
	}
	s.state = next
	data, err := json.Marshal(next)
	s.mu.Unlock()

	if err == nil {
		err = s.store.Save(ctx, s.key, data)
	}
	s.persisted("save", err)
	if err != nil {
		s.log.Warn("failed to persist settings", zap.Error(err))
		err = &PersistError{Err: err}
	}
	if s.OnChange != nil {
		s.OnChange(next.clone())
	}
	return next.clone(), err
}

func (s *Service) persisted(op string, err error) {
	if s.OnPersist != nil {
		s.OnPersist(op, err)
	}
}
