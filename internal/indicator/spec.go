package indicator

import "github.com/pkg/errors"

// Length bounds applied to every configured overlay length.
const (
	MinLength = 2
	MaxLength = 250

	MaxSimpleOverlays = 2
)

// Overlay types.
const (
	TypeSMA   = "sma"
	TypeEMA   = "ema"
	TypeRSI   = "rsi"
	TypeStoch = "stoch"
	TypeMACD  = "macd"
	TypeADX   = "adx"
)

// ErrInvalidSpec is returned by Validate and Set.
var ErrInvalidSpec = errors.New("invalid indicator spec")

// SimpleSpec is a price-scale overlay line.
type SimpleSpec struct {
	Type        string `json:"type" yaml:"type"`
	Length      int    `json:"length" yaml:"length"`
	ShowOnScale bool   `json:"showOnScale,omitempty" yaml:"showOnScale"`
}

// AdvancedSpec is the single lower-pane overlay. Only the fields that
// belong to Type are meaningful.
type AdvancedSpec struct {
	Type   string `json:"type" yaml:"type"`
	Length int    `json:"length,omitempty" yaml:"length"`
	K      int    `json:"k,omitempty" yaml:"k"`
	D      int    `json:"d,omitempty" yaml:"d"`
	Fast   int    `json:"fast,omitempty" yaml:"fast"`
	Slow   int    `json:"slow,omitempty" yaml:"slow"`
	Signal int    `json:"signal,omitempty" yaml:"signal"`
}

// Overlays is everything drawn on top of one chart.
type Overlays struct {
	Simple   []SimpleSpec  `json:"indicators" yaml:"indicators"`
	Advanced *AdvancedSpec `json:"advanced,omitempty" yaml:"advanced"`
}

// Clamp bounds n to [MinLength, MaxLength].
func Clamp(n int) int {
	if n < MinLength {
		return MinLength
	}
	if n > MaxLength {
		return MaxLength
	}
	return n
}

// Clamped returns a copy with every length field clamped. Fields that do
// not belong to the advanced type are left at zero.
func (o Overlays) Clamped() Overlays {
	out := Overlays{Simple: make([]SimpleSpec, len(o.Simple))}
	for i, s := range o.Simple {
		s.Length = Clamp(s.Length)
		out.Simple[i] = s
	}
	if o.Advanced != nil {
		a := o.Advanced.Clamped()
		out.Advanced = &a
	}
	return out
}

// Clamped returns a copy with the type's length fields clamped.
func (a AdvancedSpec) Clamped() AdvancedSpec {
	out := AdvancedSpec{Type: a.Type}
	switch a.Type {
	case TypeRSI, TypeADX:
		out.Length = Clamp(a.Length)
	case TypeStoch:
		out.K, out.D = Clamp(a.K), Clamp(a.D)
	case TypeMACD:
		out.Fast, out.Slow, out.Signal = Clamp(a.Fast), Clamp(a.Slow), Clamp(a.Signal)
	}
	return out
}

// DefaultAdvanced returns the advanced spec a new overlay of type t starts
// with. Unknown types fall back to RSI.
func DefaultAdvanced(t string) AdvancedSpec {
	switch t {
	case TypeStoch:
		return AdvancedSpec{Type: TypeStoch, K: 12, D: 3}
	case TypeMACD:
		return AdvancedSpec{Type: TypeMACD, Fast: 12, Slow: 26, Signal: 9}
	case TypeADX:
		return AdvancedSpec{Type: TypeADX, Length: 14}
	}
	return AdvancedSpec{Type: TypeRSI, Length: 14}
}

// NextSimpleLength picks the length of a newly created simple overlay:
// 12 for the first, then 200 unless the first is already a long one.
func NextSimpleLength(existing []SimpleSpec) int {
	if len(existing) == 0 || existing[0].Length > 50 {
		return 12
	}
	return 200
}

// Set updates one parameter by its JSON key.
func (a *AdvancedSpec) Set(key string, value int) error {
	var field *int
	switch key {
	case "length":
		field = &a.Length
	case "k":
		field = &a.K
	case "d":
		field = &a.D
	case "fast":
		field = &a.Fast
	case "slow":
		field = &a.Slow
	case "signal", "smoothing":
		field = &a.Signal
	default:
		return errors.Wrapf(ErrInvalidSpec, "unknown parameter %q", key)
	}
	*field = Clamp(value)
	return nil
}

// Validate rejects unknown types and too many simple overlays.
func Validate(o Overlays) error {
	if len(o.Simple) > MaxSimpleOverlays {
		return errors.Wrapf(ErrInvalidSpec, "%d simple overlays, max %d", len(o.Simple), MaxSimpleOverlays)
	}
	for i, s := range o.Simple {
		if s.Type != TypeSMA && s.Type != TypeEMA {
			return errors.Wrapf(ErrInvalidSpec, "indicators[%d]: unknown type %q", i, s.Type)
		}
	}
	if a := o.Advanced; a != nil {
		switch a.Type {
		case TypeRSI, TypeStoch, TypeMACD, TypeADX:
		default:
			return errors.Wrapf(ErrInvalidSpec, "advanced: unknown type %q", a.Type)
		}
	}
	return nil
}
