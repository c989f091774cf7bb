package indicator

import (
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"stockchart/internal/model"
)

// Line is one computed simple overlay.
type Line struct {
	Spec   SimpleSpec    `json:"spec"`
	Points []model.Point `json:"points"`
}

// AdvancedResult is the computed advanced overlay. Lines is keyed by
// "rsi", "adx", "k", "d", "macd" or "signal"; Histogram is set for MACD only.
type AdvancedResult struct {
	Spec      AdvancedSpec             `json:"spec"`
	Lines     map[string][]model.Point `json:"lines"`
	Histogram []model.HistogramPoint   `json:"histogram,omitempty"`
}

// Result is every overlay configured for one chart.
type Result struct {
	Simple   []Line          `json:"indicators"`
	Advanced *AdvancedResult `json:"advanced,omitempty"`
}

// Reading is the latest value of one overlay line. Value covers the
// closed bars only; Live includes the last, still-forming bar.
type Reading struct {
	Name  string      `json:"name"`
	Value model.Float `json:"value"`
	Live  model.Float `json:"live"`
	Ready bool        `json:"ready"`
}

// Engine computes overlays over cached series. It holds no per-series
// state and is safe for concurrent use.
type Engine struct {
	log *zap.Logger

	// OnCompute, if set, observes the duration of every Compute call.
	OnCompute func(time.Duration)
}

// NewEngine creates an engine. A nil logger disables logging.
func NewEngine(log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{log: log}
}

// Compute builds every overlay in o from the series bars. Lengths are
// assumed to be clamped already.
func (e *Engine) Compute(series model.Series, o Overlays) Result {
	start := time.Now()
	bars := series.Data

	res := Result{Simple: make([]Line, 0, len(o.Simple))}
	for _, s := range o.Simple {
		var pts []model.Point
		if s.Type == TypeEMA {
			pts = EMASeries(bars, s.Length)
		} else {
			pts = SMASeries(bars, s.Length)
		}
		res.Simple = append(res.Simple, Line{Spec: s, Points: pts})
	}
	if o.Advanced != nil {
		res.Advanced = computeAdvanced(bars, *o.Advanced)
	}

	elapsed := time.Since(start)
	if e.OnCompute != nil {
		e.OnCompute(elapsed)
	}
	e.log.Debug("computed overlays",
		zap.Int("bars", len(bars)),
		zap.Int("simple", len(res.Simple)),
		zap.Bool("advanced", res.Advanced != nil),
		zap.Duration("elapsed", elapsed))
	return res
}

func computeAdvanced(bars []model.Bar, a AdvancedSpec) *AdvancedResult {
	out := &AdvancedResult{Spec: a, Lines: make(map[string][]model.Point, 2)}
	switch a.Type {
	case TypeRSI:
		out.Lines["rsi"] = RSISeries(bars, a.Length)
	case TypeStoch:
		out.Lines["k"], out.Lines["d"] = Stochastic(bars, a.K, a.D)
	case TypeMACD:
		m := MACD(bars, a.Fast, a.Slow, a.Signal)
		out.Lines["macd"] = m.Line
		out.Lines["signal"] = m.Signal
		out.Histogram = m.Histogram
	case TypeADX:
		out.Lines["adx"] = ADX(bars, a.Length)
	}
	return out
}

// Latest returns the newest value of every overlay line. Streaming
// indicators replay the closed bars and peek the forming one; compound
// overlays are recomputed with and without the last bar.
func (e *Engine) Latest(series model.Series, o Overlays) []Reading {
	bars := series.Data
	if len(bars) == 0 {
		return nil
	}
	closed, forming := bars[:len(bars)-1], bars[len(bars)-1]

	var out []Reading
	for _, s := range o.Simple {
		var ind Indicator
		if s.Type == TypeEMA {
			ind = NewEMA(s.Length)
		} else {
			ind = NewSMA(s.Length)
		}
		r := stream(specName(ind.Name(), s.Length), ind, closed, forming)
		if s.Type == TypeEMA && len(bars) <= s.Length {
			// EMASeries needs more than length bars.
			r.Live = model.Float(nan)
		}
		out = append(out, r)
	}
	if a := o.Advanced; a != nil {
		if a.Type == TypeRSI {
			out = append(out, stream(specName("RSI", a.Length), NewRSI(a.Length), closed, forming))
		} else {
			out = append(out, compoundReadings(*a, closed, bars)...)
		}
	}
	return out
}

func stream(name string, ind Indicator, closed []model.Bar, forming model.Bar) Reading {
	for _, b := range closed {
		ind.Update(b)
	}
	return Reading{
		Name:  name,
		Value: model.Float(ind.Value()),
		Live:  model.Float(ind.Peek(forming)),
		Ready: ind.Ready(),
	}
}

func compoundReadings(a AdvancedSpec, closed, all []model.Bar) []Reading {
	before := computeAdvanced(closed, a)
	after := computeAdvanced(all, a)

	var keys []string
	var base string
	switch a.Type {
	case TypeStoch:
		keys, base = []string{"k", "d"}, specName("STOCH", a.K, a.D)
	case TypeMACD:
		keys, base = []string{"macd", "signal"}, specName("MACD", a.Fast, a.Slow, a.Signal)
	case TypeADX:
		keys, base = []string{"adx"}, specName("ADX", a.Length)
	}

	out := make([]Reading, 0, len(keys))
	for _, k := range keys {
		out = append(out, Reading{
			Name:  base + "." + k,
			Value: model.Float(lastValue(before.Lines[k])),
			Live:  model.Float(lastValue(after.Lines[k])),
			Ready: len(before.Lines[k]) > 0,
		})
	}
	return out
}

func lastValue(pts []model.Point) float64 {
	if len(pts) == 0 {
		return nan
	}
	return pts[len(pts)-1].Value
}

// specName formats names like "SMA_12" or "MACD_12_26_9".
func specName(name string, lengths ...int) string {
	var b strings.Builder
	b.WriteString(name)
	for _, n := range lengths {
		b.WriteByte('_')
		b.WriteString(strconv.Itoa(n))
	}
	return b.String()
}
