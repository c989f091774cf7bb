package indicator

import (
	"math"

	"stockchart/internal/model"
)

// RSI calculates the Relative Strength Index using Wilder's smoothing.
//
// Tick bars measure gain/loss bar-over-bar, so the first bar only provides
// the reference price and the seed spans bars 1..length. Aggregate bars
// measure it intra-bar as close-open, so the seed spans bars 0..length-1.
// The seed averages are not emitted; the first value comes from the first
// Wilder step after them. The mode is fixed by the first bar's Kind.
//
// RS is not guarded: an average loss of zero gives RSI 100, and zero gain
// with zero loss gives NaN.
type RSI struct {
	length  int
	tick    bool
	count   int
	prev    float64
	gain    *SMMA
	loss    *SMMA
	current float64
}

// NewRSI creates a new RSI indicator with the given length (typically 14).
func NewRSI(length int) *RSI {
	return &RSI{
		length:  length,
		gain:    NewSMMA(length),
		loss:    NewSMMA(length),
		current: math.NaN(),
	}
}

func (r *RSI) Name() string { return "RSI" }

// seedBars is the number of bars consumed before the first output.
func (r *RSI) seedBars() int {
	if r.tick {
		return r.length + 1
	}
	return r.length
}

func (r *RSI) delta(b model.Bar) float64 {
	if r.tick {
		return b.Last() - r.prev
	}
	return b.Last() - b.OpenValue()
}

func (r *RSI) Update(b model.Bar) {
	if r.count == 0 {
		r.tick = b.Kind == model.KindTick
	}
	r.count++
	defer func() { r.prev = b.Last() }()

	if r.tick && r.count == 1 {
		return
	}
	d := r.delta(b)
	if r.count <= r.seedBars() {
		g, l := seedSplit(d)
		r.gain.push(g)
		r.loss.push(l)
		return
	}
	g, l := wilderSplit(d)
	r.gain.push(g)
	r.loss.push(l)
	r.current = rsiValue(r.gain.Value(), r.loss.Value())
}

func (r *RSI) Value() float64 { return r.current }
func (r *RSI) Ready() bool    { return r.count > 0 && r.count > r.seedBars() }

// Peek computes what Value() would be with b appended, without mutating state.
func (r *RSI) Peek(b model.Bar) float64 {
	if r.count == 0 {
		return math.NaN()
	}
	if r.count+1 <= r.seedBars() {
		return math.NaN()
	}
	g, l := wilderSplit(r.delta(b))
	return rsiValue(r.gain.peek(g), r.loss.peek(l))
}

// Reset clears the RSI state for reuse.
func (r *RSI) Reset() {
	r.count = 0
	r.prev = 0
	r.tick = false
	r.gain.Reset()
	r.loss.Reset()
	r.current = math.NaN()
}

// Seed deltas that are not positive count as losses, so a NaN delta
// poisons the loss average.
func seedSplit(d float64) (gain, loss float64) {
	if d > 0 {
		return d, 0
	}
	return 0, -d
}

// Wilder-step deltas that are not a number count as neither.
func wilderSplit(d float64) (gain, loss float64) {
	switch {
	case d > 0:
		return d, 0
	case d < 0:
		return 0, -d
	}
	return 0, 0
}

func rsiValue(ag, al float64) float64 {
	rs := ag / al
	return 100 - 100/(1+rs)
}

// RSISeries returns the RSI for every bar past the seed window.
func RSISeries(bars []model.Bar, length int) []model.Point {
	if length <= 0 {
		return nil
	}
	r := NewRSI(length)
	var out []model.Point
	for _, b := range bars {
		r.Update(b)
		if r.Ready() {
			out = append(out, model.Point{Timestamp: b.Timestamp, Value: r.Value()})
		}
	}
	return out
}
