package indicator

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockchart/internal/model"
)

func seriesOf(bars []model.Bar) model.Series {
	return model.Series{Data: bars}
}

func TestEngine_ComputeSimpleAndAdvanced(t *testing.T) {
	e := NewEngine(nil)
	var calls int
	e.OnCompute = func(time.Duration) { calls++ }

	bars := ticks(10, 11, 9, 12, 13, 12.5, 14, 13.5, 15, 16, 15.5, 17)
	res := e.Compute(seriesOf(bars), Overlays{
		Simple: []SimpleSpec{
			{Type: TypeSMA, Length: 2},
			{Type: TypeEMA, Length: 3, ShowOnScale: true},
		},
		Advanced: &AdvancedSpec{Type: TypeMACD, Fast: 2, Slow: 4, Signal: 2},
	})

	assert.Equal(t, 1, calls)
	require.Len(t, res.Simple, 2)
	assert.Equal(t, SMASeries(bars, 2), res.Simple[0].Points)
	assert.Equal(t, EMASeries(bars, 3), res.Simple[1].Points)
	assert.True(t, res.Simple[1].Spec.ShowOnScale)

	require.NotNil(t, res.Advanced)
	m := MACD(bars, 2, 4, 2)
	assert.Equal(t, m.Line, res.Advanced.Lines["macd"])
	assert.Equal(t, m.Signal, res.Advanced.Lines["signal"])
	assert.Equal(t, m.Histogram, res.Advanced.Histogram)
}

func TestEngine_ComputeTimestampsAlignWithBars(t *testing.T) {
	bars := ticks(10, 11, 9, 12, 13, 12.5, 14, 13.5, 15, 16, 15.5, 17, 16, 18, 17.5, 19)
	valid := make(map[int64]bool, len(bars))
	for _, b := range bars {
		valid[b.Timestamp] = true
	}

	e := NewEngine(nil)
	for _, adv := range []AdvancedSpec{
		DefaultAdvanced(TypeRSI),
		{Type: TypeStoch, K: 4, D: 3},
		{Type: TypeMACD, Fast: 3, Slow: 5, Signal: 3},
		{Type: TypeADX, Length: 3},
	} {
		adv := adv
		t.Run(adv.Type, func(t *testing.T) {
			res := e.Compute(seriesOf(bars), Overlays{
				Simple:   []SimpleSpec{{Type: TypeSMA, Length: 5}},
				Advanced: &adv,
			})
			for name, pts := range res.Advanced.Lines {
				for _, p := range pts {
					assert.True(t, valid[p.Timestamp], "%s: ts %d", name, p.Timestamp)
				}
			}
			for _, p := range res.Simple[0].Points {
				assert.True(t, valid[p.Timestamp])
			}
		})
	}
}

func TestEngine_ComputeWithoutOverlays(t *testing.T) {
	res := NewEngine(nil).Compute(seriesOf(ticks(1, 2, 3)), Overlays{})
	assert.Empty(t, res.Simple)
	assert.Nil(t, res.Advanced)
}

func TestEngine_ResultJSONWithNaN(t *testing.T) {
	res := NewEngine(nil).Compute(seriesOf(ticks(5, 5, 5, 5)), Overlays{
		Advanced: &AdvancedSpec{Type: TypeStoch, K: 2, D: 2},
	})
	b, err := json.Marshal(res)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"indicators": [],
		"advanced": {
			"spec": {"type": "stoch", "k": 2, "d": 2},
			"lines": {"k": [[1060,null],[1120,null],[1180,null]], "d": [[1120,null],[1180,null]]}
		}
	}`, string(b))
}

func TestEngine_LatestStreamsAndPeeks(t *testing.T) {
	// SMA(2) over closed bars 10, 11 is 10.5; peeking the forming 9 gives 10.
	e := NewEngine(nil)
	got := e.Latest(seriesOf(ticks(10, 11, 9)), Overlays{
		Simple: []SimpleSpec{{Type: TypeSMA, Length: 2}},
	})
	require.Len(t, got, 1)
	assert.Equal(t, "SMA_2", got[0].Name)
	assert.True(t, got[0].Ready)
	assert.InDelta(t, 10.5, float64(got[0].Value), 1e-12)
	assert.InDelta(t, 10.0, float64(got[0].Live), 1e-12)
}

func TestEngine_LatestMatchesCompute(t *testing.T) {
	bars := ticks(44, 44.34, 44.09, 43.61, 44.33, 44.83, 45.10, 45.42, 45.84, 46.08, 45.89, 46.03)
	o := Overlays{
		Simple:   []SimpleSpec{{Type: TypeEMA, Length: 4}},
		Advanced: &AdvancedSpec{Type: TypeRSI, Length: 5},
	}
	e := NewEngine(nil)
	res := e.Compute(seriesOf(bars), o)
	got := e.Latest(seriesOf(bars), o)
	require.Len(t, got, 2)

	ema := res.Simple[0].Points
	assert.Equal(t, "EMA_4", got[0].Name)
	assert.InDelta(t, ema[len(ema)-1].Value, float64(got[0].Live), 1e-12)
	assert.InDelta(t, ema[len(ema)-2].Value, float64(got[0].Value), 1e-12)

	rsi := res.Advanced.Lines["rsi"]
	assert.Equal(t, "RSI_5", got[1].Name)
	assert.InDelta(t, rsi[len(rsi)-1].Value, float64(got[1].Live), 1e-12)
}

func TestEngine_LatestEMAAgreesWithSeriesAtSeedBoundary(t *testing.T) {
	bars := ticks(2, 4, 6)
	o := Overlays{Simple: []SimpleSpec{{Type: TypeEMA, Length: 3}}}
	e := NewEngine(nil)

	require.Empty(t, e.Compute(seriesOf(bars), o).Simple[0].Points)
	got := e.Latest(seriesOf(bars), o)
	require.Len(t, got, 1)
	assert.False(t, got[0].Ready)
	assert.True(t, math.IsNaN(float64(got[0].Live)))

	bars = ticks(2, 4, 6, 8)
	pts := e.Compute(seriesOf(bars), o).Simple[0].Points
	got = e.Latest(seriesOf(bars), o)
	require.Len(t, pts, 2)
	assert.InDelta(t, pts[0].Value, float64(got[0].Value), 1e-12)
	assert.InDelta(t, pts[1].Value, float64(got[0].Live), 1e-12)
}

func TestEngine_LatestCompoundNames(t *testing.T) {
	bars := ticks(1, 3, 2, 4, 3, 5, 4, 6)
	got := NewEngine(nil).Latest(seriesOf(bars), Overlays{
		Advanced: &AdvancedSpec{Type: TypeStoch, K: 3, D: 2},
	})
	require.Len(t, got, 2)
	assert.Equal(t, "STOCH_3_2.k", got[0].Name)
	assert.Equal(t, "STOCH_3_2.d", got[1].Name)

	k, _ := Stochastic(bars, 3, 2)
	assert.InDelta(t, k[len(k)-1].Value, float64(got[0].Live), 1e-12)
	assert.InDelta(t, k[len(k)-2].Value, float64(got[0].Value), 1e-12)
}

func TestEngine_LatestNotReady(t *testing.T) {
	got := NewEngine(nil).Latest(seriesOf(ticks(1, 2)), Overlays{
		Simple:   []SimpleSpec{{Type: TypeSMA, Length: 5}},
		Advanced: &AdvancedSpec{Type: TypeADX, Length: 14},
	})
	require.Len(t, got, 2)
	for _, r := range got {
		assert.False(t, r.Ready, r.Name)
		assert.True(t, math.IsNaN(float64(r.Live)), r.Name)
	}
	assert.Empty(t, NewEngine(nil).Latest(model.Series{}, Overlays{}))
}
