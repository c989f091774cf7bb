package indicator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClamp(t *testing.T) {
	tests := []struct{ in, want int }{
		{-5, MinLength},
		{0, MinLength},
		{2, 2},
		{14, 14},
		{250, 250},
		{251, MaxLength},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Clamp(tt.in), "Clamp(%d)", tt.in)
	}
}

func TestOverlaysClamped(t *testing.T) {
	o := Overlays{
		Simple:   []SimpleSpec{{Type: TypeSMA, Length: 1}, {Type: TypeEMA, Length: 900}},
		Advanced: &AdvancedSpec{Type: TypeMACD, Fast: 1, Slow: 300, Signal: 9, Length: 40},
	}
	got := o.Clamped()

	assert.Equal(t, 2, got.Simple[0].Length)
	assert.Equal(t, 250, got.Simple[1].Length)
	assert.Equal(t, AdvancedSpec{Type: TypeMACD, Fast: 2, Slow: 250, Signal: 9}, *got.Advanced)
	assert.Equal(t, 1, o.Simple[0].Length, "original untouched")
}

func TestNextSimpleLength(t *testing.T) {
	assert.Equal(t, 12, NextSimpleLength(nil))
	assert.Equal(t, 200, NextSimpleLength([]SimpleSpec{{Type: TypeSMA, Length: 12}}))
	assert.Equal(t, 200, NextSimpleLength([]SimpleSpec{{Type: TypeSMA, Length: 50}}))
	assert.Equal(t, 12, NextSimpleLength([]SimpleSpec{{Type: TypeSMA, Length: 51}}))
}

func TestDefaultAdvanced(t *testing.T) {
	assert.Equal(t, AdvancedSpec{Type: TypeRSI, Length: 14}, DefaultAdvanced(""))
	assert.Equal(t, AdvancedSpec{Type: TypeStoch, K: 12, D: 3}, DefaultAdvanced(TypeStoch))
	assert.Equal(t, AdvancedSpec{Type: TypeMACD, Fast: 12, Slow: 26, Signal: 9}, DefaultAdvanced(TypeMACD))
	assert.Equal(t, AdvancedSpec{Type: TypeADX, Length: 14}, DefaultAdvanced(TypeADX))
}

func TestAdvancedSet(t *testing.T) {
	a := DefaultAdvanced(TypeMACD)
	require.NoError(t, a.Set("fast", 5))
	require.NoError(t, a.Set("smoothing", 1000))
	assert.Equal(t, 5, a.Fast)
	assert.Equal(t, MaxLength, a.Signal)

	err := a.Set("period", 3)
	assert.ErrorIs(t, err, ErrInvalidSpec)
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate(Overlays{}))
	assert.NoError(t, Validate(Overlays{
		Simple:   []SimpleSpec{{Type: TypeSMA, Length: 12}, {Type: TypeEMA, Length: 200}},
		Advanced: &AdvancedSpec{Type: TypeADX, Length: 14},
	}))

	tests := map[string]Overlays{
		"too many simple": {Simple: []SimpleSpec{{Type: TypeSMA}, {Type: TypeSMA}, {Type: TypeSMA}}},
		"bad simple type": {Simple: []SimpleSpec{{Type: TypeRSI}}},
		"bad advanced":    {Advanced: &AdvancedSpec{Type: TypeSMA}},
	}
	for name, o := range tests {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, Validate(o), ErrInvalidSpec)
		})
	}
}
