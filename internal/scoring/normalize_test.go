package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestNormalizeMax(t *testing.T) {
	tests := []struct {
		name   string
		scores []float64
		want   []float64
	}{
		{name: "empty", scores: nil, want: []float64{}},
		{name: "scaled by max", scores: []float64{2, 4, 1}, want: []float64{0.5, 1, 0.25}},
		{name: "all zero keeps zero", scores: []float64{0, 0}, want: []float64{0, 0}},
		{name: "constant nonzero is one", scores: []float64{3, 3, 3}, want: []float64{1, 1, 1}},
		{name: "single", scores: []float64{7.5}, want: []float64{1}},
		{name: "negative maximum falls back to min-max", scores: []float64{-0.196, -0.985}, want: []float64{1, 0}},
		{name: "mixed signs fall back to min-max", scores: []float64{-1, 0, 1}, want: []float64{0, 0.5, 1}},
		{name: "single negative", scores: []float64{-0.5}, want: []float64{0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeMax(tt.scores)
			require.Len(t, got, len(tt.want))
			for i := range tt.want {
				assert.InDelta(t, tt.want[i], got[i], 1e-12)
			}
		})
	}
}

func TestNormalizeMinMax(t *testing.T) {
	tests := []struct {
		name   string
		scores []float64
		want   []float64
	}{
		{name: "empty", scores: nil, want: []float64{}},
		{name: "spread", scores: []float64{2, 4, 3}, want: []float64{0, 1, 0.5}},
		{name: "constant is zero", scores: []float64{5, 5}, want: []float64{0, 0}},
		{name: "negative values", scores: []float64{-1, 1}, want: []float64{0, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeMinMax(tt.scores)
			require.Len(t, got, len(tt.want))
			for i := range tt.want {
				assert.InDelta(t, tt.want[i], got[i], 1e-12)
			}
		})
	}
}

func TestNormalize_DoesNotModifyInput(t *testing.T) {
	in := []float64{1, 2, 4}
	_ = Normalize(in, MaxScale)
	_ = Normalize(in, MinMax)
	assert.Equal(t, []float64{1, 2, 4}, in)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("MinMax")
	require.NoError(t, err)
	assert.Equal(t, MinMax, m)

	m, err = ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, MaxScale, m)

	_, err = ParseMode("zscore")
	assert.Error(t, err)

	var decoded Mode
	require.NoError(t, decoded.UnmarshalText([]byte("minmax")))
	assert.Equal(t, MinMax, decoded)

	text, err := MaxScale.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "max", string(text))
}

func TestNormalize_Bounds(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		scores := rapid.SliceOfN(rapid.Float64Range(-1e6, 1e6), 1, 50).Draw(t, "scores")
		mode := rapid.SampledFrom([]Mode{MaxScale, MinMax}).Draw(t, "mode")

		for _, v := range Normalize(scores, mode) {
			if v < 0 || v > 1 {
				t.Fatalf("normalized value %v outside [0,1] for %v (%s)", v, scores, mode)
			}
		}
	})
}

func TestNormalize_ConstantSequence(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		v := rapid.Float64Range(0.001, 1e6).Draw(t, "value")
		n := rapid.IntRange(1, 30).Draw(t, "n")
		scores := make([]float64, n)
		for i := range scores {
			scores[i] = v
		}

		for _, x := range NormalizeMax(scores) {
			assert.Equal(t, 1.0, x)
		}
		for _, x := range NormalizeMinMax(scores) {
			assert.Equal(t, 0.0, x)
		}
	})
}

func TestNormalize_PreservesOrder(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		scores := rapid.SliceOfN(rapid.Float64Range(-1, 1), 2, 30).Draw(t, "scores")
		mode := rapid.SampledFrom([]Mode{MaxScale, MinMax}).Draw(t, "mode")

		got := Normalize(scores, mode)
		for i := range scores {
			for j := range scores {
				if scores[i] > scores[j] && got[i] < got[j] {
					t.Fatalf("order of %v and %v reversed: %v, %v (%s)", scores[i], scores[j], got[i], got[j], mode)
				}
			}
		}
	})
}
