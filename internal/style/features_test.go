package style

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name string
		text string
		want Vector
	}{
		{
			name: "empty text is the zero vector",
			text: "",
			want: Vector{0, 0, 0, 0},
		},
		{
			name: "punctuation only is the zero vector",
			text: "... !? 42",
			want: Vector{0, 0, 0, 0},
		},
		{
			name: "two short sentences",
			text: "The cat sat. The dog ran fast.",
			// 7 words, 6 unique, 2 sentences, 7 syllables
			want: Vector{6.0 / 7.0, 3.5, 0, 206.835 - 1.015*3.5 - 84.6*1},
		},
		{
			name: "single word",
			text: "Hello.",
			want: Vector{1, 1, 0, 206.835 - 1.015*1 - 84.6*2},
		},
		{
			name: "pronouns are matched case-insensitively",
			text: "I love you and we hate them.",
			// 7 words, syllables: i love you and we hate them -> 1 each
			want: Vector{1, 7, 4.0 / 7.0, 206.835 - 1.015*7 - 84.6*1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Extract(tt.text)
			for i := range got {
				assert.InDelta(t, tt.want[i], got[i], 1e-9, "component %d", i)
			}
		})
	}
}

func TestExtract_TTRIsCaseSensitive(t *testing.T) {
	got := Extract("Word word WORD")
	assert.InDelta(t, 1.0, got.TTR(), 1e-9)

	got = Extract("word word word")
	assert.InDelta(t, 1.0/3.0, got.TTR(), 1e-9)
}

func TestCountSyllables(t *testing.T) {
	tests := []struct {
		word string
		want int
	}{
		{"the", 1},
		{"cake", 1},
		{"be", 1},
		{"free", 1},
		{"eye", 1},
		{"Apple", 1},
		{"queue", 1},
		{"rhythm", 1},
		{"bcd", 1},
		{"beautiful", 3},
		{"readability", 5},
		{"", 1},
	}

	for _, tt := range tests {
		t.Run(tt.word, func(t *testing.T) {
			assert.Equal(t, tt.want, CountSyllables(tt.word))
		})
	}
}

func TestVectorFromSlice(t *testing.T) {
	v, ok := VectorFromSlice([]float64{0.5, 12, 0.01, 55})
	require.True(t, ok)
	assert.Equal(t, Vector{0.5, 12, 0.01, 55}, v)
	assert.Equal(t, "0.5,12,0.01,55", v.String())
	assert.Equal(t, []float32{0.5, 12, 0.01, 55}, v.Float32())

	_, ok = VectorFromSlice([]float64{1, 2, 3})
	assert.False(t, ok)

	_, ok = VectorFromSlice(nil)
	assert.False(t, ok)
}

func TestExtract_Properties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		text := rapid.StringMatching(`[A-Za-z .!?,\n]{0,300}`).Draw(t, "text")

		v := Extract(text)
		assert.Len(t, v.Slice(), Dimensions)
		for i, x := range v {
			if math.IsNaN(x) || math.IsInf(x, 0) {
				t.Fatalf("component %d of %v is not finite", i, v)
			}
		}
		assert.GreaterOrEqual(t, v.TTR(), 0.0)
		assert.LessOrEqual(t, v.TTR(), 1.0)
		assert.GreaterOrEqual(t, v.PronounRatio(), 0.0)
		assert.LessOrEqual(t, v.PronounRatio(), 1.0)
		assert.Equal(t, v, Extract(text))
	})
}

func TestExtract_ArbitraryUnicode(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		text := rapid.String().Draw(t, "text")
		v := Extract(text)
		for i, x := range v {
			if math.IsNaN(x) || math.IsInf(x, 0) {
				t.Fatalf("component %d of %v is not finite", i, v)
			}
		}
	})
}
