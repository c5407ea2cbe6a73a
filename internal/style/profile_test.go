package style

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComplete(t *testing.T) {
	const text = "I love long walks. We walk every day."
	full := Analyze(text)
	stored := Vector{0.9, 30, 0, 10}

	t.Run("nothing missing", func(t *testing.T) {
		kw := NewKeywordSet("formal")
		p, computed := Complete(text, &stored, kw)
		assert.False(t, computed)
		assert.Equal(t, Profile{Vector: stored, Keywords: kw}, p)
	})

	t.Run("keywords missing are derived from the stored vector", func(t *testing.T) {
		p, computed := Complete(text, &stored, nil)
		assert.True(t, computed)
		assert.Equal(t, stored, p.Vector)
		assert.Equal(t, Keywords(text, stored), p.Keywords)
		assert.True(t, p.Keywords.Contains("very-long-sentences"))
	})

	t.Run("vector missing keeps keywords", func(t *testing.T) {
		kw := NewKeywordSet("custom")
		p, computed := Complete(text, nil, kw)
		assert.True(t, computed)
		assert.Equal(t, full.Vector, p.Vector)
		assert.Equal(t, kw, p.Keywords)
	})

	t.Run("both missing", func(t *testing.T) {
		p, computed := Complete(text, nil, KeywordSet{})
		assert.True(t, computed)
		assert.Equal(t, full, p)
	})
}

func TestAnalyze_EmptyText(t *testing.T) {
	p := Analyze("")
	assert.Equal(t, Vector{}, p.Vector)
	assert.False(t, p.Keywords.Contains("lexical-density"))
	assert.False(t, p.Keywords.Contains("active-style"))
	assert.False(t, p.Keywords.Contains("passive-style"))
}
