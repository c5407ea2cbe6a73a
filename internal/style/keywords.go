package style

import (
	"strings"

	"github.com/fyrsmithlabs/stylerank/internal/textstat"
)

// KeywordSet is a deduplicated, case-folded set of style tags. Order follows
// insertion but carries no meaning.
type KeywordSet []string

// NewKeywordSet folds, trims and deduplicates tags, dropping empty ones.
func NewKeywordSet(tags ...string) KeywordSet {
	set := make(KeywordSet, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		t := textstat.FoldTag(tag)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		set = append(set, t)
	}
	return set
}

// Contains reports whether tag (already folded) is in the set.
func (k KeywordSet) Contains(tag string) bool {
	for _, t := range k {
		if t == tag {
			return true
		}
	}
	return false
}

// measures are the per-text quantities the keyword axes threshold on.
type measures struct {
	vec Vector

	density   float64
	hasWords  bool
	adjRatio  float64
	emotive   int
	passive   float64
	hasPhrase bool
}

func measure(words, sentences []string, vec Vector) measures {
	m := measures{vec: vec, hasWords: len(words) > 0, hasPhrase: len(sentences) > 0}

	if m.hasWords {
		m.density = float64(textstat.CountUnique(words)) / float64(len(words))
	}

	adj := 0
	for _, w := range words {
		lw := strings.ToLower(w)
		if adjectives.has(lw) {
			adj++
		}
		if emotive.has(lw) {
			m.emotive++
		}
	}
	m.adjRatio = float64(adj) / float64(max(len(words), 1))

	if m.hasPhrase {
		passive := 0
		for _, s := range sentences {
			if IsPassive(s) {
				passive++
			}
		}
		m.passive = float64(passive) / float64(len(sentences))
	}
	return m
}

// band is one threshold bucket of an axis.
type band struct {
	match func(x float64) bool
	tags  []string
}

// axis reads one measure and maps it to at most one band.
type axis struct {
	name  string
	value func(m measures) (float64, bool)
	bands []band
}

func atLeast(lo float64) func(float64) bool { return func(x float64) bool { return x >= lo } }
func above(lo float64) func(float64) bool { return func(x float64) bool { return x > lo } }
func below(hi float64) func(float64) bool { return func(x float64) bool { return x < hi } }
func equal(v float64) func(float64) bool { return func(x float64) bool { return x == v } }

func within(lo, hi float64) func(float64) bool {
	return func(x float64) bool { return x >= lo && x < hi }
}

// axes is evaluated in order. Each axis contributes the tags of its first
// matching band; gaps between bands are deliberate.
var axes = []axis{
	{
		name:  "vocabulary",
		value: func(m measures) (float64, bool) { return m.vec.TTR(), true },
		bands: []band{
			{atLeast(0.7), []string{"very-varied-vocabulary", "lexically-rich"}},
			{within(0.6, 0.7), []string{"varied-vocabulary"}},
			{within(0.3, 0.4), []string{"slightly-repetitive"}},
			{within(0, 0.3), []string{"highly-repetitive"}},
		},
	},
	{
		name:  "sentence-length",
		value: func(m measures) (float64, bool) { return m.vec.AvgSentenceLen(), true },
		bands: []band{
			{above(25), []string{"very-long-sentences", "high-complexity"}},
			{above(20), []string{"long-sentences", "complex-structure"}},
			{below(8), []string{"very-short-sentences", "very-concise"}},
			{below(12), []string{"short-sentences", "concise"}},
		},
	},
	{
		name:  "pronouns",
		value: func(m measures) (float64, bool) { return m.vec.PronounRatio(), true },
		bands: []band{
			{above(0.12), []string{"strongly-personal", "subjective", "narrative"}},
			{above(0.08), []string{"personal", "conversational"}},
			{below(0.02), []string{"highly-impersonal", "objective", "formal"}},
			{below(0.04), []string{"impersonal", "analytical"}},
		},
	},
	{
		name:  "readability",
		value: func(m measures) (float64, bool) { return m.vec.Readability(), true },
		bands: []band{
			{above(70), []string{"very-easy-to-read", "light", "simple-style"}},
			{above(60), []string{"easy-to-read", "accessible"}},
			{below(30), []string{"very-academic", "dense", "technical"}},
			{below(45), []string{"academic", "formal"}},
		},
	},
	{
		name:  "lexical-density",
		value: func(m measures) (float64, bool) { return m.density, m.hasWords },
		bands: []band{
			{above(0.5), []string{"high-lexical-density"}},
			{below(0.3), []string{"low-lexical-density"}},
		},
	},
	{
		name:  "adjectives",
		value: func(m measures) (float64, bool) { return m.adjRatio, true },
		bands: []band{
			{above(0.07), []string{"highly-descriptive"}},
			{above(0.04), []string{"descriptive"}},
			{below(0.015), []string{"dry-style"}},
		},
	},
	{
		name:  "emotion",
		value: func(m measures) (float64, bool) { return float64(m.emotive), true },
		bands: []band{
			{above(5), []string{"emotional"}},
			{equal(0), []string{"emotionally-neutral"}},
		},
	},
	{
		name:  "voice",
		value: func(m measures) (float64, bool) { return m.passive, m.hasPhrase },
		bands: []band{
			{above(0.4), []string{"passive-style"}},
			{below(0.1), []string{"active-style"}},
		},
	},
}

// AxisTags records the tags one axis contributed.
type AxisTags struct {
	Axis string   `json:"axis"`
	Tags []string `json:"tags"`
}

// Generate derives style keywords from the words and sentences of a text and
// its style vector. The vector is taken as given, so a stored vector may be
// combined with freshly tokenized text.
func Generate(words, sentences []string, vec Vector) KeywordSet {
	var tags []string
	for _, a := range evaluateAxes(words, sentences, vec) {
		tags = append(tags, a.Tags...)
	}
	return NewKeywordSet(tags...)
}

// evaluateAxes returns the fired tags of every axis that produced any.
func evaluateAxes(words, sentences []string, vec Vector) []AxisTags {
	m := measure(words, sentences, vec)

	var fired []AxisTags
	for _, ax := range axes {
		x, ok := ax.value(m)
		if !ok {
			continue
		}
		for _, b := range ax.bands {
			if b.match(x) {
				fired = append(fired, AxisTags{Axis: ax.name, Tags: append([]string(nil), b.tags...)})
				break
			}
		}
	}
	return fired
}

// Keywords tokenizes text and generates its keywords from the given vector.
func Keywords(text string, vec Vector) KeywordSet {
	st := textstat.Analyze(text)
	return Generate(st.Words, st.Sentences, vec)
}
