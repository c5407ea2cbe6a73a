package style

import (
	"math"
	"sort"
	"strings"

	"github.com/fyrsmithlabs/stylerank/internal/textstat"
)

// topWordLimit caps the frequency table of an Explanation.
const topWordLimit = 30

// WordCount is one entry of a word frequency table.
type WordCount struct {
	Word  string `json:"word"`
	Count int    `json:"count"`
}

// Explanation breaks down how a text's style keywords came about.
type Explanation struct {
	Words            int         `json:"words_count" yaml:"words_count"`
	Unique           int         `json:"unique_count" yaml:"unique_count"`
	Sentences        int         `json:"sentence_count" yaml:"sentence_count"`
	LexicalDensity   float64     `json:"lexical_density" yaml:"lexical_density"`
	AdjectiveCount   int         `json:"adjective_count" yaml:"adjective_count"`
	EmotiveCount     int         `json:"emotive_count" yaml:"emotive_count"`
	PassiveSentences []string    `json:"passive_sentences" yaml:"passive_sentences"`
	TopWords         []WordCount `json:"top_words" yaml:"top_words"`
	Vector           Vector      `json:"style_vec" yaml:"style_vec"`
	Keywords         KeywordSet  `json:"style_keywords" yaml:"style_keywords"`
	Axes             []AxisTags  `json:"axes" yaml:"axes"`
	Adjectives       []string    `json:"adjectives" yaml:"adjectives"`
	EmotiveWords     []string    `json:"emotive_words" yaml:"emotive_words"`
}

// Explain computes the style vector and keywords of text together with the
// intermediate counts behind them and the lexicons they were counted against.
func Explain(text string) Explanation {
	st := textstat.Analyze(text)
	vec := ExtractStats(st)
	return explainStats(st, vec)
}

// ExplainWithVector is Explain for a text whose vector is already known.
func ExplainWithVector(text string, vec Vector) Explanation {
	return explainStats(textstat.Analyze(text), vec)
}

func explainStats(st textstat.Stats, vec Vector) Explanation {
	e := Explanation{
		Words:     len(st.Words),
		Unique:    st.Unique,
		Sentences: len(st.Sentences),
		Vector:    vec,
		Axes:      evaluateAxes(st.Words, st.Sentences, vec),

		Adjectives:   Adjectives(),
		EmotiveWords: EmotiveWords(),
	}
	if e.Words > 0 {
		e.LexicalDensity = math.Round(float64(e.Unique)/float64(e.Words)*1000) / 1000
	}

	freq := make(map[string]int)
	var order []string
	for _, w := range st.Words {
		lw := strings.ToLower(w)
		if adjectives.has(lw) {
			e.AdjectiveCount++
		}
		if emotive.has(lw) {
			e.EmotiveCount++
		}
		if freq[lw] == 0 {
			order = append(order, lw)
		}
		freq[lw]++
	}

	sort.SliceStable(order, func(i, j int) bool { return freq[order[i]] > freq[order[j]] })
	if len(order) > topWordLimit {
		order = order[:topWordLimit]
	}
	e.TopWords = make([]WordCount, len(order))
	for i, w := range order {
		e.TopWords[i] = WordCount{Word: w, Count: freq[w]}
	}

	for _, s := range st.Sentences {
		if IsPassive(s) {
			e.PassiveSentences = append(e.PassiveSentences, s)
		}
	}

	var tags []string
	for _, a := range e.Axes {
		tags = append(tags, a.Tags...)
	}
	e.Keywords = NewKeywordSet(tags...)
	return e
}
