package style

import (
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/stylerank/internal/textstat"
)

// Dimensions is the fixed length of a style vector.
const Dimensions = 4

// Flesch Reading Ease coefficients.
const (
	fleschBase = 206.835
	fleschASL  = 1.015
	fleschASW  = 84.6
)

// Vector is a style vector: [ttr, avg_sentence_len, pronoun_ratio, readability].
type Vector [Dimensions]float64

// TTR returns the type-token ratio.
func (v Vector) TTR() float64 { return v[0] }

// AvgSentenceLen returns the mean token count per sentence.
func (v Vector) AvgSentenceLen() float64 { return v[1] }

// PronounRatio returns the fraction of tokens that are personal pronouns.
func (v Vector) PronounRatio() float64 { return v[2] }

// Readability returns the Flesch Reading Ease score.
func (v Vector) Readability() float64 { return v[3] }

// Slice returns the vector as a freshly allocated slice.
func (v Vector) Slice() []float64 {
	return []float64{v[0], v[1], v[2], v[3]}
}

// Float32 returns the vector as float32 components, the form vector indexes store.
func (v Vector) Float32() []float32 {
	return []float32{float32(v[0]), float32(v[1]), float32(v[2]), float32(v[3])}
}

// String formats the vector as comma-separated components.
func (v Vector) String() string {
	parts := make([]string, Dimensions)
	for i, x := range v {
		parts[i] = fmt.Sprintf("%g", x)
	}
	return strings.Join(parts, ",")
}

// VectorFromSlice converts stored components into a Vector.
// It reports false unless s has exactly Dimensions elements.
func VectorFromSlice(s []float64) (Vector, bool) {
	var v Vector
	if len(s) != Dimensions {
		return v, false
	}
	copy(v[:], s)
	return v, true
}

// Extract computes the style vector of text.
func Extract(text string) Vector {
	return ExtractStats(textstat.Analyze(text))
}

// ExtractStats computes the style vector from already tokenized text.
func ExtractStats(st textstat.Stats) Vector {
	total := len(st.Words)
	if total == 0 {
		return Vector{}
	}

	ttr := float64(st.Unique) / float64(total)

	var avgLen float64
	if len(st.Sentences) > 0 {
		sum := 0
		for _, s := range st.Sentences {
			sum += len(textstat.Tokenize(s))
		}
		avgLen = float64(sum) / float64(len(st.Sentences))
	}

	pronounCount := 0
	for _, w := range st.Words {
		if pronouns.has(strings.ToLower(w)) {
			pronounCount++
		}
	}

	return Vector{
		ttr,
		avgLen,
		float64(pronounCount) / float64(total),
		fleschReadingEase(st.Words, len(st.Sentences)),
	}
}

// fleschReadingEase floors both word and sentence counts at one.
func fleschReadingEase(words []string, sentences int) float64 {
	wordCount := max(len(words), 1)
	sentenceCount := max(sentences, 1)

	syllables := 0
	for _, w := range words {
		syllables += CountSyllables(w)
	}

	asl := float64(wordCount) / float64(sentenceCount)
	asw := float64(syllables) / float64(wordCount)
	return fleschBase - fleschASL*asl - fleschASW*asw
}

// CountSyllables estimates the syllables in word: after lowercasing and
// dropping one trailing 'e' from words longer than two letters, it counts
// maximal runs of vowels (a, e, i, o, u, y). The result is at least 1.
func CountSyllables(word string) int {
	w := strings.ToLower(word)
	if len(w) > 2 && strings.HasSuffix(w, "e") {
		w = w[:len(w)-1]
	}

	runs := 0
	inRun := false
	for i := 0; i < len(w); i++ {
		if isVowel(w[i]) {
			if !inRun {
				runs++
			}
			inRun = true
			continue
		}
		inRun = false
	}
	return max(runs, 1)
}

func isVowel(c byte) bool {
	switch c {
	case 'a', 'e', 'i', 'o', 'u', 'y':
		return true
	}
	return false
}
