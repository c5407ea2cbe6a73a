// Package textstat splits raw text into words and sentences and folds
// keyword tags to their canonical form.
//
// Both operations are purely character-class based: a word is a maximal run
// of ASCII letters, and a sentence ends after '.', '!' or '?' when followed by
// whitespace. There is no locale awareness and no failure mode; empty input
// yields empty slices.
package textstat

// Tokenize returns the maximal runs of ASCII letters in text, case preserved.
func Tokenize(text string) []string {
	var words []string
	start := -1
	for i := 0; i < len(text); i++ {
		if isLetter(text[i]) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			words = append(words, text[start:i])
			start = -1
		}
	}
	if start >= 0 {
		words = append(words, text[start:])
	}
	return words
}

// SplitSentences splits text immediately after a terminal punctuation mark
// that is followed by whitespace. The whitespace run is dropped. Trailing
// whitespace never produces an empty sentence.
func SplitSentences(text string) []string {
	var sentences []string
	start := 0
	for i := 0; i < len(text); {
		if isTerminal(text[i]) && i+1 < len(text) && isSpace(text[i+1]) {
			sentences = append(sentences, text[start:i+1])
			j := i + 1
			for j < len(text) && isSpace(text[j]) {
				j++
			}
			start, i = j, j
			continue
		}
		i++
	}
	if start < len(text) {
		sentences = append(sentences, text[start:])
	}
	return sentences
}

// Stats holds the counts most style computations start from.
type Stats struct {
	Words     []string
	Sentences []string
	Unique    int
}

// Analyze tokenizes text once and returns words, sentences and the number of
// distinct words (case-sensitive, matching the type-token ratio definition).
func Analyze(text string) Stats {
	words := Tokenize(text)
	return Stats{
		Words:     words,
		Sentences: SplitSentences(text),
		Unique:    CountUnique(words),
	}
}

// CountUnique returns the number of distinct entries in words.
func CountUnique(words []string) int {
	seen := make(map[string]struct{}, len(words))
	for _, w := range words {
		seen[w] = struct{}{}
	}
	return len(seen)
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isTerminal(c byte) bool {
	return c == '.' || c == '!' || c == '?'
}

// isSpace matches the ASCII whitespace class: space, \t, \n, \v, \f, \r.
func isSpace(c byte) bool {
	return c == ' ' || (c >= '\t' && c <= '\r')
}
