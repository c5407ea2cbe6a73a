package style

import "regexp"

var (
	pronounWords = []string{
		"i", "you", "he", "she", "it", "we", "they", "my", "your", "his", "her",
		"its", "our", "their", "me", "him", "them",
	}

	adjectiveWords = []string{
		"beautiful", "large", "small", "incredible", "significant", "various",
		"major", "minor", "entire", "quick", "slow", "important", "strong", "weak",
		"remarkable", "notable", "huge", "tiny", "practical", "theoretical",
	}

	emotiveWords = []string{
		"love", "hate", "anger", "joy", "happy", "sad", "excited", "terrified",
		"amazing", "horrible", "wonderful",
	}
)

var (
	pronouns   = newLexicon(pronounWords)
	adjectives = newLexicon(adjectiveWords)
	emotive    = newLexicon(emotiveWords)
)

// passivePattern matches an auxiliary followed by a word ending in -ed.
var passivePattern = regexp.MustCompile(`(?i)\b(is|was|were|be|been|being)\s+\w+ed\b`)

type lexicon map[string]struct{}

func newLexicon(words []string) lexicon {
	l := make(lexicon, len(words))
	for _, w := range words {
		l[w] = struct{}{}
	}
	return l
}

func (l lexicon) has(lowerWord string) bool {
	_, ok := l[lowerWord]
	return ok
}

// Adjectives returns a copy of the adjective lexicon.
func Adjectives() []string { return append([]string(nil), adjectiveWords...) }

// EmotiveWords returns a copy of the emotive lexicon.
func EmotiveWords() []string { return append([]string(nil), emotiveWords...) }

// IsPassive reports whether sentence contains a passive-voice construction.
func IsPassive(sentence string) bool {
	return passivePattern.MatchString(sentence)
}
