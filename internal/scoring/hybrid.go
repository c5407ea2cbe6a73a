package scoring

import (
	"fmt"
	"sort"
)

// Signal identifies one raw relevance signal.
type Signal int

const (
	// Text is the full-text relevance score from the index.
	Text Signal = iota
	// Vector is the cosine similarity of style vectors.
	Vector
	// Keyword is the Jaccard overlap of style keyword sets.
	Keyword

	// NumSignals is the number of known signals.
	NumSignals
)

// String returns the signal name used in logs and API output.
func (s Signal) String() string {
	switch s {
	case Text:
		return "text"
	case Vector:
		return "vector"
	case Keyword:
		return "keyword"
	default:
		return fmt.Sprintf("Signal(%d)", int(s))
	}
}

// Scores holds one value per signal. A signal that was not observed is 0.
type Scores [NumSignals]float64

// Candidate is one retrieved document within a single ranking run.
type Candidate struct {
	ID         string
	ExternalID string
	Title      string
	Body       string

	Raw  Scores
	Norm Scores

	Hybrid float64

	// Ranks holds the 1-based rank of each scored signal; 0 for signals
	// that were not part of the scorer.
	Ranks      [NumSignals]int
	HybridRank int
}

// Term is one weighted, normalized signal of a Scorer.
type Term struct {
	Signal Signal
	Mode   Mode
	Weight float64
}

// Weighted pairs a normalized score with its weight.
type Weighted struct {
	Score  float64
	Weight float64
}

// Combine returns the weighted sum of the pairs. Weights need not sum to 1.
func Combine(pairs ...Weighted) float64 {
	var sum float64
	for _, p := range pairs {
		sum += p.Weight * p.Score
	}
	return sum
}

// Scorer normalizes, blends and ranks a candidate set.
type Scorer struct {
	Terms []Term
}

// Single scores by one signal alone.
func Single(signal Signal, mode Mode) Scorer {
	return Scorer{Terms: []Term{{Signal: signal, Mode: mode, Weight: 1}}}
}

// Hybrid blends the text signal with a secondary signal as
// (1-lambda)*text + lambda*secondary. lambda is not validated.
func Hybrid(secondary Signal, lambda float64, mode Mode) Scorer {
	return Scorer{Terms: []Term{
		{Signal: Text, Mode: mode, Weight: 1 - lambda},
		{Signal: secondary, Mode: mode, Weight: lambda},
	}}
}

// Score returns a ranked copy of candidates. Each term's signal is normalized
// across the whole set, the hybrid score is the weighted sum of the
// normalized signals, and per-signal and hybrid ranks are attached. Ties keep
// the input order.
func (s Scorer) Score(candidates []Candidate) []Candidate {
	out := make([]Candidate, len(candidates))
	copy(out, candidates)
	if len(out) == 0 {
		return out
	}

	raw := make([]float64, len(out))
	for _, term := range s.Terms {
		for i := range out {
			raw[i] = out[i].Raw[term.Signal]
		}
		for i, v := range Normalize(raw, term.Mode) {
			out[i].Norm[term.Signal] = v
		}
	}

	pairs := make([]Weighted, len(s.Terms))
	for i := range out {
		for j, term := range s.Terms {
			pairs[j] = Weighted{Score: out[i].Norm[term.Signal], Weight: term.Weight}
		}
		out[i].Hybrid = Combine(pairs...)
	}

	for _, term := range s.Terms {
		sig := term.Signal
		for pos, idx := range order(out, func(c *Candidate) float64 { return c.Norm[sig] }) {
			out[idx].Ranks[sig] = pos + 1
		}
	}

	Rank(out)
	return out
}

// Rank stably sorts candidates by descending hybrid score in place and
// assigns HybridRank from 1.
func Rank(candidates []Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Hybrid > candidates[j].Hybrid
	})
	for i := range candidates {
		candidates[i].HybridRank = i + 1
	}
}

// order returns candidate indexes sorted by descending key, stable.
func order(candidates []Candidate, key func(*Candidate) float64) []int {
	idx := make([]int, len(candidates))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return key(&candidates[idx[a]]) > key(&candidates[idx[b]])
	})
	return idx
}
