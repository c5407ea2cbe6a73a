package scoring

import (
	"gonum.org/v1/gonum/floats"

	"github.com/fyrsmithlabs/stylerank/internal/textstat"
)

// Cosine returns the cosine similarity of a and b. It is 0 when either vector
// is empty or has zero magnitude, or when the lengths differ. Negative results
// are returned as is.
func Cosine(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	na, nb := floats.Norm(a, 2), floats.Norm(b, 2)
	if na == 0 || nb == 0 {
		return 0
	}
	return floats.Dot(a, b) / (na * nb)
}

// Overlap returns the Jaccard index of two keyword sets compared by their
// folded forms (textstat.FoldTag): |a∩b| / |a∪b|, or 0 when both are empty.
// Tags that fold to "" are ignored.
func Overlap(a, b []string) float64 {
	left := foldSet(a)
	right := foldSet(b)

	inter := 0
	for k := range left {
		if _, ok := right[k]; ok {
			inter++
		}
	}
	union := len(left) + len(right) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func foldSet(tags []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		if f := textstat.FoldTag(t); f != "" {
			set[f] = struct{}{}
		}
	}
	return set
}
