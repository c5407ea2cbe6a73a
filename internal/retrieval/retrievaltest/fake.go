// Package retrievaltest provides an in-memory Retriever for tests.
package retrievaltest

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/fyrsmithlabs/stylerank/internal/retrieval"
	"github.com/fyrsmithlabs/stylerank/internal/scoring"
	"github.com/fyrsmithlabs/stylerank/internal/textstat"
)

// Fake is an in-memory index. Text scores count query-term occurrences per
// field multiplied by the field boost; vector scores are cosine similarities.
// Set the Err fields to make an operation fail.
type Fake struct {
	mu   sync.Mutex
	docs []retrieval.Source

	TextErr   error
	VectorErr error
	LookupErr error

	TextCalls   int
	VectorCalls int
	LookupCalls int
}

var _ retrieval.Retriever = (*Fake)(nil)

// New returns a Fake holding docs in index order.
func New(docs ...retrieval.Source) *Fake {
	return &Fake{docs: docs}
}

// Add appends a document.
func (f *Fake) Add(doc retrieval.Source) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs = append(f.docs, doc)
}

// TextSearch implements retrieval.Retriever.
func (f *Fake) TextSearch(_ context.Context, q retrieval.TextQuery) ([]retrieval.Hit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.TextCalls++
	if f.TextErr != nil {
		return nil, f.TextErr
	}
	q = q.WithDefaults()

	terms := lowerAll(textstat.Tokenize(q.Text))
	var hits []retrieval.Hit
	for _, d := range f.docs {
		var score float64
		for _, fw := range q.Fields {
			score += fw.Boost * float64(countTerms(field(d, fw.Field), terms))
		}
		if score > 0 {
			hits = append(hits, retrieval.Hit{ID: d.ExternalID, Score: score, Source: d})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	return truncate(hits, q.Size), nil
}

// VectorSearch implements retrieval.Retriever.
func (f *Fake) VectorSearch(_ context.Context, q retrieval.VectorQuery) ([]retrieval.Hit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.VectorCalls++
	if f.VectorErr != nil {
		return nil, f.VectorErr
	}
	q = q.WithDefaults()

	var hits []retrieval.Hit
	for _, d := range f.docs {
		if d.StyleVec == nil {
			continue
		}
		score := scoring.Cosine(q.Vector.Slice(), d.StyleVec.Slice())
		hits = append(hits, retrieval.Hit{ID: d.ExternalID, Score: score, Source: d})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	return truncate(hits, q.K), nil
}

// GetByID implements retrieval.Retriever.
func (f *Fake) GetByID(_ context.Context, externalID string) (retrieval.Source, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.LookupCalls++
	if f.LookupErr != nil {
		return retrieval.Source{}, f.LookupErr
	}
	for _, d := range f.docs {
		if d.ExternalID == externalID {
			return d, nil
		}
	}
	return retrieval.Source{}, retrieval.ErrNotFound
}

func field(d retrieval.Source, name string) string {
	switch name {
	case "title":
		return d.Title
	case "body":
		return d.Body
	default:
		return ""
	}
}

func countTerms(text string, terms []string) int {
	n := 0
	for _, w := range textstat.Tokenize(text) {
		lw := strings.ToLower(w)
		for _, t := range terms {
			if lw == t {
				n++
			}
		}
	}
	return n
}

func lowerAll(words []string) []string {
	out := make([]string, len(words))
	for i, w := range words {
		out[i] = strings.ToLower(w)
	}
	return out
}

func truncate(hits []retrieval.Hit, n int) []retrieval.Hit {
	if n > 0 && len(hits) > n {
		return hits[:n]
	}
	return hits
}
