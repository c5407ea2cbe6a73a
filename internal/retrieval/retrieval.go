// Package retrieval defines the boundary to the external document index.
//
// The ranking pipeline consumes three operations: full-text search with
// per-field boosts, nearest-neighbor search over stored style vectors, and
// lookup of a single document by its corpus key. Backends implement any
// subset of them and answer ErrUnsupported for the rest; Composite routes
// each operation to the backend that serves it.
//
// Implementations:
//   - elastic: Elasticsearch over its REST API (all three operations)
//   - qdrant: Qdrant over gRPC (vector search and lookup)
//   - chromem: embedded chromem-go collection (vector search and lookup)
//
// Failures of a backend are reported as *Error, which matches ErrRetrieval
// with errors.Is. The ranking core surfaces them unchanged.
package retrieval

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/fyrsmithlabs/stylerank/internal/style"
)

// Default request sizes.
const (
	DefaultSize          = 20
	DefaultNumCandidates = 10000
)

// Source holds the stored fields of a document.
type Source struct {
	ExternalID    string           `json:"trec_id"`
	Title         string           `json:"title"`
	Body          string           `json:"body"`
	StyleVec      *style.Vector    `json:"style_vec,omitempty"`
	StyleKeywords style.KeywordSet `json:"style_keywords,omitempty"`
}

// Hit is one scored search result. Score is the backend's raw relevance
// score and is only comparable within a single response.
type Hit struct {
	ID     string
	Score  float64
	Source Source
}

// FieldWeight boosts one searchable field.
type FieldWeight struct {
	Field string
	Boost float64
}

// DefaultFields boosts the title over the body.
var DefaultFields = []FieldWeight{{Field: "title", Boost: 2}, {Field: "body", Boost: 1}}

// TextQuery is a full-text search request.
type TextQuery struct {
	Text   string
	Fields []FieldWeight
	Size   int
}

// VectorQuery is a nearest-neighbor request over style vectors.
type VectorQuery struct {
	Vector        style.Vector
	K             int
	NumCandidates int
}

// Retriever is the document index as seen by the ranking pipeline.
type Retriever interface {
	// TextSearch returns documents matching q.Text ordered by text score.
	TextSearch(ctx context.Context, q TextQuery) ([]Hit, error)

	// VectorSearch returns up to q.K documents ordered by cosine similarity
	// between q.Vector and their stored style vectors.
	VectorSearch(ctx context.Context, q VectorQuery) ([]Hit, error)

	// GetByID returns the stored fields of the document with the given
	// corpus key. It returns an error matching ErrNotFound if there is none.
	GetByID(ctx context.Context, externalID string) (Source, error)
}

// WithDefaults fills unset request fields.
func (q TextQuery) WithDefaults() TextQuery {
	if len(q.Fields) == 0 {
		q.Fields = DefaultFields
	}
	if q.Size <= 0 {
		q.Size = DefaultSize
	}
	return q
}

// WithDefaults fills unset request fields. NumCandidates is never below K.
func (q VectorQuery) WithDefaults() VectorQuery {
	if q.K <= 0 {
		q.K = DefaultSize
	}
	if q.NumCandidates <= 0 {
		q.NumCandidates = DefaultNumCandidates
	}
	if q.NumCandidates < q.K {
		q.NumCandidates = q.K
	}
	return q
}

// ParseFieldWeight parses field weights such as "title^2". A missing boost is 1.
func ParseFieldWeight(raw string) (FieldWeight, error) {
	name, boost, found := strings.Cut(strings.TrimSpace(raw), "^")
	if name == "" {
		return FieldWeight{}, fmt.Errorf("%w: empty field in %q", ErrInvalidConfig, raw)
	}
	fw := FieldWeight{Field: name, Boost: 1}
	if found {
		b, err := strconv.ParseFloat(boost, 64)
		if err != nil || b <= 0 {
			return FieldWeight{}, fmt.Errorf("%w: invalid boost in %q", ErrInvalidConfig, raw)
		}
		fw.Boost = b
	}
	return fw, nil
}
