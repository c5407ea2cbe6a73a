// Package chromem serves vector search and lookup from an embedded
// chromem-go database, optionally persisted to disk.
package chromem

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/stylerank/internal/retrieval"
	"github.com/fyrsmithlabs/stylerank/internal/style"
)

var tracer = otel.Tracer("stylerank.retrieval.chromem")

// Metadata keys. chromem stores metadata as strings only.
const (
	metaTrecID   = "trec_id"
	metaTitle    = "title"
	metaStyleVec = "style_vec"
	metaKeywords = "style_keywords"
	metaHasVec   = "has_vec"
)

// placeholder stands in for vectors chromem cannot normalize (zero
// magnitude). Such documents are excluded from vector search by has_vec.
var placeholder = []float32{1, 0, 0, 0}

// Config holds configuration for the embedded store.
type Config struct {
	// Path is the directory for persistent storage. Empty keeps the
	// database in memory.
	Path string

	// Compress enables gzip compression of persisted documents.
	Compress bool

	// Collection holds the documents. Default: "documents"
	Collection string
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Collection == "" {
		c.Collection = "documents"
	}
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Collection) == "" {
		return fmt.Errorf("%w: collection name required", retrieval.ErrInvalidConfig)
	}
	return nil
}

// Store implements retrieval.Retriever for vector search and lookup.
// TextSearch is not supported.
type Store struct {
	db         *chromem.DB
	collection *chromem.Collection
	config     Config
	logger     *zap.Logger
}

var _ retrieval.Retriever = (*Store)(nil)

// New opens (or creates) the store.
func New(cfg Config, logger *zap.Logger) (*Store, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var db *chromem.DB
	if cfg.Path == "" {
		db = chromem.NewDB()
	} else {
		path, err := expandPath(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("expanding path: %w", err)
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return nil, fmt.Errorf("creating directory %s: %w", path, err)
		}
		db, err = chromem.NewPersistentDB(path, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("creating chromem DB: %w", err)
		}
		cfg.Path = path
	}

	col, err := db.GetOrCreateCollection(cfg.Collection, nil, noEmbedding)
	if err != nil {
		return nil, fmt.Errorf("opening collection %s: %w", cfg.Collection, err)
	}

	logger.Info("chromem store initialized",
		zap.String("path", cfg.Path),
		zap.Bool("compress", cfg.Compress),
		zap.String("collection", cfg.Collection),
		zap.Int("documents", col.Count()),
	)
	return &Store{db: db, collection: col, config: cfg, logger: logger}, nil
}

// noEmbedding rejects text embedding; every document and query carries
// its style vector.
func noEmbedding(context.Context, string) ([]float32, error) {
	return nil, fmt.Errorf("%w: text embedding", retrieval.ErrUnsupported)
}

func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}
	return filepath.Clean(path), nil
}

// Count returns the number of stored documents.
func (s *Store) Count() int {
	return s.collection.Count()
}

// TextSearch is not served by chromem.
func (s *Store) TextSearch(context.Context, retrieval.TextQuery) ([]retrieval.Hit, error) {
	return nil, retrieval.ErrUnsupported
}

// VectorSearch returns the K documents most cosine-similar to the query
// vector. A zero query vector matches nothing.
func (s *Store) VectorSearch(ctx context.Context, q retrieval.VectorQuery) ([]retrieval.Hit, error) {
	q = q.WithDefaults()

	ctx, span := tracer.Start(ctx, "chromem.VectorSearch")
	defer span.End()
	span.SetAttributes(attribute.Int("k", q.K))

	if isZero(q.Vector) {
		return nil, nil
	}
	n := min(q.K, s.collection.Count())
	if n == 0 {
		return nil, nil
	}

	results, err := s.collection.QueryEmbedding(ctx, q.Vector.Float32(), n, map[string]string{metaHasVec: "true"}, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying collection %s: %w", s.config.Collection, err)
	}

	hits := make([]retrieval.Hit, len(results))
	for i, r := range results {
		hits[i] = retrieval.Hit{
			ID:     r.ID,
			Score:  float64(r.Similarity),
			Source: sourceFromDocument(r.ID, r.Metadata, r.Content),
		}
	}
	span.SetAttributes(attribute.Int("results_count", len(hits)))
	span.SetStatus(codes.Ok, "success")
	return hits, nil
}

// GetByID returns the document stored under externalID.
func (s *Store) GetByID(ctx context.Context, externalID string) (retrieval.Source, error) {
	doc, err := s.collection.GetByID(ctx, externalID)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			return retrieval.Source{}, fmt.Errorf("%s: %w", externalID, retrieval.ErrNotFound)
		}
		return retrieval.Source{}, fmt.Errorf("looking up %s: %w", externalID, err)
	}
	return sourceFromDocument(doc.ID, doc.Metadata, doc.Content), nil
}

// Upsert stores documents keyed by their corpus key, replacing existing
// entries.
func (s *Store) Upsert(ctx context.Context, docs []retrieval.Source) (int, error) {
	ctx, span := tracer.Start(ctx, "chromem.Upsert")
	defer span.End()

	for i, d := range docs {
		if d.ExternalID == "" {
			return i, fmt.Errorf("document %d: empty trec_id", i)
		}
		if err := s.collection.AddDocument(ctx, toDocument(d)); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return i, fmt.Errorf("adding document %s: %w", d.ExternalID, err)
		}
	}
	span.SetAttributes(attribute.Int("documents_upserted", len(docs)))
	return len(docs), nil
}

func toDocument(d retrieval.Source) chromem.Document {
	meta := map[string]string{
		metaTrecID: d.ExternalID,
		metaTitle:  d.Title,
		metaHasVec: "false",
	}
	embedding := append([]float32(nil), placeholder...)
	if d.StyleVec != nil {
		meta[metaStyleVec] = d.StyleVec.String()
		if !isZero(*d.StyleVec) {
			meta[metaHasVec] = "true"
			embedding = d.StyleVec.Float32()
		}
	}
	if len(d.StyleKeywords) > 0 {
		meta[metaKeywords] = strings.Join(d.StyleKeywords, ",")
	}
	return chromem.Document{
		ID:        d.ExternalID,
		Metadata:  meta,
		Embedding: embedding,
		Content:   d.Body,
	}
}

func sourceFromDocument(id string, meta map[string]string, content string) retrieval.Source {
	src := retrieval.Source{
		ExternalID: meta[metaTrecID],
		Title:      meta[metaTitle],
		Body:       content,
	}
	if src.ExternalID == "" {
		src.ExternalID = id
	}
	if v, ok := parseVector(meta[metaStyleVec]); ok {
		src.StyleVec = &v
	}
	if kw := meta[metaKeywords]; kw != "" {
		src.StyleKeywords = style.NewKeywordSet(strings.Split(kw, ",")...)
	}
	return src
}

func parseVector(s string) (style.Vector, bool) {
	if s == "" {
		return style.Vector{}, false
	}
	parts := strings.Split(s, ",")
	vals := make([]float64, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return style.Vector{}, false
		}
		vals[i] = f
	}
	return style.VectorFromSlice(vals)
}

func isZero(v style.Vector) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
