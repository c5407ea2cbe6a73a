// Package ranking runs the per-query ranking pipeline: retrieve candidates,
// attach raw relevance signals, normalize and blend them, and rank. It also
// exports whole query sets as TREC run files.
package ranking

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/stylerank/internal/logging"
	"github.com/fyrsmithlabs/stylerank/internal/retrieval"
	"github.com/fyrsmithlabs/stylerank/internal/scoring"
	"github.com/fyrsmithlabs/stylerank/internal/style"
	"github.com/fyrsmithlabs/stylerank/internal/stylecache"
	"github.com/fyrsmithlabs/stylerank/internal/trec"
)

var tracer = otel.Tracer("stylerank.ranking")

// Query is one information need.
type Query struct {
	ID       string           `json:"id"`
	Text     string           `json:"text"`
	Vector   *style.Vector    `json:"style_vec,omitempty"`
	Keywords style.KeywordSet `json:"style_keywords,omitempty"`
}

// QueryFromTREC converts a parsed query file record.
func QueryFromTREC(q trec.Query) Query {
	return Query{ID: q.ID, Text: q.Text, Vector: q.Vector, Keywords: q.Keywords}
}

// Result is the outcome of ranking one query.
type Result struct {
	RunID   string
	QueryID string
	Mode    Mode
	Weight  float64

	// Style is the query's style profile when the mode uses it.
	Style *style.Profile

	Candidates []scoring.Candidate
}

// Run converts the result for run-file output.
func (r *Result) Run() trec.Run {
	return trec.RunFromCandidates(r.QueryID, r.Candidates)
}

// Service ranks queries against a retriever.
type Service struct {
	retriever retrieval.Retriever
	styles    *stylecache.Resolver
	logger    *logging.Logger
	defaults  atomic.Pointer[Options]
}

// NewService creates a ranking service. styles may be nil, in which case
// query style data is computed on every run; logger may be nil.
func NewService(r retrieval.Retriever, styles *stylecache.Resolver, logger *logging.Logger, defaults Options) (*Service, error) {
	if r == nil {
		return nil, fmt.Errorf("%w: retriever is required", ErrInvalidOptions)
	}
	if styles == nil {
		styles = stylecache.NewResolver(nil, nil)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	defaults = defaults.withDefaults()
	if err := defaults.Validate(); err != nil {
		return nil, err
	}
	s := &Service{retriever: r, styles: styles, logger: logger.Named("ranking")}
	s.defaults.Store(&defaults)
	return s, nil
}

// Defaults returns the service's default options.
func (s *Service) Defaults() Options {
	return *s.defaults.Load()
}

// SetDefaults replaces the default options, e.g. after a configuration
// reload. Runs already in progress keep the options they started with.
func (s *Service) SetDefaults(opts Options) error {
	opts = opts.withDefaults()
	if err := opts.Validate(); err != nil {
		return err
	}
	s.defaults.Store(&opts)
	return nil
}

// Rank ranks one query. Start from Defaults to change single options.
// Retrieval failures keep their kind (errors.Is(err, retrieval.ErrRetrieval)).
func (s *Service) Rank(ctx context.Context, q Query, opts Options) (*Result, error) {
	opts = opts.withDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if logging.RunIDFromContext(ctx) == "" {
		ctx = logging.WithRunID(ctx, uuid.NewString())
	}
	return s.rank(ctx, q, opts)
}

func (s *Service) rank(ctx context.Context, q Query, opts Options) (res *Result, err error) {
	ctx = logging.WithQueryID(ctx, q.ID)
	ctx, span := tracer.Start(ctx, "ranking.Rank")
	defer span.End()
	span.SetAttributes(
		attribute.String("query.id", q.ID),
		attribute.String("mode", string(opts.Mode)),
		attribute.Float64("weight", opts.Weight),
		attribute.Int("size", opts.Size),
	)

	start := time.Now()
	defer func() {
		observeRun(opts.Mode, start, res, err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			s.logger.Warn(ctx, "ranking failed", zap.String("mode", string(opts.Mode)), zap.Error(err))
			return
		}
		span.SetAttributes(attribute.Int("candidates", len(res.Candidates)))
		span.SetStatus(codes.Ok, "ranked")
	}()

	res = &Result{
		RunID:   logging.RunIDFromContext(ctx),
		QueryID: q.ID,
		Mode:    opts.Mode,
		Weight:  opts.Weight,
	}

	if opts.Mode.needsVector() || opts.Mode.needsKeywords() {
		profile := s.styles.Profile(ctx, q.Text, q.Vector, q.Keywords)
		res.Style = &profile
	}

	var set *candidateSet
	switch opts.Mode {
	case ModeText:
		set, err = s.textCandidates(ctx, q.Text, opts, opts.Size)
	case ModeStyle:
		set, err = s.styleCandidates(ctx, res.Style.Vector, opts, opts.Size)
	case ModeHybridVector:
		set, err = s.textCandidates(ctx, q.Text, opts, opts.Size)
		if err == nil {
			err = s.attachVectorSignal(ctx, set, res.Style.Vector)
		}
	case ModeHybridKeyword:
		set, err = s.textCandidates(ctx, q.Text, opts, opts.Size)
		if err == nil {
			s.attachKeywordSignal(ctx, set, res.Style.Keywords)
		}
	case ModeFusion:
		set, err = s.fusionCandidates(ctx, q.Text, res.Style.Vector, opts)
	case ModeBlend:
		set, err = s.textCandidates(ctx, q.Text, opts, opts.Size)
		if err == nil {
			err = s.attachVectorSignal(ctx, set, res.Style.Vector)
		}
		if err == nil {
			s.attachKeywordSignal(ctx, set, res.Style.Keywords)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("ranking query %q: %w", q.ID, err)
	}
	candidates := set.cands

	ranked := opts.scorer().Score(candidates)
	if len(ranked) > opts.Size {
		ranked = ranked[:opts.Size]
	}
	res.Candidates = ranked

	s.logger.Debug(ctx, "query ranked",
		zap.String("mode", string(opts.Mode)),
		zap.Int("candidates", len(candidates)),
		zap.Int("returned", len(ranked)),
		zap.Duration("duration", time.Since(start)),
	)
	return res, nil
}

// candidateSet pairs candidates with the stored fields of their documents.
type candidateSet struct {
	cands []scoring.Candidate
	docs  []retrieval.Source
}

func newCandidateSet(hits []retrieval.Hit, signal scoring.Signal) *candidateSet {
	set := &candidateSet{
		cands: make([]scoring.Candidate, len(hits)),
		docs:  make([]retrieval.Source, len(hits)),
	}
	for i, h := range hits {
		set.cands[i] = candidateFromHit(h)
		set.cands[i].Raw[signal] = h.Score
		set.docs[i] = h.Source
	}
	return set
}

func (s *Service) textCandidates(ctx context.Context, text string, opts Options, size int) (*candidateSet, error) {
	hits, err := s.retriever.TextSearch(ctx, retrieval.TextQuery{Text: text, Fields: opts.Fields, Size: size})
	if err != nil {
		return nil, err
	}
	return newCandidateSet(hits, scoring.Text), nil
}

func (s *Service) styleCandidates(ctx context.Context, vec style.Vector, opts Options, k int) (*candidateSet, error) {
	hits, err := s.retriever.VectorSearch(ctx, retrieval.VectorQuery{Vector: vec, K: k, NumCandidates: opts.NumCandidates})
	if err != nil {
		return nil, err
	}
	return newCandidateSet(hits, scoring.Vector), nil
}

// fusionCandidates merges text hits and style neighbors by document. A
// document found by one search only has 0 for the other signal.
func (s *Service) fusionCandidates(ctx context.Context, text string, vec style.Vector, opts Options) (*candidateSet, error) {
	textSide, err := s.textCandidates(ctx, text, opts, opts.FusionPool)
	if err != nil {
		return nil, err
	}
	styleSide, err := s.styleCandidates(ctx, vec, opts, opts.FusionPool)
	if err != nil {
		return nil, err
	}

	merged := &candidateSet{}
	index := make(map[string]int, len(textSide.cands)+len(styleSide.cands))
	for i, c := range textSide.cands {
		if _, dup := index[c.ExternalID]; dup {
			continue
		}
		index[c.ExternalID] = len(merged.cands)
		merged.cands = append(merged.cands, c)
		merged.docs = append(merged.docs, textSide.docs[i])
	}
	for i, c := range styleSide.cands {
		if j, ok := index[c.ExternalID]; ok {
			merged.cands[j].Raw[scoring.Vector] = c.Raw[scoring.Vector]
			continue
		}
		index[c.ExternalID] = len(merged.cands)
		merged.cands = append(merged.cands, c)
		merged.docs = append(merged.docs, styleSide.docs[i])
	}
	return merged, nil
}

// attachVectorSignal sets the vector signal to the cosine similarity of the
// query vector and each candidate's stored vector, looking documents up by
// id when the hit did not carry one. Documents without a vector score 0.
func (s *Service) attachVectorSignal(ctx context.Context, set *candidateSet, query style.Vector) error {
	for i := range set.cands {
		c, doc := &set.cands[i], &set.docs[i]
		if doc.StyleVec == nil {
			src, err := s.retriever.GetByID(ctx, c.ExternalID)
			switch {
			case errors.Is(err, retrieval.ErrNotFound):
				s.logger.Debug(ctx, "candidate missing from index", zap.String("doc.id", c.ExternalID))
			case err != nil:
				return err
			default:
				doc.StyleVec = src.StyleVec
				if len(doc.StyleKeywords) == 0 {
					doc.StyleKeywords = src.StyleKeywords
				}
			}
		}
		if doc.StyleVec != nil {
			c.Raw[scoring.Vector] = scoring.Cosine(query.Slice(), doc.StyleVec.Slice())
		}
	}
	return nil
}

// attachKeywordSignal sets the keyword signal to the Jaccard overlap of the
// query keywords and each candidate's keywords. Candidates stored without
// keywords get them generated from their body.
func (s *Service) attachKeywordSignal(ctx context.Context, set *candidateSet, query style.KeywordSet) {
	for i := range set.cands {
		c, doc := &set.cands[i], &set.docs[i]
		kw := doc.StyleKeywords
		if len(kw) == 0 && c.Body != "" {
			kw = s.styles.Profile(ctx, c.Body, doc.StyleVec, nil).Keywords
		}
		c.Raw[scoring.Keyword] = scoring.Overlap(kw, query)
	}
}

func candidateFromHit(h retrieval.Hit) scoring.Candidate {
	id := h.Source.ExternalID
	if id == "" {
		id = h.ID
	}
	return scoring.Candidate{
		ID:         h.ID,
		ExternalID: id,
		Title:      h.Source.Title,
		Body:       h.Source.Body,
	}
}
