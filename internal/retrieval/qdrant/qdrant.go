// Package qdrant serves vector search and document lookup from a Qdrant
// collection over gRPC.
//
// Each point carries the four-dimensional style vector as its (cosine)
// vector and the document fields as payload: trec_id, title, body,
// style_vec and style_keywords. Point ids are derived from trec_id so
// re-upserting a document replaces it.
package qdrant

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/fyrsmithlabs/stylerank/internal/retrieval"
	"github.com/fyrsmithlabs/stylerank/internal/style"
)

var tracer = otel.Tracer("stylerank.retrieval.qdrant")

// collectionNamePattern: lowercase letters, numbers, underscores, 1-64 characters.
var collectionNamePattern = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

// pointNamespace seeds the deterministic point ids.
var pointNamespace = uuid.MustParse("6f1c2a3e-9b7d-4e5f-8a1b-2c3d4e5f6a7b")

// Payload keys.
const (
	keyTrecID   = "trec_id"
	keyTitle    = "title"
	keyBody     = "body"
	keyStyleVec = "style_vec"
	keyKeywords = "style_keywords"
)

// Config holds configuration for the Qdrant gRPC client.
type Config struct {
	// Host is the Qdrant server hostname. Default: "localhost"
	Host string

	// Port is the Qdrant gRPC port (not the REST port). Default: 6334
	Port int

	// Collection holds the document points. Default: "documents"
	Collection string

	// APIKey authenticates against Qdrant Cloud.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool

	// MaxRetries for transient failures. Default: 3
	MaxRetries int

	// RetryBackoff is the initial backoff, doubled on each retry. Default: 200ms
	RetryBackoff time.Duration

	// MaxMessageSize is the maximum gRPC message size in bytes. Default: 16MB
	MaxMessageSize int

	// CircuitBreakerThreshold is the number of failures before the circuit
	// opens. Default: 5
	CircuitBreakerThreshold int
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.Collection == "" {
		c.Collection = "documents"
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = 200 * time.Millisecond
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 16 * 1024 * 1024
	}
	if c.CircuitBreakerThreshold == 0 {
		c.CircuitBreakerThreshold = 5
	}
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: host required", retrieval.ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: invalid port: %d", retrieval.ErrInvalidConfig, c.Port)
	}
	if !collectionNamePattern.MatchString(c.Collection) {
		return fmt.Errorf("%w: collection name must match ^[a-z0-9_]{1,64}$, got %q", retrieval.ErrInvalidConfig, c.Collection)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("%w: max retries must not be negative", retrieval.ErrInvalidConfig)
	}
	return nil
}

// IsTransientError reports whether err is worth retrying: unavailable,
// deadline exceeded, aborted and resource exhausted gRPC statuses.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	st, ok := status.FromError(err)
	if !ok {
		return false
	}
	switch st.Code() {
	case grpccodes.Unavailable, grpccodes.DeadlineExceeded, grpccodes.Aborted, grpccodes.ResourceExhausted:
		return true
	default:
		return false
	}
}

// pointsAPI is the subset of *qdrant.Client the store uses.
type pointsAPI interface {
	Query(ctx context.Context, request *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	Scroll(ctx context.Context, request *qdrant.ScrollPoints) ([]*qdrant.RetrievedPoint, error)
	Upsert(ctx context.Context, request *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	CollectionExists(ctx context.Context, collectionName string) (bool, error)
	CreateCollection(ctx context.Context, request *qdrant.CreateCollection) error
	HealthCheck(ctx context.Context) (*qdrant.HealthCheckReply, error)
	Close() error
}

// Store implements retrieval.Retriever for vector search and lookup.
// TextSearch is not supported.
type Store struct {
	client pointsAPI
	config Config
	logger *zap.Logger

	circuitBreaker struct {
		failures int
		lastFail time.Time
		mu       sync.Mutex
	}
}

var _ retrieval.Retriever = (*Store)(nil)

// New connects to Qdrant and performs a health check.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.UseTLS {
		logger.Warn("qdrant gRPC using plaintext (TLS disabled)", zap.String("host", cfg.Host))
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(cfg.MaxMessageSize),
				grpc.MaxCallSendMsgSize(cfg.MaxMessageSize),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to qdrant: %w", err)
	}

	s := newStore(client, cfg, logger)

	hctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.HealthCheck(hctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return s, nil
}

func newStore(client pointsAPI, cfg Config, logger *zap.Logger) *Store {
	return &Store{client: client, config: cfg, logger: logger}
}

// Close closes the gRPC connection.
func (s *Store) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// HealthCheck asks the server for its health status.
func (s *Store) HealthCheck(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "qdrant.HealthCheck")
	defer span.End()

	if _, err := s.client.HealthCheck(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("health check failed: %w", err)
	}
	span.SetStatus(codes.Ok, "healthy")
	return nil
}

// TextSearch is not served by Qdrant.
func (s *Store) TextSearch(context.Context, retrieval.TextQuery) ([]retrieval.Hit, error) {
	return nil, retrieval.ErrUnsupported
}

// VectorSearch queries the collection with the style vector. NumCandidates
// becomes the HNSW ef search parameter.
func (s *Store) VectorSearch(ctx context.Context, q retrieval.VectorQuery) ([]retrieval.Hit, error) {
	q = q.WithDefaults()

	ctx, span := tracer.Start(ctx, "qdrant.VectorSearch")
	defer span.End()
	span.SetAttributes(
		attribute.String("collection", s.config.Collection),
		attribute.Int("k", q.K),
	)

	var points []*qdrant.ScoredPoint
	err := s.retryOperation(ctx, "query", func() error {
		res, err := s.client.Query(ctx, &qdrant.QueryPoints{
			CollectionName: s.config.Collection,
			Query:          qdrant.NewQuery(q.Vector.Float32()...),
			Limit:          qdrant.PtrOf(uint64(q.K)),
			Params:         &qdrant.SearchParams{HnswEf: qdrant.PtrOf(uint64(q.NumCandidates))},
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return err
		}
		points = res
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("searching collection %s: %w", s.config.Collection, err)
	}

	hits := make([]retrieval.Hit, len(points))
	for i, p := range points {
		src := sourceFromPayload(p.GetPayload())
		hits[i] = retrieval.Hit{ID: pointID(p.GetId()), Score: float64(p.GetScore()), Source: src}
	}

	span.SetAttributes(attribute.Int("results_count", len(hits)))
	span.SetStatus(codes.Ok, "success")
	return hits, nil
}

// GetByID scrolls for the point whose trec_id payload matches.
func (s *Store) GetByID(ctx context.Context, externalID string) (retrieval.Source, error) {
	ctx, span := tracer.Start(ctx, "qdrant.GetByID")
	defer span.End()
	span.SetAttributes(attribute.String("trec_id", externalID))

	var points []*qdrant.RetrievedPoint
	err := s.retryOperation(ctx, "scroll", func() error {
		res, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: s.config.Collection,
			Filter:         &qdrant.Filter{Must: []*qdrant.Condition{qdrant.NewMatchKeyword(keyTrecID, externalID)}},
			Limit:          qdrant.PtrOf(uint32(1)),
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return err
		}
		points = res
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return retrieval.Source{}, fmt.Errorf("looking up %s: %w", externalID, err)
	}
	if len(points) == 0 {
		span.SetStatus(codes.Ok, "not found")
		return retrieval.Source{}, fmt.Errorf("%s: %w", externalID, retrieval.ErrNotFound)
	}
	span.SetStatus(codes.Ok, "success")
	return sourceFromPayload(points[0].GetPayload()), nil
}

// EnsureCollection creates the collection with 4-dimensional cosine vectors
// if it does not exist.
func (s *Store) EnsureCollection(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "qdrant.EnsureCollection")
	defer span.End()

	exists, err := s.client.CollectionExists(ctx, s.config.Collection)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("checking collection %s: %w", s.config.Collection, err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.config.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     style.Dimensions,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("creating collection %s: %w", s.config.Collection, err)
	}
	s.logger.Info("created qdrant collection", zap.String("collection", s.config.Collection))
	return nil
}

// Upsert stores documents. Documents without a style vector are skipped
// since they cannot take part in vector search.
func (s *Store) Upsert(ctx context.Context, docs []retrieval.Source) (int, error) {
	ctx, span := tracer.Start(ctx, "qdrant.Upsert")
	defer span.End()

	points := make([]*qdrant.PointStruct, 0, len(docs))
	for _, d := range docs {
		if d.StyleVec == nil {
			continue
		}
		payload, err := payloadFromSource(d)
		if err != nil {
			return 0, fmt.Errorf("building payload for %s: %w", d.ExternalID, err)
		}
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(PointUUID(d.ExternalID)),
			Vectors: qdrant.NewVectors(d.StyleVec.Float32()...),
			Payload: payload,
		})
	}
	if len(points) == 0 {
		return 0, nil
	}

	err := s.retryOperation(ctx, "upsert", func() error {
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: s.config.Collection,
			Points:         points,
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("upserting points to collection %s: %w", s.config.Collection, err)
	}
	span.SetAttributes(attribute.Int("points_upserted", len(points)))
	return len(points), nil
}

// PointUUID derives the point id of a document from its corpus key.
func PointUUID(externalID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(externalID)).String()
}

// retryOperation retries transient failures with exponential backoff.
func (s *Store) retryOperation(ctx context.Context, operationName string, operation func() error) error {
	backoff := s.config.RetryBackoff

	for attempt := 0; attempt <= s.config.MaxRetries; attempt++ {
		if s.isCircuitOpen() {
			return fmt.Errorf("%s: circuit breaker open", operationName)
		}

		err := operation()
		if err == nil {
			s.resetCircuitBreaker()
			return nil
		}
		if !IsTransientError(err) {
			return fmt.Errorf("%s failed (permanent): %w", operationName, err)
		}

		s.recordFailure()
		if attempt == s.config.MaxRetries {
			return fmt.Errorf("%s failed after %d retries: %w", operationName, s.config.MaxRetries, err)
		}

		s.logger.Debug("retrying qdrant operation",
			zap.String("operation", operationName),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s canceled: %w", operationName, ctx.Err())
		case <-time.After(backoff):
			backoff *= 2
		}
	}
	return nil
}

func (s *Store) recordFailure() {
	s.circuitBreaker.mu.Lock()
	defer s.circuitBreaker.mu.Unlock()
	s.circuitBreaker.failures++
	s.circuitBreaker.lastFail = time.Now()
}

func (s *Store) resetCircuitBreaker() {
	s.circuitBreaker.mu.Lock()
	defer s.circuitBreaker.mu.Unlock()
	s.circuitBreaker.failures = 0
}

func (s *Store) isCircuitOpen() bool {
	s.circuitBreaker.mu.Lock()
	defer s.circuitBreaker.mu.Unlock()

	if s.circuitBreaker.failures >= s.config.CircuitBreakerThreshold {
		// half-open after 30 seconds
		if time.Since(s.circuitBreaker.lastFail) > 30*time.Second {
			s.circuitBreaker.failures = 0
			return false
		}
		return true
	}
	return false
}
