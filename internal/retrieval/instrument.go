package retrieval

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("stylerank.retrieval")

var (
	// CallsTotal counts retrieval calls.
	// Labels: backend, op, result (ok, not_found, error)
	CallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stylerank",
			Subsystem: "retrieval",
			Name:      "calls_total",
			Help:      "Total number of retrieval calls by backend, operation and result",
		},
		[]string{"backend", "op", "result"},
	)

	// CallDuration tracks retrieval latency.
	CallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "stylerank",
			Subsystem: "retrieval",
			Name:      "call_duration_seconds",
			Help:      "Duration of retrieval calls in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"backend", "op"},
	)

	// HitsReturned tracks the size of search responses.
	HitsReturned = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "stylerank",
			Subsystem: "retrieval",
			Name:      "hits_returned",
			Help:      "Number of hits returned per search call",
			Buckets:   []float64{0, 1, 5, 10, 20, 50, 100, 500, 1000},
		},
		[]string{"backend", "op"},
	)
)

// Instrumented records a span, metrics and a debug log line for every call
// and wraps failures in *Error.
type Instrumented struct {
	next    Retriever
	backend string
	logger  *zap.Logger
}

var _ Retriever = (*Instrumented)(nil)

// Instrument wraps next. A nil logger disables logging.
func Instrument(next Retriever, backend string, logger *zap.Logger) *Instrumented {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Instrumented{next: next, backend: backend, logger: logger}
}

// TextSearch delegates to the wrapped retriever.
func (i *Instrumented) TextSearch(ctx context.Context, q TextQuery) ([]Hit, error) {
	ctx, done := i.begin(ctx, "text_search", attribute.Int("size", q.Size))
	hits, err := i.next.TextSearch(ctx, q)
	return hits, done(len(hits), err)
}

// VectorSearch delegates to the wrapped retriever.
func (i *Instrumented) VectorSearch(ctx context.Context, q VectorQuery) ([]Hit, error) {
	ctx, done := i.begin(ctx, "vector_search",
		attribute.Int("k", q.K),
		attribute.Int("num_candidates", q.NumCandidates),
	)
	hits, err := i.next.VectorSearch(ctx, q)
	return hits, done(len(hits), err)
}

// GetByID delegates to the wrapped retriever.
func (i *Instrumented) GetByID(ctx context.Context, externalID string) (Source, error) {
	ctx, done := i.begin(ctx, "get_by_id", attribute.String("external_id", externalID))
	src, err := i.next.GetByID(ctx, externalID)
	return src, done(-1, err)
}

// begin starts a span and returns a completion func that records the
// outcome. hits < 0 marks a non-search call.
func (i *Instrumented) begin(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(hits int, err error) error) {
	ctx, span := tracer.Start(ctx, "retrieval."+op)
	span.SetAttributes(append(attrs, attribute.String("backend", i.backend))...)
	start := time.Now()

	return ctx, func(hits int, err error) error {
		defer span.End()
		elapsed := time.Since(start)
		CallDuration.WithLabelValues(i.backend, op).Observe(elapsed.Seconds())

		switch {
		case err == nil:
			CallsTotal.WithLabelValues(i.backend, op, "ok").Inc()
			if hits >= 0 {
				HitsReturned.WithLabelValues(i.backend, op).Observe(float64(hits))
				span.SetAttributes(attribute.Int("results_count", hits))
			}
			span.SetStatus(codes.Ok, "success")
		case errors.Is(err, ErrNotFound):
			CallsTotal.WithLabelValues(i.backend, op, "not_found").Inc()
			span.SetStatus(codes.Ok, "not found")
		default:
			CallsTotal.WithLabelValues(i.backend, op, "error").Inc()
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}

		i.logger.Debug("retrieval call",
			zap.String("backend", i.backend),
			zap.String("op", op),
			zap.Int("hits", hits),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		return Wrap(i.backend, op, err)
	}
}
