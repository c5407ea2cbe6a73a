package retrieval

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// Composite routes each operation to its own backend, e.g. full-text search
// to Elasticsearch and vector search to Qdrant. A nil member answers
// ErrUnsupported.
type Composite struct {
	Text   Retriever
	Vector Retriever
	Lookup Retriever
}

var _ Retriever = (*Composite)(nil)

// TextSearch delegates to c.Text.
func (c *Composite) TextSearch(ctx context.Context, q TextQuery) ([]Hit, error) {
	if c.Text == nil {
		return nil, Wrap("composite", "text_search", ErrUnsupported)
	}
	return c.Text.TextSearch(ctx, q)
}

// VectorSearch delegates to c.Vector.
func (c *Composite) VectorSearch(ctx context.Context, q VectorQuery) ([]Hit, error) {
	if c.Vector == nil {
		return nil, Wrap("composite", "vector_search", ErrUnsupported)
	}
	return c.Vector.VectorSearch(ctx, q)
}

// GetByID delegates to c.Lookup, falling back to c.Vector and then c.Text
// when no lookup backend is set.
func (c *Composite) GetByID(ctx context.Context, externalID string) (Source, error) {
	for _, r := range []Retriever{c.Lookup, c.Vector, c.Text} {
		if r != nil {
			return r.GetByID(ctx, externalID)
		}
	}
	return Source{}, Wrap("composite", "get_by_id", ErrUnsupported)
}

// Limited throttles every call through a shared token bucket so batch runs
// stay within the index's capacity.
type Limited struct {
	next    Retriever
	limiter *rate.Limiter
}

var _ Retriever = (*Limited)(nil)

// NewLimited wraps next with a limiter allowing perSecond calls with the
// given burst. A non-positive rate disables throttling and returns next.
func NewLimited(next Retriever, perSecond float64, burst int) Retriever {
	if perSecond <= 0 {
		return next
	}
	if burst < 1 {
		burst = 1
	}
	return &Limited{next: next, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (l *Limited) wait(ctx context.Context) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter error: %w", err)
	}
	return nil
}

// TextSearch waits for a token, then delegates.
func (l *Limited) TextSearch(ctx context.Context, q TextQuery) ([]Hit, error) {
	if err := l.wait(ctx); err != nil {
		return nil, err
	}
	return l.next.TextSearch(ctx, q)
}

// VectorSearch waits for a token, then delegates.
func (l *Limited) VectorSearch(ctx context.Context, q VectorQuery) ([]Hit, error) {
	if err := l.wait(ctx); err != nil {
		return nil, err
	}
	return l.next.VectorSearch(ctx, q)
}

// GetByID waits for a token, then delegates.
func (l *Limited) GetByID(ctx context.Context, externalID string) (Source, error) {
	if err := l.wait(ctx); err != nil {
		return Source{}, err
	}
	return l.next.GetByID(ctx, externalID)
}

// Bounded applies a deadline to every call.
type Bounded struct {
	next    Retriever
	timeout time.Duration
}

var _ Retriever = (*Bounded)(nil)

// WithTimeout bounds each call to next by d. A non-positive d returns next.
func WithTimeout(next Retriever, d time.Duration) Retriever {
	if d <= 0 {
		return next
	}
	return &Bounded{next: next, timeout: d}
}

// TextSearch delegates under the call deadline.
func (b *Bounded) TextSearch(ctx context.Context, q TextQuery) ([]Hit, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	return b.next.TextSearch(ctx, q)
}

// VectorSearch delegates under the call deadline.
func (b *Bounded) VectorSearch(ctx context.Context, q VectorQuery) ([]Hit, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	return b.next.VectorSearch(ctx, q)
}

// GetByID delegates under the call deadline.
func (b *Bounded) GetByID(ctx context.Context, externalID string) (Source, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	return b.next.GetByID(ctx, externalID)
}
