package stylecache

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/fyrsmithlabs/stylerank/internal/style"
)

var (
	// LookupsTotal counts cache lookups by backend and result (hit, miss, error).
	LookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stylerank",
			Subsystem: "stylecache",
			Name:      "lookups_total",
			Help:      "Total number of style cache lookups",
		},
		[]string{"backend", "result"},
	)

	// WritesTotal counts cache writes by backend and result (ok, error).
	WritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stylerank",
			Subsystem: "stylecache",
			Name:      "writes_total",
			Help:      "Total number of style cache writes",
		},
		[]string{"backend", "result"},
	)
)

// Metered records lookup and write outcomes of a Store.
type Metered struct {
	next    Store
	backend string
}

var _ Store = (*Metered)(nil)

// WithMetrics wraps a store so its traffic shows up in LookupsTotal and
// WritesTotal under the backend label.
func WithMetrics(next Store, backend string) *Metered {
	return &Metered{next: next, backend: backend}
}

// Get implements Store.
func (m *Metered) Get(ctx context.Context, key string) (style.Profile, bool, error) {
	p, ok, err := m.next.Get(ctx, key)
	result := "miss"
	switch {
	case err != nil:
		result = "error"
	case ok:
		result = "hit"
	}
	LookupsTotal.WithLabelValues(m.backend, result).Inc()
	return p, ok, err
}

// Put implements Store.
func (m *Metered) Put(ctx context.Context, key string, p style.Profile) error {
	err := m.next.Put(ctx, key, p)
	result := "ok"
	if err != nil {
		result = "error"
	}
	WritesTotal.WithLabelValues(m.backend, result).Inc()
	return err
}
