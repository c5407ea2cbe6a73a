package ranking

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/fyrsmithlabs/stylerank/internal/retrieval"
)

var (
	// RunsTotal counts ranked queries.
	// Labels: mode, result (ok, retrieval_error, error)
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stylerank",
			Subsystem: "ranking",
			Name:      "runs_total",
			Help:      "Total number of ranked queries by mode and result",
		},
		[]string{"mode", "result"},
	)

	// RunDuration tracks the latency of ranking one query, retrieval included.
	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "stylerank",
			Subsystem: "ranking",
			Name:      "run_duration_seconds",
			Help:      "Duration of ranking one query in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"mode"},
	)

	// CandidatesRanked tracks the number of documents returned per query.
	CandidatesRanked = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "stylerank",
			Subsystem: "ranking",
			Name:      "candidates_ranked",
			Help:      "Number of ranked documents returned per query",
			Buckets:   []float64{0, 1, 5, 10, 20, 50, 100, 500, 1000},
		},
		[]string{"mode"},
	)

	// ExportsTotal counts batch exports by result (ok, error).
	ExportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stylerank",
			Subsystem: "ranking",
			Name:      "exports_total",
			Help:      "Total number of run-file exports by result",
		},
		[]string{"result"},
	)
)

func observeRun(mode Mode, start time.Time, res *Result, err error) {
	m := string(mode)
	RunDuration.WithLabelValues(m).Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		RunsTotal.WithLabelValues(m, "ok").Inc()
		CandidatesRanked.WithLabelValues(m).Observe(float64(len(res.Candidates)))
	case errors.Is(err, retrieval.ErrRetrieval):
		RunsTotal.WithLabelValues(m, "retrieval_error").Inc()
	default:
		RunsTotal.WithLabelValues(m, "error").Inc()
	}
}
