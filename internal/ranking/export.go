package ranking

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/stylerank/internal/logging"
	"github.com/fyrsmithlabs/stylerank/internal/trec"
)

// ExportSummary describes a finished export.
type ExportSummary struct {
	RunID   string
	System  string
	Queries int
	Lines   int
}

// Export ranks every query and writes one run file to out, runs ordered by
// query id and lines in rank order. Queries are ranked concurrently up to
// opts.Concurrency; the first failure cancels the rest and is returned, and
// nothing is written in that case. Size defaults to DefaultExportSize.
func (s *Service) Export(ctx context.Context, queries []Query, opts Options, out io.Writer, writerOpts ...trec.WriterOption) (summary ExportSummary, err error) {
	if opts.Size <= 0 {
		opts.Size = DefaultExportSize
	}
	opts = opts.withDefaults()
	if err := opts.Validate(); err != nil {
		return ExportSummary{}, err
	}

	runID := uuid.NewString()
	ctx = logging.WithRunID(ctx, runID)
	ctx, span := tracer.Start(ctx, "ranking.Export")
	defer span.End()

	start := time.Now()
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
			span.RecordError(err)
		}
		ExportsTotal.WithLabelValues(result).Inc()
	}()

	results := make([]*Result, len(queries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)
	for i, q := range queries {
		g.Go(func() error {
			res, err := s.rank(gctx, q, opts)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return ExportSummary{}, err
	}

	runs := make([]trec.Run, len(results))
	for i, res := range results {
		runs[i] = res.Run()
	}
	SortRuns(runs)

	w, err := trec.NewWriter(out, opts.exporter(), writerOpts...)
	if err != nil {
		return ExportSummary{}, err
	}
	for _, run := range runs {
		if err := w.WriteRun(run); err != nil {
			_ = w.Close()
			return ExportSummary{}, fmt.Errorf("writing run for query %q: %w", run.QueryID, err)
		}
	}
	if err := w.Close(); err != nil {
		return ExportSummary{}, fmt.Errorf("closing run file: %w", err)
	}

	summary = ExportSummary{RunID: runID, System: opts.System, Queries: len(runs), Lines: w.Lines()}
	s.logger.Info(ctx, "run file exported",
		zap.String("mode", string(opts.Mode)),
		zap.String("system", opts.System),
		zap.Int("queries", summary.Queries),
		zap.Int("lines", summary.Lines),
		zap.Duration("duration", time.Since(start)),
	)
	return summary, nil
}

// SortRuns orders runs by query id. Ids that are both integers compare
// numerically, so "2" sorts before "10".
func SortRuns(runs []trec.Run) {
	sort.SliceStable(runs, func(i, j int) bool {
		return lessQueryID(runs[i].QueryID, runs[j].QueryID)
	})
}

func lessQueryID(a, b string) bool {
	na, errA := strconv.ParseInt(a, 10, 64)
	nb, errB := strconv.ParseInt(b, 10, 64)
	if errA == nil && errB == nil {
		return na < nb
	}
	return a < b
}
