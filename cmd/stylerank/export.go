package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/stylerank/internal/ranking"
	"github.com/fyrsmithlabs/stylerank/internal/trec"
)

var (
	exportFlags runFlags
	exportOut   string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write a TREC run file for a topic file",
	Long: `Rank every query of a TREC topic file and write the results as one run
file, ordered by query id. Output names ending in .gz are gzip-compressed.

Examples:
  # Text-only baseline
  stylerank export --query-file topics.xml --mode text --out bm25.run

  # Hybrid run with a custom system name, compressed
  stylerank export -q topics.xml -m hybrid-vector -w 0.3 --system hv30 --out hv30.run.gz`,
	Args: cobra.NoArgs,
	RunE: runExport,
}

func init() {
	exportFlags.register(exportCmd)
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "-", "output file, - for stdout")
}

func runExport(cmd *cobra.Command, _ []string) error {
	qs, err := exportFlags.queries()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	defaults := a.ranking.Defaults()
	defaults.Size = a.cfg.Ranking.ExportSize
	opts, err := exportFlags.options(cmd, defaults)
	if err != nil {
		return err
	}

	summary, err := exportRun(ctx, a.ranking, qs, opts, exportOut, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "run %s: %d queries, %d lines, system %s\n",
		summary.RunID, summary.Queries, summary.Lines, summary.System)
	return nil
}

// exportRun writes the run file to path, or to stdout when path is empty
// or "-". A failed export removes the partial file.
func exportRun(ctx context.Context, svc *ranking.Service, qs []trec.Query, opts ranking.Options, path string, stdout io.Writer) (ranking.ExportSummary, error) {
	queries := make([]ranking.Query, len(qs))
	for i, q := range qs {
		queries[i] = ranking.QueryFromTREC(q)
	}

	var writerOpts []trec.WriterOption
	if strings.HasSuffix(path, ".gz") {
		writerOpts = append(writerOpts, trec.WithGzip(gzip.BestCompression))
	}

	if path == "" || path == "-" {
		return svc.Export(ctx, queries, opts, stdout, writerOpts...)
	}

	f, err := os.Create(path)
	if err != nil {
		return ranking.ExportSummary{}, fmt.Errorf("failed to create %s: %w", path, err)
	}
	summary, err := svc.Export(ctx, queries, opts, f, writerOpts...)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("failed to close %s: %w", path, cerr)
	}
	if err != nil {
		_ = os.Remove(path)
		return ranking.ExportSummary{}, err
	}
	return summary, nil
}
