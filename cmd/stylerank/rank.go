package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/stylerank/internal/ranking"
	"github.com/fyrsmithlabs/stylerank/internal/scoring"
	"github.com/fyrsmithlabs/stylerank/internal/trec"
)

// runFlags are the ranking flags shared by rank and export.
type runFlags struct {
	queryFile string
	mode      string
	weight    float64
	size      int
	system    string
}

func (f *runFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.queryFile, "query-file", "q", "", "TREC topic file")
	cmd.Flags().StringVarP(&f.mode, "mode", "m", "", "ranking mode: "+modeNames())
	cmd.Flags().Float64VarP(&f.weight, "weight", "w", ranking.DefaultWeight, "share of the style signal, 0 to 1")
	cmd.Flags().IntVarP(&f.size, "size", "n", 0, "documents per query (0 uses the configured default)")
	cmd.Flags().StringVar(&f.system, "system", "", "run name in the last column (defaults per mode)")
}

// options applies the flags that were set on top of the service defaults.
func (f *runFlags) options(cmd *cobra.Command, defaults ranking.Options) (ranking.Options, error) {
	opts := defaults
	if f.mode != "" {
		m, err := ranking.ParseMode(f.mode)
		if err != nil {
			return ranking.Options{}, err
		}
		if m != opts.Mode {
			opts.Mode = m
			opts.System = ""
			opts.Precision = 0
		}
	}
	if cmd.Flags().Changed("weight") {
		opts.Weight = f.weight
	}
	if f.size < 0 {
		return ranking.Options{}, fmt.Errorf("%w: negative size", ranking.ErrInvalidOptions)
	}
	if f.size > 0 {
		opts.Size = f.size
	}
	if f.system != "" {
		opts.System = f.system
	}
	return opts, opts.Validate()
}

func (f *runFlags) queries() ([]trec.Query, error) {
	if f.queryFile == "" {
		return nil, fmt.Errorf("--query-file is required")
	}
	file, err := os.Open(f.queryFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open query file: %w", err)
	}
	defer file.Close()

	qs, err := trec.ParseQueries(file)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", f.queryFile, err)
	}
	if len(qs) == 0 {
		return nil, fmt.Errorf("no queries in %s", f.queryFile)
	}
	return qs, nil
}

func modeNames() string {
	names := make([]string, len(ranking.Modes))
	for i, m := range ranking.Modes {
		names[i] = string(m)
	}
	return strings.Join(names, ", ")
}

var (
	rankFlags runFlags
	rankIDs   []string
)

var rankCmd = &cobra.Command{
	Use:   "rank",
	Short: "Rank queries from a topic file and print the results",
	Long: `Rank one or more queries from a TREC topic file and print each ranking as
a table with the per-signal scores.

Examples:
  # Rank topic 301 with the configured defaults
  stylerank rank --query-file topics.xml --id 301

  # Compare style-only ranking for two topics
  stylerank rank -q topics.xml --id 301 --id 302 --mode style -n 10`,
	Args: cobra.NoArgs,
	RunE: runRank,
}

func init() {
	rankFlags.register(rankCmd)
	rankCmd.Flags().StringSliceVar(&rankIDs, "id", nil, "query ids to rank (default all)")
}

func runRank(cmd *cobra.Command, _ []string) error {
	qs, err := rankFlags.queries()
	if err != nil {
		return err
	}
	qs, err = selectQueries(qs, rankIDs)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	opts, err := rankFlags.options(cmd, a.ranking.Defaults())
	if err != nil {
		return err
	}
	return rankQueries(ctx, a.ranking, qs, opts, cmd.OutOrStdout())
}

// selectQueries keeps the queries named in ids, in the order given.
func selectQueries(qs []trec.Query, ids []string) ([]trec.Query, error) {
	if len(ids) == 0 {
		return qs, nil
	}
	byID := make(map[string]trec.Query, len(qs))
	for _, q := range qs {
		byID[q.ID] = q
	}
	out := make([]trec.Query, 0, len(ids))
	for _, id := range ids {
		q, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("query %q not found", id)
		}
		out = append(out, q)
	}
	return out, nil
}

func rankQueries(ctx context.Context, svc *ranking.Service, qs []trec.Query, opts ranking.Options, w io.Writer) error {
	for i, q := range qs {
		res, err := svc.Rank(ctx, ranking.QueryFromTREC(q), opts)
		if err != nil {
			return fmt.Errorf("query %s: %w", q.ID, err)
		}
		if i > 0 {
			fmt.Fprintln(w)
		}
		if err := printResult(w, q, res); err != nil {
			return err
		}
	}
	return nil
}

func printResult(w io.Writer, q trec.Query, res *ranking.Result) error {
	fmt.Fprintf(w, "query %s (%s, weight %.2f): %s\n", res.QueryID, res.Mode, res.Weight, truncate(q.Title, 60))
	if res.Style != nil {
		fmt.Fprintf(w, "style %s [%s]\n", res.Style.Vector, strings.Join(res.Style.Keywords, " "))
	}
	if len(res.Candidates) == 0 {
		fmt.Fprintln(w, "no results")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tDOC\tSCORE\tTEXT\tSTYLE\tKEYWORD\tTITLE")
	for i, c := range res.Candidates {
		fmt.Fprintf(tw, "%d\t%s\t%.4f\t%s\t%s\t%s\t%s\n",
			i+1,
			c.ExternalID,
			c.Hybrid,
			signalColumn(c, scoring.Text),
			signalColumn(c, scoring.Vector),
			signalColumn(c, scoring.Keyword),
			truncate(c.Title, 40),
		)
	}
	return tw.Flush()
}

func signalColumn(c scoring.Candidate, sig scoring.Signal) string {
	if c.Ranks[sig] == 0 {
		return "-"
	}
	return fmt.Sprintf("%.4f", c.Norm[sig])
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
