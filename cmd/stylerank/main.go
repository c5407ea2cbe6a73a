// Command stylerank ranks documents by text relevance and writing style.
//
// Usage:
//
//	# Serve the HTTP API
//	stylerank serve
//
//	# Explain the style of a text
//	stylerank style essay.txt
//
//	# Rank one query from a query file
//	stylerank rank --query-file topics.xml --id 301
//
//	# Write a run file for a whole query set
//	stylerank export --query-file topics.xml --mode hybrid-vector --weight 0.2 --out run.trec.gz
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	// configPath overrides the default config file location.
	configPath string
	// version information (set via ldflags during build)
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "stylerank",
	Short: "Rank documents by text relevance and writing style",
	Long: `stylerank combines full-text relevance with stylometric similarity.

It extracts a four-number style vector and a set of style keywords from text,
blends them with BM25 scores from the document index, and writes TREC run
files for evaluation.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/stylerank/config.yaml)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(styleCmd)
	rootCmd.AddCommand(rankCmd)
	rootCmd.AddCommand(exportCmd)
}
