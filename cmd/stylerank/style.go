package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/fyrsmithlabs/stylerank/internal/style"
	"github.com/fyrsmithlabs/stylerank/internal/trec"
)

var (
	styleOutput string
	styleVector string
)

var styleCmd = &cobra.Command{
	Use:   "style [file]",
	Short: "Explain the writing style of a text",
	Long: `Compute the style vector and style keywords of a file or stdin, with the
word counts, passive sentences and per-axis tags behind them.

Examples:
  # Explain a file
  stylerank style essay.txt

  # Explain stdin as YAML
  cat essay.txt | stylerank style - --output yaml

  # Generate keywords for a known vector
  stylerank style essay.txt --vec 0.52,18.3,0.04,61.2`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStyle,
}

func init() {
	styleCmd.Flags().StringVarP(&styleOutput, "output", "o", "json", "output format: json or yaml")
	styleCmd.Flags().StringVar(&styleVector, "vec", "", "use this style vector instead of computing one")
}

func runStyle(cmd *cobra.Command, args []string) error {
	content, err := readInput(cmd.InOrStdin(), args)
	if err != nil {
		return err
	}
	if strings.TrimSpace(string(content)) == "" {
		return fmt.Errorf("no text to analyze")
	}

	var e style.Explanation
	if styleVector != "" {
		vec, err := trec.ParseVector(styleVector)
		if err != nil {
			return fmt.Errorf("invalid --vec: %w", err)
		}
		e = style.ExplainWithVector(string(content), vec)
	} else {
		e = style.Explain(string(content))
	}
	return writeExplanation(cmd.OutOrStdout(), e, styleOutput)
}

func writeExplanation(w io.Writer, e style.Explanation, format string) error {
	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(e)
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(e); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q (want json or yaml)", format)
	}
}

// readInput reads the file named by args[0], or in when there is no
// argument or it is "-".
func readInput(in io.Reader, args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		content, err := io.ReadAll(in)
		if err != nil {
			return nil, fmt.Errorf("failed to read from stdin: %w", err)
		}
		return content, nil
	}
	content, err := os.ReadFile(args[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", args[0], err)
	}
	return content, nil
}
