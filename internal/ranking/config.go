package ranking

import (
	"fmt"

	"github.com/fyrsmithlabs/stylerank/internal/config"
	"github.com/fyrsmithlabs/stylerank/internal/retrieval"
	"github.com/fyrsmithlabs/stylerank/internal/scoring"
)

// FromConfig builds the default interactive options from the ranking
// section of the configuration.
func FromConfig(c config.RankingConfig) (Options, error) {
	mode, err := ParseMode(c.Mode)
	if err != nil {
		return Options{}, err
	}

	opts := Options{
		Mode:   mode,
		Weight: c.Weight,
		Weights: scoring.Scores{
			scoring.Text:    c.BlendWeights.Text,
			scoring.Vector:  c.BlendWeights.Vector,
			scoring.Keyword: c.BlendWeights.Keyword,
		},
		Size:          c.Size,
		FusionPool:    c.FusionPool,
		NumCandidates: c.NumCandidates,
		System:        c.System,
		Precision:     c.Precision,
		Concurrency:   c.Concurrency,
	}

	for _, field := range c.Fields {
		fw, err := retrieval.ParseFieldWeight(field)
		if err != nil {
			return Options{}, fmt.Errorf("%w: %v", ErrInvalidOptions, err)
		}
		opts.Fields = append(opts.Fields, fw)
	}

	for sig, name := range map[scoring.Signal]string{
		scoring.Text:    c.Normalization.Text,
		scoring.Vector:  c.Normalization.Vector,
		scoring.Keyword: c.Normalization.Keyword,
	} {
		m, err := scoring.ParseMode(name)
		if err != nil {
			return Options{}, fmt.Errorf("%w: %s normalization: %v", ErrInvalidOptions, sig, err)
		}
		opts.Normalization[sig] = m
	}

	opts = opts.withDefaults()
	if err := opts.Validate(); err != nil {
		return Options{}, err
	}
	return opts, nil
}
