package ranking

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/fyrsmithlabs/stylerank/internal/retrieval"
	"github.com/fyrsmithlabs/stylerank/internal/scoring"
	"github.com/fyrsmithlabs/stylerank/internal/trec"
)

// ErrInvalidOptions is returned for options the service cannot run with.
var ErrInvalidOptions = errors.New("invalid ranking options")

// Mode selects the signals a ranking run combines.
type Mode string

const (
	// ModeText ranks by full-text relevance alone.
	ModeText Mode = "text"
	// ModeStyle ranks by nearest-neighbor style similarity alone.
	ModeStyle Mode = "style"
	// ModeHybridVector re-ranks text hits with the cosine similarity of
	// their style vectors to the query's.
	ModeHybridVector Mode = "hybrid-vector"
	// ModeHybridKeyword re-ranks text hits with the Jaccard overlap of
	// their style keywords with the query's.
	ModeHybridKeyword Mode = "hybrid-keyword"
	// ModeFusion merges text hits and style neighbors by document.
	ModeFusion Mode = "fusion"
	// ModeBlend re-ranks text hits with vector and keyword signals under
	// explicit per-signal weights.
	ModeBlend Mode = "blend"
)

// Modes lists every mode in documentation order.
var Modes = []Mode{ModeText, ModeStyle, ModeHybridVector, ModeHybridKeyword, ModeFusion, ModeBlend}

// ParseMode accepts a mode name, case-insensitively.
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Modes {
		if m == known {
			return m, nil
		}
	}
	return "", fmt.Errorf("%w: unknown mode %q", ErrInvalidOptions, s)
}

// Hybrid reports whether the mode blends more than one signal.
func (m Mode) Hybrid() bool {
	return m != ModeText && m != ModeStyle
}

// needsVector reports whether the query's style vector takes part.
func (m Mode) needsVector() bool {
	return m != ModeText && m != ModeHybridKeyword
}

// needsKeywords reports whether the query's style keywords take part.
func (m Mode) needsKeywords() bool {
	return m == ModeHybridKeyword || m == ModeBlend
}

// DefaultSystem is the run-file system name of the mode.
func (m Mode) DefaultSystem() string {
	switch m {
	case ModeText:
		return "bm25"
	case ModeStyle:
		return "style_knn"
	case ModeHybridVector:
		return "hybrid_vec"
	case ModeHybridKeyword:
		return "hybrid_kw"
	default:
		return string(m)
	}
}

// Defaults.
const (
	DefaultWeight      = 0.2
	DefaultSize        = 20
	DefaultExportSize  = 1000
	DefaultFusionPool  = 100
	DefaultConcurrency = 4
)

// Options configures a ranking run.
type Options struct {
	Mode Mode

	// Weight is the share of the secondary signal, in [0,1].
	Weight float64

	// Weights holds the per-signal weights of ModeBlend. They need not sum
	// to 1.
	Weights scoring.Scores

	// Size is the number of ranked documents returned per query.
	Size int

	// FusionPool is the number of hits fetched from each search in
	// ModeFusion before merging.
	FusionPool int

	// NumCandidates is the kNN candidate pool of style searches.
	NumCandidates int

	// Fields are the boosted fields of text searches.
	Fields []retrieval.FieldWeight

	// Normalization holds the rescaling mode per signal.
	Normalization [scoring.NumSignals]scoring.Mode

	// System and Precision configure run-file output. Empty or zero picks
	// the mode's defaults.
	System    string
	Precision int

	// Concurrency bounds the queries ranked in parallel by Export.
	Concurrency int
}

// DefaultOptions returns the options of an interactive hybrid-vector run.
func DefaultOptions() Options {
	return Options{
		Mode:    ModeHybridVector,
		Weight:  DefaultWeight,
		Weights: scoring.Scores{scoring.Text: 1 - DefaultWeight, scoring.Vector: DefaultWeight / 2, scoring.Keyword: DefaultWeight / 2},
		Size:    DefaultSize,
	}
}

// withDefaults fills unset fields.
func (o Options) withDefaults() Options {
	if o.Mode == "" {
		o.Mode = ModeHybridVector
	}
	if o.Size <= 0 {
		o.Size = DefaultSize
	}
	if o.FusionPool <= 0 {
		o.FusionPool = DefaultFusionPool
	}
	if o.FusionPool < o.Size {
		o.FusionPool = o.Size
	}
	if o.System == "" {
		o.System = o.Mode.DefaultSystem()
	}
	if o.Precision <= 0 {
		o.Precision = trec.SignalPrecision
		if o.Mode.Hybrid() {
			o.Precision = trec.HybridPrecision
		}
	}
	if o.Concurrency <= 0 {
		o.Concurrency = DefaultConcurrency
	}
	return o
}

// Validate reports options the service refuses to run with.
func (o Options) Validate() error {
	if _, err := ParseMode(string(o.Mode)); err != nil {
		return err
	}
	if math.IsNaN(o.Weight) || o.Weight < 0 || o.Weight > 1 {
		return fmt.Errorf("%w: weight %v outside [0,1]", ErrInvalidOptions, o.Weight)
	}
	for sig, w := range o.Weights {
		if math.IsNaN(w) || math.IsInf(w, 0) || w < 0 {
			return fmt.Errorf("%w: invalid %s weight", ErrInvalidOptions, scoring.Signal(sig))
		}
	}
	if strings.ContainsAny(o.System, " \t\n") {
		return fmt.Errorf("%w: system name %q contains whitespace", ErrInvalidOptions, o.System)
	}
	return nil
}

// scorer builds the scoring configuration of the mode.
func (o Options) scorer() scoring.Scorer {
	norm := o.Normalization
	switch o.Mode {
	case ModeText:
		return scoring.Single(scoring.Text, norm[scoring.Text])
	case ModeStyle:
		return scoring.Single(scoring.Vector, norm[scoring.Vector])
	case ModeHybridKeyword:
		return scoring.Scorer{Terms: []scoring.Term{
			{Signal: scoring.Text, Mode: norm[scoring.Text], Weight: 1 - o.Weight},
			{Signal: scoring.Keyword, Mode: norm[scoring.Keyword], Weight: o.Weight},
		}}
	case ModeBlend:
		return scoring.Scorer{Terms: []scoring.Term{
			{Signal: scoring.Text, Mode: norm[scoring.Text], Weight: o.Weights[scoring.Text]},
			{Signal: scoring.Vector, Mode: norm[scoring.Vector], Weight: o.Weights[scoring.Vector]},
			{Signal: scoring.Keyword, Mode: norm[scoring.Keyword], Weight: o.Weights[scoring.Keyword]},
		}}
	default: // hybrid-vector, fusion
		return scoring.Scorer{Terms: []scoring.Term{
			{Signal: scoring.Text, Mode: norm[scoring.Text], Weight: 1 - o.Weight},
			{Signal: scoring.Vector, Mode: norm[scoring.Vector], Weight: o.Weight},
		}}
	}
}

// exporter returns the run-file formatter of the options.
func (o Options) exporter() trec.Exporter {
	return trec.Exporter{System: o.System, Precision: o.Precision}
}
