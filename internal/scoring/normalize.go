package scoring

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/floats"
)

// Mode selects how raw scores are rescaled.
type Mode int

const (
	// MaxScale divides each score by the maximum score.
	MaxScale Mode = iota
	// MinMax maps the minimum to 0 and the maximum to 1.
	MinMax
)

// String returns the configuration name of the mode.
func (m Mode) String() string {
	switch m {
	case MaxScale:
		return "max"
	case MinMax:
		return "minmax"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode accepts "max" or "minmax" (case-insensitive).
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "max", "":
		return MaxScale, nil
	case "minmax", "min-max":
		return MinMax, nil
	default:
		return 0, fmt.Errorf("unknown normalization mode %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(text []byte) error {
	parsed, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Normalize rescales scores with the given mode. The input is not modified.
func Normalize(scores []float64, mode Mode) []float64 {
	if mode == MinMax {
		return NormalizeMinMax(scores)
	}
	return NormalizeMax(scores)
}

// NormalizeMax returns score/max(scores). A zero maximum or an empty input
// uses a divisor of 1, leaving the scores unchanged. Sequences holding a
// negative score, such as cosines of opposed style vectors, are scaled with
// NormalizeMinMax instead so the output stays in [0,1] and keeps its order.
func NormalizeMax(scores []float64) []float64 {
	out := make([]float64, len(scores))
	if len(scores) == 0 {
		return out
	}
	if floats.Min(scores) < 0 {
		return NormalizeMinMax(scores)
	}
	divisor := floats.Max(scores)
	if divisor == 0 {
		divisor = 1
	}
	for i, s := range scores {
		out[i] = s / divisor
	}
	return out
}

// NormalizeMinMax returns (score-min)/(max-min). When every score is equal
// the divisor is 1 and all outputs are 0.
func NormalizeMinMax(scores []float64) []float64 {
	out := make([]float64, len(scores))
	if len(scores) == 0 {
		return out
	}
	lo, hi := floats.Min(scores), floats.Max(scores)
	divisor := hi - lo
	if divisor == 0 {
		divisor = 1
	}
	for i, s := range scores {
		out[i] = (s - lo) / divisor
	}
	return out
}
