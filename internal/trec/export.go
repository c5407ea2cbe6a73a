// Package trec reads benchmark query files and writes ranked results in the
// TREC run format consumed by trec_eval:
//
//	<query_id> Q0 <doc_id> <rank> <score> <system>
//
// Ranks start at 0 and scores are printed with a fixed number of decimals.
package trec

import (
	"strconv"
	"strings"

	"github.com/fyrsmithlabs/stylerank/internal/scoring"
)

const (
	// HybridPrecision is the score precision used for blended runs.
	HybridPrecision = 4
	// SignalPrecision is the score precision used for single-signal runs.
	SignalPrecision = 5
)

// Entry is one ranked document of a run.
type Entry struct {
	ExternalID string
	Score      float64
}

// Run is the ranked result list of one query.
type Run struct {
	QueryID string
	Entries []Entry
}

// RunFromCandidates builds a run from ranked candidates using their hybrid
// score.
func RunFromCandidates(queryID string, ranked []scoring.Candidate) Run {
	entries := make([]Entry, len(ranked))
	for i, c := range ranked {
		entries[i] = Entry{ExternalID: c.ExternalID, Score: c.Hybrid}
	}
	return Run{QueryID: queryID, Entries: entries}
}

// Exporter formats runs for one system configuration.
type Exporter struct {
	System    string
	Precision int
}

// Line formats a single run line.
func (e Exporter) Line(queryID, externalID string, rank int, score float64) string {
	var b strings.Builder
	b.Grow(len(queryID) + len(externalID) + len(e.System) + 24)
	b.WriteString(queryID)
	b.WriteString(" Q0 ")
	b.WriteString(externalID)
	b.WriteByte(' ')
	b.WriteString(strconv.Itoa(rank))
	b.WriteByte(' ')
	b.WriteString(strconv.FormatFloat(score, 'f', e.Precision, 64))
	b.WriteByte(' ')
	b.WriteString(e.System)
	return b.String()
}

// Lines returns one line per entry in rank order, ranks starting at 0.
func (e Exporter) Lines(run Run) []string {
	lines := make([]string, len(run.Entries))
	for i, entry := range run.Entries {
		lines[i] = e.Line(run.QueryID, entry.ExternalID, i, entry.Score)
	}
	return lines
}

// Format returns all runs as newline-joined lines, without a header.
func (e Exporter) Format(runs []Run) string {
	var lines []string
	for _, r := range runs {
		lines = append(lines, e.Lines(r)...)
	}
	return strings.Join(lines, "\n")
}
