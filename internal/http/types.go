package http

import (
	"github.com/fyrsmithlabs/stylerank/internal/ranking"
	"github.com/fyrsmithlabs/stylerank/internal/scoring"
	"github.com/fyrsmithlabs/stylerank/internal/style"
	"github.com/fyrsmithlabs/stylerank/internal/telemetry"
)

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status    string                  `json:"status"`
	Checks    map[string]string       `json:"checks,omitempty"`
	Telemetry *telemetry.HealthStatus `json:"telemetry,omitempty"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// Hit is one ranked document.
type Hit struct {
	Rank       int     `json:"rank"`
	ID         string  `json:"id"`
	ExternalID string  `json:"external_id"`
	Title      string  `json:"title,omitempty"`
	Score      float64 `json:"score"`

	TextScore    *float64 `json:"text_score,omitempty"`
	StyleScore   *float64 `json:"style_score,omitempty"`
	KeywordScore *float64 `json:"keyword_score,omitempty"`
}

// SearchResponse is the response body of the search and rank endpoints.
type SearchResponse struct {
	RunID   string         `json:"run_id"`
	QueryID string         `json:"query_id,omitempty"`
	Mode    ranking.Mode   `json:"mode"`
	Weight  float64        `json:"weight"`
	Style   *style.Profile `json:"style,omitempty"`
	Hits    []Hit          `json:"hits"`
}

// RankRequest is the request body for POST /api/v1/rank. Unset options fall
// back to the server defaults.
type RankRequest struct {
	Query  ranking.Query `json:"query"`
	Mode   string        `json:"mode,omitempty"`
	Weight *float64      `json:"weight,omitempty"`
	Size   int           `json:"size,omitempty"`
}

// StyleRequest is the request body for POST /api/v1/style.
type StyleRequest struct {
	Text   string        `json:"text"`
	Vector *style.Vector `json:"style_vec,omitempty"`
}

// ExportRequest is the JSON request body for POST /api/v1/export.
type ExportRequest struct {
	Queries []ranking.Query `json:"queries"`
	Mode    string          `json:"mode,omitempty"`
	Weight  *float64        `json:"weight,omitempty"`
	Size    int             `json:"size,omitempty"`
	System  string          `json:"system,omitempty"`
}

func newSearchResponse(res *ranking.Result) SearchResponse {
	out := SearchResponse{
		RunID:   res.RunID,
		QueryID: res.QueryID,
		Mode:    res.Mode,
		Weight:  res.Weight,
		Style:   res.Style,
		Hits:    make([]Hit, len(res.Candidates)),
	}
	for i, c := range res.Candidates {
		out.Hits[i] = Hit{
			Rank:         i + 1,
			ID:           c.ID,
			ExternalID:   c.ExternalID,
			Title:        c.Title,
			Score:        c.Hybrid,
			TextScore:    signalScore(c, scoring.Text),
			StyleScore:   signalScore(c, scoring.Vector),
			KeywordScore: signalScore(c, scoring.Keyword),
		}
	}
	return out
}

// signalScore returns the normalized score of a signal the scorer used.
func signalScore(c scoring.Candidate, sig scoring.Signal) *float64 {
	if c.Ranks[sig] == 0 {
		return nil
	}
	v := c.Norm[sig]
	return &v
}
