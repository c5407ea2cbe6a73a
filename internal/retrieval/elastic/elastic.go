// Package elastic serves retrieval requests from an Elasticsearch index.
//
// Documents are expected under the mapping
//
//	trec_id         keyword
//	title, body     text
//	style_vec       dense_vector (dims 4, similarity cosine)
//	style_keywords  keyword
//
// Full-text search uses a multi_match query with per-field boosts, vector
// search uses the top-level knn clause, and lookup uses a term query on
// trec_id.
package elastic

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/elastic/elastic-transport-go/v8/elastictransport"
	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/stylerank/internal/retrieval"
	"github.com/fyrsmithlabs/stylerank/internal/style"
)

// Config holds the connection settings for an Elasticsearch cluster.
type Config struct {
	// URLs are the cluster nodes, e.g. http://localhost:9200.
	URLs []string

	// Index is the document index. Default: "documents".
	Index string

	Username string
	Password string
	APIKey   string

	// MaxRetries for 502/503/504 responses and transport errors. Default: 3.
	MaxRetries int

	// Transport overrides the HTTP transport.
	Transport http.RoundTripper
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Index == "" {
		c.Index = "documents"
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if len(c.URLs) == 0 {
		return fmt.Errorf("%w: elasticsearch url required", retrieval.ErrInvalidConfig)
	}
	if strings.ContainsAny(c.Index, `/\*?"<>| ,#`) {
		return fmt.Errorf("%w: invalid index name %q", retrieval.ErrInvalidConfig, c.Index)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("%w: max retries must not be negative", retrieval.ErrInvalidConfig)
	}
	return nil
}

// Client implements retrieval.Retriever on top of the Elasticsearch REST API.
type Client struct {
	transport *elastictransport.Client
	index     string
	logger    *zap.Logger
}

var _ retrieval.Retriever = (*Client)(nil)

// New creates a client. It does not contact the cluster.
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	urls := make([]*url.URL, 0, len(cfg.URLs))
	for _, raw := range cfg.URLs {
		u, err := url.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: parsing url %q: %v", retrieval.ErrInvalidConfig, raw, err)
		}
		urls = append(urls, u)
	}

	tp, err := elastictransport.New(elastictransport.Config{
		URLs:       urls,
		Username:   cfg.Username,
		Password:   cfg.Password,
		APIKey:     cfg.APIKey,
		MaxRetries: cfg.MaxRetries,
		RetryBackoff: func(attempt int) time.Duration {
			return time.Duration(attempt) * 100 * time.Millisecond
		},
		Transport: cfg.Transport,
	})
	if err != nil {
		return nil, fmt.Errorf("creating elasticsearch transport: %w", err)
	}

	return &Client{transport: tp, index: cfg.Index, logger: logger}, nil
}

// TextSearch runs a multi_match query over the weighted fields.
func (c *Client) TextSearch(ctx context.Context, q retrieval.TextQuery) ([]retrieval.Hit, error) {
	q = q.WithDefaults()

	fields := make([]string, len(q.Fields))
	for i, f := range q.Fields {
		fields[i] = formatField(f)
	}

	body := map[string]any{
		"size": q.Size,
		"query": map[string]any{
			"multi_match": map[string]any{
				"query":  q.Text,
				"fields": fields,
			},
		},
	}
	return c.search(ctx, body)
}

// VectorSearch runs an approximate kNN search on style_vec.
func (c *Client) VectorSearch(ctx context.Context, q retrieval.VectorQuery) ([]retrieval.Hit, error) {
	q = q.WithDefaults()

	body := map[string]any{
		"size": q.K,
		"knn": map[string]any{
			"field":          "style_vec",
			"query_vector":   q.Vector.Slice(),
			"k":              q.K,
			"num_candidates": q.NumCandidates,
		},
	}
	return c.search(ctx, body)
}

// GetByID looks up a document by its trec_id.
func (c *Client) GetByID(ctx context.Context, externalID string) (retrieval.Source, error) {
	body := map[string]any{
		"size": 1,
		"query": map[string]any{
			"term": map[string]any{"trec_id": externalID},
		},
	}
	hits, err := c.search(ctx, body)
	if err != nil {
		return retrieval.Source{}, err
	}
	if len(hits) == 0 {
		return retrieval.Source{}, fmt.Errorf("%s: %w", externalID, retrieval.ErrNotFound)
	}
	return hits[0].Source, nil
}

func formatField(f retrieval.FieldWeight) string {
	if f.Boost == 0 || f.Boost == 1 {
		return f.Field
	}
	return f.Field + "^" + strconv.FormatFloat(f.Boost, 'g', -1, 64)
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			ID     string     `json:"_id"`
			Score  *float64   `json:"_score"`
			Source sourceJSON `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

type sourceJSON struct {
	TrecID        string    `json:"trec_id"`
	Title         string    `json:"title"`
	Body          string    `json:"body"`
	StyleVec      []float64 `json:"style_vec"`
	StyleKeywords []string  `json:"style_keywords"`
}

type errorResponse struct {
	Status int `json:"status"`
	Error  struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
}

func (s sourceJSON) toSource(id string) retrieval.Source {
	src := retrieval.Source{
		ExternalID: s.TrecID,
		Title:      s.Title,
		Body:       s.Body,
	}
	if src.ExternalID == "" {
		src.ExternalID = id
	}
	if v, ok := style.VectorFromSlice(s.StyleVec); ok {
		src.StyleVec = &v
	}
	if len(s.StyleKeywords) > 0 {
		src.StyleKeywords = style.NewKeywordSet(s.StyleKeywords...)
	}
	return src
}

func (c *Client) search(ctx context.Context, body map[string]any) ([]retrieval.Hit, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "/"+c.index+"/_search", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	res, err := c.transport.Perform(req)
	if err != nil {
		return nil, fmt.Errorf("performing search: %w", err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("reading search response: %w", err)
	}

	if res.StatusCode >= http.StatusBadRequest {
		return nil, responseError(res.StatusCode, raw)
	}

	var sr searchResponse
	if err := json.Unmarshal(raw, &sr); err != nil {
		return nil, fmt.Errorf("decoding search response: %w", err)
	}

	hits := make([]retrieval.Hit, len(sr.Hits.Hits))
	for i, h := range sr.Hits.Hits {
		var score float64
		if h.Score != nil {
			score = *h.Score
		}
		hits[i] = retrieval.Hit{ID: h.ID, Score: score, Source: h.Source.toSource(h.ID)}
	}

	c.logger.Debug("elasticsearch search",
		zap.String("index", c.index),
		zap.Int("status", res.StatusCode),
		zap.Int("hits", len(hits)),
	)
	return hits, nil
}

func responseError(status int, raw []byte) error {
	var er errorResponse
	if err := json.Unmarshal(raw, &er); err == nil && er.Error.Type != "" {
		return fmt.Errorf("elasticsearch status %d: %s: %s", status, er.Error.Type, er.Error.Reason)
	}
	const maxBody = 256
	if len(raw) > maxBody {
		raw = raw[:maxBody]
	}
	return fmt.Errorf("elasticsearch status %d: %s", status, strings.TrimSpace(string(raw)))
}
