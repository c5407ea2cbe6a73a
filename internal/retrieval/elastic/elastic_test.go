package elastic

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/stylerank/internal/retrieval"
	"github.com/fyrsmithlabs/stylerank/internal/style"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   map[string]any
}

type fakeES struct {
	mu       sync.Mutex
	requests []recordedRequest
	status   int
	response string
}

func (f *fakeES) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	var body map[string]any
	_ = json.Unmarshal(raw, &body)

	f.mu.Lock()
	f.requests = append(f.requests, recordedRequest{Method: r.Method, Path: r.URL.Path, Body: body})
	status, response := f.status, f.response
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = io.WriteString(w, response)
}

func (f *fakeES) last(t *testing.T) recordedRequest {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.requests)
	return f.requests[len(f.requests)-1]
}

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(Config{URLs: []string{srv.URL}}, nil)
	require.NoError(t, err)
	return c
}

const twoHits = `{
  "took": 3,
  "hits": {
    "total": {"value": 2, "relation": "eq"},
    "max_score": 7.5,
    "hits": [
      {"_id": "a1", "_score": 7.5, "_source": {"trec_id": "D1", "title": "Cats", "body": "The cat sat.", "style_vec": [0.5, 12, 0.1, 60], "style_keywords": ["Formal", "dense"]}},
      {"_id": "a2", "_score": 2.25, "_source": {"title": "Dogs", "body": "A dog ran."}}
    ]
  }
}`

func TestClient_TextSearch(t *testing.T) {
	es := &fakeES{response: twoHits}
	c := newTestClient(t, es)

	hits, err := c.TextSearch(context.Background(), retrieval.TextQuery{Text: "cat"})
	require.NoError(t, err)
	require.Len(t, hits, 2)

	assert.Equal(t, "a1", hits[0].ID)
	assert.Equal(t, 7.5, hits[0].Score)
	assert.Equal(t, "D1", hits[0].Source.ExternalID)
	assert.Equal(t, "Cats", hits[0].Source.Title)
	require.NotNil(t, hits[0].Source.StyleVec)
	assert.Equal(t, style.Vector{0.5, 12, 0.1, 60}, *hits[0].Source.StyleVec)
	assert.Equal(t, style.KeywordSet{"formal", "dense"}, hits[0].Source.StyleKeywords)

	assert.Equal(t, "a2", hits[1].Source.ExternalID, "missing trec_id falls back to _id")
	assert.Nil(t, hits[1].Source.StyleVec)

	req := es.last(t)
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "/documents/_search", req.Path)
	assert.Equal(t, float64(retrieval.DefaultSize), req.Body["size"])
	mm := req.Body["query"].(map[string]any)["multi_match"].(map[string]any)
	assert.Equal(t, "cat", mm["query"])
	assert.Equal(t, []any{"title^2", "body"}, mm["fields"])
}

func TestClient_VectorSearch(t *testing.T) {
	es := &fakeES{response: twoHits}
	c := newTestClient(t, es)

	_, err := c.VectorSearch(context.Background(), retrieval.VectorQuery{
		Vector: style.Vector{0.5, 12, 0.1, 60},
		K:      1000,
	})
	require.NoError(t, err)

	req := es.last(t)
	knn := req.Body["knn"].(map[string]any)
	assert.Equal(t, "style_vec", knn["field"])
	assert.Equal(t, []any{0.5, 12.0, 0.1, 60.0}, knn["query_vector"])
	assert.Equal(t, 1000.0, knn["k"])
	assert.Equal(t, float64(retrieval.DefaultNumCandidates), knn["num_candidates"])
	assert.Equal(t, 1000.0, req.Body["size"])
}

func TestClient_GetByID(t *testing.T) {
	es := &fakeES{response: twoHits}
	c := newTestClient(t, es)

	src, err := c.GetByID(context.Background(), "D1")
	require.NoError(t, err)
	assert.Equal(t, "D1", src.ExternalID)

	term := es.last(t).Body["query"].(map[string]any)["term"].(map[string]any)
	assert.Equal(t, "D1", term["trec_id"])

	es.response = `{"hits": {"hits": []}}`
	_, err = c.GetByID(context.Background(), "D404")
	assert.ErrorIs(t, err, retrieval.ErrNotFound)
}

func TestClient_ErrorResponses(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		response string
		contains string
	}{
		{
			name:     "structured error",
			status:   http.StatusBadRequest,
			response: `{"error": {"type": "search_phase_execution_exception", "reason": "all shards failed"}, "status": 400}`,
			contains: "search_phase_execution_exception: all shards failed",
		},
		{
			name:     "plain body",
			status:   http.StatusNotFound,
			response: `no such index`,
			contains: "status 404: no such index",
		},
		{
			name:     "malformed success body",
			status:   http.StatusOK,
			response: `{"hits": [`,
			contains: "decoding search response",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, &fakeES{status: tt.status, response: tt.response})
			_, err := c.TextSearch(context.Background(), retrieval.TextQuery{Text: "x"})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}

func TestConfig(t *testing.T) {
	_, err := New(Config{}, nil)
	assert.ErrorIs(t, err, retrieval.ErrInvalidConfig)

	_, err = New(Config{URLs: []string{"http://localhost:9200"}, Index: "bad index"}, nil)
	assert.ErrorIs(t, err, retrieval.ErrInvalidConfig)

	cfg := Config{URLs: []string{"http://localhost:9200"}}
	cfg.ApplyDefaults()
	assert.Equal(t, "documents", cfg.Index)
	assert.Equal(t, 3, cfg.MaxRetries)
}

func TestFormatField(t *testing.T) {
	assert.Equal(t, "title^2", formatField(retrieval.FieldWeight{Field: "title", Boost: 2}))
	assert.Equal(t, "body", formatField(retrieval.FieldWeight{Field: "body", Boost: 1}))
	assert.Equal(t, "body^0.5", formatField(retrieval.FieldWeight{Field: "body", Boost: 0.5}))
}
