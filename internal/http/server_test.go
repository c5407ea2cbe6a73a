package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/stylerank/internal/logging"
	"github.com/fyrsmithlabs/stylerank/internal/ranking"
	"github.com/fyrsmithlabs/stylerank/internal/retrieval"
	"github.com/fyrsmithlabs/stylerank/internal/retrieval/retrievaltest"
	"github.com/fyrsmithlabs/stylerank/internal/style"
	"github.com/fyrsmithlabs/stylerank/internal/stylecache"
	"github.com/fyrsmithlabs/stylerank/internal/telemetry"
)

var (
	formalVec = style.Vector{0.5, 10, 0.1, 60}
	lightVec  = style.Vector{0.9, 25, 0, 20}
)

// corpus: for the text query "cats" D1 scores 4, D2 and D3 score 1 and D4
// does not match. D3 is stored without style data.
func corpus() *retrievaltest.Fake {
	return retrievaltest.New(
		retrieval.Source{ExternalID: "D1", Title: "cats", Body: "cats cats sleep", StyleVec: &formalVec, StyleKeywords: style.KeywordSet{"formal", "dense"}},
		retrieval.Source{ExternalID: "D2", Title: "dogs", Body: "cats run", StyleVec: &lightVec, StyleKeywords: style.KeywordSet{"light"}},
		retrieval.Source{ExternalID: "D3", Body: "cats"},
		retrieval.Source{ExternalID: "D4", Title: "birds", Body: "birds fly", StyleVec: &formalVec},
	)
}

func newTestServer(t *testing.T, r retrieval.Retriever, opts ...Option) (*Server, *logging.TestLogger) {
	t.Helper()
	tl := logging.NewTestLogger()
	svc, err := ranking.NewService(r, stylecache.NewResolver(stylecache.NewMemory(), tl.Underlying()), tl.Logger, ranking.DefaultOptions())
	require.NoError(t, err)

	s, err := NewServer(svc, tl.Logger, &Config{Host: "localhost", Port: 9090}, opts...)
	require.NoError(t, err)
	return s, tl
}

func do(t *testing.T, s *Server, method, target, contentType string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set(echo.HeaderContentType, contentType)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func hitIDs(resp SearchResponse) []string {
	out := make([]string, len(resp.Hits))
	for i, h := range resp.Hits {
		out[i] = h.ExternalID
	}
	return out
}

func TestNewServer(t *testing.T) {
	tl := logging.NewTestLogger()
	svc, err := ranking.NewService(corpus(), nil, tl.Logger, ranking.DefaultOptions())
	require.NoError(t, err)

	t.Run("uses defaults when config is nil", func(t *testing.T) {
		s, err := NewServer(svc, tl.Logger, nil)
		require.NoError(t, err)
		assert.Equal(t, "localhost", s.config.Host)
		assert.Equal(t, 9090, s.config.Port)
		assert.Equal(t, ranking.DefaultExportSize, s.config.ExportSize)
		assert.Equal(t, "10M", s.config.BodyLimit)
	})

	t.Run("returns error when logger is nil", func(t *testing.T) {
		_, err := NewServer(svc, nil, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "logger is required")
	})

	t.Run("returns error when service is nil", func(t *testing.T) {
		_, err := NewServer(nil, tl.Logger, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "ranking service cannot be nil")
	})
}

func TestHandleHealth(t *testing.T) {
	t.Run("ok without checks", func(t *testing.T) {
		s, _ := newTestServer(t, corpus())
		rec := do(t, s, http.MethodGet, "/health", "", nil)

		assert.Equal(t, http.StatusOK, rec.Code)
		resp := decode[HealthResponse](t, rec)
		assert.Equal(t, "ok", resp.Status)
		assert.Nil(t, resp.Telemetry)
	})

	t.Run("failing check returns 503", func(t *testing.T) {
		s, _ := newTestServer(t, corpus(),
			WithHealthCheck("cache", func(context.Context) error { return errors.New("connection refused") }),
			WithHealthCheck("index", func(context.Context) error { return nil }),
		)
		rec := do(t, s, http.MethodGet, "/health", "", nil)

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		resp := decode[HealthResponse](t, rec)
		assert.Equal(t, "unavailable", resp.Status)
		assert.Equal(t, "connection refused", resp.Checks["cache"])
		assert.Equal(t, "ok", resp.Checks["index"])
	})

	t.Run("reports telemetry state", func(t *testing.T) {
		tt := telemetry.NewTestTelemetry()
		s, _ := newTestServer(t, corpus(), WithTelemetry(tt.Telemetry))
		rec := do(t, s, http.MethodGet, "/health", "", nil)

		resp := decode[HealthResponse](t, rec)
		require.NotNil(t, resp.Telemetry)
		assert.True(t, resp.Telemetry.Healthy)
	})
}

func TestHandleSearch(t *testing.T) {
	s, tl := newTestServer(t, corpus())

	rec := do(t, s, http.MethodGet, "/api/v1/search?q=cats", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[SearchResponse](t, rec)
	assert.Equal(t, ranking.ModeText, resp.Mode)
	assert.NotEmpty(t, resp.RunID)
	assert.Equal(t, []string{"D1", "D2", "D3"}, hitIDs(resp))
	assert.Equal(t, 1, resp.Hits[0].Rank)
	assert.InDelta(t, 1.0, resp.Hits[0].Score, 1e-9)
	require.NotNil(t, resp.Hits[1].TextScore)
	assert.InDelta(t, 0.25, *resp.Hits[1].TextScore, 1e-9)
	assert.Nil(t, resp.Hits[1].StyleScore)

	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))
	tl.AssertLogged(t, zapcore.InfoLevel, "http request")
}

func TestHandleSearch_MissingQuery(t *testing.T) {
	s, _ := newTestServer(t, corpus())

	rec := do(t, s, http.MethodGet, "/api/v1/search", "", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decode[ErrorResponse](t, rec)
	assert.Equal(t, "missing q param", resp.Error)
	assert.Equal(t, rec.Header().Get(echo.HeaderXRequestID), resp.RequestID)
}

func TestHandleSearchStyle(t *testing.T) {
	tests := []struct {
		name   string
		target string
		code   int
		want   []string
	}{
		{name: "missing vec", target: "/api/v1/search_style", code: http.StatusBadRequest},
		{name: "three components", target: "/api/v1/search_style?vec=1,2,3", code: http.StatusBadRequest},
		{name: "not a number", target: "/api/v1/search_style?vec=1,2,x,4", code: http.StatusBadRequest},
		{name: "nearest first", target: "/api/v1/search_style?vec=0.9,25,0,20", code: http.StatusOK, want: []string{"D2", "D1", "D4"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestServer(t, corpus())
			rec := do(t, s, http.MethodGet, tt.target, "", nil)

			require.Equal(t, tt.code, rec.Code, rec.Body.String())
			if tt.want != nil {
				resp := decode[SearchResponse](t, rec)
				assert.Equal(t, ranking.ModeStyle, resp.Mode)
				assert.Equal(t, tt.want, hitIDs(resp))
			}
		})
	}
}

func TestHandleSearchHybrid(t *testing.T) {
	t.Run("weight is a percentage", func(t *testing.T) {
		s, _ := newTestServer(t, corpus())
		rec := do(t, s, http.MethodGet, "/api/v1/search_hybrid?q=cats&vec=0.9,25,0,20&weight=50", "", nil)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		resp := decode[SearchResponse](t, rec)
		assert.Equal(t, ranking.ModeFusion, resp.Mode)
		assert.InDelta(t, 0.5, resp.Weight, 1e-9)
		assert.Equal(t, []string{"D1", "D2", "D4", "D3"}, hitIDs(resp))
		require.NotNil(t, resp.Hits[2].StyleScore)
		require.NotNil(t, resp.Hits[2].TextScore)
		assert.Zero(t, *resp.Hits[2].TextScore)
	})

	t.Run("default weight", func(t *testing.T) {
		s, _ := newTestServer(t, corpus())
		rec := do(t, s, http.MethodGet, "/api/v1/search_hybrid?q=cats&vec=0.9,25,0,20", "", nil)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.InDelta(t, ranking.DefaultWeight, decode[SearchResponse](t, rec).Weight, 1e-9)
	})

	t.Run("weight is clamped", func(t *testing.T) {
		s, _ := newTestServer(t, corpus())
		rec := do(t, s, http.MethodGet, "/api/v1/search_hybrid?q=cats&vec=0.9,25,0,20&weight=250", "", nil)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.InDelta(t, 1.0, decode[SearchResponse](t, rec).Weight, 1e-9)
	})

	t.Run("missing vec", func(t *testing.T) {
		s, _ := newTestServer(t, corpus())
		rec := do(t, s, http.MethodGet, "/api/v1/search_hybrid?q=cats", "", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("invalid weight", func(t *testing.T) {
		s, _ := newTestServer(t, corpus())
		rec := do(t, s, http.MethodGet, "/api/v1/search_hybrid?q=cats&vec=0.9,25,0,20&weight=lots", "", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestParseWeightPercent(t *testing.T) {
	tests := []struct {
		raw     string
		want    float64
		wantErr bool
	}{
		{raw: "", want: ranking.DefaultWeight},
		{raw: "0", want: 0},
		{raw: "20", want: 0.2},
		{raw: " 75 ", want: 0.75},
		{raw: "100", want: 1},
		{raw: "-5", want: 0},
		{raw: "1e3", want: 1},
		{raw: "NaN", wantErr: true},
		{raw: "abc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := parseWeightPercent(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestHandleRank(t *testing.T) {
	tests := []struct {
		name string
		body string
		code int
		mode ranking.Mode
		want []string
	}{
		{name: "text mode", body: `{"query":{"id":"7","text":"cats"},"mode":"text"}`, code: http.StatusOK, mode: ranking.ModeText, want: []string{"D1", "D2", "D3"}},
		{name: "default mode", body: `{"query":{"id":"7","text":"cats","style_vec":[0.9,25,0,20]},"weight":1}`, code: http.StatusOK, mode: ranking.ModeHybridVector, want: []string{"D2", "D1", "D3"}},
		{name: "size truncates", body: `{"query":{"text":"cats"},"mode":"TEXT","size":1}`, code: http.StatusOK, mode: ranking.ModeText, want: []string{"D1"}},
		{name: "unknown mode", body: `{"query":{"text":"cats"},"mode":"magic"}`, code: http.StatusBadRequest},
		{name: "weight above one", body: `{"query":{"text":"cats"},"weight":2}`, code: http.StatusBadRequest},
		{name: "size above export size", body: `{"query":{"text":"cats"},"size":100000}`, code: http.StatusBadRequest},
		{name: "empty query", body: `{"query":{"id":"7"}}`, code: http.StatusBadRequest},
		{name: "malformed json", body: `{"query":`, code: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestServer(t, corpus())
			rec := do(t, s, http.MethodPost, "/api/v1/rank", echo.MIMEApplicationJSON, []byte(tt.body))

			require.Equal(t, tt.code, rec.Code, rec.Body.String())
			if tt.code != http.StatusOK {
				assert.NotEmpty(t, decode[ErrorResponse](t, rec).Error)
				return
			}
			resp := decode[SearchResponse](t, rec)
			assert.Equal(t, tt.mode, resp.Mode)
			assert.Equal(t, tt.want, hitIDs(resp))
		})
	}
}

func TestHandleRank_RetrievalFailure(t *testing.T) {
	fake := corpus()
	fake.TextErr = retrieval.Wrap("fake", "text_search", errors.New("connection reset"))
	s, tl := newTestServer(t, fake)

	rec := do(t, s, http.MethodPost, "/api/v1/rank", echo.MIMEApplicationJSON, []byte(`{"query":{"text":"cats"},"mode":"text"}`))

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "retrieval backend unavailable", decode[ErrorResponse](t, rec).Error)
	tl.AssertLogged(t, zapcore.WarnLevel, "retrieval backend failed")
	tl.AssertField(t, "retrieval backend failed", "http.route", "/api/v1/rank")
}

func TestHandleRank_InvalidBodyLogsRoute(t *testing.T) {
	s, tl := newTestServer(t, corpus())

	rec := do(t, s, http.MethodPost, "/api/v1/rank", echo.MIMEApplicationJSON, []byte(`{"query":`))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	tl.AssertField(t, "invalid rank request", "http.route", "/api/v1/rank")
	tl.AssertField(t, "invalid rank request", "http.method", http.MethodPost)
}

func TestHandleStyle(t *testing.T) {
	s, _ := newTestServer(t, corpus())

	t.Run("explains text", func(t *testing.T) {
		rec := do(t, s, http.MethodPost, "/api/v1/style", echo.MIMEApplicationJSON, []byte(`{"text":"The cat sat. The dog ran fast."}`))

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		resp := decode[style.Explanation](t, rec)
		assert.Equal(t, 7, resp.Words)
		assert.Equal(t, 2, resp.Sentences)
		assert.Contains(t, resp.Keywords, "very-short-sentences")
		assert.Equal(t, style.Adjectives(), resp.Adjectives)
		assert.Equal(t, style.EmotiveWords(), resp.EmotiveWords)
	})

	t.Run("uses a supplied vector", func(t *testing.T) {
		rec := do(t, s, http.MethodPost, "/api/v1/style", echo.MIMEApplicationJSON, []byte(`{"text":"The cat sat.","style_vec":[0.2,30,0.2,-10]}`))

		require.Equal(t, http.StatusOK, rec.Code)
		resp := decode[style.Explanation](t, rec)
		assert.Equal(t, style.Vector{0.2, 30, 0.2, -10}, resp.Vector)
		assert.Contains(t, resp.Keywords, "very-academic")
	})

	t.Run("requires text", func(t *testing.T) {
		rec := do(t, s, http.MethodPost, "/api/v1/style", echo.MIMEApplicationJSON, []byte(`{"text":"  "}`))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHandleExport(t *testing.T) {
	want := strings.Join([]string{
		"1 Q0 D2 0 1.00000 bm25",
		"2 Q0 D1 0 1.00000 bm25",
		"2 Q0 D2 1 0.25000 bm25",
		"2 Q0 D3 2 0.25000 bm25",
	}, "\n")

	t.Run("json body", func(t *testing.T) {
		s, _ := newTestServer(t, corpus())
		body := `{"queries":[{"id":"2","text":"cats"},{"id":"1","text":"dogs"}],"mode":"text"}`
		rec := do(t, s, http.MethodPost, "/api/v1/export", echo.MIMEApplicationJSON, []byte(body))

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, echo.MIMETextPlainCharsetUTF8, rec.Header().Get(echo.HeaderContentType))
		assert.Equal(t, want, rec.Body.String())
		assert.Equal(t, "4", rec.Header().Get("X-Run-Lines"))
		assert.Equal(t, "bm25", rec.Header().Get("X-Run-System"))
		assert.NotEmpty(t, rec.Header().Get("X-Run-ID"))
	})

	t.Run("query file body", func(t *testing.T) {
		s, _ := newTestServer(t, corpus())
		body := `<DOCS>
<DOC><recordId>2</recordId><text>cats</text></DOC>
<DOC><recordId>1</recordId><text>dogs</text></DOC>
</DOCS>`
		rec := do(t, s, http.MethodPost, "/api/v1/export?mode=text&system=mine", echo.MIMEApplicationXML, []byte(body))

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, strings.ReplaceAll(want, "bm25", "mine"), rec.Body.String())
	})

	t.Run("no queries", func(t *testing.T) {
		s, _ := newTestServer(t, corpus())
		rec := do(t, s, http.MethodPost, "/api/v1/export", echo.MIMEApplicationJSON, []byte(`{"queries":[]}`))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("too many queries", func(t *testing.T) {
		s, _ := newTestServer(t, corpus())
		s.config.MaxExportQueries = 1
		body := `{"queries":[{"id":"1","text":"cats"},{"id":"2","text":"dogs"}]}`
		rec := do(t, s, http.MethodPost, "/api/v1/export", echo.MIMEApplicationJSON, []byte(body))
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	})

	t.Run("invalid weight param", func(t *testing.T) {
		s, _ := newTestServer(t, corpus())
		rec := do(t, s, http.MethodPost, "/api/v1/export?weight=x", echo.MIMEApplicationXML, []byte(`<DOC><recordId>1</recordId><text>cats</text></DOC>`))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("retrieval failure", func(t *testing.T) {
		fake := corpus()
		fake.TextErr = retrieval.Wrap("fake", "text_search", errors.New("connection reset"))
		s, _ := newTestServer(t, fake)
		rec := do(t, s, http.MethodPost, "/api/v1/export", echo.MIMEApplicationJSON, []byte(`{"queries":[{"id":"1","text":"cats"}],"mode":"text"}`))

		assert.Equal(t, http.StatusBadGateway, rec.Code)
		assert.Equal(t, echo.MIMEApplicationJSON, rec.Header().Get(echo.HeaderContentType))
	})
}

func TestRequestID(t *testing.T) {
	s, _ := newTestServer(t, corpus())

	t.Run("keeps a valid client id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set(echo.HeaderXRequestID, "client-42")
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)

		assert.Equal(t, "client-42", rec.Header().Get(echo.HeaderXRequestID))
	})

	t.Run("replaces an unloggable client id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set(echo.HeaderXRequestID, "bad id\twith tabs")
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)

		got := rec.Header().Get(echo.HeaderXRequestID)
		assert.NotEqual(t, "bad id\twith tabs", got)
		assert.True(t, logging.ValidID(got))
	})
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t, corpus())
	do(t, s, http.MethodGet, "/api/v1/search?q=cats", "", nil)

	rec := do(t, s, http.MethodGet, "/metrics", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "stylerank_ranking_runs_total")
}
