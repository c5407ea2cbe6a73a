package ranking

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/stylerank/internal/retrieval"
	"github.com/fyrsmithlabs/stylerank/internal/trec"
)

func exportQueries() []Query {
	return []Query{
		{ID: "10", Text: "birds"},
		{ID: "2", Text: "cats"},
		{ID: "1", Text: "dogs"},
	}
}

func TestExport_TextRun(t *testing.T) {
	svc, tl := newTestService(t, corpus())
	opts := withMode(svc, ModeText, 0)
	opts.Size = 0

	var buf bytes.Buffer
	summary, err := svc.Export(context.Background(), exportQueries(), opts, &buf)
	require.NoError(t, err)

	want := strings.Join([]string{
		"1 Q0 D2 0 1.00000 bm25",
		"2 Q0 D1 0 1.00000 bm25",
		"2 Q0 D2 1 0.25000 bm25",
		"2 Q0 D3 2 0.25000 bm25",
		"10 Q0 D4 0 1.00000 bm25",
	}, "\n")
	assert.Equal(t, want, buf.String())

	assert.Equal(t, 3, summary.Queries)
	assert.Equal(t, 5, summary.Lines)
	assert.Equal(t, "bm25", summary.System)
	assert.NotEmpty(t, summary.RunID)
	tl.AssertField(t, "run file exported", "lines", int64(5))
}

func TestExport_HybridPrecisionAndSystem(t *testing.T) {
	svc, _ := newTestService(t, corpus())
	opts := withMode(svc, ModeHybridVector, 0)
	opts.System = "robust04_hyb"

	var buf bytes.Buffer
	_, err := svc.Export(context.Background(), []Query{lightQuery()}, opts, &buf)
	require.NoError(t, err)

	lines := strings.Split(buf.String(), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "1 Q0 D1 0 1.0000 robust04_hyb", lines[0])
	assert.Equal(t, "1 Q0 D2 1 0.2500 robust04_hyb", lines[1])
}

func TestExport_Gzip(t *testing.T) {
	svc, _ := newTestService(t, corpus())
	opts := withMode(svc, ModeText, 0)

	var buf bytes.Buffer
	_, err := svc.Export(context.Background(), exportQueries(), opts, &buf, trec.WithGzip(gzip.BestSpeed))
	require.NoError(t, err)

	zr, err := gzip.NewReader(&buf)
	require.NoError(t, err)
	plain, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(plain), "1 Q0 D2 0 1.00000 bm25\n"))
}

func TestExport_FailureWritesNothing(t *testing.T) {
	fake := corpus()
	fake.TextErr = retrieval.Wrap("fake", "text_search", errors.New("index closed"))
	svc, _ := newTestService(t, fake)

	before := testutil.ToFloat64(ExportsTotal.WithLabelValues("error"))
	var buf bytes.Buffer
	_, err := svc.Export(context.Background(), exportQueries(), withMode(svc, ModeText, 0), &buf)
	require.Error(t, err)

	assert.ErrorIs(t, err, retrieval.ErrRetrieval)
	assert.Zero(t, buf.Len())
	assert.Equal(t, before+1, testutil.ToFloat64(ExportsTotal.WithLabelValues("error")))
}

func TestExport_InvalidOptions(t *testing.T) {
	svc, _ := newTestService(t, corpus())
	opts := svc.Defaults()
	opts.System = "two words"

	_, err := svc.Export(context.Background(), exportQueries(), opts, io.Discard)
	assert.ErrorIs(t, err, ErrInvalidOptions)
}

func TestExport_ConcurrencyOne(t *testing.T) {
	svc, _ := newTestService(t, corpus())
	opts := withMode(svc, ModeText, 0)
	opts.Concurrency = 1

	var serial, parallel bytes.Buffer
	_, err := svc.Export(context.Background(), exportQueries(), opts, &serial)
	require.NoError(t, err)

	opts.Concurrency = 8
	_, err = svc.Export(context.Background(), exportQueries(), opts, &parallel)
	require.NoError(t, err)
	assert.Equal(t, serial.String(), parallel.String())
}

func TestExport_Empty(t *testing.T) {
	svc, _ := newTestService(t, corpus())
	var buf bytes.Buffer

	summary, err := svc.Export(context.Background(), nil, svc.Defaults(), &buf)
	require.NoError(t, err)
	assert.Zero(t, summary.Lines)
	assert.Empty(t, buf.String())
}

func TestSortRuns(t *testing.T) {
	runs := []trec.Run{{QueryID: "10"}, {QueryID: "b"}, {QueryID: "2"}, {QueryID: "a"}, {QueryID: "1"}}
	SortRuns(runs)

	got := make([]string, len(runs))
	for i, r := range runs {
		got[i] = r.QueryID
	}
	assert.Equal(t, []string{"1", "2", "10", "a", "b"}, got)
}
