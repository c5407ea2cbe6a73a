package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/fyrsmithlabs/stylerank/internal/config"
	"github.com/fyrsmithlabs/stylerank/internal/logging"
	"github.com/fyrsmithlabs/stylerank/internal/ranking"
	"github.com/fyrsmithlabs/stylerank/internal/retrieval"
	"github.com/fyrsmithlabs/stylerank/internal/retrieval/retrievaltest"
	"github.com/fyrsmithlabs/stylerank/internal/style"
	"github.com/fyrsmithlabs/stylerank/internal/stylecache"
	"github.com/fyrsmithlabs/stylerank/internal/trec"
)

var (
	formalVec = style.Vector{0.5, 10, 0.1, 60}
	lightVec  = style.Vector{0.9, 25, 0, 20}
)

const topics = `<DOCS>
<DOC><recordId>2</recordId><text>cats</text><style_vec>0.9,25,0,20</style_vec></DOC>
<DOC><recordId>1</recordId><text>dogs</text></DOC>
</DOCS>`

func newTestService(t *testing.T) *ranking.Service {
	t.Helper()
	fake := retrievaltest.New(
		retrieval.Source{ExternalID: "D1", Title: "cats", Body: "cats cats sleep", StyleVec: &formalVec, StyleKeywords: style.KeywordSet{"formal", "dense"}},
		retrieval.Source{ExternalID: "D2", Title: "dogs", Body: "cats run", StyleVec: &lightVec, StyleKeywords: style.KeywordSet{"light"}},
		retrieval.Source{ExternalID: "D3", Body: "cats"},
		retrieval.Source{ExternalID: "D4", Title: "birds", Body: "birds fly", StyleVec: &formalVec},
	)
	svc, err := ranking.NewService(fake, stylecache.NewResolver(stylecache.NewMemory(), nil), logging.NewNop(), ranking.DefaultOptions())
	require.NoError(t, err)
	return svc
}

func parseTopics(t *testing.T) []trec.Query {
	t.Helper()
	qs, err := trec.ParseQueries(strings.NewReader(topics))
	require.NoError(t, err)
	return qs
}

func flagsCommand(t *testing.T, args ...string) (*cobra.Command, *runFlags) {
	t.Helper()
	cmd := &cobra.Command{Use: "test"}
	f := &runFlags{}
	f.register(cmd)
	require.NoError(t, cmd.Flags().Parse(args))
	return cmd, f
}

func TestRootCmd_Subcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, cmd := range rootCmd.Commands() {
		names[cmd.Name()] = true
		assert.NotEmpty(t, cmd.Short, "%s has no short description", cmd.Name())
		assert.NotEmpty(t, cmd.Long, "%s has no long description", cmd.Name())
	}
	for _, want := range []string{"serve", "style", "rank", "export"} {
		assert.True(t, names[want], "missing %s command", want)
	}
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("config"))
}

func TestRunFlags_Options(t *testing.T) {
	defaults := ranking.DefaultOptions()
	defaults.System = "configured"
	defaults.Precision = 6

	t.Run("no flags keeps defaults", func(t *testing.T) {
		cmd, f := flagsCommand(t)
		opts, err := f.options(cmd, defaults)
		require.NoError(t, err)
		assert.Equal(t, defaults, opts)
	})

	t.Run("mode change drops run-file defaults", func(t *testing.T) {
		cmd, f := flagsCommand(t, "--mode", "TEXT")
		opts, err := f.options(cmd, defaults)
		require.NoError(t, err)
		assert.Equal(t, ranking.ModeText, opts.Mode)
		assert.Empty(t, opts.System)
		assert.Zero(t, opts.Precision)
		assert.Equal(t, defaults.Weight, opts.Weight)
	})

	t.Run("explicit weight size and system", func(t *testing.T) {
		cmd, f := flagsCommand(t, "-w", "0.6", "-n", "5", "--system", "hv60")
		opts, err := f.options(cmd, defaults)
		require.NoError(t, err)
		assert.Equal(t, 0.6, opts.Weight)
		assert.Equal(t, 5, opts.Size)
		assert.Equal(t, "hv60", opts.System)
	})

	t.Run("zero weight is honored", func(t *testing.T) {
		cmd, f := flagsCommand(t, "--weight", "0")
		opts, err := f.options(cmd, defaults)
		require.NoError(t, err)
		assert.Zero(t, opts.Weight)
	})

	for _, args := range [][]string{
		{"--mode", "bogus"},
		{"--weight", "1.5"},
		{"--weight", "NaN"},
		{"--size", "-1"},
		{"--system", "two words"},
	} {
		t.Run(strings.Join(args, " "), func(t *testing.T) {
			cmd, f := flagsCommand(t, args...)
			_, err := f.options(cmd, defaults)
			assert.ErrorIs(t, err, ranking.ErrInvalidOptions)
		})
	}
}

func TestRunFlags_Queries(t *testing.T) {
	_, f := flagsCommand(t)
	_, err := f.queries()
	assert.ErrorContains(t, err, "--query-file is required")

	dir := t.TempDir()
	f.queryFile = filepath.Join(dir, "topics.xml")
	require.NoError(t, os.WriteFile(f.queryFile, []byte(topics), 0o600))
	qs, err := f.queries()
	require.NoError(t, err)
	require.Len(t, qs, 2)
	assert.Equal(t, "2", qs[0].ID)
	require.NotNil(t, qs[0].Vector)
	assert.Equal(t, lightVec, *qs[0].Vector)

	f.queryFile = filepath.Join(dir, "empty.xml")
	require.NoError(t, os.WriteFile(f.queryFile, []byte("<DOCS></DOCS>"), 0o600))
	_, err = f.queries()
	assert.ErrorContains(t, err, "no queries")

	f.queryFile = filepath.Join(dir, "missing.xml")
	_, err = f.queries()
	assert.Error(t, err)
}

func TestSelectQueries(t *testing.T) {
	qs := parseTopics(t)

	all, err := selectQueries(qs, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	picked, err := selectQueries(qs, []string{"1", "2"})
	require.NoError(t, err)
	require.Len(t, picked, 2)
	assert.Equal(t, "1", picked[0].ID)
	assert.Equal(t, "2", picked[1].ID)

	_, err = selectQueries(qs, []string{"404"})
	assert.ErrorContains(t, err, `query "404" not found`)
}

func TestRankQueries(t *testing.T) {
	svc := newTestService(t)
	qs, err := selectQueries(parseTopics(t), []string{"2"})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, rankQueries(context.Background(), svc, qs, svc.Defaults(), &buf))

	out := buf.String()
	assert.Contains(t, out, "query 2 (hybrid-vector, weight 0.20): cats")
	assert.Contains(t, out, "style 0.9,25,0,20")
	assert.Contains(t, out, "RANK  DOC")

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 6)
	row := strings.Fields(lines[3])
	assert.Equal(t, []string{"1", "D1"}, row[:2])
	// hybrid-vector does not score keywords
	assert.Equal(t, "-", row[5])
}

func TestRankQueries_Failure(t *testing.T) {
	fake := retrievaltest.New()
	fake.TextErr = retrieval.Wrap("fake", "text_search", io.ErrUnexpectedEOF)
	svc, err := ranking.NewService(fake, nil, logging.NewNop(), ranking.DefaultOptions())
	require.NoError(t, err)

	var buf bytes.Buffer
	err = rankQueries(context.Background(), svc, parseTopics(t), svc.Defaults(), &buf)
	assert.ErrorIs(t, err, retrieval.ErrRetrieval)
	assert.ErrorContains(t, err, "query 2")
}

func TestExportRun(t *testing.T) {
	svc := newTestService(t)
	opts := svc.Defaults()
	opts.Mode = ranking.ModeText
	opts.System = ""
	opts.Precision = 0
	want := strings.Join([]string{
		"1 Q0 D2 0 1.00000 bm25",
		"2 Q0 D1 0 1.00000 bm25",
		"2 Q0 D2 1 0.25000 bm25",
		"2 Q0 D3 2 0.25000 bm25",
	}, "\n")

	t.Run("stdout", func(t *testing.T) {
		var buf bytes.Buffer
		summary, err := exportRun(context.Background(), svc, parseTopics(t), opts, "-", &buf)
		require.NoError(t, err)
		assert.Equal(t, want, buf.String())
		assert.Equal(t, 2, summary.Queries)
		assert.Equal(t, 4, summary.Lines)
	})

	t.Run("gzip file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "run.trec.gz")
		var stdout bytes.Buffer
		_, err := exportRun(context.Background(), svc, parseTopics(t), opts, path, &stdout)
		require.NoError(t, err)
		assert.Zero(t, stdout.Len())

		f, err := os.Open(path)
		require.NoError(t, err)
		defer f.Close()
		zr, err := gzip.NewReader(f)
		require.NoError(t, err)
		plain, err := io.ReadAll(zr)
		require.NoError(t, err)
		assert.Equal(t, want, string(plain))
	})

	t.Run("failure removes the file", func(t *testing.T) {
		fake := retrievaltest.New()
		fake.TextErr = retrieval.Wrap("fake", "text_search", io.ErrUnexpectedEOF)
		broken, err := ranking.NewService(fake, nil, logging.NewNop(), opts)
		require.NoError(t, err)

		path := filepath.Join(t.TempDir(), "run.trec")
		_, err = exportRun(context.Background(), broken, parseTopics(t), opts, path, io.Discard)
		require.Error(t, err)
		_, statErr := os.Stat(path)
		assert.True(t, os.IsNotExist(statErr))
	})
}

func TestWriteExplanation(t *testing.T) {
	e := style.Explain("The cat sat. The dog ran fast.")

	var js bytes.Buffer
	require.NoError(t, writeExplanation(&js, e, "json"))
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(js.Bytes(), &decoded))
	assert.EqualValues(t, 7, decoded["words_count"])
	assert.EqualValues(t, 2, decoded["sentence_count"])

	var ym bytes.Buffer
	require.NoError(t, writeExplanation(&ym, e, "YAML"))
	var fromYAML map[string]any
	require.NoError(t, yaml.Unmarshal(ym.Bytes(), &fromYAML))
	assert.Equal(t, 7, fromYAML["words_count"])
	assert.Contains(t, ym.String(), "- very-short-sentences")

	assert.ErrorContains(t, writeExplanation(io.Discard, e, "xml"), "unknown output format")
}

func TestStyleCmd_Stdin(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetIn(strings.NewReader("The cat sat. The dog ran fast."))
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"style", "-", "--output", "json"})
	t.Cleanup(func() {
		rootCmd.SetIn(nil)
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	require.NoError(t, rootCmd.Execute())

	var e style.Explanation
	require.NoError(t, json.Unmarshal(out.Bytes(), &e))
	assert.Equal(t, 7, e.Words)
	assert.True(t, e.Keywords.Contains("very-concise"))
}

func TestReadInput(t *testing.T) {
	got, err := readInput(strings.NewReader("from stdin"), nil)
	require.NoError(t, err)
	assert.Equal(t, "from stdin", string(got))

	path := filepath.Join(t.TempDir(), "essay.txt")
	require.NoError(t, os.WriteFile(path, []byte("from file"), 0o600))
	got, err = readInput(nil, []string{path})
	require.NoError(t, err)
	assert.Equal(t, "from file", string(got))

	_, err = readInput(nil, []string{path + ".missing"})
	assert.ErrorContains(t, err, "failed to read file")
}

func TestLoggingConfig(t *testing.T) {
	lc, err := loggingConfig(config.LoggingConfig{Level: "debug", Format: "console", Stream: "stdout", OTEL: true})
	require.NoError(t, err)
	assert.Equal(t, zapcore.DebugLevel, lc.Level)
	assert.Equal(t, "console", lc.Format)
	assert.Equal(t, "stdout", lc.Output.Stream)
	assert.True(t, lc.Output.OTEL)

	_, err = loggingConfig(config.LoggingConfig{Level: "loud"})
	assert.Error(t, err)
}

func TestTelemetryConfig(t *testing.T) {
	tc := telemetryConfig(config.TelemetryConfig{Enabled: true, Endpoint: "collector:4318", Protocol: "http/protobuf", SampleRate: 0.5})
	assert.True(t, tc.Enabled)
	assert.Equal(t, "collector:4318", tc.Endpoint)
	assert.Equal(t, "http/protobuf", tc.Protocol)
	assert.Equal(t, 0.5, tc.Sampling.Rate)
	assert.Equal(t, version, tc.ServiceVersion)

	tc = telemetryConfig(config.TelemetryConfig{ServiceVersion: "1.2.3"})
	assert.Equal(t, "1.2.3", tc.ServiceVersion)
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Retrieval.Vector = config.ProviderChromem
	cfg.Retrieval.Chromem.Path = ""
	cfg.Logging.Level = "error"
	return cfg
}

func TestNewApp(t *testing.T) {
	a, err := newApp(context.Background(), testConfig())
	require.NoError(t, err)
	defer a.Close(context.Background())

	require.NotNil(t, a.ranking)
	assert.Equal(t, ranking.ModeHybridVector, a.ranking.Defaults().Mode)
	assert.Empty(t, a.checks)

	srv, err := a.newServer()
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCredentialFields(t *testing.T) {
	cfg := testConfig()
	cfg.Retrieval.Text = config.ProviderChromem
	assert.Empty(t, credentialFields(cfg))

	cfg.Retrieval.Text = config.ProviderElasticsearch
	cfg.Retrieval.Elasticsearch.Password = "hunter2"
	cfg.Cache.Backend = config.CacheRedis
	cfg.Cache.Redis.Password = "pw"

	enc := zapcore.NewMapObjectEncoder()
	for _, f := range credentialFields(cfg) {
		f.AddTo(enc)
	}
	assert.Equal(t, map[string]any{
		"elasticsearch.password": "[REDACTED:7]",
		"elasticsearch.api_key":  "[REDACTED:0]",
		"redis.password":         "[REDACTED:2]",
	}, enc.Fields)
}

func TestNewApp_Errors(t *testing.T) {
	cfg := testConfig()
	cfg.Retrieval.Vector = "faiss"
	_, err := newApp(context.Background(), cfg)
	assert.ErrorContains(t, err, `unknown retrieval provider "faiss"`)

	cfg = testConfig()
	cfg.Ranking.Mode = "sideways"
	_, err = newApp(context.Background(), cfg)
	assert.ErrorIs(t, err, ranking.ErrInvalidOptions)

	cfg = testConfig()
	cfg.Logging.Level = "loud"
	_, err = newApp(context.Background(), cfg)
	assert.ErrorContains(t, err, "invalid logging config")
}

func TestApp_Reload(t *testing.T) {
	a, err := newApp(context.Background(), testConfig())
	require.NoError(t, err)
	defer a.Close(context.Background())

	changed := testConfig()
	changed.Ranking.Mode = "fusion"
	changed.Ranking.Weight = 0.7
	a.reload(changed)
	assert.Equal(t, ranking.ModeFusion, a.ranking.Defaults().Mode)
	assert.Equal(t, 0.7, a.ranking.Defaults().Weight)

	bad := testConfig()
	bad.Ranking.Mode = "sideways"
	a.reload(bad)
	assert.Equal(t, ranking.ModeFusion, a.ranking.Defaults().Mode)
}

func TestResolvedConfigPath(t *testing.T) {
	old := configPath
	t.Cleanup(func() { configPath = old })

	configPath = "/etc/stylerank/config.toml"
	got, err := resolvedConfigPath()
	require.NoError(t, err)
	assert.Equal(t, "/etc/stylerank/config.toml", got)

	configPath = ""
	got, err = resolvedConfigPath()
	require.NoError(t, err)
	assert.Equal(t, "config.yaml", filepath.Base(got))
}
