package main

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/log/global"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/stylerank/internal/config"
	httpapi "github.com/fyrsmithlabs/stylerank/internal/http"
	"github.com/fyrsmithlabs/stylerank/internal/logging"
	"github.com/fyrsmithlabs/stylerank/internal/ranking"
	"github.com/fyrsmithlabs/stylerank/internal/retrieval"
	"github.com/fyrsmithlabs/stylerank/internal/retrieval/chromem"
	"github.com/fyrsmithlabs/stylerank/internal/retrieval/elastic"
	"github.com/fyrsmithlabs/stylerank/internal/retrieval/qdrant"
	"github.com/fyrsmithlabs/stylerank/internal/stylecache"
	"github.com/fyrsmithlabs/stylerank/internal/telemetry"
)

// app holds the services built from configuration.
type app struct {
	cfg       *config.Config
	logger    *logging.Logger
	telemetry *telemetry.Telemetry
	ranking   *ranking.Service
	checks    map[string]httpapi.HealthCheck
	closers   []func() error
}

// loadApp loads the configuration named by --config and builds the app.
func loadApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return newApp(ctx, cfg)
}

// newApp initializes telemetry, logging, the retrieval backends, the style
// cache and the ranking service, in that order.
func newApp(ctx context.Context, cfg *config.Config) (_ *app, err error) {
	a := &app{cfg: cfg, checks: make(map[string]httpapi.HealthCheck)}
	defer func() {
		if err != nil {
			a.Close(context.Background())
		}
	}()

	a.telemetry, err = telemetry.New(ctx, telemetryConfig(cfg.Telemetry),
		telemetry.WithResourceAttributes(
			attribute.String("stylerank.retrieval.text", cfg.Retrieval.Text),
			attribute.String("stylerank.retrieval.vector", cfg.Retrieval.Vector),
			attribute.String("stylerank.cache", cfg.Cache.Backend),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	lc, err := loggingConfig(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("invalid logging config: %w", err)
	}
	logProvider := a.telemetry.LoggerProvider()
	if logProvider == nil {
		logProvider = global.GetLoggerProvider()
	}
	a.logger, err = logging.NewLogger(lc, logProvider)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	r, err := a.newRetriever(ctx)
	if err != nil {
		return nil, err
	}
	store, err := a.newStyleStore(ctx)
	if err != nil {
		return nil, err
	}

	opts, err := ranking.FromConfig(cfg.Ranking)
	if err != nil {
		return nil, fmt.Errorf("invalid ranking config: %w", err)
	}
	a.ranking, err = ranking.NewService(r, stylecache.NewResolver(store, a.logger.Underlying()), a.logger, opts)
	if err != nil {
		return nil, err
	}

	a.logger.Debug(ctx, "stylerank initialized", append([]zap.Field{
		zap.String("text_backend", cfg.Retrieval.Text),
		zap.String("vector_backend", cfg.Retrieval.Vector),
		zap.String("cache", cfg.Cache.Backend),
		zap.String("mode", string(opts.Mode)),
	}, credentialFields(cfg)...)...)
	return a, nil
}

// credentialFields describes the credentials of the backends in use, as
// lengths only.
func credentialFields(cfg *config.Config) []zap.Field {
	uses := func(name string) bool { return cfg.Retrieval.Text == name || cfg.Retrieval.Vector == name }

	var fields []zap.Field
	if uses(config.ProviderElasticsearch) {
		es := cfg.Retrieval.Elasticsearch
		fields = append(fields,
			logging.Secret("elasticsearch.password", es.Password),
			logging.Secret("elasticsearch.api_key", es.APIKey),
		)
	}
	if uses(config.ProviderQdrant) {
		fields = append(fields, logging.Secret("qdrant.api_key", cfg.Retrieval.Qdrant.APIKey))
	}
	if cfg.Cache.Backend == config.CacheRedis {
		fields = append(fields, logging.Secret("redis.password", cfg.Cache.Redis.Password))
	}
	return fields
}

// newRetriever connects the text and vector backends. Lookups by id go to
// the vector backend, which holds the document vectors.
func (a *app) newRetriever(ctx context.Context) (retrieval.Retriever, error) {
	rc := a.cfg.Retrieval
	zl := a.logger.Underlying()

	backends := make(map[string]retrieval.Retriever)
	backend := func(name string) (retrieval.Retriever, error) {
		if b, ok := backends[name]; ok {
			return b, nil
		}
		var b retrieval.Retriever
		switch name {
		case config.ProviderElasticsearch:
			es := rc.Elasticsearch
			c, err := elastic.New(elastic.Config{
				URLs:       es.URLs,
				Index:      es.Index,
				Username:   es.Username,
				Password:   es.Password.Value(),
				APIKey:     es.APIKey.Value(),
				MaxRetries: es.MaxRetries,
			}, zl)
			if err != nil {
				return nil, fmt.Errorf("failed to initialize elasticsearch: %w", err)
			}
			b = c
		case config.ProviderQdrant:
			qc := rc.Qdrant
			s, err := qdrant.New(ctx, qdrant.Config{
				Host:       qc.Host,
				Port:       qc.Port,
				Collection: qc.Collection,
				APIKey:     qc.APIKey.Value(),
				UseTLS:     qc.UseTLS,
				MaxRetries: qc.MaxRetries,
			}, zl)
			if err != nil {
				return nil, fmt.Errorf("failed to initialize qdrant: %w", err)
			}
			a.closers = append(a.closers, s.Close)
			a.checks["qdrant"] = s.HealthCheck
			b = s
		case config.ProviderChromem:
			cc := rc.Chromem
			s, err := chromem.New(chromem.Config{Path: cc.Path, Compress: cc.Compress, Collection: cc.Collection}, zl)
			if err != nil {
				return nil, fmt.Errorf("failed to initialize chromem: %w", err)
			}
			b = s
		default:
			return nil, fmt.Errorf("unknown retrieval provider %q", name)
		}
		b = retrieval.Instrument(b, name, zl)
		backends[name] = b
		return b, nil
	}

	text, err := backend(rc.Text)
	if err != nil {
		return nil, err
	}
	vector, err := backend(rc.Vector)
	if err != nil {
		return nil, err
	}

	var r retrieval.Retriever = &retrieval.Composite{Text: text, Vector: vector, Lookup: vector}
	r = retrieval.WithTimeout(r, rc.Timeout.Duration())
	return retrieval.NewLimited(r, rc.RateLimit, rc.Burst), nil
}

// newStyleStore returns the configured profile cache; nil disables caching.
func (a *app) newStyleStore(ctx context.Context) (stylecache.Store, error) {
	cc := a.cfg.Cache
	switch cc.Backend {
	case config.CacheNone:
		return nil, nil
	case config.CacheRedis:
		r, err := stylecache.NewRedis(ctx, stylecache.RedisConfig{
			Addr:     cc.Redis.Addr,
			Password: cc.Redis.Password.Value(),
			DB:       cc.Redis.DB,
			Prefix:   cc.Redis.Prefix,
			TTL:      cc.Redis.TTL.Duration(),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize style cache: %w", err)
		}
		a.closers = append(a.closers, r.Close)
		a.checks["cache"] = r.HealthCheck
		return stylecache.WithMetrics(r, config.CacheRedis), nil
	default:
		return stylecache.WithMetrics(stylecache.NewMemory(), config.CacheMemory), nil
	}
}

// Close releases backends, flushes the logger and shuts telemetry down.
func (a *app) Close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && a.logger != nil {
			a.logger.Warn(ctx, "closing backend", zap.Error(err))
		}
	}
	a.closers = nil
	if a.logger != nil {
		_ = a.logger.Sync()
	}
	if a.telemetry != nil {
		_ = a.telemetry.Shutdown(ctx)
	}
}

func loggingConfig(c config.LoggingConfig) (*logging.Config, error) {
	lc := logging.NewDefaultConfig()
	level, err := logging.LevelFromString(c.Level)
	if err != nil {
		return nil, err
	}
	lc.Level = level
	if c.Format != "" {
		lc.Format = c.Format
	}
	if c.Stream != "" {
		lc.Output.Stream = c.Stream
	}
	lc.Output.OTEL = c.OTEL
	return lc, lc.Validate()
}

func telemetryConfig(c config.TelemetryConfig) *telemetry.Config {
	tc := telemetry.NewDefaultConfig()
	tc.Enabled = c.Enabled
	if c.Endpoint != "" {
		tc.Endpoint = c.Endpoint
	}
	if c.Protocol != "" {
		tc.Protocol = c.Protocol
	}
	tc.Insecure = c.Insecure
	tc.TLSSkipVerify = c.TLSSkipVerify
	tc.Sampling.Rate = c.SampleRate
	tc.ServiceVersion = c.ServiceVersion
	if tc.ServiceVersion == "" {
		tc.ServiceVersion = version
	}
	return tc
}
