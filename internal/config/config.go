// Package config loads stylerank configuration.
//
// Values are layered: built-in defaults, then an optional YAML file, then
// STYLERANK_* environment variables. See Load.
package config

import (
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"
	"time"
)

// Config is the complete stylerank configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Retrieval RetrievalConfig `koanf:"retrieval"`
	Ranking   RankingConfig   `koanf:"ranking"`
	Cache     CacheConfig     `koanf:"cache"`
	Logging   LoggingConfig   `koanf:"logging"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
	RequestTimeout  Duration `koanf:"request_timeout"`
}

// Addr is the listen address.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, fmt.Sprint(s.Port))
}

// Retrieval providers.
const (
	ProviderElasticsearch = "elasticsearch"
	ProviderQdrant        = "qdrant"
	ProviderChromem       = "chromem"
)

// RetrievalConfig selects and configures the document index. Text search
// and vector search may be served by different providers; lookups by id go
// to the vector provider.
type RetrievalConfig struct {
	Text   string `koanf:"text"`
	Vector string `koanf:"vector"`

	// RateLimit caps retrieval calls per second across all queries; 0
	// disables the limiter.
	RateLimit float64  `koanf:"rate_limit"`
	Burst     int      `koanf:"burst"`
	Timeout   Duration `koanf:"timeout"`

	Elasticsearch ElasticsearchConfig `koanf:"elasticsearch"`
	Qdrant        QdrantConfig        `koanf:"qdrant"`
	Chromem       ChromemConfig       `koanf:"chromem"`
}

// ElasticsearchConfig addresses the Elasticsearch index.
type ElasticsearchConfig struct {
	URLs       []string `koanf:"urls"`
	Index      string   `koanf:"index"`
	Username   string   `koanf:"username"`
	Password   Secret   `koanf:"password"`
	APIKey     Secret   `koanf:"api_key"`
	MaxRetries int      `koanf:"max_retries"`
}

// QdrantConfig addresses the Qdrant collection.
type QdrantConfig struct {
	Host       string `koanf:"host"`
	Port       int    `koanf:"port"`
	Collection string `koanf:"collection"`
	APIKey     Secret `koanf:"api_key"`
	UseTLS     bool   `koanf:"use_tls"`
	MaxRetries int    `koanf:"max_retries"`
}

// ChromemConfig locates the embedded store. An empty path keeps it in
// memory.
type ChromemConfig struct {
	Path       string `koanf:"path"`
	Compress   bool   `koanf:"compress"`
	Collection string `koanf:"collection"`
}

// RankingConfig holds the default ranking options. Mode and normalization
// names are parsed by the ranking package.
type RankingConfig struct {
	Mode          string              `koanf:"mode"`
	Weight        float64             `koanf:"weight"`
	BlendWeights  BlendWeightsConfig  `koanf:"blend_weights"`
	Size          int                 `koanf:"size"`
	ExportSize    int                 `koanf:"export_size"`
	FusionPool    int                 `koanf:"fusion_pool"`
	NumCandidates int                 `koanf:"num_candidates"`
	Fields        []string            `koanf:"fields"`
	Normalization NormalizationConfig `koanf:"normalization"`
	System        string              `koanf:"system"`
	Precision     int                 `koanf:"precision"`
	Concurrency   int                 `koanf:"concurrency"`
}

// BlendWeightsConfig holds the per-signal weights of the blend mode.
type BlendWeightsConfig struct {
	Text    float64 `koanf:"text"`
	Vector  float64 `koanf:"vector"`
	Keyword float64 `koanf:"keyword"`
}

// NormalizationConfig names the rescaling of each signal: "max" or
// "minmax".
type NormalizationConfig struct {
	Text    string `koanf:"text"`
	Vector  string `koanf:"vector"`
	Keyword string `koanf:"keyword"`
}

// Cache backends.
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
	CacheNone   = "none"
)

// CacheConfig selects where computed style profiles are kept.
type CacheConfig struct {
	Backend string      `koanf:"backend"`
	Redis   RedisConfig `koanf:"redis"`
}

// RedisConfig addresses the Redis style cache.
type RedisConfig struct {
	Addr     string   `koanf:"addr"`
	Password Secret   `koanf:"password"`
	DB       int      `koanf:"db"`
	Prefix   string   `koanf:"prefix"`
	TTL      Duration `koanf:"ttl"`
}

// LoggingConfig is the file-facing subset of logging.Config.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Stream string `koanf:"stream"`
	OTEL   bool   `koanf:"otel"`
}

// TelemetryConfig is the file-facing subset of telemetry.Config.
type TelemetryConfig struct {
	Enabled        bool    `koanf:"enabled"`
	Endpoint       string  `koanf:"endpoint"`
	Protocol       string  `koanf:"protocol"`
	Insecure       bool    `koanf:"insecure"`
	TLSSkipVerify  bool    `koanf:"tls_skip_verify"`
	SampleRate     float64 `koanf:"sample_rate"`
	ServiceVersion string  `koanf:"service_version"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            9090,
			ShutdownTimeout: Duration(10 * time.Second),
			RequestTimeout:  Duration(30 * time.Second),
		},
		Retrieval: RetrievalConfig{
			Text:    ProviderElasticsearch,
			Vector:  ProviderElasticsearch,
			Burst:   1,
			Timeout: Duration(10 * time.Second),
			Elasticsearch: ElasticsearchConfig{
				URLs:       []string{"http://localhost:9200"},
				Index:      "documents",
				MaxRetries: 3,
			},
			Qdrant: QdrantConfig{
				Host:       "localhost",
				Port:       6334,
				Collection: "documents",
				MaxRetries: 3,
			},
			Chromem: ChromemConfig{
				Path:       "~/.local/share/stylerank/chromem",
				Compress:   true,
				Collection: "documents",
			},
		},
		Ranking: RankingConfig{
			Mode:          "hybrid-vector",
			Weight:        0.2,
			BlendWeights:  BlendWeightsConfig{Text: 0.8, Vector: 0.1, Keyword: 0.1},
			Size:          20,
			ExportSize:    1000,
			FusionPool:    100,
			NumCandidates: 10000,
			Fields:        []string{"title^2", "body"},
			Normalization: NormalizationConfig{Text: "max", Vector: "max", Keyword: "max"},
			Concurrency:   4,
		},
		Cache: CacheConfig{
			Backend: CacheMemory,
			Redis: RedisConfig{
				Addr:   "localhost:6379",
				Prefix: "stylerank:style:",
				TTL:    Duration(24 * time.Hour),
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Stream: "stderr",
		},
		Telemetry: TelemetryConfig{
			Endpoint:       "localhost:4317",
			Protocol:       "grpc",
			Insecure:       true,
			SampleRate:     1.0,
			ServiceVersion: "0.1.0",
		},
	}
}

// hostPattern rejects shell metacharacters and whitespace in host names.
var hostPattern = regexp.MustCompile(`^[A-Za-z0-9.\-:\[\]]+$`)

// Validate reports every invalid value, joined.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		add("server.port %d outside 1-65535", c.Server.Port)
	}
	if c.Server.ShutdownTimeout.Duration() <= 0 {
		add("server.shutdown_timeout must be positive")
	}

	providers := map[string]bool{ProviderElasticsearch: true, ProviderQdrant: true, ProviderChromem: true}
	if !providers[c.Retrieval.Text] {
		add("retrieval.text: unknown provider %q", c.Retrieval.Text)
	} else if c.Retrieval.Text != ProviderElasticsearch {
		add("retrieval.text: %s has no full-text search", c.Retrieval.Text)
	}
	if !providers[c.Retrieval.Vector] {
		add("retrieval.vector: unknown provider %q", c.Retrieval.Vector)
	}
	if c.Retrieval.RateLimit < 0 {
		add("retrieval.rate_limit must not be negative")
	}
	if c.Retrieval.RateLimit > 0 && c.Retrieval.Burst < 1 {
		add("retrieval.burst must be at least 1 when rate limiting")
	}
	if c.uses(ProviderElasticsearch) && len(c.Retrieval.Elasticsearch.URLs) == 0 {
		add("retrieval.elasticsearch.urls required")
	}
	if c.uses(ProviderQdrant) && !hostPattern.MatchString(c.Retrieval.Qdrant.Host) {
		add("retrieval.qdrant.host %q is not a valid host", c.Retrieval.Qdrant.Host)
	}

	r := c.Ranking
	if r.Weight < 0 || r.Weight > 1 {
		add("ranking.weight %v outside [0,1]", r.Weight)
	}
	if r.BlendWeights.Text < 0 || r.BlendWeights.Vector < 0 || r.BlendWeights.Keyword < 0 {
		add("ranking.blend_weights must not be negative")
	}
	if r.Size < 1 {
		add("ranking.size must be positive")
	}
	if r.ExportSize < 1 {
		add("ranking.export_size must be positive")
	}
	if r.Concurrency < 1 {
		add("ranking.concurrency must be positive")
	}
	if r.Precision < 0 {
		add("ranking.precision must not be negative")
	}
	if strings.ContainsAny(r.System, " \t\n") {
		add("ranking.system %q contains whitespace", r.System)
	}

	switch c.Cache.Backend {
	case CacheMemory, CacheNone:
	case CacheRedis:
		if c.Cache.Redis.Addr == "" {
			add("cache.redis.addr required")
		}
	default:
		add("cache.backend: unknown backend %q", c.Cache.Backend)
	}

	if c.Telemetry.Enabled && (c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1) {
		add("telemetry.sample_rate %v outside [0,1]", c.Telemetry.SampleRate)
	}

	return errors.Join(errs...)
}

func (c *Config) uses(provider string) bool {
	return c.Retrieval.Text == provider || c.Retrieval.Vector == provider
}
