package http

import (
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const httpInstrumentationName = "github.com/fyrsmithlabs/stylerank/internal/http"

// modeKey is the echo context key under which handlers record the ranking
// mode they ran, so request metrics can be split by mode.
const modeKey = "stylerank.mode"

// HTTPMetrics records request counts, latency, response sizes and the
// number of documents each ranking request returned.
type HTTPMetrics struct {
	meter    metric.Meter
	logger   *zap.Logger
	requests metric.Int64Counter
	duration metric.Float64Histogram
	size     metric.Int64Histogram
	hits     metric.Int64Histogram
	inFlight metric.Int64UpDownCounter
}

// NewHTTPMetrics creates the instruments on meter. A nil meter uses the
// global meter provider. Instruments that fail to register are skipped.
func NewHTTPMetrics(meter metric.Meter, logger *zap.Logger) *HTTPMetrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	if meter == nil {
		meter = otel.Meter(httpInstrumentationName)
	}
	m := &HTTPMetrics{meter: meter, logger: logger}

	var err error
	m.requests, err = meter.Int64Counter("stylerank.http.requests_total",
		metric.WithDescription("HTTP requests by method, endpoint, status and ranking mode"),
		metric.WithUnit("{request}"))
	m.warn("requests_total", err)

	m.duration, err = meter.Float64Histogram("stylerank.http.request_duration_seconds",
		metric.WithDescription("HTTP request latency. Export requests rank whole query sets and land in the upper buckets."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60))
	m.warn("request_duration_seconds", err)

	m.size, err = meter.Int64Histogram("stylerank.http.response_size_bytes",
		metric.WithDescription("Response body size; run files dominate the tail"),
		metric.WithUnit("By"),
		metric.WithExplicitBucketBoundaries(256, 1024, 4096, 16384, 65536, 262144, 1048576, 4194304))
	m.warn("response_size_bytes", err)

	m.hits, err = meter.Int64Histogram("stylerank.http.ranked_documents",
		metric.WithDescription("Documents returned per ranking request, or run-file lines per export"),
		metric.WithUnit("{document}"),
		metric.WithExplicitBucketBoundaries(0, 1, 5, 10, 20, 50, 100, 1000, 10000, 100000))
	m.warn("ranked_documents", err)

	m.inFlight, err = meter.Int64UpDownCounter("stylerank.http.active_requests",
		metric.WithDescription("Requests currently being served"),
		metric.WithUnit("{request}"))
	m.warn("active_requests", err)

	return m
}

func (m *HTTPMetrics) warn(name string, err error) {
	if err != nil {
		m.logger.Warn("failed to create http instrument", zap.String("instrument", name), zap.Error(err))
	}
}

// MetricsMiddleware returns an echo middleware recording the request after
// the handler and error handler have produced the response.
func (m *HTTPMetrics) MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			start := time.Now()
			if m.inFlight != nil {
				m.inFlight.Add(ctx, 1)
				defer m.inFlight.Add(ctx, -1)
			}

			err := next(c)

			attrs := metric.WithAttributes(
				attribute.String("method", c.Request().Method),
				attribute.String("endpoint", normalizePath(c.Path())),
				attribute.Int("status", c.Response().Status),
				attribute.String("mode", requestMode(c)),
			)
			if m.requests != nil {
				m.requests.Add(ctx, 1, attrs)
			}
			if m.duration != nil {
				m.duration.Record(ctx, time.Since(start).Seconds(), attrs)
			}
			if m.size != nil {
				m.size.Record(ctx, c.Response().Size, attrs)
			}
			if n, ok := c.Get(hitsKey).(int); ok && m.hits != nil {
				m.hits.Record(ctx, int64(n), attrs)
			}
			return err
		}
	}
}

// hitsKey holds the number of ranked documents a handler returned.
const hitsKey = "stylerank.hits"

func requestMode(c echo.Context) string {
	if mode, ok := c.Get(modeKey).(string); ok {
		return mode
	}
	return "none"
}

// normalizePath maps the matched route to a metric label. Every route is
// static, so only unmatched requests need folding.
func normalizePath(path string) string {
	if path == "" {
		return "/"
	}
	return path
}
