package logging

import (
	"context"
	"fmt"
	"regexp"
	"unicode/utf8"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ContextFields extracts correlation fields from ctx: the OpenTelemetry
// trace and span, and the run, query and request ids.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 6)

	if sc := trace.SpanFromContext(ctx).SpanContext(); sc.IsValid() {
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
		if sc.IsSampled() {
			fields = append(fields, zap.Bool("trace_sampled", true))
		}
	}
	if id := RunIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("run.id", id))
	}
	if id := QueryIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("query.id", id))
	}
	if id := RequestIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("request.id", id))
	}
	return fields
}

type runCtxKey struct{}
type queryCtxKey struct{}
type requestCtxKey struct{}

const maxIDLen = 128

// idPattern covers uuids and corpus keys such as "301", "Q-12" or "FT911-3".
var idPattern = regexp.MustCompile(`^[a-zA-Z0-9_.:-]+$`)

func validateID(id, name string) error {
	if id == "" {
		return fmt.Errorf("%s cannot be empty", name)
	}
	if !utf8.ValidString(id) {
		return fmt.Errorf("%s contains invalid UTF-8", name)
	}
	if len(id) > maxIDLen {
		return fmt.Errorf("%s exceeds max length %d", name, maxIDLen)
	}
	if !idPattern.MatchString(id) {
		return fmt.Errorf("%s contains invalid characters", name)
	}
	return nil
}

// ValidID reports whether id can tag a context without panicking.
func ValidID(id string) bool {
	return validateID(id, "id") == nil
}

func stringValue(ctx context.Context, key any) string {
	if s, ok := ctx.Value(key).(string); ok {
		return s
	}
	return ""
}

// RunIDFromContext returns the ranking run id, or "".
func RunIDFromContext(ctx context.Context) string { return stringValue(ctx, runCtxKey{}) }

// WithRunID tags ctx with a ranking run id. A run covers one interactive
// ranking request or one whole export.
// Panics if runID is empty or malformed.
func WithRunID(ctx context.Context, runID string) context.Context {
	if err := validateID(runID, "runID"); err != nil {
		panic(fmt.Sprintf("logging: %v", err))
	}
	return context.WithValue(ctx, runCtxKey{}, runID)
}

// QueryIDFromContext returns the query id, or "".
func QueryIDFromContext(ctx context.Context) string { return stringValue(ctx, queryCtxKey{}) }

// WithQueryID tags ctx with the id of the query being ranked. Ids that
// cannot be logged safely are dropped rather than rejected since they come
// from input files.
func WithQueryID(ctx context.Context, queryID string) context.Context {
	if validateID(queryID, "queryID") != nil {
		return ctx
	}
	return context.WithValue(ctx, queryCtxKey{}, queryID)
}

// RequestIDFromContext returns the HTTP request id, or "".
func RequestIDFromContext(ctx context.Context) string { return stringValue(ctx, requestCtxKey{}) }

// WithRequestID tags ctx with an HTTP request id.
// Panics if requestID is empty or malformed.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if err := validateID(requestID, "requestID"); err != nil {
		panic(fmt.Sprintf("logging: %v", err))
	}
	return context.WithValue(ctx, requestCtxKey{}, requestID)
}

type loggerCtxKey struct{}

// WithLogger stores logger in ctx.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, logger)
}

// FromContext returns the logger stored in ctx, or a no-op logger.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerCtxKey{}).(*Logger); ok {
		return l
	}
	return NewNop()
}
