// Package http serves the ranking API.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/stylerank/internal/logging"
	"github.com/fyrsmithlabs/stylerank/internal/ranking"
	"github.com/fyrsmithlabs/stylerank/internal/retrieval"
	"github.com/fyrsmithlabs/stylerank/internal/telemetry"
)

// Server provides HTTP endpoints for ranking and style analysis.
type Server struct {
	echo      *echo.Echo
	ranking   *ranking.Service
	logger    *logging.Logger
	config    *Config
	telemetry *telemetry.Telemetry
	checks    map[string]HealthCheck
	metrics   *HTTPMetrics
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int

	// RequestTimeout bounds each request's context. Zero disables it.
	RequestTimeout time.Duration

	// ExportSize is the default run depth of POST /api/v1/export.
	ExportSize int

	// MaxExportQueries caps the queries of one export request.
	MaxExportQueries int

	// BodyLimit caps request bodies, e.g. "10M".
	BodyLimit string
}

// HealthCheck probes a dependency. A non-nil error marks it down.
type HealthCheck func(ctx context.Context) error

// Option configures a Server.
type Option func(*Server)

// WithTelemetry reports the telemetry pipeline's state on /health.
func WithTelemetry(t *telemetry.Telemetry) Option {
	return func(s *Server) { s.telemetry = t }
}

// WithHealthCheck adds a dependency probe to /health.
func WithHealthCheck(name string, check HealthCheck) Option {
	return func(s *Server) { s.checks[name] = check }
}

// WithMetrics records request metrics with m.
func WithMetrics(m *HTTPMetrics) Option {
	return func(s *Server) { s.metrics = m }
}

// NewServer creates a new HTTP server.
func NewServer(svc *ranking.Service, logger *logging.Logger, cfg *Config, opts ...Option) (*Server, error) {
	if svc == nil {
		return nil, fmt.Errorf("ranking service cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{Host: "localhost", Port: 9090}
	}
	if cfg.ExportSize <= 0 {
		cfg.ExportSize = ranking.DefaultExportSize
	}
	if cfg.MaxExportQueries <= 0 {
		cfg.MaxExportQueries = 1000
	}
	if cfg.BodyLimit == "" {
		cfg.BodyLimit = "10M"
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.JSONSerializer = jsonSerializer{}

	s := &Server{
		echo:    e,
		ranking: svc,
		logger:  logger.Named("http"),
		config:  cfg,
		checks:  make(map[string]HealthCheck),
	}
	for _, opt := range opts {
		opt(s)
	}
	e.HTTPErrorHandler = s.handleError

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(s.requestContext)
	if s.metrics != nil {
		e.Use(s.metrics.MetricsMiddleware())
	}
	e.Use(s.requestLog)
	e.Use(middleware.BodyLimit(cfg.BodyLimit))

	s.registerRoutes()
	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.GET("/search", s.handleSearch)
	v1.GET("/search_style", s.handleSearchStyle)
	v1.GET("/search_hybrid", s.handleSearchHybrid)
	v1.POST("/rank", s.handleRank)
	v1.POST("/style", s.handleStyle)
	v1.POST("/export", s.handleExport)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// requestContext tags the request context with the request id and a logger
// scoped to the matched route, and applies the request timeout.
// Client-supplied ids that cannot be logged are replaced.
func (s *Server) requestContext(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := c.Response().Header().Get(echo.HeaderXRequestID)
		if !logging.ValidID(id) {
			id = uuid.NewString()
			c.Response().Header().Set(echo.HeaderXRequestID, id)
		}

		req := c.Request()
		ctx := logging.WithRequestID(req.Context(), id)
		ctx = logging.WithLogger(ctx, s.logger.With(
			zap.String("http.method", req.Method),
			zap.String("http.route", c.Path()),
		))
		if s.config.RequestTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.config.RequestTimeout)
			defer cancel()
		}
		c.SetRequest(req.WithContext(ctx))
		return next(c)
	}
}

func (s *Server) requestLog(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		if err != nil {
			// Render now so the logged status is the one the client sees.
			c.Error(err)
		}

		s.logger.Info(c.Request().Context(), "http request",
			zap.String("method", c.Request().Method),
			zap.String("uri", c.Request().RequestURI),
			zap.Int("status", c.Response().Status),
			zap.Duration("duration", time.Since(start)),
		)
		return nil
	}
}

// handleError renders errors as ErrorResponse.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	msg := http.StatusText(code)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		msg = fmt.Sprint(he.Message)
	} else {
		s.logger.Error(c.Request().Context(), "unhandled error", zap.Error(err))
	}

	body := ErrorResponse{Error: msg, RequestID: c.Response().Header().Get(echo.HeaderXRequestID)}
	if err := c.JSON(code, body); err != nil {
		s.logger.Warn(c.Request().Context(), "writing error response", zap.Error(err))
	}
}

// rankError maps a ranking failure to an HTTP error.
func (s *Server) rankError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, ranking.ErrInvalidOptions):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return echo.NewHTTPError(http.StatusGatewayTimeout, "ranking timed out")
	case errors.Is(err, retrieval.ErrRetrieval):
		ctx := c.Request().Context()
		logging.FromContext(ctx).Warn(ctx, "retrieval backend failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadGateway, "retrieval backend unavailable")
	default:
		return err
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}
