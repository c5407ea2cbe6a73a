package http

import (
	"bytes"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/stylerank/internal/logging"
	"github.com/fyrsmithlabs/stylerank/internal/ranking"
	"github.com/fyrsmithlabs/stylerank/internal/style"
	"github.com/fyrsmithlabs/stylerank/internal/trec"
)

// handleHealth reports the server and its dependencies. Any failed check
// turns the response into a 503.
func (s *Server) handleHealth(c echo.Context) error {
	resp := HealthResponse{Status: "ok"}
	code := http.StatusOK

	if len(s.checks) > 0 {
		resp.Checks = make(map[string]string, len(s.checks))
		for name, check := range s.checks {
			if err := check(c.Request().Context()); err != nil {
				resp.Checks[name] = err.Error()
				resp.Status = "unavailable"
				code = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
	}
	if s.telemetry != nil && s.telemetry.IsEnabled() {
		h := s.telemetry.Health()
		resp.Telemetry = &h
	}
	return c.JSON(code, resp)
}

// handleSearch ranks documents by text relevance to q.
func (s *Server) handleSearch(c echo.Context) error {
	q := strings.TrimSpace(c.QueryParam("q"))
	if q == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing q param")
	}
	return s.search(c, ranking.Query{Text: q}, s.options(ranking.ModeText))
}

// handleSearchStyle ranks documents by style similarity to vec.
func (s *Server) handleSearchStyle(c echo.Context) error {
	vec, err := vectorParam(c)
	if err != nil {
		return err
	}
	return s.search(c, ranking.Query{Vector: &vec}, s.options(ranking.ModeStyle))
}

// handleSearchHybrid merges text hits for q with style neighbors of vec.
// weight is the style share in percent.
func (s *Server) handleSearchHybrid(c echo.Context) error {
	vec, err := vectorParam(c)
	if err != nil {
		return err
	}
	weight, err := parseWeightPercent(c.QueryParam("weight"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	opts := s.options(ranking.ModeFusion)
	opts.Weight = weight
	q := ranking.Query{Text: strings.TrimSpace(c.QueryParam("q")), Vector: &vec}
	return s.search(c, q, opts)
}

// handleRank ranks a posted query in any mode.
func (s *Server) handleRank(c echo.Context) error {
	var req RankRequest
	if err := c.Bind(&req); err != nil {
		ctx := c.Request().Context()
		logging.FromContext(ctx).Warn(ctx, "invalid rank request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Query.Text) == "" && req.Query.Vector == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "query text or style_vec is required")
	}

	opts, err := s.requestOptions(req.Mode, req.Weight, req.Size)
	if err != nil {
		return err
	}
	return s.search(c, req.Query, opts)
}

// handleStyle explains the style of the posted text.
func (s *Server) handleStyle(c echo.Context) error {
	var req StyleRequest
	if err := c.Bind(&req); err != nil {
		ctx := c.Request().Context()
		logging.FromContext(ctx).Warn(ctx, "invalid style request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Text) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "text field is required")
	}

	if req.Vector != nil {
		return c.JSON(http.StatusOK, style.ExplainWithVector(req.Text, *req.Vector))
	}
	return c.JSON(http.StatusOK, style.Explain(req.Text))
}

// handleExport ranks a query set and returns the run file. The body is
// either an ExportRequest or, for any other content type, a TREC query
// file with options taken from the mode, weight, size and system params.
func (s *Server) handleExport(c echo.Context) error {
	var req ExportRequest
	if strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
		if err := c.Bind(&req); err != nil {
			ctx := c.Request().Context()
			logging.FromContext(ctx).Warn(ctx, "invalid export request", zap.Error(err))
			return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
		}
	} else {
		parsed, err := trec.ParseQueries(c.Request().Body)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		for _, q := range parsed {
			req.Queries = append(req.Queries, ranking.QueryFromTREC(q))
		}
		if err := echo.QueryParamsBinder(c).
			String("mode", &req.Mode).
			Int("size", &req.Size).
			String("system", &req.System).
			BindError(); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		if raw := c.QueryParam("weight"); raw != "" {
			w, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid weight %q", raw))
			}
			req.Weight = &w
		}
	}

	if len(req.Queries) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "no queries")
	}
	if len(req.Queries) > s.config.MaxExportQueries {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge,
			fmt.Sprintf("%d queries exceed the limit of %d", len(req.Queries), s.config.MaxExportQueries))
	}

	size := req.Size
	if size <= 0 {
		size = s.config.ExportSize
	}
	opts, err := s.requestOptions(req.Mode, req.Weight, size)
	if err != nil {
		return err
	}
	if req.System != "" {
		opts.System = req.System
	}

	c.Set(modeKey, string(opts.Mode))
	var buf bytes.Buffer
	summary, err := s.ranking.Export(c.Request().Context(), req.Queries, opts, &buf)
	if err != nil {
		return s.rankError(c, err)
	}
	c.Set(hitsKey, summary.Lines)

	h := c.Response().Header()
	h.Set("X-Run-ID", summary.RunID)
	h.Set("X-Run-System", summary.System)
	h.Set("X-Run-Lines", strconv.Itoa(summary.Lines))
	return c.Blob(http.StatusOK, echo.MIMETextPlainCharsetUTF8, buf.Bytes())
}

func (s *Server) search(c echo.Context, q ranking.Query, opts ranking.Options) error {
	c.Set(modeKey, string(opts.Mode))
	res, err := s.ranking.Rank(c.Request().Context(), q, opts)
	if err != nil {
		return s.rankError(c, err)
	}
	c.Set(hitsKey, len(res.Candidates))
	return c.JSON(http.StatusOK, newSearchResponse(res))
}

// options returns the service defaults switched to mode. System and
// precision are reset so they follow the mode.
func (s *Server) options(mode ranking.Mode) ranking.Options {
	opts := s.ranking.Defaults()
	if opts.Mode != mode {
		opts.Mode = mode
		opts.System = ""
		opts.Precision = 0
	}
	return opts
}

func (s *Server) requestOptions(mode string, weight *float64, size int) (ranking.Options, error) {
	opts := s.ranking.Defaults()
	if mode != "" {
		m, err := ranking.ParseMode(mode)
		if err != nil {
			return ranking.Options{}, echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		opts = s.options(m)
	}
	if weight != nil {
		opts.Weight = *weight
	}
	if size < 0 || size > s.config.ExportSize {
		return ranking.Options{}, echo.NewHTTPError(http.StatusBadRequest,
			fmt.Sprintf("size must be between 1 and %d", s.config.ExportSize))
	}
	if size > 0 {
		opts.Size = size
	}
	if err := opts.Validate(); err != nil {
		return ranking.Options{}, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return opts, nil
}

func vectorParam(c echo.Context) (style.Vector, error) {
	raw := strings.TrimSpace(c.QueryParam("vec"))
	if raw == "" {
		return style.Vector{}, echo.NewHTTPError(http.StatusBadRequest, "missing vec param")
	}
	vec, err := trec.ParseVector(raw)
	if err != nil {
		return style.Vector{}, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return vec, nil
}

// parseWeightPercent converts a percentage to a weight in [0,1]. Values
// outside [0,100] are clamped; empty means the default weight.
func parseWeightPercent(raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ranking.DefaultWeight, nil
	}
	p, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(p) {
		return 0, fmt.Errorf("invalid weight %q", raw)
	}
	return math.Min(math.Max(p, 0), 100) / 100, nil
}
