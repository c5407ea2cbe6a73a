package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/stylerank/internal/config"
	httpapi "github.com/fyrsmithlabs/stylerank/internal/http"
	"github.com/fyrsmithlabs/stylerank/internal/ranking"
)

var serveWatch bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API",
	Long: `Serve the search, style and export endpoints over HTTP.

Examples:
  # Serve with the default config file
  stylerank serve

  # Reload ranking defaults whenever the config file changes
  stylerank serve --config ~/.config/stylerank/config.yaml --watch`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveWatch, "watch", false, "reload ranking defaults when the config file changes")
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	srv, err := a.newServer()
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	if serveWatch {
		path, err := resolvedConfigPath()
		if err != nil {
			return err
		}
		g.Go(func() error {
			return config.Watch(ctx, path, a.reload, func(err error) {
				a.logger.Warn(ctx, "config reload failed", zap.Error(err))
			})
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout.Duration())
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	a.logger.Info(context.Background(), "server shutdown complete")
	return err
}

// newServer builds the HTTP server with the app's health checks and
// request metrics.
func (a *app) newServer() (*httpapi.Server, error) {
	sc := a.cfg.Server
	opts := []httpapi.Option{
		httpapi.WithTelemetry(a.telemetry),
		httpapi.WithMetrics(httpapi.NewHTTPMetrics(a.telemetry.Meter("stylerank/http"), a.logger.Underlying())),
	}
	for name, check := range a.checks {
		opts = append(opts, httpapi.WithHealthCheck(name, check))
	}
	return httpapi.NewServer(a.ranking, a.logger, &httpapi.Config{
		Host:           sc.Host,
		Port:           sc.Port,
		RequestTimeout: sc.RequestTimeout.Duration(),
		ExportSize:     a.cfg.Ranking.ExportSize,
	}, opts...)
}

// reload swaps in the ranking defaults of a changed config file. Backend
// and server settings need a restart.
func (a *app) reload(cfg *config.Config) {
	ctx := context.Background()
	opts, err := ranking.FromConfig(cfg.Ranking)
	if err == nil {
		err = a.ranking.SetDefaults(opts)
	}
	if err != nil {
		a.logger.Warn(ctx, "config reload rejected", zap.Error(err))
		return
	}
	a.logger.Info(ctx, "ranking defaults reloaded",
		zap.String("mode", string(opts.Mode)),
		zap.Float64("weight", opts.Weight),
	)
}

func resolvedConfigPath() (string, error) {
	if configPath != "" {
		return configPath, nil
	}
	dir, err := config.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}
