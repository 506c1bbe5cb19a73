package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/exec"
	"time"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/deltacov/pkg/mcp"
	"github.com/Sumatoshi-tech/deltacov/pkg/observability"
	"github.com/Sumatoshi-tech/deltacov/pkg/version"
)

const (
	serverReadTimeout     = 30 * time.Second
	serverWriteTimeout    = 10 * time.Minute
	serverIdleTimeout     = 2 * time.Minute
	serverShutdownTimeout = 10 * time.Second

	mcpPath     = "/mcp"
	metricsPath = "/metrics"
	healthPath  = "/healthz"
	readyPath   = "/readyz"
)

// errGitUnavailable is reported by readiness when no git binary is on PATH.
var errGitUnavailable = errors.New("git executable not found")

// NewMCPCommand creates the MCP server command.
func NewMCPCommand() *cobra.Command {
	var (
		debug    bool
		httpAddr string
	)

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start MCP server for AI agent integration",
		Long: `Start a Model Context Protocol (MCP) server, on stdio by default or on
streamable HTTP with --http.

The server exposes one tool:
  - deltacov_check: delta coverage of a revision range against gcovr reports

In HTTP mode the server also serves /metrics, /healthz and /readyz.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cobraCmd *cobra.Command, _ []string) error {
			cfg := observabilityConfig(observability.ModeMCP, debug, cobraCmd.ErrOrStderr())
			cfg.LogJSON = true
			cfg.Prometheus = httpAddr != ""

			providers, err := observability.Init(cfg)
			if err != nil {
				return fmt.Errorf("init observability: %w", err)
			}

			defer func() {
				shutdownErr := providers.Shutdown(context.Background())
				if shutdownErr != nil {
					providers.Logger.Warn("observability shutdown failed", "error", shutdownErr)
				}
			}()

			srv, err := newMCPServer(providers)
			if err != nil {
				return err
			}

			ctx := cobraCmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			if httpAddr == "" {
				return srv.Run(ctx)
			}

			handler, err := mcpHTTPHandler(srv, providers)
			if err != nil {
				return err
			}

			return serveHTTP(ctx, httpAddr, handler, providers.Logger)
		},
	}

	cmd.Flags().BoolVar(&debug, "debug", false, "Enable debug logging to stderr")
	cmd.Flags().StringVar(&httpAddr, "http", "", "serve streamable HTTP on this address (e.g. :8080) instead of stdio")

	return cmd
}

func newMCPServer(providers observability.Providers) (*mcp.Server, error) {
	red, err := observability.NewREDMetrics(providers.Meter)
	if err != nil {
		return nil, err
	}

	runMetrics, err := observability.NewRunMetrics(providers.Meter)
	if err != nil {
		return nil, err
	}

	return mcp.NewServer(mcp.ServerDeps{
		Logger:     providers.Logger,
		Metrics:    red,
		RunMetrics: runMetrics,
		Tracer:     providers.Tracer,
		Version:    version.Version,
	}), nil
}

// mcpHTTPHandler routes the MCP endpoint next to the metrics and health endpoints.
func mcpHTTPHandler(srv *mcp.Server, providers observability.Providers) (http.Handler, error) {
	metrics, err := providers.MetricsHandler()
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle(mcpPath, observability.HTTPMiddleware(providers.Tracer, providers.Logger, srv.HTTPHandler()))
	mux.Handle(metricsPath, metrics)
	mux.Handle(healthPath, observability.HealthHandler())
	mux.Handle(readyPath, observability.ReadyHandler(gitReady))

	return mux, nil
}

// gitReady checks the git executable used by the cli history backend.
func gitReady(_ context.Context) error {
	_, err := exec.LookPath("git")
	if err != nil {
		return fmt.Errorf("%w: %w", errGitUnavailable, err)
	}

	return nil
}

func serveHTTP(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  serverReadTimeout,
		WriteTimeout: serverWriteTimeout,
		IdleTimeout:  serverIdleTimeout,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)

	go func() {
		logger.Info("mcp http server listening", "addr", addr)

		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return fmt.Errorf("mcp http server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
		defer cancel()

		err := server.Shutdown(shutdownCtx)
		if err != nil {
			return fmt.Errorf("shutdown mcp http server: %w", err)
		}

		return nil
	}
}
