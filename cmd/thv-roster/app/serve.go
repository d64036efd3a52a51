package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/stacklok/toolhive-roster/internal/api"
	"github.com/stacklok/toolhive-roster/internal/config"
	"github.com/stacklok/toolhive-roster/internal/events"
	"github.com/stacklok/toolhive-roster/internal/logger"
	"github.com/stacklok/toolhive-roster/internal/projection"
	"github.com/stacklok/toolhive-roster/internal/reconcile"
	"github.com/stacklok/toolhive-roster/internal/store"
	"github.com/stacklok/toolhive-roster/internal/telemetry"
)

const (
	defaultGracefulTimeout = 30 * time.Second
	serverRequestTimeout   = 10 * time.Second
	serverReadTimeout      = 10 * time.Second
	// must exceed serverRequestTimeout so the timeout middleware can answer first
	serverWriteTimeout = 15 * time.Second
	serverIdleTimeout  = 60 * time.Second
)

func newServeCmd(st *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the roster over HTTP",
		Long: `serve exposes the roster operations and the ordered display rows over HTTP.
With --events it also applies lifecycle events read from a file or "-" for
standard input, so a host process can pipe its connection events in.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			eventsPath, _ := cmd.Flags().GetString("events")
			return runServe(cmd, st, eventsPath)
		},
	}
	cmd.Flags().String(config.KeyAddress, config.DefaultAddress, "Address to listen on")
	cmd.Flags().String("events", "", "Apply newline-delimited JSON events from this file")
	bindFlags(st.v, cmd.Flags(), config.KeyAddress)
	return cmd
}

func runServe(cmd *cobra.Command, st *state, eventsPath string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tel, err := telemetry.New(ctx, st.cfg.Telemetry)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaultGracefulTimeout)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Errorf("Telemetry shutdown failed: %v", err)
		}
	}()

	rosterMetrics, err := telemetry.NewRosterMetrics(tel.MeterProvider())
	if err != nil {
		return fmt.Errorf("failed to create roster metrics: %w", err)
	}
	metricsMiddleware, err := telemetry.MetricsMiddleware(tel.MeterProvider())
	if err != nil {
		return fmt.Errorf("failed to create HTTP metrics: %w", err)
	}

	engine := reconcile.New(st.store,
		reconcile.WithTracer(tel.Tracer(reconcile.TracerName)),
		reconcile.WithMetrics(rosterMetrics),
	)
	view := projection.NewView(store.LoadOrEmpty(ctx, st.store))
	engine.Subscribe(view)
	view.OnChange(func(rows []projection.Row) {
		logger.Infow("Roster changed", "known", len(rows), "active", projection.ActiveCount(rows))
	})

	router := api.NewServer(engine, view,
		api.WithMiddlewares(
			middleware.RequestID,
			middleware.RealIP,
			middleware.Recoverer,
			middleware.Timeout(serverRequestTimeout),
			telemetry.TracingMiddleware(tel.TracerProvider()),
			metricsMiddleware,
			api.LoggingMiddleware(logger.Logr()),
		),
		api.WithReadinessCheck(api.StoreReadiness(st.store)),
		api.WithMetricsHandler(tel.PrometheusHandler()),
	)

	address := st.cfg.GetAddress()
	server := &http.Server{
		Addr:         address,
		Handler:      router,
		ReadTimeout:  serverReadTimeout,
		WriteTimeout: serverWriteTimeout,
		IdleTimeout:  serverIdleTimeout,
	}

	var source *events.StreamSource
	if eventsPath != "" {
		name, input, closeInput, err := openEvents(eventsPath)
		if err != nil {
			return err
		}
		defer closeInput()
		source = events.NewStreamSource(name, input)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infof("Serving roster %s on %s", st.store.Path(), address)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), defaultGracefulTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})
	if source != nil {
		// not part of the group: a read blocked on the stream must not hold up shutdown
		go serveEvents(gctx, source, engine)
	}

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("Server shutdown complete")
	return nil
}

func openEvents(path string) (string, io.Reader, func(), error) {
	if path == "-" {
		return "stdin", os.Stdin, func() {}, nil
	}
	// #nosec G304 -- path comes from the command line
	f, err := os.Open(path)
	if err != nil {
		return "", nil, nil, fmt.Errorf("failed to open events file: %w", err)
	}
	return path, f, func() { _ = f.Close() }, nil
}

// serveEvents applies an event stream alongside the HTTP server. The end of
// the stream does not stop the server.
func serveEvents(ctx context.Context, source *events.StreamSource, engine *reconcile.Engine) {
	err := ingest(ctx, source, engine)
	switch {
	case errors.Is(err, context.Canceled):
	case err != nil:
		logger.Errorf("Event stream failed: %v", err)
	default:
		logger.Info("Event stream ended")
	}
}
