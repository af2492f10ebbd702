package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/warp/emissions-engine/api"
	"github.com/warp/emissions-engine/emissions"
	"github.com/warp/emissions-engine/metrics"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var sampleID string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Runs the dashboard API until SIGINT or SIGTERM, then waits for active
requests to complete before closing the store.`,
		Example: `  # Serve on the configured port
  emissions serve

  # Serve on port 3000, preloading the five-year demo data
  emissions serve --port 3000 --sample default`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			if sampleID != "" {
				if err := loadSample(cmd.Context(), a, sampleID); err != nil {
					return err
				}
			}
			return runServe(cmd.Context(), a)
		},
	}

	cmd.Flags().IntVar(&opts.port, "port", 0, "HTTP server port (overrides config)")
	cmd.Flags().StringVar(&sampleID, "sample", "", "load a demo dataset before serving")
	return cmd
}

func runServe(parent context.Context, a *app) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	timeout, err := a.cfg.ShutdownTimeout()
	if err != nil {
		return err
	}

	handler := api.NewHandler(a.inventory, metrics.New(), a.logger)
	router := api.NewRouter(handler, a.cfg.Server.CORSOrigins)

	addr := fmt.Sprintf(":%d", a.cfg.Server.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	server := &http.Server{
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	a.logger.Info().
		Str("addr", ln.Addr().String()).
		Str("driver", a.cfg.Database.Driver).
		Msg("server starting")
	return serve(ctx, server, ln, timeout, a.logger)
}

// serve runs server on ln until ctx is done, then shuts it down within
// timeout.
func serve(ctx context.Context, server *http.Server, ln net.Listener, timeout time.Duration, logger zerolog.Logger) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

// loadSample replaces the dataset with a demo sample.
func loadSample(ctx context.Context, a *app, id string) error {
	sample, ok := emissions.LookupSample(id)
	if !ok {
		return fmt.Errorf("unknown sample %q", id)
	}
	report, err := a.inventory.Load(ctx, sample.Records, "sample:"+sample.ID)
	if err != nil {
		return fmt.Errorf("load sample %s: %w", id, err)
	}
	a.logger.Info().
		Str("sample", sample.ID).
		Int("records", len(report.CreatedYears)).
		Msg("sample loaded")
	return nil
}
