package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/aretw0/switchyard"
	"github.com/aretw0/switchyard/internal/cli"
	"github.com/aretw0/switchyard/internal/presentation/tui"
	httpAdapter "github.com/aretw0/switchyard/pkg/adapters/http"
	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Starts the workflow engine and exposes it as a JSON API over HTTP,
with server-sent transition events and Prometheus metrics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("port") {
			cfg.Server.Port, _ = cmd.Flags().GetInt("port")
		}

		ctx := cli.WatchSignals(context.Background())
		defer ctx.Stop()

		app, err := cli.Build(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer app.Close()

		if len(cfg.Server.Callers) == 0 {
			logger.Warn("No server.callers configured; POST /transitions will refuse every request")
		}
		handler := httpAdapter.NewHandler(app.Engine,
			httpAdapter.WithLogger(logger),
			httpAdapter.WithStreams(app.Streams),
			httpAdapter.WithCallers(cfg.Server.CallerSecrets()),
			httpAdapter.WithSignatureMaxAge(cfg.Server.SignatureMaxAge),
			httpAdapter.WithRoutes(func(r chi.Router) {
				if cfg.Server.MetricsPath != "" {
					r.Handle(cfg.Server.MetricsPath, app.Metrics.Handler())
				}
			}),
		)

		srv := &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler:      handler,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		}

		tui.PrintBanner(os.Stderr, switchyard.Version)

		// Channel to listen for errors coming from the listener.
		serverErrors := make(chan error, 1)
		go func() {
			logger.Info("Starting switchyard server", "address", srv.Addr, "workflow", cfg.Workflow.Name)
			serverErrors <- srv.ListenAndServe()
		}()

		select {
		case err := <-serverErrors:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("server error: %w", err)

		case <-ctx.Done():
			cli.WriteStderr("Start shutdown... Signal: %v", ctx.Signal())

			// Give outstanding requests a deadline for completion; a second signal cuts it short.
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			go func() {
				select {
				case <-ctx.Forced():
					cli.WriteStderr("Second signal received, closing connections")
					cancel()
				case <-shutdownCtx.Done():
				}
			}()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("Graceful shutdown did not complete", "timeout", shutdownTimeout, "err", err)
				if err := srv.Close(); err != nil {
					return fmt.Errorf("error killing server: %w", err)
				}
			}
			logger.Info("Switchyard server stopped gracefully")
			return nil
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntP("port", "p", 0, "Port to listen on (overrides server.port)")
}
