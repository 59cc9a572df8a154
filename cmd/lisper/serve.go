package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	httpAdapter "github.com/svoctor/lisper-go/pkg/adapters/http"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP playground",
	Long: `Starts the playground HTTP server: the editor page, the JSON session API,
server-sent state events and, unless disabled, Prometheus metrics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		pg, err := newPlayground(cmd)
		if err != nil {
			return err
		}
		logger := pg.Logger()

		opts := []httpAdapter.Option{
			httpAdapter.WithHighlighter(pg.Highlighter),
			httpAdapter.WithRenderer(pg.Renderer),
			httpAdapter.WithLoaderInfo(pg.Loader),
			httpAdapter.WithMaxSourceBytes(pg.Config.Evaluation.MaxSourceBytes),
			httpAdapter.WithLogger(logger),
		}
		if pg.Config.Server.Metrics {
			opts = append(opts, httpAdapter.WithMetrics(pg.Registry))
		}

		srv := &http.Server{
			Addr:              pg.Config.Server.Addr,
			Handler:           httpAdapter.NewHandler(pg.Sessions, opts...),
			ReadHeaderTimeout: 10 * time.Second,
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			logger.Info("Starting Lisper Server", "addr", srv.Addr, "provider", pg.Config.Evaluator.Provider, "store", pg.Config.Store.Backend)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			logger.Info("Shutting down")

			// Give outstanding requests a deadline for completion.
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("Graceful shutdown did not complete", "timeout", shutdownTimeout, "err", err)
				_ = srv.Close()
			}
			return pg.Close(shutdownCtx)
		})

		if err := g.Wait(); err != nil {
			return err
		}
		logger.Info("Lisper Server stopped gracefully")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("addr", "a", ":8080", "Address to listen on")
}
