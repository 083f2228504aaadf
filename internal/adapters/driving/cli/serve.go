package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/sercha-connect/internal/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the background scheduler",
	Long: `Run the background scheduler until interrupted. It refreshes tokens
that are about to expire and dispatches scheduled calls.

With --metrics-addr, Prometheus metrics are served on /metrics.

Example:
  sercha-connect serve --metrics-addr :9090`,
	RunE: runServe,
}

var serveMetricsAddr string

func init() {
	serveCmd.Flags().StringVar(&serveMetricsAddr, "metrics-addr", "", "Address for the /metrics endpoint (empty disables it)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	if scheduler == nil {
		return fmt.Errorf("scheduler: %w", errNotConfigured)
	}

	g, ctx := errgroup.WithContext(commandContext(cmd))

	g.Go(func() error {
		return scheduler.Start(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		return scheduler.Stop()
	})

	if serveMetricsAddr != "" && metricsHandler != nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metricsHandler)
		server := &http.Server{
			Addr:              serveMetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}

		g.Go(func() error {
			logger.Info("metrics listening", "addr", serveMetricsAddr)
			if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	cmd.Println("Scheduler running, press Ctrl+C to stop.")
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
