package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/leadgen/internal/resilience"
	"github.com/sells-group/leadgen/internal/worker"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the background job worker",
	Long:  "Polls the queue for pending scrape jobs and executes them until interrupted. Run one process per desired worker; the claim operation keeps them from stepping on each other.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("worker"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		// The worker leans on exponential backoff for transient provider
		// trouble; the interactive path uses the gentler fixed policy.
		searchRetry := resilience.Exponential(cfg.Serper.MaxRetries, time.Duration(cfg.Serper.RetryDelayMs)*time.Millisecond)
		searchRetry.OnRetry = resilience.RetryLogger("serper", "search")

		persistRetry := resilience.Exponential(cfg.Worker.PersistRetries, time.Duration(cfg.Worker.PersistRetryDelay)*time.Millisecond)
		persistRetry.OnRetry = resilience.RetryLogger("store", "write")

		w := worker.New(st, newSearchClient(), worker.Config{
			PollInterval: cfg.Worker.PollInterval(),
			SearchRetry:  searchRetry,
			PersistRetry: persistRetry,
		})

		if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		zap.L().Info("worker exited")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
