package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"membership-payments/internal/app"
	"membership-payments/internal/config"
	"membership-payments/internal/logger"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const passTimeout = 10 * time.Minute

func main() {
	rootCmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Repair payment records that missed a gateway notification",
	}

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(orderCmd())
	rootCmd.AddCommand(scheduleCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type env struct {
	cfg *config.Config
	log *zap.Logger
	app *app.App
}

func setup() (*env, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	log, err := logger.New(cfg.Log, cfg.Environment.Name)
	if err != nil {
		return nil, nil, err
	}

	a, err := app.New(cfg, log)
	if err != nil {
		return nil, nil, err
	}

	cleanup := func() {
		_ = a.Close()
		_ = log.Sync()
	}
	return &env{cfg: cfg, log: log, app: a}, cleanup, nil
}

func runCmd() *cobra.Command {
	var (
		olderThan time.Duration
		limit     int
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Check every pending payment older than --older-than once",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, cleanup, err := setup()
			if err != nil {
				return err
			}
			defer cleanup()

			if !cmd.Flags().Changed("older-than") {
				olderThan = e.cfg.Reconcile.StaleAfter
			}
			if !cmd.Flags().Changed("limit") {
				limit = e.cfg.Reconcile.BatchSize
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), passTimeout)
			defer cancel()

			summary, err := e.app.Reconciler.ReconcileStale(ctx, olderThan, limit)
			if err != nil {
				return err
			}
			return printJSON(cmd, summary)
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 15*time.Minute, "Only check payments pending for at least this long")
	cmd.Flags().IntVar(&limit, "limit", 100, "Maximum payments to check in one pass")

	return cmd
}

func orderCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "order [orderId]",
		Short: "Check a single order against the gateway",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, cleanup, err := setup()
			if err != nil {
				return err
			}
			defer cleanup()

			result, err := e.app.Reconciler.CheckTransactionStatus(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, result)
		},
	}
}

func scheduleCmd() *cobra.Command {
	var schedule string

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run the stale payment pass on a cron schedule until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, cleanup, err := setup()
			if err != nil {
				return err
			}
			defer cleanup()

			if !cmd.Flags().Changed("cron") {
				schedule = e.cfg.Reconcile.Schedule
			}

			// seconds field, same format as RECONCILE_SCHEDULE
			scheduler := cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
			_, err = scheduler.AddFunc(schedule, func() {
				ctx, cancel := context.WithTimeout(context.Background(), passTimeout)
				defer cancel()

				summary, err := e.app.Reconciler.ReconcileStale(ctx, e.cfg.Reconcile.StaleAfter, e.cfg.Reconcile.BatchSize)
				if err != nil {
					e.log.Error("[CRON] stale payment pass failed", zap.Error(err))
					return
				}
				e.log.Info("[CRON] stale payment pass finished",
					zap.Int("checked", summary.Checked),
					zap.Int("applied", summary.Applied),
					zap.Int("replayed", summary.Replayed),
					zap.Int("expired", summary.Expired),
					zap.Int("failed", summary.Failed))
			})
			if err != nil {
				return fmt.Errorf("add reconcile job: %w", err)
			}

			scheduler.Start()
			e.log.Info("reconcile scheduler started", zap.String("schedule", schedule))

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
			<-sigChan

			e.log.Info("signal received, waiting for running pass")
			<-scheduler.Stop().Done()
			return nil
		},
	}

	cmd.Flags().StringVar(&schedule, "cron", "0 */10 * * * *", "Cron expression with a seconds field")

	return cmd
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
