package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dgnsrekt/options-screener/internal/config"
	"github.com/dgnsrekt/options-screener/internal/download"
	"github.com/dgnsrekt/options-screener/internal/notify"
)

func fetchCmd() *cobra.Command {
	var (
		dryRun     bool
		tickers    []string
		sendNotify bool
	)

	cmd := &cobra.Command{
		Use:   "fetch YYYY-MM-DD [END_DATE]",
		Short: "Download option chains for the specified date(s)",
		Long: `Download option chain snapshots from the market-data provider.

Weekends and NYSE holidays in the range are skipped. Snapshots are written
to {data.directory}/{date}/{TICKER}.jsonl (or .jsonl.gz with download.compress).

Examples:
  # Fetch a single date
  options-screener fetch 2025-11-14

  # Fetch a date range
  options-screener fetch 2025-11-01 2025-11-14

  # Override tickers from config
  options-screener fetch --tickers SPY,QQQ 2025-11-14

  # Dry run to see what would be fetched
  options-screener fetch --dry-run 2025-11-14`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			dates, err := parseDates(args)
			if err != nil {
				return err
			}
			dates = filterMarketDays(dates, logger)
			if len(dates) == 0 {
				return fmt.Errorf("no market days in range")
			}

			symbols := effectiveTickers(tickers)
			if err := config.ValidateTickers(symbols); err != nil {
				return err
			}

			tasks := download.Plan(dates, symbols)
			logger.Info("planned tasks", zap.Int("count", len(tasks)))

			if dryRun {
				for _, t := range tasks {
					fmt.Printf("Would fetch: %s\n", t)
				}
				return nil
			}

			if err := cfg.RequireAPIKey(); err != nil {
				return err
			}

			var notifier notify.Notifier = &notify.NoopNotifier{}
			if sendNotify {
				notifier = newNotifier(cfg, logger)
			}
			_, err = runFetch(ctx, tasks, notifier)
			return err
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "show what would be fetched")
	cmd.Flags().StringSliceVar(&tickers, "tickers", nil, "override tickers from config")
	cmd.Flags().BoolVar(&sendNotify, "notify", false, "send a summary to ntfy")

	return cmd
}

// runFetch executes tasks, logs a summary and notifies. It fails when any task failed.
func runFetch(ctx context.Context, tasks []download.Task, notifier notify.Notifier) (*download.BatchResult, error) {
	start := time.Now()
	result, err := newDownloadManager(cfg, logger).Execute(ctx, tasks)
	if result == nil {
		result = &download.BatchResult{Total: len(tasks)}
	}
	if err == nil && result.Failed > 0 {
		for _, e := range result.Errors {
			logger.Error("fetch error", zap.String("error", e))
		}
		err = fmt.Errorf("%d fetches failed", result.Failed)
	}

	if nerr := notifier.SendFetch(ctx, result, time.Since(start), err); nerr != nil {
		logger.Warn("failed to send notification", zap.Error(nerr))
	}

	logger.Info("fetch complete",
		zap.Int("total", result.Total),
		zap.Int("success", result.Success),
		zap.Int("skipped", result.Skipped),
		zap.Int("not_found", result.NotFound),
		zap.Int("failed", result.Failed),
		zap.Int64("bytes", result.Bytes),
		zap.Duration("duration", time.Since(start)),
	)
	return result, err
}
