package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dgnsrekt/options-screener/internal/config"
	"github.com/dgnsrekt/options-screener/internal/data"
	"github.com/dgnsrekt/options-screener/internal/download"
	"github.com/dgnsrekt/options-screener/internal/notify"
	"github.com/dgnsrekt/options-screener/internal/screener"
)

// RunTracker records the last date the daily run completed.
type RunTracker struct {
	stateFile string
}

// NewRunTracker creates a new tracker with the given state file path
func NewRunTracker(stateFile string) *RunTracker {
	return &RunTracker{stateFile: stateFile}
}

// LastRunDate reads the last completed date from the state file
func (t *RunTracker) LastRunDate() string {
	b, err := os.ReadFile(t.stateFile)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}

// SetLastRunDate writes the date to the state file
func (t *RunTracker) SetLastRunDate(date string) error {
	if err := os.MkdirAll(filepath.Dir(t.stateFile), 0750); err != nil {
		return err
	}
	return os.WriteFile(t.stateFile, []byte(date+"\n"), 0600)
}

// AlreadyRan checks if the given date was already completed
func (t *RunTracker) AlreadyRan(date string) bool {
	return t.LastRunDate() == date
}

func watchCmd() *cobra.Command {
	var presets []string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Fetch and screen once per trading day at the scheduled time",
		Long: `Run in the foreground and, once per NYSE trading day after the configured
time (watch.hour:watch.minute in watch.timezone), fetch the day's chains,
screen every watched preset and send the results to ntfy.

Presets come from --preset, then watch.presets, then every preset in the
preset directory.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			if err := cfg.RequireAPIKey(); err != nil {
				return err
			}
			if len(presets) == 0 {
				presets = cfg.Watch.Presets
			}
			if len(presets) == 0 {
				names, err := config.ListPresets(cfg.Screen.PresetDir)
				if err != nil {
					return err
				}
				presets = names
			}

			w := &watcher{
				scheduler: NewScheduler(cfg.Watch.Hour, cfg.Watch.Minute, cfg.Watch.Timezone),
				tracker:   NewRunTracker(cfg.Watch.StateFile),
				notifier:  newNotifier(cfg, logger),
				presets:   presets,
				tickers:   effectiveTickers(nil),
			}

			logger.Info("watch started",
				zap.String("schedule", fmt.Sprintf("%02d:%02d %s", cfg.Watch.Hour, cfg.Watch.Minute, cfg.Watch.Timezone)),
				zap.Strings("presets", presets),
				zap.Int("tickers", len(w.tickers)),
			)

			if cfg.Watch.RunOnStartup {
				logger.Info("checking for missed run on startup")
				w.tick(ctx)
			}

			ticker := time.NewTicker(1 * time.Minute)
			defer ticker.Stop()

			for {
				select {
				case <-ticker.C:
					w.tick(ctx)
				case <-ctx.Done():
					logger.Info("context cancelled, shutting down")
					return nil
				}
			}
		},
	}

	cmd.Flags().StringSliceVarP(&presets, "preset", "p", nil, "presets to screen (default: watch.presets, then all)")
	return cmd
}

type watcher struct {
	scheduler *Scheduler
	tracker   *RunTracker
	notifier  notify.Notifier
	presets   []string
	tickers   []string
}

// tick runs the daily job when it is due and has not run yet today.
func (w *watcher) tick(ctx context.Context) {
	today := w.scheduler.TodayDate()

	if w.tracker.AlreadyRan(today) {
		return
	}
	if !w.scheduler.IsMarketDay(today) {
		logger.Debug("not a market day", zap.String("date", today))
		return
	}
	if !w.scheduler.IsDue() {
		return
	}

	logger.Info("starting daily run", zap.String("date", today))
	if err := w.run(ctx, today); err != nil {
		logger.Error("daily run failed", zap.String("date", today), zap.Error(err))
		return
	}

	if err := w.tracker.SetLastRunDate(today); err != nil {
		logger.Error("failed to update tracker", zap.Error(err))
	}
}

// run fetches the date's chains and screens every preset against them. A
// preset that fails to screen is logged and does not fail the run.
func (w *watcher) run(ctx context.Context, date string) error {
	if _, err := runFetch(ctx, download.Plan([]string{date}, w.tickers), w.notifier); err != nil {
		return err
	}

	records, err := data.NewFileLoader(cfg.Data.Directory, logger).Load(ctx, date, nil)
	if err != nil {
		return fmt.Errorf("loading records for %s: %w", date, err)
	}

	engine := screener.NewEngine(cfg.Screen.Workers, nil, logger)
	var failed []string
	for _, preset := range w.presets {
		raw, err := loadFilter(preset, nil)
		if err != nil {
			logger.Error("loading preset failed", zap.String("preset", preset), zap.Error(err))
			failed = append(failed, preset)
			continue
		}
		res, err := engine.Run(ctx, raw, records)
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			logger.Error("preset screen failed", zap.String("preset", preset), zap.Error(err))
			failed = append(failed, preset)
			continue
		}
		logger.Info("preset screened",
			zap.String("preset", preset),
			zap.Int("passed", res.Passed),
			zap.Int("evaluated", res.Evaluated),
		)
		if err := w.notifier.SendScreen(ctx, preset, date, res); err != nil {
			logger.Warn("failed to send notification", zap.String("preset", preset), zap.Error(err))
		}
	}

	if len(failed) > 0 && len(failed) == len(w.presets) {
		return errors.New("every preset failed: " + strings.Join(failed, ", "))
	}
	return nil
}
