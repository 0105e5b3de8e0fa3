package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/scmhub/calendar"
	"go.uber.org/zap"

	"github.com/dgnsrekt/options-screener/internal/api"
	"github.com/dgnsrekt/options-screener/internal/config"
	"github.com/dgnsrekt/options-screener/internal/download"
	"github.com/dgnsrekt/options-screener/internal/notify"
	"github.com/dgnsrekt/options-screener/internal/staging"
)

const dateLayout = "2006-01-02"

// parseDates parses date arguments and returns a list of dates
func parseDates(args []string) ([]string, error) {
	start, err := time.Parse(dateLayout, args[0])
	if err != nil {
		return nil, fmt.Errorf("invalid start date format (use YYYY-MM-DD): %w", err)
	}

	if len(args) == 1 {
		return []string{args[0]}, nil
	}

	end, err := time.Parse(dateLayout, args[1])
	if err != nil {
		return nil, fmt.Errorf("invalid end date format (use YYYY-MM-DD): %w", err)
	}

	if end.Before(start) {
		return nil, fmt.Errorf("end date must be after start date")
	}

	var dates []string
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d.Format(dateLayout))
	}

	return dates, nil
}

// isMarketDay reports whether date is an NYSE trading day. Dates are checked
// at noon New York time so the calendar day cannot shift.
func isMarketDay(nyse *calendar.Calendar, loc *time.Location, date string) bool {
	t, err := time.ParseInLocation("2006-01-02 15:04:05", date+" 12:00:00", loc)
	if err != nil {
		return false
	}
	return nyse.IsBusinessDay(t)
}

// filterMarketDays filters out non-trading days (weekends and NYSE holidays)
// and logs warnings for skipped dates
func filterMarketDays(dates []string, logger *zap.Logger) []string {
	nyse := calendar.XNYS()

	// NYSE operates in Eastern time
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		logger.Warn("failed to load America/New_York timezone, using UTC", zap.Error(err))
		loc = time.UTC
	}

	var marketDays []string
	for _, date := range dates {
		if isMarketDay(nyse, loc, date) {
			marketDays = append(marketDays, date)
		} else {
			logger.Warn("skipping non-market day", zap.String("date", date))
		}
	}
	return marketDays
}

// resolveDate turns "" or "latest" into the newest date folder under the data directory.
func resolveDate(date string) (string, error) {
	if date != "" && date != "latest" {
		if _, err := time.Parse(dateLayout, date); err != nil {
			return "", fmt.Errorf("invalid date %q (use YYYY-MM-DD or latest)", date)
		}
		return date, nil
	}
	return config.DetectLatestDate(cfg.Data.Directory)
}

// effectiveTickers returns the override, the configured tickers, or the defaults, normalized.
func effectiveTickers(override []string) []string {
	tickers := cfg.Tickers
	if len(override) > 0 {
		tickers = override
	}
	if len(tickers) == 0 {
		tickers = config.DefaultTickers
	}
	out := make([]string, 0, len(tickers))
	for _, t := range tickers {
		out = append(out, strings.ToUpper(strings.TrimSpace(t)))
	}
	return out
}

// parseSets turns repeated key=value flags into raw filter configuration.
func parseSets(sets []string) (map[string]string, error) {
	raw := make(map[string]string, len(sets))
	for _, s := range sets {
		key, value, ok := strings.Cut(s, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("invalid --set %q (use key=value)", s)
		}
		raw[strings.TrimSpace(key)] = value
	}
	return raw, nil
}

// loadFilter reads the named preset, if any, and applies the overrides on top.
func loadFilter(preset string, overrides map[string]string) (map[string]string, error) {
	raw := map[string]string{}
	if preset != "" {
		path, err := config.ResolvePreset(cfg.Screen.PresetDir, preset)
		if err != nil {
			return nil, err
		}
		raw, err = config.LoadPreset(path)
		if err != nil {
			return nil, err
		}
	}
	for k, v := range overrides {
		raw[k] = v
	}
	return raw, nil
}

func newDownloadManager(cfg *config.Config, logger *zap.Logger) *download.Manager {
	client := api.NewClient(
		cfg.Provider.BaseURL,
		cfg.Provider.APIKey,
		cfg.Download.RatePerSecond,
		time.Duration(cfg.Provider.TimeoutSec)*time.Second,
		time.Duration(cfg.Provider.RetryDelay)*time.Second,
		cfg.Provider.RetryCount,
		logger,
	)
	stgMgr := staging.NewManager(cfg.Data.Directory, cfg.Download.Compress)
	return download.NewManager(client, stgMgr, cfg.Download.Workers, cfg.Download.ResumeEnabled, logger)
}

func newNotifier(cfg *config.Config, logger *zap.Logger) notify.Notifier {
	return notify.New(notify.FromSettings(cfg.Notify), logger)
}
