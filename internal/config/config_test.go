package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SCREENER_API_KEY", "test-key-123")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("expected config to load with defaults, got error: %v", err)
	}

	if cfg.Provider.APIKey != "test-key-123" {
		t.Errorf("expected API key 'test-key-123', got '%s'", cfg.Provider.APIKey)
	}

	if cfg.Provider.BaseURL != "https://api.marketdata.app" {
		t.Errorf("expected default base URL, got '%s'", cfg.Provider.BaseURL)
	}

	if cfg.Download.Workers != 3 {
		t.Errorf("expected 3 workers by default, got %d", cfg.Download.Workers)
	}

	if cfg.Screen.PresetDir != "presets" {
		t.Errorf("expected default preset dir, got '%s'", cfg.Screen.PresetDir)
	}

	if cfg.Watch.Hour != 17 || cfg.Watch.Minute != 30 || cfg.Watch.Timezone != "America/New_York" {
		t.Errorf("expected default watch schedule 17:30 America/New_York, got %02d:%02d %s",
			cfg.Watch.Hour, cfg.Watch.Minute, cfg.Watch.Timezone)
	}

	if err := cfg.RequireAPIKey(); err != nil {
		t.Errorf("expected API key to satisfy RequireAPIKey, got: %v", err)
	}
}

func TestLoadWithoutAPIKey(t *testing.T) {
	t.Setenv("SCREENER_API_KEY", "")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("screening does not need an API key, got error: %v", err)
	}

	if err := cfg.RequireAPIKey(); err == nil {
		t.Fatal("expected error when API key is missing")
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "screener.yaml")
	body := `
download:
  workers: 5
screen:
  workers: 2
tickers: [spy, gme]
logging:
  level: debug
`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("SCREENER_DATA_DIRECTORY", "/srv/chains")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Download.Workers != 5 {
		t.Errorf("expected 5 download workers, got %d", cfg.Download.Workers)
	}
	if cfg.Screen.Workers != 2 {
		t.Errorf("expected 2 screen workers, got %d", cfg.Screen.Workers)
	}
	if strings.Join(cfg.Tickers, ",") != "SPY,GME" {
		t.Errorf("expected uppercased tickers, got %v", cfg.Tickers)
	}
	if cfg.Data.Directory != "/srv/chains" {
		t.Errorf("expected env override of data directory, got '%s'", cfg.Data.Directory)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected debug level, got '%s'", cfg.Logging.Level)
	}
}

func TestLoadInvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "screener.yaml")
	body := `
download:
  workers: 0
logging:
  level: loud
tickers: [SPY, "not a ticker"]
`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected validation error")
	}

	var verrs *ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("expected *ValidationErrors, got %T: %v", err, err)
	}

	for _, want := range []string{"download.workers", "logging.level", "NOT A TICKER"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should mention %q, got: %v", want, err)
		}
	}
}
