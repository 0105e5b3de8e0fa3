package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"time"
)

type ServerConfig struct {
	Port      string
	DataDir   string
	DataDate  string
	PresetDir string
	// ScreenWorkers bounds evaluation goroutines per request; 0 uses GOMAXPROCS.
	ScreenWorkers int
	// CORSOrigins is a comma-separated allow list; "*" allows any origin.
	CORSOrigins string
	// EventsHeartbeat is the interval between heartbeat events on /events; 0 disables them.
	EventsHeartbeat time.Duration
}

func LoadServerConfig() (*ServerConfig, error) {
	dataDir := getEnvOrDefault("DATA_DIR", "./data")
	dataDate := getEnvOrDefault("DATA_DATE", "")

	// Auto-detect latest date if DATA_DATE is empty or "latest"
	if dataDate == "" || dataDate == "latest" {
		detected, err := DetectLatestDate(dataDir)
		if err != nil {
			return nil, fmt.Errorf("failed to detect latest date in %s: %w", dataDir, err)
		}
		dataDate = detected
	} else if !datePattern.MatchString(dataDate) {
		return nil, fmt.Errorf("invalid DATA_DATE: %s (must be YYYY-MM-DD or 'latest')", dataDate)
	}

	workers, err := strconv.Atoi(getEnvOrDefault("SCREEN_WORKERS", "0"))
	if err != nil || workers < 0 {
		return nil, fmt.Errorf("invalid SCREEN_WORKERS: %s (must be a non-negative integer)", os.Getenv("SCREEN_WORKERS"))
	}

	heartbeat, err := time.ParseDuration(getEnvOrDefault("EVENTS_HEARTBEAT", "15s"))
	if err != nil || heartbeat < 0 {
		return nil, fmt.Errorf("invalid EVENTS_HEARTBEAT: %s (must be a duration such as 15s)", os.Getenv("EVENTS_HEARTBEAT"))
	}

	return &ServerConfig{
		Port:            getEnvOrDefault("PORT", "8080"),
		DataDir:         dataDir,
		DataDate:        dataDate,
		PresetDir:       getEnvOrDefault("PRESET_DIR", "./presets"),
		ScreenWorkers:   workers,
		CORSOrigins:     getEnvOrDefault("CORS_ORIGINS", "*"),
		EventsHeartbeat: heartbeat,
	}, nil
}

var datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// DetectLatestDate scans the data directory for date folders and returns the most recent one
func DetectLatestDate(dataDir string) (string, error) {
	entries, err := os.ReadDir(dataDir)
	if err != nil {
		return "", fmt.Errorf("reading data directory: %w", err)
	}

	var dates []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		if datePattern.MatchString(name) {
			// Verify it's not empty (has at least one file/folder inside)
			subPath := filepath.Join(dataDir, name)
			subEntries, err := os.ReadDir(subPath)
			if err == nil && len(subEntries) > 0 {
				dates = append(dates, name)
			}
		}
	}

	if len(dates) == 0 {
		return "", fmt.Errorf("no date folders found in %s", dataDir)
	}

	// Sort descending (newest first) - YYYY-MM-DD format sorts lexicographically
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))

	return dates[0], nil
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
