package notify

import (
	"errors"
	"fmt"

	"github.com/dgnsrekt/options-screener/internal/config"
)

// Config holds ntfy notification configuration.
type Config struct {
	Enabled  bool   // Whether notifications are enabled
	Server   string // ntfy server URL (default: https://ntfy.sh)
	Topic    string // Topic name (required if enabled)
	Priority string // Message priority: min, low, default, high, urgent
	Tags     string // Comma-separated emoji tags
	Token    string // Optional access token for private topics
	TopN     int    // Matches listed in a screen summary
}

// FromSettings converts the notify section of the application config.
func FromSettings(s config.NotifyConfig) *Config {
	return &Config{
		Enabled:  s.Enabled,
		Server:   s.URL,
		Topic:    s.Topic,
		Priority: s.Priority,
		Tags:     s.Tags,
		Token:    s.Token,
		TopN:     s.TopN,
	}
}

// Validate checks configuration is valid when enabled.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}

	if c.Topic == "" {
		return errors.New("notify.topic is required when notifications are enabled")
	}

	validPriorities := map[string]bool{
		"min": true, "low": true, "default": true, "high": true, "urgent": true,
	}
	if !validPriorities[c.Priority] {
		return fmt.Errorf("invalid notify priority: %s (valid: min, low, default, high, urgent)", c.Priority)
	}

	return nil
}
