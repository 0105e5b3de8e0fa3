package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Provider ProviderConfig `mapstructure:"provider"`
	Download DownloadConfig `mapstructure:"download"`
	Screen   ScreenConfig   `mapstructure:"screen"`
	Tickers  []string       `mapstructure:"tickers" validate:"dive,ticker"`
	Data     DataConfig     `mapstructure:"data"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Watch    WatchConfig    `mapstructure:"watch"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

type ProviderConfig struct {
	BaseURL    string `mapstructure:"base_url" validate:"required,url"`
	APIKey     string `mapstructure:"api_key"`
	TimeoutSec int    `mapstructure:"timeout_sec" validate:"gte=1"`
	RetryCount int    `mapstructure:"retry_count" validate:"gte=0,lte=10"`
	RetryDelay int    `mapstructure:"retry_delay_sec" validate:"gte=0"`
}

type DownloadConfig struct {
	Workers       int  `mapstructure:"workers" validate:"gte=1,lte=32"`
	RatePerSecond int  `mapstructure:"rate_per_second" validate:"gte=1"`
	ResumeEnabled bool `mapstructure:"resume_enabled"`
	Compress      bool `mapstructure:"compress"`
}

type ScreenConfig struct {
	// Workers bounds evaluation goroutines; 0 uses GOMAXPROCS.
	Workers   int    `mapstructure:"workers" validate:"gte=0,lte=256"`
	PresetDir string `mapstructure:"preset_dir" validate:"required"`
}

type DataConfig struct {
	Directory string `mapstructure:"directory" validate:"required"`
}

type NotifyConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	URL      string `mapstructure:"url" validate:"omitempty,url"`
	Topic    string `mapstructure:"topic" validate:"required_if=Enabled true"`
	Priority string `mapstructure:"priority" validate:"oneof=min low default high urgent"`
	Tags     string `mapstructure:"tags"`
	Token    string `mapstructure:"token"`
	TopN     int    `mapstructure:"top_n" validate:"gte=1,lte=50"`
}

// WatchConfig schedules the daily fetch and screen run.
type WatchConfig struct {
	Hour         int      `mapstructure:"hour" validate:"gte=0,lte=23"`
	Minute       int      `mapstructure:"minute" validate:"gte=0,lte=59"`
	Timezone     string   `mapstructure:"timezone" validate:"required,timezone"`
	StateFile    string   `mapstructure:"state_file" validate:"required"`
	RunOnStartup bool     `mapstructure:"run_on_startup"`
	Presets      []string `mapstructure:"presets"`
}

type LoggingConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Directory string `mapstructure:"directory"`
	Level     string `mapstructure:"level" validate:"oneof=debug info warn error"`
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("provider.base_url", "https://api.marketdata.app")
	v.SetDefault("provider.timeout_sec", 60)
	v.SetDefault("provider.retry_count", 3)
	v.SetDefault("provider.retry_delay_sec", 2)
	v.SetDefault("download.workers", 3)
	v.SetDefault("download.rate_per_second", 2)
	v.SetDefault("download.resume_enabled", true)
	v.SetDefault("download.compress", false)
	v.SetDefault("screen.workers", 0)
	v.SetDefault("screen.preset_dir", "presets")
	v.SetDefault("data.directory", "data")
	v.SetDefault("notify.enabled", false)
	v.SetDefault("notify.url", "https://ntfy.sh")
	v.SetDefault("notify.priority", "default")
	v.SetDefault("notify.tags", "chart_with_upwards_trend")
	v.SetDefault("notify.top_n", 5)
	v.SetDefault("watch.hour", 17)
	v.SetDefault("watch.minute", 30)
	v.SetDefault("watch.timezone", "America/New_York")
	v.SetDefault("watch.state_file", "data/.watch-state")
	v.SetDefault("watch.run_on_startup", true)
	v.SetDefault("logging.enabled", true)
	v.SetDefault("logging.directory", "logs")
	v.SetDefault("logging.level", "info")

	// Environment variable support
	v.SetEnvPrefix("SCREENER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// Explicitly bind nested keys to env vars
	_ = v.BindEnv("provider.api_key", "SCREENER_API_KEY")
	_ = v.BindEnv("notify.topic", "SCREENER_NOTIFY_TOPIC", "NTFY_TOPIC")
	_ = v.BindEnv("notify.token", "SCREENER_NOTIFY_TOKEN", "NTFY_TOKEN")

	// Load config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("default")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	for i, t := range cfg.Tickers {
		cfg.Tickers[i] = strings.ToUpper(strings.TrimSpace(t))
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// RequireAPIKey is checked only by commands that talk to the provider.
func (c *Config) RequireAPIKey() error {
	if c.Provider.APIKey == "" {
		return fmt.Errorf("api_key is required (set SCREENER_API_KEY env var)")
	}
	return nil
}
