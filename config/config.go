package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig
	Telegram  TelegramConfig
	Pipeline  PipelineConfig
	RateLimit RateLimitConfig
	Delivery  DeliveryConfig
	Monitor   MonitorConfig
	Logging   LoggingConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port           string   `mapstructure:"port"`
	Environment    string   `mapstructure:"environment"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// TelegramConfig holds channel credentials and endpoint
type TelegramConfig struct {
	BotToken  string `mapstructure:"bot_token"`
	ChannelID string `mapstructure:"channel_id"`
	BaseURL   string `mapstructure:"base_url"`
}

// PipelineConfig holds validation, dedup and worker settings
type PipelineConfig struct {
	SpamPhrases     []string `mapstructure:"spam_phrases"`
	MinTitleLength  int      `mapstructure:"min_title_length"`
	Workers         int      `mapstructure:"workers"`
	DedupMaxEntries int      `mapstructure:"dedup_max_entries"` // 0 = unbounded
	AlertThreshold  int      `mapstructure:"alert_threshold"`
}

// RateLimitConfig holds the outbound send budget
type RateLimitConfig struct {
	WindowCapacity int           `mapstructure:"window_capacity"`
	WindowDuration time.Duration `mapstructure:"window_duration"`
	MinSpacing     time.Duration `mapstructure:"min_spacing"`
}

// DeliveryConfig holds retry/backoff policy for the delivery engine
type DeliveryConfig struct {
	MaxAttempts   int           `mapstructure:"max_attempts"`
	BackoffBase   time.Duration `mapstructure:"backoff_base"`
	BackoffFactor float64       `mapstructure:"backoff_factor"`
	BackoffCap    time.Duration `mapstructure:"backoff_cap"`
	MaxRateWait   time.Duration `mapstructure:"max_rate_wait"`
}

// MonitorConfig holds the listing-page polling settings
type MonitorConfig struct {
	Sites          []MonitorSite `mapstructure:"sites"`
	Interval       time.Duration `mapstructure:"interval"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// MonitorSite describes one listing page and its extraction selectors
type MonitorSite struct {
	Name                string `mapstructure:"name"`
	URL                 string `mapstructure:"url"`
	ItemSelector        string `mapstructure:"item_selector"`
	TitleSelector       string `mapstructure:"title_selector"`
	LinkSelector        string `mapstructure:"link_selector"`
	PriceSelector       string `mapstructure:"price_selector"`
	DescriptionSelector string `mapstructure:"description_selector"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	v := viper.New()

	// Set config name and paths
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/dealwatch/")

	// Environment variable settings
	v.SetEnvPrefix("DEALWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set default values
	setDefaults(v)

	// Read config file (optional - will use env vars if file doesn't exist)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; using environment variables and defaults
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// Validate configuration
	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.allowed_origins", []string{"*"})

	// Telegram defaults. Token and channel have no usable default but must
	// be registered so AutomaticEnv picks them up during Unmarshal.
	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.channel_id", "")
	v.SetDefault("telegram.base_url", "https://api.telegram.org")

	// Pipeline defaults
	v.SetDefault("pipeline.spam_phrases", []string{"click here", "limited time only", "act now"})
	v.SetDefault("pipeline.min_title_length", 3)
	v.SetDefault("pipeline.workers", 5)
	v.SetDefault("pipeline.dedup_max_entries", 0)
	v.SetDefault("pipeline.alert_threshold", 5)

	// Rate limit defaults: 20 sends per minute, one second apart
	v.SetDefault("ratelimit.window_capacity", 20)
	v.SetDefault("ratelimit.window_duration", "60s")
	v.SetDefault("ratelimit.min_spacing", "1s")

	// Delivery defaults
	v.SetDefault("delivery.max_attempts", 5)
	v.SetDefault("delivery.backoff_base", "1s")
	v.SetDefault("delivery.backoff_factor", 2.0)
	v.SetDefault("delivery.backoff_cap", "32s")
	v.SetDefault("delivery.max_rate_wait", "30s")

	// Monitor defaults
	v.SetDefault("monitor.interval", "300s")
	v.SetDefault("monitor.request_timeout", "10s")
	v.SetDefault("monitor.user_agent", "DealWatch Bot 1.0")

	// Logging defaults
	v.SetDefault("logging.level", "info")
}

// validate validates the configuration
func validate(config *Config) error {
	if config.Telegram.BotToken == "" {
		return fmt.Errorf("Telegram bot token is required (set DEALWATCH_TELEGRAM_BOT_TOKEN)")
	}

	if config.Telegram.ChannelID == "" {
		return fmt.Errorf("Telegram channel ID is required (set DEALWATCH_TELEGRAM_CHANNEL_ID)")
	}

	if config.RateLimit.WindowCapacity <= 0 {
		return fmt.Errorf("rate limit window capacity must be positive, got: %d", config.RateLimit.WindowCapacity)
	}

	if config.RateLimit.WindowDuration <= 0 {
		return fmt.Errorf("rate limit window duration must be positive, got: %s", config.RateLimit.WindowDuration)
	}

	if config.Delivery.MaxAttempts < 1 {
		return fmt.Errorf("delivery max attempts must be at least 1, got: %d", config.Delivery.MaxAttempts)
	}

	if config.Delivery.BackoffFactor < 1 {
		return fmt.Errorf("delivery backoff factor must be >= 1, got: %g", config.Delivery.BackoffFactor)
	}

	if config.Pipeline.Workers <= 0 {
		return fmt.Errorf("pipeline workers must be positive, got: %d", config.Pipeline.Workers)
	}

	for _, site := range config.Monitor.Sites {
		if site.URL == "" || site.ItemSelector == "" {
			return fmt.Errorf("monitor site %q needs both url and item_selector", site.Name)
		}
	}

	return nil
}
