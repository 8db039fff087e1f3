package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/mixelka/chatmirror/internal/channels"
)

// Config application configuration
type Config struct {
	// Telegram
	TelegramToken string `env:"TELEGRAM_BOT_TOKEN,required"`

	// Database
	DatabasePath string `env:"DATABASE_PATH" envDefault:"./data/mirror.db"`

	// Destination channels
	TextChannelIDs     []int64 `env:"TEXT_CHANNEL_IDS,required" envSeparator:","`
	VoiceChannelID     int64   `env:"VOICE_CHANNEL_ID"` // 0 routes to the account's pool channel
	VideoChannelID     int64   `env:"VIDEO_CHANNEL_ID"`
	VideoNoteChannelID int64   `env:"VIDEO_NOTE_CHANNEL_ID"`
	PhotoChannelID     int64   `env:"PHOTO_CHANNEL_ID"`
	HistoryChannelID   int64   `env:"HISTORY_CHANNEL_ID,required"`
	FallbackChannelID  int64   `env:"FALLBACK_CHANNEL_ID,required"`

	// Mirroring
	MirrorRetryDelay time.Duration `env:"MIRROR_RETRY_DELAY" envDefault:"1s"`
	AccountQueueSize int           `env:"ACCOUNT_QUEUE_SIZE" envDefault:"256"`

	// Billing and background jobs
	SubscriptionRequired    bool          `env:"SUBSCRIPTION_REQUIRED" envDefault:"false"`
	ExpirySweepInterval     time.Duration `env:"EXPIRY_SWEEP_INTERVAL" envDefault:"1h"`
	InactivityCheckInterval time.Duration `env:"INACTIVITY_CHECK_INTERVAL" envDefault:"24h"`
	InactivityThreshold     time.Duration `env:"INACTIVITY_THRESHOLD" envDefault:"24h"`

	// Presentation
	Timezone string `env:"TIMEZONE" envDefault:"UTC"`

	// Metrics
	MetricsAddr string `env:"METRICS_ADDR"` // e.g. :9090, disabled when empty

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"` // "json" or "text"

	location *time.Location
}

// Pool returns the destination channel configuration
func (c *Config) Pool() channels.Pool {
	return channels.Pool{
		Text:      c.TextChannelIDs,
		Voice:     c.VoiceChannelID,
		Video:     c.VideoChannelID,
		VideoNote: c.VideoNoteChannelID,
		Photo:     c.PhotoChannelID,
		History:   c.HistoryChannelID,
		Fallback:  c.FallbackChannelID,
	}
}

// Location returns the time zone of user-facing timestamps
func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.UTC
	}
	return c.location
}

// MetricsEnabled returns true if the Prometheus listener is configured
func (c *Config) MetricsEnabled() bool {
	return c.MetricsAddr != ""
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	return parse(env.Options{})
}

func parse(opts env.Options) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if _, err := channels.NewRegistry(c.Pool()); err != nil {
		return fmt.Errorf("invalid channel configuration: %w", err)
	}
	if c.MirrorRetryDelay < 0 {
		return errors.New("MIRROR_RETRY_DELAY must not be negative")
	}
	if c.AccountQueueSize <= 0 {
		return fmt.Errorf("ACCOUNT_QUEUE_SIZE must be positive, got %d", c.AccountQueueSize)
	}
	if c.ExpirySweepInterval <= 0 || c.InactivityCheckInterval <= 0 {
		return errors.New("job intervals must be positive")
	}

	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return fmt.Errorf("invalid TIMEZONE %q: %w", c.Timezone, err)
	}
	c.location = loc

	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.LogFormat)
	}
	return nil
}
