// Package config handles application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Defaults applied when the corresponding variable is unset.
const (
	DefaultDatabaseURL       = "./data/bot.db"
	DefaultCatalogAPIURL     = "https://www.crunchyroll.com"
	DefaultCatalogLocale     = "en-US"
	DefaultAudioLocalesURL   = "https://static.crunchyroll.com/config/i18n/v3/audio_languages.json"
	DefaultFallbackPosterURL = "https://cdn.jokelbaf.dev/crunchyma/404.png"
	DefaultPollInterval      = time.Minute
	DefaultPublishDelay      = time.Second
	DefaultPageSize          = 100
	DefaultCatalogRateLimit  = 5.0
)

// ErrMissing reports that a required variable is unset.
var ErrMissing = errors.New("not set")

// Error is a configuration error tied to a single variable.
type Error struct {
	Key   string
	Cause error
}

func (e *Error) Error() string {
	return fmt.Sprintf("config %s: %v", e.Key, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// Config holds the application configuration.
//
// ChannelID and the catalog credentials are kept raw and validated when a release
// check needs them, so a bad value fails that check instead of the process.
type Config struct {
	TelegramBotToken string
	DatabaseURL      string
	LogLevel         string
	OwnerID          int64
	MetricsAddr      string

	ChannelID string

	CatalogEmail        string
	CatalogPassword     string
	CatalogClientID     string
	CatalogClientSecret string
	DeviceID            string
	CatalogAPIURL       string
	CatalogLocale       string
	CatalogFeedURL      string
	CatalogRateLimit    float64
	AudioLocalesURL     string

	PollInterval      time.Duration
	PageSize          int
	PublishDelay      time.Duration
	FallbackPosterURL string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	if token == "" {
		return nil, &Error{Key: "TELEGRAM_BOT_TOKEN", Cause: ErrMissing}
	}

	cfg := &Config{
		TelegramBotToken:    token,
		DatabaseURL:         envOrDefault("DATABASE_URL", DefaultDatabaseURL),
		LogLevel:            envOrDefault("LOG_LEVEL", "info"),
		MetricsAddr:         os.Getenv("METRICS_ADDR"),
		ChannelID:           strings.TrimSpace(os.Getenv("CHANNEL_ID")),
		CatalogEmail:        os.Getenv("CRUNCHYROLL_EMAIL"),
		CatalogPassword:     os.Getenv("CRUNCHYROLL_PASSWORD"),
		CatalogClientID:     os.Getenv("CATALOG_CLIENT_ID"),
		CatalogClientSecret: os.Getenv("CATALOG_CLIENT_SECRET"),
		DeviceID:            os.Getenv("DEVICE_UUID"),
		CatalogAPIURL:       strings.TrimRight(envOrDefault("CATALOG_API_URL", DefaultCatalogAPIURL), "/"),
		CatalogLocale:       envOrDefault("CATALOG_LOCALE", DefaultCatalogLocale),
		CatalogFeedURL:      os.Getenv("CATALOG_FEED_URL"),
		AudioLocalesURL:     envOrDefault("AUDIO_LOCALES_URL", DefaultAudioLocalesURL),
		FallbackPosterURL:   envOrDefault("FALLBACK_POSTER_URL", DefaultFallbackPosterURL),
	}

	if cfg.DeviceID == "" {
		cfg.DeviceID = uuid.NewString()
	}

	if raw := strings.TrimSpace(os.Getenv("OWNER_ID")); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, &Error{Key: "OWNER_ID", Cause: err}
		}
		cfg.OwnerID = id
	}

	var err error
	if cfg.PollInterval, err = durationEnv("POLL_INTERVAL", DefaultPollInterval); err != nil {
		return nil, err
	}
	if cfg.PublishDelay, err = durationEnv("PUBLISH_DELAY", DefaultPublishDelay); err != nil {
		return nil, err
	}
	if cfg.PollInterval <= 0 {
		return nil, &Error{Key: "POLL_INTERVAL", Cause: fmt.Errorf("must be positive, got %s", cfg.PollInterval)}
	}
	if cfg.PublishDelay < 0 {
		return nil, &Error{Key: "PUBLISH_DELAY", Cause: fmt.Errorf("must not be negative, got %s", cfg.PublishDelay)}
	}

	cfg.PageSize = DefaultPageSize
	if raw := os.Getenv("PAGE_SIZE"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, &Error{Key: "PAGE_SIZE", Cause: err}
		}
		if n < 1 || n > 100 {
			return nil, &Error{Key: "PAGE_SIZE", Cause: fmt.Errorf("must be between 1 and 100, got %d", n)}
		}
		cfg.PageSize = n
	}

	cfg.CatalogRateLimit = DefaultCatalogRateLimit
	if raw := os.Getenv("CATALOG_RATE_LIMIT"); raw != "" {
		r, err := strconv.ParseFloat(raw, 64)
		if err != nil || r <= 0 {
			return nil, &Error{Key: "CATALOG_RATE_LIMIT", Cause: fmt.Errorf("must be a positive number, got %q", raw)}
		}
		cfg.CatalogRateLimit = r
	}

	return cfg, nil
}

// Destination returns the chat ID announcements are delivered to.
func (c *Config) Destination() (int64, error) {
	if c.ChannelID == "" {
		return 0, &Error{Key: "CHANNEL_ID", Cause: ErrMissing}
	}
	id, err := strconv.ParseInt(c.ChannelID, 10, 64)
	if err != nil {
		return 0, &Error{Key: "CHANNEL_ID", Cause: err}
	}
	return id, nil
}

// Credentials returns the catalog account credentials.
func (c *Config) Credentials() (email, password string, err error) {
	if c.CatalogEmail == "" {
		return "", "", &Error{Key: "CRUNCHYROLL_EMAIL", Cause: ErrMissing}
	}
	if c.CatalogPassword == "" {
		return "", "", &Error{Key: "CRUNCHYROLL_PASSWORD", Cause: ErrMissing}
	}
	return c.CatalogEmail, c.CatalogPassword, nil
}

// IsOwner reports whether userID may manage admins.
// Nobody is the owner when OWNER_ID is unset.
func (c *Config) IsOwner(userID int64) bool {
	return c.OwnerID != 0 && c.OwnerID == userID
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, &Error{Key: key, Cause: err}
	}
	return d, nil
}
