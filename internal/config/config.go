package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// OAuthClient is a provider client registration.
type OAuthClient struct {
	ClientID     string
	ClientSecret string
}

// Config keeps runtime settings for the service.
type Config struct {
	TelegramToken  string
	DatabaseURL    string
	ReportInterval time.Duration
	// DigestTime switches the digest to a daily HH:MM run when set.
	DigestTime string

	EnableBackgroundSync bool
	SyncInterval         time.Duration
	SyncRetryDelay       time.Duration
	SourceTimeout        time.Duration

	CanvasBaseURL    string
	GraphBaseURL     string
	GoogleEndpoint   string
	HandshakeBaseURL string

	Canvas          OAuthClient
	Microsoft       OAuthClient
	MicrosoftTenant string
	Google          OAuthClient
	Handshake       OAuthClient
}

// Load reads configuration from environment variables with sane defaults.
func Load() (Config, error) {
	cfg := Config{
		TelegramToken:  env("TELEGRAM_TOKEN"),
		DatabaseURL:    env("DATABASE_URL"),
		ReportInterval: parseInterval(env("REPORT_INTERVAL_HOURS")),
		DigestTime:     env("DIGEST_TIME"),

		EnableBackgroundSync: parseBool(env("ENABLE_BACKGROUND_SYNC"), true),
		SyncInterval:         parseDuration(env("SYNC_INTERVAL"), time.Hour),
		SyncRetryDelay:       parseDuration(env("SYNC_RETRY_DELAY"), time.Minute),
		SourceTimeout:        parseDuration(env("SOURCE_TIMEOUT"), 60*time.Second),

		CanvasBaseURL:    env("CANVAS_BASE_URL"),
		GraphBaseURL:     env("GRAPH_BASE_URL"),
		GoogleEndpoint:   env("GOOGLE_CALENDAR_ENDPOINT"),
		HandshakeBaseURL: env("HANDSHAKE_BASE_URL"),

		Canvas:          OAuthClient{ClientID: env("CANVAS_CLIENT_ID"), ClientSecret: env("CANVAS_CLIENT_SECRET")},
		Microsoft:       OAuthClient{ClientID: env("MICROSOFT_CLIENT_ID"), ClientSecret: env("MICROSOFT_CLIENT_SECRET")},
		MicrosoftTenant: env("MICROSOFT_TENANT_ID"),
		Google:          OAuthClient{ClientID: env("GOOGLE_CLIENT_ID"), ClientSecret: env("GOOGLE_CLIENT_SECRET")},
		Handshake:       OAuthClient{ClientID: env("HANDSHAKE_CLIENT_ID"), ClientSecret: env("HANDSHAKE_CLIENT_SECRET")},
	}

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = "taskhub.db"
	}

	if cfg.ReportInterval == 0 {
		cfg.ReportInterval = 5 * time.Hour
	}

	if cfg.CanvasBaseURL == "" {
		cfg.CanvasBaseURL = "https://canvas.instructure.com"
	}

	if cfg.MicrosoftTenant == "" {
		cfg.MicrosoftTenant = "common"
	}

	if cfg.TelegramToken == "" {
		return cfg, fmt.Errorf("TELEGRAM_TOKEN is required")
	}

	return cfg, nil
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func parseInterval(raw string) time.Duration {
	if raw == "" {
		return 0
	}
	hours, err := time.ParseDuration(raw + "h")
	if err != nil || hours <= 0 {
		return 0
	}
	return hours
}

// parseDuration accepts Go durations ("90s", "1h") or a bare number of
// seconds.
func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil && d > 0 {
		return d
	}
	if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return fallback
}

func parseBool(raw string, fallback bool) bool {
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return v
}
