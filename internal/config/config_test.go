package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("TELEGRAM_TOKEN", "123:abc")
	for _, key := range []string{"DATABASE_URL", "REPORT_INTERVAL_HOURS", "ENABLE_BACKGROUND_SYNC", "SYNC_INTERVAL",
		"SYNC_RETRY_DELAY", "SOURCE_TIMEOUT", "CANVAS_BASE_URL", "MICROSOFT_TENANT_ID"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.DatabaseURL != "taskhub.db" {
		t.Errorf("Expected default database, got %q", cfg.DatabaseURL)
	}
	if cfg.ReportInterval != 5*time.Hour || cfg.SyncInterval != time.Hour || cfg.SyncRetryDelay != time.Minute {
		t.Errorf("unexpected interval defaults %+v", cfg)
	}
	if !cfg.EnableBackgroundSync {
		t.Errorf("Expected background sync enabled by default")
	}
	if cfg.CanvasBaseURL != "https://canvas.instructure.com" || cfg.MicrosoftTenant != "common" {
		t.Errorf("unexpected provider defaults %+v", cfg)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("TELEGRAM_TOKEN", "123:abc")
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost/taskhub")
	t.Setenv("REPORT_INTERVAL_HOURS", "3")
	t.Setenv("ENABLE_BACKGROUND_SYNC", "false")
	t.Setenv("SYNC_INTERVAL", "30m")
	t.Setenv("SYNC_RETRY_DELAY", "15")
	t.Setenv("SOURCE_TIMEOUT", "nonsense")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.ReportInterval != 3*time.Hour {
		t.Errorf("Expected 3h, got %s", cfg.ReportInterval)
	}
	if cfg.EnableBackgroundSync {
		t.Errorf("Expected background sync disabled")
	}
	if cfg.SyncInterval != 30*time.Minute || cfg.SyncRetryDelay != 15*time.Second {
		t.Errorf("Expected 30m/15s, got %s/%s", cfg.SyncInterval, cfg.SyncRetryDelay)
	}
	if cfg.SourceTimeout != 60*time.Second {
		t.Errorf("Expected fallback timeout, got %s", cfg.SourceTimeout)
	}
}

func TestLoadRequiresToken(t *testing.T) {
	t.Setenv("TELEGRAM_TOKEN", "")
	if _, err := Load(); err == nil {
		t.Fatal("Expected error without TELEGRAM_TOKEN")
	}
}
