package config

import (
	"log/slog"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("MILESTONER_HOME", home)

	cfg := Load()
	if cfg.Port != "3001" || cfg.MCPPort != "3002" {
		t.Fatalf("unexpected ports %s/%s", cfg.Port, cfg.MCPPort)
	}
	if cfg.StoreBackend != "bolt" {
		t.Fatalf("store backend = %s", cfg.StoreBackend)
	}
	if cfg.StorePath != filepath.Join(home, "schedule.db") {
		t.Fatalf("store path = %s", cfg.StorePath)
	}
	if cfg.SettingsPath != filepath.Join(home, "config.yaml") {
		t.Fatalf("settings path = %s", cfg.SettingsPath)
	}
	if cfg.PublishTimeout != 30*time.Second || cfg.ClaimLease != 10*time.Minute || cfg.DispatchInterval != 0 {
		t.Fatalf("unexpected durations %+v", cfg)
	}
	if cfg.JWTSecret != "" {
		t.Fatalf("auth should be off by default")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORE_BACKEND", "redis")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("DISPATCH_INTERVAL", "1m")
	t.Setenv("CLAIM_LEASE", "not-a-duration")
	t.Setenv("MCP_ENABLED", "false")
	t.Setenv("LOG_LEVEL", "debug")

	cfg := Load()
	if cfg.StoreBackend != "redis" || cfg.RedisDB != 3 {
		t.Fatalf("unexpected store config %+v", cfg)
	}
	if cfg.DispatchInterval != time.Minute {
		t.Fatalf("dispatch interval = %s", cfg.DispatchInterval)
	}
	if cfg.ClaimLease != 10*time.Minute {
		t.Fatalf("bad duration should fall back, got %s", cfg.ClaimLease)
	}
	if cfg.MCPEnabled {
		t.Fatalf("mcp should be disabled")
	}
	if cfg.SlogLevel() != slog.LevelDebug {
		t.Fatalf("log level = %v", cfg.SlogLevel())
	}
}

func TestLocation(t *testing.T) {
	cfg := &Config{Timezone: "America/New_York"}
	loc, err := cfg.Location()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loc.String() != "America/New_York" {
		t.Fatalf("location = %s", loc)
	}

	cfg.Timezone = "Mars/Olympus"
	if _, err := cfg.Location(); err == nil {
		t.Fatalf("expected error for unknown zone")
	}
}

func TestDSNMasksPassword(t *testing.T) {
	cfg := &Config{DatabaseURL: "postgres://user:secret@db:5432/app"}
	if got := cfg.DSN(); got != "postgres://***@db:5432/app" {
		t.Fatalf("dsn = %s", got)
	}
}

func TestValidatePublishTimeoutWithinLease(t *testing.T) {
	t.Setenv("PUBLISH_TIMEOUT", "")
	t.Setenv("CLAIM_LEASE", "")
	if err := Load().Validate(); err != nil {
		t.Fatalf("defaults rejected: %v", err)
	}

	t.Setenv("PUBLISH_TIMEOUT", "10m")
	t.Setenv("CLAIM_LEASE", "10m")
	if err := Load().Validate(); err == nil {
		t.Fatal("expected PUBLISH_TIMEOUT >= CLAIM_LEASE to be rejected")
	}
}
