package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("default port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Redis.Enabled {
		t.Error("redis should be disabled by default")
	}
	if cfg.Webhooks.Timeout != 10*time.Second {
		t.Errorf("default webhook timeout = %v", cfg.Webhooks.Timeout)
	}
	if cfg.Addr() != "0.0.0.0:8080" {
		t.Errorf("Addr() = %q", cfg.Addr())
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: 9090
  base_url: https://consent.example.com
webhooks:
  timeout: 5s
  max_workers: 2
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Server.BaseURL != "https://consent.example.com" {
		t.Errorf("base url = %q", cfg.Server.BaseURL)
	}
	if cfg.Webhooks.Timeout != 5*time.Second {
		t.Errorf("webhook timeout = %v, want 5s", cfg.Webhooks.Timeout)
	}
	if cfg.Webhooks.MaxWorkers != 2 {
		t.Errorf("max workers = %d, want 2", cfg.Webhooks.MaxWorkers)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "7070")
	t.Setenv("DATABASE_URL", "postgres://env:env@db:5432/consent")
	t.Setenv("REDIS_ADDR", "cache:6379")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("port = %d, want 7070", cfg.Server.Port)
	}
	if cfg.Database.URL != "postgres://env:env@db:5432/consent" {
		t.Errorf("database url = %q", cfg.Database.URL)
	}
	if !cfg.Redis.Enabled {
		t.Error("setting REDIS_ADDR should enable redis")
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Server.Port = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for port 0")
	}

	cfg = Default()
	cfg.Database.URL = ""
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for empty database url")
	}

	cfg = Default()
	cfg.Webhooks.MaxWorkers = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for zero workers")
	}
}
