package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Listen != ":5000" {
		t.Errorf("expected :5000, got %s", cfg.Listen)
	}
	if cfg.Resolver.CacheTTL != time.Hour {
		t.Errorf("expected 1h TTL, got %v", cfg.Resolver.CacheTTL)
	}
	if cfg.RateLimit.MaxRequests != 10 || cfg.RateLimit.Window != time.Minute {
		t.Errorf("unexpected rate limit defaults: %+v", cfg.RateLimit)
	}
	if len(cfg.Models) != 2 || cfg.Models[0].Model != "gemini-1.5-pro" {
		t.Errorf("unexpected model chain: %+v", cfg.Models)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoad(t *testing.T) {
	t.Setenv("TEST_API_KEY", "g-test-123")

	content := `
listen: ":9090"
api:
  url: http://localhost:9090
  timeout: 10s
database:
  enabled: false
providers:
  - name: gemini
    api_key: ${TEST_API_KEY}
models:
  - provider: gemini
    model: gemini-2.0-flash
resolver:
  cache_ttl: 30m
  max_retries: 1
rate_limit:
  max_requests: 5
`
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Listen != ":9090" {
		t.Errorf("expected :9090, got %s", cfg.Listen)
	}
	if cfg.Providers[0].APIKey != "g-test-123" {
		t.Errorf("env var not expanded: got %s", cfg.Providers[0].APIKey)
	}
	if cfg.Resolver.CacheTTL != 30*time.Minute {
		t.Errorf("expected 30m TTL, got %v", cfg.Resolver.CacheTTL)
	}
	if cfg.Resolver.RetryDelay != time.Second {
		t.Errorf("unset fields should keep defaults, got retry delay %v", cfg.Resolver.RetryDelay)
	}
	if cfg.Database.Enabled {
		t.Error("expected database disabled")
	}
	if cfg.RateLimit.MaxRequests != 5 {
		t.Errorf("expected 5 max requests, got %d", cfg.RateLimit.MaxRequests)
	}
	if len(cfg.Models) != 1 || cfg.Models[0].Model != "gemini-2.0-flash" {
		t.Fatalf("unexpected models: %+v", cfg.Models)
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadOrDefaultMissing(t *testing.T) {
	t.Setenv("PORT", "7070")
	t.Setenv("GEMINI_API_KEY", "env-key")

	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Listen != ":7070" {
		t.Errorf("expected PORT override, got %s", cfg.Listen)
	}
	if cfg.Providers[0].APIKey != "env-key" {
		t.Errorf("expected GEMINI_API_KEY to fill provider key, got %q", cfg.Providers[0].APIKey)
	}
}

func TestApplyEnvKeepsConfiguredKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "env-key")
	cfg := Default()
	cfg.Providers[0].APIKey = "file-key"
	cfg.ApplyEnv()
	if cfg.Providers[0].APIKey != "file-key" {
		t.Errorf("configured key overwritten: %q", cfg.Providers[0].APIKey)
	}
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg := Default()
	cfg.Listen = ""
	cfg.Models = []ModelTarget{{Provider: "nope", Model: "x"}}
	cfg.Providers = append(cfg.Providers, ProviderConfig{Name: "bad", Type: "carrier-pigeon"})

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	msg := err.Error()
	for _, want := range []string{"listen", "unknown provider", "unknown type"} {
		if !strings.Contains(msg, want) {
			t.Errorf("expected %q in %q", want, msg)
		}
	}
}
