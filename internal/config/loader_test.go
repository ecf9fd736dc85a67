package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestExpandEnvVars(t *testing.T) {
	os.Setenv("TEST_VAR", "hello")
	defer os.Unsetenv("TEST_VAR")

	tests := []struct {
		input    string
		expected string
	}{
		{"${TEST_VAR}", "hello"},
		{"${TEST_VAR:default}", "hello"},
		{"${UNSET_VAR:fallback}", "fallback"},
		{"${UNSET_VAR}", ""},
		{"no vars here", "no vars here"},
		{"prefix-${TEST_VAR}-suffix", "prefix-hello-suffix"},
	}

	for _, tt := range tests {
		got := expandEnvVars(tt.input)
		if got != tt.expected {
			t.Errorf("expandEnvVars(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "service.yaml", `
server:
  host: "0.0.0.0"
  port: 9999
`)

	var cfg Config
	if err := LoadFile(p, &cfg); err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if cfg.Server.Port != 9999 {
		t.Errorf("expected port 9999, got %d", cfg.Server.Port)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("expected host 0.0.0.0, got %s", cfg.Server.Host)
	}
}

func TestLoadFile_WithEnvVars(t *testing.T) {
	t.Setenv("TEST_BUDGET", "low")

	dir := t.TempDir()
	p := writeFile(t, dir, "service.yaml", `
orchestrator:
  mode: "${TEST_MODE:smart}"
  budget: ${TEST_BUDGET}
  offline: ${TEST_OFFLINE:true}
`)

	cfg := DefaultConfig()
	if err := LoadFile(p, cfg); err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if cfg.Orchestrator.Mode != ModeSmart {
		t.Errorf("expected mode smart (default), got %s", cfg.Orchestrator.Mode)
	}
	if cfg.Orchestrator.Budget != "low" {
		t.Errorf("expected budget low, got %s", cfg.Orchestrator.Budget)
	}
	if !cfg.Orchestrator.Offline {
		t.Error("expected offline=true")
	}
	// untouched defaults survive the overlay
	if cfg.Routing.DefaultTimeout != 120*time.Second {
		t.Errorf("expected default timeout 120s, got %s", cfg.Routing.DefaultTimeout)
	}
}

func TestLoadFile_MissingIsConfigError(t *testing.T) {
	var cfg Config
	err := LoadFile("/nonexistent/service.yaml", &cfg)
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !IsConfigError(err) {
		t.Errorf("expected ConfigError, got %T", err)
	}
}

func TestLoadFile_MalformedIsConfigError(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "routing.yaml", "rules: [unclosed")

	var rc RoutingPolicyConfig
	err := LoadFile(p, &rc)
	if !IsConfigError(err) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
}

const testPortfolio = `
providers:
  openrouter:
    type: openrouter
    base_url: https://openrouter.ai/api/v1
    api_key: ${TEST_OR_KEY:sk-test}
models:
  zeta-vision:
    provider: openrouter
    name: vendor/zeta-vision
    capabilities: [vision, json]
  alpha-text:
    provider: openrouter
    name: vendor/alpha
    capabilities: [json]
defaults:
  fallbacks: [alpha-text]
`

func TestPortfolio_PreservesDeclarationOrder(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "models.yaml", testPortfolio)

	var pc PortfolioConfig
	if err := LoadFile(p, &pc); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if len(pc.Models) != 2 {
		t.Fatalf("expected 2 models, got %d", len(pc.Models))
	}
	if pc.Models[0].Name != "zeta-vision" || pc.Models[1].Name != "alpha-text" {
		t.Errorf("declaration order lost: %s, %s", pc.Models[0].Name, pc.Models[1].Name)
	}
	if pc.Models[0].RemoteID != "vendor/zeta-vision" {
		t.Errorf("expected remote id vendor/zeta-vision, got %s", pc.Models[0].RemoteID)
	}
	if pc.Providers["openrouter"].APIKey != "sk-test" {
		t.Errorf("expected env default api key, got %q", pc.Providers["openrouter"].APIKey)
	}
}

func TestPortfolio_DuplicateModelRejected(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "models.yaml", `
models:
  a:
    provider: x
  a:
    provider: y
`)
	var pc PortfolioConfig
	if err := LoadFile(p, &pc); err == nil {
		t.Fatal("expected error for duplicate model key")
	}
}

func TestLoader_Load(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, PortfolioFile, testPortfolio)
	writeFile(t, dir, RoutingFile, `
rules:
  - name: small-low
    when:
      all: ["page_count <= 3", "budget in [\"low\"]"]
    choose: zeta-vision
retry_policy:
  attempts: 2
  backoff_ms: 10
`)

	l := NewLoader(dir, nil)
	if err := l.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	snap := l.Snapshot()
	if snap.Service.Orchestrator.Mode != ModeSmart {
		t.Errorf("expected default service config when service.yaml absent")
	}
	if len(snap.Routing.Rules) != 1 || snap.Routing.Rules[0].Choose != "zeta-vision" {
		t.Errorf("unexpected rules: %+v", snap.Routing.Rules)
	}
	if snap.Routing.RetryPolicy.Attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", snap.Routing.RetryPolicy.Attempts)
	}
}

func TestLoader_MissingRoutingIsFatal(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, PortfolioFile, testPortfolio)

	l := NewLoader(dir, nil)
	err := l.Load()
	if !IsConfigError(err) {
		t.Fatalf("expected ConfigError for missing routing.yaml, got %v", err)
	}
	if l.Snapshot() != nil {
		t.Error("expected no snapshot after failed load")
	}
}
