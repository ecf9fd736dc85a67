package guard

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const offlinePolicy = `
package docroute.guard

import rego.v1

default allow := true
default reason := ""

deny contains msg if {
	input.features.offline == true
	input.provider_type != "local"
	msg := "offline documents stay on local backends"
}

deny contains msg if {
	input.features.page_count > 50
	input.provider == "anthropic"
	msg := "long documents are not sent to anthropic"
}

allow := false if {
	count(deny) > 0
}

reason := concat("; ", deny) if {
	count(deny) > 0
}
`

func loadTestEvaluator(t *testing.T, policy string) *Evaluator {
	t.Helper()
	e := New(true, 100*time.Millisecond, nil)
	if err := e.LoadFromModules(context.Background(), map[string]string{"guard.rego": policy}); err != nil {
		t.Fatalf("failed to load policy: %v", err)
	}
	return e
}

func TestEvaluator(t *testing.T) {
	e := loadTestEvaluator(t, offlinePolicy)

	tests := []struct {
		name    string
		in      Input
		allowed bool
		reason  string
	}{
		{
			name:    "online remote allowed",
			in:      Input{Provider: "openrouter", ProviderType: "openrouter", Features: map[string]any{"offline": false, "page_count": 3}},
			allowed: true,
		},
		{
			name:   "offline remote denied",
			in:     Input{Provider: "openrouter", ProviderType: "openrouter", Features: map[string]any{"offline": true, "page_count": 3}},
			reason: "offline documents stay on local backends",
		},
		{
			name:    "offline local allowed",
			in:      Input{Provider: "local", ProviderType: "local", Features: map[string]any{"offline": true}},
			allowed: true,
		},
		{
			name:   "long document to anthropic denied",
			in:     Input{Provider: "anthropic", ProviderType: "anthropic", Features: map[string]any{"page_count": 80}},
			reason: "long documents are not sent to anthropic",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := e.Evaluate(context.Background(), tt.in)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if d.Allowed != tt.allowed {
				t.Errorf("allowed = %v, want %v (reason %q)", d.Allowed, tt.allowed, d.Reason)
			}
			if d.Reason != tt.reason {
				t.Errorf("reason = %q, want %q", d.Reason, tt.reason)
			}
		})
	}
}

func TestEvaluator_Disabled(t *testing.T) {
	e := New(false, 0, nil)
	d, err := e.Evaluate(context.Background(), Input{Provider: "openrouter"})
	if err != nil || !d.Allowed {
		t.Errorf("disabled guard should allow, got %+v err=%v", d, err)
	}

	var nilGuard *Evaluator
	if d, _ := nilGuard.Evaluate(context.Background(), Input{}); !d.Allowed {
		t.Error("nil guard should allow")
	}
}

func TestEvaluator_NoPoliciesDenies(t *testing.T) {
	e := New(true, 0, nil)
	d, err := e.Evaluate(context.Background(), Input{Provider: "openrouter"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Allowed {
		t.Error("enabled guard without policies should deny")
	}
}

func TestEvaluator_InvalidPolicy(t *testing.T) {
	e := New(true, 0, nil)
	if err := e.LoadFromModules(context.Background(), map[string]string{"bad.rego": "package docroute.guard\nallow := {"}); err == nil {
		t.Error("expected compile error")
	}
}

func TestLoad_FromDirectory(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "guard.rego"), []byte(offlinePolicy), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("ignored"), 0o644); err != nil {
		t.Fatal(err)
	}

	modules, err := LoadRegoFiles(dir)
	if err != nil {
		t.Fatalf("LoadRegoFiles: %v", err)
	}
	if len(modules) != 1 {
		t.Fatalf("expected 1 module, got %d", len(modules))
	}

	e := New(true, 0, nil)
	if err := e.Load(context.Background(), dir); err != nil {
		t.Fatalf("Load: %v", err)
	}
	d, _ := e.Evaluate(context.Background(), Input{Provider: "local", ProviderType: "local", Features: map[string]any{"offline": true}})
	if !d.Allowed {
		t.Errorf("expected allow, got %q", d.Reason)
	}
}
