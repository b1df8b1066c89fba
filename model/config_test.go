package model

import (
	"os"
	"path/filepath"
	"testing"
)

const mockRegistryJSON = `{
	"capabilities": {
		"planning": {"preferred": ["mock-planner"]},
		"fast": {"preferred": ["mock-analyzer"], "fallback": ["mock-planner"]}
	},
	"endpoints": {
		"mock-planner": {"provider": "ollama", "url": "http://localhost:11435/v1", "model": "mock-decomposer"},
		"mock-analyzer": {"provider": "ollama", "url": "http://localhost:11435/v1", "model": "mock-analyzer"}
	}
}`

func TestLoadFromJSON(t *testing.T) {
	t.Run("wrapped in model_registry", func(t *testing.T) {
		r, err := LoadFromJSON([]byte(`{"model_registry": ` + mockRegistryJSON + `}`))
		if err != nil {
			t.Fatalf("failed to load: %v", err)
		}
		if got := r.Resolve(CapabilityFast); got != "mock-analyzer" {
			t.Errorf("expected mock-analyzer, got %q", got)
		}
	})

	t.Run("bare registry config", func(t *testing.T) {
		r, err := LoadFromJSON([]byte(mockRegistryJSON))
		if err != nil {
			t.Fatalf("failed to load: %v", err)
		}
		if got := r.ForStage("estimator"); got != "mock-planner" {
			t.Errorf("expected mock-planner, got %q", got)
		}
		// No explicit default: the planning chain head is used.
		if got := r.Resolve(Capability("custom")); got != "mock-planner" {
			t.Errorf("expected mock-planner default, got %q", got)
		}
	})

	t.Run("invalid JSON", func(t *testing.T) {
		if _, err := LoadFromJSON([]byte(`not valid json`)); err == nil {
			t.Error("expected error for invalid JSON")
		}
	})

	t.Run("dangling reference rejected", func(t *testing.T) {
		_, err := LoadFromJSON([]byte(`{"capabilities": {"planning": {"preferred": ["ghost"]}}, "endpoints": {}}`))
		if err == nil {
			t.Error("expected validation error")
		}
	})
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models.json")
	if err := os.WriteFile(path, []byte(mockRegistryJSON), 0o644); err != nil {
		t.Fatal(err)
	}

	r, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("failed to load: %v", err)
	}
	if ep := r.GetEndpoint("mock-analyzer"); ep == nil || ep.Model != "mock-analyzer" {
		t.Errorf("unexpected endpoint: %+v", ep)
	}

	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestMergeFromConfig(t *testing.T) {
	r := NewDefaultRegistry()

	r.MergeFromConfig(&RegistryConfig{
		Capabilities: map[string]*CapabilityConfig{
			"planning": {Preferred: []string{"claude-sonnet"}},
		},
		Endpoints: map[string]*EndpointConfig{
			"local": {Provider: "ollama", Model: "llama3.2"},
		},
		Defaults: &DefaultsConfig{Model: "local"},
	})

	if got := r.Resolve(CapabilityPlanning); got != "claude-sonnet" {
		t.Errorf("expected claude-sonnet, got %q", got)
	}
	if got := r.Resolve(CapabilityFast); got != "gemini-flash" {
		t.Errorf("fast should be untouched, got %q", got)
	}
	if got := r.Resolve(Capability("other")); got != "local" {
		t.Errorf("expected new default, got %q", got)
	}
}

func TestRegistryToConfig(t *testing.T) {
	cfg := NewDefaultRegistry().ToConfig()
	if _, ok := cfg.Capabilities["planning"]; !ok {
		t.Error("expected planning capability in config")
	}
	if cfg.Defaults == nil || cfg.Defaults.Model != "gemini-flash" {
		t.Errorf("unexpected defaults: %+v", cfg.Defaults)
	}
}
