package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Model.Temperature != 0 {
		t.Errorf("expected default temperature 0, got %f", cfg.Model.Temperature)
	}
	if cfg.Pipeline.Extraction != "balanced" {
		t.Errorf("expected balanced extraction, got %s", cfg.Pipeline.Extraction)
	}
	if cfg.Pipeline.FailurePolicy != FailOpen {
		t.Errorf("expected fail_open, got %s", cfg.Pipeline.FailurePolicy)
	}
	if cfg.Pipeline.RetryAttempts != 1 {
		t.Errorf("expected a single attempt, got %d", cfg.Pipeline.RetryAttempts)
	}
	if cfg.NATS.URL != "" {
		t.Error("expected NATS disabled by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should be valid: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{
			name:   "valid default config",
			modify: func(c *Config) {},
		},
		{
			name:   "memory storage needs no path",
			modify: func(c *Config) { c.Storage.Driver = DriverMemory; c.Storage.Path = "" },
		},
		{
			name:    "unknown extraction mode",
			modify:  func(c *Config) { c.Pipeline.Extraction = "regex" },
			wantErr: "pipeline.extraction",
		},
		{
			name:    "unknown failure policy",
			modify:  func(c *Config) { c.Pipeline.FailurePolicy = "retry" },
			wantErr: "pipeline.failure_policy",
		},
		{
			name:    "zero stage timeout",
			modify:  func(c *Config) { c.Pipeline.StageTimeout = 0 },
			wantErr: "pipeline.stage_timeout",
		},
		{
			name:    "temperature too high",
			modify:  func(c *Config) { c.Model.Temperature = 2.5 },
			wantErr: "model.temperature",
		},
		{
			name:    "watch without registry",
			modify:  func(c *Config) { c.Model.Watch = true },
			wantErr: "model.watch",
		},
		{
			name:    "sqlite without path",
			modify:  func(c *Config) { c.Storage.Path = "" },
			wantErr: "storage.path",
		},
		{
			name:    "unknown storage driver",
			modify:  func(c *Config) { c.Storage.Driver = "postgres" },
			wantErr: "storage.driver",
		},
		{
			name:    "nats storage without url",
			modify:  func(c *Config) { c.Storage.Driver = DriverNATS },
			wantErr: "nats.url",
		},
		{
			name:    "nats url without subject",
			modify:  func(c *Config) { c.NATS.URL = "nats://localhost:4222"; c.NATS.Subject = "" },
			wantErr: "nats.subject",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %s", err, tt.wantErr)
			}
		})
	}
}

func TestConfigValidateReportsEveryProblem(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Pipeline.Extraction = "regex"
	cfg.Server.Addr = ""

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"pipeline.extraction", "server.addr"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q should mention %s", err, want)
		}
	}
}

func TestLoadFromFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")

	content := `
model:
  registry: "models.json"
  temperature: 0.3
  timeout: 10m
pipeline:
  extraction: naive
  stage_timeout: 45s
  failure_policy: fail_fast
  max_concurrent_calls: 4
server:
  cors_origins: ["http://localhost:3000"]
nats:
  url: "nats://test:4222"
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}

	if cfg.Model.Registry != "models.json" {
		t.Errorf("expected registry models.json, got %s", cfg.Model.Registry)
	}
	if cfg.Model.Timeout != 10*time.Minute {
		t.Errorf("expected timeout 10m, got %v", cfg.Model.Timeout)
	}
	if cfg.Pipeline.Extraction != "naive" || cfg.Pipeline.FailurePolicy != FailFast {
		t.Errorf("unexpected pipeline config: %+v", cfg.Pipeline)
	}
	if cfg.Pipeline.StageTimeout != 45*time.Second {
		t.Errorf("expected stage timeout 45s, got %v", cfg.Pipeline.StageTimeout)
	}
	if cfg.Pipeline.RetryAttempts != 1 {
		t.Errorf("unset keys should keep defaults, got retry_attempts=%d", cfg.Pipeline.RetryAttempts)
	}
	if len(cfg.Server.CORSOrigins) != 1 || cfg.Server.CORSOrigins[0] != "http://localhost:3000" {
		t.Errorf("unexpected cors origins %v", cfg.Server.CORSOrigins)
	}
	if cfg.NATS.Subject != "semplan.plan.completed" {
		t.Errorf("expected default subject, got %s", cfg.NATS.Subject)
	}
}

func TestConfigMerge(t *testing.T) {
	base := DefaultConfig()
	base.Merge(&Config{
		Pipeline: PipelineConfig{FailurePolicy: FailFast, JSONMode: true},
		Storage:  StorageConfig{Driver: DriverMemory},
	})

	if base.Pipeline.FailurePolicy != FailFast {
		t.Errorf("expected fail_fast, got %s", base.Pipeline.FailurePolicy)
	}
	if !base.Pipeline.JSONMode {
		t.Error("expected json_mode switched on")
	}
	if base.Pipeline.Extraction != "balanced" {
		t.Errorf("extraction should remain default, got %s", base.Pipeline.Extraction)
	}
	if base.Storage.Driver != DriverMemory || base.Storage.Path != "semplan.db" {
		t.Errorf("unexpected storage config %+v", base.Storage)
	}

	base.Merge(nil)
}

func TestConfigSaveToFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "subdir", "config.yaml")

	cfg := DefaultConfig()
	cfg.Pipeline.StageTimeout = 90 * time.Second
	cfg.Storage.Path = "/var/lib/semplan/runs.db"

	if err := cfg.SaveToFile(configPath); err != nil {
		t.Fatalf("SaveToFile() error = %v", err)
	}

	loaded, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("failed to load saved config: %v", err)
	}
	if loaded.Pipeline.StageTimeout != 90*time.Second {
		t.Errorf("expected stage timeout 90s, got %v", loaded.Pipeline.StageTimeout)
	}
	if loaded.Storage.Path != "/var/lib/semplan/runs.db" {
		t.Errorf("expected storage path to round-trip, got %s", loaded.Storage.Path)
	}
}
