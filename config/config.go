// Package config provides configuration loading and management for semplan.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Failure policies accepted by pipeline.failure_policy.
const (
	FailOpen = "fail_open"
	FailFast = "fail_fast"
)

// Storage drivers accepted by storage.driver.
const (
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
	DriverNATS   = "nats"
)

// Config represents the complete semplan configuration.
type Config struct {
	Model    ModelConfig    `yaml:"model"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	NATS     NATSConfig     `yaml:"nats"`
}

// ModelConfig configures model routing and generation parameters.
type ModelConfig struct {
	// Registry is a JSON model registry file. Empty uses the built-in
	// registry, which sends every stage to Gemini Flash.
	Registry string `yaml:"registry"`
	// Watch reloads Registry when the file changes (serve only).
	Watch bool `yaml:"watch"`
	// Temperature is sent with every stage call.
	Temperature float64 `yaml:"temperature"`
	// MaxTokens limits each response. 0 uses the endpoint default.
	MaxTokens int `yaml:"max_tokens"`
	// Timeout is the HTTP client timeout for a single generation call.
	Timeout time.Duration `yaml:"timeout"`
}

// PipelineConfig configures the five-stage pipeline.
type PipelineConfig struct {
	// Extraction is "balanced" or "naive".
	Extraction string `yaml:"extraction"`
	// StageTimeout bounds each stage, generation call included.
	StageTimeout time.Duration `yaml:"stage_timeout"`
	// FailurePolicy is fail_open (every stage runs) or fail_fast.
	FailurePolicy string `yaml:"failure_policy"`
	// MaxConcurrentCalls caps in-flight generation calls across runs. 0 = unlimited.
	MaxConcurrentCalls int `yaml:"max_concurrent_calls"`
	// RetryAttempts is the number of attempts per endpoint.
	RetryAttempts int `yaml:"retry_attempts"`
	// JSONMode asks backends that support it for JSON-only output.
	JSONMode bool `yaml:"json_mode"`
}

// ServerConfig configures the HTTP service.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	CORSOrigins  []string      `yaml:"cors_origins"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// StorageConfig configures run persistence.
type StorageConfig struct {
	// Driver is "sqlite", "memory" or "nats" (JetStream key-value bucket at
	// nats.url).
	Driver string `yaml:"driver"`
	// Path is the SQLite database file.
	Path string `yaml:"path"`
}

// NATSConfig configures completion events.
type NATSConfig struct {
	// URL is the NATS server URL (empty = events disabled).
	URL string `yaml:"url"`
	// Subject receives one message per completed run.
	Subject string `yaml:"subject"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Model: ModelConfig{
			Temperature: 0,
			Timeout:     3 * time.Minute,
		},
		Pipeline: PipelineConfig{
			Extraction:    "balanced",
			StageTimeout:  2 * time.Minute,
			FailurePolicy: FailOpen,
			RetryAttempts: 1,
		},
		Server: ServerConfig{
			Addr:         ":8000",
			CORSOrigins:  []string{"*"},
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 15 * time.Minute,
		},
		Storage: StorageConfig{
			Driver: DriverSQLite,
			Path:   "semplan.db",
		},
		NATS: NATSConfig{
			Subject: "semplan.plan.completed",
		},
	}
}

// Validate checks that the configuration is valid. Every problem is reported.
func (c *Config) Validate() error {
	var errs []error

	if c.Model.Temperature < 0 || c.Model.Temperature > 2 {
		errs = append(errs, fmt.Errorf("model.temperature must be between 0 and 2"))
	}
	if c.Model.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("model.max_tokens must not be negative"))
	}
	if c.Model.Watch && c.Model.Registry == "" {
		errs = append(errs, fmt.Errorf("model.watch requires model.registry"))
	}

	switch c.Pipeline.Extraction {
	case "", "balanced", "naive":
	default:
		errs = append(errs, fmt.Errorf("pipeline.extraction must be balanced or naive, got %q", c.Pipeline.Extraction))
	}
	if c.Pipeline.StageTimeout <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.stage_timeout must be positive"))
	}
	switch c.Pipeline.FailurePolicy {
	case FailOpen, FailFast:
	default:
		errs = append(errs, fmt.Errorf("pipeline.failure_policy must be %s or %s, got %q", FailOpen, FailFast, c.Pipeline.FailurePolicy))
	}
	if c.Pipeline.MaxConcurrentCalls < 0 {
		errs = append(errs, fmt.Errorf("pipeline.max_concurrent_calls must not be negative"))
	}
	if c.Pipeline.RetryAttempts < 1 {
		errs = append(errs, fmt.Errorf("pipeline.retry_attempts must be at least 1"))
	}

	if c.Server.Addr == "" {
		errs = append(errs, fmt.Errorf("server.addr is required"))
	}

	switch c.Storage.Driver {
	case DriverMemory:
	case DriverSQLite:
		if c.Storage.Path == "" {
			errs = append(errs, fmt.Errorf("storage.path is required for the sqlite driver"))
		}
	case DriverNATS:
		if c.NATS.URL == "" {
			errs = append(errs, fmt.Errorf("nats.url is required for the nats storage driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver must be %s, %s or %s, got %q", DriverSQLite, DriverMemory, DriverNATS, c.Storage.Driver))
	}

	if c.NATS.URL != "" && c.NATS.Subject == "" {
		errs = append(errs, fmt.Errorf("nats.subject is required when nats.url is set"))
	}

	return errors.Join(errs...)
}

// LoadFromFile loads configuration from a YAML file on top of the defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file.
func (c *Config) SaveToFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Merge merges another config into this one (other takes precedence for
// non-zero values). Booleans can only be switched on by a merge.
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	// Model
	if other.Model.Registry != "" {
		c.Model.Registry = other.Model.Registry
	}
	if other.Model.Watch {
		c.Model.Watch = true
	}
	if other.Model.Temperature != 0 {
		c.Model.Temperature = other.Model.Temperature
	}
	if other.Model.MaxTokens != 0 {
		c.Model.MaxTokens = other.Model.MaxTokens
	}
	if other.Model.Timeout != 0 {
		c.Model.Timeout = other.Model.Timeout
	}

	// Pipeline
	if other.Pipeline.Extraction != "" {
		c.Pipeline.Extraction = other.Pipeline.Extraction
	}
	if other.Pipeline.StageTimeout != 0 {
		c.Pipeline.StageTimeout = other.Pipeline.StageTimeout
	}
	if other.Pipeline.FailurePolicy != "" {
		c.Pipeline.FailurePolicy = other.Pipeline.FailurePolicy
	}
	if other.Pipeline.MaxConcurrentCalls != 0 {
		c.Pipeline.MaxConcurrentCalls = other.Pipeline.MaxConcurrentCalls
	}
	if other.Pipeline.RetryAttempts != 0 {
		c.Pipeline.RetryAttempts = other.Pipeline.RetryAttempts
	}
	if other.Pipeline.JSONMode {
		c.Pipeline.JSONMode = true
	}

	// Server
	if other.Server.Addr != "" {
		c.Server.Addr = other.Server.Addr
	}
	if len(other.Server.CORSOrigins) > 0 {
		c.Server.CORSOrigins = other.Server.CORSOrigins
	}
	if other.Server.ReadTimeout != 0 {
		c.Server.ReadTimeout = other.Server.ReadTimeout
	}
	if other.Server.WriteTimeout != 0 {
		c.Server.WriteTimeout = other.Server.WriteTimeout
	}

	// Storage
	if other.Storage.Driver != "" {
		c.Storage.Driver = other.Storage.Driver
	}
	if other.Storage.Path != "" {
		c.Storage.Path = other.Storage.Path
	}

	// NATS
	if other.NATS.URL != "" {
		c.NATS.URL = other.NATS.URL
	}
	if other.NATS.Subject != "" {
		c.NATS.Subject = other.NATS.Subject
	}
}
