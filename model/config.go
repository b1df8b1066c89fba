package model

import (
	"encoding/json"
	"fmt"
	"os"
)

// RegistryConfig is the JSON form of a registry. A file may hold it directly
// or under a top-level "model_registry" key.
type RegistryConfig struct {
	Capabilities map[string]*CapabilityConfig `json:"capabilities"`
	Endpoints    map[string]*EndpointConfig   `json:"endpoints"`
	Defaults     *DefaultsConfig              `json:"defaults,omitempty"`
}

// LoadFromFile loads and validates a registry from a JSON file.
func LoadFromFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry file: %w", err)
	}

	r, err := LoadFromJSON(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}

// LoadFromJSON loads and validates a registry from JSON data.
func LoadFromJSON(data []byte) (*Registry, error) {
	var wrapped struct {
		ModelRegistry *RegistryConfig `json:"model_registry"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("parse registry config: %w", err)
	}

	cfg := wrapped.ModelRegistry
	if cfg == nil {
		cfg = &RegistryConfig{}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse registry config: %w", err)
		}
	}

	r := registryFromConfig(cfg)
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("invalid registry: %w", err)
	}
	return r, nil
}

func registryFromConfig(cfg *RegistryConfig) *Registry {
	caps := make(map[Capability]*CapabilityConfig, len(cfg.Capabilities))
	for k, v := range cfg.Capabilities {
		// Unknown names are kept verbatim so custom capabilities still route.
		caps[Capability(k)] = v
	}

	r := NewRegistry(caps, cfg.Endpoints)
	switch p, ok := caps[CapabilityPlanning]; {
	case cfg.Defaults != nil && cfg.Defaults.Model != "":
		r.defaults = &DefaultsConfig{Model: cfg.Defaults.Model}
	case ok && len(p.Preferred) > 0:
		// Without an explicit default, unknown capabilities use the planning chain head.
		r.defaults = &DefaultsConfig{Model: p.Preferred[0]}
	default:
		r.defaults = &DefaultsConfig{}
	}
	return r
}

// ToConfig converts a Registry to a RegistryConfig for serialization.
func (r *Registry) ToConfig() *RegistryConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	caps := make(map[string]*CapabilityConfig, len(r.capabilities))
	for k, v := range r.capabilities {
		caps[string(k)] = v
	}

	return &RegistryConfig{
		Capabilities: caps,
		Endpoints:    r.endpoints,
		Defaults:     r.defaults,
	}
}

// MergeFromConfig overlays cfg onto the registry. Existing entries with the
// same name are overwritten.
func (r *Registry) MergeFromConfig(cfg *RegistryConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for k, v := range cfg.Capabilities {
		r.capabilities[Capability(k)] = v
	}
	for k, v := range cfg.Endpoints {
		r.endpoints[k] = v
	}
	if cfg.Defaults != nil {
		r.defaults = cfg.Defaults
	}
}
