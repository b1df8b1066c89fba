package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Registry manages model selection based on capabilities.
// It maps capabilities to preferred models with fallback chains.
type Registry struct {
	mu           sync.RWMutex
	capabilities map[Capability]*CapabilityConfig
	endpoints    map[string]*EndpointConfig
	defaults     *DefaultsConfig

	health *healthState
}

// CapabilityConfig defines model preferences for a capability.
type CapabilityConfig struct {
	// Description explains what this capability is for.
	Description string `json:"description,omitempty"`

	// Preferred lists models in order of preference.
	Preferred []string `json:"preferred"`

	// Fallback lists backup models tried after every preferred model failed.
	Fallback []string `json:"fallback,omitempty"`
}

// EndpointConfig defines an available model endpoint.
type EndpointConfig struct {
	// Provider is the llm provider name (gemini, anthropic, openai, ollama).
	Provider string `json:"provider"`

	// URL overrides the provider's default base URL.
	URL string `json:"url,omitempty"`

	// Model is the model identifier sent to the provider.
	Model string `json:"model"`

	// MaxTokens is the context window size.
	MaxTokens int `json:"max_tokens,omitempty"`
}

// DefaultsConfig holds default model settings.
type DefaultsConfig struct {
	// Model is used when no capability matches.
	Model string `json:"model"`
}

// NewRegistry creates a registry from explicit capability and endpoint maps.
func NewRegistry(caps map[Capability]*CapabilityConfig, endpoints map[string]*EndpointConfig) *Registry {
	if caps == nil {
		caps = make(map[Capability]*CapabilityConfig)
	}
	if endpoints == nil {
		endpoints = make(map[string]*EndpointConfig)
	}
	return &Registry{
		capabilities: caps,
		endpoints:    endpoints,
		defaults:     &DefaultsConfig{Model: "default"},
	}
}

// NewDefaultRegistry routes every stage to Gemini Flash. The remaining
// endpoints are defined so a config file can reference them by name.
func NewDefaultRegistry() *Registry {
	r := NewRegistry(
		map[Capability]*CapabilityConfig{
			CapabilityPlanning: {
				Description: "Decomposition, estimation, prioritisation and scheduling",
				Preferred:   []string{"gemini-flash"},
			},
			CapabilityFast: {
				Description: "Task classification",
				Preferred:   []string{"gemini-flash"},
			},
		},
		map[string]*EndpointConfig{
			"gemini-flash": {
				Provider:  "gemini",
				Model:     "gemini-2.5-flash",
				MaxTokens: 1048576,
			},
			"gemini-pro": {
				Provider:  "gemini",
				Model:     "gemini-2.5-pro",
				MaxTokens: 1048576,
			},
			"claude-sonnet": {
				Provider:  "anthropic",
				Model:     "claude-sonnet-4-20250514",
				MaxTokens: 200000,
			},
			"gpt-4o-mini": {
				Provider:  "openai",
				Model:     "gpt-4o-mini",
				MaxTokens: 128000,
			},
			"qwen": {
				Provider:  "ollama",
				URL:       "http://localhost:11434/v1",
				Model:     "qwen2.5:14b",
				MaxTokens: 128000,
			},
		},
	)
	r.defaults.Model = "gemini-flash"
	return r
}

// Resolve returns the first preferred model for a capability.
func (r *Registry) Resolve(c Capability) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if cfg, ok := r.capabilities[c]; ok && len(cfg.Preferred) > 0 {
		return cfg.Preferred[0]
	}
	return r.defaults.Model
}

// GetFallbackChain returns every model for a capability in order of preference.
func (r *Registry) GetFallbackChain(c Capability) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if cfg, ok := r.capabilities[c]; ok {
		chain := make([]string, 0, len(cfg.Preferred)+len(cfg.Fallback))
		chain = append(chain, cfg.Preferred...)
		chain = append(chain, cfg.Fallback...)
		return chain
	}
	return []string{r.defaults.Model}
}

// ForStage returns the resolved model for a stage's default capability.
func (r *Registry) ForStage(stage string) string {
	return r.Resolve(CapabilityForStage(stage))
}

// GetEndpoint returns the endpoint configuration for a model name, or nil.
func (r *Registry) GetEndpoint(modelName string) *EndpointConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.endpoints[modelName]
}

// SetCapability updates or adds a capability configuration.
func (r *Registry) SetCapability(c Capability, cfg *CapabilityConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.capabilities[c] = cfg
}

// SetEndpoint updates or adds an endpoint configuration.
func (r *Registry) SetEndpoint(name string, cfg *EndpointConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.endpoints[name] = cfg
}

// SetDefault sets the default model.
func (r *Registry) SetDefault(model string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.defaults = &DefaultsConfig{Model: model}
}

// Replace swaps in the routing tables of other. Endpoint health is kept so a
// reload does not close an open circuit.
func (r *Registry) Replace(other *Registry) {
	other.mu.RLock()
	caps, endpoints, defaults := other.capabilities, other.endpoints, other.defaults
	other.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.capabilities = caps
	r.endpoints = endpoints
	r.defaults = defaults
}

// ListCapabilities returns all configured capabilities, sorted.
func (r *Registry) ListCapabilities() []Capability {
	r.mu.RLock()
	defer r.mu.RUnlock()

	caps := make([]Capability, 0, len(r.capabilities))
	for c := range r.capabilities {
		caps = append(caps, c)
	}
	sort.Slice(caps, func(i, j int) bool { return caps[i] < caps[j] })
	return caps
}

// ListEndpoints returns all configured endpoint names, sorted.
func (r *Registry) ListEndpoints() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.endpoints))
	for name := range r.endpoints {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks that every referenced model has an endpoint and that every
// endpoint names a provider and a model.
func (r *Registry) Validate() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var errs []error
	for _, c := range sortedCapabilities(r.capabilities) {
		cfg := r.capabilities[c]
		if len(cfg.Preferred) == 0 {
			errs = append(errs, fmt.Errorf("capability %q: no preferred models", c))
		}
		for _, m := range cfg.Preferred {
			if _, ok := r.endpoints[m]; !ok {
				errs = append(errs, fmt.Errorf("capability %q: preferred model %q not found in endpoints", c, m))
			}
		}
		for _, m := range cfg.Fallback {
			if _, ok := r.endpoints[m]; !ok {
				errs = append(errs, fmt.Errorf("capability %q: fallback model %q not found in endpoints", c, m))
			}
		}
	}

	for _, name := range sortedKeys(r.endpoints) {
		ep := r.endpoints[name]
		if ep.Provider == "" {
			errs = append(errs, fmt.Errorf("endpoint %q: provider is required", name))
		}
		if ep.Model == "" {
			errs = append(errs, fmt.Errorf("endpoint %q: model is required", name))
		}
	}

	if r.defaults != nil && r.defaults.Model != "" {
		if _, ok := r.endpoints[r.defaults.Model]; !ok {
			errs = append(errs, fmt.Errorf("default model %q not found in endpoints", r.defaults.Model))
		}
	}

	return errors.Join(errs...)
}

// MarshalJSON implements json.Marshaler for the registry.
func (r *Registry) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.ToConfig())
}

// UnmarshalJSON implements json.Unmarshaler for the registry.
func (r *Registry) UnmarshalJSON(data []byte) error {
	var cfg RegistryConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return err
	}
	r.Replace(registryFromConfig(&cfg))
	return nil
}

func sortedCapabilities(m map[Capability]*CapabilityConfig) []Capability {
	out := make([]Capability, 0, len(m))
	for c := range m {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func sortedKeys(m map[string]*EndpointConfig) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
