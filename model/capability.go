// Package model resolves pipeline stages to concrete model endpoints.
//
// Stages ask for a capability ("planning", "fast") instead of a model name.
// The Registry maps each capability to a preferred list and a fallback list
// of endpoint names, and tracks endpoint health so the LLM client can skip
// endpoints whose circuit is open.
package model

// Capability represents a semantic capability for model selection.
type Capability string

const (
	// CapabilityPlanning is for structured reasoning over a task: breaking it
	// down, estimating, ranking and scheduling.
	CapabilityPlanning Capability = "planning"

	// CapabilityFast is for short classification calls.
	CapabilityFast Capability = "fast"
)

// StageCapabilities maps pipeline stage names to their default capability.
var StageCapabilities = map[string]Capability{
	"analyzer":    CapabilityFast,
	"decomposer":  CapabilityPlanning,
	"estimator":   CapabilityPlanning,
	"prioritizer": CapabilityPlanning,
	"scheduler":   CapabilityPlanning,
}

// CapabilityForStage returns the default capability for a stage.
// Unknown stages get CapabilityPlanning.
func CapabilityForStage(stage string) Capability {
	if c, ok := StageCapabilities[stage]; ok {
		return c
	}
	return CapabilityPlanning
}

// IsValid reports whether c is a known capability.
func (c Capability) IsValid() bool {
	switch c {
	case CapabilityPlanning, CapabilityFast:
		return true
	}
	return false
}

// String returns the string representation of the capability.
func (c Capability) String() string {
	return string(c)
}

// ParseCapability converts a string to a Capability, returning empty for invalid values.
func ParseCapability(s string) Capability {
	c := Capability(s)
	if c.IsValid() {
		return c
	}
	return ""
}
