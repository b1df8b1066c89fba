package model

import "testing"

func TestCapabilityForStage(t *testing.T) {
	tests := []struct {
		stage    string
		expected Capability
	}{
		{"analyzer", CapabilityFast},
		{"decomposer", CapabilityPlanning},
		{"estimator", CapabilityPlanning},
		{"prioritizer", CapabilityPlanning},
		{"scheduler", CapabilityPlanning},
		// Fallback
		{"unknown-stage", CapabilityPlanning},
		{"", CapabilityPlanning},
	}

	for _, tt := range tests {
		t.Run(tt.stage, func(t *testing.T) {
			if got := CapabilityForStage(tt.stage); got != tt.expected {
				t.Errorf("CapabilityForStage(%q) = %q, want %q", tt.stage, got, tt.expected)
			}
		})
	}
}

func TestParseCapability(t *testing.T) {
	tests := []struct {
		input    string
		expected Capability
	}{
		{"planning", CapabilityPlanning},
		{"fast", CapabilityFast},
		{"writing", ""},
		{"", ""},
		{"PLANNING", ""}, // case-sensitive
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseCapability(tt.input); got != tt.expected {
				t.Errorf("ParseCapability(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}
