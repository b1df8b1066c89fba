package workflow

import (
	"encoding/json"
	"strings"
)

// Level is a three-step rating used for urgency, complexity, confidence and
// importance. The wire values are the Japanese characters the prompts ask for.
type Level string

const (
	LevelHigh   Level = "高"
	LevelMedium Level = "中"
	LevelLow    Level = "低"
)

var levelAliases = map[string]Level{
	"高":      LevelHigh,
	"high":   LevelHigh,
	"h":      LevelHigh,
	"中":      LevelMedium,
	"medium": LevelMedium,
	"mid":    LevelMedium,
	"m":      LevelMedium,
	"低":      LevelLow,
	"low":    LevelLow,
	"l":      LevelLow,
}

// ParseLevel maps a wire value or an English alias (case-insensitive) to a Level.
func ParseLevel(s string) (Level, bool) {
	l, ok := levelAliases[strings.ToLower(strings.TrimSpace(s))]
	return l, ok
}

// IsValid reports whether l is one of the three canonical values.
func (l Level) IsValid() bool {
	switch l {
	case LevelHigh, LevelMedium, LevelLow:
		return true
	}
	return false
}

// Binary reports whether l is allowed on a two-valued axis (高 or 低), as used
// for the prioritizer's urgency and importance.
func (l Level) Binary() bool {
	return l == LevelHigh || l == LevelLow
}

// String returns the wire value.
func (l Level) String() string {
	return string(l)
}

// UnmarshalJSON coerces aliases to the canonical value. Unknown strings are
// kept verbatim so validation can report them.
func (l *Level) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if p, ok := ParseLevel(s); ok {
		*l = p
		return nil
	}
	*l = Level(s)
	return nil
}
