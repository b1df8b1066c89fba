package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// trailingCommaPattern matches trailing commas before ] or }.
var trailingCommaPattern = regexp.MustCompile(`,\s*([}\]])`)

// ExtractMode selects how a JSON object is located inside free-form LLM output.
type ExtractMode string

const (
	// ExtractBalanced scans for the first complete, valid top-level object,
	// ignoring braces inside JSON strings and skipping stray brace groups in prose.
	ExtractBalanced ExtractMode = "balanced"

	// ExtractNaive slices from the first '{' to the last '}' inclusive.
	// Nested or stray braces in the surrounding prose can corrupt the slice.
	ExtractNaive ExtractMode = "naive"
)

// ParseExtractMode converts a config string to an ExtractMode.
// The empty string selects ExtractBalanced.
func ParseExtractMode(s string) (ExtractMode, error) {
	switch ExtractMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ExtractBalanced:
		return ExtractBalanced, nil
	case ExtractNaive:
		return ExtractNaive, nil
	}
	return "", fmt.Errorf("unknown extraction mode %q (want balanced or naive)", s)
}

// ExtractJSON locates a JSON object in an LLM response string.
// It returns "" when the content has no '{' or no '}'.
// The returned text is not guaranteed to be valid JSON.
func ExtractJSON(content string, mode ExtractMode) string {
	if mode == ExtractNaive {
		return extractNaive(content)
	}
	return extractBalanced(content)
}

// extractNaive slices from the first '{' to the last '}'. When the last '}'
// comes before the first '{', the text between them is returned so the
// caller reports a decode error rather than a missing object.
func extractNaive(content string) string {
	start := strings.IndexByte(content, '{')
	end := strings.LastIndexByte(content, '}')
	if start == -1 || end == -1 {
		return ""
	}
	if end < start {
		return content[end : start+1]
	}
	return content[start : end+1]
}

// extractBalanced returns the first balanced candidate that decodes (directly
// or after RepairJSON). If none decodes, the first balanced candidate is
// returned so the caller reports the decode error. An opening brace that is
// never closed yields the remainder of the content.
func extractBalanced(content string) string {
	var first string
	pos := 0
	for {
		rel := strings.IndexByte(content[pos:], '{')
		if rel < 0 {
			return first
		}
		start := pos + rel

		end := matchBrace(content, start)
		if end < 0 {
			if first == "" {
				return content[start:]
			}
			return first
		}

		candidate := content[start : end+1]
		if json.Valid([]byte(candidate)) || json.Valid([]byte(RepairJSON(candidate))) {
			return candidate
		}
		if first == "" {
			first = candidate
		}
		pos = end + 1
	}
}

// matchBrace returns the index of the brace closing the one at start, or -1.
func matchBrace(s string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// RepairJSON removes JavaScript-style comments and trailing commas from JSON.
// LLMs commonly produce these invalid JSON artifacts. It is only meant as a
// second attempt after a strict decode failed: the trailing-comma rewrite is
// not string-aware.
func RepairJSON(raw string) string {
	lines := strings.Split(raw, "\n")
	cleaned := make([]string, 0, len(lines))
	for _, line := range lines {
		cleaned = append(cleaned, stripLineComment(line))
	}
	result := strings.Join(cleaned, "\n")

	return trailingCommaPattern.ReplaceAllString(result, "$1")
}

// stripLineComment removes a // comment from a JSON line, respecting string values.
// For example:
//
//	"path/to/file.js",          // This is a comment  → "path/to/file.js",
//	"url": "http://example.com" // comment             → "url": "http://example.com"
//	"url": "http://example.com"                        → "url": "http://example.com" (no change)
func stripLineComment(line string) string {
	if !strings.Contains(line, "//") {
		return line
	}

	inString := false
	escaped := false
	for i := 0; i < len(line); i++ {
		ch := line[i]
		if escaped {
			escaped = false
			continue
		}
		if ch == '\\' && inString {
			escaped = true
			continue
		}
		if ch == '"' {
			inString = !inString
			continue
		}
		if !inString && ch == '/' && i+1 < len(line) && line[i+1] == '/' {
			return strings.TrimRight(line[:i], " \t")
		}
	}
	return line
}
