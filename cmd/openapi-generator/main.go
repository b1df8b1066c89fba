// Package main writes the semplan OpenAPI document to disk and checks it
// against the Go types the API serves.
//
// Usage:
//
//	openapi-generator -o ./specs/openapi.v3.yaml
//	openapi-generator -check
//
// With -check nothing is written; the tool exits non-zero when a component
// schema lists different properties than the JSON encoding of its Go type.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"gopkg.in/yaml.v3"

	"github.com/c360studio/semplan/api"
	"github.com/c360studio/semplan/llm"
	"github.com/c360studio/semplan/storage"
	"github.com/c360studio/semplan/workflow"
)

// schemaTypes maps component schema names to the Go types they document.
var schemaTypes = map[string]reflect.Type{
	"CreateTaskRequest":  reflect.TypeOf(api.CreateTaskRequest{}),
	"HealthResponse":     reflect.TypeOf(api.HealthResponse{}),
	"Analysis":           reflect.TypeOf(workflow.Analysis{}),
	"SubTask":            reflect.TypeOf(workflow.SubTask{}),
	"TimeEstimate":       reflect.TypeOf(workflow.TimeEstimate{}),
	"PriorityAssignment": reflect.TypeOf(workflow.PriorityAssignment{}),
	"ScheduledTask":      reflect.TypeOf(workflow.ScheduledTask{}),
	"StageError":         reflect.TypeOf(workflow.StageError{}),
	"Outcome":            reflect.TypeOf(workflow.Outcome{}),
	"Issue":              reflect.TypeOf(workflow.Issue{}),
	"TaskResponse":       reflect.TypeOf(storage.RunRecord{}),
	"CallRecord":         reflect.TypeOf(llm.CallRecord{}),
}

func main() {
	openapiOut := flag.String("o", "./specs/openapi.v3.yaml", "Output path for OpenAPI spec (.yaml or .json)")
	check := flag.Bool("check", false, "Only check the document against the Go types")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	doc, err := api.OpenAPI()
	if err != nil {
		logger.Error("Failed to load OpenAPI document", "error", err)
		os.Exit(1)
	}

	drift := checkSchemas(doc, schemaTypes)
	for _, d := range drift {
		logger.Warn("Schema drift", "detail", d)
	}
	if *check {
		if len(drift) > 0 {
			os.Exit(1)
		}
		logger.Info("OpenAPI document matches Go types", "schemas", len(schemaTypes))
		return
	}

	if err := os.MkdirAll(filepath.Dir(*openapiOut), 0755); err != nil {
		logger.Error("Failed to create output directory", "error", err)
		os.Exit(1)
	}
	if err := writeDocument(*openapiOut, doc); err != nil {
		logger.Error("Failed to write OpenAPI spec", "error", err)
		os.Exit(1)
	}
	logger.Info("Generated OpenAPI spec", "path", *openapiOut, "paths", doc.Paths.Len())
}

// checkSchemas compares each named component schema's property names with
// the JSON field names of its Go type and returns one line per mismatch.
func checkSchemas(doc *openapi3.T, types map[string]reflect.Type) []string {
	names := make([]string, 0, len(types))
	for name := range types {
		names = append(names, name)
	}
	sort.Strings(names)

	var drift []string
	for _, name := range names {
		var ref *openapi3.SchemaRef
		if doc.Components != nil {
			ref = doc.Components.Schemas[name]
		}
		if ref == nil || ref.Value == nil {
			drift = append(drift, fmt.Sprintf("%s: schema missing", name))
			continue
		}

		documented := make(map[string]bool, len(ref.Value.Properties))
		for prop := range ref.Value.Properties {
			documented[prop] = true
		}
		for _, field := range jsonFields(types[name]) {
			if !documented[field] {
				drift = append(drift, fmt.Sprintf("%s: field %q not documented", name, field))
			}
			delete(documented, field)
		}
		for _, prop := range sortedKeys(documented) {
			drift = append(drift, fmt.Sprintf("%s: property %q has no Go field", name, prop))
		}
	}
	return drift
}

// jsonFields returns the JSON object keys encoding/json produces for t,
// promoting the fields of untagged embedded structs.
func jsonFields(t reflect.Type) []string {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	var fields []string
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)

		jsonTag := field.Tag.Get("json")
		if jsonTag == "-" {
			continue
		}
		name, _ := parseJSONTag(jsonTag)

		if field.Anonymous && name == "" {
			ft := field.Type
			if ft.Kind() == reflect.Ptr {
				ft = ft.Elem()
			}
			if ft.Kind() == reflect.Struct {
				fields = append(fields, jsonFields(ft)...)
				continue
			}
		}
		if !field.IsExported() {
			continue
		}
		if name == "" {
			name = field.Name
		}
		fields = append(fields, name)
	}
	return fields
}

// parseJSONTag parses a json struct tag and returns the name and options.
func parseJSONTag(tag string) (name string, opts string) {
	if tag == "" {
		return "", ""
	}
	parts := strings.Split(tag, ",")
	name = parts[0]
	if len(parts) > 1 {
		opts = strings.Join(parts[1:], ",")
	}
	return name, opts
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// writeDocument writes doc as JSON or YAML depending on the file extension.
func writeDocument(filename string, doc *openapi3.T) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	if strings.HasSuffix(filename, ".json") {
		return os.WriteFile(filename, append(data, '\n'), 0644)
	}

	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return fmt.Errorf("failed to convert to YAML: %w", err)
	}
	clearStyle(&node)
	yamlData, err := yaml.Marshal(&node)
	if err != nil {
		return fmt.Errorf("failed to marshal YAML: %w", err)
	}

	header := []byte(strings.TrimSpace(`
# OpenAPI 3.0 Specification for Semplan API
# Generated by openapi-generator from api/openapi.yaml
`) + "\n\n")
	return os.WriteFile(filename, append(header, yamlData...), 0644)
}

func clearStyle(n *yaml.Node) {
	n.Style = 0
	for _, c := range n.Content {
		clearStyle(c)
	}
}
