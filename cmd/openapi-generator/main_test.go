package main

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/semplan/api"
)

type inner struct {
	Stage string `json:"stage"`
}

type outer struct {
	ID string `json:"id"`
	*inner
	Hidden  string `json:"-"`
	Note    string `json:"note,omitempty"`
	private string
}

func TestJSONFields(t *testing.T) {
	assert.Equal(t, []string{"id", "stage", "note"}, jsonFields(reflect.TypeOf(outer{})))
}

func TestCheckSchemas_Drift(t *testing.T) {
	doc := &openapi3.T{Components: &openapi3.Components{Schemas: openapi3.Schemas{
		"Outer": openapi3.NewSchemaRef("", openapi3.NewObjectSchema().
			WithProperty("id", openapi3.NewStringSchema()).
			WithProperty("stage", openapi3.NewStringSchema()).
			WithProperty("extra", openapi3.NewStringSchema())),
	}}}

	drift := checkSchemas(doc, map[string]reflect.Type{
		"Outer":   reflect.TypeOf(outer{}),
		"Missing": reflect.TypeOf(inner{}),
	})
	assert.Equal(t, []string{
		"Missing: schema missing",
		`Outer: field "note" not documented`,
		`Outer: property "extra" has no Go field`,
	}, drift)
}

func TestCheckSchemas_ServedDocument(t *testing.T) {
	doc, err := api.OpenAPI()
	require.NoError(t, err)
	assert.Empty(t, checkSchemas(doc, schemaTypes))
}

func TestWriteDocument(t *testing.T) {
	doc, err := api.OpenAPI()
	require.NoError(t, err)
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "openapi.yaml")
	require.NoError(t, writeDocument(yamlPath, doc))
	data, err := os.ReadFile(yamlPath)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "# OpenAPI 3.0 Specification for Semplan API"))
	assert.Contains(t, string(data), "/api/tasks:")

	jsonPath := filepath.Join(dir, "openapi.json")
	require.NoError(t, writeDocument(jsonPath, doc))
	data, err = os.ReadFile(jsonPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"openapi": "3.0.3"`)

	_, err = openapi3.NewLoader().LoadFromData(data)
	assert.NoError(t, err)
}
