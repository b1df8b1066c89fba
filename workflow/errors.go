package workflow

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies why a stage failed. It is recorded on StageError and
// used as a metric label.
type ErrorKind string

const (
	KindExtraction ErrorKind = "extraction"
	KindMalformed  ErrorKind = "malformed_json"
	KindSchema     ErrorKind = "schema_validation"
	KindGeneration ErrorKind = "generation_service"
	KindInternal   ErrorKind = "internal"
)

// ExtractionError means no JSON object could be located in the output.
type ExtractionError struct {
	Raw string
}

func (e *ExtractionError) Error() string {
	return "no JSON object found in generation output"
}

func (e *ExtractionError) Kind() ErrorKind { return KindExtraction }

// MalformedJSONError means a candidate object was found but does not decode.
type MalformedJSONError struct {
	Candidate string
	Err       error
}

func (e *MalformedJSONError) Error() string {
	return fmt.Sprintf("JSONパースエラー: %v", e.Err)
}

func (e *MalformedJSONError) Unwrap() error {
	return e.Err
}

func (e *MalformedJSONError) Kind() ErrorKind { return KindMalformed }

// SchemaValidationError lists every violation found in a decoded object.
type SchemaValidationError struct {
	Violations []string
}

func (e *SchemaValidationError) Error() string {
	return "schema validation failed: " + strings.Join(e.Violations, "; ")
}

func (e *SchemaValidationError) Kind() ErrorKind { return KindSchema }

// GenerationServiceError wraps a failure of the generation call itself,
// including a stage timeout.
type GenerationServiceError struct {
	Err error
}

func (e *GenerationServiceError) Error() string {
	return fmt.Sprintf("generation failed: %v", e.Err)
}

func (e *GenerationServiceError) Unwrap() error {
	return e.Err
}

func (e *GenerationServiceError) Kind() ErrorKind { return KindGeneration }

// KindOf returns the ErrorKind of err. Errors outside the taxonomy are
// reported as KindInternal.
func KindOf(err error) ErrorKind {
	var k interface{ Kind() ErrorKind }
	if errors.As(err, &k) {
		return k.Kind()
	}
	return KindInternal
}

// violations accumulates schema problems for a single object.
type violations []string

func (v *violations) add(format string, args ...any) {
	*v = append(*v, fmt.Sprintf(format, args...))
}

func (v violations) err() error {
	if len(v) == 0 {
		return nil
	}
	return &SchemaValidationError{Violations: v}
}
