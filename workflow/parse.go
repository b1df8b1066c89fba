package workflow

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/c360studio/semplan/llm"
)

// shape lists the keys a response object must carry. ints names the integer
// keys, and items describes the objects inside array-valued keys.
type shape struct {
	required []string
	ints     []string
	items    map[string]shape
}

// response is satisfied by the stage response envelopes.
type response interface {
	AnalysisResponse | DecompositionResponse | EstimationResponse | PrioritizationResponse | SchedulingResponse
	shape() shape
}

// Parse locates the JSON object in raw generation output and decodes it
// into T. It fails with *ExtractionError when no object is found,
// *MalformedJSONError when the object does not decode, and
// *SchemaValidationError when required keys are missing or have the wrong
// JSON type. Range and enum checks are left to the Validate functions.
func Parse[T response](raw string, mode llm.ExtractMode) (T, error) {
	var out T

	candidate := llm.ExtractJSON(raw, mode)
	if candidate == "" {
		return out, &ExtractionError{Raw: raw}
	}

	data := []byte(candidate)
	if !json.Valid(data) {
		repaired := []byte(llm.RepairJSON(candidate))
		if !json.Valid(repaired) {
			var decoded any
			err := json.Unmarshal(data, &decoded)
			return out, &MalformedJSONError{Candidate: candidate, Err: err}
		}
		data = repaired
	}

	var obj map[string]json.RawMessage
	err := json.Unmarshal(data, &obj)
	if err != nil {
		return out, &MalformedJSONError{Candidate: candidate, Err: err}
	}

	var v violations
	sh := out.shape()
	sh.check(obj, "", &v)

	sh.coerce(obj)
	if data, err = json.Marshal(obj); err != nil {
		return out, &MalformedJSONError{Candidate: candidate, Err: err}
	}
	if err := json.Unmarshal(data, &out); err != nil {
		v.add("%s", describeDecodeError(err))
	}
	if err := v.err(); err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

func (s shape) check(obj map[string]json.RawMessage, path string, v *violations) {
	for _, key := range s.required {
		if raw, ok := obj[key]; !ok || isNull(raw) {
			v.add("%s: required field missing", joinPath(path, key))
		}
	}

	keys := make([]string, 0, len(s.items))
	for k := range s.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		raw, ok := obj[key]
		if !ok || isNull(raw) {
			continue
		}
		p := joinPath(path, key)
		var elems []json.RawMessage
		if err := json.Unmarshal(raw, &elems); err != nil {
			v.add("%s: must be an array", p)
			continue
		}
		for i, elem := range elems {
			ep := fmt.Sprintf("%s[%d]", p, i)
			var m map[string]json.RawMessage
			if err := json.Unmarshal(elem, &m); err != nil || m == nil {
				v.add("%s: must be an object", ep)
				continue
			}
			s.items[key].check(m, ep, v)
		}
	}
}

// coerce rewrites integer keys given as whole-number floats (60.0) or
// numeric strings ("60") to plain integers. Other values are left for the
// decoder to reject.
func (s shape) coerce(obj map[string]json.RawMessage) {
	for _, key := range s.ints {
		if n, ok := wholeNumber(obj[key]); ok {
			obj[key] = json.RawMessage(strconv.FormatInt(n, 10))
		}
	}
	for key, item := range s.items {
		var elems []json.RawMessage
		if err := json.Unmarshal(obj[key], &elems); err != nil {
			continue
		}
		for i, elem := range elems {
			var m map[string]json.RawMessage
			if err := json.Unmarshal(elem, &m); err != nil || m == nil {
				continue
			}
			item.coerce(m)
			if b, err := json.Marshal(m); err == nil {
				elems[i] = b
			}
		}
		if b, err := json.Marshal(elems); err == nil {
			obj[key] = b
		}
	}
}

func wholeNumber(raw json.RawMessage) (int64, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return 0, false
	}
	if raw[0] == '"' {
		var str string
		if err := json.Unmarshal(raw, &str); err != nil {
			return 0, false
		}
		n, err := strconv.ParseInt(strings.TrimSpace(str), 10, 64)
		return n, err == nil
	}
	f, err := strconv.ParseFloat(string(raw), 64)
	if err != nil || f != math.Trunc(f) || math.Abs(f) > 1<<53 {
		return 0, false
	}
	return int64(f), true
}

func describeDecodeError(err error) string {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		field := typeErr.Field
		if field == "" {
			field = "(root)"
		}
		return fmt.Sprintf("%s: expected %s, got %s", field, typeErr.Type, typeErr.Value)
	}
	return err.Error()
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func joinPath(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}
