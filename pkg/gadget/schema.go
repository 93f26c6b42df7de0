package gadget

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// schemaCache compiles each distinct schema document once, matching the
// teacher's pkg/pluginsdk/validation.go pattern.
var schemaCache sync.Map

func compileSchema(raw json.RawMessage) (*jsonschema.Schema, error) {
	key := string(raw)
	if cached, ok := schemaCache.Load(key); ok {
		if compiled, ok := cached.(*jsonschema.Schema); ok {
			return compiled, nil
		}
	}
	compiled, err := jsonschema.CompileString("gadget.schema.json", key)
	if err != nil {
		return nil, err
	}
	schemaCache.Store(key, compiled)
	return compiled, nil
}

// ValidateAgainstSchema validates raw JSON parameters against schema,
// returning a *ValidationError carrying the offending field path on
// mismatch rather than a bare error, per spec.md §4.B. Top-level properties
// that are absent from raw and declare a default are filled in before
// validation, and the returned JSON carries them; defaults inside nested
// objects are not filled in.
func ValidateAgainstSchema(schema, raw json.RawMessage) (json.RawMessage, error) {
	if len(schema) == 0 {
		return raw, nil
	}
	compiled, err := compileSchema(schema)
	if err != nil {
		return nil, fmt.Errorf("gadget: compile schema: %w", err)
	}

	var decoded any
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, &ValidationError{Path: "$", Message: "invalid JSON: " + err.Error()}
	}
	if obj, ok := decoded.(map[string]any); ok {
		var declared struct {
			Properties map[string]struct{ Default json.RawMessage } `json:"properties"`
		}
		_ = json.Unmarshal(schema, &declared)
		for name, prop := range declared.Properties {
			var v any
			if _, present := obj[name]; !present && len(prop.Default) > 0 && json.Unmarshal(prop.Default, &v) == nil {
				obj[name] = v
				if out, err := json.Marshal(obj); err == nil {
					raw = out
				}
			}
		}
	}

	if err := compiled.Validate(decoded); err != nil {
		return nil, translateValidationError(err)
	}
	return raw, nil
}

// translateValidationError extracts a single representative field path
// from a jsonschema validation error tree so callers get a structured,
// actionable ValidationError instead of the library's nested error type.
func translateValidationError(err error) *ValidationError {
	if verr, ok := err.(*jsonschema.ValidationError); ok {
		leaf := deepestCause(verr)
		return &ValidationError{
			Path:    leaf.InstanceLocation,
			Message: leaf.Message,
		}
	}
	return &ValidationError{Path: "$", Message: err.Error()}
}

func deepestCause(verr *jsonschema.ValidationError) *jsonschema.ValidationError {
	current := verr
	for len(current.Causes) > 0 {
		current = current.Causes[0]
	}
	return current
}
