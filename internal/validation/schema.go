// Copyright 2025 Certen Protocol
//
// Minimal JSON Schema evaluator covering the keywords blueprint action
// schemas actually use: type, required, properties, enum, minimum/maximum,
// minLength/maxLength. No third-party JSON Schema validator appears
// anywhere in the example pack, so this stays a small, purpose-built
// evaluator rather than a general-purpose implementation.

package validation

import (
	"encoding/json"
	"fmt"
)

type jsonSchema struct {
	Type       string                 `json:"type,omitempty"`
	Required   []string               `json:"required,omitempty"`
	Properties map[string]*jsonSchema `json:"properties,omitempty"`
	Enum       []interface{}          `json:"enum,omitempty"`
	Minimum    *float64               `json:"minimum,omitempty"`
	Maximum    *float64               `json:"maximum,omitempty"`
	MinLength  *int                   `json:"minLength,omitempty"`
	MaxLength  *int                   `json:"maxLength,omitempty"`
	Items      *jsonSchema            `json:"items,omitempty"`
}

// evaluateSchema parses schemaBytes as a jsonSchema and checks payload
// against it, returning a human-readable violation or nil on success. A
// malformed schema document is reported as a parse error, distinct from a
// payload violation.
func evaluateSchema(schemaBytes, payload []byte) (violation string, parseErr error) {
	var schema jsonSchema
	if err := json.Unmarshal(schemaBytes, &schema); err != nil {
		return "", fmt.Errorf("parse schema: %w", err)
	}

	var value interface{}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &value); err != nil {
			return "", fmt.Errorf("parse payload: %w", err)
		}
	}

	if msg := check(&schema, value, "$"); msg != "" {
		return msg, nil
	}
	return "", nil
}

func check(schema *jsonSchema, value interface{}, path string) string {
	if schema.Type != "" && !matchesType(schema.Type, value) {
		return fmt.Sprintf("%s: expected type %s", path, schema.Type)
	}

	if len(schema.Enum) > 0 && !inEnum(schema.Enum, value) {
		return fmt.Sprintf("%s: value not in enum", path)
	}

	switch v := value.(type) {
	case map[string]interface{}:
		for _, req := range schema.Required {
			if _, ok := v[req]; !ok {
				return fmt.Sprintf("%s.%s: required field missing", path, req)
			}
		}
		for field, subSchema := range schema.Properties {
			if fieldValue, ok := v[field]; ok {
				if msg := check(subSchema, fieldValue, path+"."+field); msg != "" {
					return msg
				}
			}
		}
	case []interface{}:
		if schema.Items != nil {
			for i, item := range v {
				if msg := check(schema.Items, item, fmt.Sprintf("%s[%d]", path, i)); msg != "" {
					return msg
				}
			}
		}
	case float64:
		if schema.Minimum != nil && v < *schema.Minimum {
			return fmt.Sprintf("%s: below minimum %v", path, *schema.Minimum)
		}
		if schema.Maximum != nil && v > *schema.Maximum {
			return fmt.Sprintf("%s: above maximum %v", path, *schema.Maximum)
		}
	case string:
		if schema.MinLength != nil && len(v) < *schema.MinLength {
			return fmt.Sprintf("%s: shorter than minLength %d", path, *schema.MinLength)
		}
		if schema.MaxLength != nil && len(v) > *schema.MaxLength {
			return fmt.Sprintf("%s: longer than maxLength %d", path, *schema.MaxLength)
		}
	}

	return ""
}

func matchesType(want string, value interface{}) bool {
	switch want {
	case "object":
		_, ok := value.(map[string]interface{})
		return ok
	case "array":
		_, ok := value.([]interface{})
		return ok
	case "string":
		_, ok := value.(string)
		return ok
	case "number":
		_, ok := value.(float64)
		return ok
	case "integer":
		f, ok := value.(float64)
		return ok && f == float64(int64(f))
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "null":
		return value == nil
	default:
		return true
	}
}

func inEnum(enum []interface{}, value interface{}) bool {
	encodedValue, err := json.Marshal(value)
	if err != nil {
		return false
	}
	for _, candidate := range enum {
		encodedCandidate, err := json.Marshal(candidate)
		if err == nil && string(encodedValue) == string(encodedCandidate) {
			return true
		}
	}
	return false
}
