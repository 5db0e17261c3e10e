package schema

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// ValidationError represents document validation errors with detailed information.
type ValidationError struct {
	Field   string `json:"field"`   // Field that failed validation
	Value   any    `json:"value"`   // Value that was provided
	Message string `json:"message"` // Human-readable error message
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// Validate checks a JSON document against the schema: required properties
// must be present, present properties must match their declared type, and
// enum-constrained properties must carry one of the labels. Extra fields are
// allowed; generated documents are trimmed elsewhere.
func (s *Schema) Validate(doc []byte) error {
	if !gjson.ValidBytes(doc) {
		return &ValidationError{Message: "document is not valid JSON"}
	}
	root := gjson.ParseBytes(doc)
	if s.Type == "object" && !root.IsObject() {
		return &ValidationError{Message: fmt.Sprintf("expected object, got %s", root.Type)}
	}
	return s.validateObject(root, s)
}

func (s *Schema) validateObject(obj gjson.Result, root *Schema) error {
	for _, required := range s.Required {
		if !obj.Get(escapePath(required)).Exists() {
			return &ValidationError{Field: required, Message: "required field is missing"}
		}
	}
	for _, p := range s.Properties {
		value := obj.Get(escapePath(p.Name))
		if !value.Exists() {
			continue
		}
		if err := validateValue(p.Name, value, p.Schema, root); err != nil {
			return err
		}
	}
	return nil
}

func validateValue(field string, value gjson.Result, prop *Schema, root *Schema) error {
	if prop == nil {
		return nil
	}
	if prop.Ref != "" {
		resolved := root.Def(strings.TrimPrefix(prop.Ref, "#/$defs/"))
		if resolved == nil {
			return &ValidationError{Field: field, Message: fmt.Sprintf("unresolved $ref %q", prop.Ref)}
		}
		return validateValue(field, value, resolved, root)
	}
	if len(prop.Enum) > 0 {
		for _, label := range prop.Enum {
			if value.String() == label {
				return nil
			}
		}
		return &ValidationError{Field: field, Value: value.Value(), Message: fmt.Sprintf("value %q is not one of the allowed labels", value.String())}
	}
	switch prop.Type {
	case "string":
		if value.Type != gjson.String {
			return typeError(field, value, "string")
		}
	case "integer":
		if value.Type != gjson.Number || value.Float() != float64(value.Int()) {
			return typeError(field, value, "integer")
		}
	case "number":
		if value.Type != gjson.Number {
			return typeError(field, value, "number")
		}
	case "boolean":
		if !value.IsBool() {
			return typeError(field, value, "boolean")
		}
	case "array":
		if !value.IsArray() {
			return typeError(field, value, "array")
		}
		var err error
		value.ForEach(func(_, item gjson.Result) bool {
			err = validateValue(field, item, prop.Items, root)
			return err == nil
		})
		return err
	case "object":
		if !value.IsObject() {
			return typeError(field, value, "object")
		}
		return prop.validateObject(value, root)
	}
	return nil
}

func typeError(field string, value gjson.Result, expected string) error {
	return &ValidationError{
		Field:   field,
		Value:   value.Value(),
		Message: fmt.Sprintf("expected type %s, got %s", expected, jsonTypeName(value)),
	}
}

func jsonTypeName(v gjson.Result) string {
	switch {
	case v.IsObject():
		return "object"
	case v.IsArray():
		return "array"
	case v.IsBool():
		return "boolean"
	case v.Type == gjson.String:
		return "string"
	case v.Type == gjson.Number:
		return "number"
	case v.Type == gjson.Null:
		return "null"
	}
	return "unknown"
}

// escapePath escapes gjson path metacharacters in a literal field name.
func escapePath(name string) string {
	replacer := strings.NewReplacer(".", `\.`, "*", `\*`, "?", `\?`)
	return replacer.Replace(name)
}
