package schema

import (
	"fmt"
	"reflect"
	"strings"
	"time"
)

// FromStruct creates a schema from a Go struct using reflection. Field order
// becomes property order. The `json` tag controls the property name, the
// `description` tag fills the property description. Pointer fields and fields
// tagged omitempty are optional; everything else is required.
func FromStruct(structType any) (*Schema, error) {
	t := reflect.TypeOf(structType)
	if t == nil {
		return nil, fmt.Errorf("schema: cannot derive schema from nil")
	}
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("schema: expected struct, got %s", t.Kind())
	}
	return fromStructType(t)
}

func fromStructType(t reflect.Type) (*Schema, error) {
	s := NewObject(t.Name())

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}

		jsonTag := field.Tag.Get("json")
		if jsonTag == "-" {
			continue
		}

		fieldName := field.Name
		if jsonTag != "" {
			parts := strings.Split(jsonTag, ",")
			if parts[0] != "" {
				fieldName = parts[0]
			}
		}

		fieldSchema, err := fromType(field.Type)
		if err != nil {
			return nil, fmt.Errorf("schema: field %s: %w", field.Name, err)
		}
		if fieldSchema.Title == "" {
			fieldSchema.Title = Titleize(fieldName)
		}
		if description := field.Tag.Get("description"); description != "" {
			fieldSchema.Description = description
		}

		s.Properties = append(s.Properties, Property{Name: fieldName, Schema: fieldSchema})

		if !hasOmitEmpty(jsonTag) && field.Type.Kind() != reflect.Ptr {
			s.Required = append(s.Required, fieldName)
		}
	}

	return s, nil
}

func fromType(t reflect.Type) (*Schema, error) {
	switch t.Kind() {
	case reflect.String:
		return &Schema{Type: "string"}, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return &Schema{Type: "integer"}, nil
	case reflect.Float32, reflect.Float64:
		return &Schema{Type: "number"}, nil
	case reflect.Bool:
		return &Schema{Type: "boolean"}, nil
	case reflect.Slice, reflect.Array:
		items, err := fromType(t.Elem())
		if err != nil {
			return nil, err
		}
		return &Schema{Type: "array", Items: items}, nil
	case reflect.Map:
		return &Schema{Type: "object"}, nil
	case reflect.Struct:
		if t == reflect.TypeOf(time.Time{}) {
			return &Schema{Type: "string"}, nil
		}
		return fromStructType(t)
	case reflect.Ptr:
		return fromType(t.Elem())
	case reflect.Interface:
		return &Schema{}, nil
	default:
		return nil, fmt.Errorf("unsupported kind %s", t.Kind())
	}
}

// hasOmitEmpty checks if a JSON tag has the "omitempty" option.
func hasOmitEmpty(tag string) bool {
	parts := strings.Split(tag, ",")
	for _, part := range parts[1:] {
		if strings.TrimSpace(part) == "omitempty" {
			return true
		}
	}
	return false
}
