package core

import (
	"encoding/json"
	"fmt"

	"github.com/hupe1980/symflow/schema"
	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
)

// JsonDataModel is the schema+value pair that flows through a live program
// graph. The value is kept as raw JSON so field order survives and path
// access stays cheap. A nil *JsonDataModel is the "absent" value of logical
// flow: modules receiving nil propagate nil, And/Or treat it per their truth
// tables and Concat rejects it.
type JsonDataModel struct {
	schema *schema.Schema
	raw    []byte
}

// NewJsonDataModel pairs a schema with raw JSON bytes.
func NewJsonDataModel(s *schema.Schema, raw []byte) *JsonDataModel {
	return &JsonDataModel{schema: s, raw: raw}
}

// NewJsonDataModelFrom builds the runtime value for a Go struct, deriving the
// schema by reflection.
func NewJsonDataModelFrom(v any) (*JsonDataModel, error) {
	dm, err := NewDataModel(v)
	if err != nil {
		return nil, err
	}
	return dm.ToJson(), nil
}

// Schema returns the schema describing the value.
func (j *JsonDataModel) Schema() *schema.Schema {
	if j == nil {
		return nil
	}
	return j.schema
}

// Raw returns the JSON value bytes.
func (j *JsonDataModel) Raw() []byte {
	if j == nil {
		return nil
	}
	return append([]byte(nil), j.raw...)
}

// Json returns the value decoded into a map.
func (j *JsonDataModel) Json() map[string]any {
	if j == nil {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(j.raw, &m); err != nil {
		return nil
	}
	return m
}

// Get returns the value at the given gjson path, or nil when absent.
func (j *JsonDataModel) Get(path string) any {
	if j == nil {
		return nil
	}
	res := gjson.GetBytes(j.raw, path)
	if !res.Exists() {
		return nil
	}
	return res.Value()
}

// GetString returns the string value at the given path, or "".
func (j *JsonDataModel) GetString(path string) string {
	if j == nil {
		return ""
	}
	return gjson.GetBytes(j.raw, path).String()
}

// Pretty returns the value as indented JSON.
func (j *JsonDataModel) Pretty() string {
	if j == nil {
		return "null"
	}
	return string(pretty.PrettyOptions(j.raw, &pretty.Options{Indent: "  ", SortKeys: false}))
}

// Unmarshal decodes the value into the given struct.
func (j *JsonDataModel) Unmarshal(v any) error {
	if j == nil {
		return fmt.Errorf("core: cannot unmarshal nil data model")
	}
	return json.Unmarshal(j.raw, v)
}

// Validate checks the value against its schema.
func (j *JsonDataModel) Validate() error {
	if j == nil {
		return nil
	}
	return j.schema.Validate(j.raw)
}

// Clone returns a deep copy.
func (j *JsonDataModel) Clone() *JsonDataModel {
	if j == nil {
		return nil
	}
	return &JsonDataModel{schema: j.schema.Clone(), raw: append([]byte(nil), j.raw...)}
}

// ToSymbolic returns the schema-only placeholder for this value.
func (j *JsonDataModel) ToSymbolic() *SymbolicDataModel {
	if j == nil {
		return nil
	}
	return NewSymbolicDataModel(j.schema.Clone())
}

// Concat combines two runtime values; any nil operand is an error.
func (j *JsonDataModel) Concat(other *JsonDataModel) (*JsonDataModel, error) {
	return Concat(j, other)
}

// And combines two runtime values; any nil operand yields nil.
func (j *JsonDataModel) And(other *JsonDataModel) (*JsonDataModel, error) {
	return And(j, other)
}

// Or combines two runtime values; a nil operand yields the other side.
func (j *JsonDataModel) Or(other *JsonDataModel) (*JsonDataModel, error) {
	return Or(j, other)
}
