package core

import (
	"encoding/json"
	"fmt"

	"github.com/hupe1980/symflow/schema"
)

// DataModel is a schema+value pair built from a plain Go struct. It is the
// typed entry point of the framework: struct tags define the JSON schema
// (`json` for names, `description` for prompt-facing docs) and the struct
// value provides the data. Data models convert losslessly into the symbolic
// and runtime representations that flow through program graphs.
type DataModel struct {
	schema *schema.Schema
	raw    []byte
}

// DataModelOptions configures NewDataModel.
type DataModelOptions struct {
	// Description overrides the schema description derived from the struct.
	Description string
}

// NewDataModel derives a schema from the struct type of v via reflection and
// captures its marshaled value.
func NewDataModel(v any, optFns ...func(o *DataModelOptions)) (*DataModel, error) {
	opts := DataModelOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}

	s, err := schema.FromStruct(v)
	if err != nil {
		return nil, err
	}
	if opts.Description != "" {
		s.Description = opts.Description
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("core: marshal data model value: %w", err)
	}

	return &DataModel{schema: s, raw: raw}, nil
}

// Schema returns the derived JSON schema.
func (d *DataModel) Schema() *schema.Schema { return d.schema }

// Raw returns the marshaled JSON value.
func (d *DataModel) Raw() []byte { return append([]byte(nil), d.raw...) }

// ToSymbolic returns the schema-only placeholder for graph tracing.
func (d *DataModel) ToSymbolic() *SymbolicDataModel {
	return NewSymbolicDataModel(d.schema.Clone())
}

// ToJson returns the runtime representation flowing through live graphs.
func (d *DataModel) ToJson() *JsonDataModel {
	return NewJsonDataModel(d.schema.Clone(), d.Raw())
}

// Get returns the value at the given path, or nil.
func (d *DataModel) Get(path string) any { return d.ToJson().Get(path) }

// Concat combines this data model with another value; any nil operand is an
// error.
func (d *DataModel) Concat(other *DataModel) (*JsonDataModel, error) {
	return Concat(d.ToJson(), other.toJsonOrNil())
}

// And combines this data model with another value; any nil operand yields
// nil.
func (d *DataModel) And(other *DataModel) (*JsonDataModel, error) {
	return And(d.ToJson(), other.toJsonOrNil())
}

// Or combines this data model with another value; a nil operand yields the
// other side.
func (d *DataModel) Or(other *DataModel) (*JsonDataModel, error) {
	return Or(d.ToJson(), other.toJsonOrNil())
}

func (d *DataModel) toJsonOrNil() *JsonDataModel {
	if d == nil {
		return nil
	}
	return d.ToJson()
}
