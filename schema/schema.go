package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// Schema is an ordered JSON Schema representation. Unlike a plain
// map[string]any, it preserves property declaration order, which is
// meaningful here: prompts, generated field order and concatenation results
// all follow it. Marshaling emits keys in a fixed canonical order ($-keys
// first, then alphabetical) while property and $defs entries keep their
// declared order.
type Schema struct {
	Title                string
	Description          string
	Type                 string
	Ref                  string
	Enum                 []string
	Properties           []Property
	Required             []string
	Defs                 []Definition
	Items                *Schema
	AdditionalProperties *bool
	UniqueItems          *bool
}

// Property is a named sub-schema. Order within Schema.Properties is the
// declaration order.
type Property struct {
	Name   string
	Schema *Schema
}

// Definition is a named $defs entry.
type Definition struct {
	Name   string
	Schema *Schema
}

// NewObject returns an empty object schema with additionalProperties: false,
// the shape every data model schema starts from.
func NewObject(title string) *Schema {
	f := false
	return &Schema{Title: title, Type: "object", AdditionalProperties: &f}
}

// Property returns the sub-schema for the given property name, or nil.
func (s *Schema) Property(name string) *Schema {
	for _, p := range s.Properties {
		if p.Name == name {
			return p.Schema
		}
	}
	return nil
}

// HasProperty reports whether the schema declares the given property.
func (s *Schema) HasProperty(name string) bool {
	return s.Property(name) != nil
}

// PropertyNames returns the property names in declaration order.
func (s *Schema) PropertyNames() []string {
	names := make([]string, 0, len(s.Properties))
	for _, p := range s.Properties {
		names = append(names, p.Name)
	}
	return names
}

// IsRequired reports whether the property is listed as required.
func (s *Schema) IsRequired(name string) bool {
	for _, r := range s.Required {
		if r == name {
			return true
		}
	}
	return false
}

// Def returns the $defs entry for the given name, or nil.
func (s *Schema) Def(name string) *Schema {
	for _, d := range s.Defs {
		if d.Name == name {
			return d.Schema
		}
	}
	return nil
}

// Clone returns a deep copy.
func (s *Schema) Clone() *Schema {
	if s == nil {
		return nil
	}
	c := &Schema{
		Title:       s.Title,
		Description: s.Description,
		Type:        s.Type,
		Ref:         s.Ref,
		Items:       s.Items.Clone(),
	}
	if s.Enum != nil {
		c.Enum = append([]string(nil), s.Enum...)
	}
	if s.Required != nil {
		c.Required = append([]string(nil), s.Required...)
	}
	for _, p := range s.Properties {
		c.Properties = append(c.Properties, Property{Name: p.Name, Schema: p.Schema.Clone()})
	}
	for _, d := range s.Defs {
		c.Defs = append(c.Defs, Definition{Name: d.Name, Schema: d.Schema.Clone()})
	}
	if s.AdditionalProperties != nil {
		b := *s.AdditionalProperties
		c.AdditionalProperties = &b
	}
	if s.UniqueItems != nil {
		b := *s.UniqueItems
		c.UniqueItems = &b
	}
	return c
}

// Equal reports whether two schemas marshal to identical JSON. Property
// order matters, which is intended: two schemas that differ only in order
// describe different concatenation results.
func (s *Schema) Equal(other *Schema) bool {
	if s == nil || other == nil {
		return s == other
	}
	a, err := json.Marshal(s)
	if err != nil {
		return false
	}
	b, err := json.Marshal(other)
	if err != nil {
		return false
	}
	return bytes.Equal(a, b)
}

// MarshalJSON emits the schema with canonical key order and declared
// property order.
func (s *Schema) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	s.encode(&buf)
	return buf.Bytes(), nil
}

func (s *Schema) encode(buf *bytes.Buffer) {
	buf.WriteByte('{')
	first := true
	key := func(k string) {
		if !first {
			buf.WriteByte(',')
		}
		first = false
		b, _ := json.Marshal(k)
		buf.Write(b)
		buf.WriteByte(':')
	}
	str := func(v string) {
		b, _ := json.Marshal(v)
		buf.Write(b)
	}
	if len(s.Defs) > 0 {
		key("$defs")
		buf.WriteByte('{')
		for i, d := range s.Defs {
			if i > 0 {
				buf.WriteByte(',')
			}
			str(d.Name)
			buf.WriteByte(':')
			d.Schema.encode(buf)
		}
		buf.WriteByte('}')
	}
	if s.Ref != "" {
		key("$ref")
		str(s.Ref)
	}
	if s.AdditionalProperties != nil {
		key("additionalProperties")
		fmt.Fprintf(buf, "%t", *s.AdditionalProperties)
	}
	if s.Description != "" {
		key("description")
		str(s.Description)
	}
	if len(s.Enum) > 0 {
		key("enum")
		buf.WriteByte('[')
		for i, e := range s.Enum {
			if i > 0 {
				buf.WriteByte(',')
			}
			str(e)
		}
		buf.WriteByte(']')
	}
	if s.Items != nil {
		key("items")
		s.Items.encode(buf)
	}
	if len(s.Properties) > 0 {
		key("properties")
		buf.WriteByte('{')
		for i, p := range s.Properties {
			if i > 0 {
				buf.WriteByte(',')
			}
			str(p.Name)
			buf.WriteByte(':')
			p.Schema.encode(buf)
		}
		buf.WriteByte('}')
	}
	if len(s.Required) > 0 {
		key("required")
		buf.WriteByte('[')
		for i, r := range s.Required {
			if i > 0 {
				buf.WriteByte(',')
			}
			str(r)
		}
		buf.WriteByte(']')
	}
	if s.Title != "" {
		key("title")
		str(s.Title)
	}
	if s.Type != "" {
		key("type")
		str(s.Type)
	}
	if s.UniqueItems != nil {
		key("uniqueItems")
		fmt.Fprintf(buf, "%t", *s.UniqueItems)
	}
	buf.WriteByte('}')
}

// UnmarshalJSON parses a schema preserving the document's property order.
func (s *Schema) UnmarshalJSON(data []byte) error {
	res := gjson.ParseBytes(data)
	if !res.IsObject() {
		return fmt.Errorf("schema: expected JSON object, got %s", res.Type)
	}
	parsed, err := parse(res)
	if err != nil {
		return err
	}
	*s = *parsed
	return nil
}

// Parse builds a Schema from raw JSON bytes.
func Parse(data []byte) (*Schema, error) {
	var s Schema
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func parse(res gjson.Result) (*Schema, error) {
	s := &Schema{}
	var err error
	res.ForEach(func(k, v gjson.Result) bool {
		switch k.String() {
		case "$defs":
			v.ForEach(func(dk, dv gjson.Result) bool {
				var ds *Schema
				if ds, err = parse(dv); err != nil {
					return false
				}
				s.Defs = append(s.Defs, Definition{Name: dk.String(), Schema: ds})
				return true
			})
		case "$ref":
			s.Ref = v.String()
		case "additionalProperties":
			b := v.Bool()
			s.AdditionalProperties = &b
		case "description":
			s.Description = v.String()
		case "enum":
			for _, e := range v.Array() {
				s.Enum = append(s.Enum, e.String())
			}
		case "items":
			s.Items, err = parse(v)
		case "properties":
			v.ForEach(func(pk, pv gjson.Result) bool {
				var ps *Schema
				if ps, err = parse(pv); err != nil {
					return false
				}
				s.Properties = append(s.Properties, Property{Name: pk.String(), Schema: ps})
				return true
			})
		case "required":
			for _, r := range v.Array() {
				s.Required = append(s.Required, r.String())
			}
		case "title":
			s.Title = v.String()
		case "type":
			s.Type = v.String()
		case "uniqueItems":
			b := v.Bool()
			s.UniqueItems = &b
		}
		return err == nil
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Titleize converts a property name into its display title, e.g. "query"
// becomes "Query" and "query_1" becomes "Query 1".
func Titleize(name string) string {
	parts := strings.Split(name, "_")
	for i, p := range parts {
		if p == "" {
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, " ")
}
