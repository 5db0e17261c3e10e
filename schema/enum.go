package schema

import (
	"fmt"
	"strings"
)

// WithEnum returns a copy of s where the given top-level property is
// constrained to the label set. The labels land in a $defs entry named after
// the property title and the property becomes a $ref to it, so constrained
// decoders see a closed string enum.
func WithEnum(s *Schema, prop string, labels []string) (*Schema, error) {
	return WithEnumAt(s, prop, labels)
}

// WithEnumAt is WithEnum for nested properties addressed by a slash path
// (for example "choices/name"). The walk descends through object properties,
// array items and $ref indirections. When the target property is an array,
// its items are constrained instead and uniqueItems is set.
func WithEnumAt(s *Schema, path string, labels []string) (*Schema, error) {
	if len(labels) == 0 {
		return nil, fmt.Errorf("schema: enum for %q needs at least one label", path)
	}
	out := s.Clone()
	segments := strings.Split(path, "/")
	cur := out
	for i, segment := range segments {
		node := cur.Property(segment)
		if node == nil {
			return nil, fmt.Errorf("schema: property %q not found walking %q", segment, path)
		}
		if i == len(segments)-1 {
			defName := Titleize(segment)
			if out.Def(defName) != nil {
				defName = nextFreeDef(defName, out)
			}
			out.Defs = append(out.Defs, Definition{
				Name:   defName,
				Schema: &Schema{Enum: append([]string(nil), labels...), Title: defName, Type: "string"},
			})
			ref := "#/$defs/" + defName
			if node.Type == "array" {
				node.Items = &Schema{Ref: ref}
				unique := true
				node.UniqueItems = &unique
			} else {
				description := node.Description
				*node = Schema{Ref: ref, Description: description}
			}
			return out, nil
		}
		if node.Type == "array" && node.Items != nil {
			node = node.Items
		}
		if node.Ref != "" {
			refName := strings.TrimPrefix(node.Ref, "#/$defs/")
			node = out.Def(refName)
			if node == nil {
				return nil, fmt.Errorf("schema: unresolved $ref %q walking %q", refName, path)
			}
		}
		cur = node
	}
	return nil, fmt.Errorf("schema: empty property path")
}
