package schema

import "fmt"

// Concat merges two object schemas: the properties of a keep their names and
// order, the properties of b follow. When a property name of b collides with
// one already present, the incoming property is renamed with the smallest
// unused numeric suffix (query, query_1, query_2, ...) and its title and the
// required list follow the rename. $defs are shared when identical and
// suffixed (with $ref fixups) when they differ.
func Concat(a, b *Schema) *Schema {
	merged, _ := ConcatWithRenames(a, b)
	return merged
}

// ConcatWithRenames is Concat plus the property rename map applied to the
// right operand, so value-level concatenation can relocate fields the same
// way.
func ConcatWithRenames(a, b *Schema) (*Schema, map[string]string) {
	if a == nil {
		return b.Clone(), map[string]string{}
	}
	if b == nil {
		return a.Clone(), map[string]string{}
	}

	out := a.Clone()
	out.Type = "object"
	f := false
	out.AdditionalProperties = &f
	if out.Title == "" {
		out.Title = b.Title
	}
	if out.Description == "" {
		out.Description = b.Description
	}

	refRenames := map[string]string{}
	for _, d := range b.Defs {
		existing := out.Def(d.Name)
		if existing == nil {
			out.Defs = append(out.Defs, Definition{Name: d.Name, Schema: d.Schema.Clone()})
			continue
		}
		if existing.Equal(d.Schema) {
			continue
		}
		renamed := nextFreeDef(d.Name, out)
		out.Defs = append(out.Defs, Definition{Name: renamed, Schema: d.Schema.Clone()})
		refRenames["#/$defs/"+d.Name] = "#/$defs/" + renamed
	}

	renames := map[string]string{}
	for _, p := range b.Properties {
		name := p.Name
		if out.HasProperty(name) {
			name = nextFreeProperty(p.Name, out)
			renames[p.Name] = name
		}
		ps := p.Schema.Clone()
		if name != p.Name && ps.Title != "" {
			ps.Title = Titleize(name)
		}
		rewriteRefs(ps, refRenames)
		out.Properties = append(out.Properties, Property{Name: name, Schema: ps})
	}
	for _, r := range b.Required {
		name := r
		if renamed, ok := renames[r]; ok {
			name = renamed
		}
		out.Required = append(out.Required, name)
	}

	return out, renames
}

// Union merges two object schemas the same way Concat does but marks every
// property optional. It describes values that may carry either side alone or
// both sides concatenated.
func Union(a, b *Schema) *Schema {
	out := Concat(a, b)
	out.Required = nil
	return out
}

func nextFreeProperty(base string, s *Schema) string {
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s_%d", base, i)
		if !s.HasProperty(candidate) {
			return candidate
		}
	}
}

func nextFreeDef(base string, s *Schema) string {
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s_%d", base, i)
		if s.Def(candidate) == nil {
			return candidate
		}
	}
}

func rewriteRefs(s *Schema, renames map[string]string) {
	if s == nil || len(renames) == 0 {
		return
	}
	if renamed, ok := renames[s.Ref]; ok {
		s.Ref = renamed
	}
	for _, p := range s.Properties {
		rewriteRefs(p.Schema, renames)
	}
	for _, d := range s.Defs {
		rewriteRefs(d.Schema, renames)
	}
	rewriteRefs(s.Items, renames)
}
