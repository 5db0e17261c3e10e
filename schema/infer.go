package schema

import (
	"github.com/tidwall/gjson"
)

// Infer derives an object schema from a concrete JSON document. Property
// order follows the document, every present key is required, and types are
// taken from the JSON values (null and mixed content fall back to an
// unconstrained schema). Tool results carry no declared schema, so their
// runtime documents are typed this way before entering the graph.
func Infer(title string, raw []byte) *Schema {
	s := NewObject(title)
	gjson.ParseBytes(raw).ForEach(func(k, v gjson.Result) bool {
		name := k.String()
		s.Properties = append(s.Properties, Property{Name: name, Schema: inferValue(name, v)})
		s.Required = append(s.Required, name)
		return true
	})
	return s
}

func inferValue(name string, v gjson.Result) *Schema {
	switch v.Type {
	case gjson.String:
		return &Schema{Type: "string"}
	case gjson.Number:
		for _, c := range v.Raw {
			if c == '.' || c == 'e' || c == 'E' {
				return &Schema{Type: "number"}
			}
		}
		return &Schema{Type: "integer"}
	case gjson.True, gjson.False:
		return &Schema{Type: "boolean"}
	case gjson.JSON:
		if v.IsArray() {
			items := &Schema{}
			if elems := v.Array(); len(elems) > 0 {
				items = inferValue(name, elems[0])
			}
			return &Schema{Type: "array", Items: items}
		}
		nested := NewObject(Titleize(name))
		v.ForEach(func(k, val gjson.Result) bool {
			nested.Properties = append(nested.Properties, Property{Name: k.String(), Schema: inferValue(k.String(), val)})
			nested.Required = append(nested.Required, k.String())
			return true
		})
		return nested
	default:
		return &Schema{}
	}
}
