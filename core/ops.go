package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hupe1980/symflow/schema"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// ErrConcatNil is returned when Concat receives a nil operand. Use And or Or
// for nil-tolerant combination.
var ErrConcatNil = errors.New("core: cannot concatenate nil data model")

// Concat merges two runtime values into one document: the left operand's
// fields keep their names, colliding right fields are renamed with numeric
// suffixes exactly like the schema merge. Any nil operand is an error.
func Concat(a, b *JsonDataModel) (*JsonDataModel, error) {
	if a == nil || b == nil {
		return nil, ErrConcatNil
	}
	merged, renames := schema.ConcatWithRenames(a.schema, b.schema)
	raw := append([]byte(nil), a.raw...)
	var err error
	gjson.ParseBytes(b.raw).ForEach(func(k, v gjson.Result) bool {
		name := k.String()
		if renamed, ok := renames[name]; ok {
			name = renamed
		}
		raw, err = sjson.SetRawBytes(raw, escapePath(name), []byte(v.Raw))
		return err == nil
	})
	if err != nil {
		return nil, fmt.Errorf("core: concat values: %w", err)
	}
	return &JsonDataModel{schema: merged, raw: raw}, nil
}

// And implements the logical and of two runtime values: nil if any operand
// is nil, the concatenation otherwise.
func And(a, b *JsonDataModel) (*JsonDataModel, error) {
	if a == nil || b == nil {
		return nil, nil
	}
	return Concat(a, b)
}

// Or implements the logical or of two runtime values: the concatenation when
// both are present, the present side when one is nil, nil when both are.
func Or(a, b *JsonDataModel) (*JsonDataModel, error) {
	switch {
	case a != nil && b != nil:
		return Concat(a, b)
	case a != nil:
		return a.Clone(), nil
	case b != nil:
		return b.Clone(), nil
	default:
		return nil, nil
	}
}

// escapePath escapes gjson/sjson path metacharacters in a literal field name.
func escapePath(name string) string {
	replacer := strings.NewReplacer(".", `\.`, "*", `\*`, "?", `\?`)
	return replacer.Replace(name)
}

// ConcatOp is the graph operation behind the symbolic Concat operator.
type ConcatOp struct{ name string }

// NewConcatOp creates a concat operation node factory.
func NewConcatOp() *ConcatOp { return &ConcatOp{name: AutoName("concat")} }

// Name returns the unique operation name.
func (o *ConcatOp) Name() string { return o.name }

// Description returns the operation description.
func (o *ConcatOp) Description() string { return "Concatenate two data models" }

// Call merges the two runtime inputs.
func (o *ConcatOp) Call(_ context.Context, inputs ...*JsonDataModel) ([]*JsonDataModel, error) {
	if len(inputs) != 2 {
		return nil, fmt.Errorf("core: %s expects 2 inputs, got %d", o.name, len(inputs))
	}
	out, err := Concat(inputs[0], inputs[1])
	if err != nil {
		return nil, fmt.Errorf("core: %s: %w", o.name, err)
	}
	return []*JsonDataModel{out}, nil
}

// ComputeOutputSpec merges the two input schemas.
func (o *ConcatOp) ComputeOutputSpec(inputs ...*SymbolicDataModel) ([]*SymbolicDataModel, error) {
	if len(inputs) != 2 {
		return nil, fmt.Errorf("core: %s expects 2 inputs, got %d", o.name, len(inputs))
	}
	return []*SymbolicDataModel{NewSymbolicDataModel(schema.Concat(inputs[0].schema, inputs[1].schema))}, nil
}

// Variables returns nil; operations carry no state.
func (o *ConcatOp) Variables() []*Variable { return nil }

// Trainable returns false; operations carry no state.
func (o *ConcatOp) Trainable() bool { return false }

// SetTrainable is a no-op for operations.
func (o *ConcatOp) SetTrainable(bool) {}

// GetConfig returns the serializable operation configuration.
func (o *ConcatOp) GetConfig() map[string]any { return map[string]any{"name": o.name} }

// AndOp is the graph operation behind the symbolic And operator.
type AndOp struct{ name string }

// NewAndOp creates a logical and operation node factory.
func NewAndOp() *AndOp { return &AndOp{name: AutoName("and")} }

// Name returns the unique operation name.
func (o *AndOp) Name() string { return o.name }

// Description returns the operation description.
func (o *AndOp) Description() string { return "Logical and of two data models" }

// Call combines the two runtime inputs, yielding nil when either is nil.
func (o *AndOp) Call(_ context.Context, inputs ...*JsonDataModel) ([]*JsonDataModel, error) {
	if len(inputs) != 2 {
		return nil, fmt.Errorf("core: %s expects 2 inputs, got %d", o.name, len(inputs))
	}
	out, err := And(inputs[0], inputs[1])
	if err != nil {
		return nil, err
	}
	return []*JsonDataModel{out}, nil
}

// ComputeOutputSpec merges the two input schemas; a runtime nil collapses the
// whole value, never a subset of fields.
func (o *AndOp) ComputeOutputSpec(inputs ...*SymbolicDataModel) ([]*SymbolicDataModel, error) {
	if len(inputs) != 2 {
		return nil, fmt.Errorf("core: %s expects 2 inputs, got %d", o.name, len(inputs))
	}
	return []*SymbolicDataModel{NewSymbolicDataModel(schema.Concat(inputs[0].schema, inputs[1].schema))}, nil
}

// Variables returns nil; operations carry no state.
func (o *AndOp) Variables() []*Variable { return nil }

// Trainable returns false; operations carry no state.
func (o *AndOp) Trainable() bool { return false }

// SetTrainable is a no-op for operations.
func (o *AndOp) SetTrainable(bool) {}

// GetConfig returns the serializable operation configuration.
func (o *AndOp) GetConfig() map[string]any { return map[string]any{"name": o.name} }

// OrOp is the graph operation behind the symbolic Or operator.
type OrOp struct{ name string }

// NewOrOp creates a logical or operation node factory.
func NewOrOp() *OrOp { return &OrOp{name: AutoName("or")} }

// Name returns the unique operation name.
func (o *OrOp) Name() string { return o.name }

// Description returns the operation description.
func (o *OrOp) Description() string { return "Logical or of two data models" }

// Call combines the two runtime inputs, falling back to the present side.
func (o *OrOp) Call(_ context.Context, inputs ...*JsonDataModel) ([]*JsonDataModel, error) {
	if len(inputs) != 2 {
		return nil, fmt.Errorf("core: %s expects 2 inputs, got %d", o.name, len(inputs))
	}
	out, err := Or(inputs[0], inputs[1])
	if err != nil {
		return nil, err
	}
	return []*JsonDataModel{out}, nil
}

// ComputeOutputSpec unions the two input schemas with every property
// optional, since either side may be absent at runtime.
func (o *OrOp) ComputeOutputSpec(inputs ...*SymbolicDataModel) ([]*SymbolicDataModel, error) {
	if len(inputs) != 2 {
		return nil, fmt.Errorf("core: %s expects 2 inputs, got %d", o.name, len(inputs))
	}
	return []*SymbolicDataModel{NewSymbolicDataModel(schema.Union(inputs[0].schema, inputs[1].schema))}, nil
}

// Variables returns nil; operations carry no state.
func (o *OrOp) Variables() []*Variable { return nil }

// Trainable returns false; operations carry no state.
func (o *OrOp) Trainable() bool { return false }

// SetTrainable is a no-op for operations.
func (o *OrOp) SetTrainable(bool) {}

// GetConfig returns the serializable operation configuration.
func (o *OrOp) GetConfig() map[string]any { return map[string]any{"name": o.name} }
