package core

import (
	"context"

	"github.com/hupe1980/symflow/schema"
)

// Module defines the core interface that all computation units in symflow
// implement.
//
// Modules are the nodes of a program graph. They transform JSON data models
// into JSON data models, either eagerly through Call or symbolically through
// ComputeOutputSpec while a graph is being traced. A module may own trainable
// Variables that optimizers mutate between runs.
//
// Implementations must:
//   - Respect context cancellation in Call
//   - Propagate nil inputs as nil outputs (logical flow) unless their
//     contract states otherwise
//   - Return output specs whose schemas match what Call produces at runtime
//   - Never mutate their inputs; operators and modules return fresh values
type Module interface {
	Name() string
	Description() string
	Call(ctx context.Context, inputs ...*JsonDataModel) ([]*JsonDataModel, error)
	ComputeOutputSpec(inputs ...*SymbolicDataModel) ([]*SymbolicDataModel, error)
	Variables() []*Variable
	Trainable() bool
	SetTrainable(trainable bool)
	GetConfig() map[string]any
}

// Builder is implemented by modules that need schema-dependent
// initialization. Build runs once, before the module's first trace or call,
// with the schema of its first input.
type Builder interface {
	Build(inputs *schema.Schema) error
}

// ModuleInfo carries identifying details about a module used in summaries and
// saved graphs. Name is the unique graph identifier; Type categorizes the
// implementation (e.g. "Generator", "Decision").
type ModuleInfo struct{ Name, Type string }
