package module

import (
	"github.com/hupe1980/symflow/core"
	"github.com/hupe1980/symflow/schema"
)

// InputOptions configure a program input.
type InputOptions struct {
	// Name identifies the input in graphs and summaries. Auto-generated
	// when empty.
	Name string
}

// NewInput declares a program input carrying documents shaped like the given
// struct. It returns the symbolic source value that module calls are traced
// from.
func NewInput(structType any, optFns ...func(o *InputOptions)) (*core.SymbolicDataModel, error) {
	opts := InputOptions{}

	for _, fn := range optFns {
		fn(&opts)
	}

	s, err := schema.FromStruct(structType)
	if err != nil {
		return nil, err
	}

	name := opts.Name
	if name == "" {
		name = core.AutoName("input")
	}

	return core.NewInput(name, s), nil
}

// NewInputWithSchema declares a program input from an explicit schema, for
// callers that build schemas dynamically instead of deriving them from
// structs.
func NewInputWithSchema(s *schema.Schema, optFns ...func(o *InputOptions)) *core.SymbolicDataModel {
	opts := InputOptions{}

	for _, fn := range optFns {
		fn(&opts)
	}

	name := opts.Name
	if name == "" {
		name = core.AutoName("input")
	}

	return core.NewInput(name, s)
}
