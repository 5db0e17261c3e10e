package program

import (
	"fmt"

	"github.com/hupe1980/symflow/core"
)

// NewSequential chains modules linearly over one input symbol and wraps the
// result as a Program. Every module must produce exactly one output so the
// chain can continue.
func NewSequential(input *core.SymbolicDataModel, modules []core.Module, optFns ...func(o *Options)) (*Program, error) {
	if input == nil {
		return nil, fmt.Errorf("program: sequential requires an input symbol")
	}

	if len(modules) == 0 {
		return nil, fmt.Errorf("program: sequential requires at least one module")
	}

	x := input
	for _, m := range modules {
		if m == nil {
			return nil, fmt.Errorf("program: sequential requires non-nil modules")
		}

		next, err := core.Apply1(m, x)
		if err != nil {
			return nil, fmt.Errorf("program: sequential chaining failed at module %s: %w", m.Name(), err)
		}

		x = next
	}

	named := append([]func(o *Options){func(o *Options) {
		o.Name = core.AutoName("sequential")
	}}, optFns...)

	return New([]*core.SymbolicDataModel{input}, []*core.SymbolicDataModel{x}, named...)
}
