package core

import (
	"errors"
	"fmt"

	"github.com/hupe1980/symflow/schema"
)

// SymbolicDataModel is a schema-only placeholder used while tracing a
// program graph. It carries no value, only the schema a module will produce
// at runtime plus the provenance (origin node and output index) the graph
// builder walks to recover the module topology.
type SymbolicDataModel struct {
	schema *schema.Schema
	name   string
	origin *Node
	index  int
}

// NewSymbolicDataModel creates a free-standing symbolic value for a schema.
func NewSymbolicDataModel(s *schema.Schema) *SymbolicDataModel {
	return &SymbolicDataModel{schema: s}
}

// NewInput creates a source symbolic value. Source symbols originate from an
// input node carrying no module; programs require every traced path to end
// in one.
func NewInput(name string, s *schema.Schema) *SymbolicDataModel {
	if name == "" {
		name = AutoName("input")
	}
	sym := &SymbolicDataModel{schema: s, name: name}
	node := &Node{id: NewID(), outputs: []*SymbolicDataModel{sym}}
	sym.origin = node
	return sym
}

// Schema returns the schema this placeholder stands for.
func (s *SymbolicDataModel) Schema() *schema.Schema {
	if s == nil {
		return nil
	}
	return s.schema
}

// Name returns the symbol name (input symbols only; empty otherwise).
func (s *SymbolicDataModel) Name() string { return s.name }

// Origin returns the node that produced this symbol, nil for free-standing
// symbols.
func (s *SymbolicDataModel) Origin() *Node { return s.origin }

// Index returns the output position of this symbol at its origin node.
func (s *SymbolicDataModel) Index() int { return s.index }

// Concat records a concatenation of two symbolic values into the graph.
func (s *SymbolicDataModel) Concat(other *SymbolicDataModel) (*SymbolicDataModel, error) {
	return Apply1(NewConcatOp(), s, other)
}

// And records a logical and of two symbolic values into the graph.
func (s *SymbolicDataModel) And(other *SymbolicDataModel) (*SymbolicDataModel, error) {
	return Apply1(NewAndOp(), s, other)
}

// Or records a logical or of two symbolic values into the graph.
func (s *SymbolicDataModel) Or(other *SymbolicDataModel) (*SymbolicDataModel, error) {
	return Apply1(NewOrOp(), s, other)
}

// Apply is the symbolic sugar for single-input single-output modules:
// x.Apply(m) traces m over x.
func (s *SymbolicDataModel) Apply(m Module) (*SymbolicDataModel, error) {
	return Apply1(m, s)
}

// Node records one application of a module to symbolic inputs. Input nodes
// carry no module. Applying the same module twice produces two nodes sharing
// the module (and its variables).
type Node struct {
	id      string
	module  Module
	inputs  []*SymbolicDataModel
	outputs []*SymbolicDataModel
}

// ID returns the unique node identifier.
func (n *Node) ID() string { return n.id }

// Module returns the applied module, nil for input nodes.
func (n *Node) Module() Module { return n.module }

// Inputs returns the symbolic inputs of the application.
func (n *Node) Inputs() []*SymbolicDataModel { return n.inputs }

// Outputs returns the symbolic outputs of the application.
func (n *Node) Outputs() []*SymbolicDataModel { return n.outputs }

// IsInput reports whether this is a source node.
func (n *Node) IsInput() bool { return n.module == nil }

// Apply traces a module application: modules implementing Builder are built
// against the first input's schema, the output specs are computed, and a
// graph node is recorded as the origin of every output.
func Apply(m Module, inputs ...*SymbolicDataModel) ([]*SymbolicDataModel, error) {
	if m == nil {
		return nil, errors.New("core: cannot apply nil module")
	}
	if len(inputs) == 0 {
		return nil, fmt.Errorf("core: module %s applied without inputs", m.Name())
	}
	for i, in := range inputs {
		if in == nil {
			return nil, fmt.Errorf("core: module %s applied to nil symbolic input %d", m.Name(), i)
		}
	}
	if b, ok := m.(Builder); ok {
		if err := b.Build(inputs[0].Schema()); err != nil {
			return nil, fmt.Errorf("core: build module %s: %w", m.Name(), err)
		}
	}
	outputs, err := m.ComputeOutputSpec(inputs...)
	if err != nil {
		return nil, err
	}
	node := &Node{id: NewID(), module: m, inputs: inputs, outputs: outputs}
	for i, out := range outputs {
		out.origin = node
		out.index = i
	}
	return outputs, nil
}

// Apply1 traces a module expected to produce exactly one output.
func Apply1(m Module, inputs ...*SymbolicDataModel) (*SymbolicDataModel, error) {
	outputs, err := Apply(m, inputs...)
	if err != nil {
		return nil, err
	}
	if len(outputs) != 1 {
		return nil, fmt.Errorf("core: module %s produced %d outputs, expected 1", m.Name(), len(outputs))
	}
	return outputs[0], nil
}
