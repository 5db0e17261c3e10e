package program

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"

	"github.com/hupe1980/symflow/core"
	"github.com/hupe1980/symflow/logging"
)

var (
	// ErrCycle reports a dependency cycle between graph nodes.
	ErrCycle = errors.New("program graph contains a cycle")

	// ErrDisconnected reports values that cannot be reached from the declared
	// program inputs, or declared inputs no output depends on.
	ErrDisconnected = errors.New("program graph is disconnected")

	// ErrNotCompiled reports a training entry point used before Compile.
	ErrNotCompiled = errors.New("program is not compiled")
)

// Options configure a Program instance.
type Options struct {
	// Name identifies the program; auto-generated when empty.
	Name        string
	Description string
	// Workers bounds how many graph nodes execute concurrently per run.
	// Defaults to runtime.GOMAXPROCS(0).
	Workers int
	Logger  logging.Logger
}

// Program is a validated DAG of module applications. It implements
// core.Module, so programs compose: a program can be applied as a node
// inside another program's trace.
//
// The graph is immutable after construction; runs only touch per-run state
// and the variables owned by the member modules.
type Program struct {
	name        string
	description string
	workers     int
	logger      logging.Logger

	inputs   []*core.SymbolicDataModel
	outputs  []*core.SymbolicDataModel
	inputPos map[*core.SymbolicDataModel]int

	nodes      []*core.Node
	nodeIndex  map[string]int
	deps       [][]int
	dependents [][]int
	outputSrc  []valueRef

	modules []core.Module

	mu        sync.Mutex
	trainable bool
	compiled  *compileConfig
}

// valueRef locates a runtime value: a program input position when node is
// negative, otherwise an output slot of a graph node.
type valueRef struct {
	node  int
	index int
}

// New builds a program from traced input and output symbols.
//
// Every output must be reachable from the declared inputs through recorded
// module applications, and every input must feed at least one output;
// anything else fails with ErrDisconnected. The node order fixed here is
// canonical: topological depth first, then module name, so repeated
// constructions of the same trace execute identically.
func New(inputs, outputs []*core.SymbolicDataModel, optFns ...func(o *Options)) (*Program, error) {
	opts := Options{
		Workers: runtime.GOMAXPROCS(0),
		Logger:  logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if len(inputs) == 0 {
		return nil, fmt.Errorf("program: at least one input is required")
	}

	if len(outputs) == 0 {
		return nil, fmt.Errorf("program: at least one output is required")
	}

	if opts.Workers < 1 {
		opts.Workers = 1
	}

	name := opts.Name
	if name == "" {
		name = core.AutoName("program")
	}

	description := opts.Description
	if description == "" {
		description = fmt.Sprintf("Program %s", name)
	}

	p := &Program{
		name:        name,
		description: description,
		workers:     opts.Workers,
		logger:      opts.Logger,
		inputs:      append([]*core.SymbolicDataModel(nil), inputs...),
		outputs:     append([]*core.SymbolicDataModel(nil), outputs...),
		inputPos:    make(map[*core.SymbolicDataModel]int, len(inputs)),
		trainable:   true,
	}

	for i, in := range p.inputs {
		if in == nil {
			return nil, fmt.Errorf("program %s: input %d is nil", name, i)
		}

		if _, dup := p.inputPos[in]; dup {
			return nil, fmt.Errorf("program %s: input %d is declared twice", name, i)
		}

		p.inputPos[in] = i
	}

	for i, out := range p.outputs {
		if out == nil {
			return nil, fmt.Errorf("program %s: output %d is nil", name, i)
		}
	}

	if err := p.connect(); err != nil {
		return nil, err
	}

	p.logger.Debug("program.new", "program", name, "nodes", len(p.nodes), "modules", len(p.modules))

	return p, nil
}

// connect walks output provenance, validates the graph and fixes the
// canonical execution order.
func (p *Program) connect() error {
	visited := map[*core.SymbolicDataModel]bool{}
	seen := map[string]int{}
	used := make([]bool, len(p.inputs))

	var collected []*core.Node

	stack := append([]*core.SymbolicDataModel(nil), p.outputs...)
	for len(stack) > 0 {
		sym := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if visited[sym] {
			continue
		}
		visited[sym] = true

		if pos, ok := p.inputPos[sym]; ok {
			used[pos] = true
			continue
		}

		origin := sym.Origin()
		if origin == nil {
			return fmt.Errorf("program %s: %w: value %q is not produced by any module or input", p.name, ErrDisconnected, schemaTitle(sym.Schema()))
		}

		if origin.IsInput() {
			return fmt.Errorf("program %s: %w: output depends on input %q which is not among the program inputs", p.name, ErrDisconnected, sym.Name())
		}

		if _, ok := seen[origin.ID()]; !ok {
			seen[origin.ID()] = len(collected)
			collected = append(collected, origin)
			stack = append(stack, origin.Inputs()...)
		}
	}

	for i, u := range used {
		if !u {
			return fmt.Errorf("program %s: %w: input %q is not connected to any output", p.name, ErrDisconnected, p.inputs[i].Name())
		}
	}

	// Distinct modules need distinct names so variable paths stay unique.
	// Sharing one module instance across several nodes is legal.
	byName := map[string]core.Module{}
	for _, node := range collected {
		m := node.Module()
		if existing, ok := byName[m.Name()]; ok && existing != m {
			return fmt.Errorf("program %s: duplicate module name %q", p.name, m.Name())
		}
		byName[m.Name()] = m
	}

	deps := make([][]int, len(collected))
	for i, node := range collected {
		for _, sym := range node.Inputs() {
			if _, ok := p.inputPos[sym]; ok {
				continue
			}

			j := seen[sym.Origin().ID()]
			if !containsInt(deps[i], j) {
				deps[i] = append(deps[i], j)
			}
		}
	}

	order, err := canonicalOrder(collected, deps)
	if err != nil {
		return fmt.Errorf("program %s: %w", p.name, err)
	}

	canon := make([]int, len(order))
	for c, old := range order {
		canon[old] = c
	}

	p.nodes = make([]*core.Node, len(order))
	p.nodeIndex = make(map[string]int, len(order))
	p.deps = make([][]int, len(order))
	p.dependents = make([][]int, len(order))

	for c, old := range order {
		node := collected[old]
		p.nodes[c] = node
		p.nodeIndex[node.ID()] = c

		for _, d := range deps[old] {
			p.deps[c] = append(p.deps[c], canon[d])
		}
		sort.Ints(p.deps[c])
	}

	for c, ds := range p.deps {
		for _, d := range ds {
			p.dependents[d] = append(p.dependents[d], c)
		}
	}

	p.outputSrc = make([]valueRef, len(p.outputs))
	for i, out := range p.outputs {
		if pos, ok := p.inputPos[out]; ok {
			p.outputSrc[i] = valueRef{node: -1, index: pos}
			continue
		}

		p.outputSrc[i] = valueRef{node: p.nodeIndex[out.Origin().ID()], index: out.Index()}
	}

	seenModule := map[core.Module]bool{}
	for _, node := range p.nodes {
		if m := node.Module(); !seenModule[m] {
			seenModule[m] = true
			p.modules = append(p.modules, m)
		}
	}

	return nil
}

// canonicalOrder checks for cycles and returns node indexes sorted by
// topological depth, then module name. Depth strictly grows along edges, so
// the sorted sequence is itself a valid topological order.
func canonicalOrder(nodes []*core.Node, deps [][]int) ([]int, error) {
	n := len(nodes)

	indeg := make([]int, n)
	out := make([][]int, n)
	for i, ds := range deps {
		for _, j := range ds {
			out[j] = append(out[j], i)
			indeg[i]++
		}
	}

	queue := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if indeg[i] == 0 {
			queue = append(queue, i)
		}
	}

	depth := make([]int, n)
	processed := 0
	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]
		processed++

		for _, v := range out[u] {
			if depth[u]+1 > depth[v] {
				depth[v] = depth[u] + 1
			}

			indeg[v]--
			if indeg[v] == 0 {
				queue = append(queue, v)
			}
		}
	}

	if processed != n {
		for i := 0; i < n; i++ {
			if indeg[i] > 0 {
				return nil, fmt.Errorf("%w: involving module %q", ErrCycle, nodes[i].Module().Name())
			}
		}
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}

	sort.Slice(order, func(a, b int) bool {
		i, j := order[a], order[b]
		if depth[i] != depth[j] {
			return depth[i] < depth[j]
		}

		ni, nj := nodes[i].Module().Name(), nodes[j].Module().Name()
		if ni != nj {
			return ni < nj
		}

		return nodes[i].ID() < nodes[j].ID()
	})

	return order, nil
}

func containsInt(values []int, v int) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}

// Name returns the program name.
func (p *Program) Name() string { return p.name }

// Description returns the program description.
func (p *Program) Description() string { return p.description }

// Call runs the graph over the given input values, one per declared input,
// and returns one value per declared output. Nil inputs flow through the
// graph as nil (logical flow).
func (p *Program) Call(ctx context.Context, inputs ...*core.JsonDataModel) ([]*core.JsonDataModel, error) {
	if len(inputs) != len(p.inputs) {
		return nil, fmt.Errorf("program %s: expected %d inputs, got %d", p.name, len(p.inputs), len(inputs))
	}

	return p.run(ctx, inputs)
}

// ComputeOutputSpec reports the program's fixed output schemas, letting a
// whole program be traced as a node inside another program.
func (p *Program) ComputeOutputSpec(inputs ...*core.SymbolicDataModel) ([]*core.SymbolicDataModel, error) {
	if len(inputs) != len(p.inputs) {
		return nil, fmt.Errorf("program %s: expected %d inputs, got %d", p.name, len(p.inputs), len(inputs))
	}

	out := make([]*core.SymbolicDataModel, len(p.outputs))
	for i, o := range p.outputs {
		out[i] = core.NewSymbolicDataModel(o.Schema().Clone())
	}

	return out, nil
}

// Variables returns the variables of every member module, deduplicated.
func (p *Program) Variables() []*core.Variable {
	var out []*core.Variable

	seen := map[*core.Variable]bool{}
	for _, m := range p.modules {
		for _, v := range m.Variables() {
			if !seen[v] {
				seen[v] = true
				out = append(out, v)
			}
		}
	}

	return out
}

// TrainableVariables returns only the variables optimizers may mutate.
func (p *Program) TrainableVariables() []*core.Variable {
	var out []*core.Variable
	for _, v := range p.Variables() {
		if v.Trainable() {
			out = append(out, v)
		}
	}
	return out
}

// Trainable reports whether training may mutate this program.
func (p *Program) Trainable() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.trainable
}

// SetTrainable toggles training for the program and every member module.
func (p *Program) SetTrainable(trainable bool) {
	p.mu.Lock()
	p.trainable = trainable
	p.mu.Unlock()

	for _, m := range p.modules {
		m.SetTrainable(trainable)
	}
}

// GetConfig returns the serializable configuration used by persistence.
func (p *Program) GetConfig() map[string]any {
	return map[string]any{
		"name":        p.name,
		"description": p.description,
	}
}

// Inputs returns the input symbols in declaration order.
func (p *Program) Inputs() []*core.SymbolicDataModel {
	return append([]*core.SymbolicDataModel(nil), p.inputs...)
}

// Outputs returns the output symbols in declaration order.
func (p *Program) Outputs() []*core.SymbolicDataModel {
	return append([]*core.SymbolicDataModel(nil), p.outputs...)
}

// Nodes returns the graph nodes in canonical execution order.
func (p *Program) Nodes() []*core.Node {
	return append([]*core.Node(nil), p.nodes...)
}

// Modules returns the distinct member modules in canonical order.
func (p *Program) Modules() []core.Module {
	return append([]core.Module(nil), p.modules...)
}

// GetStateTree snapshots every variable payload keyed by variable path.
func (p *Program) GetStateTree() map[string]map[string]any {
	out := make(map[string]map[string]any)
	for _, v := range p.Variables() {
		out[v.Path()] = v.Data()
	}
	return out
}

// SetStateTree restores variable payloads by path. Unknown paths are errors;
// variables absent from the tree are left untouched with a warning.
func (p *Program) SetStateTree(tree map[string]map[string]any) error {
	byPath := make(map[string]*core.Variable)
	for _, v := range p.Variables() {
		byPath[v.Path()] = v
	}

	for path, data := range tree {
		v, ok := byPath[path]
		if !ok {
			return fmt.Errorf("program %s: unknown variable path %q", p.name, path)
		}

		v.Assign(data)
		delete(byPath, path)
	}

	for path := range byPath {
		p.logger.Warn("program.state_missing", "program", p.name, "path", path)
	}

	return nil
}
