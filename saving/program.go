package saving

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"

	"github.com/hupe1980/symflow/core"
	"github.com/hupe1980/symflow/internal/version"
	"github.com/hupe1980/symflow/logging"
	"github.com/hupe1980/symflow/program"
	"github.com/hupe1980/symflow/schema"
)

// Conventional file extensions for the two persistence formats.
const (
	ProgramExt   = ".program.json"
	VariablesExt = ".program.variables.json"
)

// programDoc is the whole-program persistence format.
type programDoc struct {
	SymflowVersion string                    `json:"symflow_version"`
	Name           string                    `json:"name"`
	Description    string                    `json:"description,omitempty"`
	Graph          graphDoc                  `json:"graph"`
	Variables      map[string]map[string]any `json:"variables,omitempty"`
	Compile        *compileDoc               `json:"compile,omitempty"`
	OptimizerState map[string]any            `json:"optimizer_state,omitempty"`
}

type graphDoc struct {
	Inputs  []inputDoc `json:"inputs"`
	Outputs []valueDoc `json:"outputs"`
	Nodes   []nodeDoc  `json:"nodes"`
	Edges   []edgeDoc  `json:"edges"`
}

type inputDoc struct {
	Name   string         `json:"name"`
	Schema *schema.Schema `json:"schema"`
}

type nodeDoc struct {
	Name   string         `json:"name"`
	Type   string         `json:"type"`
	Config map[string]any `json:"config,omitempty"`
}

// valueDoc locates a produced value: an output slot of a node, or a program
// input when FromInput is set (FromNode is -1 then).
type valueDoc struct {
	FromInput string `json:"from_input,omitempty"`
	FromNode  int    `json:"from_node"`
	Index     int    `json:"index"`
}

// edgeDoc wires a produced value into one input port of a node.
type edgeDoc struct {
	valueDoc
	ToNode int `json:"to_node"`
	Port   int `json:"port"`
}

type compileDoc struct {
	Optimizer string   `json:"optimizer,omitempty"`
	Reward    string   `json:"reward"`
	Metrics   []string `json:"metrics,omitempty"`
}

// SaveProgram writes the program, its graph and all variable state to a JSON
// file (conventionally *.program.json).
func SaveProgram(p *program.Program, path string) error {
	if err := checkJSONPath(path); err != nil {
		return err
	}

	doc, err := encodeProgram(p)
	if err != nil {
		return err
	}

	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("saving: encode program %s: %w", p.Name(), err)
	}

	return writeFile(path, raw)
}

// LoadProgram reads a *.program.json file and reconstructs the program,
// rebuilding every module through the type registry and restoring all
// variable state.
func LoadProgram(path string, optFns ...func(o *LoadOptions)) (*program.Program, error) {
	opts := LoadOptions{
		Logger: logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("saving: read program file: %w", err)
	}

	var doc programDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("saving: parse program file %s: %w", path, err)
	}

	return decodeProgram(&doc, &opts)
}

// encodeProgram flattens a program into its persistence document. Nested
// program nodes are encoded recursively.
func encodeProgram(p *program.Program) (*programDoc, error) {
	inputs := p.Inputs()
	nodes := p.Nodes()

	inputPos := make(map[*core.SymbolicDataModel]int, len(inputs))
	seenName := make(map[string]bool, len(inputs))

	g := graphDoc{
		Inputs: make([]inputDoc, 0, len(inputs)),
		Nodes:  make([]nodeDoc, 0, len(nodes)),
	}

	for i, in := range inputs {
		if seenName[in.Name()] {
			return nil, fmt.Errorf("saving: program %s has duplicate input name %q", p.Name(), in.Name())
		}

		seenName[in.Name()] = true
		inputPos[in] = i
		g.Inputs = append(g.Inputs, inputDoc{Name: in.Name(), Schema: in.Schema()})
	}

	nodeIdx := make(map[string]int, len(nodes))
	for i, n := range nodes {
		nodeIdx[n.ID()] = i
	}

	resolve := func(sym *core.SymbolicDataModel) (valueDoc, error) {
		if _, ok := inputPos[sym]; ok {
			return valueDoc{FromInput: sym.Name(), FromNode: -1}, nil
		}

		origin := sym.Origin()
		if origin == nil {
			return valueDoc{}, fmt.Errorf("saving: program %s references a value without provenance", p.Name())
		}

		return valueDoc{FromNode: nodeIdx[origin.ID()], Index: sym.Index()}, nil
	}

	for ni, n := range nodes {
		m := n.Module()

		cfg := m.GetConfig()
		if sub, ok := m.(*program.Program); ok {
			subDoc, err := encodeProgram(sub)
			if err != nil {
				return nil, err
			}

			if cfg, err = toConfigMap(subDoc); err != nil {
				return nil, err
			}
		}

		g.Nodes = append(g.Nodes, nodeDoc{
			Name:   m.Name(),
			Type:   moduleTypeName(m),
			Config: cfg,
		})

		for port, sym := range n.Inputs() {
			v, err := resolve(sym)
			if err != nil {
				return nil, err
			}

			g.Edges = append(g.Edges, edgeDoc{valueDoc: v, ToNode: ni, Port: port})
		}
	}

	for _, out := range p.Outputs() {
		v, err := resolve(out)
		if err != nil {
			return nil, err
		}

		g.Outputs = append(g.Outputs, v)
	}

	doc := &programDoc{
		SymflowVersion: version.Release,
		Name:           p.Name(),
		Description:    p.Description(),
		Graph:          g,
		Variables:      p.GetStateTree(),
	}

	if optimizer, reward, metrics := p.CompiledWith(); reward != nil {
		c := &compileDoc{Reward: reward.Name()}

		if optimizer != nil {
			c.Optimizer = optimizer.Name()
			doc.OptimizerState = optimizer.GetConfig()
		}

		for _, m := range metrics {
			c.Metrics = append(c.Metrics, m.Name())
		}

		doc.Compile = c
	}

	return doc, nil
}

// decodeProgram replays a persistence document back into a live program.
// Compile metadata is informational; the caller re-compiles with live
// reward and optimizer instances.
func decodeProgram(doc *programDoc, opts *LoadOptions) (*program.Program, error) {
	inputs := make([]*core.SymbolicDataModel, len(doc.Graph.Inputs))
	byInputName := make(map[string]*core.SymbolicDataModel, len(doc.Graph.Inputs))

	for i, in := range doc.Graph.Inputs {
		sym := core.NewInput(in.Name, in.Schema)
		inputs[i] = sym
		byInputName[in.Name] = sym
	}

	// One module per distinct node name; repeated names mean a shared
	// instance applied at several nodes.
	modules := make(map[string]core.Module, len(doc.Graph.Nodes))
	for _, n := range doc.Graph.Nodes {
		if _, ok := modules[n.Name]; ok {
			continue
		}

		factory, ok := moduleFactory(n.Type)
		if !ok {
			return nil, fmt.Errorf("saving: no module factory registered for type %q (module %q)", n.Type, n.Name)
		}

		m, err := factory(n.Config, opts)
		if err != nil {
			return nil, fmt.Errorf("saving: rebuild module %q: %w", n.Name, err)
		}

		modules[n.Name] = m
	}

	inbound := make([][]edgeDoc, len(doc.Graph.Nodes))
	for _, e := range doc.Graph.Edges {
		if e.ToNode < 0 || e.ToNode >= len(inbound) {
			return nil, fmt.Errorf("saving: edge targets unknown node %d", e.ToNode)
		}

		inbound[e.ToNode] = append(inbound[e.ToNode], e)
	}

	produced := make([][]*core.SymbolicDataModel, len(doc.Graph.Nodes))

	resolveValue := func(v valueDoc) (*core.SymbolicDataModel, error) {
		if v.FromInput != "" {
			sym, ok := byInputName[v.FromInput]
			if !ok {
				return nil, fmt.Errorf("saving: value references unknown input %q", v.FromInput)
			}

			return sym, nil
		}

		if v.FromNode < 0 || v.FromNode >= len(produced) || produced[v.FromNode] == nil {
			return nil, fmt.Errorf("saving: value references node %d before it is produced", v.FromNode)
		}

		outs := produced[v.FromNode]
		if v.Index < 0 || v.Index >= len(outs) {
			return nil, fmt.Errorf("saving: value references output %d of node %d, which has %d", v.Index, v.FromNode, len(outs))
		}

		return outs[v.Index], nil
	}

	// Nodes are recorded in execution order, so every dependency is produced
	// before it is consumed.
	for i, n := range doc.Graph.Nodes {
		edges := inbound[i]
		sort.Slice(edges, func(a, b int) bool { return edges[a].Port < edges[b].Port })

		syms := make([]*core.SymbolicDataModel, len(edges))
		for j, e := range edges {
			if e.Port != j {
				return nil, fmt.Errorf("saving: node %q has a gap at input port %d", n.Name, j)
			}

			sym, err := resolveValue(e.valueDoc)
			if err != nil {
				return nil, err
			}

			syms[j] = sym
		}

		outs, err := core.Apply(modules[n.Name], syms...)
		if err != nil {
			return nil, fmt.Errorf("saving: replay module %q: %w", n.Name, err)
		}

		produced[i] = outs
	}

	outputs := make([]*core.SymbolicDataModel, len(doc.Graph.Outputs))
	for i, v := range doc.Graph.Outputs {
		sym, err := resolveValue(v)
		if err != nil {
			return nil, err
		}

		outputs[i] = sym
	}

	p, err := program.New(inputs, outputs, func(o *program.Options) {
		o.Name = doc.Name
		o.Description = doc.Description
		o.Logger = opts.Logger
	})
	if err != nil {
		return nil, err
	}

	if len(doc.Variables) > 0 {
		if err := p.SetStateTree(doc.Variables); err != nil {
			return nil, err
		}
	}

	return p, nil
}

// moduleTypeName reports the registry key of a module's concrete type.
func moduleTypeName(m core.Module) string {
	t := reflect.TypeOf(m)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	return t.Name()
}

func toConfigMap(doc *programDoc) (map[string]any, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("saving: encode nested program %s: %w", doc.Name, err)
	}

	var cfg map[string]any
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("saving: encode nested program %s: %w", doc.Name, err)
	}

	return cfg, nil
}

func checkJSONPath(path string) error {
	if !strings.HasSuffix(path, ".json") {
		return fmt.Errorf("saving: path %q must end in .json", path)
	}

	return nil
}

func writeFile(path string, raw []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("saving: create directory %s: %w", dir, err)
		}
	}

	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("saving: write %s: %w", path, err)
	}

	return nil
}
