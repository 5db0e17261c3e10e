package module

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/hupe1980/symflow/core"
	"github.com/hupe1980/symflow/logging"
	"github.com/hupe1980/symflow/model"
	"github.com/hupe1980/symflow/schema"
	"github.com/hupe1980/symflow/tool"
)

// ActionOptions configure an Action instance.
type ActionOptions struct {
	// Name identifies the module in graphs; auto-generated when empty.
	Name        string
	Description string
	// PromptTemplate overrides DefaultPromptTemplate() for the internal
	// generator.
	PromptTemplate string
	// Instructions seed the trainable argument-inference instructions. The
	// default names the tool and repeats its description.
	Instructions []string
	// Examples seed the trainable few-shot examples.
	Examples []core.Example
	// UseInputsSchema / UseOutputsSchema embed the respective JSON schemas
	// into the argument prompt.
	UseInputsSchema  bool
	UseOutputsSchema bool
	// ReturnInputs concatenates the input document in front of the tool
	// result.
	ReturnInputs bool
	Logger       logging.Logger
}

// Action wraps a tool as a module.
//
// An internal generator, constrained to the tool's parameter schema, infers
// the argument document from the input; the tool runs with those arguments
// and its result becomes the output document. Tools must return a JSON
// object, the result schema is inferred from the returned value.
//
// The argument inference is the trainable part: its prompt state lives in
// the internal generator and optimizers tune it like any other.
type Action struct {
	BaseModule
	tool         tool.Tool
	generator    *Generator
	returnInputs bool
	logger       logging.Logger
}

// NewAction creates an action around the given tool.
func NewAction(t tool.Tool, lm *model.LanguageModel, optFns ...func(o *ActionOptions)) (*Action, error) {
	opts := ActionOptions{
		PromptTemplate: DefaultPromptTemplate(),
		Logger:         logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if t == nil {
		return nil, fmt.Errorf("module: action requires a tool")
	}

	name := opts.Name
	if name == "" {
		name = core.AutoName("action")
	}

	instructions := opts.Instructions
	if instructions == nil {
		instructions = []string{fmt.Sprintf("Infer the arguments to call the tool %q.", t.Name())}
		if t.Description() != "" {
			instructions = append(instructions, t.Description())
		}
	}

	generator, err := NewGenerator(lm, func(o *GeneratorOptions) {
		o.Name = name + "_generator"
		o.Schema = t.Parameters()
		o.PromptTemplate = opts.PromptTemplate
		o.Instructions = instructions
		o.Examples = opts.Examples
		o.UseInputsSchema = opts.UseInputsSchema
		o.UseOutputsSchema = opts.UseOutputsSchema
		o.Logger = opts.Logger
	})
	if err != nil {
		return nil, err
	}

	a := &Action{
		BaseModule:   NewBaseModule(name),
		tool:         t,
		generator:    generator,
		returnInputs: opts.ReturnInputs,
		logger:       opts.Logger,
	}

	if opts.Description != "" {
		a.SetDescription(opts.Description)
	} else {
		a.SetDescription(fmt.Sprintf("Action running tool %s", t.Name()))
	}

	return a, nil
}

// Tool returns the wrapped tool.
func (a *Action) Tool() tool.Tool { return a.tool }

// Generator returns the internal argument generator.
func (a *Action) Generator() *Generator { return a.generator }

// Variables returns the internal generator's variables.
func (a *Action) Variables() []*core.Variable { return a.generator.Variables() }

// SetTrainable toggles training for the internal generator.
func (a *Action) SetTrainable(trainable bool) {
	a.BaseModule.SetTrainable(trainable)
	a.generator.SetTrainable(trainable)
}

// Build prepares the internal generator against the input schema.
func (a *Action) Build(inputs *schema.Schema) error {
	if a.Built() {
		return nil
	}

	if err := a.generator.Build(inputs); err != nil {
		return err
	}

	a.MarkBuilt()

	return nil
}

// Call infers the tool arguments from the single input document, runs the
// tool and returns its result document. A nil input flows through as nil.
func (a *Action) Call(ctx context.Context, inputs ...*core.JsonDataModel) ([]*core.JsonDataModel, error) {
	if len(inputs) != 1 {
		return nil, NewModuleError(a.Name(), fmt.Sprintf("expected 1 input, got %d", len(inputs)), "VALIDATION_ERROR")
	}

	input := inputs[0]
	if input == nil {
		return []*core.JsonDataModel{nil}, nil
	}

	args, err := a.generator.Call(ctx, input)
	if err != nil {
		return nil, err
	}

	result, err := tool.Execute(ctx, a.tool, args[0].Raw())
	if err != nil {
		return nil, fmt.Errorf("action %s: tool %s: %w", a.Name(), a.tool.Name(), err)
	}

	raw, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("action %s: marshal result of tool %s: %w", a.Name(), a.tool.Name(), err)
	}

	if !gjson.ParseBytes(raw).IsObject() {
		return nil, NewModuleError(a.Name(), fmt.Sprintf("tool %s returned a non-object result", a.tool.Name()), "EXECUTION_ERROR")
	}

	a.logger.Debug("action.call", "module", a.Name(), "tool", a.tool.Name())

	doc := core.NewJsonDataModel(schema.Infer(schema.Titleize(a.tool.Name()), raw), raw)

	if a.returnInputs {
		merged, err := core.Concat(input, doc)
		if err != nil {
			return nil, fmt.Errorf("action %s: %w", a.Name(), err)
		}

		return []*core.JsonDataModel{merged}, nil
	}

	return []*core.JsonDataModel{doc}, nil
}

// ComputeOutputSpec reports an open object spec: tool results carry no
// declared schema, the concrete one is inferred at runtime.
func (a *Action) ComputeOutputSpec(inputs ...*core.SymbolicDataModel) ([]*core.SymbolicDataModel, error) {
	if len(inputs) != 1 {
		return nil, NewModuleError(a.Name(), fmt.Sprintf("expected 1 input, got %d", len(inputs)), "VALIDATION_ERROR")
	}

	result := &schema.Schema{Title: schema.Titleize(a.tool.Name()), Type: "object"}

	out := result
	if a.returnInputs {
		out = schema.Concat(inputs[0].Schema(), result)
	}

	return []*core.SymbolicDataModel{core.NewSymbolicDataModel(out)}, nil
}

// GetConfig returns the serializable configuration used by persistence.
func (a *Action) GetConfig() map[string]any {
	return map[string]any{
		"name":          a.Name(),
		"description":   a.Description(),
		"tool":          a.tool.Name(),
		"return_inputs": a.returnInputs,
	}
}
