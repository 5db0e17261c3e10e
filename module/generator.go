package module

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"

	"github.com/hupe1980/symflow/core"
	"github.com/hupe1980/symflow/internal/util"
	"github.com/hupe1980/symflow/logging"
	"github.com/hupe1980/symflow/model"
	"github.com/hupe1980/symflow/schema"
)

// DefaultPromptTemplate returns the template generators render when none is
// configured. The <system>/<user>/<assistant> tags split the rendered text
// into chat messages.
func DefaultPromptTemplate() string {
	return `<system>
{{if .Instructions}}{{.Instructions}}
{{end}}Your task is to answer with a single JSON object following the output schema.
{{if .InputsSchema}}The JSON schema of the input:
{{.InputsSchema}}
{{end}}{{if .OutputsSchema}}The JSON schema of the output:
{{.OutputsSchema}}
{{end}}{{if .Examples}}{{.Examples}}
{{end}}<user>
{{.Inputs}}`
}

// ChatPromptTemplate returns a template for conversational programs whose
// input is a ChatMessages document: the history is replayed under its role
// tags instead of being embedded as JSON.
func ChatPromptTemplate() string {
	return `<system>
{{if .Instructions}}{{.Instructions}}
{{end}}Your task is to answer the user with a single JSON object following the output schema.
{{if .OutputsSchema}}The JSON schema of the output:
{{.OutputsSchema}}
{{end}}{{range .Messages}}<{{.Role}}>
{{.Content}}
{{end}}`
}

// promptData is the render context handed to prompt templates.
type promptData struct {
	Instructions  string
	InputsSchema  string
	OutputsSchema string
	Examples      string
	Inputs        string
	Messages      []core.ChatMessage
}

// GeneratorOptions configure a Generator instance.
//
// Use functional options with NewGenerator to override defaults.
type GeneratorOptions struct {
	// Name identifies the module in graphs; auto-generated when empty.
	Name        string
	Description string
	// Schema is the target output schema. Alternatively set DataModel to a
	// struct and the schema is derived from it. Exactly one is required.
	Schema    *schema.Schema
	DataModel any
	// PromptTemplate overrides DefaultPromptTemplate().
	PromptTemplate string
	// Instructions seed the trainable instruction text.
	Instructions []string
	// Examples seed the trainable few-shot examples.
	Examples []core.Example
	// UseInputsSchema / UseOutputsSchema embed the respective JSON schemas
	// into the system prompt. Constrained decoding makes this redundant for
	// correctness; it remains useful as extra guidance.
	UseInputsSchema  bool
	UseOutputsSchema bool
	// ReturnInputs concatenates the input document in front of the output.
	ReturnInputs bool
	// Streaming receives text deltas while the model answers.
	Streaming func(delta string)
	// MaxPredictions bounds the per-variable prediction buffer collected
	// during training.
	MaxPredictions int
	Logger         logging.Logger
}

// Generator produces JSON documents conforming to a target schema with a
// language model.
//
// The module holds its trainable state (instruction text, few-shot examples
// and the predictions collected while training) in a single variable, so
// optimizers can rewrite prompts between runs without touching the module
// itself.
type Generator struct {
	BaseModule
	lm               *model.LanguageModel
	outputSchema     *schema.Schema
	inputSchema      *schema.Schema
	promptTemplate   string
	state            *core.Variable
	useInputsSchema  bool
	useOutputsSchema bool
	returnInputs     bool
	onDelta          func(string)
	maxPredictions   int
	logger           logging.Logger
}

// NewGenerator creates a generator targeting the schema configured in the
// options (Schema or DataModel).
func NewGenerator(lm *model.LanguageModel, optFns ...func(o *GeneratorOptions)) (*Generator, error) {
	opts := GeneratorOptions{
		PromptTemplate: DefaultPromptTemplate(),
		MaxPredictions: 64,
		Logger:         logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	outputSchema, err := resolveSchema(opts.Schema, opts.DataModel)
	if err != nil {
		return nil, err
	}

	name := opts.Name
	if name == "" {
		name = core.AutoName("generator")
	}

	g := &Generator{
		BaseModule:       NewBaseModule(name),
		lm:               lm,
		outputSchema:     outputSchema,
		promptTemplate:   opts.PromptTemplate,
		useInputsSchema:  opts.UseInputsSchema,
		useOutputsSchema: opts.UseOutputsSchema,
		returnInputs:     opts.ReturnInputs,
		onDelta:          opts.Streaming,
		maxPredictions:   opts.MaxPredictions,
		logger:           opts.Logger,
	}

	if opts.Description != "" {
		g.SetDescription(opts.Description)
	}

	examples := opts.Examples
	if examples == nil {
		examples = []core.Example{}
	}

	g.state = core.NewVariable("state", map[string]any{
		"instructions": strings.Join(opts.Instructions, "\n"),
		"examples":     examples,
		"predictions":  []core.Prediction{},
	}, true)
	g.AddVariable(g.state)

	return g, nil
}

// State returns the trainable variable holding instructions, examples and
// collected predictions.
func (g *Generator) State() *core.Variable { return g.state }

// OutputSchema returns the schema generated documents conform to.
func (g *Generator) OutputSchema() *schema.Schema { return g.outputSchema.Clone() }

// Build captures the input schema for prompt rendering. It runs once.
func (g *Generator) Build(inputs *schema.Schema) error {
	if g.Built() {
		return nil
	}

	if inputs != nil {
		g.inputSchema = inputs.Clone()
	}

	g.MarkBuilt()

	return nil
}

// Call renders the prompt for the single input document and generates a
// schema-conforming output. A nil input flows through as nil.
func (g *Generator) Call(ctx context.Context, inputs ...*core.JsonDataModel) ([]*core.JsonDataModel, error) {
	if len(inputs) != 1 {
		return nil, NewModuleError(g.Name(), fmt.Sprintf("expected 1 input, got %d", len(inputs)), "VALIDATION_ERROR")
	}

	input := inputs[0]
	if input == nil {
		return []*core.JsonDataModel{nil}, nil
	}

	if !g.Built() {
		if err := g.Build(input.Schema()); err != nil {
			return nil, err
		}
	}

	messages, err := g.buildMessages(input)
	if err != nil {
		return nil, err
	}

	doc, err := g.lm.GenerateJSON(ctx, messages, g.outputSchema, g.onDelta)
	if err != nil {
		return nil, fmt.Errorf("generator %s: %w", g.Name(), err)
	}

	g.logger.Debug("generator.call", "module", g.Name(), "model", g.lm.Info().Name)

	result := core.NewJsonDataModel(g.outputSchema.Clone(), doc)

	if sampleID, ok := core.TrainingSample(ctx); ok && g.Trainable() {
		g.recordPrediction(sampleID, input, result)
	}

	if g.returnInputs {
		merged, err := core.Concat(input, result)
		if err != nil {
			return nil, fmt.Errorf("generator %s: %w", g.Name(), err)
		}

		return []*core.JsonDataModel{merged}, nil
	}

	return []*core.JsonDataModel{result}, nil
}

// ComputeOutputSpec reports the output schema without calling the model.
func (g *Generator) ComputeOutputSpec(inputs ...*core.SymbolicDataModel) ([]*core.SymbolicDataModel, error) {
	if len(inputs) != 1 {
		return nil, NewModuleError(g.Name(), fmt.Sprintf("expected 1 input, got %d", len(inputs)), "VALIDATION_ERROR")
	}

	out := g.outputSchema
	if g.returnInputs {
		out = schema.Concat(inputs[0].Schema(), g.outputSchema)
	}

	return []*core.SymbolicDataModel{core.NewSymbolicDataModel(out.Clone())}, nil
}

// GetConfig returns the serializable configuration used by persistence.
func (g *Generator) GetConfig() map[string]any {
	info := g.lm.Info()

	return map[string]any{
		"name":               g.Name(),
		"description":        g.Description(),
		"schema":             g.outputSchema,
		"prompt_template":    g.promptTemplate,
		"use_inputs_schema":  g.useInputsSchema,
		"use_outputs_schema": g.useOutputsSchema,
		"return_inputs":      g.returnInputs,
		"language_model": map[string]any{
			"provider": info.Provider,
			"model":    info.Name,
		},
	}
}

func (g *Generator) buildMessages(input *core.JsonDataModel) ([]core.ChatMessage, error) {
	data := promptData{
		Inputs:   string(input.Raw()),
		Messages: chatHistory(input),
	}

	if instructions, ok := g.state.Get("instructions").(string); ok {
		data.Instructions = instructions
	}

	if examples := g.state.Examples(); len(examples) > 0 {
		data.Examples = renderExamples(examples)
	}

	if g.useInputsSchema && g.inputSchema != nil {
		data.InputsSchema = prettySchema(g.inputSchema)
	}

	if g.useOutputsSchema {
		data.OutputsSchema = prettySchema(g.outputSchema)
	}

	rendered, err := util.RenderTemplate(g.promptTemplate, data)
	if err != nil {
		return nil, NewModuleError(g.Name(), fmt.Sprintf("prompt template failed: %v", err), "TEMPLATE_ERROR")
	}

	messages := util.ParseMessages(rendered)
	if len(messages) == 0 {
		return nil, NewModuleError(g.Name(), "prompt template produced no messages", "TEMPLATE_ERROR")
	}

	return messages, nil
}

func (g *Generator) recordPrediction(sampleID string, input, output *core.JsonDataModel) {
	g.state.AppendPrediction(core.Prediction{
		Inputs:   input.Json(),
		Outputs:  output.Json(),
		SampleID: sampleID,
	}, g.maxPredictions)
}

// renderExamples formats few-shot examples as input/output JSON pairs.
func renderExamples(examples []core.Example) string {
	var sb strings.Builder

	sb.WriteString("Examples:\n")
	for i, example := range examples {
		in, _ := json.Marshal(example.Inputs)
		out, _ := json.Marshal(example.Outputs)
		fmt.Fprintf(&sb, "Example %d:\nInput:\n%s\nOutput:\n%s\n", i+1, in, out)
	}

	return strings.TrimSuffix(sb.String(), "\n")
}

// chatHistory decodes a ChatMessages-shaped input for chat templates.
// Non-conversational inputs yield nil.
func chatHistory(input *core.JsonDataModel) []core.ChatMessage {
	raw := input.Raw()
	if !gjson.GetBytes(raw, "messages").IsArray() {
		return nil
	}

	var history core.ChatMessages
	if err := json.Unmarshal(raw, &history); err != nil {
		return nil
	}

	return history.Messages
}

func prettySchema(s *schema.Schema) string {
	raw, err := json.Marshal(s)
	if err != nil {
		return ""
	}

	return strings.TrimSpace(string(pretty.Pretty(raw)))
}

// resolveSchema picks the target schema from the two configuration routes.
func resolveSchema(s *schema.Schema, structType any) (*schema.Schema, error) {
	if s != nil && structType != nil {
		return nil, fmt.Errorf("set either Schema or DataModel, not both")
	}

	if s != nil {
		return s.Clone(), nil
	}

	if structType != nil {
		return schema.FromStruct(structType)
	}

	return nil, fmt.Errorf("an output schema is required: set Schema or DataModel")
}
