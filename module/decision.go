package module

import (
	"context"
	"fmt"

	"github.com/hupe1980/symflow/core"
	"github.com/hupe1980/symflow/logging"
	"github.com/hupe1980/symflow/model"
	"github.com/hupe1980/symflow/schema"
)

// Question is the document a Decision concatenates onto its inputs so the
// model sees what it is deciding about.
type Question struct {
	Question string `json:"question" description:"The question to ask yourself."`
}

// DecisionAnswer is the document shape a Decision asks the model to fill in.
// The choice property is narrowed to the configured labels at construction
// time, so a constrained decoder cannot answer outside the label set.
type DecisionAnswer struct {
	Thinking string `json:"thinking" description:"Your step by step thinking to choose the correct label."`
	Choice   string `json:"choice" description:"The chosen label."`
}

// DecisionOptions configure a Decision instance.
type DecisionOptions struct {
	// Name identifies the module in graphs; auto-generated when empty.
	Name        string
	Description string
	// PromptTemplate overrides DefaultPromptTemplate() for the internal
	// generator.
	PromptTemplate string
	// Instructions seed the trainable instruction text.
	Instructions []string
	// Examples seed the trainable few-shot examples.
	Examples []core.Example
	// UseInputsSchema / UseOutputsSchema embed the respective JSON schemas
	// into the system prompt.
	UseInputsSchema  bool
	UseOutputsSchema bool
	// ReturnInputs concatenates the input document (question included) in
	// front of the decision answer.
	ReturnInputs bool
	Logger       logging.Logger
}

// Decision is a single-label classification module.
//
// It builds a {thinking, choice} answer schema whose choice is a closed enum
// over the given labels, concatenates the question onto the input document
// and delegates generation to an internal Generator. The output carries the
// selected label under "choice".
//
// Decisions are the building block of control flow: Branch routes inputs to
// sub-modules based on a Decision, and agents decide which tools to run the
// same way.
type Decision struct {
	BaseModule
	question    string
	questionDoc *core.DataModel
	labels      []string
	generator   *Generator
}

// NewDecision creates a decision over the given labels. The question is the
// text the model is asked to answer by picking exactly one label.
func NewDecision(question string, labels []string, lm *model.LanguageModel, optFns ...func(o *DecisionOptions)) (*Decision, error) {
	opts := DecisionOptions{
		PromptTemplate: DefaultPromptTemplate(),
		Logger:         logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if question == "" {
		return nil, fmt.Errorf("module: decision requires a question")
	}

	if len(labels) == 0 {
		return nil, fmt.Errorf("module: decision requires at least one label")
	}

	answerSchema, err := schema.FromStruct(DecisionAnswer{})
	if err != nil {
		return nil, err
	}

	answerSchema, err = schema.WithEnum(answerSchema, "choice", labels)
	if err != nil {
		return nil, err
	}

	questionDoc, err := core.NewDataModel(Question{Question: question})
	if err != nil {
		return nil, err
	}

	name := opts.Name
	if name == "" {
		name = core.AutoName("decision")
	}

	generator, err := NewGenerator(lm, func(o *GeneratorOptions) {
		o.Name = name + "_generator"
		o.Schema = answerSchema
		o.PromptTemplate = opts.PromptTemplate
		o.Instructions = opts.Instructions
		o.Examples = opts.Examples
		o.UseInputsSchema = opts.UseInputsSchema
		o.UseOutputsSchema = opts.UseOutputsSchema
		o.ReturnInputs = opts.ReturnInputs
		o.Logger = opts.Logger
	})
	if err != nil {
		return nil, err
	}

	d := &Decision{
		BaseModule:  NewBaseModule(name),
		question:    question,
		questionDoc: questionDoc,
		labels:      append([]string(nil), labels...),
		generator:   generator,
	}

	if opts.Description != "" {
		d.SetDescription(opts.Description)
	}

	return d, nil
}

// Question returns the question text.
func (d *Decision) Question() string { return d.question }

// Labels returns a copy of the label set.
func (d *Decision) Labels() []string { return append([]string(nil), d.labels...) }

// Generator returns the internal generator holding the trainable decision
// state.
func (d *Decision) Generator() *Generator { return d.generator }

// Variables returns the internal generator's variables.
func (d *Decision) Variables() []*core.Variable { return d.generator.Variables() }

// SetTrainable toggles training for the internal generator.
func (d *Decision) SetTrainable(trainable bool) {
	d.BaseModule.SetTrainable(trainable)
	d.generator.SetTrainable(trainable)
}

// Build prepares the internal generator against the input schema extended
// with the question document.
func (d *Decision) Build(inputs *schema.Schema) error {
	if d.Built() {
		return nil
	}

	if inputs != nil {
		if err := d.generator.Build(schema.Concat(inputs, d.questionDoc.Schema())); err != nil {
			return err
		}
	}

	d.MarkBuilt()

	return nil
}

// Call concatenates the question onto the single input document and asks the
// internal generator for a {thinking, choice} answer. A nil input flows
// through as nil.
func (d *Decision) Call(ctx context.Context, inputs ...*core.JsonDataModel) ([]*core.JsonDataModel, error) {
	if len(inputs) != 1 {
		return nil, NewModuleError(d.Name(), fmt.Sprintf("expected 1 input, got %d", len(inputs)), "VALIDATION_ERROR")
	}

	input := inputs[0]
	if input == nil {
		return []*core.JsonDataModel{nil}, nil
	}

	withQuestion, err := core.Concat(input, d.questionDoc.ToJson())
	if err != nil {
		return nil, fmt.Errorf("decision %s: %w", d.Name(), err)
	}

	return d.generator.Call(ctx, withQuestion)
}

// ComputeOutputSpec reports the decision answer schema.
func (d *Decision) ComputeOutputSpec(inputs ...*core.SymbolicDataModel) ([]*core.SymbolicDataModel, error) {
	if len(inputs) != 1 {
		return nil, NewModuleError(d.Name(), fmt.Sprintf("expected 1 input, got %d", len(inputs)), "VALIDATION_ERROR")
	}

	withQuestion := core.NewSymbolicDataModel(schema.Concat(inputs[0].Schema(), d.questionDoc.Schema()))

	return d.generator.ComputeOutputSpec(withQuestion)
}

// GetConfig returns the serializable configuration used by persistence.
func (d *Decision) GetConfig() map[string]any {
	config := d.generator.GetConfig()
	config["name"] = d.Name()
	config["description"] = d.Description()
	config["question"] = d.Question()
	config["labels"] = d.Labels()

	return config
}
