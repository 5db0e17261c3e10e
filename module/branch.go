package module

import (
	"context"
	"fmt"

	"github.com/hupe1980/symflow/core"
	"github.com/hupe1980/symflow/logging"
	"github.com/hupe1980/symflow/model"
	"github.com/hupe1980/symflow/schema"
)

// BranchOptions configure a Branch instance.
type BranchOptions struct {
	// Name identifies the module in graphs; auto-generated when empty.
	Name        string
	Description string
	// PromptTemplate overrides DefaultPromptTemplate() for the internal
	// decision.
	PromptTemplate string
	// Instructions seed the trainable decision instructions.
	Instructions []string
	// Examples seed the trainable decision few-shot examples.
	Examples []core.Example
	// UseInputsSchema / UseOutputsSchema embed the respective JSON schemas
	// into the decision prompt.
	UseInputsSchema  bool
	UseOutputsSchema bool
	// ReturnDecision prepends the decision answer to the outputs.
	ReturnDecision bool
	Logger         logging.Logger
}

// Branch routes a single input to one of several sub-modules based on a
// Decision.
//
// The module produces one output per branch: the branch whose label was
// chosen runs on the input and fills its slot, every other slot is nil.
// Downstream modules receive the nils through logical flow, so a graph can
// fan out over all branches and recombine the live one with Or.
//
// With ReturnDecision the decision answer occupies an extra first slot, which
// lets a program inspect the thinking and chosen label alongside the routed
// result.
type Branch struct {
	BaseModule
	decision       *Decision
	labels         []string
	branches       []core.Module
	returnDecision bool
	logger         logging.Logger
}

// NewBranch creates a branch over the given labels. Labels and branches pair
// up by position: when the model picks labels[i], branches[i] runs.
func NewBranch(question string, labels []string, branches []core.Module, lm *model.LanguageModel, optFns ...func(o *BranchOptions)) (*Branch, error) {
	opts := BranchOptions{
		PromptTemplate: DefaultPromptTemplate(),
		Logger:         logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if len(branches) == 0 {
		return nil, fmt.Errorf("module: branch requires at least one branch module")
	}

	if len(branches) != len(labels) {
		return nil, fmt.Errorf("module: branch requires one label per branch, got %d labels for %d branches", len(labels), len(branches))
	}

	for i, b := range branches {
		if b == nil {
			return nil, fmt.Errorf("module: branch %d (%s) is nil", i, labels[i])
		}
	}

	name := opts.Name
	if name == "" {
		name = core.AutoName("branch")
	}

	decision, err := NewDecision(question, labels, lm, func(o *DecisionOptions) {
		o.Name = name + "_decision"
		o.PromptTemplate = opts.PromptTemplate
		o.Instructions = opts.Instructions
		o.Examples = opts.Examples
		o.UseInputsSchema = opts.UseInputsSchema
		o.UseOutputsSchema = opts.UseOutputsSchema
		o.Logger = opts.Logger
	})
	if err != nil {
		return nil, err
	}

	b := &Branch{
		BaseModule:     NewBaseModule(name),
		decision:       decision,
		labels:         append([]string(nil), labels...),
		branches:       append([]core.Module(nil), branches...),
		returnDecision: opts.ReturnDecision,
		logger:         opts.Logger,
	}

	if opts.Description != "" {
		b.SetDescription(opts.Description)
	}

	return b, nil
}

// Decision returns the internal decision module.
func (b *Branch) Decision() *Decision { return b.decision }

// Branches returns the branch modules in label order.
func (b *Branch) Branches() []core.Module { return append([]core.Module(nil), b.branches...) }

// Variables returns the decision's variables followed by every branch's.
func (b *Branch) Variables() []*core.Variable {
	variables := b.decision.Variables()
	for _, branch := range b.branches {
		variables = append(variables, branch.Variables()...)
	}

	return variables
}

// SetTrainable toggles training for the decision and every branch.
func (b *Branch) SetTrainable(trainable bool) {
	b.BaseModule.SetTrainable(trainable)
	b.decision.SetTrainable(trainable)

	for _, branch := range b.branches {
		branch.SetTrainable(trainable)
	}
}

// Build prepares the decision and the branch modules against the input
// schema.
func (b *Branch) Build(inputs *schema.Schema) error {
	if b.Built() {
		return nil
	}

	if err := b.decision.Build(inputs); err != nil {
		return err
	}

	for _, branch := range b.branches {
		if builder, ok := branch.(core.Builder); ok {
			if err := builder.Build(inputs); err != nil {
				return fmt.Errorf("branch %s: build %s: %w", b.Name(), branch.Name(), err)
			}
		}
	}

	b.MarkBuilt()

	return nil
}

// Call decides on the input and runs the chosen branch. The result lands in
// the chosen branch's output slot; all other slots are nil. A nil input
// yields all-nil outputs.
func (b *Branch) Call(ctx context.Context, inputs ...*core.JsonDataModel) ([]*core.JsonDataModel, error) {
	if len(inputs) != 1 {
		return nil, NewModuleError(b.Name(), fmt.Sprintf("expected 1 input, got %d", len(inputs)), "VALIDATION_ERROR")
	}

	input := inputs[0]
	if input == nil {
		return make([]*core.JsonDataModel, b.outputCount()), nil
	}

	decided, err := b.decision.Call(ctx, input)
	if err != nil {
		return nil, err
	}

	choice := decided[0].GetString("choice")

	index := -1
	for i, label := range b.labels {
		if label == choice {
			index = i
			break
		}
	}

	if index < 0 {
		return nil, NewModuleError(b.Name(), fmt.Sprintf("model chose unknown label %q", choice), "EXECUTION_ERROR")
	}

	b.logger.Debug("branch.route", "module", b.Name(), "choice", choice)

	routed, err := b.branches[index].Call(ctx, input)
	if err != nil {
		return nil, err
	}

	if len(routed) != 1 {
		return nil, NewModuleError(b.Name(), fmt.Sprintf("branch %s produced %d outputs, expected 1", b.branches[index].Name(), len(routed)), "EXECUTION_ERROR")
	}

	outputs := make([]*core.JsonDataModel, b.outputCount())
	slot := index
	if b.returnDecision {
		outputs[0] = decided[0]
		slot++
	}
	outputs[slot] = routed[0]

	return outputs, nil
}

// ComputeOutputSpec reports one spec per branch, prefixed with the decision
// answer spec when ReturnDecision is set.
func (b *Branch) ComputeOutputSpec(inputs ...*core.SymbolicDataModel) ([]*core.SymbolicDataModel, error) {
	if len(inputs) != 1 {
		return nil, NewModuleError(b.Name(), fmt.Sprintf("expected 1 input, got %d", len(inputs)), "VALIDATION_ERROR")
	}

	outputs := make([]*core.SymbolicDataModel, 0, b.outputCount())

	if b.returnDecision {
		decisionSpecs, err := b.decision.ComputeOutputSpec(inputs[0])
		if err != nil {
			return nil, err
		}

		outputs = append(outputs, decisionSpecs...)
	}

	for _, branch := range b.branches {
		specs, err := branch.ComputeOutputSpec(inputs[0])
		if err != nil {
			return nil, err
		}

		if len(specs) != 1 {
			return nil, NewModuleError(b.Name(), fmt.Sprintf("branch %s produced %d output specs, expected 1", branch.Name(), len(specs)), "VALIDATION_ERROR")
		}

		outputs = append(outputs, specs[0])
	}

	return outputs, nil
}

// GetConfig returns the serializable configuration used by persistence.
func (b *Branch) GetConfig() map[string]any {
	branchNames := make([]string, 0, len(b.branches))
	for _, branch := range b.branches {
		branchNames = append(branchNames, branch.Name())
	}

	return map[string]any{
		"name":            b.Name(),
		"description":     b.Description(),
		"question":        b.decision.Question(),
		"labels":          b.Labels(),
		"branches":        branchNames,
		"return_decision": b.returnDecision,
	}
}

// Labels returns a copy of the label set.
func (b *Branch) Labels() []string { return append([]string(nil), b.labels...) }

func (b *Branch) outputCount() int {
	if b.returnDecision {
		return len(b.branches) + 1
	}

	return len(b.branches)
}
