package module

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/symflow/core"
	"github.com/hupe1980/symflow/logging"
	"github.com/hupe1980/symflow/model"
	"github.com/hupe1980/symflow/schema"
	"github.com/hupe1980/symflow/tool"
)

// ToolChoice is one tool call the agent decided to run, with the subgoal it
// should accomplish.
type ToolChoice struct {
	Name    string `json:"name" description:"The name of the tool to run from the available toolkit."`
	Purpose string `json:"purpose" description:"A clear, specific explanation of what the tool should accomplish."`
}

// ToolDecision is the document shape the agent asks the model to fill in at
// every step. An empty choices array means the task is complete.
type ToolDecision struct {
	Reasoning string       `json:"reasoning" description:"A step-by-step analysis of the current state, what has been done, and what should be done next."`
	Choices   []ToolChoice `json:"choices" description:"The tool calls to run in parallel, each with its specific purpose."`
}

// DefaultToolQuestion is the question the agent answers at every step when
// none is configured.
const DefaultToolQuestion = "Choose one or more tools to use next in parallel based on their name."

// DefaultToolInstructions returns the behavioral instructions seeding the
// agent's tool decisions.
func DefaultToolInstructions() []string {
	return []string{
		"Always reflect on your previous actions and their results to avoid redundancy.",
		"You can call the same tool multiple times if needed with different subgoals.",
		"For each tool you select, provide a clear and specific subgoal explaining what you want to achieve.",
		"Be strategic about parallel execution - choose tools that can run simultaneously without dependencies.",
		"If no more tools are needed to complete the task, return an empty choices array.",
		"Consider the context and information already available before selecting tools.",
	}
}

// FunctionCallingAgentOptions configure a FunctionCallingAgent instance.
type FunctionCallingAgentOptions struct {
	// Name identifies the module in graphs; auto-generated when empty.
	Name        string
	Description string
	// Schema is the final answer schema. Alternatively set DataModel to a
	// struct and the schema is derived from it. Exactly one is required.
	Schema    *schema.Schema
	DataModel any
	// Question overrides DefaultToolQuestion for the per-step decision.
	Question string
	// PromptTemplate overrides DefaultPromptTemplate() for the internal
	// generators.
	PromptTemplate string
	// Instructions override DefaultToolInstructions() for the decision.
	Instructions []string
	// Examples seed the trainable decision few-shot examples.
	Examples []core.Example
	// UseInputsSchema / UseOutputsSchema embed the respective JSON schemas
	// into the decision prompt.
	UseInputsSchema  bool
	UseOutputsSchema bool
	// ReturnInputsWithTrajectory concatenates the whole trajectory (inputs
	// and tool results) in front of the final answer.
	ReturnInputsWithTrajectory bool
	// MaxIterations bounds the decide-act loop.
	MaxIterations int
	// Autonomous lets the agent run chosen tools without confirmation. When
	// disabled the agent stops after the first decision and returns the
	// decision document, so a caller can review the planned tool calls
	// before re-invoking.
	Autonomous bool
	Logger     logging.Logger
}

// FunctionCallingAgent runs a ReAct loop over a toolkit.
//
// At every step a decision generator, constrained to a ToolDecision schema
// whose choices are a closed enum over the tool names, picks the tool calls
// to run next. The chosen actions run concurrently, their results are
// concatenated into the trajectory, and the loop repeats until the model
// returns no choices or MaxIterations is reached. A final generator then
// produces the answer document from the full trajectory.
//
// The decision prompt, every action's argument prompt and the final answer
// prompt are all trainable generator states.
type FunctionCallingAgent struct {
	BaseModule
	tools          []tool.Tool
	labels         []string
	questionDoc    *core.DataModel
	decision       *Generator
	actions        map[string]*Action
	finalGenerator *Generator
	maxIterations  int
	autonomous     bool
	returnInputs   bool
	logger         logging.Logger
}

// NewFunctionCallingAgent creates an agent over the given toolkit. The final
// answer schema comes from the options (Schema or DataModel).
func NewFunctionCallingAgent(tools []tool.Tool, lm *model.LanguageModel, optFns ...func(o *FunctionCallingAgentOptions)) (*FunctionCallingAgent, error) {
	opts := FunctionCallingAgentOptions{
		Question:       DefaultToolQuestion,
		PromptTemplate: DefaultPromptTemplate(),
		Instructions:   DefaultToolInstructions(),
		MaxIterations:  5,
		Autonomous:     true,
		Logger:         logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if len(tools) == 0 {
		return nil, fmt.Errorf("module: agent requires at least one tool")
	}

	if opts.MaxIterations < 1 {
		return nil, fmt.Errorf("module: agent requires at least one iteration, got %d", opts.MaxIterations)
	}

	answerSchema, err := resolveSchema(opts.Schema, opts.DataModel)
	if err != nil {
		return nil, err
	}

	name := opts.Name
	if name == "" {
		name = core.AutoName("agent")
	}

	labels := make([]string, 0, len(tools))
	for _, t := range tools {
		labels = append(labels, t.Name())
	}

	decisionSchema, err := schema.FromStruct(ToolDecision{})
	if err != nil {
		return nil, err
	}

	decisionSchema, err = schema.WithEnumAt(decisionSchema, "choices/name", labels)
	if err != nil {
		return nil, err
	}

	questionDoc, err := core.NewDataModel(Question{Question: opts.Question})
	if err != nil {
		return nil, err
	}

	decision, err := NewGenerator(lm, func(o *GeneratorOptions) {
		o.Name = name + "_decision"
		o.Schema = decisionSchema
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

	actions := make(map[string]*Action, len(tools))
	for _, t := range tools {
		action, err := NewAction(t, lm, func(o *ActionOptions) {
			o.Name = name + "_" + t.Name()
			o.PromptTemplate = opts.PromptTemplate
			o.UseInputsSchema = opts.UseInputsSchema
			o.UseOutputsSchema = opts.UseOutputsSchema
			o.Logger = opts.Logger
		})
		if err != nil {
			return nil, err
		}

		actions[t.Name()] = action
	}

	finalGenerator, err := NewGenerator(lm, func(o *GeneratorOptions) {
		o.Name = name + "_final_answer"
		o.Schema = answerSchema
		o.PromptTemplate = opts.PromptTemplate
		o.Instructions = []string{"Provide the final answer based on all the information gathered."}
		o.Logger = opts.Logger
	})
	if err != nil {
		return nil, err
	}

	a := &FunctionCallingAgent{
		BaseModule:     NewBaseModule(name),
		tools:          append([]tool.Tool(nil), tools...),
		labels:         labels,
		questionDoc:    questionDoc,
		decision:       decision,
		actions:        actions,
		finalGenerator: finalGenerator,
		maxIterations:  opts.MaxIterations,
		autonomous:     opts.Autonomous,
		returnInputs:   opts.ReturnInputsWithTrajectory,
		logger:         opts.Logger,
	}

	if opts.Description != "" {
		a.SetDescription(opts.Description)
	} else {
		a.SetDescription(fmt.Sprintf("Agent with %d tools", len(tools)))
	}

	return a, nil
}

// Tools returns the toolkit in registration order.
func (a *FunctionCallingAgent) Tools() []tool.Tool { return append([]tool.Tool(nil), a.tools...) }

// Variables returns the decision, action and final answer variables.
func (a *FunctionCallingAgent) Variables() []*core.Variable {
	variables := a.decision.Variables()
	for _, label := range a.labels {
		variables = append(variables, a.actions[label].Variables()...)
	}

	return append(variables, a.finalGenerator.Variables()...)
}

// SetTrainable toggles training for every internal generator.
func (a *FunctionCallingAgent) SetTrainable(trainable bool) {
	a.BaseModule.SetTrainable(trainable)
	a.decision.SetTrainable(trainable)

	for _, action := range a.actions {
		action.SetTrainable(trainable)
	}

	a.finalGenerator.SetTrainable(trainable)
}

// Build prepares the internal generators against the input schema. The
// trajectory grows at runtime, so actions and the final generator see the
// initial input schema only.
func (a *FunctionCallingAgent) Build(inputs *schema.Schema) error {
	if a.Built() {
		return nil
	}

	if err := a.decision.Build(schema.Concat(inputs, a.questionDoc.Schema())); err != nil {
		return err
	}

	for _, label := range a.labels {
		if err := a.actions[label].Build(inputs); err != nil {
			return err
		}
	}

	if err := a.finalGenerator.Build(inputs); err != nil {
		return err
	}

	a.MarkBuilt()

	return nil
}

// Call runs the decide-act loop on the single input document. A nil input
// flows through as nil.
func (a *FunctionCallingAgent) Call(ctx context.Context, inputs ...*core.JsonDataModel) ([]*core.JsonDataModel, error) {
	if len(inputs) != 1 {
		return nil, NewModuleError(a.Name(), fmt.Sprintf("expected 1 input, got %d", len(inputs)), "VALIDATION_ERROR")
	}

	input := inputs[0]
	if input == nil {
		return []*core.JsonDataModel{nil}, nil
	}

	trajectory := input

	for i := 0; i < a.maxIterations; i++ {
		decided, err := a.decide(ctx, trajectory)
		if err != nil {
			return nil, err
		}

		if !a.autonomous {
			return a.finish(decided.doc, trajectory)
		}

		if len(decided.choices) == 0 {
			break
		}

		a.logger.Debug("agent.step", "module", a.Name(), "iteration", i, "choices", len(decided.choices))

		combined, err := a.runChoices(ctx, trajectory, decided.choices)
		if err != nil {
			return nil, err
		}

		trajectory, err = core.Concat(trajectory, combined)
		if err != nil {
			return nil, fmt.Errorf("agent %s: %w", a.Name(), err)
		}
	}

	answer, err := a.finalGenerator.Call(ctx, trajectory)
	if err != nil {
		return nil, err
	}

	return a.finish(answer[0], trajectory)
}

type decidedStep struct {
	doc     *core.JsonDataModel
	choices []ToolChoice
}

// decide asks the decision generator which tools to run on the current
// trajectory.
func (a *FunctionCallingAgent) decide(ctx context.Context, trajectory *core.JsonDataModel) (*decidedStep, error) {
	step, err := core.Concat(trajectory, a.questionDoc.ToJson())
	if err != nil {
		return nil, fmt.Errorf("agent %s: %w", a.Name(), err)
	}

	decided, err := a.decision.Call(ctx, step)
	if err != nil {
		return nil, err
	}

	var decision ToolDecision
	if err := decided[0].Unmarshal(&decision); err != nil {
		return nil, fmt.Errorf("agent %s: decode decision: %w", a.Name(), err)
	}

	return &decidedStep{doc: decided[0], choices: decision.Choices}, nil
}

// runChoices executes the chosen actions concurrently on the trajectory and
// concatenates their results into one document.
func (a *FunctionCallingAgent) runChoices(ctx context.Context, trajectory *core.JsonDataModel, choices []ToolChoice) (*core.JsonDataModel, error) {
	for _, choice := range choices {
		if _, ok := a.actions[choice.Name]; !ok {
			return nil, NewModuleError(a.Name(), fmt.Sprintf("model chose unknown tool %q", choice.Name), "EXECUTION_ERROR")
		}
	}

	results := make([]*core.JsonDataModel, len(choices))

	var wg sync.WaitGroup
	errCh := make(chan error, len(choices))

	for i, choice := range choices {
		wg.Add(1)
		go func(i int, choice ToolChoice) {
			defer wg.Done()

			out, err := a.actions[choice.Name].Call(ctx, trajectory)
			if err != nil {
				errCh <- fmt.Errorf("agent %s: tool %s: %w", a.Name(), choice.Name, err)
				return
			}

			results[i] = out[0]
		}(i, choice)
	}

	wg.Wait()
	close(errCh)

	if len(errCh) > 0 {
		return nil, <-errCh
	}

	combined := results[0]
	for _, result := range results[1:] {
		var err error
		combined, err = core.Concat(combined, result)
		if err != nil {
			return nil, fmt.Errorf("agent %s: %w", a.Name(), err)
		}
	}

	return combined, nil
}

// finish applies the configured output shape to the agent's last document.
func (a *FunctionCallingAgent) finish(doc, trajectory *core.JsonDataModel) ([]*core.JsonDataModel, error) {
	if !a.returnInputs {
		return []*core.JsonDataModel{doc}, nil
	}

	merged, err := core.Concat(trajectory, doc)
	if err != nil {
		return nil, fmt.Errorf("agent %s: %w", a.Name(), err)
	}

	return []*core.JsonDataModel{merged}, nil
}

// ComputeOutputSpec reports the final answer spec, or the decision spec for
// a non-autonomous agent. With ReturnInputsWithTrajectory the trajectory
// extends the initial input schema at runtime, so the spec covers the known
// input properties only.
func (a *FunctionCallingAgent) ComputeOutputSpec(inputs ...*core.SymbolicDataModel) ([]*core.SymbolicDataModel, error) {
	if len(inputs) != 1 {
		return nil, NewModuleError(a.Name(), fmt.Sprintf("expected 1 input, got %d", len(inputs)), "VALIDATION_ERROR")
	}

	out := a.finalGenerator.OutputSchema()
	if !a.autonomous {
		out = a.decision.OutputSchema()
	}

	if a.returnInputs {
		out = schema.Concat(inputs[0].Schema(), out)
	}

	return []*core.SymbolicDataModel{core.NewSymbolicDataModel(out)}, nil
}

// GetConfig returns the serializable configuration used by persistence.
func (a *FunctionCallingAgent) GetConfig() map[string]any {
	return map[string]any{
		"name":                          a.Name(),
		"description":                   a.Description(),
		"schema":                        a.finalGenerator.OutputSchema(),
		"question":                      a.questionDoc.Get("question"),
		"tools":                         append([]string(nil), a.labels...),
		"max_iterations":                a.maxIterations,
		"autonomous":                    a.autonomous,
		"return_inputs_with_trajectory": a.returnInputs,
	}
}
