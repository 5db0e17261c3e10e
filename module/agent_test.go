package module

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/symflow/core"
	"github.com/hupe1980/symflow/model"
	"github.com/hupe1980/symflow/tool"
)

// Interface compliance (compile-time assertions)
var (
	_ core.Module  = (*FunctionCallingAgent)(nil)
	_ core.Builder = (*FunctionCallingAgent)(nil)
)

// -------------------- FunctionCallingAgent Tests --------------------

type finalAnswer struct {
	Answer float64 `json:"answer" description:"The correct final answer"`
}

func mathAgent(t *testing.T, mock *model.MockChatModel, optFns ...func(o *FunctionCallingAgentOptions)) *FunctionCallingAgent {
	t.Helper()

	lm := model.NewLanguageModel(mock)

	a, err := NewFunctionCallingAgent([]tool.Tool{calcTool(t)}, lm, func(o *FunctionCallingAgentOptions) {
		o.Name = "math_agent"
		o.DataModel = finalAnswer{}

		for _, fn := range optFns {
			fn(o)
		}
	})
	require.NoError(t, err)

	return a
}

func TestFunctionCallingAgent_Loop(t *testing.T) {
	mock := model.NewMockChatModel()
	mock.Enqueue(
		`{"reasoning": "I need to add the numbers.", "choices": [{"name": "calculate_sum", "purpose": "compute 2 + 3"}]}`,
		`{"a": 2, "b": 3}`,
		`{"reasoning": "The result is known, nothing left to do.", "choices": []}`,
		`{"answer": 5}`,
	)

	a := mathAgent(t, mock)

	outputs, err := a.Call(context.Background(), queryDoc(t, "What is 2 + 3?"))
	require.NoError(t, err)
	require.Len(t, outputs, 1)

	assert.Equal(t, 5.0, outputs[0].Get("answer"))
	assert.Equal(t, 4, mock.Calls())

	// The final generator saw the tool result in the trajectory.
	final := mock.Requests()[3]
	assert.Contains(t, final.Messages[1].Content, `"result"`)
	assert.Contains(t, final.Messages[1].Content, "What is 2 + 3?")
}

func TestFunctionCallingAgent_MaxIterations(t *testing.T) {
	mock := model.NewMockChatModel()
	mock.Enqueue(
		`{"reasoning": "Add the numbers.", "choices": [{"name": "calculate_sum", "purpose": "compute"}]}`,
		`{"a": 2, "b": 3}`,
		`{"answer": 5}`,
	)

	a := mathAgent(t, mock, func(o *FunctionCallingAgentOptions) {
		o.MaxIterations = 1
	})

	outputs, err := a.Call(context.Background(), queryDoc(t, "What is 2 + 3?"))
	require.NoError(t, err)

	// One decision, one tool round, then straight to the final answer.
	assert.Equal(t, 5.0, outputs[0].Get("answer"))
	assert.Equal(t, 3, mock.Calls())
}

func TestFunctionCallingAgent_ParallelChoices(t *testing.T) {
	mock := model.NewMockChatModel()
	mock.Enqueue(
		`{"reasoning": "Two sums at once.", "choices": [{"name": "calculate_sum", "purpose": "first sum"}, {"name": "calculate_sum", "purpose": "second sum"}]}`,
		`{"a": 1, "b": 2}`,
		`{"a": 3, "b": 4}`,
		`{"reasoning": "Done.", "choices": []}`,
		`{"answer": 10}`,
	)

	a := mathAgent(t, mock)

	outputs, err := a.Call(context.Background(), queryDoc(t, "Add 1+2 and 3+4."))
	require.NoError(t, err)

	assert.Equal(t, 10.0, outputs[0].Get("answer"))
	assert.Equal(t, 5, mock.Calls())
}

func TestFunctionCallingAgent_ReturnInputsWithTrajectory(t *testing.T) {
	mock := model.NewMockChatModel()
	mock.Enqueue(
		`{"reasoning": "Add them.", "choices": [{"name": "calculate_sum", "purpose": "compute"}]}`,
		`{"a": 2, "b": 3}`,
		`{"reasoning": "Done.", "choices": []}`,
		`{"answer": 5}`,
	)

	a := mathAgent(t, mock, func(o *FunctionCallingAgentOptions) {
		o.ReturnInputsWithTrajectory = true
	})

	outputs, err := a.Call(context.Background(), queryDoc(t, "What is 2 + 3?"))
	require.NoError(t, err)

	out := outputs[0]
	assert.Equal(t, "What is 2 + 3?", out.GetString("query"))
	assert.Equal(t, 5.0, out.Get("result"))
	assert.Equal(t, 5.0, out.Get("answer"))
}

func TestFunctionCallingAgent_NonAutonomous(t *testing.T) {
	mock := model.NewMockChatModel()
	mock.Enqueue(
		`{"reasoning": "I would add the numbers.", "choices": [{"name": "calculate_sum", "purpose": "compute 2 + 3"}]}`,
	)

	a := mathAgent(t, mock, func(o *FunctionCallingAgentOptions) {
		o.Autonomous = false
	})

	outputs, err := a.Call(context.Background(), queryDoc(t, "What is 2 + 3?"))
	require.NoError(t, err)

	// No tools ran; the planned calls come back for review.
	assert.Equal(t, 1, mock.Calls())

	var decision ToolDecision
	require.NoError(t, outputs[0].Unmarshal(&decision))
	require.Len(t, decision.Choices, 1)
	assert.Equal(t, "calculate_sum", decision.Choices[0].Name)
}

func TestFunctionCallingAgent_DecisionSchema(t *testing.T) {
	mock := model.NewMockChatModel()

	a := mathAgent(t, mock)

	s := a.decision.OutputSchema()
	def := s.Def("Name")
	require.NotNil(t, def)
	assert.Equal(t, []string{"calculate_sum"}, def.Enum)

	choices := s.Property("choices")
	require.NotNil(t, choices)
	assert.Equal(t, "array", choices.Type)
	require.NotNil(t, choices.Items)
	assert.Equal(t, "#/$defs/Name", choices.Items.Property("name").Ref)
}

func TestFunctionCallingAgent_Validation(t *testing.T) {
	lm := model.NewLanguageModel(model.NewMockChatModel())

	_, err := NewFunctionCallingAgent(nil, lm, func(o *FunctionCallingAgentOptions) {
		o.DataModel = finalAnswer{}
	})
	assert.Error(t, err)

	_, err = NewFunctionCallingAgent([]tool.Tool{calcTool(t)}, lm, func(o *FunctionCallingAgentOptions) {
		o.DataModel = finalAnswer{}
		o.MaxIterations = 0
	})
	assert.Error(t, err)

	_, err = NewFunctionCallingAgent([]tool.Tool{calcTool(t)}, lm)
	assert.Error(t, err)
}

func TestFunctionCallingAgent_NilInput(t *testing.T) {
	mock := model.NewMockChatModel()

	a := mathAgent(t, mock)

	outputs, err := a.Call(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, outputs[0])
	assert.Equal(t, 0, mock.Calls())
}
