package module

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/symflow/core"
	"github.com/hupe1980/symflow/model"
	"github.com/hupe1980/symflow/schema"
	"github.com/hupe1980/symflow/tool"
)

// Interface compliance (compile-time assertions)
var (
	_ core.Module  = (*Action)(nil)
	_ core.Builder = (*Action)(nil)
)

// -------------------- Action Tests --------------------

type calcArgs struct {
	A float64 `json:"a" description:"First addend"`
	B float64 `json:"b" description:"Second addend"`
}

func calcTool(t *testing.T) *tool.FunctionTool {
	t.Helper()

	tl, err := tool.NewFunctionToolFromStruct("calculate_sum", "Calculate the sum of two numbers.", calcArgs{},
		func(_ context.Context, args map[string]any) (any, error) {
			return map[string]any{
				"result": args["a"].(float64) + args["b"].(float64),
				"log":    "ok",
			}, nil
		})
	require.NoError(t, err)

	return tl
}

func calcAction(t *testing.T, mock *model.MockChatModel, tl tool.Tool, optFns ...func(o *ActionOptions)) *Action {
	t.Helper()

	lm := model.NewLanguageModel(mock)

	a, err := NewAction(tl, lm, func(o *ActionOptions) {
		o.Name = "calc_action"

		for _, fn := range optFns {
			fn(o)
		}
	})
	require.NoError(t, err)

	return a
}

// MockTool for asserting tool invocations
type MockTool struct {
	mock.Mock
	name string
}

func NewMockTool(name string) *MockTool {
	return &MockTool{name: name}
}

func (m *MockTool) Name() string { return m.name }

func (m *MockTool) Description() string { return "Mock tool " + m.name }

func (m *MockTool) Parameters() *schema.Schema {
	s, _ := schema.FromStruct(calcArgs{})
	return s
}

func (m *MockTool) Call(ctx context.Context, args map[string]any) (any, error) {
	called := m.Called(ctx, args)
	return called.Get(0), called.Error(1)
}

func TestAction_Call(t *testing.T) {
	mock := model.NewMockChatModel()
	mock.Enqueue(`{"a": 2, "b": 3}`)

	a := calcAction(t, mock, calcTool(t))

	outputs, err := a.Call(context.Background(), queryDoc(t, "What is 2 + 3?"))
	require.NoError(t, err)
	require.Len(t, outputs, 1)

	assert.Equal(t, 5.0, outputs[0].Get("result"))
	assert.Equal(t, "ok", outputs[0].GetString("log"))
	assert.Equal(t, "Calculate Sum", outputs[0].Schema().Title)
	assert.Equal(t, []string{"log", "result"}, outputs[0].Schema().PropertyNames())

	// The argument generator is constrained to the tool's parameter schema.
	req := mock.LastRequest()
	require.NotNil(t, req.Schema)
	assert.Equal(t, []string{"a", "b"}, req.Schema.PropertyNames())
	assert.Contains(t, req.Messages[0].Content, "calculate_sum")
}

func TestAction_ReturnInputs(t *testing.T) {
	mock := model.NewMockChatModel()
	mock.Enqueue(`{"a": 2, "b": 3}`)

	a := calcAction(t, mock, calcTool(t), func(o *ActionOptions) {
		o.ReturnInputs = true
	})

	outputs, err := a.Call(context.Background(), queryDoc(t, "What is 2 + 3?"))
	require.NoError(t, err)

	assert.Equal(t, "What is 2 + 3?", outputs[0].GetString("query"))
	assert.Equal(t, 5.0, outputs[0].Get("result"))
	assert.Equal(t, []string{"query", "log", "result"}, outputs[0].Schema().PropertyNames())
}

func TestAction_NonObjectResult(t *testing.T) {
	scalar, err := tool.NewFunctionToolFromStruct("scalar", "Returns a bare number.", calcArgs{},
		func(_ context.Context, _ map[string]any) (any, error) {
			return 42.0, nil
		})
	require.NoError(t, err)

	mock := model.NewMockChatModel()
	mock.Enqueue(`{"a": 1, "b": 2}`)

	a := calcAction(t, mock, scalar)

	_, err = a.Call(context.Background(), queryDoc(t, "whatever"))
	require.Error(t, err)

	var modErr *ModuleError
	require.ErrorAs(t, err, &modErr)
	assert.Equal(t, "EXECUTION_ERROR", modErr.Code)
}

func TestAction_ToolError(t *testing.T) {
	failing, err := tool.NewFunctionToolFromStruct("failing", "Always fails.", calcArgs{},
		func(_ context.Context, _ map[string]any) (any, error) {
			return nil, errors.New("boom")
		})
	require.NoError(t, err)

	mock := model.NewMockChatModel()
	mock.Enqueue(`{"a": 1, "b": 2}`)

	a := calcAction(t, mock, failing)

	_, err = a.Call(context.Background(), queryDoc(t, "whatever"))
	require.Error(t, err)

	var toolErr *tool.ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Contains(t, err.Error(), "failing")
}

func TestAction_ArgumentPropagation(t *testing.T) {
	chat := model.NewMockChatModel()
	chat.Enqueue(`{"a": 2, "b": 3}`)

	tl := NewMockTool("calculate_sum")
	tl.On("Call", mock.Anything, mock.MatchedBy(func(args map[string]any) bool {
		return args["a"] == 2.0 && args["b"] == 3.0
	})).Return(map[string]any{"result": 5.0}, nil)

	a := calcAction(t, chat, tl)

	outputs, err := a.Call(context.Background(), queryDoc(t, "What is 2 + 3?"))
	require.NoError(t, err)

	assert.Equal(t, 5.0, outputs[0].Get("result"))
	tl.AssertExpectations(t)
}

func TestAction_NilInput(t *testing.T) {
	mock := model.NewMockChatModel()

	a := calcAction(t, mock, calcTool(t))

	outputs, err := a.Call(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, outputs[0])
	assert.Equal(t, 0, mock.Calls())
}

func TestAction_Trace(t *testing.T) {
	mock := model.NewMockChatModel()

	a := calcAction(t, mock, calcTool(t))

	input, err := NewInput(testQuery{}, func(o *InputOptions) { o.Name = "query_input" })
	require.NoError(t, err)

	out, err := core.Apply1(a, input)
	require.NoError(t, err)
	assert.Equal(t, "object", out.Schema().Type)
	assert.Equal(t, "Calculate Sum", out.Schema().Title)
}
