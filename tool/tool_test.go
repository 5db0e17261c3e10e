package tool

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/symflow/schema"
)

// -------------------- FunctionTool Tests --------------------

type sumArgs struct {
	A float64 `json:"a" description:"First addend"`
	B float64 `json:"b" description:"Second addend"`
}

func sumTool(t *testing.T) *FunctionTool {
	t.Helper()

	tl, err := NewFunctionToolFromStruct("calculate_sum", "Calculate the sum of two numbers.", sumArgs{},
		func(_ context.Context, args map[string]any) (any, error) {
			return args["a"].(float64) + args["b"].(float64), nil
		})
	require.NoError(t, err)

	return tl
}

func TestFunctionTool_Success(t *testing.T) {
	tl := sumTool(t)

	result, err := tl.Call(context.Background(), map[string]any{"a": 2.0, "b": 3.0})
	assert.NoError(t, err)
	assert.Equal(t, 5.0, result)
}

func TestFunctionTool_SchemaFromStruct(t *testing.T) {
	tl := sumTool(t)

	params := tl.Parameters()
	require.NotNil(t, params)
	assert.Equal(t, []string{"a", "b"}, params.PropertyNames())
	assert.Equal(t, []string{"a", "b"}, params.Required)
}

func TestFunctionTool_ValidationError(t *testing.T) {
	tl := sumTool(t)

	_, err := tl.Call(context.Background(), map[string]any{"a": 2.0})
	assert.Error(t, err)
	toolErr, ok := err.(*ToolError)
	assert.True(t, ok)
	assert.Equal(t, "VALIDATION_ERROR", toolErr.Code)

	vErr, ok := toolErr.Details.(*schema.ValidationError)
	assert.True(t, ok)
	assert.Equal(t, "b", vErr.Field)
}

func TestFunctionTool_WrongType(t *testing.T) {
	tl := sumTool(t)

	_, err := tl.Call(context.Background(), map[string]any{"a": 2.0, "b": "not-a-number"})
	assert.Error(t, err)
	toolErr, ok := err.(*ToolError)
	assert.True(t, ok)
	assert.Equal(t, "VALIDATION_ERROR", toolErr.Code)
}

func TestFunctionTool_ExecutionError(t *testing.T) {
	params, err := schema.FromStruct(struct{}{})
	require.NoError(t, err)

	execTool := NewFunctionTool("fail", "Fails", params, func(_ context.Context, _ map[string]any) (any, error) {
		return nil, errors.New("boom")
	})

	_, err = execTool.Call(context.Background(), map[string]any{})
	assert.Error(t, err)
	toolErr, ok := err.(*ToolError)
	assert.True(t, ok)
	assert.Equal(t, "EXECUTION_ERROR", toolErr.Code)
	assert.Equal(t, "boom", toolErr.Message)
}

func TestFunctionTool_CustomToolErrorForwarded(t *testing.T) {
	custom := NewToolError("custom", "rate limited", "RATE_LIMITED")

	tl := NewFunctionTool("custom", "Custom failure", nil, func(_ context.Context, _ map[string]any) (any, error) {
		return nil, custom
	})

	_, err := tl.Call(context.Background(), map[string]any{})
	assert.Same(t, custom, err)
}

// -------------------- Execute Tests --------------------

func TestExecute_RawArguments(t *testing.T) {
	tl := sumTool(t)

	result, err := Execute(context.Background(), tl, json.RawMessage(`{"a": 1, "b": 2}`))
	assert.NoError(t, err)
	assert.Equal(t, 3.0, result)
}

func TestExecute_MalformedArguments(t *testing.T) {
	tl := sumTool(t)

	_, err := Execute(context.Background(), tl, json.RawMessage(`[1, 2]`))
	assert.Error(t, err)
	toolErr, ok := err.(*ToolError)
	assert.True(t, ok)
	assert.Equal(t, "VALIDATION_ERROR", toolErr.Code)
}

// -------------------- Toolkit Prompt --------------------

func TestStaticPrompt_Empty(t *testing.T) {
	assert.Equal(t, "The toolkit is empty. No tools available.", StaticPrompt(nil))
}

func TestStaticPrompt_MultiTool(t *testing.T) {
	searchTool := NewFunctionTool("websearch", "Search for information on the web.", nil,
		func(_ context.Context, _ map[string]any) (any, error) { return nil, nil })
	mathTool := NewFunctionTool("calculate", "Perform mathematical calculations.", nil,
		func(_ context.Context, _ map[string]any) (any, error) { return nil, nil })

	expected := "The toolkit contains 2 tools:\n\n" +
		"- (websearch) Search for information on the web.\n" +
		"- (calculate) Perform mathematical calculations.\n"

	assert.Equal(t, expected, StaticPrompt([]Tool{searchTool, mathTool}))
}

func TestByName(t *testing.T) {
	tl := sumTool(t)
	toolkit := []Tool{tl}

	assert.Same(t, tl, ByName(toolkit, "calculate_sum").(*FunctionTool))
	assert.Nil(t, ByName(toolkit, "unknown"))
}

// -------------------- ToolError Formatting --------------------

func TestToolErrorFormatting(t *testing.T) {
	err := NewToolError("demo", "something failed", "E123")
	assert.Contains(t, err.Error(), "E123")
	assert.Contains(t, err.Error(), "demo")

	plain := &ToolError{Tool: "demo", Message: "something failed"}
	assert.Equal(t, "tool error in demo: something failed", plain.Error())
}
