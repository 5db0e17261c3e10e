// Package tool implements the function / tool calling subsystem that lets
// agent modules invoke structured capabilities (APIs, computations,
// side-effects) with schema validated arguments, consistent error handling
// and rich metadata for LLM guidance.
package tool

import (
	"context"
	"fmt"
	"strings"

	"github.com/hupe1980/symflow/schema"
)

// Tool defines the interface for extending agent modules with external functions.
//
// Tools can be handed to agent modules to enable function calling, allowing
// programs to perform actions beyond text generation such as API calls,
// calculations, database queries, or any other programmatic operations.
//
// Tool implementations should:
//   - Provide clear, descriptive names and descriptions
//   - Define a proper JSON schema for parameters
//   - Handle errors gracefully
//   - Be thread-safe if used concurrently
//   - Follow consistent naming conventions
type Tool interface {
	// Name returns the unique identifier for this tool.
	// Names should be descriptive and follow function naming conventions (snake_case recommended).
	Name() string

	// Description returns a human-readable description of what this tool does.
	// This description is provided to the LLM to help it understand when and how to use the tool.
	Description() string

	// Parameters returns a JSON schema describing the expected input format.
	// This schema is used for parameter validation and LLM function calling.
	Parameters() *schema.Schema

	// Call executes the tool with structured arguments. Arguments are parsed
	// from JSON and validated against the tool's schema before execution.
	Call(ctx context.Context, args map[string]interface{}) (interface{}, error)
}

// ValidationError represents parameter validation errors with detailed information.
type ValidationError = schema.ValidationError

// ToolError represents errors that occur during tool execution.
type ToolError struct {
	Tool    string      `json:"tool"`              // Name of the tool that failed
	Message string      `json:"message"`           // Error message
	Code    string      `json:"code"`              // Error code for categorization
	Details interface{} `json:"details,omitempty"` // Additional error details
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}

// StaticPrompt renders a toolkit description for inclusion in agent
// instructions, so the model knows its capabilities before the first turn.
func StaticPrompt(toolkit []Tool) string {
	if len(toolkit) == 0 {
		return "The toolkit is empty. No tools available."
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "The toolkit contains %d tools:\n\n", len(toolkit))
	for _, t := range toolkit {
		fmt.Fprintf(&sb, "- (%s) %s\n", t.Name(), t.Description())
	}

	return sb.String()
}

// ByName returns the tool with the given name, or nil if absent.
func ByName(toolkit []Tool, name string) Tool {
	for _, t := range toolkit {
		if t.Name() == name {
			return t
		}
	}

	return nil
}
