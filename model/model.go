package model

import (
	"context"

	"github.com/hupe1980/symflow/core"
	"github.com/hupe1980/symflow/schema"
)

// ToolDefinition declaratively exposes a callable function to the model.
type ToolDefinition struct {
	Type     string             `json:"type"` // "function"
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition describes an individual function (tool) exposed to the
// model. Parameters is the JSON schema of the argument object.
type FunctionDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  *schema.Schema `json:"parameters"`
}

// Request captures the normalized model input produced by modules.
type Request struct {
	Messages []core.ChatMessage `json:"messages"`
	Schema   *schema.Schema     `json:"schema,omitempty"` // constrains output to a JSON document when set
	Tools    []ToolDefinition   `json:"tools,omitempty"`
	Stream   bool               `json:"stream,omitempty"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a (partial or final) chunk emitted by a streaming model.
type Response struct {
	ID           string          `json:"id"`
	Partial      bool            `json:"partial"` // Indicates if this is a partial response
	Text         string          `json:"text"`    // Delta text when partial, full text when final
	ToolCalls    []core.ToolCall `json:"tool_calls,omitempty"`
	FinishReason string          `json:"finish_reason"` // "stop", "length", "tool_calls", etc.
	Usage        *TokenUsage     `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"` // "openai", "anthropic", "mock", etc.
	SupportsTools bool   `json:"supports_tools"`
}

// ChatModel is the minimal interface required by modules to drive generation.
type ChatModel interface {
	Generate(ctx context.Context, req Request) (<-chan Response, <-chan error)

	// Info returns information about the model implementation.
	Info() Info
}

// EmbeddingModel maps texts to vectors for similarity search.
type EmbeddingModel interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)

	// Info returns information about the model implementation.
	Info() Info
}
