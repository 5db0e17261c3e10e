// Package openai provides implementations of model.ChatModel and
// model.EmbeddingModel using the OpenAI API (including streaming +
// function/tool calling + schema-constrained JSON output). It adapts
// Symflow's normalized Request/Response structures into the SDK's message
// format and back.
package openai

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openai/openai-go"

	"github.com/hupe1980/symflow/core"
	"github.com/hupe1980/symflow/model"
	"github.com/hupe1980/symflow/schema"
)

// aggCall aggregates partial tool call streaming deltas (id, name, arguments)
// allowing reconstruction of complete tool calls when the finish reason is
// emitted. Internal helper (unexported).
type aggCall struct{ id, name, args string }

// Options configure the OpenAI model adapter.
// Fields mirror a subset of Chat Completion parameters intentionally kept
// minimal; extend via functional options without breaking callers.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
}

// ChatModel wraps the OpenAI Chat Completions API behind the generic
// model.ChatModel interface.
type ChatModel struct {
	client *openai.Client
	opts   Options
}

// NewChatModel creates a new OpenAI chat model using the official client
func NewChatModel(optFns ...func(o *Options)) *ChatModel {
	client := openai.NewClient()
	return NewChatModelFromClient(&client, optFns...)
}

// NewChatModelFromClient creates a new OpenAI chat model from an existing client
func NewChatModelFromClient(client *openai.Client, optFns ...func(o *Options)) *ChatModel {
	opts := Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.7,
		MaxCompletionTokens: 4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &ChatModel{client: client, opts: opts}
}

// Generate implements unified streaming / non-streaming generation.
// It adapts OpenAI Chat Completions (with tool calling and JSON schema
// response formats) into model.Response events.
func (m *ChatModel) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	out := make(chan model.Response, 32)
	errCh := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errCh)
		params := m.buildParams(req)
		if req.Stream {
			m.handleStreaming(ctx, params, out, errCh)
			return
		}
		m.handleNonStreaming(ctx, params, out, errCh)
	}()
	return out, errCh
}

// buildMessages converts normalized chat messages into OpenAI chat messages,
// preserving assistant tool calls and tool responses.
func buildMessages(req model.Request) []openai.ChatCompletionMessageParamUnion {
	var messages []openai.ChatCompletionMessageParamUnion
	for _, msg := range req.Messages {
		switch msg.Role {
		case core.ChatRoleSystem:
			messages = append(messages, openai.SystemMessage(msg.Content))
		case core.ChatRoleAssistant:
			if len(msg.ToolCalls) == 0 {
				messages = append(messages, openai.AssistantMessage(msg.Content))
				continue
			}
			messages = append(
				messages,
				openai.ChatCompletionMessageParamUnion{OfAssistant: &openai.ChatCompletionAssistantMessageParam{
					Role:      "assistant",
					ToolCalls: convertToolCalls(msg.ToolCalls),
				}},
			)
		case core.ChatRoleTool:
			messages = append(messages, openai.ToolMessage(msg.Content, msg.ToolCallID))
		default:
			messages = append(messages, openai.UserMessage(msg.Content))
		}
	}
	return messages
}

// convertToolCalls maps normalized tool calls to OpenAI formatted tool calls.
func convertToolCalls(calls []core.ToolCall) []openai.ChatCompletionMessageToolCallParam {
	toolCalls := make([]openai.ChatCompletionMessageToolCallParam, len(calls))
	for i, call := range calls {
		toolCalls[i] = openai.ChatCompletionMessageToolCallParam{
			ID:   call.ID,
			Type: "function",
			Function: openai.ChatCompletionMessageToolCallFunctionParam{
				Name:      call.Name,
				Arguments: string(call.Arguments),
			},
		}
	}
	return toolCalls
}

// buildParams assembles the OpenAI request parameters including tool
// definitions and the JSON schema response format.
func (m *ChatModel) buildParams(req model.Request) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Messages:            buildMessages(req),
		Model:               m.opts.Model,
		Temperature:         openai.Float(m.opts.Temperature),
		MaxCompletionTokens: openai.Int(m.opts.MaxCompletionTokens),
	}
	if req.Schema != nil {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:        schemaName(req.Schema),
					Description: openai.String(req.Schema.Description),
					Schema:      schemaToMap(req.Schema),
					Strict:      openai.Bool(true),
				},
			},
		}
	}
	if len(req.Tools) == 0 {
		return params
	}
	tools := make([]openai.ChatCompletionToolParam, len(req.Tools))
	for i, tdef := range req.Tools {
		tools[i] = openai.ChatCompletionToolParam{
			Type: "function",
			Function: openai.FunctionDefinitionParam{
				Name:        tdef.Function.Name,
				Description: openai.String(tdef.Function.Description),
				Parameters:  openai.FunctionParameters(schemaToMap(tdef.Function.Parameters)),
			},
		}
	}
	params.Tools = tools
	return params
}

// handleStreaming processes streaming responses and forwards partial / final events.
func (m *ChatModel) handleStreaming(
	ctx context.Context,
	params openai.ChatCompletionNewParams,
	out chan<- model.Response,
	errCh chan<- error,
) {
	stream := m.client.Chat.Completions.NewStreaming(ctx, params)
	var fullText string
	toolAgg := map[int64]*aggCall{}
	for stream.Next() {
		ck := stream.Current()
		for _, ch := range ck.Choices {
			if ch.Delta.Content != "" {
				fullText += ch.Delta.Content
				out <- model.Response{Partial: true, Text: ch.Delta.Content}
			}
			for _, tc := range ch.Delta.ToolCalls {
				ac, ok := toolAgg[tc.Index]
				if !ok {
					ac = &aggCall{}
					toolAgg[tc.Index] = ac
				}
				if tc.ID != "" {
					ac.id = tc.ID
				}
				if tc.Function.Name != "" {
					ac.name = tc.Function.Name
				}
				if tc.Function.Arguments != "" {
					ac.args += tc.Function.Arguments
				}
			}
			if ch.FinishReason != "" {
				out <- model.Response{
					Partial:      false,
					Text:         fullText,
					ToolCalls:    collectAggCalls(toolAgg),
					FinishReason: ch.FinishReason,
				}
			}
		}
	}
	if err := stream.Err(); err != nil {
		errCh <- fmt.Errorf("openai streaming error: %w", err)
	}
}

func collectAggCalls(toolAgg map[int64]*aggCall) []core.ToolCall {
	if len(toolAgg) == 0 {
		return nil
	}
	calls := make([]core.ToolCall, 0, len(toolAgg))
	for _, ac := range toolAgg {
		calls = append(calls, core.ToolCall{
			ID:        ac.id,
			Name:      ac.name,
			Arguments: json.RawMessage(ac.args),
		})
	}
	return calls
}

// handleNonStreaming processes a normal (non-streaming) completion.
func (m *ChatModel) handleNonStreaming(
	ctx context.Context,
	params openai.ChatCompletionNewParams,
	out chan<- model.Response,
	errCh chan<- error,
) {
	resp, err := m.client.Chat.Completions.New(ctx, params)
	if err != nil {
		errCh <- fmt.Errorf("openai api error: %w", err)
		return
	}
	if len(resp.Choices) == 0 {
		errCh <- fmt.Errorf("no choices returned")
		return
	}
	ch0 := resp.Choices[0]
	var toolCalls []core.ToolCall
	for _, tc := range ch0.Message.ToolCalls {
		toolCalls = append(toolCalls, core.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(tc.Function.Arguments),
		})
	}
	out <- model.Response{
		ID:           resp.ID,
		Partial:      false,
		Text:         ch0.Message.Content,
		ToolCalls:    toolCalls,
		FinishReason: ch0.FinishReason,
		Usage: &model.TokenUsage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}
}

// Info returns metadata describing this OpenAI model implementation.
func (m *ChatModel) Info() model.Info {
	return model.Info{
		Name:          m.opts.Model,
		Provider:      "openai",
		SupportsTools: true,
	}
}

// EmbeddingOptions configure the OpenAI embedding adapter.
type EmbeddingOptions struct {
	Model string
}

// EmbeddingModel wraps the OpenAI Embeddings API behind the generic
// model.EmbeddingModel interface.
type EmbeddingModel struct {
	client *openai.Client
	opts   EmbeddingOptions
}

// NewEmbeddingModel creates a new OpenAI embedding model using the official client
func NewEmbeddingModel(optFns ...func(o *EmbeddingOptions)) *EmbeddingModel {
	client := openai.NewClient()
	return NewEmbeddingModelFromClient(&client, optFns...)
}

// NewEmbeddingModelFromClient creates a new OpenAI embedding model from an existing client
func NewEmbeddingModelFromClient(client *openai.Client, optFns ...func(o *EmbeddingOptions)) *EmbeddingModel {
	opts := EmbeddingOptions{
		Model: openai.EmbeddingModelTextEmbedding3Small,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &EmbeddingModel{client: client, opts: opts}
}

// Embed implements model.EmbeddingModel.
func (m *EmbeddingModel) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	resp, err := m.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: m.opts.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("openai embeddings error: %w", err)
	}
	vectors := make([][]float64, len(texts))
	for _, d := range resp.Data {
		if int(d.Index) < len(vectors) {
			vectors[d.Index] = d.Embedding
		}
	}
	return vectors, nil
}

// Info returns metadata describing this OpenAI embedding implementation.
func (m *EmbeddingModel) Info() model.Info {
	return model.Info{
		Name:     m.opts.Model,
		Provider: "openai",
	}
}

// schemaName derives the response format name from the schema title.
func schemaName(s *schema.Schema) string {
	if s.Title != "" {
		return s.Title
	}
	return "response"
}

// schemaToMap converts an ordered schema into the loosely typed map the SDK
// expects. Key order is irrelevant on this path; the wire encoding is the
// SDK's concern.
func schemaToMap(s *schema.Schema) map[string]any {
	if s == nil {
		return map[string]any{"type": "object"}
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return map[string]any{"type": "object"}
	}
	return out
}
