// Package anthropic provides a model.ChatModel implementation for the
// Anthropic Claude API. Schema-constrained output is implemented with forced
// tool use: the schema is exposed as the input of a synthetic tool and the
// model is required to call it, which yields a JSON document without relying
// on prompt-level coaxing.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"

	"github.com/hupe1980/symflow/core"
	"github.com/hupe1980/symflow/model"
	"github.com/hupe1980/symflow/schema"
)

// outputToolName is the synthetic tool used to force schema-shaped output.
const outputToolName = "structured_output"

// Options configures the Anthropic model adapter (temperature, model id,
// max tokens, API key). Extend via functional options to preserve stability.
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	APIKey      string
}

// ChatModel wraps the Anthropic Messages API behind the generic
// model.ChatModel interface.
type ChatModel struct {
	client *anthropic.Client
	opts   Options
}

// NewChatModel creates a new Anthropic chat model using the official client
func NewChatModel(optFns ...func(o *Options)) *ChatModel {
	opts := Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   4096,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}

	client := anthropic.NewClient(clientOpts...)

	return &ChatModel{
		client: &client,
		opts:   opts,
	}
}

// NewChatModelFromClient creates a new Anthropic chat model from an existing client
func NewChatModelFromClient(client *anthropic.Client, optFns ...func(o *Options)) *ChatModel {
	opts := Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   4096,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &ChatModel{
		client: client,
		opts:   opts,
	}
}

// Generate implements model.ChatModel for the Messages API.
func (m *ChatModel) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	out := make(chan model.Response, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		params := anthropic.MessageNewParams{
			Model:       m.opts.Model,
			Messages:    buildMessages(req.Messages),
			MaxTokens:   m.opts.MaxTokens,
			Temperature: anthropic.Float(m.opts.Temperature),
		}

		if systemBlocks := extractSystemMessage(req.Messages); len(systemBlocks) > 0 {
			params.System = systemBlocks
		}

		tools := buildTools(req.Tools)

		if req.Schema != nil {
			tools = append(tools, outputTool(req.Schema))
			params.ToolChoice = anthropic.ToolChoiceUnionParam{
				OfTool: &anthropic.ToolChoiceToolParam{Name: outputToolName},
			}
		}

		if len(tools) > 0 {
			params.Tools = tools
		}

		if req.Stream {
			// TODO: Implement streaming support
			// Forced tool use does not stream text deltas; streaming here
			// means surfacing input_json_delta events, which requires the
			// MessageStreamEvent accumulation helpers.
			errCh <- fmt.Errorf("streaming not yet implemented for Anthropic model")
			return
		}

		resp, err := m.client.Messages.New(ctx, params)
		if err != nil {
			errCh <- fmt.Errorf("anthropic api error: %w", err)
			return
		}

		out <- buildResponse(resp, req.Schema != nil)
	}()

	return out, errCh
}

// buildResponse converts an Anthropic message into a normalized response.
// When output was forced through the synthetic tool, its input becomes the
// response text.
func buildResponse(resp *anthropic.Message, forcedOutput bool) model.Response {
	var (
		text      string
		toolCalls []core.ToolCall
	)

	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			textBlock := block.AsText()
			if textBlock.Text != "" {
				text += textBlock.Text
			}
		case "tool_use":
			toolBlock := block.AsToolUse()

			args := "{}"
			if argsBytes, err := json.Marshal(toolBlock.Input); err == nil {
				args = string(argsBytes)
			}

			if forcedOutput && toolBlock.Name == outputToolName {
				text = args
				continue
			}

			toolCalls = append(toolCalls, core.ToolCall{
				ID:        toolBlock.ID,
				Name:      toolBlock.Name,
				Arguments: json.RawMessage(args),
			})
		}
	}

	finishReason := "stop"
	if resp.StopReason != "" {
		finishReason = string(resp.StopReason)
	}

	return model.Response{
		ID:           resp.ID,
		Partial:      false,
		Text:         text,
		ToolCalls:    toolCalls,
		FinishReason: finishReason,
		Usage: &model.TokenUsage{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
			TotalTokens:      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
		},
	}
}

// buildMessages converts normalized chat messages to the Anthropic format.
// Tool results must arrive in user messages, so tool-role turns become user
// messages carrying a tool_result block.
func buildMessages(messages []core.ChatMessage) []anthropic.MessageParam {
	var out []anthropic.MessageParam

	for _, msg := range messages {
		switch msg.Role {
		case core.ChatRoleSystem:
			continue // handled separately
		case core.ChatRoleAssistant:
			var content []anthropic.ContentBlockParamUnion
			if msg.Content != "" {
				content = append(content, anthropic.NewTextBlock(msg.Content))
			}

			for _, call := range msg.ToolCalls {
				var input interface{}
				if len(call.Arguments) > 0 {
					if err := json.Unmarshal(call.Arguments, &input); err != nil {
						input = string(call.Arguments) // fallback to string
					}
				}

				content = append(content, anthropic.NewToolUseBlock(call.ID, input, call.Name))
			}

			if len(content) > 0 {
				out = append(out, anthropic.NewAssistantMessage(content...))
			}
		case core.ChatRoleTool:
			out = append(out, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false),
			))
		default:
			if msg.Content != "" {
				out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
			}
		}
	}

	return out
}

// extractSystemMessage extracts system message blocks
func extractSystemMessage(messages []core.ChatMessage) []anthropic.TextBlockParam {
	var systemBlocks []anthropic.TextBlockParam

	for _, msg := range messages {
		if msg.Role == core.ChatRoleSystem && msg.Content != "" {
			systemBlocks = append(systemBlocks, anthropic.TextBlockParam{
				Text: msg.Content,
			})
		}
	}

	return systemBlocks
}

// buildTools converts normalized tool definitions to the Anthropic tool format
func buildTools(tools []model.ToolDefinition) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))

	for _, tool := range tools {
		out = append(out, toolParam(tool.Function.Name, tool.Function.Parameters))
	}

	return out
}

// outputTool builds the synthetic tool whose input is the requested schema.
func outputTool(s *schema.Schema) anthropic.ToolUnionParam {
	return toolParam(outputToolName, s)
}

func toolParam(name string, s *schema.Schema) anthropic.ToolUnionParam {
	inputSchema := anthropic.ToolInputSchemaParam{
		Type: constant.Object("object"),
	}

	if s != nil {
		properties, required := flattenSchema(s)
		inputSchema.Properties = properties
		inputSchema.Required = required
	}

	return anthropic.ToolUnionParamOfTool(inputSchema, name)
}

// flattenSchema converts an ordered schema into the properties/required pair
// the tool input format expects. $defs references are resolved inline since
// the tool input schema has no place to carry definitions.
func flattenSchema(s *schema.Schema) (map[string]any, []string) {
	raw, err := json.Marshal(s)
	if err != nil {
		return map[string]any{}, nil
	}

	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return map[string]any{}, nil
	}

	defs, _ := doc["$defs"].(map[string]any)

	properties, _ := doc["properties"].(map[string]any)
	if properties == nil {
		properties = map[string]any{}
	}

	resolved, _ := resolveRefs(properties, defs).(map[string]any)

	var required []string
	if rawRequired, ok := doc["required"].([]any); ok {
		for _, r := range rawRequired {
			if name, ok := r.(string); ok {
				required = append(required, name)
			}
		}
	}

	return resolved, required
}

// resolveRefs walks a decoded schema fragment and replaces {"$ref": "#/$defs/X"}
// nodes with the referenced definition. Sibling keys of a $ref (description
// for instance) are preserved on the resolved node.
func resolveRefs(node any, defs map[string]any) any {
	switch v := node.(type) {
	case map[string]any:
		if ref, ok := v["$ref"].(string); ok {
			name := strings.TrimPrefix(ref, "#/$defs/")
			if def, ok := defs[name].(map[string]any); ok {
				merged := map[string]any{}
				for key, val := range def {
					merged[key] = val
				}
				for key, val := range v {
					if key != "$ref" {
						merged[key] = val
					}
				}
				return resolveRefs(merged, defs)
			}
		}

		out := map[string]any{}
		for key, val := range v {
			out[key] = resolveRefs(val, defs)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = resolveRefs(item, defs)
		}
		return out
	default:
		return node
	}
}

// Info returns metadata describing this Anthropic model implementation.
func (m *ChatModel) Info() model.Info {
	return model.Info{
		Name:          string(m.opts.Model),
		Provider:      "anthropic",
		SupportsTools: true,
	}
}
