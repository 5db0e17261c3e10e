package core

import "encoding/json"

// Chat roles understood by prompt templates and model backends.
const (
	ChatRoleSystem    = "system"
	ChatRoleUser      = "user"
	ChatRoleAssistant = "assistant"
	ChatRoleTool      = "tool"
)

// ToolCall is a function call requested by a model. Unified across vendors
// so downstream logic does not need per-provider branching.
type ToolCall struct {
	ID        string          `json:"id" description:"The tool call id"`
	Name      string          `json:"name" description:"The tool name"`
	Arguments json.RawMessage `json:"arguments" description:"The tool arguments as a JSON object"`
}

// ChatMessage is a single conversational turn. It doubles as a data model:
// the tags make it schema-derivable, so chat history can flow through
// program graphs like any other JSON value.
type ChatMessage struct {
	Role       string     `json:"role" description:"The message role: system, user, assistant or tool"`
	Content    string     `json:"content" description:"The message content"`
	ToolCallID string     `json:"tool_call_id,omitempty" description:"The id of the tool call this message responds to"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty" description:"The tool calls requested by the assistant"`
}

// ChatMessages is a conversation history data model.
type ChatMessages struct {
	Messages []ChatMessage `json:"messages" description:"The list of chat messages"`
}

// Append returns a copy of the history with the given message appended.
func (c ChatMessages) Append(msg ChatMessage) ChatMessages {
	out := ChatMessages{Messages: make([]ChatMessage, 0, len(c.Messages)+1)}
	out.Messages = append(out.Messages, c.Messages...)
	out.Messages = append(out.Messages, msg)
	return out
}
