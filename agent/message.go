// Package agent defines the provider-agnostic message and prompt model
// consumed by the Strategy Graph interpreter, the Agent Environment, and the
// LLM Executor. Messages are a closed tagged variant rather than an open
// role+parts model: System, User, Assistant, ToolCall, and ToolResult are
// the only kinds, each carrying exactly the fields it needs.
package agent

import (
	"encoding/json"
	"time"

	"github.com/agentkit/agentrt/tools"
)

// Kind discriminates the closed Message variant set.
type Kind string

const (
	KindSystem     Kind = "system"
	KindUser       Kind = "user"
	KindAssistant  Kind = "assistant"
	KindToolCall   Kind = "tool_call"
	KindToolResult Kind = "tool_result"
)

// Message is the tagged variant named by the data model: System(text),
// User(text, attachments?), Assistant(text, metadata), ToolCall(id,
// tool_name, arguments_json), ToolResult(call_id, tool_name, content).
// Only the fields relevant to Kind are populated. Messages are immutable
// once constructed; Index and CreatedAt are assigned by Prompt.Append, not
// by the constructors, since a message does not know its position in a
// prompt until it is appended.
type Message struct {
	Kind Kind

	// Index is this message's monotonic position within its prompt, assigned
	// on append. The first message in a prompt has Index 0.
	Index int

	// CreatedAt is the wall-clock time this message was appended.
	CreatedAt time.Time

	// Text holds the body for System, User, and Assistant messages.
	Text string

	// Attachments holds User message attachments, if any.
	Attachments []Attachment

	// Metadata holds Assistant message metadata (e.g. provider stop reason,
	// token usage echoed back for observability).
	Metadata map[string]any

	// ToolCallID identifies a ToolCall message's invocation, and correlates a
	// ToolResult message back to it (ToolResult.CallID == ToolCall.ToolCallID).
	ToolCallID string

	// ToolName identifies the tool targeted by a ToolCall or ToolResult
	// message.
	ToolName tools.Ident

	// ArgumentsJSON holds a ToolCall message's arguments as canonical JSON.
	ArgumentsJSON json.RawMessage

	// Content holds a ToolResult message's result payload.
	Content any
}

// NewSystemMessage constructs a System(text) message. Index and CreatedAt
// are zero until the message is appended to a Prompt.
func NewSystemMessage(text string) Message {
	return Message{Kind: KindSystem, Text: text}
}

// NewUserMessage constructs a User(text, attachments?) message.
func NewUserMessage(text string, attachments ...Attachment) Message {
	return Message{Kind: KindUser, Text: text, Attachments: attachments}
}

// NewAssistantMessage constructs an Assistant(text, metadata) message.
func NewAssistantMessage(text string, metadata map[string]any) Message {
	return Message{Kind: KindAssistant, Text: text, Metadata: metadata}
}

// NewToolCallMessage constructs a ToolCall(id, tool_name, arguments_json)
// message.
func NewToolCallMessage(id string, toolName tools.Ident, argumentsJSON json.RawMessage) Message {
	return Message{Kind: KindToolCall, ToolCallID: id, ToolName: toolName, ArgumentsJSON: argumentsJSON}
}

// NewToolResultMessage constructs a ToolResult(call_id, tool_name, content)
// message.
func NewToolResultMessage(callID string, toolName tools.Ident, content any) Message {
	return Message{Kind: KindToolResult, ToolCallID: callID, ToolName: toolName, Content: content}
}

// withIndex returns a copy of m stamped with the given index and the
// current time, preserving immutability of the original value.
func (m Message) withIndex(index int) Message {
	m.Index = index
	m.CreatedAt = time.Now()
	return m
}
