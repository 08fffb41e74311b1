package models

import "time"

// Role identifies the author of a message.
type Role string

const (
	// RoleUser marks messages written by the human operator.
	RoleUser Role = "user"
	// RoleAssistant marks messages produced by the engine or an agent.
	RoleAssistant Role = "assistant"
)

// Valid returns true if the role is a known value.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant:
		return true
	default:
		return false
	}
}

// PartType identifies the kind of content in a message part.
type PartType string

const (
	// PartText is plain response or prompt text.
	PartText PartType = "text"
	// PartToolCall records a tool invocation requested by an agent.
	PartToolCall PartType = "tool_call"
	// PartToolResult records the outcome of a tool invocation.
	PartToolResult PartType = "tool_result"
	// PartReasoning holds model reasoning emitted alongside the answer.
	PartReasoning PartType = "reasoning"
	// PartError holds an error surfaced to the conversation.
	PartError PartType = "error"
	// PartAttachment references external content by URI.
	PartAttachment PartType = "attachment"
)

// Valid returns true if the part type is a known value.
func (p PartType) Valid() bool {
	switch p {
	case PartText, PartToolCall, PartToolResult, PartReasoning, PartError, PartAttachment:
		return true
	default:
		return false
	}
}

// MessagePart is one ordered piece of a message. Exactly one payload field is
// set, selected by Type.
type MessagePart struct {
	// Type identifies which payload field is populated.
	Type PartType `json:"type"`
	// Text holds content for text, reasoning, and error parts.
	Text string `json:"text,omitempty"`
	// ToolCall is set for tool_call parts.
	ToolCall *ToolCall `json:"tool_call,omitempty"`
	// ToolResult is set for tool_result parts.
	ToolResult *ToolResult `json:"tool_result,omitempty"`
	// URI references external content for attachment parts.
	URI string `json:"uri,omitempty"`
}

// Message is one conversation unit. Messages are append-only: once stored
// they are never edited.
type Message struct {
	// ID is the unique identifier for this message.
	ID string `json:"id"`
	// Role identifies the author.
	Role Role `json:"role"`
	// Content is the flattened text of the message.
	Content string `json:"content"`
	// Parts holds the ordered structured content, when present.
	Parts []MessagePart `json:"parts,omitempty"`
	// CreatedAt is when the message was produced.
	CreatedAt time.Time `json:"created_at"`
}
