package models

import "time"

// ToolCall is one tool invocation requested by an agent turn. Created per
// invocation and never mutated afterwards.
type ToolCall struct {
	// ID is the unique identifier for this invocation.
	ID string `json:"id"`
	// Tool is the registered tool name.
	Tool string `json:"tool"`
	// Agent is the name of the agent requesting the call.
	Agent string `json:"agent,omitempty"`
	// Args is the argument map passed to the tool.
	Args map[string]interface{} `json:"args,omitempty"`
}

// ToolResult is the recorded outcome of one tool invocation.
type ToolResult struct {
	// CallID ties the result back to its ToolCall.
	CallID string `json:"call_id"`
	// Tool is the registered tool name.
	Tool string `json:"tool"`
	// OK is true when the invocation succeeded.
	OK bool `json:"ok"`
	// Content is the tool output on success.
	Content string `json:"content,omitempty"`
	// Error is the failure reason when OK is false.
	Error string `json:"error,omitempty"`
	// Duration is how long the invocation ran.
	Duration time.Duration `json:"duration,omitempty"`
}
