// Package llm abstracts the model backends that power agents. The Anthropic
// backend (direct API or AWS Bedrock) carries tool-calling conversations;
// the Ollama backend serves local text and JSON generation.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/troupelabs/troupe/internal/tools"
	"github.com/troupelabs/troupe/pkg/models"
)

// ErrToolsUnsupported indicates the backend cannot execute tool-calling
// conversations.
var ErrToolsUnsupported = errors.New("backend does not support tool calls")

// FinishReason describes why the model stopped generating.
type FinishReason string

const (
	// FinishEndTurn means the model completed its turn.
	FinishEndTurn FinishReason = "end_turn"
	// FinishToolUse means the model is waiting on tool results.
	FinishToolUse FinishReason = "tool_use"
	// FinishMaxTokens means generation hit the token ceiling.
	FinishMaxTokens FinishReason = "max_tokens"
	// FinishOther covers stop sequences and backend-specific reasons.
	FinishOther FinishReason = "other"
)

// Usage reports token consumption for a single call.
type Usage struct {
	// InputTokens is the prompt-side token count.
	InputTokens int64
	// OutputTokens is the completion-side token count.
	OutputTokens int64
}

// Request is one generation request. Messages carry the conversation so far,
// including earlier tool calls and their results.
type Request struct {
	// Model overrides the provider's configured model when non-empty.
	Model string
	// System is the system prompt.
	System string
	// Messages is the conversation history, oldest first.
	Messages []models.Message
	// Tools lists the tools the model may call this turn.
	Tools []tools.Tool
	// MaxTokens caps the completion length. Zero uses the provider default.
	MaxTokens int64
	// JSONMode asks for strict JSON output on backends with a native format
	// switch; elsewhere the prompt has to carry the instruction.
	JSONMode bool
}

// Response is the parsed model output for one call.
type Response struct {
	// Text is the concatenated text content.
	Text string
	// ToolCalls lists tool invocations the model requested. The caller
	// stamps the acting agent before execution.
	ToolCalls []models.ToolCall
	// FinishReason is why generation stopped.
	FinishReason FinishReason
	// Usage is the token consumption for this call.
	Usage Usage
}

// Provider generates model responses. Implementations track their own token
// usage.
type Provider interface {
	// Name identifies the backend.
	Name() string
	// Tracker returns the provider's cumulative token tracker.
	Tracker() *TokenTracker
	// GenerateResponse performs one model call.
	GenerateResponse(ctx context.Context, req Request) (*Response, error)
}

// Config selects and configures a backend.
type Config struct {
	// Backend is "anthropic" (default) or "ollama".
	Backend string
	// Model is the default model for the backend.
	Model string
	// APIKey is the Anthropic API key. Empty falls back to the
	// ANTHROPIC_API_KEY environment variable.
	APIKey string
	// UseAWSBedrock routes Anthropic calls through AWS Bedrock.
	UseAWSBedrock bool
	// AWSRegion is the Bedrock region, e.g. "us-west-2".
	AWSRegion string
	// AWSProfile is the optional AWS profile name.
	AWSProfile string
	// OllamaHost overrides the Ollama server address.
	OllamaHost string
}

// NewProvider builds the configured backend.
func NewProvider(cfg Config) (Provider, error) {
	backend := strings.ToLower(strings.TrimSpace(cfg.Backend))
	if backend == "" {
		backend = "anthropic"
	}
	switch backend {
	case "anthropic":
		return NewAnthropicProvider(cfg)
	case "ollama":
		return NewOllamaProvider(cfg)
	default:
		return nil, fmt.Errorf("unsupported llm backend: %s", cfg.Backend)
	}
}
