package router

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/troupelabs/troupe/internal/llm"
	"github.com/troupelabs/troupe/pkg/models"
)

// ModelRouter asks the model which agent fits the message. It is the
// fallback behind the keyword router for messages no rule covers.
type ModelRouter struct {
	provider llm.Provider
	model    string
}

// NewModelRouter creates a model-backed router. The model name may be empty
// to use the provider's default.
func NewModelRouter(provider llm.Provider, model string) *ModelRouter {
	return &ModelRouter{provider: provider, model: model}
}

var _ Router = (*ModelRouter)(nil)

// Route asks the model to pick an agent and validates the answer against
// the agent list. An answer naming an unknown agent maps to ErrNoRoute so
// callers can fall back to a default.
func (r *ModelRouter) Route(ctx context.Context, message string, agents []AgentInfo) (string, error) {
	if len(agents) == 0 {
		return "", fmt.Errorf("%w: no agents configured", ErrNoRoute)
	}

	resp, err := r.provider.GenerateResponse(ctx, llm.Request{
		Model:    r.model,
		System:   "You are a dispatcher. Pick the single best agent for the user's message.",
		JSONMode: true,
		Messages: []models.Message{
			{Role: models.RoleUser, Content: buildRoutingPrompt(message, agents)},
		},
	})
	if err != nil {
		return "", fmt.Errorf("routing call failed: %w", err)
	}

	raw, err := llm.ExtractJSONObject(resp.Text)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoRoute, err)
	}
	var choice struct {
		Agent string `json:"agent"`
	}
	if err := json.Unmarshal([]byte(raw), &choice); err != nil {
		return "", fmt.Errorf("%w: malformed routing answer: %v", ErrNoRoute, err)
	}

	name := strings.TrimSpace(choice.Agent)
	for _, agent := range agents {
		if strings.EqualFold(agent.Name, name) {
			return agent.Name, nil
		}
	}
	return "", fmt.Errorf("%w: model chose unknown agent %q", ErrNoRoute, name)
}

func buildRoutingPrompt(message string, agents []AgentInfo) string {
	var b strings.Builder
	b.WriteString("Agents:\n")
	for _, agent := range agents {
		b.WriteString("- ")
		b.WriteString(agent.Name)
		if agent.Description != "" {
			b.WriteString(": ")
			b.WriteString(agent.Description)
		}
		b.WriteString("\n")
	}
	b.WriteString("\nUser message:\n")
	b.WriteString(message)
	b.WriteString("\n\nRespond with ONLY a JSON object: {\"agent\": \"<name>\"}")
	return b.String()
}
