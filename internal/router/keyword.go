package router

import (
	"context"
	"fmt"
	"strings"
)

// KeywordRouter matches message text against each agent's keyword list.
// The longest matching keyword wins, so more specific rules beat generic
// ones; ties go to the agent listed first.
type KeywordRouter struct{}

// NewKeywordRouter creates a keyword router.
func NewKeywordRouter() *KeywordRouter {
	return &KeywordRouter{}
}

var _ Router = (*KeywordRouter)(nil)

// Route scans the message for agent keywords.
func (r *KeywordRouter) Route(ctx context.Context, message string, agents []AgentInfo) (string, error) {
	lowered := strings.ToLower(message)

	best := ""
	bestLen := 0
	for _, agent := range agents {
		for _, keyword := range agent.Keywords {
			kw := strings.ToLower(strings.TrimSpace(keyword))
			if kw == "" || !strings.Contains(lowered, kw) {
				continue
			}
			if len(kw) > bestLen {
				best = agent.Name
				bestLen = len(kw)
			}
		}
	}

	if best == "" {
		return "", fmt.Errorf("%w: no keyword hit", ErrNoRoute)
	}
	return best, nil
}
