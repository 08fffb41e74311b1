// Package router selects which agent should handle an incoming message.
// The keyword router consults a static rule table; the model router asks
// the LLM; a chain tries them in order.
package router

import (
	"context"
	"errors"
)

// ErrNoRoute indicates no agent matched the message.
var ErrNoRoute = errors.New("no agent matched")

// AgentInfo describes one routable agent.
type AgentInfo struct {
	// Name is the agent identifier tasks are assigned to.
	Name string
	// Description summarizes the agent's responsibilities for the model
	// router.
	Description string
	// Keywords trigger the keyword router when they appear in a message.
	Keywords []string
}

// Router picks the agent for a message. Implementations return ErrNoRoute
// when they cannot decide, letting a chain fall through to the next router.
type Router interface {
	Route(ctx context.Context, message string, agents []AgentInfo) (string, error)
}

// Chain tries routers in order, falling through on ErrNoRoute. Any other
// error aborts the chain.
type Chain struct {
	routers []Router
}

// NewChain builds a chain from the given routers.
func NewChain(routers ...Router) *Chain {
	return &Chain{routers: routers}
}

var _ Router = (*Chain)(nil)

// Route asks each router in turn.
func (c *Chain) Route(ctx context.Context, message string, agents []AgentInfo) (string, error) {
	for _, r := range c.routers {
		agent, err := r.Route(ctx, message, agents)
		if err == nil {
			return agent, nil
		}
		if !errors.Is(err, ErrNoRoute) {
			return "", err
		}
	}
	return "", ErrNoRoute
}
