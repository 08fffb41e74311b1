package tools

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrToolDenied indicates the policy does not permit the agent to use the
// tool.
var ErrToolDenied = errors.New("tool denied by policy")

// Policy decides which agents may invoke which tools. Resolution order:
// the deny list is checked first and cannot be overridden; then the agent's
// allow list (its named override if present, otherwise the default list).
// A tool absent from the applicable allow list fails closed.
type Policy struct {
	mu sync.RWMutex
	// deny lists tools no agent may use.
	deny map[string]bool
	// defaults lists tools every agent may use unless overridden.
	defaults map[string]bool
	// overrides replaces the default list for named agents.
	overrides map[string]map[string]bool
}

// NewPolicy creates a policy that allows the given default tools to every
// agent. An empty default list denies everything until overrides are added.
func NewPolicy(defaultTools []string) *Policy {
	return &Policy{
		deny:      make(map[string]bool),
		defaults:  toSet(defaultTools),
		overrides: make(map[string]map[string]bool),
	}
}

func toSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		if n != "" {
			set[n] = true
		}
	}
	return set
}

// Deny adds tools to the global deny list.
func (p *Policy) Deny(tools ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, t := range tools {
		if t != "" {
			p.deny[t] = true
		}
	}
}

// SetAgentTools replaces the named agent's allow list. The agent no longer
// inherits the defaults.
func (p *Policy) SetAgentTools(agent string, tools []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.overrides[agent] = toSet(tools)
}

// Check returns nil when the agent may invoke the tool, or an error wrapping
// ErrToolDenied otherwise.
func (p *Policy) Check(agent, tool string) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.deny[tool] {
		return fmt.Errorf("%w: %s is deny-listed", ErrToolDenied, tool)
	}

	allowed := p.defaults
	if override, ok := p.overrides[agent]; ok {
		allowed = override
	}
	if !allowed[tool] {
		return fmt.Errorf("%w: %s is not allowed for agent %s", ErrToolDenied, tool, agent)
	}
	return nil
}

// AllowedFor returns the tools the agent may currently use, after applying
// the deny list, intersected with the registry.
func (p *Policy) AllowedFor(agent string, reg *Registry) []string {
	p.mu.RLock()
	allowed := p.defaults
	if override, ok := p.overrides[agent]; ok {
		allowed = override
	}
	names := make([]string, 0, len(allowed))
	for name := range allowed {
		if !p.deny[name] {
			names = append(names, name)
		}
	}
	p.mu.RUnlock()

	out := names[:0]
	for _, name := range names {
		if _, ok := reg.Get(name); ok {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
