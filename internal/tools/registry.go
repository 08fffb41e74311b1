// Package tools provides the permissioned, rate- and time-bounded execution
// layer around side-effecting agent actions: a registry of callable tools,
// per-agent permissions, a process-wide concurrency cap, and a bounded audit
// trail.
package tools

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnknownTool indicates a call referenced a tool that is not registered.
var ErrUnknownTool = errors.New("unknown tool")

// ToolFunc is the callable contract every tool implementation satisfies.
// Implementations may block; the gateway bounds them with a timeout.
type ToolFunc func(ctx context.Context, args map[string]interface{}) (string, error)

// Property describes one parameter in a tool's schema.
type Property struct {
	// Type is the JSON-schema type name (string, integer, boolean, ...).
	Type string `json:"type"`
	// Description explains the parameter to the model.
	Description string `json:"description,omitempty"`
}

// Schema is a JSON-schema-like description of a tool's parameters, exported
// for prompting.
type Schema struct {
	// Properties maps parameter names to their descriptions.
	Properties map[string]Property `json:"properties,omitempty"`
	// Required lists parameter names that must be present.
	Required []string `json:"required,omitempty"`
}

// Tool is one registered capability an agent may invoke.
type Tool struct {
	// Name is the unique registry key.
	Name string
	// Description explains the tool to the model.
	Description string
	// Parameters describes the accepted arguments.
	Parameters Schema
	// Fn is the implementation.
	Fn ToolFunc
}

// Registry holds the available tools. It is constructed explicitly and
// passed into the gateway; there is no process-wide registry.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool. Registering an empty name, a nil implementation, or
// a duplicate name is an error.
func (r *Registry) Register(t Tool) error {
	if t.Name == "" {
		return fmt.Errorf("register tool: empty name")
	}
	if t.Fn == nil {
		return fmt.Errorf("register tool %s: nil implementation", t.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name]; exists {
		return fmt.Errorf("register tool %s: already registered", t.Name)
	}
	r.tools[t.Name] = t
	return nil
}

// Get returns the tool for a name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List returns all registered tools sorted by name.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns all registered tool names sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.tools))
	for name := range r.tools {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}
