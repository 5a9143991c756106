package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Tool is one orchestrator operation exposed over MCP.
type Tool interface {
	// Name returns the tool name (e.g. "manage_container").
	Name() string

	// Description returns a human-readable description of the tool.
	Description() string

	// InputSchema returns the JSON Schema for the tool's arguments.
	InputSchema() json.RawMessage

	// Execute runs the tool. Domain failures are reported inside the
	// result with IsError set; a non-nil error is reserved for broken
	// invocations that could not produce a result at all.
	Execute(ctx context.Context, args json.RawMessage) (*ToolsCallResult, error)
}

// Registry holds the registered tools in registration order.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool. Registration happens once at startup, so a
// duplicate name is a programming error and panics.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := t.Name()
	if _, exists := r.tools[name]; exists {
		panic(fmt.Sprintf("tool %q already registered", name))
	}
	r.tools[name] = t
	r.order = append(r.order, name)
}

// Get returns a tool by name, or nil when unknown.
func (r *Registry) Get(name string) Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// List returns the tool definitions in registration order.
func (r *Registry) List() []ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		defs = append(defs, ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			InputSchema: t.InputSchema(),
		})
	}
	return defs
}

// Len reports the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}
