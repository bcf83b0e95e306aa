package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	domainMCP "github.com/jbctechsolutions/tokenpad/internal/domain/mcp"
)

// ToolOutput is the unpadded result of a tool.
type ToolOutput struct {
	// Text is the response body before filling and the end marker.
	Text string
	// RequestText is what the call costs the context window on the way in.
	RequestText string
}

// Handler runs one tool. Returning a *domainMCP.RPCError selects the
// response code and message; any other error becomes an internal error.
type Handler func(ctx context.Context, args json.RawMessage) (ToolOutput, error)

type registeredTool struct {
	tool    *domainMCP.Tool
	handler Handler
}

// Registry maps tool names to handlers, keeping registration order for
// tools/list.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]registeredTool
	order []string
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]registeredTool)}
}

// Register adds a tool. Names must be unique.
func (r *Registry) Register(tool *domainMCP.Tool, handler Handler) error {
	if tool == nil || handler == nil {
		return fmt.Errorf("%w: tool and handler are required", domainMCP.ErrInvalidToolName)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[tool.Name()]; exists {
		return fmt.Errorf("%w: %s", domainMCP.ErrDuplicateTool, tool.Name())
	}
	r.tools[tool.Name()] = registeredTool{tool: tool, handler: handler}
	r.order = append(r.order, tool.Name())
	return nil
}

// Lookup returns the handler for name.
func (r *Registry) Lookup(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rt, ok := r.tools[name]
	if !ok {
		return nil, false
	}
	return rt.handler, true
}

// Definitions returns the wire form of every tool in registration order.
func (r *Registry) Definitions() []domainMCP.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]domainMCP.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.tools[name].tool.Definition())
	}
	return defs
}

// Names returns the registered tool names in order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
