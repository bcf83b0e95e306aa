package mcp

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var toolNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Tool represents a tool exposed by the dispatcher.
// It is a value object - immutable after creation.
type Tool struct {
	name        string
	description string
	inputSchema json.RawMessage
}

// NewTool creates a new Tool with validation. Names are lower snake case.
func NewTool(name, description string, inputSchema json.RawMessage) (*Tool, error) {
	name = strings.TrimSpace(name)

	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidToolName)
	}
	if !toolNamePattern.MatchString(name) {
		return nil, fmt.Errorf("%w: %q must be lower snake case", ErrInvalidToolName, name)
	}
	if len(inputSchema) == 0 {
		inputSchema = json.RawMessage(`{"type":"object"}`)
	}

	return &Tool{
		name:        name,
		description: strings.TrimSpace(description),
		inputSchema: inputSchema,
	}, nil
}

// Name returns the tool's name.
func (t *Tool) Name() string { return t.name }

// Description returns the tool's description.
func (t *Tool) Description() string { return t.description }

// InputSchema returns the JSON Schema for input validation.
func (t *Tool) InputSchema() json.RawMessage { return t.inputSchema }

// Definition returns the wire form of the tool.
func (t *Tool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        t.name,
		Description: t.description,
		InputSchema: t.inputSchema,
	}
}

// ToolDefinition is the JSON representation of a tool.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// ToTool converts a ToolDefinition to a Tool domain object.
func (d *ToolDefinition) ToTool() (*Tool, error) {
	return NewTool(d.Name, d.Description, d.InputSchema)
}
