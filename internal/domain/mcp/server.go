package mcp

import (
	"fmt"
	"strings"
)

// Identity reported by initialize and ping.
const (
	ServerName    = "translation-service"
	ServerVersion = "1.0.0"
)

// ServerState represents the dispatcher's position in its read/respond cycle.
type ServerState string

const (
	// ServerStateAwaitingLine indicates the dispatcher is blocked on input.
	ServerStateAwaitingLine ServerState = "awaiting_line"

	// ServerStateParsing indicates a line is being decoded.
	ServerStateParsing ServerState = "parsing"

	// ServerStateDispatching indicates a handler is running.
	ServerStateDispatching ServerState = "dispatching"

	// ServerStateResponding indicates a response is being written.
	ServerStateResponding ServerState = "responding"

	// ServerStateShutdown indicates input ended or the context was cancelled.
	ServerStateShutdown ServerState = "shutdown"
)

// String returns the string representation of the state.
func (s ServerState) String() string {
	return string(s)
}

// IsTerminal returns true if the dispatcher has stopped.
func (s ServerState) IsTerminal() bool {
	return s == ServerStateShutdown
}

// ServerConfig describes a server process to launch and talk to over stdio.
type ServerConfig struct {
	Name    string            // Server identifier
	Command string            // Command to execute
	Args    []string          // Command arguments
	Env     map[string]string // Environment variables
	WorkDir string            // Working directory (optional)
}

// Validate checks if the ServerConfig is valid.
func (c *ServerConfig) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidConfig)
	}
	if strings.TrimSpace(c.Command) == "" {
		return fmt.Errorf("%w: command is required", ErrInvalidConfig)
	}
	return nil
}

// ProtocolInfo contains MCP protocol negotiation information.
type ProtocolInfo struct {
	ProtocolVersion string
	ServerName      string
	ServerVersion   string
	Capabilities    ServerCapabilities
}

// ServerCapabilities describes what the server supports.
type ServerCapabilities struct {
	Tools *ToolsCapability `json:"tools,omitempty"`
}

// ToolsCapability describes tool-related capabilities.
type ToolsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}
