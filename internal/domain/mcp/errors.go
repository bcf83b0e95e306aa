// Package mcp provides domain types for the Model Context Protocol dispatcher.
package mcp

import (
	"errors"
	"fmt"
)

// Lifecycle errors.
var (
	// ErrServerNotRunning indicates the peer is not in a running state.
	ErrServerNotRunning = errors.New("mcp server not running")

	// ErrServerStartFailed indicates a server process failed to start.
	ErrServerStartFailed = errors.New("failed to start mcp server")

	// ErrInvalidConfig indicates a server configuration is invalid.
	ErrInvalidConfig = errors.New("invalid mcp config")
)

// Tool errors.
var (
	// ErrToolNotFound indicates the requested tool does not exist.
	ErrToolNotFound = errors.New("tool not found")

	// ErrInvalidToolName indicates the tool name is invalid.
	ErrInvalidToolName = errors.New("invalid tool name")

	// ErrDuplicateTool indicates a tool name was registered twice.
	ErrDuplicateTool = errors.New("duplicate tool")

	// ErrInvalidArguments indicates tool arguments failed validation.
	ErrInvalidArguments = errors.New("invalid arguments")

	// ErrToolExecutionFailed indicates the tool execution failed.
	ErrToolExecutionFailed = errors.New("tool execution failed")
)

// Protocol errors.
var (
	// ErrInitializeFailed indicates the initialization handshake failed.
	ErrInitializeFailed = errors.New("mcp initialization failed")

	// ErrInvalidResponse indicates the peer returned an invalid response.
	ErrInvalidResponse = errors.New("invalid mcp response")

	// ErrProtocolError indicates a general protocol error.
	ErrProtocolError = errors.New("mcp protocol error")
)

// Is reports whether any error in err's chain matches target.
// This is a convenience wrapper around errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// NewMethodNotFound reports an unknown method.
func NewMethodNotFound(method string) *RPCError {
	return &RPCError{Code: ErrorCodeMethodNotFound, Message: fmt.Sprintf("Method not found: %s", method)}
}

// NewToolNotFound reports an unknown tool.
func NewToolNotFound(name string) *RPCError {
	return &RPCError{Code: ErrorCodeMethodNotFound, Message: fmt.Sprintf("Tool not found: %s", name)}
}

// NewInvalidParams reports unusable arguments.
func NewInvalidParams(message string) *RPCError {
	return &RPCError{Code: ErrorCodeInvalidParams, Message: message}
}

// NewInternalError reports a handler failure.
func NewInternalError(message string) *RPCError {
	return &RPCError{Code: ErrorCodeInternalError, Message: message}
}

// WithSuffix returns a copy of e whose message ends with suffix.
func (e *RPCError) WithSuffix(suffix string) *RPCError {
	cp := *e
	cp.Message += suffix
	return &cp
}
