package mcp

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrors_AreDistinct(t *testing.T) {
	allErrors := []error{
		ErrServerNotRunning,
		ErrServerStartFailed,
		ErrInvalidConfig,
		ErrToolNotFound,
		ErrInvalidToolName,
		ErrDuplicateTool,
		ErrInvalidArguments,
		ErrToolExecutionFailed,
		ErrInitializeFailed,
		ErrInvalidResponse,
		ErrProtocolError,
	}

	for i, err1 := range allErrors {
		for j, err2 := range allErrors {
			if i != j && errors.Is(err1, err2) {
				t.Errorf("errors should be distinct: %v and %v", err1, err2)
			}
		}
	}
}

func TestIs_Wrapped(t *testing.T) {
	wrapped := fmt.Errorf("%w: text is required", ErrInvalidArguments)
	if !Is(wrapped, ErrInvalidArguments) {
		t.Error("Is should match wrapped sentinel")
	}
}

func TestRPCErrorConstructors(t *testing.T) {
	tests := []struct {
		name     string
		err      *RPCError
		wantCode int
		wantMsg  string
	}{
		{"method not found", NewMethodNotFound("foo/bar"), ErrorCodeMethodNotFound, "Method not found: foo/bar"},
		{"tool not found", NewToolNotFound("nope"), ErrorCodeMethodNotFound, "Tool not found: nope"},
		{"invalid params", NewInvalidParams("bad"), ErrorCodeInvalidParams, "bad"},
		{"internal", NewInternalError("boom"), ErrorCodeInternalError, "boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.wantCode {
				t.Errorf("Code = %d, want %d", tt.err.Code, tt.wantCode)
			}
			if tt.err.Error() != tt.wantMsg {
				t.Errorf("Error() = %q, want %q", tt.err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestRPCError_WithSuffix(t *testing.T) {
	base := NewInvalidParams("text is required")
	got := base.WithSuffix("\n\n[END]")

	if got.Message != "text is required\n\n[END]" {
		t.Errorf("Message = %q", got.Message)
	}
	if base.Message != "text is required" {
		t.Error("WithSuffix should not modify the receiver")
	}
}
