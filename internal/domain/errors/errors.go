// Package errors provides domain-specific errors for the tokenpad application.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common domain error conditions.
var (
	ErrEmptyText            = errors.New("text is required")
	ErrUnsupportedLanguage  = errors.New("unsupported language")
	ErrTokenizerUnavailable = errors.New("tokenizer unavailable")
	ErrTokenizerEncode      = errors.New("tokenizer failed to encode")
	ErrInexactTokenizer     = errors.New("exact tokenizer required")
	ErrNoHeadroom           = errors.New("no room left in context window")
	ErrTranslationFailed    = errors.New("translation backend failed")
	ErrBackendNotConfigured = errors.New("translation backend not configured")
	ErrRatioNotFound        = errors.New("no learned ratio for tokenizer")
)

// ErrorCode categorizes errors for handling and reporting.
type ErrorCode string

const (
	CodeValidation    ErrorCode = "VALIDATION"
	CodeNotFound      ErrorCode = "NOT_FOUND"
	CodeTokenizer     ErrorCode = "TOKENIZER"
	CodeTranslation   ErrorCode = "TRANSLATION"
	CodeConfiguration ErrorCode = "CONFIG"
)

// TokenpadError wraps errors with additional context for debugging and handling.
type TokenpadError struct {
	Code    ErrorCode
	Message string
	Cause   error
	Context map[string]interface{}
}

// Error returns a formatted error string including the code, message, and cause if present.
func (e *TokenpadError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error for use with errors.Is and errors.As.
func (e *TokenpadError) Unwrap() error {
	return e.Cause
}

// NewError creates a new TokenpadError with the given code, message, and optional cause.
func NewError(code ErrorCode, message string, cause error) *TokenpadError {
	return &TokenpadError{
		Code:    code,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// WithContext adds a key-value pair to the error's context and returns the error.
// This allows for method chaining when adding multiple context values.
func WithContext(err *TokenpadError, key string, value interface{}) *TokenpadError {
	if err.Context == nil {
		err.Context = make(map[string]interface{})
	}
	err.Context[key] = value
	return err
}

// CodeOf returns the code of the first TokenpadError in err's chain, or ""
// when there is none.
func CodeOf(err error) ErrorCode {
	var te *TokenpadError
	if errors.As(err, &te) {
		return te.Code
	}
	return ""
}

// Is reports whether err matches target using errors.Is semantics.
// This is a convenience wrapper around the standard library's errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target and sets target to that error value.
// This is a convenience wrapper around the standard library's errors.As.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// New creates a new validation TokenpadError scoped to a domain.
func New(domain, message string) *TokenpadError {
	return &TokenpadError{
		Code:    CodeValidation,
		Message: fmt.Sprintf("[%s] %s", domain, message),
		Context: make(map[string]interface{}),
	}
}
