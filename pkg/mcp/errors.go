package mcp

import (
	"errors"
	"fmt"
)

// ErrorKind classifies runtime errors for JSON-RPC code mapping
type ErrorKind int

// Error kinds recognized by the error-handling middleware
const (
	KindInternal ErrorKind = iota
	KindNotFound
	KindDuplicate
	KindValidation
	KindTool
	KindResource
	KindPrompt
	KindAuthorization
	KindSession
	KindProtocol
	KindConfiguration
	KindTimeout
	KindDisabled
	KindTransport
)

// Error is a classified MCP runtime error
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

// Error returns a string representation of the error
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error, if any
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a classified error with a formatted message
func NewError(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError wraps an underlying error with a kind and message
func WrapError(kind ErrorKind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// NotFoundError creates a KindNotFound error
func NotFoundError(format string, args ...interface{}) *Error {
	return NewError(KindNotFound, format, args...)
}

// DuplicateError creates a KindDuplicate error
func DuplicateError(format string, args ...interface{}) *Error {
	return NewError(KindDuplicate, format, args...)
}

// ValidationError creates a KindValidation error
func ValidationError(format string, args ...interface{}) *Error {
	return NewError(KindValidation, format, args...)
}

// ToolError creates a KindTool error
func ToolError(format string, args ...interface{}) *Error {
	return NewError(KindTool, format, args...)
}

// ResourceError creates a KindResource error
func ResourceError(format string, args ...interface{}) *Error {
	return NewError(KindResource, format, args...)
}

// PromptError creates a KindPrompt error
func PromptError(format string, args ...interface{}) *Error {
	return NewError(KindPrompt, format, args...)
}

// AuthorizationError creates a KindAuthorization error
func AuthorizationError(format string, args ...interface{}) *Error {
	return NewError(KindAuthorization, format, args...)
}

// SessionError creates a KindSession error
func SessionError(format string, args ...interface{}) *Error {
	return NewError(KindSession, format, args...)
}

// ProtocolError creates a KindProtocol error
func ProtocolError(format string, args ...interface{}) *Error {
	return NewError(KindProtocol, format, args...)
}

// TimeoutError creates a KindTimeout error
func TimeoutError(format string, args ...interface{}) *Error {
	return NewError(KindTimeout, format, args...)
}

// KindOf extracts the error kind from an error chain. Unclassified errors
// report KindInternal.
func KindOf(err error) ErrorKind {
	var mcpErr *Error
	if errors.As(err, &mcpErr) {
		return mcpErr.Kind
	}
	return KindInternal
}

// IsKind reports whether the error chain contains a classified error of the
// given kind.
func IsKind(err error, kind ErrorKind) bool {
	var mcpErr *Error
	if errors.As(err, &mcpErr) {
		return mcpErr.Kind == kind
	}
	return false
}
