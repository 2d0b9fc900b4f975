// Package errors provides the unified error type used across the journal
// service. Every layer returns *UnifiedError (or wraps one) so the HTTP layer
// can map failures to a status code without inspecting messages.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"strings"
)

// ErrorType defines the category of error for proper handling and response.
type ErrorType string

const (
	// ErrorTypeValidation covers malformed numeric, date or text input.
	ErrorTypeValidation ErrorType = "VALIDATION"
	// ErrorTypeRepository covers failed remote store calls.
	ErrorTypeRepository ErrorType = "REPOSITORY"
	// ErrorTypeAuthRequired means no owner could be resolved for an action that needs one.
	ErrorTypeAuthRequired ErrorType = "AUTH_REQUIRED"

	ErrorTypeNotFound ErrorType = "NOT_FOUND"
	ErrorTypeConflict ErrorType = "CONFLICT"
	ErrorTypeInternal ErrorType = "INTERNAL"
)

// FieldError describes a single invalid input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// UnifiedError is the single error type shared by all layers.
type UnifiedError struct {
	Type    ErrorType `json:"type"`
	Code    string    `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`

	Operation string       `json:"operation,omitempty"`
	Resource  string       `json:"resource,omitempty"`
	Fields    []FieldError `json:"fields,omitempty"`
	Retryable bool         `json:"retryable"`
	Cause     error        `json:"-"`

	File string `json:"-"`
	Line int    `json:"-"`
}

// Error implements the error interface.
func (e *UnifiedError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s:%s] %s: %s", e.Type, e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Type, e.Code, e.Message)
}

// Unwrap allows errors.Is and errors.As to reach the underlying cause.
func (e *UnifiedError) Unwrap() error {
	return e.Cause
}

// String provides a detailed representation for logging.
func (e *UnifiedError) String() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Error: %s\n", e.Error()))
	if e.Operation != "" {
		b.WriteString(fmt.Sprintf("Operation: %s\n", e.Operation))
	}
	if e.Resource != "" {
		b.WriteString(fmt.Sprintf("Resource: %s\n", e.Resource))
	}
	for _, f := range e.Fields {
		b.WriteString(fmt.Sprintf("Field %s: %s\n", f.Field, f.Message))
	}
	if e.Cause != nil {
		b.WriteString(fmt.Sprintf("Cause: %v\n", e.Cause))
	}
	if e.File != "" && e.Line > 0 {
		b.WriteString(fmt.Sprintf("Location: %s:%d\n", e.File, e.Line))
	}
	return b.String()
}

// ErrorBuilder provides a fluent interface for constructing UnifiedError instances.
type ErrorBuilder struct {
	error *UnifiedError
}

// NewError creates a new error builder with the specified type and message.
func NewError(errType ErrorType, code, message string) *ErrorBuilder {
	_, file, line, _ := runtime.Caller(1)
	return &ErrorBuilder{
		error: &UnifiedError{
			Type:    errType,
			Code:    code,
			Message: message,
			File:    file,
			Line:    line,
		},
	}
}

// WithDetails adds additional details to the error.
func (b *ErrorBuilder) WithDetails(details string) *ErrorBuilder {
	b.error.Details = details
	return b
}

// WithOperation specifies the operation that failed.
func (b *ErrorBuilder) WithOperation(operation string) *ErrorBuilder {
	b.error.Operation = operation
	return b
}

// WithResource specifies the resource being operated on.
func (b *ErrorBuilder) WithResource(resource string) *ErrorBuilder {
	b.error.Resource = resource
	return b
}

// WithField records an invalid input field.
func (b *ErrorBuilder) WithField(field, message string) *ErrorBuilder {
	b.error.Fields = append(b.error.Fields, FieldError{Field: field, Message: message})
	return b
}

// WithRetryable marks the error as retryable.
func (b *ErrorBuilder) WithRetryable(retryable bool) *ErrorBuilder {
	b.error.Retryable = retryable
	return b
}

// WithCause sets the underlying cause.
func (b *ErrorBuilder) WithCause(cause error) *ErrorBuilder {
	b.error.Cause = cause
	return b
}

// Build returns the constructed UnifiedError.
func (b *ErrorBuilder) Build() *UnifiedError {
	return b.error
}

// Validation creates a validation error for a single field.
func Validation(field, message string) *UnifiedError {
	return NewError(ErrorTypeValidation, "INVALID_INPUT", message).
		WithField(field, message).
		Build()
}

// ValidationFields creates a validation error carrying several field errors.
func ValidationFields(fields []FieldError) *UnifiedError {
	b := NewError(ErrorTypeValidation, "INVALID_INPUT", "invalid input")
	for _, f := range fields {
		b.WithField(f.Field, f.Message)
	}
	return b.Build()
}

// Repository wraps a failed store call. The cause's message is kept verbatim
// because it is shown to the user.
func Repository(operation string, cause error) *UnifiedError {
	msg := "repository call failed"
	if cause != nil {
		msg = cause.Error()
	}
	return NewError(ErrorTypeRepository, "STORE_FAILURE", msg).
		WithOperation(operation).
		WithRetryable(true).
		WithCause(cause).
		Build()
}

// AuthRequired signals that an owner session is needed.
func AuthRequired(operation string) *UnifiedError {
	return NewError(ErrorTypeAuthRequired, "AUTH_REQUIRED", "sign-in required").
		WithOperation(operation).
		Build()
}

// NotFound creates a not-found error for a resource.
func NotFound(resource, id string) *UnifiedError {
	return NewError(ErrorTypeNotFound, "NOT_FOUND", fmt.Sprintf("%s not found", resource)).
		WithResource(resource).
		WithDetails(id).
		Build()
}

// Conflict creates a uniqueness violation error.
func Conflict(resource, message string) *UnifiedError {
	return NewError(ErrorTypeConflict, "CONFLICT", message).
		WithResource(resource).
		Build()
}

// Internal wraps an unexpected failure.
func Internal(message string, cause error) *UnifiedError {
	return NewError(ErrorTypeInternal, "INTERNAL", message).
		WithCause(cause).
		Build()
}

// Wrap attaches a message to an error, preserving its classification when it
// is already a UnifiedError.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	var ue *UnifiedError
	if errors.As(err, &ue) {
		wrapped := *ue
		wrapped.Details = message
		wrapped.Cause = err
		return &wrapped
	}
	return fmt.Errorf("%s: %w", message, err)
}

// As extracts a UnifiedError from the chain.
func As(err error) (*UnifiedError, bool) {
	var ue *UnifiedError
	if errors.As(err, &ue) {
		return ue, true
	}
	return nil, false
}

// IsType reports whether err is a UnifiedError of the given type.
func IsType(err error, errType ErrorType) bool {
	ue, ok := As(err)
	return ok && ue.Type == errType
}

func IsValidation(err error) bool   { return IsType(err, ErrorTypeValidation) }
func IsRepository(err error) bool   { return IsType(err, ErrorTypeRepository) }
func IsAuthRequired(err error) bool { return IsType(err, ErrorTypeAuthRequired) }
func IsNotFound(err error) bool     { return IsType(err, ErrorTypeNotFound) }
func IsConflict(err error) bool     { return IsType(err, ErrorTypeConflict) }

// HTTPStatus maps an error to a response status.
func HTTPStatus(err error) int {
	ue, ok := As(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch ue.Type {
	case ErrorTypeValidation:
		return http.StatusBadRequest
	case ErrorTypeAuthRequired:
		return http.StatusUnauthorized
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeConflict:
		return http.StatusConflict
	case ErrorTypeRepository:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Is and New mirror the standard library helpers.
var (
	Is  = errors.Is
	New = errors.New
)
