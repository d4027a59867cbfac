package errors

import (
	"context"
	"errors"
	"fmt"
)

// Domain error types for the orchestration core

var (
	// ErrNotFound indicates a resource was not found
	ErrNotFound = errors.New("resource not found")

	// ErrAlreadyExists indicates a resource already exists
	ErrAlreadyExists = errors.New("resource already exists")

	// ErrInvalidInput indicates invalid input parameters
	ErrInvalidInput = errors.New("invalid input")

	// ErrInternal indicates an internal error
	ErrInternal = errors.New("internal error")

	// ErrTimeout indicates an operation timeout
	ErrTimeout = errors.New("operation timeout")

	// ErrUnavailable indicates a service is unavailable
	ErrUnavailable = errors.New("service unavailable")
)

// Run pipeline errors

var (
	// ErrValidation indicates a run request failed validation
	ErrValidation = errors.New("request validation failed")

	// ErrUpstream indicates a data provider returned a non-2xx status or unparseable payload
	ErrUpstream = errors.New("upstream data provider error")

	// ErrTool indicates a tool execution failure
	ErrTool = errors.New("tool execution failed")

	// ErrLLMCall indicates an LLM provider call failed or timed out
	ErrLLMCall = errors.New("llm call failed")

	// ErrGraph indicates a reducer inconsistency or unexpected graph state
	ErrGraph = errors.New("graph execution error")

	// ErrPersistence indicates the final decision could not be written
	ErrPersistence = errors.New("persistence failure")

	// ErrRunCancelled indicates the run was cancelled before completion
	ErrRunCancelled = errors.New("run cancelled")

	// ErrRateLimitExceeded indicates the AI provider rate limit was hit
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
)

// Kind classifies an error into the structured kind surfaced on error
// events: one of validation, upstream, timeout, internal, persistence.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case Is(err, ErrValidation), Is(err, ErrInvalidInput):
		return "validation"
	case Is(err, ErrUpstream):
		return "upstream"
	case Is(err, ErrTimeout), Is(err, ErrRunCancelled), Is(err, context.DeadlineExceeded), Is(err, context.Canceled):
		return "timeout"
	case Is(err, ErrPersistence):
		return "persistence"
	default:
		return "internal"
	}
}

// ValidationError carries the offending field so callers can return
// a structured {error, field} response.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: field '%s': %s", e.Field, e.Message)
}

// Unwrap makes ValidationError match ErrValidation via errors.Is.
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// UpstreamError carries the HTTP status and vendor of a failed fetch.
type UpstreamError struct {
	Vendor string
	Status int
	Err    error
}

// Error implements the error interface
func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("upstream %s returned %d: %v", e.Vendor, e.Status, e.Err)
	}
	return fmt.Sprintf("upstream %s returned %d", e.Vendor, e.Status)
}

// Unwrap makes UpstreamError match ErrUpstream via errors.Is.
func (e *UpstreamError) Unwrap() error {
	return ErrUpstream
}

// Helper functions

// Is checks if err is or wraps target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target type
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Wrap wraps an error with context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

func New(message string) error {
	return errors.New(message)
}

func Newf(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}
