package errors

import (
	"errors"
	"fmt"
)

// ErrorType classifies an AppError into one of the kinds the engine
// distinguishes for retry/propagation policy.
type ErrorType string

const (
	// ErrorTypeTransient covers graph transport timeouts/disconnects and
	// KV transient faults. Retry with bounded backoff; if still failing,
	// surface as a failed performance sample and continue.
	ErrorTypeTransient ErrorType = "transient"

	// ErrorTypeInvariant covers a missing account vertex, an unknown rule
	// name passed to toggle, or an invalid stats window. Return a typed
	// error; for rules, mark exception=true, status=cleared.
	ErrorTypeInvariant ErrorType = "invariant"

	// ErrorTypeConfiguration covers an unknown auto_flag_mode, a negative
	// pool size, or any other value that should fail startup loudly.
	ErrorTypeConfiguration ErrorType = "configuration"

	// ErrorTypeFatal covers unrecoverable graph unavailability beyond a
	// threshold or an orchestrator-initiated shutdown.
	ErrorTypeFatal ErrorType = "fatal"
)

// AppError is a structured error carrying enough context for callers to
// decide retry vs. fail-fast without inspecting message text.
type AppError struct {
	Type      ErrorType              `json:"type"`
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Cause     error                  `json:"-"`
	Retryable bool                   `json:"retryable"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func (e *AppError) WithDetails(details map[string]interface{}) *AppError {
	e.Details = details
	return e
}

func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// NewTransientError wraps a graph/KV transport failure that is safe to
// retry with backoff.
func NewTransientError(code, message string) *AppError {
	return &AppError{
		Type:      ErrorTypeTransient,
		Code:      code,
		Message:   message,
		Retryable: true,
	}
}

// NewInvariantError wraps a violated data-model invariant (missing
// vertex, unknown rule, invalid window).
func NewInvariantError(code, message string) *AppError {
	return &AppError{
		Type:      ErrorTypeInvariant,
		Code:      code,
		Message:   message,
		Retryable: false,
	}
}

// NewConfigurationError wraps a startup-time configuration defect.
func NewConfigurationError(code, message string) *AppError {
	return &AppError{
		Type:      ErrorTypeConfiguration,
		Code:      code,
		Message:   message,
		Retryable: false,
	}
}

// NewFatalError wraps an unrecoverable condition that should drive the
// orchestrator toward shutdown.
func NewFatalError(code, message string) *AppError {
	return &AppError{
		Type:      ErrorTypeFatal,
		Code:      code,
		Message:   message,
		Retryable: false,
	}
}

// NewNotFoundError is a convenience invariant error for a missing graph
// vertex or edge.
func NewNotFoundError(resource string) *AppError {
	return NewInvariantError("NOT_FOUND", fmt.Sprintf("%s not found", resource))
}

// NewConflictError is a convenience invariant error for a duplicate
// txn_id on edge creation.
func NewConflictError(message string) *AppError {
	return NewInvariantError("CONFLICT", message)
}

// NewGraphUnavailableError wraps a transport failure talking to the graph
// server.
func NewGraphUnavailableError(message string) *AppError {
	return NewTransientError("GRAPH_UNAVAILABLE", message)
}

// Predefined common errors used across the engine.
var (
	ErrAccountNotFound = NewNotFoundError("account")
	ErrDuplicateTxnID  = NewConflictError("transaction id already exists")
	ErrRuleNotFound    = NewInvariantError("RULE_NOT_FOUND", "rule not registered")
	ErrInvalidWindow   = NewInvariantError("INVALID_WINDOW", "window must be one of 1, 5, 10 minutes")
)

// Wrap wraps an error with a message using fmt.Errorf with %w.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// IsType reports whether err is an *AppError of the given type.
func IsType(err error, errorType ErrorType) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == errorType
	}
	return false
}

// IsRetryable reports whether err is an *AppError marked retryable.
func IsRetryable(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Retryable
	}
	return false
}
