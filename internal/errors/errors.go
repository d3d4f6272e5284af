package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorCode represents a specific error type for better error handling
type ErrorCode string

const (
	// Configuration errors
	ErrCodeConfigLoad     ErrorCode = "CONFIG_LOAD_FAILED"
	ErrCodeInvalidBackend ErrorCode = "INVALID_BACKEND"

	// Registry errors
	ErrCodeDuplicateBackend ErrorCode = "DUPLICATE_BACKEND"
	ErrCodeBackendNotFound  ErrorCode = "BACKEND_NOT_FOUND"

	// Routing errors
	ErrCodeNoBackends      ErrorCode = "NO_BACKENDS_AVAILABLE"
	ErrCodeUnknownStrategy ErrorCode = "UNKNOWN_STRATEGY"

	// Health checking errors
	ErrCodeProbeFailed ErrorCode = "PROBE_FAILED"

	// Affinity store errors
	ErrCodeAffinityStore ErrorCode = "AFFINITY_STORE_FAILED"
)

// RoutingError is a structured error carrying a code, the originating
// component, and an optional cause.
type RoutingError struct {
	Code      ErrorCode              `json:"code"`
	Component string                 `json:"component,omitempty"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Cause     error                  `json:"-"`
}

// Error implements the error interface
func (e *RoutingError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Component, e.Message)
}

// Unwrap returns the underlying error
func (e *RoutingError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error code
func (e *RoutingError) Is(target error) bool {
	if t, ok := target.(*RoutingError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithMetadata adds metadata to the error
func (e *RoutingError) WithMetadata(key string, value interface{}) *RoutingError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// NewError creates a new RoutingError
func NewError(code ErrorCode, component, message string) *RoutingError {
	return &RoutingError{
		Code:      code,
		Component: component,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// WrapError wraps an existing error with RoutingError structure
func WrapError(err error, code ErrorCode, component, message string) *RoutingError {
	if err == nil {
		return nil
	}

	return &RoutingError{
		Code:      code,
		Component: component,
		Message:   message,
		Timestamp: time.Now(),
		Cause:     err,
		Details:   err.Error(),
	}
}

// NewDuplicateBackendError is returned when registering an id twice.
func NewDuplicateBackendError(backendID string) *RoutingError {
	return NewError(
		ErrCodeDuplicateBackend,
		"registry",
		fmt.Sprintf("backend %q is already registered", backendID),
	).WithMetadata("backend_id", backendID)
}

// NewBackendNotFoundError is returned for operations on an unknown id.
func NewBackendNotFoundError(backendID string) *RoutingError {
	return NewError(
		ErrCodeBackendNotFound,
		"registry",
		fmt.Sprintf("backend %q is not registered", backendID),
	).WithMetadata("backend_id", backendID)
}

// NewInvalidBackendError wraps a validation failure at registration time.
func NewInvalidBackendError(backendID string, cause error) *RoutingError {
	return WrapError(
		cause,
		ErrCodeInvalidBackend,
		"registry",
		fmt.Sprintf("backend %q failed validation", backendID),
	).WithMetadata("backend_id", backendID)
}

// NewUnknownStrategyError is returned when a strategy id cannot be parsed.
func NewUnknownStrategyError(strategy string) *RoutingError {
	return NewError(
		ErrCodeUnknownStrategy,
		"engine",
		fmt.Sprintf("unknown load balancing strategy %q", strategy),
	).WithMetadata("strategy", strategy)
}

// GetErrorCode extracts the error code from an error
func GetErrorCode(err error) ErrorCode {
	var rerr *RoutingError
	if errors.As(err, &rerr) {
		return rerr.Code
	}
	return ""
}

// IsCode checks whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}
