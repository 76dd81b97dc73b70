// Package errors provides the error model for the assure chat relay.
// It includes structured error types, JSON response formatting, request ID
// tracking, and integrated logging with Uber's zap logger.
//
// Handlers never write ad-hoc error bodies. Every failure that reaches a
// client is an *APIError serialized as:
//
//	{"type": "provider_error", "message": "...", "request_id": "...", "details": {...}}
//
// Basic usage:
//
//	// Simple error response
//	errors.Error(w, "Something went wrong", http.StatusBadRequest)
//
//	// Type-specific error
//	errors.ErrorWithType(w, "Invalid input", errors.ValidationError, http.StatusBadRequest)
//
// For the common cases use the constructors in types.go:
//
//	err := errors.NewValidationError(requestID, "Missing form fields", map[string]interface{}{
//	    "missing_fields": []string{"message"},
//	})
package errors

import (
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"
)

// DefaultLogger is the package-wide logger. It starts as a production logger
// and is replaced by the process logger through SetLogger.
var DefaultLogger *zap.Logger

func init() {
	var err error
	DefaultLogger, err = zap.NewProduction()
	if err != nil {
		DefaultLogger = zap.NewNop()
	}
}

// SetLogger replaces DefaultLogger. A nil logger is ignored so logging
// cannot be disabled by accident.
func SetLogger(logger *zap.Logger) {
	if logger != nil {
		DefaultLogger = logger
	}
}

// ErrorType is the machine-readable category of an APIError.
type ErrorType string

const (
	// ValidationError represents malformed or incomplete client input
	ValidationError ErrorType = "validation_error"
	// InternalError represents unexpected internal server errors
	InternalError ErrorType = "internal_error"
	// ConfigError represents configuration-related errors
	ConfigError ErrorType = "config_error"
	// ProviderError represents a failed call to the completion API
	ProviderError ErrorType = "provider_error"
	// ProviderUnavailable is returned while the circuit breaker is open
	ProviderUnavailable ErrorType = "provider_unavailable"
	// TimeoutError represents a completion call that exceeded its deadline
	TimeoutError ErrorType = "timeout_error"
	// RateLimitError represents rate limiting errors
	RateLimitError ErrorType = "rate_limit_error"
	// QueueFullError is returned when the admission queue has no room
	QueueFullError ErrorType = "queue_full"
	// NotFoundError represents resource not found errors
	NotFoundError ErrorType = "not_found"
)

// APIError implements the error interface and carries everything needed to
// render a JSON error response. Code and the wrapped error stay out of the
// serialized body.
type APIError struct {
	// Type categorizes the error for client handling
	Type ErrorType `json:"type"`

	// Message is a human-readable error description
	Message string `json:"message"`

	// Code is the HTTP status code (not exposed in JSON)
	Code int `json:"-"`

	// RequestID links the error to a specific request
	RequestID string `json:"request_id"`

	// Details contains additional error context
	Details map[string]interface{} `json:"details,omitempty"`

	err error
}

// Error combines the type, message and wrapped error.
func (e *APIError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error.
func (e *APIError) Unwrap() error {
	return e.err
}

// Is matches on Type only, so errors.Is(err, &APIError{Type: TimeoutError})
// works regardless of message or request id.
func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// WriteError writes err as JSON with its status code.
func WriteError(w http.ResponseWriter, err *APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.Code)
	json.NewEncoder(w).Encode(err)
}

// Error is a drop-in replacement for http.Error that writes an InternalError
// carrying the request ID from the response headers.
func Error(w http.ResponseWriter, message string, code int) {
	ErrorWithType(w, message, InternalError, code)
}

// ErrorWithType is like Error but allows specifying the error type.
func ErrorWithType(w http.ResponseWriter, message string, errType ErrorType, code int) {
	WriteError(w, &APIError{
		Type:      errType,
		Message:   message,
		Code:      code,
		RequestID: w.Header().Get("X-Request-ID"),
	})
}
