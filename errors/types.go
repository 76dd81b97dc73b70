package errors

import (
	"net/http"
	"time"
)

// ConnectionFailureMessage is the client-facing message for any failed
// completion call. It deliberately says nothing about the upstream cause.
const ConnectionFailureMessage = "Sorry, there was an error connecting to the server."

// NewError creates an APIError with full control over its fields. Prefer the
// specialized constructors below.
//
// Example:
//
//	err := NewError(InternalError, "encode failed", 500, "req_123", nil, encErr)
func NewError(errType ErrorType, message string, code int, requestID string, details map[string]interface{}, err error) *APIError {
	return &APIError{
		Type:      errType,
		Message:   message,
		Code:      code,
		RequestID: requestID,
		Details:   details,
		err:       err,
	}
}

// NewValidationError creates a 400 error for malformed client input, such as:
//   - a body that is not a form
//   - missing required form fields
//
// Example:
//
//	err := NewValidationError("req_123", "Missing required form fields", map[string]interface{}{
//	    "missing_fields": []string{"profile"},
//	})
func NewValidationError(requestID, message string, validationDetails map[string]interface{}) *APIError {
	return &APIError{
		Type:      ValidationError,
		Message:   message,
		Code:      http.StatusBadRequest,
		RequestID: requestID,
		Details:   validationDetails,
	}
}

// NewPayloadTooLargeError creates a 413 validation error for oversized
// uploads or prompts.
func NewPayloadTooLargeError(requestID, message string, details map[string]interface{}) *APIError {
	return &APIError{
		Type:      ValidationError,
		Message:   message,
		Code:      http.StatusRequestEntityTooLarge,
		RequestID: requestID,
		Details:   details,
	}
}

// NewRateLimitError creates a 429 error.
//
// Example:
//
//	err := NewRateLimitError("req_123", 30)
func NewRateLimitError(requestID string, retryAfter int) *APIError {
	return &APIError{
		Type:      RateLimitError,
		Message:   "Rate limit exceeded",
		Code:      http.StatusTooManyRequests,
		RequestID: requestID,
		Details: map[string]interface{}{
			"retry_after": retryAfter,
		},
	}
}

// NewQueueFullError creates a 503 error for requests rejected by the
// admission queue.
func NewQueueFullError(requestID string, maxWaiting int) *APIError {
	return &APIError{
		Type:      QueueFullError,
		Message:   "Server is busy, please retry shortly",
		Code:      http.StatusServiceUnavailable,
		RequestID: requestID,
		Details: map[string]interface{}{
			"max_waiting": maxWaiting,
		},
	}
}

// NewQueueTimeoutError creates a 503 error for requests that waited too
// long for a processing slot.
func NewQueueTimeoutError(requestID string, waited time.Duration) *APIError {
	return &APIError{
		Type:      QueueFullError,
		Message:   "Timed out waiting for a processing slot, please retry shortly",
		Code:      http.StatusServiceUnavailable,
		RequestID: requestID,
		Details: map[string]interface{}{
			"waited": waited.Round(time.Millisecond).String(),
		},
	}
}

// NewProviderError creates a 502 error for a failed completion call
// (network error, non-2xx answer, malformed completion).
func NewProviderError(requestID string, err error) *APIError {
	return &APIError{
		Type:      ProviderError,
		Message:   ConnectionFailureMessage,
		Code:      http.StatusBadGateway,
		RequestID: requestID,
		err:       err,
	}
}

// NewProviderUnavailableError creates a 503 error returned while the
// circuit breaker refuses calls.
func NewProviderUnavailableError(requestID string, err error) *APIError {
	return &APIError{
		Type:      ProviderUnavailable,
		Message:   ConnectionFailureMessage,
		Code:      http.StatusServiceUnavailable,
		RequestID: requestID,
		err:       err,
		Details: map[string]interface{}{
			"suggestion": "The assistant is temporarily unavailable, please retry later",
		},
	}
}

// NewTimeoutError creates a 504 error for a completion call that ran past
// its deadline.
func NewTimeoutError(requestID string, timeout string, err error) *APIError {
	return &APIError{
		Type:      TimeoutError,
		Message:   ConnectionFailureMessage,
		Code:      http.StatusGatewayTimeout,
		RequestID: requestID,
		err:       err,
		Details: map[string]interface{}{
			"timeout": timeout,
		},
	}
}

// NewInternalError creates a 500 error for anything not covered above,
// panics included.
//
// Example:
//
//	err := NewInternalError("req_123", encErr)
func NewInternalError(requestID string, err error) *APIError {
	return &APIError{
		Type:      InternalError,
		Message:   "An internal error occurred",
		Code:      http.StatusInternalServerError,
		RequestID: requestID,
		err:       err,
	}
}
