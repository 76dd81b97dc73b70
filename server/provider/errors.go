package provider

import "errors"

var (
	// ErrTimeout indicates the completion call ran past the configured timeout
	ErrTimeout = errors.New("completion timed out")

	// ErrUnavailable indicates the circuit breaker refused the call
	ErrUnavailable = errors.New("completion provider unavailable")

	// ErrEmptyCompletion indicates the backend answered without any choice
	ErrEmptyCompletion = errors.New("completion returned no choices")
)
