// Package errors provides domain-specific error types and sentinel errors
// for the course advisor. Callers import it as apperrors and match with
// errors.Is / errors.As.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for the advisor pipeline.
var (
	// ErrGatewayUnavailable indicates the LLM gateway could not produce a
	// reply after retries and provider fallback.
	ErrGatewayUnavailable = errors.New("llm gateway unavailable")

	// ErrMalformedModelOutput indicates a model reply could not be parsed
	// into the expected structure. Always recovered locally.
	ErrMalformedModelOutput = errors.New("malformed model output")

	// ErrRetrievalUnavailable indicates persistence failed while loading
	// student constraints or the course catalog.
	ErrRetrievalUnavailable = errors.New("retrieval unavailable")

	// ErrEmbeddingUnavailable indicates the embedding gateway was unreachable
	// or returned an empty vector. Ranking never degrades silently.
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")

	// ErrSessionNotFound indicates a session id did not resolve to a session.
	ErrSessionNotFound = errors.New("session not found")
)

// Generic sentinels shared by storage and transport.
var (
	// ErrNotFound indicates a requested resource was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrRateLimitExceeded indicates rate limit has been exceeded.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrInvalidInput indicates user provided invalid input.
	ErrInvalidInput = errors.New("invalid input")
)

// ValidationError represents input validation failures.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}

// Unwrap lets errors.Is(err, ErrInvalidInput) match validation failures.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// NewValidationError creates a new validation error.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// StageError records which pipeline stage failed during a chat turn.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// NewStageError creates a new stage error.
func NewStageError(stage string, err error) *StageError {
	return &StageError{Stage: stage, Err: err}
}
