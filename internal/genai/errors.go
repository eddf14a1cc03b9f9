package genai

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ErrorAction defines the action to take based on error type.
type ErrorAction int

const (
	// ActionRetry retries the same provider/model after backoff.
	ActionRetry ErrorAction = iota
	// ActionFallback moves on to the next model or provider without retrying.
	ActionFallback
	// ActionFail stops; the error is permanent for this request.
	ActionFail
)

// String returns a human-readable string for the error action.
func (a ErrorAction) String() string {
	switch a {
	case ActionRetry:
		return "retry"
	case ActionFallback:
		return "fallback"
	case ActionFail:
		return "fail"
	default:
		return "unknown"
	}
}

// LLMError wraps a provider error with the HTTP status, when known.
type LLMError struct {
	Err        error
	StatusCode int
	Provider   Provider
	Retryable  bool
}

// Error implements the error interface.
func (e *LLMError) Error() string {
	msg := string(e.Provider) + ": " + e.Err.Error()
	if e.StatusCode > 0 {
		msg += " (status: " + strconv.Itoa(e.StatusCode) + ")"
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *LLMError) Unwrap() error {
	return e.Err
}

// WrapError wraps err with provider and status code information.
func WrapError(err error, provider Provider, statusCode int) error {
	if err == nil {
		return nil
	}
	wrapped := &LLMError{Err: err, StatusCode: statusCode, Provider: provider}
	wrapped.Retryable = ClassifyError(wrapped) == ActionRetry
	return wrapped
}

// Message patterns checked in order when no status code is available.
var errorPatterns = []struct {
	action   ErrorAction
	patterns []string
}{
	{ActionFallback, []string{"quota", "daily limit", "monthly limit", "billing"}},
	{ActionRetry, []string{"rate limit", "too many requests", "resource_exhausted", "429"}},
	{ActionRetry, []string{"unavailable", "overloaded", "capacity", "internal server error",
		"bad gateway", "gateway timeout", "500", "502", "503", "504"}},
	{ActionRetry, []string{"timeout", "deadline", "connection", "408", "409"}},
	{ActionFail, []string{"unauthorized", "unauthenticated", "invalid api key", "401"}},
	{ActionFail, []string{"forbidden", "permission denied", "403"}},
	{ActionFail, []string{"not found", "404"}},
	{ActionFail, []string{"invalid", "bad request", "unprocessable", "400", "422"}},
}

// ClassifyError decides whether an LLM error should be retried, should
// move to the next model/provider, or is permanent:
//   - transient errors (429, 5xx, network) retry
//   - quota exhaustion falls back
//   - other 4xx and cancellation fail
func ClassifyError(err error) ErrorAction {
	if err == nil {
		return ActionFail
	}
	if errors.Is(err, context.Canceled) {
		return ActionFail
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ActionRetry
	}

	msg := strings.ToLower(err.Error())
	if containsAny(msg, errorPatterns[0].patterns...) {
		return ActionFallback
	}

	var llmErr *LLMError
	if errors.As(err, &llmErr) && llmErr.StatusCode > 0 {
		return classifyStatusCode(llmErr.StatusCode)
	}

	for _, group := range errorPatterns[1:] {
		if containsAny(msg, group.patterns...) {
			return group.action
		}
	}

	// Unknown errors are retried once more rather than dropped.
	return ActionRetry
}

func classifyStatusCode(statusCode int) ErrorAction {
	switch {
	case statusCode == http.StatusTooManyRequests,
		statusCode == http.StatusRequestTimeout,
		statusCode == http.StatusConflict,
		statusCode >= 500 && statusCode < 600:
		return ActionRetry
	case statusCode >= 400 && statusCode < 500:
		return ActionFail
	default:
		return ActionRetry
	}
}

// ParseRetryAfter parses retry-after-ms, Retry-After (seconds or HTTP date)
// and Groq's x-ratelimit-reset-tokens, in that order. Returns 0 if absent.
func ParseRetryAfter(headers http.Header) time.Duration {
	if ms, err := strconv.Atoi(headers.Get("retry-after-ms")); err == nil && ms > 0 {
		return time.Duration(ms) * time.Millisecond
	}
	if v := headers.Get("retry-after"); v != "" {
		if sec, err := strconv.Atoi(v); err == nil && sec > 0 {
			return time.Duration(sec) * time.Second
		}
		if t, err := http.ParseTime(v); err == nil {
			return max(time.Until(t), 0)
		}
	}
	if v := headers.Get("x-ratelimit-reset-tokens"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return 0
}

// IsRetryable returns true if the error is transient and can be retried.
func IsRetryable(err error) bool {
	return ClassifyError(err) == ActionRetry
}

// IsPermanent returns true if the error should not be retried.
func IsPermanent(err error) bool {
	return ClassifyError(err) == ActionFail
}

func containsAny(s string, substrings ...string) bool {
	for _, sub := range substrings {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// classifyErrorType maps an error to a metric status label.
func classifyErrorType(err error) string {
	if err == nil {
		return "success"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}

	var llmErr *LLMError
	if errors.As(err, &llmErr) {
		switch {
		case llmErr.StatusCode == http.StatusTooManyRequests:
			return "rate_limit"
		case llmErr.StatusCode >= 500:
			return "server_error"
		case llmErr.StatusCode == http.StatusUnauthorized || llmErr.StatusCode == http.StatusForbidden:
			return "auth_error"
		case llmErr.StatusCode == http.StatusBadRequest:
			return "invalid_request"
		}
	}

	switch ClassifyError(err) {
	case ActionFallback:
		return "quota_exhausted"
	case ActionRetry:
		return "transient_error"
	default:
		return "error"
	}
}
