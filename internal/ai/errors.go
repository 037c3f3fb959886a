package ai

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Provider failures. Each wraps the decoded APIError so callers can still
// reach the status code and request id.
type (
	AuthError          struct{ *APIError }
	ModelNotFoundError struct{ *APIError }
	BadRequestError    struct{ *APIError }
	QuotaExceededError struct{ *APIError }
	ServerError        struct{ *APIError }
)

func (e *AuthError) Error() string          { return "authentication failed: " + e.APIError.Error() }
func (e *ModelNotFoundError) Error() string { return "model not found: " + e.APIError.Error() }
func (e *BadRequestError) Error() string    { return "bad request: " + e.APIError.Error() }
func (e *QuotaExceededError) Error() string { return "quota exceeded: " + e.APIError.Error() }
func (e *ServerError) Error() string        { return "provider error: " + e.APIError.Error() }

// RateLimitError is a 429. RetryAfter is zero when the provider sent no hint.
type RateLimitError struct {
	*APIError
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited (retry after %s): %s", e.RetryAfter.Round(time.Second), e.APIError.Error())
	}
	return "rate limited: " + e.APIError.Error()
}

// UnreachableError means no HTTP exchange happened at all.
type UnreachableError struct {
	Host string
	Err  error
}

func (e *UnreachableError) Error() string {
	if e.Host != "" {
		return fmt.Sprintf("endpoint unreachable at %s: %v", e.Host, e.Err)
	}
	return fmt.Sprintf("endpoint unreachable: %v", e.Err)
}

func (e *UnreachableError) Unwrap() error { return e.Err }

// Reason names the failure class of a Generate error for logs. It returns
// "" for nil and "other" for errors outside the provider taxonomy.
func Reason(err error) string {
	var (
		auth  *AuthError
		rate  *RateLimitError
		model *ModelNotFoundError
		bad   *BadRequestError
		quota *QuotaExceededError
		srv   *ServerError
		down  *UnreachableError
	)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.As(err, &auth):
		return "auth"
	case errors.As(err, &rate):
		return "rate_limit"
	case errors.As(err, &model):
		return "model_not_found"
	case errors.As(err, &bad):
		return "bad_request"
	case errors.As(err, &quota):
		return "quota"
	case errors.As(err, &srv):
		return "server"
	case errors.As(err, &down):
		return "unreachable"
	}
	return "other"
}
