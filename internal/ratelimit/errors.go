package ratelimit

import (
	"errors"
	"strings"
)

// RateLimitedError marks a failure as a remote "too many requests"
// rejection. The collaborator that owns the real API call wraps its 429-class
// errors with Limited so classification does not depend on message text.
type RateLimitedError struct {
	Err error
}

func (e *RateLimitedError) Error() string {
	if e.Err == nil {
		return "rate limited"
	}
	return "rate limited: " + e.Err.Error()
}

func (e *RateLimitedError) Unwrap() error { return e.Err }

// Limited wraps err as a retryable rate-limit rejection.
func Limited(err error) error {
	return &RateLimitedError{Err: err}
}

// IsRateLimited reports whether err should be retried as a rate-limit
// rejection. Typed errors are checked first; untyped errors from
// caller-supplied operations fall back to a case-insensitive message check.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	var rl *RateLimitedError
	if errors.As(err, &rl) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "too many requests")
}
