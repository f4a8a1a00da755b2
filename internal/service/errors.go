package service

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors returned by backends. Transient errors are retried by the
// retry package; auth errors must reach the caller untouched.
var (
	// ErrAuth indicates that the credentials are missing or were rejected.
	ErrAuth = errors.New("authentication failed")

	// ErrTokenExpired indicates that a previously valid token expired.
	ErrTokenExpired = errors.New("authentication token expired")

	// ErrUserCancelled is returned when the user aborts interactive auth.
	ErrUserCancelled = fmt.Errorf("%w: cancelled by user", ErrAuth)

	// ErrUnavailable indicates a temporary outage of the remote service.
	ErrUnavailable = errors.New("service unavailable")

	// ErrRateLimited is matched by every *RateLimitError.
	ErrRateLimited = errors.New("rate limit reached")

	// ErrUnknownBackend is returned by Lookup for unregistered names.
	ErrUnknownBackend = errors.New("unknown backend")
)

// RateLimitError is returned when the service asks the client to back off.
type RateLimitError struct {
	// RetryAfter is the server-advised wait before the next attempt.
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit reached, retry after %s", e.RetryAfter)
}

func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// IsAuthError reports whether err requires re-authentication.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrAuth) || errors.Is(err, ErrTokenExpired)
}
