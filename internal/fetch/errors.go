package fetch

import (
	"errors"
	"fmt"
)

// Errors returned by the feed client before they are wrapped as upstream
// fetch failures.
var (
	ErrRateLimited     = errors.New("feed rate limit exceeded")
	ErrNetworkError    = errors.New("network error fetching feed")
	ErrInvalidResponse = errors.New("invalid feed response")
)

// StatusError is a non-success HTTP response from a feed.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("feed %s returned HTTP %d", e.URL, e.StatusCode)
}

// Retryable reports whether the request may succeed if repeated.
func (e *StatusError) Retryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}

// retryable reports whether err is worth another attempt.
func retryable(err error) bool {
	if errors.Is(err, ErrNetworkError) || errors.Is(err, ErrRateLimited) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	return false
}
