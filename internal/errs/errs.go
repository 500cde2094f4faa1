// Package errs defines the error taxonomy shared across the Gmail
// subsystem. Callers classify failures with errors.As and the Retryable
// helper rather than string matching.
package errs

import (
	"errors"
	"fmt"
	"time"
)

// CryptoError reports an encryption or decryption failure. It is always
// fatal to the operation that produced it; corrupted token data is treated
// as "never authorized" by higher layers.
type CryptoError struct {
	Op  string
	Err error
}

func (e *CryptoError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("crypto: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("crypto: %s", e.Op)
}

func (e *CryptoError) Unwrap() error { return e.Err }

// OAuthError reports an authorization, token-exchange, or refresh failure.
// Callers respond by prompting the user to reauthorize.
type OAuthError struct {
	Reason string
	Err    error
}

func (e *OAuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("oauth: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("oauth: %s", e.Reason)
}

func (e *OAuthError) Unwrap() error { return e.Err }

// APIError reports a non-2xx response from the remote API.
type APIError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: status %d: %s", e.StatusCode, e.Body)
}

func (e *APIError) Unwrap() error { return e.Err }

// RateLimitedError reports that a local rate-limit slot could not be
// acquired in time. RetryAfter hints when the caller should try again.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited: retry after %s", e.RetryAfter)
}

// NetworkError reports a transient transport failure.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string { return fmt.Sprintf("network: %v", e.Err) }

func (e *NetworkError) Unwrap() error { return e.Err }

// InvalidInputError reports malformed caller-supplied data. Never retried.
type InvalidInputError struct {
	Field  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid input: %s: %s", e.Field, e.Reason)
}

// Retryable reports whether the failure is worth retrying with backoff:
// transient network errors, rate limiting, and 5xx/429 API responses.
func Retryable(err error) bool {
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return true
	}
	var rl *RateLimitedError
	if errors.As(err, &rl) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500 || apiErr.StatusCode == 429
	}
	return false
}
