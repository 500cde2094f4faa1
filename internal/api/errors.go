package api

import (
	"context"
	"errors"
	"net"

	"google.golang.org/api/googleapi"

	"github.com/evanrusso/gmailvault/internal/errs"
)

// classify maps transport and provider failures onto the shared taxonomy.
// Typed errors pass through untouched.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *errs.APIError
	var oauthErr *errs.OAuthError
	var rlErr *errs.RateLimitedError
	var netErr *errs.NetworkError
	var cryptoErr *errs.CryptoError
	if errors.As(err, &apiErr) || errors.As(err, &oauthErr) ||
		errors.As(err, &rlErr) || errors.As(err, &netErr) || errors.As(err, &cryptoErr) {
		return err
	}

	if errors.Is(err, context.Canceled) {
		return err
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return &errs.APIError{StatusCode: gerr.Code, Body: gerr.Message, Err: err}
	}

	var nerr net.Error
	if errors.As(err, &nerr) || errors.Is(err, context.DeadlineExceeded) {
		return &errs.NetworkError{Err: err}
	}

	// Anything else from the HTTP stack is treated as transient transport
	// trouble.
	return &errs.NetworkError{Err: err}
}

// IsHistoryExpired reports whether the provider rejected a history cursor
// as too old. Gmail answers 404 to history.list in that case; the caller
// falls back to a full sync.
func IsHistoryExpired(err error) bool {
	var apiErr *errs.APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == 404
}
