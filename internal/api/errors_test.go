package api

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"google.golang.org/api/googleapi"

	"github.com/evanrusso/gmailvault/internal/errs"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		in        error
		retryable bool
		check     func(error) bool
	}{
		{
			name: "nil stays nil",
			in:   nil,
		},
		{
			name:      "server error becomes retryable api error",
			in:        &googleapi.Error{Code: http.StatusInternalServerError},
			retryable: true,
			check: func(err error) bool {
				var apiErr *errs.APIError
				return errors.As(err, &apiErr) && apiErr.StatusCode == 500
			},
		},
		{
			name:      "too many requests is retryable",
			in:        &googleapi.Error{Code: http.StatusTooManyRequests},
			retryable: true,
		},
		{
			name: "not found is terminal",
			in:   &googleapi.Error{Code: http.StatusNotFound},
			check: func(err error) bool {
				var apiErr *errs.APIError
				return errors.As(err, &apiErr) && apiErr.StatusCode == 404
			},
		},
		{
			name: "unauthorized is terminal",
			in:   &googleapi.Error{Code: http.StatusUnauthorized},
		},
		{
			name: "cancellation passes through",
			in:   context.Canceled,
			check: func(err error) bool {
				return errors.Is(err, context.Canceled)
			},
		},
		{
			name:      "deadline becomes network error",
			in:        context.DeadlineExceeded,
			retryable: true,
			check: func(err error) bool {
				var netErr *errs.NetworkError
				return errors.As(err, &netErr)
			},
		},
		{
			name: "typed oauth error passes through",
			in:   &errs.OAuthError{Reason: "invalid_grant"},
			check: func(err error) bool {
				var oauthErr *errs.OAuthError
				return errors.As(err, &oauthErr)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(tt.in)
			if tt.in == nil {
				if got != nil {
					t.Fatalf("classify(nil) = %v", got)
				}
				return
			}
			if got == nil {
				t.Fatal("classify returned nil for non-nil input")
			}
			if errs.Retryable(got) != tt.retryable {
				t.Errorf("Retryable(%v) = %v, want %v", got, errs.Retryable(got), tt.retryable)
			}
			if tt.check != nil && !tt.check(got) {
				t.Errorf("classified error %v failed shape check", got)
			}
		})
	}
}

func TestIsHistoryExpired(t *testing.T) {
	expired := classify(&googleapi.Error{Code: http.StatusNotFound})
	if !IsHistoryExpired(expired) {
		t.Error("404 should mean the history cursor expired")
	}
	if IsHistoryExpired(classify(&googleapi.Error{Code: http.StatusInternalServerError})) {
		t.Error("500 is not an expired cursor")
	}
	if IsHistoryExpired(nil) {
		t.Error("nil is not an expired cursor")
	}
}
