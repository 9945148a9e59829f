package testutil

import (
	"net/http"
	"time"

	"transferai/pkg/requestcontext"
)

// WithAccount adds an authenticated account ID to the request context.
// This simulates what the identity middleware does for verified requests.
func WithAccount(req *http.Request, accountID string) *http.Request {
	if accountID == "" {
		return req
	}
	return req.WithContext(requestcontext.WithAccountID(req.Context(), accountID))
}

// WithTime pins the request clock so quota windows are deterministic.
func WithTime(req *http.Request, now time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), now))
}
