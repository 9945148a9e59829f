package identity

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	usagemodels "transferai/internal/usage/models"
	dErrors "transferai/pkg/domain-errors"
	"transferai/pkg/platform/audit"
	"transferai/pkg/platform/httputil"
	"transferai/pkg/platform/middleware/metadata"
	"transferai/pkg/requestcontext"
)

// AccountEnsurer creates the usage record of a first-time caller.
type AccountEnsurer interface {
	EnsureAccount(ctx context.Context, identity usagemodels.Identity) (*usagemodels.Record, error)
}

// RequireAuth verifies the bearer token, makes sure the caller has an
// account, and stores the account id in the request context.
func RequireAuth(verifier Verifier, accounts AccountEnsurer, logger *slog.Logger, publisher audit.Publisher) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := requestcontext.RequestID(ctx)

			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			token = strings.TrimSpace(token)
			if !ok || token == "" {
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authorization token missing or invalid"))
				return
			}

			id, err := verifier.Verify(ctx, token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"request_id", requestID,
					"user_agent", metadata.GetUserAgent(ctx),
					"error", err,
				)
				device := metadata.GetDevice(ctx)
				audit.Log(ctx, nil, publisher, audit.EventAuthFailed,
					"path", r.URL.Path,
					"client_ip", metadata.GetClientIP(ctx),
					"browser", device.Browser,
					"os", device.OS,
					"mobile", device.Mobile,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "invalid or expired token"))
				return
			}

			if _, err := accounts.EnsureAccount(ctx, usagemodels.Identity{
				Subject: id.Subject,
				Email:   id.Email,
				Name:    id.Name,
			}); err != nil {
				logger.ErrorContext(ctx, "failed to ensure account",
					"request_id", requestID,
					"account_id", id.Subject,
					"error", err,
				)
				httputil.WriteError(w, err)
				return
			}

			ctx = requestcontext.WithAccountID(ctx, id.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
