package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"transferai/internal/usage/models"
	"transferai/pkg/platform/httputil"
	"transferai/pkg/requestcontext"
)

// Consumer meters one request for an account.
type Consumer interface {
	CheckAndConsume(ctx context.Context, accountID string) (*models.Decision, error)
}

// QuotaExceededResponse is the 429 body.
type QuotaExceededResponse struct {
	Error   string    `json:"error"`
	Message string    `json:"message"`
	Tier    string    `json:"tier"`
	Limit   int       `json:"limit"`
	ResetAt time.Time `json:"reset_at"`
}

// RequireQuota consumes one request of the authenticated account before the
// wrapped handler runs. It must be installed after the auth middleware.
// Unlike a best-effort rate limiter it fails closed: if usage cannot be
// recorded the request is refused.
func RequireQuota(ledger Consumer, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			accountID := requestcontext.AccountID(ctx)

			decision, err := ledger.CheckAndConsume(ctx, accountID)
			if err != nil {
				logger.ErrorContext(ctx, "failed to check usage",
					"request_id", requestcontext.RequestID(ctx),
					"account_id", accountID,
					"error", err,
				)
				httputil.WriteError(w, err)
				return
			}

			addQuotaHeaders(w, decision)
			if !decision.Allowed {
				writeQuotaExceeded(w, decision)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func addQuotaHeaders(w http.ResponseWriter, d *models.Decision) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
}

func writeQuotaExceeded(w http.ResponseWriter, d *models.Decision) {
	retryAfter := max(int(time.Until(d.ResetAt).Seconds()), 0)
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	httputil.WriteJSON(w, http.StatusTooManyRequests, &QuotaExceededResponse{
		Error: "quota_exceeded",
		Message: "Usage limit (" + strconv.Itoa(d.Limit) + " requests/day) exceeded for your tier ('" +
			d.Tier.String() + "'). Please try again after " + d.ResetAt.UTC().Format("2006-01-02 15:04:05 UTC") + ".",
		Tier:    d.Tier.String(),
		Limit:   d.Limit,
		ResetAt: d.ResetAt,
	})
}
