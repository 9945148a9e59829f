package middleware

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transferai/internal/usage/models"
	dErrors "transferai/pkg/domain-errors"
	"transferai/pkg/testutil"
)

type stubConsumer struct {
	decision *models.Decision
	err      error
	calls    int
	account  string
}

func (s *stubConsumer) CheckAndConsume(_ context.Context, accountID string) (*models.Decision, error) {
	s.calls++
	s.account = accountID
	return s.decision, s.err
}

func serve(t *testing.T, consumer Consumer) (*httptest.ResponseRecorder, bool) {
	t.Helper()
	reached := false
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		reached = true
		w.WriteHeader(http.StatusOK)
	})
	h := RequireQuota(consumer, slog.New(slog.NewTextHandler(io.Discard, nil)))(next)

	req := testutil.WithAccount(testutil.NewJSONRequest(t, http.MethodPost, "/chat", nil), "acct-1")
	return testutil.DoRequest(h, req), reached
}

func TestRequireQuota(t *testing.T) {
	reset := time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC)

	t.Run("allowed request reaches the handler with headers", func(t *testing.T) {
		c := &stubConsumer{decision: &models.Decision{Allowed: true, Tier: models.TierFree, Limit: 10, Used: 4, Remaining: 6, ResetAt: reset}}
		rec, reached := serve(t, c)

		assert.True(t, reached)
		assert.Equal(t, "acct-1", c.account)
		assert.Equal(t, "10", rec.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, "6", rec.Header().Get("X-RateLimit-Remaining"))
		assert.Equal(t, "1741651200", rec.Header().Get("X-RateLimit-Reset"))
	})

	t.Run("exhausted quota is 429 with tier details", func(t *testing.T) {
		c := &stubConsumer{decision: &models.Decision{Allowed: false, Tier: models.TierFree, Limit: 10, Used: 10, ResetAt: reset}}
		rec, reached := serve(t, c)

		assert.False(t, reached)
		require.Equal(t, http.StatusTooManyRequests, rec.Code)

		body := testutil.UnmarshalResponse[QuotaExceededResponse](t, rec)
		assert.Equal(t, "quota_exceeded", body.Error)
		assert.Equal(t, "free", body.Tier)
		assert.Equal(t, 10, body.Limit)
		assert.True(t, reset.Equal(body.ResetAt))
		assert.Contains(t, body.Message, "10 requests/day")
		assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	})

	t.Run("ledger failure fails closed", func(t *testing.T) {
		c := &stubConsumer{err: dErrors.Wrap(errors.New("conn refused"), dErrors.CodeInternal, "failed to record usage")}
		rec, reached := serve(t, c)

		assert.False(t, reached)
		testutil.AssertStatusAndError(t, rec, http.StatusInternalServerError, "internal_error")
	})
}
