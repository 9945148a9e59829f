package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	"transferai/internal/usage/models"
	"transferai/internal/usage/service"
	"transferai/internal/usage/store/memory"
	"transferai/pkg/testutil"
)

// Justification for unit tests: checks the JSON field names the web client
// reads, the unauthenticated path, and tier changes made by operators.
type HandlerSuite struct {
	suite.Suite
	router http.Handler
	store  *memory.InMemoryStore
	now    time.Time
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.store = memory.New()
	ledger, err := service.New(s.store)
	s.Require().NoError(err)

	r := chi.NewRouter()
	h := New(ledger, slog.New(slog.NewTextHandler(io.Discard, nil)))
	h.Register(r)
	r.Route("/admin", h.RegisterAdmin)
	s.router = r
	s.now = time.Date(2025, 3, 10, 18, 0, 0, 0, time.UTC)
}

func (s *HandlerSuite) get(accountID string) *httptest.ResponseRecorder {
	req := testutil.NewJSONRequest(s.T(), http.MethodGet, "/user-status", nil)
	req = testutil.WithAccount(testutil.WithTime(req, s.now), accountID)
	return testutil.DoRequest(s.router, req)
}

func (s *HandlerSuite) TestStatus() {
	_, err := s.store.Ensure(context.Background(), &models.Record{
		AccountID: "acct", Tier: models.TierFree, RequestsUsed: 4, PeriodStart: s.now.Add(-time.Hour),
	})
	s.Require().NoError(err)

	rec := s.get("acct")
	s.Require().Equal(http.StatusOK, rec.Code)

	body := *testutil.UnmarshalResponse[map[string]any](s.T(), rec)
	s.Equal("free", body["tier"])
	s.Equal(float64(4), body["usageCount"])
	s.Equal(float64(10), body["usageLimit"])
	s.Equal("2025-03-11T00:00:00Z", body["resetTime"])
}

func (s *HandlerSuite) TestUnauthenticated() {
	rec := s.get("")
	testutil.AssertStatusAndError(s.T(), rec, http.StatusUnauthorized, "unauthorized")
}

func (s *HandlerSuite) TestUnknownAccount() {
	rec := s.get("nobody")
	testutil.AssertStatusAndError(s.T(), rec, http.StatusNotFound, "not_found")
}

func (s *HandlerSuite) put(accountID string, body map[string]string) *httptest.ResponseRecorder {
	req := testutil.NewJSONRequest(s.T(), http.MethodPut, "/admin/accounts/"+accountID+"/tier", body)
	return testutil.DoRequest(s.router, testutil.WithTime(req, s.now))
}

func (s *HandlerSuite) TestUpdateTier() {
	_, err := s.store.Ensure(context.Background(), &models.Record{
		AccountID: "acct", Tier: models.TierFree, PeriodStart: s.now,
	})
	s.Require().NoError(err)

	s.Run("promotes to premium", func() {
		rec := s.put("acct", map[string]string{"tier": " Premium "})
		s.Require().Equal(http.StatusOK, rec.Code)
		s.JSONEq(`{"accountId":"acct","tier":"premium"}`, rec.Body.String())

		got, err := s.store.Get(context.Background(), "acct")
		s.Require().NoError(err)
		s.Equal(models.TierPremium, got.Tier)
	})

	s.Run("rejects unknown tier", func() {
		rec := s.put("acct", map[string]string{"tier": "gold"})
		testutil.AssertStatusAndError(s.T(), rec, http.StatusBadRequest, "validation_error")
	})

	s.Run("rejects missing tier", func() {
		rec := s.put("acct", map[string]string{})
		testutil.AssertStatusAndError(s.T(), rec, http.StatusBadRequest, "validation_error")
	})

	s.Run("unknown account", func() {
		rec := s.put("nobody", map[string]string{"tier": "premium"})
		testutil.AssertStatusAndError(s.T(), rec, http.StatusNotFound, "not_found")
	})
}
