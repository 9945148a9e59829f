package httptransport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	agreementhandler "transferai/internal/agreement/handler"
	agreementmodels "transferai/internal/agreement/models"
	"transferai/internal/chat"
	"transferai/internal/content/store/memory"
	coursemaphandler "transferai/internal/coursemap/handler"
	coursemapservice "transferai/internal/coursemap/service"
	coursemapmemory "transferai/internal/coursemap/store/memory"
	"transferai/internal/identity"
	usagehandler "transferai/internal/usage/handler"
	usagemodels "transferai/internal/usage/models"
	usageservice "transferai/internal/usage/service"
	usagememory "transferai/internal/usage/store/memory"
	"transferai/pkg/platform/middleware/request"
)

// Justification for unit tests: the route table decides which endpoints are
// public, authenticated or metered; a wrong group silently exposes or blocks
// a route.
type RouterSuite struct {
	suite.Suite
	dev    *identity.DevJWT
	usage  *usagememory.InMemoryStore
	ready  error
	router http.Handler
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

type stubCatalog struct{}

func (stubCatalog) SendingInstitutions(context.Context) (map[string]int, error) {
	return map[string]int{"De Anza College": 113}, nil
}

func (stubCatalog) ReceivingInstitutions(context.Context, int) (map[string]int, error) {
	return map[string]int{}, nil
}

func (stubCatalog) AgreementYears(context.Context, int, int) (map[string]int, error) {
	return map[string]int{}, nil
}

func (stubCatalog) Majors(context.Context, int, int, int, string) (map[string]string, error) {
	return map[string]string{}, nil
}

type stubAgreements struct{}

func (stubAgreements) GetOrFetchMany(context.Context, []int, int, int, string) ([]agreementmodels.AgreementResult, error) {
	return nil, nil
}

func (stubAgreements) GetOrFetchIGETC(context.Context, int, int) (string, error) {
	return "IGETC_De_Anza_College_2024-2025.pdf", nil
}

type stubPages struct{}

func (stubPages) GetOrGenerate(context.Context, string) ([]string, error) { return nil, nil }

type stubResponder struct{}

func (stubResponder) Reply(context.Context, []chat.Turn) (string, error) { return "ok", nil }

func (s *RouterSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	dev, err := identity.NewDevJWT("router-secret")
	s.Require().NoError(err)
	s.dev = dev
	s.usage = usagememory.New()
	s.ready = nil

	ledger, err := usageservice.New(s.usage,
		usageservice.WithLogger(logger),
		usageservice.WithLimits(usagemodels.Limits{Free: 1, Premium: 5}),
	)
	s.Require().NoError(err)

	maps, err := coursemapservice.New(coursemapmemory.New())
	s.Require().NoError(err)

	blobs := memory.New()
	s.router = NewRouter(Deps{
		Logger:     logger,
		AdminToken: "ops-token",
		Agreements: agreementhandler.New(stubAgreements{}, stubPages{}, stubCatalog{}, blobs, logger, nil),
		Usage:      usagehandler.New(ledger, logger),
		CourseMaps: coursemaphandler.New(maps, logger),
		Chat:       chat.NewHandler(chat.NewService(stubResponder{}, blobs, logger), logger),
		Health: NewHealthHandler(map[string]Pinger{
			"database": PingFunc(func(context.Context) error { return s.ready }),
		}),
		Verifier: identity.Chain{dev},
		Accounts: ledger,
		Quota:    ledger,
	})
}

func (s *RouterSuite) do(method, path, token, body string) *httptest.ResponseRecorder {
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *RouterSuite) token(subject string) string {
	tok, err := s.dev.Issue(subject, subject+"@example.edu", "Student", time.Hour)
	s.Require().NoError(err)
	return tok
}

func (s *RouterSuite) TestHealth() {
	rec := s.do(http.MethodGet, "/health", "", "")
	s.Equal(http.StatusOK, rec.Code)
	s.NotEmpty(rec.Header().Get(request.HeaderRequestID))

	rec = s.do(http.MethodGet, "/health/ready", "", "")
	s.Equal(http.StatusOK, rec.Code)
	s.JSONEq(`{"status":"ok","checks":{"database":"ok"}}`, rec.Body.String())

	s.ready = errors.New("connection refused")
	rec = s.do(http.MethodGet, "/health/ready", "", "")
	s.Equal(http.StatusServiceUnavailable, rec.Code)
	s.JSONEq(`{"status":"fail","checks":{"database":"fail"}}`, rec.Body.String())
}

func (s *RouterSuite) TestMetrics() {
	s.do(http.MethodGet, "/health", "", "")
	rec := s.do(http.MethodGet, "/metrics", "", "")
	s.Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), "transferai_http_requests_total")
}

func (s *RouterSuite) TestPublicRoutes() {
	rec := s.do(http.MethodGet, "/api/institutions", "", "")
	s.Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), "De Anza College")
}

func (s *RouterSuite) TestAuthenticatedRoutes() {
	s.Run("no token", func() {
		s.Equal(http.StatusUnauthorized, s.do(http.MethodGet, "/api/user-status", "", "").Code)
		s.Equal(http.StatusUnauthorized, s.do(http.MethodGet, "/api/igetc-agreement?sendingId=113&academicYearId=75", "", "").Code)
		s.Equal(http.StatusUnauthorized, s.do(http.MethodPost, "/api/chat", "", `{"new_message":"hi"}`).Code)
	})

	s.Run("first request creates the account", func() {
		rec := s.do(http.MethodGet, "/api/user-status", s.token("student-1"), "")
		s.Require().Equal(http.StatusOK, rec.Code)

		var status map[string]any
		s.Require().NoError(json.NewDecoder(rec.Body).Decode(&status))
		s.Equal("free", status["tier"])
		s.Equal(float64(0), status["usageCount"])

		_, err := s.usage.Get(context.Background(), "student-1")
		s.NoError(err)
	})
}

func (s *RouterSuite) TestCourseMapsAreAuthenticatedAndUnmetered() {
	s.Equal(http.StatusUnauthorized, s.do(http.MethodGet, "/api/course-maps", "", "").Code)

	tok := s.token("student-3")
	for i := 0; i < 3; i++ {
		rec := s.do(http.MethodPost, "/api/course-maps", tok, `{"map_name":"plan","nodes":[],"edges":[]}`)
		s.Require().Equal(http.StatusCreated, rec.Code, "saving maps does not use chat quota")
	}

	rec := s.do(http.MethodGet, "/api/course-maps", tok, "")
	s.Require().Equal(http.StatusOK, rec.Code)
	var maps []map[string]any
	s.Require().NoError(json.NewDecoder(rec.Body).Decode(&maps))
	s.Len(maps, 3)

	rec = s.do(http.MethodGet, "/api/course-maps", s.token("student-4"), "")
	s.Equal(http.StatusOK, rec.Code)
	s.JSONEq(`[]`, rec.Body.String())
}

func (s *RouterSuite) TestChatIsMetered() {
	tok := s.token("student-2")

	rec := s.do(http.MethodPost, "/api/chat", tok, `{"new_message":"Which classes transfer?"}`)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Equal("1", rec.Header().Get("X-RateLimit-Limit"))
	s.Equal("0", rec.Header().Get("X-RateLimit-Remaining"))

	rec = s.do(http.MethodPost, "/api/chat", tok, `{"new_message":"And for physics?"}`)
	s.Equal(http.StatusTooManyRequests, rec.Code)
	s.NotEmpty(rec.Header().Get("Retry-After"))

	// Status reads are not metered.
	s.Equal(http.StatusOK, s.do(http.MethodGet, "/api/user-status", tok, "").Code)
}

func (s *RouterSuite) TestAdminRoutes() {
	_, err := s.usage.Ensure(context.Background(), &usagemodels.Record{
		AccountID: "student-3", Tier: usagemodels.TierFree, PeriodStart: time.Now().UTC(),
	})
	s.Require().NoError(err)

	req := httptest.NewRequest(http.MethodPut, "/admin/accounts/student-3/tier", strings.NewReader(`{"tier":"premium"}`))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	s.Equal(http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodPut, "/admin/accounts/student-3/tier", strings.NewReader(`{"tier":"premium"}`))
	req.Header.Set("X-Admin-Token", "ops-token")
	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	s.Equal(http.StatusOK, rec.Code)
}
