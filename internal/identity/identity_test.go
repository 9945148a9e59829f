package identity

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"google.golang.org/api/idtoken"

	usagemodels "transferai/internal/usage/models"
	dErrors "transferai/pkg/domain-errors"
	"transferai/pkg/platform/audit"
	"transferai/pkg/platform/middleware/metadata"
	"transferai/pkg/requestcontext"
)

// Justification for unit tests: token parsing edge cases (expiry, wrong
// signature, missing subject) and the account bootstrap in the middleware
// are cheaper to pin here than through a real Google sign-in.
type IdentitySuite struct {
	suite.Suite
	dev *DevJWT
}

func TestIdentitySuite(t *testing.T) {
	suite.Run(t, new(IdentitySuite))
}

func (s *IdentitySuite) SetupTest() {
	dev, err := NewDevJWT("test-secret")
	s.Require().NoError(err)
	s.dev = dev
}

func (s *IdentitySuite) TestDevJWT() {
	ctx := context.Background()

	s.Run("round trip", func() {
		token, err := s.dev.Issue("sub-1", "a@example.edu", "Ada", time.Hour)
		s.Require().NoError(err)

		id, err := s.dev.Verify(ctx, token)
		s.Require().NoError(err)
		s.Equal(&Identity{Subject: "sub-1", Email: "a@example.edu", Name: "Ada"}, id)
	})

	s.Run("expired", func() {
		token, err := s.dev.Issue("sub-1", "", "", -time.Minute)
		s.Require().NoError(err)

		_, err = s.dev.Verify(ctx, token)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("other secret", func() {
		other, err := NewDevJWT("other-secret")
		s.Require().NoError(err)
		token, err := other.Issue("sub-1", "", "", time.Hour)
		s.Require().NoError(err)

		_, err = s.dev.Verify(ctx, token)
		s.Error(err)
	})

	s.Run("empty subject", func() {
		token, err := s.dev.Issue("", "", "", time.Hour)
		s.Require().NoError(err)
		_, err = s.dev.Verify(ctx, token)
		s.Error(err)
	})

	s.Run("garbage", func() {
		_, err := s.dev.Verify(ctx, "not.a.token")
		s.Error(err)
	})

	_, err := NewDevJWT("")
	s.Error(err)
}

func (s *IdentitySuite) TestGoogle() {
	ctx := context.Background()

	s.Run("payload claims map to identity", func() {
		g := &Google{clientID: "client", validator: stubPayload{payload: &idtoken.Payload{
			Subject: "google-sub",
			Claims:  map[string]any{"email": "b@example.edu", "name": "Bo"},
		}}}
		id, err := g.Verify(ctx, "token")
		s.Require().NoError(err)
		s.Equal("google-sub", id.Subject)
		s.Equal("b@example.edu", id.Email)
		s.Equal("Bo", id.Name)
	})

	s.Run("validation failure is unauthorized", func() {
		g := &Google{clientID: "client", validator: stubPayload{err: errors.New("audience mismatch")}}
		_, err := g.Verify(ctx, "token")
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})
}

func (s *IdentitySuite) TestChain() {
	ctx := context.Background()
	token, err := s.dev.Issue("sub-2", "", "", time.Hour)
	s.Require().NoError(err)

	failing := &Google{clientID: "client", validator: stubPayload{err: errors.New("not a google token")}}
	id, err := Chain{failing, s.dev}.Verify(ctx, token)
	s.Require().NoError(err)
	s.Equal("sub-2", id.Subject)

	_, err = Chain{}.Verify(ctx, token)
	s.ErrorIs(err, ErrNoVerifier)
}

func (s *IdentitySuite) TestRequireAuth() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	serve := func(accounts *stubAccounts, pub *captureAudit, header string) (*httptest.ResponseRecorder, string) {
		var seen string
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = requestcontext.AccountID(r.Context())
			w.WriteHeader(http.StatusOK)
		})
		req := httptest.NewRequest(http.MethodGet, "/user-status", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		RequireAuth(s.dev, accounts, logger, pub)(next).ServeHTTP(rec, req)
		return rec, seen
	}

	s.Run("valid token ensures account and sets context", func() {
		token, err := s.dev.Issue("sub-3", "c@example.edu", "Cy", time.Hour)
		s.Require().NoError(err)
		accounts := &stubAccounts{}

		rec, seen := serve(accounts, &captureAudit{}, "Bearer "+token)
		s.Equal(http.StatusOK, rec.Code)
		s.Equal("sub-3", seen)
		s.Equal([]string{"sub-3"}, accounts.ensured)
	})

	s.Run("missing header", func() {
		rec, _ := serve(&stubAccounts{}, &captureAudit{}, "")
		s.Equal(http.StatusUnauthorized, rec.Code)
	})

	s.Run("invalid token is audited", func() {
		pub := &captureAudit{}
		rec, _ := serve(&stubAccounts{}, pub, "Bearer nope")
		s.Equal(http.StatusUnauthorized, rec.Code)
		s.Require().Len(pub.events, 1)
		s.Equal(string(audit.EventAuthFailed), pub.events[0].Action)
	})

	s.Run("auth failure records the caller's device", func() {
		pub := &captureAudit{}
		req := httptest.NewRequest(http.MethodGet, "/user-status", nil)
		req.Header.Set("Authorization", "Bearer nope")
		ua := "Mozilla/5.0 (X11; Linux x86_64; rv:120.0) Gecko/20100101 Firefox/120.0"
		req = req.WithContext(metadata.WithClient(req.Context(), metadata.Client{
			IP:        "10.0.0.7",
			UserAgent: ua,
			Device:    metadata.ParseDevice(ua),
		}))
		rec := httptest.NewRecorder()
		RequireAuth(s.dev, &stubAccounts{}, logger, pub)(http.NotFoundHandler()).ServeHTTP(rec, req)

		s.Equal(http.StatusUnauthorized, rec.Code)
		s.Require().Len(pub.events, 1)
		s.Equal("10.0.0.7", pub.events[0].Attrs["client_ip"])
		s.Equal("Firefox", pub.events[0].Attrs["browser"])
		s.Equal("false", pub.events[0].Attrs["mobile"])
	})

	s.Run("account store failure", func() {
		token, err := s.dev.Issue("sub-4", "", "", time.Hour)
		s.Require().NoError(err)
		accounts := &stubAccounts{err: dErrors.New(dErrors.CodeInternal, "failed to create account")}

		rec, _ := serve(accounts, &captureAudit{}, "Bearer "+token)
		s.Equal(http.StatusInternalServerError, rec.Code)
	})
}

type stubPayload struct {
	payload *idtoken.Payload
	err     error
}

func (s stubPayload) Validate(context.Context, string, string) (*idtoken.Payload, error) {
	return s.payload, s.err
}

type stubAccounts struct {
	ensured []string
	err     error
}

func (s *stubAccounts) EnsureAccount(_ context.Context, id usagemodels.Identity) (*usagemodels.Record, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.ensured = append(s.ensured, id.Subject)
	return &usagemodels.Record{AccountID: id.Subject, Tier: usagemodels.TierFree}, nil
}

type captureAudit struct {
	events []audit.Event
}

func (c *captureAudit) Emit(_ context.Context, e audit.Event) error {
	c.events = append(c.events, e)
	return nil
}
