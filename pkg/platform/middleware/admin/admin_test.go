package admin

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "transferai/pkg/domain-errors"
)

func TestRequireAdminToken(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hashed, err := HashToken("s3cret")
	require.NoError(t, err)
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	tests := []struct {
		name     string
		expected string
		sent     string
		want     int
	}{
		{name: "matching token", expected: "s3cret", sent: "s3cret", want: http.StatusNoContent},
		{name: "wrong token", expected: "s3cret", sent: "nope", want: http.StatusUnauthorized},
		{name: "missing token", expected: "s3cret", want: http.StatusUnauthorized},
		{name: "unconfigured rejects empty", expected: "", sent: "", want: http.StatusUnauthorized},
		{name: "hashed token matches", expected: hashed, sent: "s3cret", want: http.StatusNoContent},
		{name: "hashed token mismatch", expected: hashed, sent: "nope", want: http.StatusUnauthorized},
		{name: "hash itself is not the token", expected: hashed, sent: hashed, want: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPut, "/admin/x", nil)
			if tt.sent != "" {
				req.Header.Set(HeaderAdminToken, tt.sent)
			}
			rec := httptest.NewRecorder()
			RequireAdminToken(tt.expected, logger)(ok).ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestHashToken(t *testing.T) {
	t.Run("empty token", func(t *testing.T) {
		_, err := HashToken("")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("over the bcrypt limit", func(t *testing.T) {
		_, err := HashToken(strings.Repeat("x", 80))
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}
