// Package e2e drives a running server through godog feature files.
package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TestContext carries one scenario's HTTP state.
type TestContext struct {
	BaseURL    string
	AdminToken string
	DevSecret  string

	client      *http.Client
	subject     string
	accessToken string

	lastStatus int
	lastHeader http.Header
	lastBody   []byte
}

func NewTestContext(baseURL, adminToken, devSecret string) *TestContext {
	return &TestContext{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		AdminToken: adminToken,
		DevSecret:  devSecret,
		client:     &http.Client{Timeout: 60 * time.Second},
	}
}

// Reset clears per-scenario state.
func (tc *TestContext) Reset() {
	tc.subject = ""
	tc.accessToken = ""
	tc.lastStatus = 0
	tc.lastHeader = nil
	tc.lastBody = nil
}

// SignInAsNewStudent mints a dev token for a fresh subject. It mirrors the
// claims the server's "token" command issues.
func (tc *TestContext) SignInAsNewStudent() error {
	if tc.DevSecret == "" {
		return fmt.Errorf("E2E_DEV_JWT_SECRET is not set")
	}
	tc.subject = "e2e-" + uuid.NewString()
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   tc.subject,
		"iss":   "transferai-dev",
		"email": "e2e.student@example.edu",
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
		"jti":   uuid.NewString(),
	})
	signed, err := token.SignedString([]byte(tc.DevSecret))
	if err != nil {
		return err
	}
	tc.accessToken = signed
	return nil
}

func (tc *TestContext) Subject() string { return tc.subject }

func (tc *TestContext) GET(path string, headers map[string]string) error {
	return tc.do(http.MethodGet, path, nil, headers)
}

func (tc *TestContext) POST(path string, body any) error {
	return tc.do(http.MethodPost, path, body, nil)
}

// AdminPUT sends body with the operator token instead of the bearer token.
func (tc *TestContext) AdminPUT(path string, body any) error {
	return tc.do(http.MethodPut, path, body, map[string]string{"X-Admin-Token": tc.AdminToken})
}

func (tc *TestContext) do(method, path string, body any, headers map[string]string) error {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, tc.BaseURL+path, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tc.accessToken != "" && !strings.HasPrefix(path, "/admin/") {
		req.Header.Set("Authorization", "Bearer "+tc.accessToken)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := tc.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	tc.lastStatus = resp.StatusCode
	tc.lastHeader = resp.Header
	tc.lastBody, err = io.ReadAll(resp.Body)
	return err
}

func (tc *TestContext) GetLastResponseStatus() int  { return tc.lastStatus }
func (tc *TestContext) GetLastResponseBody() []byte { return tc.lastBody }
func (tc *TestContext) GetLastResponseHeader(k string) string {
	if tc.lastHeader == nil {
		return ""
	}
	return tc.lastHeader.Get(k)
}

// GetResponseField reads a top-level field of the last JSON object body.
func (tc *TestContext) GetResponseField(field string) (any, error) {
	var body map[string]any
	if err := json.Unmarshal(tc.lastBody, &body); err != nil {
		return nil, fmt.Errorf("response is not a JSON object: %w (body: %s)", err, tc.lastBody)
	}
	v, ok := body[field]
	if !ok {
		return nil, fmt.Errorf("field %q not in response: %s", field, tc.lastBody)
	}
	return v, nil
}
