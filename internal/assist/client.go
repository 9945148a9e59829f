package assist

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"transferai/internal/upstream"
)

const (
	DefaultBaseURL = "https://assist.org/api/"
	DefaultTimeout = 15 * time.Second

	// Category codes accepted by the agreements listing endpoint.
	CategoryMajor      = "major"
	CategoryDepartment = "dept"
)

// Client talks to the articulation provider's JSON API. Every request is
// throttled and bounded by the HTTP client timeout.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithRateLimit sets the steady request rate and burst. A non-positive rate
// disables throttling.
func WithRateLimit(rps float64, burst int) Option {
	return func(cl *Client) {
		if rps <= 0 {
			cl.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		if burst < 1 {
			burst = 1
		}
		cl.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(cl *Client) {
		cl.logger = logger
	}
}

// New builds a Client rooted at baseURL. The trailing slash is significant:
// endpoints are resolved relative to it.
func New(baseURL string, timeout time.Duration, opts ...Option) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse assist base url: %w", err)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c := &Client{
		baseURL:    u,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(5), 5),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Institutions returns the full institution listing.
func (c *Client) Institutions(ctx context.Context) ([]Institution, error) {
	var out []Institution
	if err := c.getJSON(ctx, "institutions", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AcademicYears returns the full academic year listing.
func (c *Client) AcademicYears(ctx context.Context) ([]AcademicYear, error) {
	var out []AcademicYear
	if err := c.getJSON(ctx, "AcademicYears", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// InstitutionAgreements lists the receiving institutions sendingID has
// agreements with.
func (c *Client) InstitutionAgreements(ctx context.Context, sendingID int) ([]InstitutionAgreement, error) {
	var out []InstitutionAgreement
	path := "institutions/" + strconv.Itoa(sendingID) + "/agreements"
	if err := c.getJSON(ctx, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Reports lists the major or department agreements for one institution pair
// and year.
func (c *Client) Reports(ctx context.Context, q ReportQuery) ([]Report, error) {
	category := q.CategoryCode
	if category == "" {
		category = CategoryMajor
	}
	params := url.Values{}
	params.Set("receivingInstitutionId", strconv.Itoa(q.ReceivingID))
	params.Set("sendingInstitutionId", strconv.Itoa(q.SendingID))
	params.Set("academicYearId", strconv.Itoa(q.YearID))
	params.Set("categoryCode", category)

	var out reportsResponse
	if err := c.getJSON(ctx, "agreements", params, &out); err != nil {
		return nil, err
	}
	return out.Reports, nil
}

func (c *Client) getJSON(ctx context.Context, path string, params url.Values, dst any) error {
	op := "assist.get " + path

	if err := c.limiter.Wait(ctx); err != nil {
		return upstream.Classify(op, err)
	}

	endpoint := c.baseURL.ResolveReference(&url.URL{Path: path})
	if params != nil {
		endpoint.RawQuery = params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return upstream.NewFetchError(upstream.ErrorInternal, op, "build request", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.WarnContext(ctx, "assist request failed",
			"path", path,
			"duration_ms", time.Since(start).Milliseconds(),
			"error", err,
		)
		return upstream.Classify(op, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return upstream.NewFetchError(upstream.ErrorNotFound, op, "resource not found", nil)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return upstream.NewFetchError(upstream.ErrorProviderOutage, op,
			fmt.Sprintf("unexpected status %d", resp.StatusCode), nil)
	}

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		if upstream.IsTimeout(err) {
			return upstream.NewFetchError(upstream.ErrorTimeout, op, "read response timed out", err)
		}
		return upstream.NewFetchError(upstream.ErrorBadData, op, "decode response", err)
	}

	c.logger.DebugContext(ctx, "assist request completed",
		"path", path,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}
