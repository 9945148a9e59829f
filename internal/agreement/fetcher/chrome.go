// Package fetcher renders upstream agreement pages to PDF in headless Chrome.
package fetcher

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/semaphore"

	"transferai/internal/agreement/models"
	"transferai/internal/upstream"
)

const (
	DefaultNavigationTimeout = 60 * time.Second
	DefaultSelectorTimeout   = 30 * time.Second
	DefaultSettleDelay       = 2 * time.Second

	// A4 in inches.
	paperWidth  = 8.27
	paperHeight = 11.69

	op = "fetcher.render"
)

var tracer = otel.Tracer("transferai/agreement/fetcher")

// Chrome launches a fresh headless browser for every render so no state
// leaks between agreements. Concurrent renders are bounded.
type Chrome struct {
	navigationTimeout time.Duration
	selectorTimeout   time.Duration
	settleDelay       time.Duration
	execPath          string
	slots             *semaphore.Weighted
	logger            *slog.Logger
}

type Option func(*Chrome)

func WithTimeouts(navigation, selector time.Duration) Option {
	return func(c *Chrome) {
		if navigation > 0 {
			c.navigationTimeout = navigation
		}
		if selector > 0 {
			c.selectorTimeout = selector
		}
	}
}

func WithSettleDelay(d time.Duration) Option {
	return func(c *Chrome) {
		c.settleDelay = d
	}
}

// WithExecPath points at a specific Chrome binary instead of searching PATH.
func WithExecPath(path string) Option {
	return func(c *Chrome) {
		c.execPath = path
	}
}

// WithConcurrency caps how many browsers may run at once.
func WithConcurrency(n int) Option {
	return func(c *Chrome) {
		if n > 0 {
			c.slots = semaphore.NewWeighted(int64(n))
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Chrome) {
		c.logger = logger
	}
}

func New(opts ...Option) *Chrome {
	c := &Chrome{
		navigationTimeout: DefaultNavigationTimeout,
		selectorTimeout:   DefaultSelectorTimeout,
		settleDelay:       DefaultSettleDelay,
		slots:             semaphore.NewWeighted(3),
		logger:            slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Render navigates to req.URL, waits for the network to go idle and for the
// ready selector to become visible, then prints the page as an A4 PDF.
//
// The browser process is torn down on every return path, including caller
// cancellation.
func (c *Chrome) Render(ctx context.Context, req models.RenderRequest) (_ []byte, err error) {
	ctx, span := tracer.Start(ctx, op)
	span.SetAttributes(attribute.String("render.url", req.URL))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, string(upstream.CategoryOf(err)))
		}
		span.End()
	}()

	if err := c.slots.Acquire(ctx, 1); err != nil {
		return nil, upstream.Classify(op, err)
	}
	defer c.slots.Release(1)

	ctx, cancel := withRenderDeadline(ctx, req)
	defer cancel()

	start := time.Now()

	allocOpts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	if c.execPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(c.execPath))
	}
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocOpts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	idle := make(chan struct{}, 1)
	chromedp.ListenTarget(browserCtx, func(ev any) {
		e, ok := ev.(*page.EventLifecycleEvent)
		if !ok {
			return
		}
		switch e.Name {
		case "init":
			select {
			case <-idle:
			default:
			}
		case "networkIdle":
			select {
			case idle <- struct{}{}:
			default:
			}
		}
	})

	navCtx, cancelNav := context.WithTimeout(browserCtx, c.navigationTimeout)
	defer cancelNav()
	if err := chromedp.Run(navCtx,
		page.SetLifecycleEventsEnabled(true),
		chromedp.Navigate(req.URL),
	); err != nil {
		return nil, c.fail(ctx, navCtx, "navigate", req.URL, err)
	}
	select {
	case <-idle:
	case <-navCtx.Done():
		return nil, c.fail(ctx, navCtx, "wait for network idle", req.URL, navCtx.Err())
	}

	if req.ReadySelector != "" {
		selCtx, cancelSel := context.WithTimeout(browserCtx, c.selectorTimeout)
		defer cancelSel()
		if err := chromedp.Run(selCtx, chromedp.WaitVisible(req.ReadySelector, chromedp.BySearch)); err != nil {
			return nil, c.fail(ctx, selCtx, "wait for ready selector", req.URL, err)
		}
	}

	var pdf []byte
	if err := chromedp.Run(browserCtx,
		chromedp.Sleep(c.settleDelay),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			pdf, _, err = page.PrintToPDF().
				WithPrintBackground(true).
				WithPaperWidth(paperWidth).
				WithPaperHeight(paperHeight).
				Do(ctx)
			return err
		}),
	); err != nil {
		return nil, c.fail(ctx, browserCtx, "print to pdf", req.URL, err)
	}
	if len(pdf) == 0 {
		return nil, upstream.NewFetchError(upstream.ErrorBadData, op, "renderer produced an empty document", nil)
	}

	c.logger.InfoContext(ctx, "rendered agreement page",
		"url", req.URL,
		"bytes", len(pdf),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return pdf, nil
}

// withRenderDeadline applies the request's overall timeout, if any. Time spent
// waiting for a browser slot does not count against it.
func withRenderDeadline(ctx context.Context, req models.RenderRequest) (context.Context, context.CancelFunc) {
	if req.Timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, req.Timeout)
}

// fail classifies a browser failure. A step that ran out of its own deadline
// is a timeout even when chromedp reports it as a generic error.
func (c *Chrome) fail(ctx, stepCtx context.Context, step, url string, err error) error {
	var fe *upstream.FetchError
	switch {
	case errors.Is(stepCtx.Err(), context.DeadlineExceeded) || upstream.IsTimeout(err):
		fe = upstream.NewFetchError(upstream.ErrorTimeout, op, step+" timed out", err)
	default:
		fe = upstream.NewFetchError(upstream.ErrorProviderOutage, op, step+" failed", err)
	}
	c.logger.WarnContext(ctx, "render failed",
		"url", url,
		"step", step,
		"category", fe.Category,
		"error", err,
	)
	return fe
}
