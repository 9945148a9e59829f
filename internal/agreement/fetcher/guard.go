package fetcher

import (
	"context"
	"log/slog"

	"transferai/internal/agreement/models"
	"transferai/internal/agreement/ports"
	"transferai/internal/upstream"
	"transferai/pkg/platform/circuit"
)

const opGuard = "fetcher.guard"

type circuitMetrics interface {
	SetRenderCircuitOpen(open bool)
}

// Guarded stops sending renders to an upstream that keeps timing out or
// failing. Bad content and missing pages are answers from a healthy upstream
// and do not count against it.
type Guarded struct {
	next    ports.Fetcher
	breaker *circuit.Breaker
	metrics circuitMetrics
	logger  *slog.Logger
}

func NewGuarded(next ports.Fetcher, breaker *circuit.Breaker, m circuitMetrics, logger *slog.Logger) *Guarded {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guarded{next: next, breaker: breaker, metrics: m, logger: logger}
}

func (g *Guarded) Render(ctx context.Context, req models.RenderRequest) ([]byte, error) {
	if !g.breaker.Allow() {
		return nil, upstream.NewFetchError(upstream.ErrorProviderOutage, opGuard,
			"upstream is failing repeatedly; renders paused", nil)
	}

	data, err := g.next.Render(ctx, req)
	switch {
	case err == nil:
		g.success(ctx)
	case ctx.Err() != nil:
		// The caller gave up; says nothing about the upstream.
	default:
		switch upstream.CategoryOf(err) {
		case upstream.ErrorTimeout, upstream.ErrorProviderOutage:
			g.failure(ctx, err)
		default:
			g.success(ctx)
		}
	}
	return data, err
}

func (g *Guarded) failure(ctx context.Context, err error) {
	if _, change := g.breaker.RecordFailure(); change.Opened {
		g.logger.WarnContext(ctx, "render circuit opened",
			"breaker", g.breaker.Name(),
			"error", err,
		)
		if g.metrics != nil {
			g.metrics.SetRenderCircuitOpen(true)
		}
	}
}

func (g *Guarded) success(ctx context.Context) {
	if _, change := g.breaker.RecordSuccess(); change.Closed {
		g.logger.InfoContext(ctx, "render circuit closed", "breaker", g.breaker.Name())
		if g.metrics != nil {
			g.metrics.SetRenderCircuitOpen(false)
		}
	}
}
