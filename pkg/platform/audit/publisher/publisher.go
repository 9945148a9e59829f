// Package publisher writes audit events to an audit.Store, either inline or
// through a bounded buffer drained by a background goroutine.
package publisher

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	audit "transferai/pkg/platform/audit"
)

// ErrBufferFull is returned by Emit when the async buffer cannot take more events.
var ErrBufferFull = errors.New("audit buffer full")

var dropped = promauto.NewCounter(prometheus.CounterOpts{
	Name: "transferai_audit_store_dropped_total",
	Help: "Audit events dropped because the async buffer was full or the store failed",
})

type Publisher struct {
	store  audit.Store
	logger *slog.Logger

	buffer int
	inbox  chan audit.Event
	wg     sync.WaitGroup
	once   sync.Once
}

type Option func(*Publisher)

// WithAsyncBuffer makes Emit enqueue into a buffer of n events instead of
// writing inline.
func WithAsyncBuffer(n int) Option {
	return func(p *Publisher) {
		p.buffer = n
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func NewPublisher(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	if p.buffer > 0 {
		p.inbox = make(chan audit.Event, p.buffer)
		p.wg.Add(1)
		go p.drain()
	}
	return p
}

// Emit stores event, stamping it when Timestamp is zero. In async mode it
// never blocks: a full buffer drops the event and returns ErrBufferFull.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if p.inbox == nil {
		return p.store.Append(ctx, event)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case p.inbox <- event:
		return nil
	default:
		dropped.Inc()
		return ErrBufferFull
	}
}

func (p *Publisher) drain() {
	defer p.wg.Done()
	for event := range p.inbox {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := p.store.Append(ctx, event); err != nil {
			dropped.Inc()
			p.logger.Warn("failed to store audit event", "action", event.Action, "error", err)
		}
		cancel()
	}
}

// List returns the account's stored events, oldest first.
func (p *Publisher) List(ctx context.Context, accountID string) ([]audit.Event, error) {
	return p.store.ListByAccount(ctx, accountID, 0)
}

// Close stops accepting events and waits for the buffer to drain. The
// context bounds the wait. Emit must not be called after Close.
func (p *Publisher) Close(ctx context.Context) error {
	if p.inbox == nil {
		return nil
	}
	p.once.Do(func() { close(p.inbox) })

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
