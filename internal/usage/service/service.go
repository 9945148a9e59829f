package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"transferai/internal/usage/metrics"
	"transferai/internal/usage/models"
	"transferai/internal/usage/ports"
	dErrors "transferai/pkg/domain-errors"
	"transferai/pkg/email"
	"transferai/pkg/platform/audit"
	"transferai/pkg/platform/sentinel"
	"transferai/pkg/requestcontext"
)

// Ledger meters requests against per-tier daily limits. The store performs
// the check and the increment as one step, so concurrent requests of one
// account can never push its count past the limit.
type Ledger struct {
	store          ports.Store
	limits         models.Limits
	logger         *slog.Logger
	metrics        *metrics.Metrics
	auditPublisher ports.AuditPublisher
}

type Option func(*Ledger)

func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Ledger) {
		l.metrics = m
	}
}

func WithAuditPublisher(p ports.AuditPublisher) Option {
	return func(l *Ledger) {
		l.auditPublisher = p
	}
}

// WithLimits overrides the default tier limits.
func WithLimits(limits models.Limits) Option {
	return func(l *Ledger) {
		l.limits = limits
	}
}

func New(store ports.Store, opts ...Option) (*Ledger, error) {
	if store == nil {
		return nil, fmt.Errorf("usage store is required")
	}
	l := &Ledger{
		store:  store,
		limits: models.DefaultLimits,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.limits.Free < 0 || l.limits.Premium < 0 {
		return nil, fmt.Errorf("tier limits must not be negative")
	}
	return l, nil
}

// CheckAndConsume counts one request for accountID if it is within its
// tier's limit. A refused request is a Decision with Allowed=false, not an
// error; errors are reserved for unknown accounts and store failures.
func (l *Ledger) CheckAndConsume(ctx context.Context, accountID string) (*models.Decision, error) {
	if accountID == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	now := requestcontext.Now(ctx).UTC()

	rec, allowed, err := l.store.Consume(ctx, accountID, l.limits, models.DayStart(now), now)
	if err != nil {
		return nil, l.storeError(err, "failed to record usage")
	}

	limit := l.limits.For(rec.Tier)
	used := rec.UsedAt(now)
	decision := &models.Decision{
		Allowed:   allowed,
		Tier:      rec.Tier,
		Limit:     limit,
		Used:      used,
		Remaining: max(limit-used, 0),
		ResetAt:   models.NextReset(now),
	}
	l.metrics.IncrementRequest(rec.Tier.String(), allowed)

	if !allowed {
		audit.Log(ctx, l.logger, l.auditPublisher, audit.EventQuotaExceeded,
			"account_id", accountID,
			"tier", rec.Tier.String(),
			"limit", limit,
			"used", used,
		)
	}
	return decision, nil
}

// Status reports usage without consuming. A period that began on an earlier
// UTC day is shown with a count of zero.
func (l *Ledger) Status(ctx context.Context, accountID string) (*models.Status, error) {
	if accountID == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	now := requestcontext.Now(ctx).UTC()

	rec, err := l.store.Get(ctx, accountID)
	if err != nil {
		return nil, l.storeError(err, "failed to load usage")
	}
	return &models.Status{
		Tier:       rec.Tier,
		UsageCount: rec.UsedAt(now),
		UsageLimit: l.limits.For(rec.Tier),
		ResetTime:  models.NextReset(now),
	}, nil
}

// EnsureAccount creates the usage record for a first-time caller on the free
// tier. Existing records are returned unchanged.
func (l *Ledger) EnsureAccount(ctx context.Context, identity models.Identity) (*models.Record, error) {
	if identity.Subject == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "identity subject is required")
	}
	rec, err := l.store.Get(ctx, identity.Subject)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load account")
	}

	name := identity.Name
	if name == "" {
		name = email.DisplayName(identity.Email)
	}
	now := requestcontext.Now(ctx).UTC()
	rec, err = l.store.Ensure(ctx, &models.Record{
		AccountID:   identity.Subject,
		Email:       identity.Email,
		Name:        name,
		Tier:        models.TierFree,
		PeriodStart: now,
		CreatedAt:   now,
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create account")
	}

	l.metrics.IncrementAccountCreated()
	audit.Log(ctx, l.logger, l.auditPublisher, audit.EventAccountCreated,
		"account_id", identity.Subject,
		"tier", rec.Tier.String(),
	)
	return rec, nil
}

// UpdateTier moves an account to tier. It is the hook billing integrations
// call; the new limit applies from the next request.
func (l *Ledger) UpdateTier(ctx context.Context, accountID string, tier models.Tier) error {
	if accountID == "" {
		return dErrors.New(dErrors.CodeBadRequest, "account_id is required")
	}
	if !tier.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "invalid tier")
	}
	if err := l.store.SetTier(ctx, accountID, tier); err != nil {
		return l.storeError(err, "failed to update tier")
	}

	l.metrics.IncrementTierChange(tier.String())
	audit.Log(ctx, l.logger, l.auditPublisher, audit.EventTierUpdated,
		"account_id", accountID,
		"tier", tier.String(),
	)
	return nil
}

// Limits returns the configured tier limits.
func (l *Ledger) Limits() models.Limits {
	return l.limits
}

func (l *Ledger) storeError(err error, message string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, "account not found")
	case errors.Is(err, sentinel.ErrInvalidState):
		return dErrors.Wrap(err, dErrors.CodeValidation, message)
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, message)
	}
}
