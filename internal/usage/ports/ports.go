package ports

import (
	"context"
	"time"

	"transferai/internal/usage/models"
	"transferai/pkg/platform/audit"
)

// Store persists usage records. Implementations return sentinel.ErrNotFound
// for unknown accounts.
type Store interface {
	Get(ctx context.Context, accountID string) (*models.Record, error)

	// Ensure inserts rec unless the account already exists and returns the
	// stored record either way.
	Ensure(ctx context.Context, rec *models.Record) (*models.Record, error)

	// Consume is one atomic step: a period that started before dayStart is
	// reset to a count of 1 starting at now; otherwise the count is
	// incremented only while it is below the tier's limit. When the request
	// is refused the record is left untouched and allowed is false.
	Consume(ctx context.Context, accountID string, limits models.Limits, dayStart, now time.Time) (rec *models.Record, allowed bool, err error)

	SetTier(ctx context.Context, accountID string, tier models.Tier) error
}

// AuditPublisher emits audit events for quota and tier changes.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}
