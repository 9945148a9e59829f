package ports

import (
	"context"
	"time"

	"transferai/internal/coursemap/models"
	"transferai/pkg/platform/audit"
)

// Store persists course maps. Every lookup is scoped to the owner: a map that
// belongs to someone else is reported as sentinel.ErrNotFound.
type Store interface {
	Create(ctx context.Context, m *models.CourseMap) error

	// List returns the owner's maps, most recently updated first.
	List(ctx context.Context, ownerID string) ([]models.Summary, error)

	Get(ctx context.Context, ownerID, id string) (*models.CourseMap, error)

	// Update applies u and stamps the map with now in one step.
	Update(ctx context.Context, ownerID, id string, u models.Update, now time.Time) (*models.CourseMap, error)

	Delete(ctx context.Context, ownerID, id string) error
}

// AuditPublisher emits audit events for saved and deleted maps.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}
