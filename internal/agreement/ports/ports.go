// Package ports defines the collaborators the agreement pipeline depends on.
package ports

import (
	"context"

	"transferai/internal/agreement/models"
	contentmodels "transferai/internal/content/models"
	"transferai/pkg/platform/audit"
)

// Fetcher renders an upstream page to PDF bytes. Failures are *upstream.FetchError
// so callers can tell a transient failure from malformed content.
type Fetcher interface {
	Render(ctx context.Context, req models.RenderRequest) ([]byte, error)
}

// ContentStore is the blob store shared by agreements and page images.
type ContentStore interface {
	Exists(ctx context.Context, filename string) (bool, error)
	Put(ctx context.Context, blob *contentmodels.Blob) error
	Get(ctx context.Context, filename string) (*contentmodels.Blob, error)
	Find(ctx context.Context, q contentmodels.Query) ([]contentmodels.BlobInfo, error)
	Delete(ctx context.Context, filename string) error
}

// NameResolver maps raw ids to display names. ok=false with a nil error means
// the lookup succeeded but had no matching entry.
type NameResolver interface {
	ResolveInstitutionName(ctx context.Context, id int) (name string, ok bool, err error)
	ResolveYearLabel(ctx context.Context, yearID int) (label string, ok bool, err error)
	ResolveMajorLabel(ctx context.Context, key models.MajorKey) (label string, ok bool, err error)
}

// PDFValidator rejects bytes that are not a usable PDF.
type PDFValidator interface {
	Validate(data []byte) error
}

// PageRasterizer counts and renders PDF pages.
type PageRasterizer interface {
	PageCount(data []byte) (int, error)
	RenderPage(data []byte, page int, scale float64) ([]byte, error)
}

// AuditPublisher emits audit events for notable pipeline operations.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}
