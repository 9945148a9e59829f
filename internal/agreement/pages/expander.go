// Package pages rasterizes stored PDFs into per-page images and keeps the
// resulting image sets complete.
package pages

import (
	"context"
	"crypto/sha256"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"transferai/internal/agreement/metrics"
	"transferai/internal/agreement/models"
	"transferai/internal/agreement/ports"
	contentmodels "transferai/internal/content/models"
	dErrors "transferai/pkg/domain-errors"
	"transferai/pkg/platform/audit"
	"transferai/pkg/platform/sentinel"
)

// DefaultScale renders pages at twice the PDF's native resolution.
const DefaultScale = 2.0

// Expander produces page images for stored PDFs on demand. Page counts are
// memoized per document content, so a PDF overwritten under the same
// filename is counted again.
type Expander struct {
	store      ports.ContentStore
	rasterizer ports.PageRasterizer
	scale      float64

	mu         sync.RWMutex
	pageCounts map[[sha256.Size]byte]int

	inflight       singleflight.Group
	logger         *slog.Logger
	metrics        *metrics.Metrics
	auditPublisher ports.AuditPublisher
}

type Option func(*Expander)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Expander) {
		e.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Expander) {
		e.metrics = m
	}
}

func WithAuditPublisher(p ports.AuditPublisher) Option {
	return func(e *Expander) {
		e.auditPublisher = p
	}
}

func WithScale(scale float64) Option {
	return func(e *Expander) {
		if scale > 0 {
			e.scale = scale
		}
	}
}

func New(store ports.ContentStore, rasterizer ports.PageRasterizer, opts ...Option) *Expander {
	e := &Expander{
		store:      store,
		rasterizer: rasterizer,
		scale:      DefaultScale,
		pageCounts: make(map[[sha256.Size]byte]int),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// GetOrGenerate returns the page image filenames of pdfFilename in page order.
// A stored set is reused only when it covers every page exactly once;
// anything else is regenerated from the source document.
func (e *Expander) GetOrGenerate(ctx context.Context, pdfFilename string) ([]string, error) {
	if pdfFilename == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "pdf filename is required")
	}

	existing, err := e.findImages(ctx, pdfFilename)
	if err != nil {
		return nil, err
	}

	count, source, err := e.pageCount(ctx, pdfFilename)
	if err != nil {
		return nil, err
	}

	complete := isComplete(existing, count)
	e.metrics.IncrementPageSetCheck(complete)
	if complete {
		return filenames(existing), nil
	}

	e.logger.InfoContext(ctx, "page image set incomplete, regenerating",
		"pdf", pdfFilename,
		"expected_pages", count,
		"found_images", len(existing),
	)

	// The flight outlives any one caller; waiters must not fail because the
	// first of them went away.
	flightCtx := context.WithoutCancel(ctx)
	v, err, _ := e.inflight.Do(pdfFilename, func() (any, error) {
		return e.regenerate(flightCtx, pdfFilename, source, count)
	})
	if err != nil {
		return nil, err
	}
	return v.([]string), nil
}

func (e *Expander) regenerate(ctx context.Context, pdfFilename string, source []byte, count int) ([]string, error) {
	out := make([]string, 0, count)
	for page := 0; page < count; page++ {
		name := models.PageImageFilename(pdfFilename, page)
		png, err := e.rasterizer.RenderPage(source, page, e.scale)
		if err != nil {
			e.metrics.IncrementPageSkipped()
			e.logger.ErrorContext(ctx, "rasterizing page failed, skipping",
				"pdf", pdfFilename,
				"page", page,
				"error", err,
			)
			continue
		}
		if err := e.store.Put(ctx, &contentmodels.Blob{
			Filename:    name,
			ContentType: models.ContentTypePNG,
			Data:        png,
			Page:        &contentmodels.PageRef{OriginalPDF: pdfFilename, PageNumber: page},
		}); err != nil {
			e.metrics.IncrementPageSkipped()
			e.logger.ErrorContext(ctx, "storing page image failed, skipping",
				"pdf", pdfFilename,
				"page", page,
				"error", err,
			)
			continue
		}
		out = append(out, name)
	}

	if err := e.removeStale(ctx, pdfFilename, count); err != nil {
		e.logger.WarnContext(ctx, "removing stale page images failed", "pdf", pdfFilename, "error", err)
	}

	if len(out) == 0 && count > 0 {
		return nil, dErrors.New(dErrors.CodeUnavailable, "page images could not be generated")
	}

	e.metrics.AddPagesGenerated(len(out))
	audit.Log(ctx, e.logger, e.auditPublisher, audit.EventPagesGenerated,
		"pdf", pdfFilename,
		"pages", count,
		"generated", len(out),
	)
	return out, nil
}

// removeStale deletes images whose page index is past the end of the source
// document, left behind by an earlier, longer version of it.
func (e *Expander) removeStale(ctx context.Context, pdfFilename string, count int) error {
	images, err := e.findImages(ctx, pdfFilename)
	if err != nil {
		return err
	}
	var errs []error
	for _, img := range images {
		if img.Page.PageNumber < count && img.Filename == models.PageImageFilename(pdfFilename, img.Page.PageNumber) {
			continue
		}
		if err := e.store.Delete(ctx, img.Filename); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (e *Expander) findImages(ctx context.Context, pdfFilename string) ([]contentmodels.BlobInfo, error) {
	images, err := e.store.Find(ctx, contentmodels.Query{
		OriginalPDF: pdfFilename,
		ContentType: models.ContentTypePNG,
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list page images")
	}
	return images, nil
}

// pageCount loads the source document and returns its page count, parsing it
// only for content not seen before. The source is returned for regeneration.
func (e *Expander) pageCount(ctx context.Context, pdfFilename string) (int, []byte, error) {
	source, err := e.loadSource(ctx, pdfFilename)
	if err != nil {
		return 0, nil, err
	}
	digest := sha256.Sum256(source)

	e.mu.RLock()
	count, ok := e.pageCounts[digest]
	e.mu.RUnlock()
	if ok {
		return count, source, nil
	}

	count, err = e.rasterizer.PageCount(source)
	if err != nil {
		e.logger.ErrorContext(ctx, "reading stored pdf failed", "pdf", pdfFilename, "error", err)
		return 0, nil, dErrors.Wrap(err, dErrors.CodeInternal, "stored document could not be read")
	}

	e.mu.Lock()
	e.pageCounts[digest] = count
	e.mu.Unlock()
	return count, source, nil
}

// loadSource reads the stored document. Blobs that are not PDFs (page images,
// for one) are reported as missing documents.
func (e *Expander) loadSource(ctx context.Context, pdfFilename string) ([]byte, error) {
	blob, err := e.store.Get(ctx, pdfFilename)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "pdf not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load pdf")
	}
	if blob.ContentType != models.ContentTypePDF {
		e.logger.WarnContext(ctx, "page images requested for a non-pdf blob",
			"filename", pdfFilename,
			"content_type", blob.ContentType,
		)
		return nil, dErrors.New(dErrors.CodeNotFound, "pdf not found")
	}
	return blob.Data, nil
}

// isComplete reports whether images hold exactly pages 0..count-1. images
// must be sorted by page number.
func isComplete(images []contentmodels.BlobInfo, count int) bool {
	if len(images) != count {
		return false
	}
	for i, img := range images {
		if img.Page == nil || img.Page.PageNumber != i {
			return false
		}
	}
	return true
}

func filenames(images []contentmodels.BlobInfo) []string {
	out := make([]string, len(images))
	for i, img := range images {
		out[i] = img.Filename
	}
	return out
}
