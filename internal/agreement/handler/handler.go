package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"transferai/internal/agreement/models"
	"transferai/internal/agreement/service"
	contentmodels "transferai/internal/content/models"
	dErrors "transferai/pkg/domain-errors"
	"transferai/pkg/platform/httputil"
	"transferai/pkg/platform/sentinel"
	"transferai/pkg/requestcontext"
)

const (
	immutableCacheControl = "public, immutable, max-age=31536000"
	catalogCacheControl   = "public, max-age=3600"
)

// Agreements is the part of the agreement service the handler drives.
type Agreements interface {
	GetOrFetchMany(ctx context.Context, sendingIDs []int, receivingID, yearID int, rawMajorKey string) ([]models.AgreementResult, error)
	GetOrFetchIGETC(ctx context.Context, yearID, sendingID int) (string, error)
}

// Pages expands a stored PDF into page images.
type Pages interface {
	GetOrGenerate(ctx context.Context, pdfFilename string) ([]string, error)
}

// Catalog lists the selectable institutions, years and majors.
type Catalog interface {
	SendingInstitutions(ctx context.Context) (map[string]int, error)
	ReceivingInstitutions(ctx context.Context, sendingID int) (map[string]int, error)
	AgreementYears(ctx context.Context, sendingID, receivingID int) (map[string]int, error)
	Majors(ctx context.Context, sendingID, receivingID, yearID int, category string) (map[string]string, error)
}

// Blobs reads stored documents for direct serving.
type Blobs interface {
	Get(ctx context.Context, filename string) (*contentmodels.Blob, error)
}

type bytesServed interface {
	AddBytesServed(contentType string, n int)
}

// Handler wires the agreement, page and catalog endpoints.
type Handler struct {
	agreements Agreements
	pages      Pages
	catalog    Catalog
	blobs      Blobs
	logger     *slog.Logger
	served     bytesServed
}

// New constructs an agreement handler. served may be nil.
func New(agreements Agreements, pages Pages, catalog Catalog, blobs Blobs, logger *slog.Logger, served bytesServed) *Handler {
	return &Handler{
		agreements: agreements,
		pages:      pages,
		catalog:    catalog,
		blobs:      blobs,
		logger:     logger,
		served:     served,
	}
}

// Register mounts the public endpoints.
func (h *Handler) Register(r chi.Router) {
	r.Get("/institutions", h.HandleInstitutions)
	r.Get("/receiving-institutions", h.HandleReceivingInstitutions)
	r.Get("/academic-years", h.HandleAcademicYears)
	r.Get("/majors", h.HandleMajors)
	r.Post("/articulation-agreements", h.HandleAgreements)
	r.Get("/pdf-images/{filename}", h.HandlePageImages)
	r.Get("/image/{filename}", h.HandleImage)
	r.Get("/pdf/{filename}", h.HandlePDF)
}

// RegisterAuthenticated mounts the endpoints that need a signed-in account.
// The caller installs the auth middleware on r.
func (h *Handler) RegisterAuthenticated(r chi.Router) {
	r.Get("/igetc-agreement", h.HandleIGETC)
}

// HandleAgreements handles POST /articulation-agreements.
func (h *Handler) HandleAgreements(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	req, ok := httputil.DecodeAndPrepare[AgreementsRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	results, err := h.agreements.GetOrFetchMany(ctx, req.SendingIDs, req.ReceivingID, req.YearID, req.MajorKey)
	if err != nil {
		h.logger.ErrorContext(ctx, "agreement fan-out failed",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	status, resp := fromResults(results)
	h.logger.InfoContext(ctx, "agreements served",
		"request_id", requestID,
		"requested", len(req.SendingIDs),
		"failed", len(resp.Warnings),
		"status", status,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, status, resp)
}

// HandleIGETC handles GET /igetc-agreement.
func (h *Handler) HandleIGETC(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	if requestcontext.AccountID(ctx) == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}
	q := r.URL.Query()
	yearID, err := positiveInt(q, "academicYearId")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	sendingID, err := positiveInt(q, "sendingId")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	filename, err := h.agreements.GetOrFetchIGETC(ctx, yearID, sendingID)
	if err != nil {
		h.logger.ErrorContext(ctx, "igetc fetch failed",
			"request_id", requestID,
			"sending_id", sendingID,
			"year_id", yearID,
			"error", err,
		)
		httputil.WriteError(w, service.ToDomainError(err))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, IGETCResponse{PDFFilename: filename})
}

// HandlePageImages handles GET /pdf-images/{filename}.
func (h *Handler) HandlePageImages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	filename, err := pathFilename(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	images, err := h.pages.GetOrGenerate(ctx, filename)
	if err != nil {
		h.logger.ErrorContext(ctx, "page expansion failed",
			"request_id", requestID,
			"filename", filename,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "page images served",
		"request_id", requestID,
		"filename", filename,
		"pages", len(images),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, PageImagesResponse{ImageFilenames: images})
}

// HandleImage handles GET /image/{filename}.
func (h *Handler) HandleImage(w http.ResponseWriter, r *http.Request) {
	h.serveBlob(w, r, func(ct string) bool { return strings.HasPrefix(ct, "image/") })
}

// HandlePDF handles GET /pdf/{filename}.
func (h *Handler) HandlePDF(w http.ResponseWriter, r *http.Request) {
	h.serveBlob(w, r, func(ct string) bool { return ct == models.ContentTypePDF })
}

func (h *Handler) serveBlob(w http.ResponseWriter, r *http.Request, accept func(contentType string) bool) {
	ctx := r.Context()

	filename, err := pathFilename(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	blob, err := h.blobs.Get(ctx, filename)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "file not found"))
			return
		}
		h.logger.ErrorContext(ctx, "failed to load blob",
			"request_id", requestcontext.RequestID(ctx),
			"filename", filename,
			"error", err,
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load file"))
		return
	}
	if !accept(blob.ContentType) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "file not found"))
		return
	}

	w.Header().Set("Content-Type", blob.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(blob.Data)))
	w.Header().Set("Cache-Control", immutableCacheControl)
	w.WriteHeader(http.StatusOK)
	n, _ := w.Write(blob.Data)
	if h.served != nil {
		h.served.AddBytesServed(blob.ContentType, n)
	}
}

// HandleInstitutions handles GET /institutions.
func (h *Handler) HandleInstitutions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	institutions, err := h.catalog.SendingInstitutions(ctx)
	if err != nil {
		h.catalogFailure(ctx, "institutions", err)
		httputil.WriteError(w, service.ToDomainError(err))
		return
	}
	w.Header().Set("Cache-Control", catalogCacheControl)
	httputil.WriteJSON(w, http.StatusOK, institutions)
}

// HandleReceivingInstitutions handles GET /receiving-institutions?sendingId=1,2.
// The result is the set of institutions every sender has agreements with.
func (h *Handler) HandleReceivingInstitutions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sendingIDs, err := idList(r.URL.Query(), "sendingId")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	listings, warnings, lastErr := h.collect(ctx, sendingIDs, 0, func(id int) (map[string]int, error) {
		return h.catalog.ReceivingInstitutions(ctx, id)
	})
	if len(listings) == 0 {
		httputil.WriteError(w, service.ToDomainError(lastErr))
		return
	}

	result := intersect(listings)
	w.Header().Set("Cache-Control", catalogCacheControl)
	if len(warnings) > 0 {
		httputil.WriteJSON(w, http.StatusMultiStatus, ReceivingInstitutionsResponse{Institutions: result, Warnings: warnings})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

// HandleAcademicYears handles GET /academic-years?sendingId=1,2&receivingId=3.
func (h *Handler) HandleAcademicYears(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	sendingIDs, err := idList(q, "sendingId")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	receivingID, err := positiveInt(q, "receivingId")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	listings, warnings, lastErr := h.collect(ctx, sendingIDs, receivingID, func(id int) (map[string]int, error) {
		return h.catalog.AgreementYears(ctx, id, receivingID)
	})
	if len(listings) == 0 {
		httputil.WriteError(w, service.ToDomainError(lastErr))
		return
	}

	result := intersect(listings)
	w.Header().Set("Cache-Control", catalogCacheControl)
	if len(warnings) > 0 {
		httputil.WriteJSON(w, http.StatusMultiStatus, AcademicYearsResponse{Years: result, Warnings: warnings})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

// HandleMajors handles GET /majors.
func (h *Handler) HandleMajors(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	sendingID, err := positiveInt(q, "sendingId")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	receivingID, err := positiveInt(q, "receivingId")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	yearID, err := positiveInt(q, "academicYearId")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	category := strings.TrimSpace(q.Get("categoryCode"))
	switch category {
	case "":
		category = models.CategoryMajor.Code()
	case models.CategoryMajor.Code(), models.CategoryDepartment.Code():
	default:
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "categoryCode must be 'major' or 'dept'"))
		return
	}

	majors, err := h.catalog.Majors(ctx, sendingID, receivingID, yearID, category)
	if err != nil {
		h.catalogFailure(ctx, "majors", err)
		httputil.WriteError(w, service.ToDomainError(err))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, majors)
}

// collect runs one listing per sending id, keeping the successes and a
// warning per failure.
func (h *Handler) collect(ctx context.Context, sendingIDs []int, receivingID int, list func(id int) (map[string]int, error)) ([]map[string]int, []CatalogWarning, error) {
	var (
		listings []map[string]int
		warnings []CatalogWarning
		lastErr  error
	)
	for _, id := range sendingIDs {
		listing, err := list(id)
		if err != nil {
			h.catalogFailure(ctx, "listing", err, "sending_id", id)
			warnings = append(warnings, CatalogWarning{
				SendingID:   id,
				ReceivingID: receivingID,
				Error:       service.FailureMessage(err),
			})
			lastErr = err
			continue
		}
		listings = append(listings, listing)
	}
	return listings, warnings, lastErr
}

func (h *Handler) catalogFailure(ctx context.Context, what string, err error, attrs ...any) {
	args := append([]any{"request_id", requestcontext.RequestID(ctx), "what", what, "error", err}, attrs...)
	h.logger.ErrorContext(ctx, "catalog lookup failed", args...)
}

func pathFilename(r *http.Request) (string, error) {
	raw := chi.URLParam(r, "filename")
	filename, err := url.PathUnescape(raw)
	if err != nil || strings.TrimSpace(filename) == "" {
		return "", dErrors.New(dErrors.CodeBadRequest, "invalid filename")
	}
	return filename, nil
}
