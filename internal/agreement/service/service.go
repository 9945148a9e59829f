package service

//go:generate mockgen -source=../ports/ports.go -destination=mocks/mocks.go -package=mocks Fetcher,NameResolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"transferai/internal/agreement/metrics"
	"transferai/internal/agreement/models"
	"transferai/internal/agreement/pdf"
	"transferai/internal/agreement/ports"
	"transferai/internal/assist"
	contentmodels "transferai/internal/content/models"
	"transferai/internal/upstream"
	dErrors "transferai/pkg/domain-errors"
	"transferai/pkg/platform/audit"
)

const (
	kindAgreement = "agreement"
	kindIGETC     = "igetc"

	defaultFanOutLimit = 4
	previewBytes       = 256
)

var tracer = otel.Tracer("transferai/agreement/service")

// Service resolves, fetches and caches articulation agreements. A filename is
// fetched at most once per process at a time; across processes the store's
// existence check is the only guard and a duplicate fetch overwrites the same
// filename with equivalent content.
type Service struct {
	resolver  ports.NameResolver
	fetcher   ports.Fetcher
	store     ports.ContentStore
	validator ports.PDFValidator

	siteURL       string
	keyDigest     bool
	fanOutLimit   int
	renderTimeout time.Duration

	inflight       singleflight.Group
	logger         *slog.Logger
	metrics        *metrics.Metrics
	auditPublisher ports.AuditPublisher
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithAuditPublisher(p ports.AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = p
	}
}

// WithSiteURL overrides the site the rendered pages are loaded from.
func WithSiteURL(site string) Option {
	return func(s *Service) {
		s.siteURL = site
	}
}

// WithKeyDigest appends a digest of the raw key to agreement filenames.
func WithKeyDigest(enabled bool) Option {
	return func(s *Service) {
		s.keyDigest = enabled
	}
}

// WithFanOutLimit bounds how many sending institutions are fetched at once.
func WithFanOutLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.fanOutLimit = n
		}
	}
}

// WithRenderTimeout bounds each render as a whole. Zero keeps the fetcher's
// own defaults.
func WithRenderTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.renderTimeout = d
		}
	}
}

func New(resolver ports.NameResolver, fetcher ports.Fetcher, store ports.ContentStore, validator ports.PDFValidator, opts ...Option) *Service {
	s := &Service{
		resolver:    resolver,
		fetcher:     fetcher,
		store:       store,
		validator:   validator,
		siteURL:     assist.DefaultSiteURL,
		fanOutLimit: defaultFanOutLimit,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetOrFetch returns the filename of the stored agreement for key, rendering
// and storing it on a cache miss. On failure the filename is empty and the
// error is an *upstream.FetchError describing why.
func (s *Service) GetOrFetch(ctx context.Context, key models.Key) (string, error) {
	names := s.resolveNames(ctx, key)
	return s.getOrFetch(ctx, key, names, false)
}

// Refresh re-renders the agreement for key and overwrites the stored copy.
// Used for cache repair.
func (s *Service) Refresh(ctx context.Context, key models.Key) (string, error) {
	names := s.resolveNames(ctx, key)
	return s.getOrFetch(ctx, key, names, true)
}

// GetOrFetchMany fetches one agreement per sending institution, substituting
// each id into the major key. Every sending id gets exactly one result, in
// input order; a failure for one never affects the others.
func (s *Service) GetOrFetchMany(ctx context.Context, sendingIDs []int, receivingID, yearID int, rawMajorKey string) ([]models.AgreementResult, error) {
	if len(sendingIDs) == 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "at least one sending institution is required")
	}
	if receivingID <= 0 || yearID <= 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "receiving institution and academic year are required")
	}
	major, err := models.ParseMajorKey(rawMajorKey)
	if err != nil {
		return nil, err
	}

	results := make([]models.AgreementResult, len(sendingIDs))
	var g errgroup.Group
	g.SetLimit(s.fanOutLimit)
	for i, sendingID := range sendingIDs {
		g.Go(func() error {
			results[i] = s.fetchForSending(ctx, sendingID, receivingID, yearID, major)
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, r := range results {
		if r.Failed() {
			failed++
		}
	}
	s.logger.InfoContext(ctx, "multi-institution agreement fetch completed",
		"requested", len(sendingIDs),
		"failed", failed,
	)
	return results, nil
}

// GetOrFetchIGETC returns the stored general-education agreement for a
// sending institution and year.
func (s *Service) GetOrFetchIGETC(ctx context.Context, yearID, sendingID int) (string, error) {
	return s.igetc(ctx, yearID, sendingID, false)
}

// RefreshIGETC re-renders the general-education agreement and overwrites the stored copy.
func (s *Service) RefreshIGETC(ctx context.Context, yearID, sendingID int) (string, error) {
	return s.igetc(ctx, yearID, sendingID, true)
}

func (s *Service) igetc(ctx context.Context, yearID, sendingID int, force bool) (string, error) {
	if yearID <= 0 || sendingID <= 0 {
		return "", dErrors.New(dErrors.CodeInvalidInput, "academic year and sending institution are required")
	}
	sending := s.resolveName(ctx, "sending institution", func() (string, bool, error) {
		return s.resolver.ResolveInstitutionName(ctx, sendingID)
	})
	year := s.resolveName(ctx, "academic year", func() (string, bool, error) {
		return s.resolver.ResolveYearLabel(ctx, yearID)
	})
	filename := models.IGETCFilename(sending, year, yearID, sendingID)
	req := models.RenderRequest{
		URL:           assist.IGETCURL(s.siteURL, yearID, sendingID),
		ReadySelector: models.IGETCReadySelector,
		Timeout:       s.renderTimeout,
	}
	return s.fetchOnce(ctx, kindIGETC, filename, req, force)
}

func (s *Service) fetchForSending(ctx context.Context, sendingID, receivingID, yearID int, major models.MajorKey) (result models.AgreementResult) {
	result.SendingID = sendingID
	defer func() {
		if r := recover(); r != nil {
			s.logger.ErrorContext(ctx, "agreement fetch panicked",
				"sending_id", sendingID,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			result.Filename = nil
			result.Error = FailureMessage(upstream.NewFetchError(upstream.ErrorInternal, "service.fetch", "panic", nil))
		}
	}()

	key := models.Key{
		YearID:      yearID,
		SendingID:   sendingID,
		ReceivingID: receivingID,
		Major:       major.WithSending(sendingID),
	}
	names := s.resolveNames(ctx, key)
	result.SendingName = names.Sending

	filename, err := s.getOrFetch(ctx, key, names, false)
	if err != nil {
		result.Error = FailureMessage(err)
		return result
	}
	result.Filename = &filename
	return result
}

func (s *Service) getOrFetch(ctx context.Context, key models.Key, names models.Names, force bool) (string, error) {
	filename := models.CanonicalFilename(names, key, s.keyDigest)
	req := models.RenderRequest{
		URL: assist.AgreementURL(s.siteURL, key.YearID, key.SendingID, key.ReceivingID, assist.AgreementView{
			ByDepartment: key.Major.Category == models.CategoryDepartment,
			SendingView:  key.Major.SendingView,
			Key:          key.Major.Raw,
		}),
		ReadySelector: models.AgreementReadySelector,
		Timeout:       s.renderTimeout,
	}
	return s.fetchOnce(ctx, kindAgreement, filename, req, force)
}

// fetchOnce collapses concurrent requests for the same filename into one
// exists-check, render and store.
func (s *Service) fetchOnce(ctx context.Context, kind, filename string, req models.RenderRequest, force bool) (string, error) {
	flightKey := filename
	if force {
		flightKey = "refresh:" + filename
	}
	// Shared by every waiter, so the first caller's cancellation must not
	// abort it.
	flightCtx := context.WithoutCancel(ctx)
	v, err, _ := s.inflight.Do(flightKey, func() (any, error) {
		return s.fetchAndStore(flightCtx, kind, filename, req, force)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (s *Service) fetchAndStore(ctx context.Context, kind, filename string, req models.RenderRequest, force bool) (_ string, err error) {
	ctx, span := tracer.Start(ctx, "agreement.fetch")
	span.SetAttributes(
		attribute.String("agreement.kind", kind),
		attribute.String("agreement.filename", filename),
	)
	defer func() {
		if err != nil {
			s.metrics.IncrementFetchFailure(kind, string(upstream.CategoryOf(err)))
			span.RecordError(err)
			span.SetStatus(codes.Error, string(upstream.CategoryOf(err)))
		}
		span.End()
	}()

	if !force {
		exists, err := s.store.Exists(ctx, filename)
		if err != nil {
			s.logger.ErrorContext(ctx, "content store lookup failed", "filename", filename, "error", err)
			return "", upstream.NewFetchError(upstream.ErrorInternal, "service.exists", "content store lookup failed", err)
		}
		s.metrics.IncrementCacheLookup(kind, exists)
		if exists {
			s.logger.DebugContext(ctx, "agreement cache hit", "filename", filename)
			return filename, nil
		}
	}

	start := time.Now()
	data, err := s.fetcher.Render(ctx, req)
	s.metrics.ObserveFetchLatency(kind, time.Since(start))
	if err != nil {
		fe := upstream.Classify("service.render", err)
		s.logger.ErrorContext(ctx, "agreement render failed",
			"filename", filename,
			"url", req.URL,
			"category", fe.Category,
			"retryable", fe.Retryable,
			"error", err,
		)
		return "", fe
	}

	if err := s.validator.Validate(data); err != nil {
		s.logger.ErrorContext(ctx, "rendered agreement is not a valid pdf",
			"filename", filename,
			"url", req.URL,
			"bytes", len(data),
			"preview", pdf.Preview(data, previewBytes),
			"error", err,
		)
		if !errors.Is(err, pdf.ErrMalformed) {
			err = fmt.Errorf("%w: %v", pdf.ErrMalformed, err)
		}
		return "", upstream.NewFetchError(upstream.ErrorBadData, "service.validate", "rendered document is not a valid pdf", err)
	}

	if err := s.store.Put(ctx, &contentmodels.Blob{
		Filename:    filename,
		ContentType: models.ContentTypePDF,
		Data:        data,
	}); err != nil {
		s.logger.ErrorContext(ctx, "storing agreement failed", "filename", filename, "error", err)
		return "", upstream.NewFetchError(upstream.ErrorInternal, "service.store", "storing agreement failed", err)
	}

	if force {
		s.dropPageImages(ctx, filename)
	}

	audit.Log(ctx, s.logger, s.auditPublisher, audit.EventAgreementFetched,
		"filename", filename,
		"kind", kind,
		"bytes", len(data),
		"refreshed", force,
	)
	return filename, nil
}

// dropPageImages removes the page images rendered from the previous version
// of a refreshed document. Failures only leave images the expander will
// regenerate once it sees the new page count.
func (s *Service) dropPageImages(ctx context.Context, pdfFilename string) {
	images, err := s.store.Find(ctx, contentmodels.Query{OriginalPDF: pdfFilename})
	if err != nil {
		s.logger.WarnContext(ctx, "listing page images of refreshed agreement failed",
			"filename", pdfFilename,
			"error", err,
		)
		return
	}
	for _, image := range images {
		if err := s.store.Delete(ctx, image.Filename); err != nil {
			s.logger.WarnContext(ctx, "removing stale page image failed",
				"filename", image.Filename,
				"error", err,
			)
		}
	}
}

// resolveNames resolves every display name for key. Failed or empty lookups
// leave the name blank so the filename falls back to the raw id.
func (s *Service) resolveNames(ctx context.Context, key models.Key) models.Names {
	names := models.Names{
		Sending: s.resolveName(ctx, "sending institution", func() (string, bool, error) {
			return s.resolver.ResolveInstitutionName(ctx, key.SendingID)
		}),
		Receiving: s.resolveName(ctx, "receiving institution", func() (string, bool, error) {
			return s.resolver.ResolveInstitutionName(ctx, key.ReceivingID)
		}),
		Major: s.resolveName(ctx, key.Major.Category.String(), func() (string, bool, error) {
			return s.resolver.ResolveMajorLabel(ctx, key.Major)
		}),
		Year: s.resolveName(ctx, "academic year", func() (string, bool, error) {
			return s.resolver.ResolveYearLabel(ctx, key.YearID)
		}),
	}
	return names.WithFallbacks(key)
}

func (s *Service) resolveName(ctx context.Context, what string, lookup func() (string, bool, error)) string {
	name, ok, err := lookup()
	switch {
	case err != nil:
		s.logger.WarnContext(ctx, "name resolution failed, using fallback", "what", what, "error", err)
		return ""
	case !ok:
		s.logger.InfoContext(ctx, "name not found, using fallback", "what", what)
		return ""
	}
	return name
}

// FailureMessage renders a client-safe reason for a failed fetch.
func FailureMessage(err error) string {
	switch upstream.CategoryOf(err) {
	case upstream.ErrorTimeout:
		return "agreement not available: the source timed out, try again later"
	case upstream.ErrorProviderOutage:
		return "agreement not available: the source is unreachable, try again later"
	case upstream.ErrorNotFound:
		return "agreement not found"
	default:
		return "agreement not available"
	}
}

// ToDomainError translates a fetch failure into a coded error for transports.
func ToDomainError(err error) error {
	if err == nil {
		return nil
	}
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	switch upstream.CategoryOf(err) {
	case upstream.ErrorTimeout:
		return dErrors.Wrap(err, dErrors.CodeTimeout, FailureMessage(err))
	case upstream.ErrorProviderOutage, upstream.ErrorBadData:
		return dErrors.Wrap(err, dErrors.CodeUnavailable, FailureMessage(err))
	case upstream.ErrorNotFound:
		return dErrors.Wrap(err, dErrors.CodeNotFound, FailureMessage(err))
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, FailureMessage(err))
	}
}
