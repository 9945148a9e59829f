package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"transferai/internal/agreement/models"
	"transferai/internal/agreement/pdf"
	"transferai/internal/agreement/service/mocks"
	contentmodels "transferai/internal/content/models"
	"transferai/internal/content/store/memory"
	"transferai/internal/upstream"
	dErrors "transferai/pkg/domain-errors"
)

var validPDF = []byte("%PDF-1.7\n1 0 obj\n<<>>\nendobj\n%%EOF")

// headerValidator accepts anything with a PDF header. Page counting needs a
// real document and is covered in the pdf package.
type headerValidator struct{}

func (headerValidator) Validate(data []byte) error {
	if !strings.HasPrefix(string(data), "%PDF-") {
		return pdf.ErrMalformed
	}
	return nil
}

type stubResolver struct {
	institutions map[int]string
	years        map[int]string
	majors       map[string]string
	err          error
}

func (r *stubResolver) ResolveInstitutionName(_ context.Context, id int) (string, bool, error) {
	if r.err != nil {
		return "", false, r.err
	}
	name, ok := r.institutions[id]
	return name, ok, nil
}

func (r *stubResolver) ResolveYearLabel(_ context.Context, yearID int) (string, bool, error) {
	if r.err != nil {
		return "", false, r.err
	}
	label, ok := r.years[yearID]
	return label, ok, nil
}

func (r *stubResolver) ResolveMajorLabel(_ context.Context, key models.MajorKey) (string, bool, error) {
	if r.err != nil {
		return "", false, r.err
	}
	label, ok := r.majors[key.Identifier]
	return label, ok, nil
}

// Justification for unit tests: the service owns the cache-or-fetch contract.
// Call counts on the fetcher are the observable proof of idempotency, and the
// store contents prove nothing malformed is ever cached.
type ServiceSuite struct {
	suite.Suite
	ctrl     *gomock.Controller
	fetcher  *mocks.MockFetcher
	store    *memory.InMemoryStore
	resolver *stubResolver
	service  *Service
	ctx      context.Context
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.fetcher = mocks.NewMockFetcher(s.ctrl)
	s.store = memory.New()
	s.resolver = &stubResolver{
		institutions: map[int]string{
			61: "Diablo Valley College",
			62: "Contra Costa College",
			63: "Los Medanos College",
			79: "University of California, Berkeley",
		},
		years:  map[int]string{75: "2024-2025"},
		majors: map[string]string{"abc": "Computer Science, B.A."},
	}
	s.service = New(s.resolver, s.fetcher, s.store, headerValidator{})
	s.ctx = context.Background()
}

func (s *ServiceSuite) key(sendingID int) models.Key {
	k, err := models.NewKey(75, sendingID, 79, "75/61/to/79/Major/abc")
	s.Require().NoError(err)
	return k
}

func (s *ServiceSuite) TestGetOrFetch() {
	s.Run("second call is a cache hit with no render", func() {
		s.fetcher.EXPECT().Render(gomock.Any(), gomock.Any()).Return(validPDF, nil).Times(1)

		first, err := s.service.GetOrFetch(s.ctx, s.key(61))
		s.Require().NoError(err)
		second, err := s.service.GetOrFetch(s.ctx, s.key(61))
		s.Require().NoError(err)

		s.Equal(first, second)
		s.Equal("Diablo_Valley_College_to_University_of_California,_Berkeley_Computer_Science,_B.A._2024-2025.pdf", first)

		blob, err := s.store.Get(s.ctx, first)
		s.Require().NoError(err)
		s.Equal(models.ContentTypePDF, blob.ContentType)
		s.Nil(blob.Page)
	})

	s.Run("render request targets the agreement page", func() {
		s.fetcher.EXPECT().Render(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, req models.RenderRequest) ([]byte, error) {
				s.Contains(req.URL, "year=75&institution=62&agreement=79")
				s.Contains(req.URL, "viewBy=major")
				s.Contains(req.URL, "viewByKey=75/62/to/79/Major/abc")
				s.Equal(models.AgreementReadySelector, req.ReadySelector)
				return validPDF, nil
			})

		_, err := s.service.GetOrFetch(s.ctx, s.key(62))
		s.Require().NoError(err)
	})
}

func (s *ServiceSuite) TestConcurrentCallersShareOneRender() {
	s.fetcher.EXPECT().Render(gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, models.RenderRequest) ([]byte, error) {
			time.Sleep(20 * time.Millisecond)
			return validPDF, nil
		}).Times(1)

	var wg sync.WaitGroup
	filenames := make([]string, 8)
	for i := range filenames {
		wg.Add(1)
		go func() {
			defer wg.Done()
			name, err := s.service.GetOrFetch(s.ctx, s.key(61))
			s.NoError(err)
			filenames[i] = name
		}()
	}
	wg.Wait()

	for _, name := range filenames {
		s.Equal(filenames[0], name)
	}
}

func (s *ServiceSuite) TestMalformedPDFIsNeverStored() {
	html := []byte("<!DOCTYPE html><html><body>502 Bad Gateway</body></html>")

	s.Run("with the header check", func() {
		s.fetcher.EXPECT().Render(gomock.Any(), gomock.Any()).Return(html, nil)

		name, err := s.service.GetOrFetch(s.ctx, s.key(61))
		s.Empty(name)
		s.Equal(upstream.ErrorBadData, upstream.CategoryOf(err))
		s.ErrorIs(err, pdf.ErrMalformed)

		infos, err := s.store.Find(s.ctx, contentQueryAll())
		s.Require().NoError(err)
		s.Empty(infos)
	})

	s.Run("with the mupdf validator", func() {
		svc := New(s.resolver, s.fetcher, s.store, pdf.New())
		s.fetcher.EXPECT().Render(gomock.Any(), gomock.Any()).Return(html, nil)

		name, err := svc.GetOrFetch(s.ctx, s.key(61))
		s.Empty(name)
		s.Equal(upstream.ErrorBadData, upstream.CategoryOf(err))

		ok, err := s.store.Exists(s.ctx, "Diablo_Valley_College_to_University_of_California,_Berkeley_Computer_Science,_B.A._2024-2025.pdf")
		s.Require().NoError(err)
		s.False(ok)
	})
}

func (s *ServiceSuite) TestTransientFailureIsRetriedOnNextCall() {
	timeout := upstream.NewFetchError(upstream.ErrorTimeout, "fetcher.render", "navigate timed out", context.DeadlineExceeded)
	gomock.InOrder(
		s.fetcher.EXPECT().Render(gomock.Any(), gomock.Any()).Return(nil, timeout),
		s.fetcher.EXPECT().Render(gomock.Any(), gomock.Any()).Return(validPDF, nil),
	)

	_, err := s.service.GetOrFetch(s.ctx, s.key(61))
	s.Equal(upstream.ErrorTimeout, upstream.CategoryOf(err))
	s.True(upstream.IsRetryable(err))

	name, err := s.service.GetOrFetch(s.ctx, s.key(61))
	s.Require().NoError(err)
	s.NotEmpty(name)
}

func (s *ServiceSuite) TestNameResolutionFailureUsesFallbacks() {
	s.resolver.err = errors.New("assist unreachable")
	s.fetcher.EXPECT().Render(gomock.Any(), gomock.Any()).Return(validPDF, nil)

	name, err := s.service.GetOrFetch(s.ctx, s.key(61))
	s.Require().NoError(err)
	s.Equal("sending_61_to_receiving_79_major_abc_year_75.pdf", name)
}

func (s *ServiceSuite) TestKeyDigest() {
	svc := New(s.resolver, s.fetcher, s.store, headerValidator{}, WithKeyDigest(true))
	s.fetcher.EXPECT().Render(gomock.Any(), gomock.Any()).Return(validPDF, nil)

	name, err := svc.GetOrFetch(s.ctx, s.key(61))
	s.Require().NoError(err)
	s.Equal("Diablo_Valley_College_to_University_of_California,_Berkeley_Computer_Science,_B.A._2024-2025_"+
		models.KeyDigest(s.key(61).String())+".pdf", name)
}

func (s *ServiceSuite) TestRefreshOverwrites() {
	s.fetcher.EXPECT().Render(gomock.Any(), gomock.Any()).Return(validPDF, nil).Times(2)

	name, err := s.service.GetOrFetch(s.ctx, s.key(61))
	s.Require().NoError(err)
	refreshed, err := s.service.Refresh(s.ctx, s.key(61))
	s.Require().NoError(err)
	s.Equal(name, refreshed)
}

func (s *ServiceSuite) TestRefreshDropsPageImages() {
	s.fetcher.EXPECT().Render(gomock.Any(), gomock.Any()).Return(validPDF, nil).Times(2)

	name, err := s.service.GetOrFetch(s.ctx, s.key(61))
	s.Require().NoError(err)
	for page := 0; page < 2; page++ {
		s.Require().NoError(s.store.Put(s.ctx, &contentmodels.Blob{
			Filename:    models.PageImageFilename(name, page),
			ContentType: models.ContentTypePNG,
			Data:        []byte("png"),
			Page:        &contentmodels.PageRef{OriginalPDF: name, PageNumber: page},
		}))
	}

	_, err = s.service.Refresh(s.ctx, s.key(61))
	s.Require().NoError(err)

	images, err := s.store.Find(s.ctx, contentmodels.Query{OriginalPDF: name})
	s.Require().NoError(err)
	s.Empty(images)
	exists, err := s.store.Exists(s.ctx, name)
	s.Require().NoError(err)
	s.True(exists)
}

func (s *ServiceSuite) TestCancelledFirstCallerDoesNotFailWaiters() {
	started := make(chan struct{})
	release := make(chan struct{})
	s.fetcher.EXPECT().Render(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ models.RenderRequest) ([]byte, error) {
			close(started)
			<-release
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return validPDF, nil
		}).Times(1)

	firstCtx, cancel := context.WithCancel(s.ctx)
	firstDone := make(chan struct{})
	go func() {
		defer close(firstDone)
		_, _ = s.service.GetOrFetch(firstCtx, s.key(61))
	}()
	<-started

	type outcome struct {
		name string
		err  error
	}
	waiter := make(chan outcome, 1)
	go func() {
		name, err := s.service.GetOrFetch(s.ctx, s.key(61))
		waiter <- outcome{name, err}
	}()

	cancel()
	// Give the waiter time to join the flight before it completes.
	time.Sleep(20 * time.Millisecond)
	close(release)

	got := <-waiter
	s.Require().NoError(got.err)
	s.NotEmpty(got.name)
	<-firstDone
}

func (s *ServiceSuite) TestRenderTimeoutIsForwarded() {
	svc := New(s.resolver, s.fetcher, s.store, headerValidator{}, WithRenderTimeout(45*time.Second))
	s.fetcher.EXPECT().Render(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req models.RenderRequest) ([]byte, error) {
			s.Equal(45*time.Second, req.Timeout)
			return validPDF, nil
		}).Times(2)

	_, err := svc.GetOrFetch(s.ctx, s.key(61))
	s.Require().NoError(err)
	_, err = svc.GetOrFetchIGETC(s.ctx, 75, 61)
	s.Require().NoError(err)
}

func (s *ServiceSuite) TestGetOrFetchMany() {
	s.Run("partial failure keeps every item", func() {
		s.fetcher.EXPECT().Render(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, req models.RenderRequest) ([]byte, error) {
				if strings.Contains(req.URL, "institution=62&") {
					return nil, upstream.NewFetchError(upstream.ErrorProviderOutage, "fetcher.render", "navigate failed", nil)
				}
				return validPDF, nil
			}).Times(3)

		results, err := s.service.GetOrFetchMany(s.ctx, []int{61, 62, 63}, 79, 75, "75/61/to/79/Major/abc")
		s.Require().NoError(err)
		s.Require().Len(results, 3)

		s.Equal(61, results[0].SendingID)
		s.Equal("Diablo Valley College", results[0].SendingName)
		s.Require().NotNil(results[0].Filename)
		s.Contains(*results[0].Filename, "Diablo_Valley_College_to_")
		s.Empty(results[0].Error)

		s.Equal(62, results[1].SendingID)
		s.Nil(results[1].Filename)
		s.NotEmpty(results[1].Error)
		s.True(results[1].Failed())

		s.Equal(63, results[2].SendingID)
		s.Require().NotNil(results[2].Filename)
		s.Contains(*results[2].Filename, "Los_Medanos_College_to_")
	})

	s.Run("unknown sending institution gets a fallback name", func() {
		s.fetcher.EXPECT().Render(gomock.Any(), gomock.Any()).Return(validPDF, nil)

		results, err := s.service.GetOrFetchMany(s.ctx, []int{999}, 79, 75, "75/61/to/79/Major/abc")
		s.Require().NoError(err)
		s.Equal("sending_999", results[0].SendingName)
	})

	s.Run("invalid input fails the whole request", func() {
		_, err := s.service.GetOrFetchMany(s.ctx, nil, 79, 75, "75/61/to/79/Major/abc")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))

		_, err = s.service.GetOrFetchMany(s.ctx, []int{61}, 79, 75, "not-a-key")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

func (s *ServiceSuite) TestGetOrFetchIGETC() {
	s.fetcher.EXPECT().Render(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req models.RenderRequest) ([]byte, error) {
			s.Contains(req.URL, "type=IGETC")
			s.Contains(req.URL, "viewByKey=all")
			s.Equal(models.IGETCReadySelector, req.ReadySelector)
			return validPDF, nil
		}).Times(1)

	name, err := s.service.GetOrFetchIGETC(s.ctx, 75, 61)
	s.Require().NoError(err)
	s.Equal("Diablo_Valley_College_IGETC_2024-2025.pdf", name)

	again, err := s.service.GetOrFetchIGETC(s.ctx, 75, 61)
	s.Require().NoError(err)
	s.Equal(name, again)
}

func (s *ServiceSuite) TestRefreshIGETCRendersAgain() {
	s.fetcher.EXPECT().Render(gomock.Any(), gomock.Any()).Return(validPDF, nil).Times(2)

	name, err := s.service.GetOrFetchIGETC(s.ctx, 75, 61)
	s.Require().NoError(err)
	refreshed, err := s.service.RefreshIGETC(s.ctx, 75, 61)
	s.Require().NoError(err)
	s.Equal(name, refreshed)
}

func (s *ServiceSuite) TestToDomainError() {
	s.True(dErrors.HasCode(ToDomainError(upstream.NewFetchError(upstream.ErrorTimeout, "op", "m", nil)), dErrors.CodeTimeout))
	s.True(dErrors.HasCode(ToDomainError(upstream.NewFetchError(upstream.ErrorBadData, "op", "m", nil)), dErrors.CodeUnavailable))
	s.True(dErrors.HasCode(ToDomainError(upstream.NewFetchError(upstream.ErrorNotFound, "op", "m", nil)), dErrors.CodeNotFound))
	s.Equal("agreement not available", dErrors.MessageOf(ToDomainError(errors.New("boom"))))
}

func contentQueryAll() contentmodels.Query {
	return contentmodels.Query{}
}
