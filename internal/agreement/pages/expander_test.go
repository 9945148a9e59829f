package pages

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/suite"

	"transferai/internal/agreement/models"
	contentmodels "transferai/internal/content/models"
	"transferai/internal/content/store/memory"
	dErrors "transferai/pkg/domain-errors"
)

type fakeRasterizer struct {
	pages     int
	failPages map[int]bool
	renders   atomic.Int32
	counts    atomic.Int32
}

func (f *fakeRasterizer) PageCount([]byte) (int, error) {
	f.counts.Add(1)
	return f.pages, nil
}

func (f *fakeRasterizer) RenderPage(_ []byte, page int, scale float64) ([]byte, error) {
	f.renders.Add(1)
	if f.failPages[page] {
		return nil, errors.New("mupdf: cannot render page")
	}
	return []byte(fmt.Sprintf("png-%d@%.0fx", page, scale)), nil
}

// Justification for unit tests: completeness must be judged against the
// source document's page count, and a partial set must never be served.
type ExpanderSuite struct {
	suite.Suite
	store      *memory.InMemoryStore
	rasterizer *fakeRasterizer
	expander   *Expander
	ctx        context.Context
}

func TestExpanderSuite(t *testing.T) {
	suite.Run(t, new(ExpanderSuite))
}

func (s *ExpanderSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = memory.New()
	s.rasterizer = &fakeRasterizer{pages: 3}
	s.expander = New(s.store, s.rasterizer)
	s.Require().NoError(s.store.Put(s.ctx, &contentmodels.Blob{
		Filename: "a.pdf", ContentType: models.ContentTypePDF, Data: []byte("%PDF-1.7"),
	}))
}

func (s *ExpanderSuite) putPage(page int) {
	s.Require().NoError(s.store.Put(s.ctx, &contentmodels.Blob{
		Filename:    models.PageImageFilename("a.pdf", page),
		ContentType: models.ContentTypePNG,
		Data:        []byte("old"),
		Page:        &contentmodels.PageRef{OriginalPDF: "a.pdf", PageNumber: page},
	}))
}

func (s *ExpanderSuite) pageData(page int) string {
	blob, err := s.store.Get(s.ctx, models.PageImageFilename("a.pdf", page))
	s.Require().NoError(err)
	return string(blob.Data)
}

func (s *ExpanderSuite) TestGeneratesAllPagesInOrder() {
	got, err := s.expander.GetOrGenerate(s.ctx, "a.pdf")
	s.Require().NoError(err)
	s.Equal([]string{"a.pdf_page_0.png", "a.pdf_page_1.png", "a.pdf_page_2.png"}, got)
	s.Equal("png-1@2x", s.pageData(1))

	blob, err := s.store.Get(s.ctx, "a.pdf_page_2.png")
	s.Require().NoError(err)
	s.Equal(&contentmodels.PageRef{OriginalPDF: "a.pdf", PageNumber: 2}, blob.Page)
}

func (s *ExpanderSuite) TestCompleteSetIsReused() {
	for page := 0; page < 3; page++ {
		s.putPage(page)
	}

	got, err := s.expander.GetOrGenerate(s.ctx, "a.pdf")
	s.Require().NoError(err)
	s.Len(got, 3)
	s.EqualValues(0, s.rasterizer.renders.Load())

	_, err = s.expander.GetOrGenerate(s.ctx, "a.pdf")
	s.Require().NoError(err)
	s.EqualValues(1, s.rasterizer.counts.Load(), "page count is memoized")
}

func (s *ExpanderSuite) TestGapInSetRegeneratesEveryPage() {
	s.putPage(0)
	s.putPage(2)

	got, err := s.expander.GetOrGenerate(s.ctx, "a.pdf")
	s.Require().NoError(err)
	s.Equal([]string{"a.pdf_page_0.png", "a.pdf_page_1.png", "a.pdf_page_2.png"}, got)
	s.EqualValues(3, s.rasterizer.renders.Load())
	s.Equal("png-0@2x", s.pageData(0), "stale page is overwritten")
	s.Equal("png-2@2x", s.pageData(2))
}

func (s *ExpanderSuite) TestFirstPageAloneIsNotComplete() {
	s.putPage(0)

	got, err := s.expander.GetOrGenerate(s.ctx, "a.pdf")
	s.Require().NoError(err)
	s.Len(got, 3)
}

func (s *ExpanderSuite) TestStalePagesPastTheEndAreRemoved() {
	for page := 0; page < 5; page++ {
		s.putPage(page)
	}

	got, err := s.expander.GetOrGenerate(s.ctx, "a.pdf")
	s.Require().NoError(err)
	s.Len(got, 3)

	images, err := s.store.Find(s.ctx, contentmodels.Query{OriginalPDF: "a.pdf"})
	s.Require().NoError(err)
	s.Len(images, 3)
}

func (s *ExpanderSuite) TestFailedPageIsSkipped() {
	s.rasterizer.failPages = map[int]bool{1: true}

	got, err := s.expander.GetOrGenerate(s.ctx, "a.pdf")
	s.Require().NoError(err)
	s.Equal([]string{"a.pdf_page_0.png", "a.pdf_page_2.png"}, got)
}

func (s *ExpanderSuite) TestEveryPageFailing() {
	s.rasterizer.failPages = map[int]bool{0: true, 1: true, 2: true}

	_, err := s.expander.GetOrGenerate(s.ctx, "a.pdf")
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
}

func (s *ExpanderSuite) TestMissingPDF() {
	_, err := s.expander.GetOrGenerate(s.ctx, "missing.pdf")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	_, err = s.expander.GetOrGenerate(s.ctx, "")
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func (s *ExpanderSuite) TestOverwrittenPDFIsCountedAgain() {
	s.rasterizer.pages = 2
	got, err := s.expander.GetOrGenerate(s.ctx, "a.pdf")
	s.Require().NoError(err)
	s.Len(got, 2)

	s.Require().NoError(s.store.Put(s.ctx, &contentmodels.Blob{
		Filename: "a.pdf", ContentType: models.ContentTypePDF, Data: []byte("%PDF-1.7 four pages"),
	}))
	s.rasterizer.pages = 4

	got, err = s.expander.GetOrGenerate(s.ctx, "a.pdf")
	s.Require().NoError(err)
	s.Equal([]string{"a.pdf_page_0.png", "a.pdf_page_1.png", "a.pdf_page_2.png", "a.pdf_page_3.png"}, got)
	s.EqualValues(2, s.rasterizer.counts.Load())
}

func (s *ExpanderSuite) TestNonPDFSourceIsNotFound() {
	s.putPage(0)

	_, err := s.expander.GetOrGenerate(s.ctx, models.PageImageFilename("a.pdf", 0))
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	s.EqualValues(0, s.rasterizer.counts.Load())
}
