// Package pdf inspects and rasterizes PDF documents with MuPDF.
package pdf

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/gen2brain/go-fitz"
)

// BaseDPI is the resolution of a PDF user-space unit; scale 2 renders at 144 DPI.
const BaseDPI = 72.0

// ErrMalformed is returned for bytes that are not a readable, non-empty PDF.
var ErrMalformed = errors.New("malformed pdf")

var magic = []byte("%PDF-")

// Fitz implements page counting and rendering on top of go-fitz.
type Fitz struct{}

func New() *Fitz {
	return &Fitz{}
}

// PageCount opens data and returns its number of pages.
func (Fitz) PageCount(data []byte) (int, error) {
	doc, err := open(data)
	if err != nil {
		return 0, err
	}
	defer doc.Close()
	return doc.NumPage(), nil
}

// Validate checks the PDF header and that the document has at least one page.
func (f Fitz) Validate(data []byte) error {
	if !bytes.HasPrefix(bytes.TrimLeft(data, "\x00\t\r\n "), magic) {
		return fmt.Errorf("%w: missing %%PDF- header", ErrMalformed)
	}
	n, err := f.PageCount(data)
	if err != nil {
		return err
	}
	if n <= 0 {
		return fmt.Errorf("%w: document has no pages", ErrMalformed)
	}
	return nil
}

// RenderPage rasterizes one 0-based page to PNG at BaseDPI*scale.
func (Fitz) RenderPage(data []byte, page int, scale float64) ([]byte, error) {
	doc, err := open(data)
	if err != nil {
		return nil, err
	}
	defer doc.Close()
	if page < 0 || page >= doc.NumPage() {
		return nil, fmt.Errorf("page %d out of range [0,%d)", page, doc.NumPage())
	}
	png, err := doc.ImagePNG(page, BaseDPI*scale)
	if err != nil {
		return nil, fmt.Errorf("render page %d: %w", page, err)
	}
	return png, nil
}

// Preview returns up to n leading bytes of data as a loggable string.
func Preview(data []byte, n int) string {
	if len(data) > n {
		data = data[:n]
	}
	return fmt.Sprintf("%q", data)
}

func open(data []byte) (*fitz.Document, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrMalformed)
	}
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return doc, nil
}
