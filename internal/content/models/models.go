package models

import "time"

// PageRef tags a derived page image with its source document.
type PageRef struct {
	OriginalPDF string `json:"original_pdf"`
	PageNumber  int    `json:"page_number"`
}

// Blob is a stored document addressed by filename. Page is nil for source
// documents and set for derived page images.
type Blob struct {
	Filename    string
	ContentType string
	Data        []byte
	Page        *PageRef
	CreatedAt   time.Time
}

// Info returns the blob's metadata without its content.
func (b *Blob) Info() BlobInfo {
	return BlobInfo{
		Filename:    b.Filename,
		ContentType: b.ContentType,
		Size:        int64(len(b.Data)),
		Page:        b.Page,
		CreatedAt:   b.CreatedAt,
	}
}

// BlobInfo is blob metadata as returned by queries.
type BlobInfo struct {
	Filename    string
	ContentType string
	Size        int64
	Page        *PageRef
	CreatedAt   time.Time
}

// Query filters blobs by metadata. Empty fields match everything; results are
// ordered by page number, then filename.
type Query struct {
	OriginalPDF string
	ContentType string
}

// Matches reports whether info satisfies the query.
func (q Query) Matches(info BlobInfo) bool {
	if q.ContentType != "" && info.ContentType != q.ContentType {
		return false
	}
	if q.OriginalPDF != "" && (info.Page == nil || info.Page.OriginalPDF != q.OriginalPDF) {
		return false
	}
	return true
}
