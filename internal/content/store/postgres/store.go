package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"transferai/internal/content/models"
	"transferai/pkg/platform/sentinel"
)

// DBTX is the subset of pgxpool.Pool and pgx.Tx the store uses.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const infoColumns = `filename, content_type, octet_length(data), original_pdf, page_number, created_at`

// PostgresStore persists blobs in the documents table as bytea.
type PostgresStore struct {
	db DBTX
}

func New(db DBTX) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Exists(ctx context.Context, filename string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM documents WHERE filename = $1)`, filename,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check document exists: %w", err)
	}
	return exists, nil
}

// Put writes blob atomically, replacing content and metadata of an existing
// blob with the same filename.
func (s *PostgresStore) Put(ctx context.Context, blob *models.Blob) error {
	if blob == nil || blob.Filename == "" {
		return fmt.Errorf("blob filename is required")
	}
	var originalPDF *string
	var pageNumber *int
	if blob.Page != nil {
		originalPDF = &blob.Page.OriginalPDF
		pageNumber = &blob.Page.PageNumber
	}
	kind := "document"
	if blob.Page != nil {
		kind = "page_image"
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO documents (filename, kind, content_type, data, original_pdf, page_number)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (filename) DO UPDATE SET
			kind = EXCLUDED.kind,
			content_type = EXCLUDED.content_type,
			data = EXCLUDED.data,
			original_pdf = EXCLUDED.original_pdf,
			page_number = EXCLUDED.page_number,
			updated_at = now()
	`, blob.Filename, kind, blob.ContentType, blob.Data, originalPDF, pageNumber)
	if err != nil {
		return fmt.Errorf("put document: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, filename string) (*models.Blob, error) {
	var (
		blob        models.Blob
		originalPDF *string
		pageNumber  *int
	)
	err := s.db.QueryRow(ctx, `
		SELECT filename, content_type, data, original_pdf, page_number, created_at
		FROM documents WHERE filename = $1
	`, filename).Scan(&blob.Filename, &blob.ContentType, &blob.Data, &originalPDF, &pageNumber, &blob.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get document: %w", err)
	}
	blob.Page = pageRef(originalPDF, pageNumber)
	return &blob, nil
}

func (s *PostgresStore) Find(ctx context.Context, q models.Query) ([]models.BlobInfo, error) {
	var (
		where []string
		args  []any
	)
	if q.OriginalPDF != "" {
		args = append(args, q.OriginalPDF)
		where = append(where, "original_pdf = $"+strconv.Itoa(len(args)))
	}
	if q.ContentType != "" {
		args = append(args, q.ContentType)
		where = append(where, "content_type = $"+strconv.Itoa(len(args)))
	}
	query := `SELECT ` + infoColumns + ` FROM documents`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY page_number NULLS FIRST, filename`

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find documents: %w", err)
	}
	defer rows.Close()

	out := make([]models.BlobInfo, 0)
	for rows.Next() {
		var (
			info        models.BlobInfo
			originalPDF *string
			pageNumber  *int
		)
		if err := rows.Scan(&info.Filename, &info.ContentType, &info.Size, &originalPDF, &pageNumber, &info.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		info.Page = pageRef(originalPDF, pageNumber)
		out = append(out, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Delete(ctx context.Context, filename string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM documents WHERE filename = $1`, filename)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func pageRef(originalPDF *string, pageNumber *int) *models.PageRef {
	if originalPDF == nil || pageNumber == nil {
		return nil
	}
	return &models.PageRef{OriginalPDF: *originalPDF, PageNumber: *pageNumber}
}
