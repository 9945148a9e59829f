package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"transferai/internal/coursemap/models"
	"transferai/pkg/platform/sentinel"
)

const uniqueViolation = "23505"

// DBTX is the subset of pgxpool.Pool and pgx.Tx the store uses.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const mapColumns = `id, owner_id, name, nodes, edges, created_at, updated_at`

// PostgresStore persists course maps in the course_maps table. Owner scoping
// is part of every WHERE clause.
type PostgresStore struct {
	db DBTX
}

func New(db DBTX) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, m *models.CourseMap) error {
	if m == nil || m.ID == "" || m.OwnerID == "" {
		return fmt.Errorf("course map id and owner are required")
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO course_maps (`+mapColumns+`)
		VALUES ($1, $2, $3, $4::jsonb, $5::jsonb, $6, $7)
	`, m.ID, m.OwnerID, m.Name, graphParam(m.Nodes), graphParam(m.Edges), m.CreatedAt, m.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("course map %s: %w", m.ID, sentinel.ErrConflict)
		}
		return fmt.Errorf("create course map: %w", err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, ownerID string) ([]models.Summary, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, name, created_at, updated_at
		FROM course_maps
		WHERE owner_id = $1
		ORDER BY updated_at DESC, id
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list course maps: %w", err)
	}
	defer rows.Close()

	out := make([]models.Summary, 0)
	for rows.Next() {
		var sm models.Summary
		if err := rows.Scan(&sm.ID, &sm.Name, &sm.CreatedAt, &sm.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan course map: %w", err)
		}
		sm.CreatedAt = sm.CreatedAt.UTC()
		sm.UpdatedAt = sm.UpdatedAt.UTC()
		out = append(out, sm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list course maps: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Get(ctx context.Context, ownerID, id string) (*models.CourseMap, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+mapColumns+` FROM course_maps WHERE id = $1 AND owner_id = $2`, id, ownerID)
	m, err := scanMap(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get course map: %w", err)
	}
	return m, nil
}

// Update changes only the fields set in u; NULL parameters keep the stored
// column through COALESCE.
func (s *PostgresStore) Update(ctx context.Context, ownerID, id string, u models.Update, now time.Time) (*models.CourseMap, error) {
	row := s.db.QueryRow(ctx, `
		UPDATE course_maps SET
			name       = COALESCE($3::text, name),
			nodes      = COALESCE($4::jsonb, nodes),
			edges      = COALESCE($5::jsonb, edges),
			updated_at = $6
		WHERE id = $1 AND owner_id = $2
		RETURNING `+mapColumns,
		id, ownerID, u.Name, graphParam(u.Nodes), graphParam(u.Edges), now)
	m, err := scanMap(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update course map: %w", err)
	}
	return m, nil
}

func (s *PostgresStore) Delete(ctx context.Context, ownerID, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM course_maps WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return fmt.Errorf("delete course map: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// graphParam sends an absent graph part as SQL NULL.
func graphParam(raw []byte) *string {
	if raw == nil {
		return nil
	}
	v := string(raw)
	return &v
}

func scanMap(row pgx.Row) (*models.CourseMap, error) {
	var (
		m            models.CourseMap
		nodes, edges []byte
	)
	if err := row.Scan(&m.ID, &m.OwnerID, &m.Name, &nodes, &edges, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	m.Nodes = nodes
	m.Edges = edges
	m.CreatedAt = m.CreatedAt.UTC()
	m.UpdatedAt = m.UpdatedAt.UTC()
	return &m, nil
}
