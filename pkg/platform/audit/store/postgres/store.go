package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	audit "transferai/pkg/platform/audit"
	txcontext "transferai/pkg/platform/tx"
)

// Store writes audit events to the audit_events table.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *Store) q(ctx context.Context) querier {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// Append inserts event. Category is derived from the action so producers
// cannot mislabel events.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	attrs, err := json.Marshal(event.Attrs)
	if err != nil {
		return fmt.Errorf("marshal audit attrs: %w", err)
	}
	ts := event.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	const query = `
		INSERT INTO audit_events (id, category, action, account_id, subject, request_id, attrs, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = s.q(ctx).ExecContext(ctx, query,
		uuid.New(),
		string(audit.AuditEvent(event.Action).Category()),
		event.Action,
		nullable(event.AccountID),
		nullable(event.Subject),
		nullable(event.RequestID),
		attrs,
		ts.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// ListByAccount returns up to limit of the account's most recent events, oldest first.
func (s *Store) ListByAccount(ctx context.Context, accountID string, limit int) ([]audit.Event, error) {
	if limit <= 0 {
		limit = 1000
	}
	const query = `
		SELECT category, action, COALESCE(account_id, ''), COALESCE(subject, ''),
		       COALESCE(request_id, ''), attrs, occurred_at
		FROM (
			SELECT * FROM audit_events
			WHERE account_id = $1
			ORDER BY occurred_at DESC, seq DESC
			LIMIT $2
		) recent
		ORDER BY occurred_at ASC, seq ASC
	`
	rows, err := s.q(ctx).QueryContext(ctx, query, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		var (
			e        audit.Event
			category string
			attrs    []byte
		)
		if err := rows.Scan(&category, &e.Action, &e.AccountID, &e.Subject, &e.RequestID, &attrs, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.Category = audit.EventCategory(category)
		if len(attrs) > 0 {
			if err := json.Unmarshal(attrs, &e.Attrs); err != nil {
				return nil, fmt.Errorf("decode audit attrs: %w", err)
			}
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
