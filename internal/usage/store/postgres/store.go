package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"transferai/internal/usage/models"
	"transferai/pkg/platform/sentinel"
	txcontext "transferai/pkg/platform/tx"
)

const checkViolation = "23514"

// PostgresStore persists usage records in the usage_records table.
type PostgresStore struct {
	db *sql.DB
}

func New(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) q(ctx context.Context) querier {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

const recordColumns = `account_id, email, name, tier, requests_used, period_start, last_request_at, created_at`

func (s *PostgresStore) Get(ctx context.Context, accountID string) (*models.Record, error) {
	row := s.q(ctx).QueryRowContext(ctx, `SELECT `+recordColumns+` FROM usage_records WHERE account_id = $1`, accountID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get usage record: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) Ensure(ctx context.Context, rec *models.Record) (*models.Record, error) {
	if rec == nil || rec.AccountID == "" {
		return nil, fmt.Errorf("account id is required")
	}
	tier := rec.Tier
	if tier == "" {
		tier = models.TierFree
	}
	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO usage_records (account_id, email, name, tier, requests_used, period_start, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		ON CONFLICT (account_id) DO NOTHING
	`, rec.AccountID, rec.Email, rec.Name, string(tier), rec.RequestsUsed, rec.PeriodStart, rec.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("ensure usage record: %w", err)
	}
	return s.Get(ctx, rec.AccountID)
}

// Consume performs the rollover, the limit check and the increment in one
// conditional UPDATE. $2 is the free limit and $3 the premium limit.
func (s *PostgresStore) Consume(ctx context.Context, accountID string, limits models.Limits, dayStart, now time.Time) (*models.Record, bool, error) {
	row := s.q(ctx).QueryRowContext(ctx, `
		UPDATE usage_records SET
			requests_used   = CASE WHEN period_start < $4 THEN 1 ELSE requests_used + 1 END,
			period_start    = CASE WHEN period_start < $4 THEN $5 ELSE period_start END,
			last_request_at = $5,
			updated_at      = $5
		WHERE account_id = $1
		  AND (CASE WHEN period_start < $4 THEN 0 ELSE requests_used END)
		      < (CASE WHEN tier = 'premium' THEN $3::int ELSE $2::int END)
		RETURNING `+recordColumns,
		accountID, limits.Free, limits.Premium, dayStart, now)
	rec, err := scanRecord(row)
	if err == nil {
		return rec, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("consume usage: %w", err)
	}

	// Nothing updated: the account is missing or at its limit.
	rec, err = s.Get(ctx, accountID)
	if err != nil {
		return nil, false, err
	}
	return rec, false, nil
}

// SetTier changes the tier under a row lock so a concurrent Consume sees
// either the old or the new limit, never a mix.
func (s *PostgresStore) SetTier(ctx context.Context, accountID string, tier models.Tier) error {
	return txcontext.Run(ctx, s.db, func(ctx context.Context) error {
		var current string
		err := s.q(ctx).QueryRowContext(ctx,
			`SELECT tier FROM usage_records WHERE account_id = $1 FOR UPDATE`, accountID).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return sentinel.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("lock usage record: %w", err)
		}
		if current == string(tier) {
			return nil
		}
		_, err = s.q(ctx).ExecContext(ctx,
			`UPDATE usage_records SET tier = $2, updated_at = now() WHERE account_id = $1`, accountID, string(tier))
		if err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code == checkViolation {
				return fmt.Errorf("set tier %q: %w", tier, sentinel.ErrInvalidState)
			}
			return fmt.Errorf("set tier: %w", err)
		}
		return nil
	})
}

func scanRecord(row *sql.Row) (*models.Record, error) {
	var (
		rec         models.Record
		tier        string
		lastRequest sql.NullTime
	)
	if err := row.Scan(&rec.AccountID, &rec.Email, &rec.Name, &tier, &rec.RequestsUsed,
		&rec.PeriodStart, &lastRequest, &rec.CreatedAt); err != nil {
		return nil, err
	}
	rec.Tier = models.Tier(tier)
	rec.PeriodStart = rec.PeriodStart.UTC()
	if lastRequest.Valid {
		at := lastRequest.Time.UTC()
		rec.LastRequestAt = &at
	}
	return &rec, nil
}
