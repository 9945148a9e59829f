package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"transferai/internal/usage/models"
	"transferai/pkg/platform/sentinel"
)

// InMemoryStore keeps usage records in a map guarded by one mutex, which
// makes Consume trivially atomic within a process.
type InMemoryStore struct {
	mu      sync.Mutex
	records map[string]*models.Record
}

func New() *InMemoryStore {
	return &InMemoryStore{records: make(map[string]*models.Record)}
}

func (s *InMemoryStore) Get(_ context.Context, accountID string) (*models.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[accountID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(rec), nil
}

func (s *InMemoryStore) Ensure(_ context.Context, rec *models.Record) (*models.Record, error) {
	if rec == nil || rec.AccountID == "" {
		return nil, fmt.Errorf("account id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.records[rec.AccountID]; ok {
		return clone(existing), nil
	}
	stored := clone(rec)
	if stored.Tier == "" {
		stored.Tier = models.TierFree
	}
	s.records[rec.AccountID] = stored
	return clone(stored), nil
}

func (s *InMemoryStore) Consume(_ context.Context, accountID string, limits models.Limits, dayStart, now time.Time) (*models.Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[accountID]
	if !ok {
		return nil, false, sentinel.ErrNotFound
	}

	limit := limits.For(rec.Tier)
	used := rec.RequestsUsed
	stale := rec.PeriodStart.Before(dayStart)
	if stale {
		used = 0
	}
	if used >= limit {
		return clone(rec), false, nil
	}

	if stale {
		rec.PeriodStart = now
	}
	rec.RequestsUsed = used + 1
	at := now
	rec.LastRequestAt = &at
	return clone(rec), true, nil
}

func (s *InMemoryStore) SetTier(_ context.Context, accountID string, tier models.Tier) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[accountID]
	if !ok {
		return sentinel.ErrNotFound
	}
	rec.Tier = tier
	return nil
}

func clone(rec *models.Record) *models.Record {
	out := *rec
	if rec.LastRequestAt != nil {
		at := *rec.LastRequestAt
		out.LastRequestAt = &at
	}
	return &out
}
