package memory

import (
	"context"
	"sync"

	audit "transferai/pkg/platform/audit"
)

// InMemoryStore keeps audit events per account in arrival order.
type InMemoryStore struct {
	mu     sync.RWMutex
	events map[string][]audit.Event
}

func New() *InMemoryStore {
	return &InMemoryStore{events: make(map[string][]audit.Event)}
}

func (s *InMemoryStore) Append(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.AccountID] = append(s.events[event.AccountID], event)
	return nil
}

// ListByAccount returns up to limit of the account's most recent events,
// oldest first. limit <= 0 returns all of them.
func (s *InMemoryStore) ListByAccount(_ context.Context, accountID string, limit int) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	events := s.events[accountID]
	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	return append([]audit.Event(nil), events...), nil
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = make(map[string][]audit.Event)
}
