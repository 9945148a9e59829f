package memory

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"transferai/internal/coursemap/models"
	"transferai/pkg/platform/sentinel"
)

// InMemoryStore keeps course maps in a map keyed by id.
type InMemoryStore struct {
	mu   sync.RWMutex
	maps map[string]*models.CourseMap
}

func New() *InMemoryStore {
	return &InMemoryStore{maps: make(map[string]*models.CourseMap)}
}

func (s *InMemoryStore) Create(_ context.Context, m *models.CourseMap) error {
	if m == nil || m.ID == "" || m.OwnerID == "" {
		return fmt.Errorf("course map id and owner are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.maps[m.ID]; ok {
		return fmt.Errorf("course map %s: %w", m.ID, sentinel.ErrConflict)
	}
	s.maps[m.ID] = clone(m)
	return nil
}

func (s *InMemoryStore) List(_ context.Context, ownerID string) ([]models.Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Summary, 0)
	for _, m := range s.maps {
		if m.OwnerID != ownerID {
			continue
		}
		out = append(out, models.Summary{ID: m.ID, Name: m.Name, CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func (s *InMemoryStore) Get(_ context.Context, ownerID, id string) (*models.CourseMap, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.owned(ownerID, id)
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(m), nil
}

func (s *InMemoryStore) Update(_ context.Context, ownerID, id string, u models.Update, now time.Time) (*models.CourseMap, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.owned(ownerID, id)
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if u.Name != nil {
		m.Name = *u.Name
	}
	if u.Nodes != nil {
		m.Nodes = bytes.Clone(u.Nodes)
	}
	if u.Edges != nil {
		m.Edges = bytes.Clone(u.Edges)
	}
	m.UpdatedAt = now
	return clone(m), nil
}

func (s *InMemoryStore) Delete(_ context.Context, ownerID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.owned(ownerID, id); !ok {
		return sentinel.ErrNotFound
	}
	delete(s.maps, id)
	return nil
}

func (s *InMemoryStore) owned(ownerID, id string) (*models.CourseMap, bool) {
	m, ok := s.maps[id]
	if !ok || m.OwnerID != ownerID {
		return nil, false
	}
	return m, true
}

func clone(m *models.CourseMap) *models.CourseMap {
	out := *m
	out.Nodes = bytes.Clone(m.Nodes)
	out.Edges = bytes.Clone(m.Edges)
	return &out
}
