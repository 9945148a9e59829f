package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"transferai/internal/content/models"
	"transferai/pkg/platform/sentinel"
)

// InMemoryStore keeps blobs in a map. Used for tests and local development.
type InMemoryStore struct {
	mu    sync.RWMutex
	blobs map[string]*models.Blob
	now   func() time.Time
}

func New() *InMemoryStore {
	return &InMemoryStore{
		blobs: make(map[string]*models.Blob),
		now:   time.Now,
	}
}

func (s *InMemoryStore) Exists(_ context.Context, filename string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.blobs[filename]
	return ok, nil
}

// Put stores a copy of blob, replacing any blob with the same filename.
func (s *InMemoryStore) Put(_ context.Context, blob *models.Blob) error {
	if blob == nil || blob.Filename == "" {
		return fmt.Errorf("blob filename is required")
	}
	stored := cloneBlob(blob)
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = s.now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[blob.Filename] = stored
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, filename string) (*models.Blob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	blob, ok := s.blobs[filename]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneBlob(blob), nil
}

func (s *InMemoryStore) Find(_ context.Context, q models.Query) ([]models.BlobInfo, error) {
	s.mu.RLock()
	out := make([]models.BlobInfo, 0)
	for _, blob := range s.blobs {
		info := blob.Info()
		if q.Matches(info) {
			out = append(out, info)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		pi, pj := pageNumber(out[i]), pageNumber(out[j])
		if pi != pj {
			return pi < pj
		}
		return out[i].Filename < out[j].Filename
	})
	return out, nil
}

func (s *InMemoryStore) Delete(_ context.Context, filename string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[filename]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.blobs, filename)
	return nil
}

func pageNumber(info models.BlobInfo) int {
	if info.Page == nil {
		return -1
	}
	return info.Page.PageNumber
}

func cloneBlob(b *models.Blob) *models.Blob {
	c := *b
	c.Data = append([]byte(nil), b.Data...)
	if b.Page != nil {
		page := *b.Page
		c.Page = &page
	}
	return &c
}
