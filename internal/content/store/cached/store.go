package cached

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"transferai/internal/content/models"
)

// Backend is the store being fronted.
type Backend interface {
	Exists(ctx context.Context, filename string) (bool, error)
	Put(ctx context.Context, blob *models.Blob) error
	Get(ctx context.Context, filename string) (*models.Blob, error)
	Find(ctx context.Context, q models.Query) ([]models.BlobInfo, error)
	Delete(ctx context.Context, filename string) error
}

type metrics interface {
	IncrementCacheHit()
	IncrementCacheMiss()
	IncrementEviction()
}

// Store keeps recently read blobs in an expiring LRU so repeated image views
// skip the database. Writes go straight through and invalidate the entry.
// Cached blobs are shared; callers must not mutate returned data.
//
// The cache is per process: a write made by another replica is only seen
// here once the local entry expires.
type Store struct {
	backend Backend
	cache   *expirable.LRU[string, *models.Blob]
	metrics metrics
}

type Option func(*Store)

func WithMetrics(m metrics) Option {
	return func(s *Store) {
		s.metrics = m
	}
}

func New(backend Backend, size int, ttl time.Duration, opts ...Option) *Store {
	s := &Store{backend: backend}
	for _, opt := range opts {
		opt(s)
	}
	if size <= 0 {
		size = 1
	}
	s.cache = expirable.NewLRU[string, *models.Blob](size, func(string, *models.Blob) {
		if s.metrics != nil {
			s.metrics.IncrementEviction()
		}
	}, ttl)
	return s
}

func (s *Store) Exists(ctx context.Context, filename string) (bool, error) {
	if s.cache.Contains(filename) {
		return true, nil
	}
	return s.backend.Exists(ctx, filename)
}

// Put writes through and invalidates the entry on both sides of the write, so
// a read racing the write cannot leave the previous blob cached.
func (s *Store) Put(ctx context.Context, blob *models.Blob) error {
	s.cache.Remove(blob.Filename)
	if err := s.backend.Put(ctx, blob); err != nil {
		return err
	}
	s.cache.Remove(blob.Filename)
	return nil
}

func (s *Store) Get(ctx context.Context, filename string) (*models.Blob, error) {
	if blob, ok := s.cache.Get(filename); ok {
		if s.metrics != nil {
			s.metrics.IncrementCacheHit()
		}
		return blob, nil
	}
	if s.metrics != nil {
		s.metrics.IncrementCacheMiss()
	}
	blob, err := s.backend.Get(ctx, filename)
	if err != nil {
		return nil, err
	}
	s.cache.Add(filename, blob)
	return blob, nil
}

func (s *Store) Find(ctx context.Context, q models.Query) ([]models.BlobInfo, error) {
	return s.backend.Find(ctx, q)
}

func (s *Store) Delete(ctx context.Context, filename string) error {
	s.cache.Remove(filename)
	if err := s.backend.Delete(ctx, filename); err != nil {
		return err
	}
	s.cache.Remove(filename)
	return nil
}
