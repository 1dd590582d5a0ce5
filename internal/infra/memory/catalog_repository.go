package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"draw-class-service/internal/domain"
)

// CatalogLoader fetches the ordered exercise list from a backing store.
type CatalogLoader interface {
	LoadCatalog(ctx context.Context) ([]domain.Exercise, error)
}

// CatalogRepository caches the catalog with a TTL to avoid repeated
// loader hits; the catalog is read-only so staleness only delays new
// reference data.
type CatalogRepository struct {
	loader CatalogLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand

	mu        sync.RWMutex
	cached    []domain.Exercise
	expiresAt time.Time
}

func NewCatalogRepository(loader CatalogLoader, ttl time.Duration) *CatalogRepository {
	return &CatalogRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *CatalogRepository) GetByIndex(ctx context.Context, index int) (domain.Exercise, error) {
	exercises, err := r.catalog(ctx)
	if err != nil {
		return domain.Exercise{}, err
	}
	if index < 0 || index >= len(exercises) {
		return domain.Exercise{}, domain.ErrExerciseNotFound
	}
	return exercises[index], nil
}

func (r *CatalogRepository) Len(ctx context.Context) (int, error) {
	exercises, err := r.catalog(ctx)
	if err != nil {
		return 0, err
	}
	return len(exercises), nil
}

func (r *CatalogRepository) catalog(ctx context.Context) ([]domain.Exercise, error) {
	now := r.clock()

	r.mu.RLock()
	if r.cached != nil && r.expiresAt.After(now) {
		cached := r.cached
		r.mu.RUnlock()
		return cached, nil
	}
	r.mu.RUnlock()

	result, err, _ := r.sf.Do("catalog", func() (interface{}, error) {
		now := r.clock()
		r.mu.RLock()
		if r.cached != nil && r.expiresAt.After(now) {
			cached := r.cached
			r.mu.RUnlock()
			return cached, nil
		}
		r.mu.RUnlock()

		exercises, err := r.loader.LoadCatalog(ctx)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		r.cached = exercises
		r.expiresAt = now.Add(r.ttlWithJitter())
		r.mu.Unlock()
		return exercises, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Exercise), nil
}

func (r *CatalogRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

// StaticCatalogLoader serves a fixed exercise list (the built-in catalog,
// tests).
type StaticCatalogLoader struct {
	exercises []domain.Exercise
}

func NewStaticCatalogLoader(exercises []domain.Exercise) *StaticCatalogLoader {
	return &StaticCatalogLoader{exercises: exercises}
}

func (l *StaticCatalogLoader) LoadCatalog(_ context.Context) ([]domain.Exercise, error) {
	return l.exercises, nil
}
