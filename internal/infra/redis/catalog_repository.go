package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"draw-class-service/internal/domain"
)

// CatalogLoader fetches the ordered exercise list from a backing store.
type CatalogLoader interface {
	LoadCatalog(ctx context.Context) ([]domain.Exercise, error)
}

// catalogKey holds the whole ordered catalog as one JSON array. The
// catalog is small and read together, so a single blob beats per-exercise
// keys.
const catalogKey = "catalog:exercises"

// CatalogRepository caches the exercise catalog in Redis and falls back to
// a loader on cache miss.
type CatalogRepository struct {
	client *redis.Client
	loader CatalogLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewCatalogRepository(client *redis.Client, loader CatalogLoader, ttl time.Duration) *CatalogRepository {
	return &CatalogRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
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
	if exercises, ok := r.cached(ctx); ok {
		return exercises, nil
	}

	result, err, _ := r.sf.Do(catalogKey, func() (interface{}, error) {
		// Re-check in case another goroutine filled the cache.
		if exercises, ok := r.cached(ctx); ok {
			return exercises, nil
		}

		exercises, err := r.loader.LoadCatalog(ctx)
		if err != nil {
			return nil, err
		}

		data, err := json.Marshal(exercises)
		if err != nil {
			return nil, fmt.Errorf("marshal catalog: %w", err)
		}
		// best-effort: a failed cache write just means another load later
		_ = r.client.Set(ctx, catalogKey, data, r.ttlWithJitter()).Err()
		return exercises, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Exercise), nil
}

func (r *CatalogRepository) cached(ctx context.Context) ([]domain.Exercise, bool) {
	raw, err := r.client.Get(ctx, catalogKey).Bytes()
	if err != nil || len(raw) == 0 {
		return nil, false
	}
	var exercises []domain.Exercise
	if err := json.Unmarshal(raw, &exercises); err != nil {
		return nil, false
	}
	return exercises, true
}

func (r *CatalogRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
