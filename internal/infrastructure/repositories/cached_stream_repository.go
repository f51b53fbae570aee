package repositories

import (
	"context"
	"time"

	"camwatch/internal/core/domain"
	"camwatch/internal/core/ports"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// CachedStreamRepository serves GetByID from a bounded, expiring cache.
// Writes go through to the backing repository and invalidate the entry.
type CachedStreamRepository struct {
	next  ports.StreamRepository
	cache *expirable.LRU[domain.StreamID, domain.Stream]
}

func NewCachedStreamRepository(next ports.StreamRepository, size int, ttl time.Duration) *CachedStreamRepository {
	return &CachedStreamRepository{
		next:  next,
		cache: expirable.NewLRU[domain.StreamID, domain.Stream](size, nil, ttl),
	}
}

func (r *CachedStreamRepository) Create(ctx context.Context, stream *domain.Stream) error {
	return r.next.Create(ctx, stream)
}

func (r *CachedStreamRepository) GetByID(ctx context.Context, id domain.StreamID) (*domain.Stream, error) {
	if stream, ok := r.cache.Get(id); ok {
		return &stream, nil
	}
	stream, err := r.next.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	r.cache.Add(id, *stream)
	return stream, nil
}

func (r *CachedStreamRepository) Update(ctx context.Context, stream *domain.Stream) error {
	r.cache.Remove(stream.ID)
	return r.next.Update(ctx, stream)
}

func (r *CachedStreamRepository) Delete(ctx context.Context, id domain.StreamID) error {
	r.cache.Remove(id)
	return r.next.Delete(ctx, id)
}

func (r *CachedStreamRepository) List(ctx context.Context) ([]*domain.Stream, error) {
	return r.next.List(ctx)
}

// Len reports the number of cached entries.
func (r *CachedStreamRepository) Len() int {
	return r.cache.Len()
}
