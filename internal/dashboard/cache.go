package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/movie-trends/internal/movies"
	"github.com/Adithya-Monish-Kumar-K/movie-trends/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/movie-trends/pkg/redis"
	"golang.org/x/sync/singleflight"
)

const keyPrefix = "movies:list:"

// Store is satisfied by *redis.Client.
type Store interface {
	GetJSON(ctx context.Context, key string, out any) error
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
	DeletePrefix(ctx context.Context, prefix string) (int64, error)
}

// ListCache keeps the stored snapshot in Redis so dashboard reads do not hit
// the database on every request. Concurrent misses for the same ordering
// share one database read. A nil store turns the cache into a pass-through.
type ListCache struct {
	store   Store
	ttl     time.Duration
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewListCache(store Store, ttl time.Duration, m *metrics.Metrics) *ListCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &ListCache{
		store:   store,
		ttl:     ttl,
		metrics: m,
		logger:  slog.Default().With("component", "movie-list-cache"),
	}
}

// GetOrLoad returns the cached listing for the ordering, calling load on a
// miss. Cache errors are logged and treated as misses.
func (c *ListCache) GetOrLoad(ctx context.Context, byRank bool, load func(ctx context.Context) ([]movies.Listing, error)) ([]movies.Listing, error) {
	if c.store == nil {
		return load(ctx)
	}
	key := buildKey(byRank)
	if listings, ok := c.get(ctx, key); ok {
		return listings, nil
	}
	val, err, _ := c.group.Do(key, func() (any, error) {
		if listings, ok := c.get(ctx, key); ok {
			return listings, nil
		}
		listings, err := load(ctx)
		if err != nil {
			return nil, err
		}
		if err := c.store.SetJSON(ctx, key, listings, c.ttl); err != nil {
			c.logger.Error("cache set failed", "key", key, "error", err)
		}
		return listings, nil
	})
	if err != nil {
		return nil, err
	}
	return val.([]movies.Listing), nil
}

func (c *ListCache) get(ctx context.Context, key string) ([]movies.Listing, bool) {
	var listings []movies.Listing
	if err := c.store.GetJSON(ctx, key, &listings); err != nil {
		if !errors.Is(err, redis.ErrMiss) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		c.metrics.CacheMissesTotal.WithLabelValues("movies").Inc()
		return nil, false
	}
	c.metrics.CacheHitsTotal.WithLabelValues("movies").Inc()
	if listings == nil {
		listings = []movies.Listing{}
	}
	return listings, true
}

// Invalidate drops every cached listing.
func (c *ListCache) Invalidate(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	deleted, err := c.store.DeletePrefix(ctx, keyPrefix)
	if err != nil {
		return fmt.Errorf("invalidating movie list cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return nil
}

func buildKey(byRank bool) string {
	if byRank {
		return keyPrefix + "rank"
	}
	return keyPrefix + "stored"
}
