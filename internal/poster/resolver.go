// Package poster resolves a movie title to a poster image URL for the
// dashboard. Lookups go through a Redis cache and a circuit breaker; any
// failure degrades to a placeholder image.
package poster

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/movie-trends/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/movie-trends/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/movie-trends/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/movie-trends/pkg/resilience"
)

// DefaultPlaceholder is shown when no poster can be resolved.
const DefaultPlaceholder = "https://via.placeholder.com/150"

var (
	ErrPosterNetwork   = errors.New("poster lookup: network failure")
	ErrPosterNotFound  = errors.New("poster lookup: no poster")
	ErrPosterMalformed = errors.New("poster lookup: malformed response")
)

// notFoundMarker is cached for titles with no poster so they are not
// searched again until the entry expires.
const notFoundMarker = "-"

type Searcher interface {
	SearchPoster(ctx context.Context, title string) (string, error)
}

// Cache is satisfied by *redis.Client. Get must return redis.ErrMiss for
// absent keys.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
}

type Options struct {
	Placeholder string
	TTL         time.Duration
	// Breaker defaults to 5 failures and a 30s reset.
	Breaker resilience.CircuitBreakerConfig
}

type Resolver struct {
	search      Searcher
	cache       Cache
	ttl         time.Duration
	placeholder string
	breaker     *resilience.CircuitBreaker
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

// NewResolver builds a Resolver. cache may be nil to disable caching.
func NewResolver(search Searcher, cache Cache, opts Options, m *metrics.Metrics) *Resolver {
	if opts.Placeholder == "" {
		opts.Placeholder = DefaultPlaceholder
	}
	if opts.TTL <= 0 {
		opts.TTL = 24 * time.Hour
	}
	bcfg := opts.Breaker
	bcfg.IsFailure = func(err error) bool {
		return !errors.Is(err, catalog.ErrNoPoster)
	}
	bcfg.OnStateChange = func(name string, to resilience.State) {
		m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
	}
	return &Resolver{
		search:      search,
		cache:       cache,
		ttl:         opts.TTL,
		placeholder: opts.Placeholder,
		breaker:     resilience.NewCircuitBreaker("poster-search", bcfg),
		metrics:     m,
		logger:      slog.Default().With("component", "poster-resolver"),
	}
}

// Resolve returns the poster URL for title, or the placeholder when the
// lookup fails for any reason.
func (r *Resolver) Resolve(ctx context.Context, title string) string {
	url, err := r.Lookup(ctx, title)
	if err != nil {
		if !errors.Is(err, ErrPosterNotFound) {
			r.logger.Debug("poster lookup failed", "title", title, "error", err)
		}
		return r.placeholder
	}
	return url
}

// Placeholder returns the URL Resolve falls back to.
func (r *Resolver) Placeholder() string { return r.placeholder }

// Lookup returns the poster URL for title. Errors wrap exactly one of
// ErrPosterNetwork, ErrPosterNotFound or ErrPosterMalformed.
func (r *Resolver) Lookup(ctx context.Context, title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		r.metrics.PosterLookupsTotal.WithLabelValues("not_found").Inc()
		return "", fmt.Errorf("%w: empty title", ErrPosterNotFound)
	}
	key := "poster:" + strings.ToLower(title)

	if cached, ok := r.fromCache(ctx, key); ok {
		r.metrics.PosterLookupsTotal.WithLabelValues("cached").Inc()
		if cached == notFoundMarker {
			return "", fmt.Errorf("%w: %q (cached)", ErrPosterNotFound, title)
		}
		return cached, nil
	}

	url, err := resilience.Call(r.breaker, func() (string, error) {
		return r.search.SearchPoster(ctx, title)
	})
	if err != nil {
		class, result := classify(err)
		r.metrics.PosterLookupsTotal.WithLabelValues(result).Inc()
		if errors.Is(class, ErrPosterNotFound) {
			r.toCache(ctx, key, notFoundMarker)
		}
		return "", fmt.Errorf("%w: %q: %w", class, title, err)
	}
	r.metrics.PosterLookupsTotal.WithLabelValues("found").Inc()
	r.toCache(ctx, key, url)
	return url, nil
}

func classify(err error) (error, string) {
	switch {
	case errors.Is(err, catalog.ErrNoPoster):
		return ErrPosterNotFound, "not_found"
	case errors.Is(err, catalog.ErrMalformedResponse):
		return ErrPosterMalformed, "malformed"
	case errors.Is(err, resilience.ErrCircuitOpen):
		return ErrPosterNetwork, "circuit_open"
	default:
		return ErrPosterNetwork, "network"
	}
}

func (r *Resolver) fromCache(ctx context.Context, key string) (string, bool) {
	if r.cache == nil {
		return "", false
	}
	v, err := r.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, redis.ErrMiss) {
			r.logger.Warn("poster cache read failed", "error", err)
		}
		r.metrics.CacheMissesTotal.WithLabelValues("poster").Inc()
		return "", false
	}
	r.metrics.CacheHitsTotal.WithLabelValues("poster").Inc()
	return v, true
}

func (r *Resolver) toCache(ctx context.Context, key, value string) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Set(ctx, key, value, r.ttl); err != nil {
		r.logger.Warn("poster cache write failed", "error", err)
	}
}
