// Package dashboard serves the read-only movie dashboard API over the stored
// snapshot: filtered listings with poster images and the genre list.
package dashboard

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/movie-trends/internal/movies"
	apperrors "github.com/Adithya-Monish-Kumar-K/movie-trends/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// maxPosterLookups bounds concurrent poster resolutions per request.
const maxPosterLookups = 8

// allValue is accepted for genre and year as "no filter".
const allValue = "All"

type MovieSource interface {
	ListMovies(ctx context.Context, byRank bool) ([]movies.Listing, error)
}

type PosterResolver interface {
	Resolve(ctx context.Context, title string) string
}

// Filter narrows the listing. Zero values match everything.
type Filter struct {
	Genre     string  `json:"genre,omitempty"`
	Year      int     `json:"year,omitempty"`
	MinRating float64 `json:"min_rating,omitempty"`
	ByRank    bool    `json:"by_rank"`
}

// ParseFilter reads genre, year, min_rating and sort from query values.
func ParseFilter(q url.Values) (Filter, error) {
	var f Filter
	if g := strings.TrimSpace(q.Get("genre")); g != "" && g != allValue {
		f.Genre = g
	}
	if y := strings.TrimSpace(q.Get("year")); y != "" && y != allValue {
		year, err := strconv.Atoi(y)
		if err != nil || year <= 0 {
			return Filter{}, fmt.Errorf("%w: year must be a positive integer, got %q", apperrors.ErrInvalidInput, y)
		}
		f.Year = year
	}
	if r := strings.TrimSpace(q.Get("min_rating")); r != "" {
		rating, err := strconv.ParseFloat(r, 64)
		if err != nil || rating < 0 || rating > 10 {
			return Filter{}, fmt.Errorf("%w: min_rating must be between 0 and 10, got %q", apperrors.ErrInvalidInput, r)
		}
		f.MinRating = rating
	}
	switch s := q.Get("sort"); s {
	case "", "stored":
	case "rank":
		f.ByRank = true
	default:
		return Filter{}, fmt.Errorf("%w: unknown sort %q", apperrors.ErrInvalidInput, s)
	}
	return f, nil
}

// Match reports whether l passes every set criterion: genre is a substring
// of the genres string, release year is equal, vote average is at least
// MinRating.
func (f Filter) Match(l movies.Listing) bool {
	if f.Genre != "" && !strings.Contains(l.Genres, f.Genre) {
		return false
	}
	if f.Year != 0 && l.ReleaseYear != f.Year {
		return false
	}
	return l.VoteAverage >= f.MinRating
}

type Service struct {
	source  MovieSource
	cache   *ListCache
	posters PosterResolver
	logger  *slog.Logger
}

// NewService wires the dashboard read path. posters may be nil, in which case
// listings carry no poster URL.
func NewService(source MovieSource, cache *ListCache, posters PosterResolver) *Service {
	return &Service{
		source:  source,
		cache:   cache,
		posters: posters,
		logger:  slog.Default().With("component", "dashboard"),
	}
}

func (s *Service) load(ctx context.Context, byRank bool) ([]movies.Listing, error) {
	if s.cache == nil {
		return s.source.ListMovies(ctx, byRank)
	}
	return s.cache.GetOrLoad(ctx, byRank, func(ctx context.Context) ([]movies.Listing, error) {
		return s.source.ListMovies(ctx, byRank)
	})
}

// Movies returns the filtered snapshot with poster URLs resolved.
func (s *Service) Movies(ctx context.Context, f Filter) ([]movies.Listing, error) {
	all, err := s.load(ctx, f.ByRank)
	if err != nil {
		return nil, err
	}
	out := make([]movies.Listing, 0, len(all))
	for _, l := range all {
		if f.Match(l) {
			out = append(out, l)
		}
	}
	if s.posters == nil || len(out) == 0 {
		return out, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxPosterLookups)
	for i := range out {
		g.Go(func() error {
			out[i].PosterURL = s.posters.Resolve(gctx, out[i].Title)
			return nil
		})
	}
	g.Wait()
	return out, nil
}

// Genres returns the sorted distinct genre names present in the snapshot.
func (s *Service) Genres(ctx context.Context) ([]string, error) {
	all, err := s.load(ctx, false)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	for _, l := range all {
		for _, g := range movies.SplitGenres(l.Genres) {
			seen[g] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for g := range seen {
		names = append(names, g)
	}
	sort.Strings(names)
	return names, nil
}
