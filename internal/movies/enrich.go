package movies

import (
	"strings"

	"github.com/Adithya-Monish-Kumar-K/movie-trends/internal/catalog"
	apperrors "github.com/Adithya-Monish-Kumar-K/movie-trends/pkg/errors"
)

// Enrich joins genre names onto the trending list and ranks it. The record at
// index i has Rank i+1; order is never changed. Genre names keep the order of
// the movie's genre ids and ids missing from genres render as "Unknown".
//
// A nil trending list or nil genre map means an upstream stage produced no
// output and yields a *errors.MissingInputError. An empty, non-nil list is a
// valid day with nothing trending.
func Enrich(trending []catalog.TrendingMovie, genres catalog.GenreMap) ([]Record, error) {
	if trending == nil {
		return nil, &apperrors.MissingInputError{Input: "trending movies"}
	}
	if genres == nil {
		return nil, &apperrors.MissingInputError{Input: "genre map"}
	}

	records := make([]Record, 0, len(trending))
	for i, m := range trending {
		title := strings.TrimSpace(m.Title)
		if title == "" {
			title = UntitledPlaceholder
		}
		records = append(records, Record{
			ID:          m.ID,
			Rank:        i + 1,
			Title:       title,
			Overview:    m.Overview,
			ReleaseDate: strings.TrimSpace(m.ReleaseDate),
			VoteAverage: m.VoteAverage,
			VoteCount:   m.VoteCount,
			Genres:      JoinGenres(m.GenreIDs, genres),
		})
	}
	return records, nil
}

// JoinGenres renders ids as a ", "-separated list of names.
func JoinGenres(ids []int, genres catalog.GenreMap) string {
	if len(ids) == 0 {
		return ""
	}
	names := make([]string, len(ids))
	for i, id := range ids {
		name, ok := genres[id]
		if !ok {
			name = UnknownGenre
		}
		names[i] = name
	}
	return strings.Join(names, ", ")
}

// SplitGenres is the inverse of JoinGenres for display filtering.
func SplitGenres(genres string) []string {
	if strings.TrimSpace(genres) == "" {
		return nil
	}
	return strings.Split(genres, ", ")
}
