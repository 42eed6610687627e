package catalog

import (
	"context"
	"net/url"
	"strings"
)

// FetchGenres retrieves the movie genre taxonomy. Entries with an empty name
// are dropped and a repeated id keeps its first name, so the returned map has
// no empty names. A non-2xx response is an *errors.UpstreamError carrying the
// status code; the call is never retried here.
func (c *Client) FetchGenres(ctx context.Context) (GenreMap, error) {
	query := url.Values{}
	if c.language != "" {
		query.Set("language", c.language)
	}
	var resp genreListResponse
	if err := c.get(ctx, endpointGenres, "/genre/movie/list", query, &resp); err != nil {
		return nil, err
	}
	genres := NewGenreMap(resp.Genres)
	if dropped := len(resp.Genres) - len(genres); dropped > 0 {
		c.logger.Warn("ignored unusable genre entries", "dropped", dropped)
	}
	c.logger.Debug("genres fetched", "count", len(genres))
	return genres, nil
}

// NewGenreMap builds a GenreMap from a genre list.
func NewGenreMap(list []Genre) GenreMap {
	genres := make(GenreMap, len(list))
	for _, g := range list {
		name := strings.TrimSpace(g.Name)
		if name == "" {
			continue
		}
		if _, seen := genres[g.ID]; seen {
			continue
		}
		genres[g.ID] = name
	}
	return genres
}
