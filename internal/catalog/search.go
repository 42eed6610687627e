package catalog

import (
	"context"
	"errors"
	"net/url"
	"strings"
)

// ErrNoPoster is returned by SearchPoster when the search has no results or
// the best match has no poster.
var ErrNoPoster = errors.New("no poster available")

// SearchPoster searches the catalog for title and returns the full image URL
// of the first result's poster.
func (c *Client) SearchPoster(ctx context.Context, title string) (string, error) {
	query := url.Values{}
	query.Set("query", title)
	var resp searchResponse
	if err := c.get(ctx, endpointSearch, "/search/movie", query, &resp); err != nil {
		return "", err
	}
	if len(resp.Results) == 0 {
		return "", ErrNoPoster
	}
	first := resp.Results[0]
	if first.PosterPath == nil || strings.TrimSpace(*first.PosterPath) == "" {
		return "", ErrNoPoster
	}
	return c.ImageURL(*first.PosterPath), nil
}

// ImageURL joins a catalog poster path onto the configured image base URL.
func (c *Client) ImageURL(posterPath string) string {
	if !strings.HasPrefix(posterPath, "/") {
		posterPath = "/" + posterPath
	}
	return c.imageBaseURL + posterPath
}
