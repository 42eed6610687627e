package catalog

import (
	"context"
	"fmt"

	apperrors "github.com/Adithya-Monish-Kumar-K/movie-trends/pkg/errors"
)

// FetchTrending retrieves today's trending movies. The returned order is the
// catalog's ranking and is preserved as-is. Only the first page is read.
func (c *Client) FetchTrending(ctx context.Context) ([]TrendingMovie, error) {
	var resp trendingResponse
	if err := c.get(ctx, endpointTrending, "/trending/movie/day", nil, &resp); err != nil {
		return nil, err
	}
	if resp.Results == nil {
		return nil, &apperrors.UpstreamError{
			Endpoint: endpointTrending,
			Err:      fmt.Errorf("%w: no results array", ErrMalformedResponse),
		}
	}
	movies := *resp.Results
	if movies == nil {
		movies = []TrendingMovie{}
	}
	c.logger.Debug("trending movies fetched", "count", len(movies))
	return movies, nil
}
