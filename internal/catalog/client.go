package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/movie-trends/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/movie-trends/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/movie-trends/pkg/metrics"
	"golang.org/x/time/rate"
)

// ErrMalformedResponse is returned when a 2xx response body cannot be decoded.
var ErrMalformedResponse = errors.New("malformed catalog response")

const (
	endpointGenres   = "genres"
	endpointTrending = "trending"
	endpointSearch   = "search"
)

// Client talks to the catalog API. It is safe for concurrent use.
type Client struct {
	baseURL      string
	imageBaseURL string
	apiKey       string
	language     string
	httpClient   *http.Client
	limiter      *rate.Limiter
	metrics      *metrics.Metrics
	logger       *slog.Logger
}

// New creates a Client from cfg. Requests time out after cfg.Timeout and are
// rate limited to cfg.RequestsPerSecond with the configured burst.
func New(cfg config.CatalogConfig, m *metrics.Metrics) *Client {
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		imageBaseURL: strings.TrimRight(cfg.ImageBaseURL, "/"),
		apiKey:       cfg.APIKey,
		language:     cfg.Language,
		httpClient:   &http.Client{Timeout: cfg.Timeout},
		limiter:      rate.NewLimiter(limit, burst),
		metrics:      m,
		logger:       slog.Default().With("component", "catalog-client"),
	}
}

// get issues a GET for path with the given query parameters and decodes a
// 2xx JSON body into out. Every failure is an *apperrors.UpstreamError.
func (c *Client) get(ctx context.Context, endpoint, path string, query url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return &apperrors.UpstreamError{Endpoint: endpoint, Timeout: isTimeout(err), Err: err}
	}

	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return &apperrors.UpstreamError{Endpoint: endpoint, Err: fmt.Errorf("building url: %w", err)}
	}
	if query == nil {
		query = url.Values{}
	}
	query.Set("api_key", c.apiKey)
	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return &apperrors.UpstreamError{Endpoint: endpoint, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.CatalogRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		timeout := isTimeout(err)
		status := "error"
		if timeout {
			status = "timeout"
		}
		c.metrics.CatalogRequestsTotal.WithLabelValues(endpoint, status).Inc()
		return &apperrors.UpstreamError{Endpoint: endpoint, Timeout: timeout, Err: redact(err, c.apiKey)}
	}
	defer resp.Body.Close()
	c.metrics.CatalogRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Warn("catalog returned non-success status",
			"endpoint", endpoint,
			"status", resp.StatusCode,
			"body", string(body),
		)
		return &apperrors.UpstreamError{Endpoint: endpoint, StatusCode: resp.StatusCode}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if isTimeout(err) {
			return &apperrors.UpstreamError{Endpoint: endpoint, Timeout: true, Err: err}
		}
		return &apperrors.UpstreamError{Endpoint: endpoint, Err: fmt.Errorf("%w: %v", ErrMalformedResponse, err)}
	}
	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// redact strips the API key from transport errors, which embed the full URL.
func redact(err error, apiKey string) error {
	if apiKey == "" || !strings.Contains(err.Error(), apiKey) {
		return err
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return &url.Error{
			Op:  urlErr.Op,
			URL: strings.ReplaceAll(urlErr.URL, apiKey, "REDACTED"),
			Err: urlErr.Err,
		}
	}
	return errors.New(strings.ReplaceAll(err.Error(), apiKey, "REDACTED"))
}
