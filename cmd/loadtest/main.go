// Command loadtest drives the dashboard API with a rotating mix of movie
// filters and prints latency percentiles and the status code breakdown.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

type options struct {
	baseURL     string
	concurrency int
	duration    time.Duration
	rps         float64
}

func main() {
	var opts options
	flag.StringVar(&opts.baseURL, "url", "http://localhost:8080", "base URL of the dashboard API")
	flag.IntVar(&opts.concurrency, "concurrency", 10, "number of concurrent workers")
	flag.DurationVar(&opts.duration, "duration", 30*time.Second, "test duration")
	flag.Float64Var(&opts.rps, "rps", 0, "overall request rate limit (0 = unlimited)")
	flag.Parse()

	queries := buildQueries(opts.baseURL)
	fmt.Println("=== Movie Dashboard Load Test ===")
	fmt.Printf("Target:      %s\n", opts.baseURL)
	fmt.Printf("Concurrency: %d\n", opts.concurrency)
	fmt.Printf("Duration:    %s\n", opts.duration)
	fmt.Printf("Queries:     %d unique\n\n", len(queries))

	samples := run(opts, queries)
	s := summarize(samples, opts.duration)
	s.print(os.Stdout)
	if s.total == 0 {
		fmt.Println("\nWARNING: No requests completed. Is the dashboard running?")
		os.Exit(1)
	}
}

// buildQueries mixes fixed filter combinations with the genres the target
// currently serves.
func buildQueries(baseURL string) []string {
	queries := []string{
		"",
		"sort=rank",
		"min_rating=7",
		"year=2024&sort=rank",
		"min_rating=8.5&sort=rank",
	}
	resp, err := http.Get(baseURL + "/api/v1/genres")
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not list genres, using fixed queries: %v\n", err)
		return queries
	}
	defer resp.Body.Close()
	var body struct {
		Genres []string `json:"genres"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return queries
	}
	for _, g := range body.Genres {
		q := url.Values{"genre": {g}}
		queries = append(queries, q.Encode())
		q.Set("min_rating", "6")
		q.Set("sort", "rank")
		queries = append(queries, q.Encode())
	}
	return queries
}

// run starts one goroutine per worker. Each keeps its own samples so the hot
// path takes no locks; they are merged once every worker has stopped.
func run(opts options, queries []string) []sample {
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        opts.concurrency * 2,
			MaxIdleConnsPerHost: opts.concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.rps > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.rps), opts.concurrency)
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.duration)
	defer cancel()
	go progress(ctx)

	perWorker := make([][]sample, opts.concurrency)
	var g errgroup.Group
	for w := range opts.concurrency {
		g.Go(func() error {
			for i := w; limiter.Wait(ctx) == nil; i++ {
				smp, ok := hit(ctx, client, opts.baseURL+"/api/v1/movies?"+queries[i%len(queries)])
				if !ok {
					break
				}
				perWorker[w] = append(perWorker[w], smp)
			}
			return nil
		})
	}
	g.Wait()
	fmt.Println(" done!")
	fmt.Println()

	var all []sample
	for _, s := range perWorker {
		all = append(all, s...)
	}
	return all
}

// hit issues one request. ok is false once the test deadline has passed.
func hit(ctx context.Context, client *http.Client, target string) (sample, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return sample{err: err}, true
	}
	start := time.Now()
	resp, err := client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		if ctx.Err() != nil {
			return sample{}, false
		}
		return sample{latency: elapsed, err: err}, true
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return sample{latency: elapsed, status: resp.StatusCode}, true
}

func progress(ctx context.Context) {
	fmt.Print("Running")
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fmt.Print(".")
		}
	}
}
