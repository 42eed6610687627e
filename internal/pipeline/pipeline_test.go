package pipeline

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/movie-trends/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/movie-trends/internal/movies"
	"github.com/Adithya-Monish-Kumar-K/movie-trends/internal/store"
	"github.com/Adithya-Monish-Kumar-K/movie-trends/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/movie-trends/pkg/database"
	apperrors "github.com/Adithya-Monish-Kumar-K/movie-trends/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/movie-trends/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/movie-trends/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type genresFunc func(ctx context.Context) (catalog.GenreMap, error)

func (f genresFunc) FetchGenres(ctx context.Context) (catalog.GenreMap, error) { return f(ctx) }

type trendingFunc func(ctx context.Context) ([]catalog.TrendingMovie, error)

func (f trendingFunc) FetchTrending(ctx context.Context) ([]catalog.TrendingMovie, error) {
	return f(ctx)
}

type recordingWriter struct {
	calls   int
	records []movies.Record
	err     error
}

func (w *recordingWriter) WriteSnapshot(_ context.Context, records []movies.Record) (int, error) {
	w.calls++
	w.records = records
	if w.err != nil {
		return 0, w.err
	}
	return len(records), nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []movies.SnapshotCommitted
	err    error
}

func (n *recordingNotifier) SnapshotCommitted(_ context.Context, e movies.SnapshotCommitted) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
	return n.err
}

func staticGenres(m catalog.GenreMap) genresFunc {
	return func(context.Context) (catalog.GenreMap, error) { return m, nil }
}

func staticTrending(list []catalog.TrendingMovie) trendingFunc {
	return func(context.Context) ([]catalog.TrendingMovie, error) { return list, nil }
}

func TestRunCommitsEnrichedSnapshot(t *testing.T) {
	w := &recordingWriter{}
	n := &recordingNotifier{}
	m := metrics.NewUnregistered()
	p := New(Deps{
		Genres:   staticGenres(catalog.GenreMap{28: "Action", 12: "Adventure"}),
		Trending: staticTrending([]catalog.TrendingMovie{{ID: 1, Title: "A", GenreIDs: []int{28, 99}}, {ID: 2, Title: "B", GenreIDs: []int{12}}}),
		Writer:   w,
		Notifier: n,
		Metrics:  m,
	})

	ctx := logger.WithRunID(context.Background(), "run-1")
	res, err := p.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, "run-1", res.RunID)
	assert.Equal(t, 2, res.Written)
	assert.Equal(t, 1, w.calls)
	require.Len(t, w.records, 2)
	assert.Equal(t, "Action, Unknown", w.records[0].Genres)
	assert.Equal(t, 2, w.records[1].Rank)

	require.Len(t, n.events, 1)
	assert.Equal(t, "run-1", n.events[0].RunID)
	assert.Equal(t, 2, n.events[0].Count)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.PipelineRunsTotal.WithLabelValues("success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SnapshotMovies))
}

func TestRunGeneratesRunID(t *testing.T) {
	p := New(Deps{
		Genres:   staticGenres(catalog.GenreMap{}),
		Trending: staticTrending([]catalog.TrendingMovie{}),
		Writer:   &recordingWriter{},
		Metrics:  metrics.NewUnregistered(),
	})
	res, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, res.RunID, 36)
}

func TestRunFetchesConcurrently(t *testing.T) {
	var started sync.WaitGroup
	started.Add(2)
	both := make(chan struct{})
	go func() { started.Wait(); close(both) }()

	wait := func(ctx context.Context) error {
		started.Done()
		select {
		case <-both:
			return nil
		case <-time.After(2 * time.Second):
			return errors.New("other fetch never started")
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	p := New(Deps{
		Genres: genresFunc(func(ctx context.Context) (catalog.GenreMap, error) {
			return catalog.GenreMap{}, wait(ctx)
		}),
		Trending: trendingFunc(func(ctx context.Context) ([]catalog.TrendingMovie, error) {
			return []catalog.TrendingMovie{}, wait(ctx)
		}),
		Writer:  &recordingWriter{},
		Metrics: metrics.NewUnregistered(),
	})
	_, err := p.Run(context.Background())
	require.NoError(t, err)
}

func TestFetchFailureCancelsSiblingAndSkipsWrite(t *testing.T) {
	siblingCancelled := make(chan struct{})
	w := &recordingWriter{}
	m := metrics.NewUnregistered()
	p := New(Deps{
		Genres: genresFunc(func(context.Context) (catalog.GenreMap, error) {
			return nil, &apperrors.UpstreamError{Endpoint: "genres", StatusCode: http.StatusInternalServerError}
		}),
		Trending: trendingFunc(func(ctx context.Context) ([]catalog.TrendingMovie, error) {
			<-ctx.Done()
			close(siblingCancelled)
			return nil, ctx.Err()
		}),
		Writer:  w,
		Metrics: m,
	})

	_, err := p.Run(context.Background())
	require.ErrorIs(t, err, apperrors.ErrUpstream)
	assert.Equal(t, "upstream_status", ErrorClass(err))
	assert.Contains(t, err.Error(), StageFetchGenres)
	<-siblingCancelled
	assert.Zero(t, w.calls)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PipelineRunsTotal.WithLabelValues("failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StageFailuresTotal.WithLabelValues(StageFetchGenres, "upstream_status")))
}

func TestMissingTaxonomyAbortsBeforeWrite(t *testing.T) {
	w := &recordingWriter{}
	p := New(Deps{
		Genres:   staticGenres(nil),
		Trending: staticTrending([]catalog.TrendingMovie{{ID: 1, Title: "A"}}),
		Writer:   w,
		Metrics:  metrics.NewUnregistered(),
	})
	_, err := p.Run(context.Background())
	require.ErrorIs(t, err, apperrors.ErrMissingInput)
	assert.Equal(t, "missing_input", ErrorClass(err))
	assert.Zero(t, w.calls)
}

func TestWriterFailureIsReported(t *testing.T) {
	n := &recordingNotifier{}
	p := New(Deps{
		Genres:   staticGenres(catalog.GenreMap{}),
		Trending: staticTrending([]catalog.TrendingMovie{{ID: 1, Title: "A"}}),
		Writer: &recordingWriter{err: &apperrors.StorageError{
			Kind: apperrors.StorageUnreachable, Op: "delete", Err: errors.New("connection refused"),
		}},
		Notifier: n,
		Metrics:  metrics.NewUnregistered(),
	})
	_, err := p.Run(context.Background())
	require.ErrorIs(t, err, apperrors.ErrStorage)
	assert.Equal(t, "storage_unreachable", ErrorClass(err))
	assert.Empty(t, n.events)
}

func TestNotifierFailureDoesNotFailRun(t *testing.T) {
	p := New(Deps{
		Genres:   staticGenres(catalog.GenreMap{}),
		Trending: staticTrending([]catalog.TrendingMovie{}),
		Writer:   &recordingWriter{},
		Notifier: &recordingNotifier{err: errors.New("broker down")},
		Metrics:  metrics.NewUnregistered(),
	})
	_, err := p.Run(context.Background())
	require.NoError(t, err)
}

// fakeCatalog serves the two catalog endpoints. Tests swap the trending
// response between runs.
type fakeCatalog struct {
	mu             sync.Mutex
	trendingStatus int
	trendingBody   string
}

func (f *fakeCatalog) setTrending(status int, body string) {
	f.mu.Lock()
	f.trendingStatus, f.trendingBody = status, body
	f.mu.Unlock()
}

func (f *fakeCatalog) client(t *testing.T) *catalog.Client {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/3/genre/movie/list", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"genres":[{"id":28,"name":"Action"},{"id":18,"name":"Drama"}]}`))
	})
	mux.HandleFunc("/3/trending/movie/day", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		status, body := f.trendingStatus, f.trendingBody
		f.mu.Unlock()
		w.WriteHeader(status)
		w.Write([]byte(body))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return catalog.New(config.CatalogConfig{
		BaseURL: srv.URL + "/3",
		APIKey:  "k",
		Timeout: 2 * time.Second,
	}, metrics.NewUnregistered())
}

func TestEndToEndAgainstSQLite(t *testing.T) {
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "movies.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	s := store.New(db)
	ctx := context.Background()
	require.NoError(t, s.EnsureSchema(ctx))

	fake := &fakeCatalog{}
	fake.setTrending(http.StatusOK, `{"results":[
		{"id":5,"title":"Five","release_date":"2024-01-02","vote_average":7.1,"vote_count":40,"genre_ids":[28,18]},
		{"id":3,"title":"","genre_ids":[404]}
	]}`)
	client := fake.client(t)
	p := New(Deps{Genres: client, Trending: client, Writer: s, Metrics: metrics.NewUnregistered()})

	res, err := p.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Written)

	listings, err := s.ListMovies(ctx, true)
	require.NoError(t, err)
	require.Len(t, listings, 2)
	assert.Equal(t, "Five", listings[0].Title)
	assert.Equal(t, "Action, Drama", listings[0].Genres)
	assert.Equal(t, 2024, listings[0].ReleaseYear)
	assert.Equal(t, movies.UntitledPlaceholder, listings[1].Title)
	assert.Equal(t, "Unknown", listings[1].Genres)

	// A failing trending call leaves the committed snapshot alone.
	fake.setTrending(http.StatusInternalServerError, "")
	_, err = p.Run(ctx)
	var ue *apperrors.UpstreamError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, http.StatusInternalServerError, ue.StatusCode)

	after, err := s.ListMovies(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, listings, after)

	// An empty trending list commits an empty snapshot.
	fake.setTrending(http.StatusOK, `{"page":1,"results":[]}`)
	res, err = p.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Written)
	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestTrendingBodyWithoutResultsKeepsSnapshot(t *testing.T) {
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "movies.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	s := store.New(db)
	ctx := context.Background()
	require.NoError(t, s.EnsureSchema(ctx))

	fake := &fakeCatalog{}
	fake.setTrending(http.StatusOK, `{"results":[{"id":1,"title":"Kept","genre_ids":[28]}]}`)
	client := fake.client(t)
	m := metrics.NewUnregistered()
	p := New(Deps{Genres: client, Trending: client, Writer: s, Metrics: m})

	_, err = p.Run(ctx)
	require.NoError(t, err)

	// The catalog answers 200 with its error envelope instead of a listing.
	fake.setTrending(http.StatusOK, `{"status_code":34,"status_message":"The resource you requested could not be found."}`)
	_, err = p.Run(ctx)
	require.ErrorIs(t, err, catalog.ErrMalformedResponse)
	assert.Equal(t, "upstream_malformed", ErrorClass(err))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StageFailuresTotal.WithLabelValues(StageFetchTrending, "upstream_malformed")))

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	listings, err := s.ListMovies(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, "Kept", listings[0].Title)
}
