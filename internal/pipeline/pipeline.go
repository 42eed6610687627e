// Package pipeline runs one ETL pass: fetch the genre taxonomy and the
// trending list concurrently, join them into ranked records, and replace the
// stored snapshot. Stage outputs are handed forward as return values; any
// stage failure aborts the run before the snapshot is touched.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/movie-trends/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/movie-trends/internal/movies"
	apperrors "github.com/Adithya-Monish-Kumar-K/movie-trends/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/movie-trends/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/movie-trends/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/movie-trends/pkg/tracing"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Stage names, used in logs, spans and metric labels.
const (
	StageFetchGenres   = "fetch_genres"
	StageFetchTrending = "fetch_trending"
	StageEnrich        = "enrich"
	StageWrite         = "write_snapshot"
)

type GenreFetcher interface {
	FetchGenres(ctx context.Context) (catalog.GenreMap, error)
}

type TrendingFetcher interface {
	FetchTrending(ctx context.Context) ([]catalog.TrendingMovie, error)
}

type SnapshotWriter interface {
	WriteSnapshot(ctx context.Context, records []movies.Record) (int, error)
}

// Notifier is told about every committed snapshot. A failing notifier is
// logged and does not fail the run.
type Notifier interface {
	SnapshotCommitted(ctx context.Context, event movies.SnapshotCommitted) error
}

// Deps are the collaborators of a Pipeline. Notifier may be nil.
type Deps struct {
	Genres   GenreFetcher
	Trending TrendingFetcher
	Writer   SnapshotWriter
	Notifier Notifier
	Metrics  *metrics.Metrics
	Tracing  bool
}

type Pipeline struct {
	deps Deps
}

// Result summarises a committed run.
type Result struct {
	RunID      string
	Fetched    int
	Written    int
	StartedAt  time.Time
	FinishedAt time.Time
}

func New(deps Deps) *Pipeline {
	return &Pipeline{deps: deps}
}

// Run executes the four stages once. The run id is taken from ctx (see
// logger.WithRunID) or generated. On error nothing has been committed.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	runID := logger.RunID(ctx)
	if runID == "" {
		runID = uuid.NewString()
		ctx = logger.WithRunID(ctx, runID)
	}
	log := logger.FromContext(ctx).With("component", "pipeline")
	res := &Result{RunID: runID, StartedAt: time.Now()}

	ctx, span := tracing.StartSpan(ctx, "pipeline.run", runID)
	defer func() {
		span.End()
		if p.deps.Tracing {
			span.Log(ctx)
		}
	}()

	log.Info("pipeline run started")
	records, err := p.extract(ctx)
	if err != nil {
		return nil, p.failed(log, res, err)
	}
	res.Fetched = len(records)

	written, err := stage(p, ctx, StageWrite, func(ctx context.Context) (int, error) {
		return p.deps.Writer.WriteSnapshot(ctx, records)
	})
	if err != nil {
		return nil, p.failed(log, res, err)
	}
	res.Written = written
	res.FinishedAt = time.Now()
	span.SetAttr("movies", written)

	m := p.deps.Metrics
	m.PipelineRunsTotal.WithLabelValues("success").Inc()
	m.PipelineRunDuration.Observe(res.FinishedAt.Sub(res.StartedAt).Seconds())
	m.SnapshotMovies.Set(float64(written))
	m.LastSuccessTimestamp.Set(float64(res.FinishedAt.Unix()))

	if p.deps.Notifier != nil {
		event := movies.SnapshotCommitted{RunID: runID, Count: written, CommittedAt: res.FinishedAt.UTC()}
		if err := p.deps.Notifier.SnapshotCommitted(ctx, event); err != nil {
			log.Warn("snapshot notification failed", "error", err)
		}
	}

	stageMS := map[string]int64{}
	for name, d := range span.Durations() {
		stageMS[name] = d.Milliseconds()
	}
	log.Info("pipeline run committed",
		"movies", written,
		"duration_ms", res.FinishedAt.Sub(res.StartedAt).Milliseconds(),
		"stage_ms", stageMS,
	)
	return res, nil
}

// extract runs both fetches concurrently and joins their outputs. A failure
// in one fetch cancels the other.
func (p *Pipeline) extract(ctx context.Context) ([]movies.Record, error) {
	var (
		genres   catalog.GenreMap
		trending []catalog.TrendingMovie
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		genres, err = stage(p, gctx, StageFetchGenres, func(ctx context.Context) (catalog.GenreMap, error) {
			return p.deps.Genres.FetchGenres(ctx)
		})
		return err
	})
	g.Go(func() error {
		var err error
		trending, err = stage(p, gctx, StageFetchTrending, func(ctx context.Context) ([]catalog.TrendingMovie, error) {
			return p.deps.Trending.FetchTrending(ctx)
		})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return stage(p, ctx, StageEnrich, func(context.Context) ([]movies.Record, error) {
		return movies.Enrich(trending, genres)
	})
}

func (p *Pipeline) failed(log *slog.Logger, res *Result, err error) error {
	m := p.deps.Metrics
	m.PipelineRunsTotal.WithLabelValues("failure").Inc()
	m.PipelineRunDuration.Observe(time.Since(res.StartedAt).Seconds())
	log.Error("pipeline run aborted", "error", err, "class", ErrorClass(err))
	return fmt.Errorf("pipeline run %s: %w", res.RunID, err)
}

// stage times fn under a child span and records failures by class.
func stage[T any](p *Pipeline, ctx context.Context, name string, fn func(ctx context.Context) (T, error)) (T, error) {
	ctx, span := tracing.StartChildSpan(ctx, name)
	start := time.Now()
	out, err := fn(ctx)
	span.End()
	p.deps.Metrics.StageDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		class := ErrorClass(err)
		span.SetAttr("error", class)
		p.deps.Metrics.StageFailuresTotal.WithLabelValues(name, class).Inc()
		return out, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}

// ErrorClass names the failure taxonomy bucket err falls into.
func ErrorClass(err error) string {
	var (
		ue *apperrors.UpstreamError
		se *apperrors.StorageError
	)
	switch {
	case errors.As(err, &ue):
		if ue.Timeout {
			return "upstream_timeout"
		}
		if ue.StatusCode != 0 {
			return "upstream_status"
		}
		if errors.Is(err, catalog.ErrMalformedResponse) {
			return "upstream_malformed"
		}
		return "upstream_network"
	case errors.Is(err, apperrors.ErrMissingInput):
		return "missing_input"
	case errors.As(err, &se):
		return "storage_" + string(se.Kind)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "other"
	}
}
