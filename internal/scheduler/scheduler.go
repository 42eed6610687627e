// Package scheduler triggers pipeline runs on a fixed interval, retries a
// failed run after a fixed delay and never lets two runs overlap.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/movie-trends/internal/pipeline"
	"github.com/Adithya-Monish-Kumar-K/movie-trends/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/movie-trends/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/movie-trends/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/movie-trends/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/movie-trends/pkg/resilience"
	"github.com/google/uuid"
)

// ErrRunInProgress is returned by RunOnce while another run holds the lock.
var ErrRunInProgress = errors.New("pipeline run already in progress")

type Runner interface {
	Run(ctx context.Context) (*pipeline.Result, error)
}

type Scheduler struct {
	runner  Runner
	cfg     config.PipelineConfig
	metrics *metrics.Metrics
	running sync.Mutex
	logger  *slog.Logger
}

func New(runner Runner, cfg config.PipelineConfig, m *metrics.Metrics) *Scheduler {
	return &Scheduler{
		runner:  runner,
		cfg:     cfg,
		metrics: m,
		logger:  slog.Default().With("component", "scheduler"),
	}
}

// RunOnce performs one scheduled run: up to RetryAttempts attempts, each
// bounded by RunTimeout, separated by RetryDelay. All attempts share one run
// id. Missing-input failures are not retried.
func (s *Scheduler) RunOnce(ctx context.Context) (*pipeline.Result, error) {
	if !s.running.TryLock() {
		s.logger.Warn("skipping trigger, previous run still active")
		return nil, ErrRunInProgress
	}
	defer s.running.Unlock()

	runID := uuid.NewString()
	ctx = logger.WithRunID(ctx, runID)
	log := logger.FromContext(ctx).With("component", "scheduler")

	policy := resilience.Fixed(s.cfg.RetryAttempts, s.cfg.RetryDelay)
	policy.Retryable = func(err error) bool {
		return !errors.Is(err, apperrors.ErrMissingInput)
	}
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		s.metrics.PipelineRetriesTotal.Inc()
		log.Warn("pipeline run will be retried", "attempt", attempt, "delay", delay, "class", pipeline.ErrorClass(err))
	}

	result, err := resilience.Do(ctx, "pipeline run", policy, func(ctx context.Context) (*pipeline.Result, error) {
		return resilience.Within(ctx, s.cfg.RunTimeout, "pipeline run", s.runner.Run)
	})
	if err != nil {
		log.Error("pipeline run failed", "error", err)
		return nil, err
	}
	return result, nil
}

// Start blocks, running the pipeline every Interval (and once immediately
// when RunOnStart is set) until ctx is cancelled. Run failures are logged;
// the next tick tries again.
func (s *Scheduler) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	s.logger.Info("scheduler started", "interval", s.cfg.Interval, "run_on_start", s.cfg.RunOnStart)

	if s.cfg.RunOnStart {
		s.trigger(ctx)
	}
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopping")
			return nil
		case <-ticker.C:
			s.trigger(ctx)
		}
	}
}

func (s *Scheduler) trigger(ctx context.Context) {
	res, err := s.RunOnce(ctx)
	if err != nil {
		return
	}
	s.logger.Info("scheduled run complete", "run_id", res.RunID, "movies", res.Written)
}
