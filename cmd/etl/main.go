package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/movie-trends/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/movie-trends/internal/events"
	"github.com/Adithya-Monish-Kumar-K/movie-trends/internal/pipeline"
	"github.com/Adithya-Monish-Kumar-K/movie-trends/internal/scheduler"
	"github.com/Adithya-Monish-Kumar-K/movie-trends/internal/store"
	"github.com/Adithya-Monish-Kumar-K/movie-trends/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/movie-trends/pkg/database"
	"github.com/Adithya-Monish-Kumar-K/movie-trends/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/movie-trends/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/movie-trends/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	once := flag.Bool("once", false, "run the pipeline once and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting movie trends etl",
		"driver", cfg.Database.Driver,
		"interval", cfg.Pipeline.Interval,
		"once", *once,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(prometheus.DefaultRegisterer)
	if cfg.Metrics.Enabled {
		ms := metrics.NewServer(cfg.Metrics.Port, prometheus.DefaultGatherer)
		ms.Start()
		defer ms.Shutdown(context.Background())
	}

	db, err := database.New(cfg)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	movieStore := store.New(db)
	if err := movieStore.EnsureSchema(ctx); err != nil {
		slog.Error("failed to create schema", "error", err)
		os.Exit(1)
	}

	client := catalog.New(cfg.Catalog, m)
	deps := pipeline.Deps{
		Genres:   client,
		Trending: client,
		Writer:   movieStore,
		Metrics:  m,
		Tracing:  cfg.Tracing.Enabled,
	}
	if len(cfg.Kafka.Brokers) > 0 {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.SnapshotCommitted)
		defer producer.Close()
		deps.Notifier = events.NewSnapshotPublisher(producer)
		slog.Info("snapshot events enabled", "topic", cfg.Kafka.Topics.SnapshotCommitted)
	} else {
		slog.Info("kafka not configured, snapshot events disabled")
	}

	sched := scheduler.New(pipeline.New(deps), cfg.Pipeline, m)

	if *once {
		res, err := sched.RunOnce(ctx)
		if err != nil {
			slog.Error("pipeline run failed", "error", err)
			os.Exit(1)
		}
		slog.Info("pipeline run complete", "run_id", res.RunID, "movies", res.Written)
		return
	}

	if err := sched.Start(ctx); err != nil {
		slog.Error("scheduler error", "error", err)
		os.Exit(1)
	}
	slog.Info("movie trends etl stopped")
}
