package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/movie-trends/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/movie-trends/internal/dashboard"
	"github.com/Adithya-Monish-Kumar-K/movie-trends/internal/poster"
	"github.com/Adithya-Monish-Kumar-K/movie-trends/internal/store"
	"github.com/Adithya-Monish-Kumar-K/movie-trends/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/movie-trends/pkg/database"
	"github.com/Adithya-Monish-Kumar-K/movie-trends/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/movie-trends/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/movie-trends/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/movie-trends/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/movie-trends/pkg/middleware"
	pkgredis "github.com/Adithya-Monish-Kumar-K/movie-trends/pkg/redis"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
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
	slog.Info("starting movie dashboard api", "port", cfg.Server.Port)

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

	checker := health.NewChecker()
	checker.Register("database", health.PingCheck(db))

	// Both caches are optional; without Redis every request reads the store
	// and searches posters directly.
	var (
		listStore   dashboard.Store
		posterCache poster.Cache
	)
	if cfg.Redis.Addr != "" {
		redisClient, err := pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			listStore, posterCache = redisClient, redisClient
			checker.Register("redis", health.OptionalPingCheck(redisClient))
			slog.Info("caching enabled", "addr", cfg.Redis.Addr, "movies_ttl", cfg.Redis.MoviesTTL, "poster_ttl", cfg.Redis.PosterTTL)
		}
	}
	listCache := dashboard.NewListCache(listStore, cfg.Redis.MoviesTTL, m)

	if len(cfg.Kafka.Brokers) > 0 {
		consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.SnapshotCommitted, dashboard.InvalidateOnSnapshot(listCache))
		go func() {
			if err := consumer.Start(ctx); err != nil {
				slog.Error("snapshot consumer error", "error", err)
			}
		}()
		defer consumer.Close()
		slog.Info("listening for snapshot events", "topic", cfg.Kafka.Topics.SnapshotCommitted)
	}

	resolver := poster.NewResolver(catalog.New(cfg.Catalog, m), posterCache, poster.Options{
		Placeholder: cfg.Catalog.PlaceholderPosterURL,
		TTL:         cfg.Redis.PosterTTL,
	}, m)

	var limiter *middleware.ClientLimiter
	if cfg.Server.RateLimitRPS > 0 {
		limiter = middleware.NewClientLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst, cfg.Server.TrustProxy)
		go func() {
			ticker := time.NewTicker(time.Minute)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case now := <-ticker.C:
					limiter.Sweep(now)
				}
			}
		}()
	}

	svc := dashboard.NewService(store.New(db), listCache, resolver)
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      dashboard.NewRouter(dashboard.NewHandler(svc), checker, m, cfg.Server.RequestTimeout, limiter),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("dashboard api listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("dashboard api stopped")
}
