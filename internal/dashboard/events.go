package dashboard

import (
	"context"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/movie-trends/internal/movies"
	"github.com/Adithya-Monish-Kumar-K/movie-trends/pkg/kafka"
)

// InvalidateOnSnapshot returns a consumer handler that drops the cached
// listing whenever a new snapshot is committed.
func InvalidateOnSnapshot(cache *ListCache) kafka.MessageHandler {
	logger := slog.Default().With("component", "snapshot-listener")
	return func(ctx context.Context, _ []byte, value []byte) error {
		event, err := kafka.DecodeJSON[movies.SnapshotCommitted](value)
		if err != nil {
			return err
		}
		logger.Info("snapshot committed", "run_id", event.RunID, "count", event.Count, "committed_at", event.CommittedAt)
		return cache.Invalidate(ctx)
	}
}
