// Package events publishes snapshot lifecycle events to Kafka.
package events

import (
	"context"

	"github.com/Adithya-Monish-Kumar-K/movie-trends/internal/movies"
	"github.com/Adithya-Monish-Kumar-K/movie-trends/pkg/kafka"
)

// SnapshotKey keys every snapshot event so they land on one partition in
// commit order.
const SnapshotKey = "movies"

type Publisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// SnapshotPublisher implements pipeline.Notifier on top of a Kafka producer.
type SnapshotPublisher struct {
	producer Publisher
}

func NewSnapshotPublisher(p Publisher) *SnapshotPublisher {
	return &SnapshotPublisher{producer: p}
}

func (p *SnapshotPublisher) SnapshotCommitted(ctx context.Context, event movies.SnapshotCommitted) error {
	return p.producer.Publish(ctx, kafka.Event{Key: SnapshotKey, Value: event})
}
