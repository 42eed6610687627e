// Package tracing records an in-process span tree for a pipeline run. The
// root span carries the run id as its trace id; stages hang off it as
// children and the whole tree is written to the structured log when the run
// ends.
package tracing

import (
	"context"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/movie-trends/pkg/logger"
)

type contextKey struct{}

type Span struct {
	Name    string
	TraceID string
	Start   time.Time

	mu       sync.Mutex
	duration time.Duration
	ended    bool
	children []*Span
	attrs    map[string]any
}

func newSpan(name, traceID string) *Span {
	return &Span{Name: name, TraceID: traceID, Start: time.Now(), attrs: map[string]any{}}
}

// StartSpan opens a root span for traceID.
func StartSpan(ctx context.Context, name, traceID string) (context.Context, *Span) {
	span := newSpan(name, traceID)
	return context.WithValue(ctx, contextKey{}, span), span
}

// StartChildSpan opens a span under the one in ctx. Without a parent the span
// is a detached root with an empty trace id.
func StartChildSpan(ctx context.Context, name string) (context.Context, *Span) {
	parent := SpanFromContext(ctx)
	if parent == nil {
		child := newSpan(name, "")
		return context.WithValue(ctx, contextKey{}, child), child
	}
	child := newSpan(name, parent.TraceID)
	parent.mu.Lock()
	parent.children = append(parent.children, child)
	parent.mu.Unlock()
	return context.WithValue(ctx, contextKey{}, child), child
}

func SpanFromContext(ctx context.Context) *Span {
	span, _ := ctx.Value(contextKey{}).(*Span)
	return span
}

// End fixes the span's duration. Only the first call counts.
func (s *Span) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.ended = true
	s.duration = time.Since(s.Start)
}

func (s *Span) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.duration
}

func (s *Span) SetAttr(key string, value any) {
	s.mu.Lock()
	s.attrs[key] = value
	s.mu.Unlock()
}

// Children returns the direct children ordered by start time.
func (s *Span) Children() []*Span {
	s.mu.Lock()
	out := slices.Clone(s.children)
	s.mu.Unlock()
	slices.SortStableFunc(out, func(a, b *Span) int { return a.Start.Compare(b.Start) })
	return out
}

// Durations maps each child span name to its duration.
func (s *Span) Durations() map[string]time.Duration {
	out := map[string]time.Duration{}
	for _, c := range s.Children() {
		out[c.Name] = c.Duration()
	}
	return out
}

// Log writes the tree depth-first at debug level through the context logger.
func (s *Span) Log(ctx context.Context) {
	s.log(logger.FromContext(ctx).With("component", "tracing"), 0)
}

func (s *Span) log(log *slog.Logger, depth int) {
	s.mu.Lock()
	attrs := []any{
		"trace_id", s.TraceID,
		"span", s.Name,
		"duration_ms", s.duration.Milliseconds(),
		"depth", depth,
	}
	for _, k := range slices.Sorted(maps.Keys(s.attrs)) {
		attrs = append(attrs, k, s.attrs[k])
	}
	s.mu.Unlock()
	log.Debug("span", attrs...)

	for _, child := range s.Children() {
		child.log(log, depth+1)
	}
}
