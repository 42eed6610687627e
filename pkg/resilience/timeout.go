package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Within runs fn under a context that expires after d. When the deadline,
// and not the parent, ended the call, the error names op and the limit.
// d <= 0 means no limit.
func Within[T any](ctx context.Context, d time.Duration, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	if d <= 0 {
		return fn(ctx)
	}
	bounded, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	out, err := fn(bounded)
	if err != nil && ctx.Err() == nil && errors.Is(bounded.Err(), context.DeadlineExceeded) {
		return out, fmt.Errorf("%s exceeded %v: %w", op, d, err)
	}
	return out, err
}
