package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/movie-trends/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestClient connects to MT_TEST_REDIS_ADDR and skips when it is unset or
// unreachable.
func newTestClient(t *testing.T) *Client {
	t.Helper()
	addr := os.Getenv("MT_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("MT_TEST_REDIS_ADDR not set")
	}
	c, err := NewClient(config.RedisConfig{Addr: addr, DB: 15, PoolSize: 2})
	if err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestGetSetAndMiss(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	key := "mt-test:" + t.Name()

	_, err := c.Get(ctx, key)
	require.ErrorIs(t, err, ErrMiss)

	require.NoError(t, c.Set(ctx, key, "v", time.Minute))
	v, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "v", v)
	require.NoError(t, c.Del(ctx, key))
}

func TestJSONAndPrefixDelete(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	prefix := "mt-test:" + t.Name() + ":"

	type item struct{ N int }
	require.NoError(t, c.SetJSON(ctx, prefix+"a", item{N: 1}, time.Minute))
	require.NoError(t, c.SetJSON(ctx, prefix+"b", item{N: 2}, time.Minute))

	var got item
	require.NoError(t, c.GetJSON(ctx, prefix+"b", &got))
	assert.Equal(t, 2, got.N)

	n, err := c.DeletePrefix(ctx, prefix)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	require.ErrorIs(t, c.GetJSON(ctx, prefix+"a", &got), ErrMiss)
}
