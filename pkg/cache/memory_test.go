package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Symbol string
	Value  float64
}

func TestMemoryCacheTypedRoundTrip(t *testing.T) {
	c := NewMemoryCache()
	defer c.Close()
	ctx := context.Background()

	in := &payload{Symbol: "CAT", Value: 1.5}
	require.NoError(t, c.Set(ctx, "k", in, time.Minute))

	var out *payload
	require.NoError(t, c.Get(ctx, "k", &out))
	assert.Equal(t, in, out)

	var generic interface{}
	require.NoError(t, c.Get(ctx, "k", &generic))
	assert.Same(t, in, generic.(*payload))
}

func TestMemoryCacheMiss(t *testing.T) {
	c := NewMemoryCache()
	defer c.Close()

	var out *payload
	err := c.Get(context.Background(), "absent", &out)
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryCacheExpiry(t *testing.T) {
	c := NewMemoryCache()
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", &payload{}, time.Millisecond))
	time.Sleep(5 * time.Millisecond)

	var out *payload
	assert.ErrorIs(t, c.Get(ctx, "k", &out), ErrCacheMiss)
}

func TestMemoryCacheFlush(t *testing.T) {
	c := NewMemoryCache()
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", &payload{}, time.Minute))
	require.NoError(t, c.Set(ctx, "b", &payload{}, time.Minute))
	require.NoError(t, c.Flush(ctx))

	ok, err := c.Exists(ctx, "a", "b")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryCacheEvictsLRU(t *testing.T) {
	c := NewMemoryCache(WithMemoryMaxSize(2))
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "old", &payload{}, time.Minute))
	time.Sleep(2 * time.Millisecond)
	require.NoError(t, c.Set(ctx, "new", &payload{}, time.Minute))
	time.Sleep(2 * time.Millisecond)

	// Touch "old" so "new" becomes the eviction candidate.
	var out *payload
	require.NoError(t, c.Get(ctx, "old", &out))
	time.Sleep(2 * time.Millisecond)
	require.NoError(t, c.Set(ctx, "third", &payload{}, time.Minute))

	ok, err := c.Exists(ctx, "old")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = c.Exists(ctx, "new")
	require.NoError(t, err)
	assert.False(t, ok)
}
