package draftcache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afterword/afterword/internal/kv"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestCache() (*Cache, *clock) {
	clk := &clock{t: time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)}
	c := New(kv.NewMemoryStore())
	c.now = clk.now
	return c, clk
}

func TestSetAndGet(t *testing.T) {
	c, _ := newTestCache()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "work-1", "hello world"))
	d, ok, err := c.Get(ctx, "work-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "hello world", d.Content)
}

func TestClear(t *testing.T) {
	c, _ := newTestCache()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "work-2", "text"))
	require.NoError(t, c.Clear(ctx, "work-2"))
	_, ok, err := c.Get(ctx, "work-2")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Clear(ctx, "never-cached"))
}

func TestExpiredDraftsAreDropped(t *testing.T) {
	c, clk := newTestCache()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "work-3", "old"))
	clk.t = clk.t.Add(8 * 24 * time.Hour)
	require.NoError(t, c.Cleanup(ctx))

	_, ok, err := c.Get(ctx, "work-3")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEvictsLeastRecentlyAccessed(t *testing.T) {
	c, clk := newTestCache()
	ctx := context.Background()

	for i := 0; i < MaxDrafts; i++ {
		require.NoError(t, c.Set(ctx, fmt.Sprintf("w%d", i), "x"))
		clk.t = clk.t.Add(time.Minute)
	}

	// Reading w0 makes it the most recently used.
	_, ok, err := c.Get(ctx, "w0")
	require.NoError(t, err)
	require.True(t, ok)
	clk.t = clk.t.Add(time.Minute)

	require.NoError(t, c.Set(ctx, "new", "y"))

	_, ok, _ = c.Get(ctx, "w1")
	assert.False(t, ok, "w1 was least recently used")
	_, ok, _ = c.Get(ctx, "w0")
	assert.True(t, ok)
	_, ok, _ = c.Get(ctx, "new")
	assert.True(t, ok)
}

func TestCorruptBlobIsEmpty(t *testing.T) {
	store := kv.NewMemoryStore()
	require.NoError(t, store.Set(context.Background(), Key, "{broken", 0))

	c := New(store)
	_, ok, err := c.Get(context.Background(), "w")
	require.NoError(t, err)
	assert.False(t, ok)
}
