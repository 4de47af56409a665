package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-activity-engine/internal/domain"
)

type fakeClock struct {
	t time.Time
}

func (f *fakeClock) Now() time.Time { return f.t }

func (f *fakeClock) Advance(d time.Duration) { f.t = f.t.Add(d) }

func TestMemoryCache_GetPut(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(MemoryOptions{Capacity: 4, TTL: time.Minute})

	_, err := c.Get(ctx, "mintA")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, c.Put(ctx, domain.TokenInfo{Mint: "mintA", Name: "Alpha", Symbol: "ALP"}))

	got, err := c.Get(ctx, "mintA")
	require.NoError(t, err)
	assert.Equal(t, "ALP", got.Symbol)

	// Returned value is a copy.
	got.Symbol = "changed"
	again, err := c.Get(ctx, "mintA")
	require.NoError(t, err)
	assert.Equal(t, "ALP", again.Symbol)
}

func TestMemoryCache_Expiry(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.UnixMilli(1_700_000_000_000)}
	c := NewMemoryCache(MemoryOptions{Capacity: 4, TTL: time.Minute, Now: clock.Now})

	require.NoError(t, c.Put(ctx, domain.TokenInfo{Mint: "mintA", Symbol: "ALP"}))

	clock.Advance(59 * time.Second)
	_, err := c.Get(ctx, "mintA")
	require.NoError(t, err)

	clock.Advance(time.Second)
	_, err = c.Get(ctx, "mintA")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 0, c.Len())
}

func TestMemoryCache_EvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(MemoryOptions{Capacity: 2, TTL: time.Hour})

	require.NoError(t, c.Put(ctx, domain.TokenInfo{Mint: "mintA"}))
	require.NoError(t, c.Put(ctx, domain.TokenInfo{Mint: "mintB"}))

	// Touch A so B becomes the eviction candidate.
	_, err := c.Get(ctx, "mintA")
	require.NoError(t, err)

	require.NoError(t, c.Put(ctx, domain.TokenInfo{Mint: "mintC"}))

	assert.Equal(t, 2, c.Len())
	_, err = c.Get(ctx, "mintB")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = c.Get(ctx, "mintA")
	assert.NoError(t, err)
	_, err = c.Get(ctx, "mintC")
	assert.NoError(t, err)
}

func TestMemoryCache_PutReplacesAndDelete(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(MemoryOptions{})

	require.NoError(t, c.Put(ctx, domain.TokenInfo{Mint: "mintA", Symbol: "OLD"}))
	require.NoError(t, c.Put(ctx, domain.TokenInfo{Mint: "mintA", Symbol: "NEW"}))
	assert.Equal(t, 1, c.Len())

	got, err := c.Get(ctx, "mintA")
	require.NoError(t, err)
	assert.Equal(t, "NEW", got.Symbol)

	require.NoError(t, c.Delete(ctx, "mintA"))
	require.NoError(t, c.Delete(ctx, "missing"))
	_, err = c.Get(ctx, "mintA")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Error(t, c.Put(ctx, domain.TokenInfo{}))
}
