package navigator

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-activity-engine/internal/aggregate"
	"solana-activity-engine/internal/cache"
	"solana-activity-engine/internal/domain"
)

const t0 int64 = 1_700_000_000_000

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func fixedNow() time.Time { return time.UnixMilli(t0) }

func newStore() *aggregate.Store {
	return aggregate.NewStore(aggregate.Options{Now: fixedNow, Logger: quietLogger()})
}

// seed loads mints with the given rates through a snapshot.
func seed(s *aggregate.Store, rates map[string]float64) {
	snap := make(map[string]domain.MintAggregate, len(rates))
	for mint, tps := range rates {
		snap[mint] = domain.MintAggregate{Mint: mint, TPS: tps}
	}
	s.ApplySnapshot(snap)
}

// seedRanked loads n mints named mint00.. with strictly decreasing rates.
func seedRanked(s *aggregate.Store, n int) []string {
	rates := make(map[string]float64, n)
	names := make([]string, n)
	for i := 0; i < n; i++ {
		names[i] = fmt.Sprintf("mint%02d", i)
		rates[names[i]] = float64(n - i)
	}
	seed(s, rates)
	return names
}

func newSession(src Source) *Session {
	return NewSession("test", src, Options{Logger: quietLogger(), Now: fixedNow})
}

func stackOf(s *Session) []string {
	stack, _ := s.Stack()
	return stack
}

func TestSession_StartSeedsTopK(t *testing.T) {
	store := newStore()
	names := seedRanked(store, 8)

	s := newSession(Static(store))
	assert.Equal(t, Idle, s.State())

	require.NoError(t, s.Start(""))
	assert.Equal(t, Navigating, s.State())
	assert.Equal(t, names[:6], stackOf(s))

	_, cursor := s.Stack()
	assert.Equal(t, 0, cursor)

	assert.ErrorIs(t, s.Start(""), ErrAlreadyStarted)
}

func TestSession_StartPinned(t *testing.T) {
	store := newStore()
	seed(store, map[string]float64{"mintA": 5, "mintB": 9})

	t.Run("ranked mint moves to front", func(t *testing.T) {
		s := newSession(Static(store))
		require.NoError(t, s.Start("mintA"))
		assert.Equal(t, []string{"mintA", "mintB"}, stackOf(s))
	})

	t.Run("unknown mint is a placeholder", func(t *testing.T) {
		s := newSession(Static(store))
		require.NoError(t, s.Start("mintZ"))
		assert.Equal(t, []string{"mintZ", "mintB", "mintA"}, stackOf(s))

		cur, ok := s.Current(context.Background())
		require.True(t, ok)
		assert.True(t, cur.Placeholder)
		assert.Equal(t, PlaceholderLabel, cur.Label)
	})

	t.Run("pinned counts toward stack size", func(t *testing.T) {
		big := newStore()
		names := seedRanked(big, 10)
		s := newSession(Static(big))
		require.NoError(t, s.Start(names[9]))
		want := append([]string{names[9]}, names[:5]...)
		assert.Equal(t, want, stackOf(s))
	})
}

func TestSession_StackStableUnderRankingChanges(t *testing.T) {
	store := newStore()
	names := seedRanked(store, 8)

	s := newSession(Static(store))
	require.NoError(t, s.Start(""))
	before := stackOf(s)

	// mint07 becomes the most active mint.
	for i := 0; i < 600; i++ {
		tr := domain.TradeEvent{
			Mint:          names[7],
			Signature:     fmt.Sprintf("sig%d", i+1),
			IsBuy:         true,
			SolAmount:     1000,
			TokenAmount:   10,
			TraderAddress: "wallet1",
			Timestamp:     t0,
		}
		_, err := store.ApplyTrade(names[7], tr)
		require.NoError(t, err)
	}
	require.Equal(t, names[7], store.RankedByActivity()[0])

	assert.Equal(t, before, stackOf(s), "ranking changes do not reorder the stack")

	entries := s.Entries(context.Background())
	require.Len(t, entries, 6)
	for i, e := range entries {
		assert.Equal(t, i, e.Index)
		assert.Equal(t, before[i], e.Mint)
	}

	added, err := s.LoadMore()
	require.NoError(t, err)
	assert.Equal(t, 2, added)
	assert.Equal(t, append(before, names[7], names[6]), stackOf(s))
}

func TestSession_EntriesAreFresh(t *testing.T) {
	store := newStore()
	seed(store, map[string]float64{"mintA": 5, "mintB": 9})

	s := newSession(Static(store))
	require.NoError(t, s.Start(""))

	tr := domain.TradeEvent{
		Mint: "mintA", Signature: "sigA", IsBuy: true,
		SolAmount: 2000, TokenAmount: 10, TraderAddress: "wallet1", Timestamp: t0,
	}
	_, err := store.ApplyTrade("mintA", tr)
	require.NoError(t, err)

	entries := s.Entries(context.Background())
	require.Len(t, entries, 2)
	assert.Equal(t, "mintA", entries[1].Mint)
	assert.Equal(t, uint64(2000), entries[1].BuyVolume)
	assert.Equal(t, 200.0, entries[1].Price)
	assert.Equal(t, 1, entries[1].Traders)
	assert.Nil(t, entries[1].Liquidity)
}

func TestSession_AdvanceClampsAndLoadsMore(t *testing.T) {
	store := newStore()
	names := seedRanked(store, 10)

	s := newSession(Static(store))
	require.NoError(t, s.Start(""))

	moved, err := s.Advance(Backward)
	require.NoError(t, err)
	assert.False(t, moved, "no wraparound at the top")

	moved, err = s.Advance(Forward)
	require.NoError(t, err)
	assert.True(t, moved)
	assert.Len(t, stackOf(s), 6, "four entries ahead, no load")

	_, err = s.Advance(Forward)
	require.NoError(t, err)
	stack, cursor := s.Stack()
	assert.Equal(t, 2, cursor)
	assert.Equal(t, names[:9], stack, "three ahead triggers a batch of three")

	for i := 0; i < 20; i++ {
		_, err = s.Advance(Forward)
		require.NoError(t, err)
	}
	stack, cursor = s.Stack()
	assert.Equal(t, names, stack)
	assert.Equal(t, 9, cursor)
	assert.Equal(t, Navigating, s.State())

	moved, err = s.Advance(Forward)
	require.NoError(t, err)
	assert.False(t, moved, "no wraparound at the bottom")

	moved, err = s.Advance(Backward)
	require.NoError(t, err)
	assert.True(t, moved)
	_, cursor = s.Stack()
	assert.Equal(t, 8, cursor)
}

func TestSession_ClampedForwardStillLoads(t *testing.T) {
	t.Run("empty stack", func(t *testing.T) {
		store := newStore()
		s := newSession(Static(store))
		require.NoError(t, s.Start(""))
		require.Empty(t, stackOf(s))

		names := seedRanked(store, 10)
		moved, err := s.Advance(Forward)
		require.NoError(t, err)
		assert.False(t, moved)
		stack, cursor := s.Stack()
		assert.Equal(t, names[:3], stack)
		assert.Equal(t, 0, cursor)

		moved, err = s.Advance(Forward)
		require.NoError(t, err)
		assert.True(t, moved)
	})

	t.Run("cursor on last entry", func(t *testing.T) {
		store := newStore()
		seedRanked(store, 2)
		s := newSession(Static(store))
		require.NoError(t, s.Start(""))

		_, err := s.Advance(Forward)
		require.NoError(t, err)
		stack, cursor := s.Stack()
		require.Len(t, stack, 2)
		require.Equal(t, 1, cursor)

		names := seedRanked(store, 10)
		moved, err := s.Advance(Forward)
		require.NoError(t, err)
		assert.False(t, moved)
		stack, cursor = s.Stack()
		assert.Equal(t, names[:5], stack)
		assert.Equal(t, 1, cursor)
	})

	t.Run("backward at top does not load", func(t *testing.T) {
		store := newStore()
		s := newSession(Static(store))
		require.NoError(t, s.Start(""))
		seedRanked(store, 10)

		_, err := s.Advance(Backward)
		require.NoError(t, err)
		assert.Empty(t, stackOf(s))
	})
}

func TestSession_NotStarted(t *testing.T) {
	s := newSession(Static(newStore()))

	_, err := s.Advance(Forward)
	assert.ErrorIs(t, err, ErrNotStarted)
	_, err = s.LoadMore()
	assert.ErrorIs(t, err, ErrNotStarted)

	_, ok := s.Current(context.Background())
	assert.False(t, ok)
	assert.Empty(t, s.Entries(context.Background()))
}

func TestSession_PlaceholderForRemovedMint(t *testing.T) {
	store := newStore()
	seed(store, map[string]float64{"mintA": 5, "mintB": 9})

	s := newSession(Static(store))
	require.NoError(t, s.Start(""))

	// A fresh snapshot no longer carries mintA.
	seed(store, map[string]float64{"mintB": 9, "mintC": 1})

	entries := s.Entries(context.Background())
	require.Len(t, entries, 2)
	assert.False(t, entries[0].Placeholder)
	assert.Equal(t, Entry{Index: 1, Mint: "mintA", Label: PlaceholderLabel, Placeholder: true}, entries[1])

	// Index 1 still resolves to mintA.
	_, err := s.Advance(Forward)
	require.NoError(t, err)
	cur, ok := s.Current(context.Background())
	require.True(t, ok)
	assert.Equal(t, "mintA", cur.Mint)
	assert.True(t, cur.Placeholder)
}

func TestSession_Labels(t *testing.T) {
	const longMint = "So11111111111111111111111111111111111111112"

	store := newStore()
	store.ApplySnapshot(map[string]domain.MintAggregate{
		"mintA":  {Mint: "mintA", TPS: 3, Symbol: "FEED"},
		"mintB":  {Mint: "mintB", TPS: 2, Symbol: "BET"},
		longMint: {Mint: longMint, TPS: 1},
	})

	labels := cache.NewMemoryCache(cache.DefaultMemoryOptions())
	ctx := context.Background()
	require.NoError(t, labels.Put(ctx, domain.TokenInfo{Mint: "mintA", Symbol: "ALP"}))

	s := NewSession("labels", Static(store), Options{Labels: labels, Logger: quietLogger(), Now: fixedNow})
	require.NoError(t, s.Start(""))

	entries := s.Entries(ctx)
	require.Len(t, entries, 3)
	assert.Equal(t, "ALP", entries[0].Label, "cache wins over feed metadata")
	assert.Equal(t, "BET", entries[1].Label)
	assert.Equal(t, "So11…1112", entries[2].Label)

	info, err := labels.Get(ctx, "mintB")
	require.NoError(t, err)
	assert.Equal(t, "BET", info.Symbol, "feed metadata written through")
}

func TestShortMint(t *testing.T) {
	assert.Equal(t, "mintA", ShortMint("mintA"))
	assert.Equal(t, "abcd…wxyz", ShortMint("abcdefghijklmnopqrstuvwxyz"))
}

// gatedReader blocks RankedByActivity until released once armed.
type gatedReader struct {
	aggregate.Reader
	armed   bool
	entered chan struct{}
	release chan struct{}
}

func (g *gatedReader) RankedByActivity() []string {
	if g.armed {
		g.entered <- struct{}{}
		<-g.release
	}
	return g.Reader.RankedByActivity()
}

func TestSession_LoadMoreWhileLoadingIsNoop(t *testing.T) {
	store := newStore()
	names := seedRanked(store, 9)

	g := &gatedReader{Reader: store, entered: make(chan struct{}), release: make(chan struct{})}
	s := newSession(Static(g))
	require.NoError(t, s.Start(""))
	g.armed = true

	done := make(chan int, 1)
	go func() {
		n, _ := s.LoadMore()
		done <- n
	}()
	<-g.entered
	assert.Equal(t, Loading, s.State())

	n, err := s.LoadMore()
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	close(g.release)
	select {
	case n := <-done:
		assert.Equal(t, 3, n)
	case <-time.After(2 * time.Second):
		t.Fatal("LoadMore did not finish")
	}
	assert.Equal(t, Navigating, s.State())
	assert.Equal(t, names, stackOf(s))
}

func TestSession_Stop(t *testing.T) {
	store := newStore()
	seedRanked(store, 3)

	s := newSession(Static(store))
	require.NoError(t, s.Start(""))
	s.Stop()

	assert.Equal(t, Idle, s.State())
	assert.Empty(t, stackOf(s))
	require.NoError(t, s.Start(""), "a stopped session can start again")
}

func TestSession_FollowsPausedView(t *testing.T) {
	store := newStore()
	seed(store, map[string]float64{"mintA": 5})
	frozen := store.Freeze()

	var current aggregate.Reader = frozen
	s := newSession(SourceFunc(func() aggregate.Reader { return current }))
	require.NoError(t, s.Start(""))

	seed(store, map[string]float64{"mintA": 7})
	cur, _ := s.Current(context.Background())
	assert.Equal(t, 5.0, cur.TPS)

	current = store
	cur, _ = s.Current(context.Background())
	assert.Equal(t, 7.0, cur.TPS)
}

func TestParseDirection(t *testing.T) {
	d, err := ParseDirection("next")
	require.NoError(t, err)
	assert.Equal(t, Forward, d)

	d, err = ParseDirection("back")
	require.NoError(t, err)
	assert.Equal(t, Backward, d)

	_, err = ParseDirection("sideways")
	assert.ErrorIs(t, err, ErrInvalidDirection)
}
