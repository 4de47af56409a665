package feed

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-activity-engine/internal/aggregate"
)

const baseMs int64 = 1_700_000_000_000

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestAdapter() (*Adapter, *aggregate.Store) {
	now := func() time.Time { return time.UnixMilli(baseMs) }
	store := aggregate.NewStore(aggregate.Options{Now: now, Logger: quietLogger()})
	return NewAdapter(store, AdapterOptions{Logger: quietLogger(), Now: now}), store
}

const (
	snapshotAB = `{"type":"Snapshot","data":{"mintA":{"tps":5},"mintB":{"tps":9}}}`
	updateA    = `{"type":"Update","data":{"mint":"mintA","symbol":"ALP"}}`
	tradeA     = `{"type":"Trade","data":{"mint":"mintA","signature":"sigA","isBuy":true,"solAmount":100,"tokenAmount":10,"traderAddress":"wallet1","timestamp":1700000000000}}`
)

func TestAdapter_GatesIncrementalUntilSnapshot(t *testing.T) {
	a, store := newTestAdapter()

	require.NoError(t, a.Handle([]byte(updateA)))
	require.NoError(t, a.Handle([]byte(tradeA)))
	assert.Equal(t, 0, store.Len())
	assert.Equal(t, uint64(2), a.Status().Dropped)
	assert.True(t, a.Status().AwaitingSnapshot)

	require.NoError(t, a.Handle([]byte(snapshotAB)))
	assert.False(t, a.Status().AwaitingSnapshot)
	assert.Equal(t, 2, store.Len())

	require.NoError(t, a.Handle([]byte(updateA)))
	agg, ok := store.GetAggregate("mintA")
	require.True(t, ok)
	assert.Equal(t, "ALP", agg.Symbol)

	// A reconnect closes the gate again.
	a.OnConnect()
	require.NoError(t, a.Handle([]byte(tradeA)))
	agg, _ = store.GetAggregate("mintA")
	assert.Empty(t, agg.RecentTrades)
	assert.Equal(t, uint64(3), a.Status().Dropped)

	require.NoError(t, a.Handle([]byte(snapshotAB)))
	require.NoError(t, a.Handle([]byte(tradeA)))
	agg, _ = store.GetAggregate("mintA")
	assert.Len(t, agg.RecentTrades, 1)
}

func TestAdapter_CountsDuplicatesAndMalformed(t *testing.T) {
	a, _ := newTestAdapter()
	require.NoError(t, a.Handle([]byte(snapshotAB)))

	require.NoError(t, a.Handle([]byte(tradeA)))
	require.NoError(t, a.Handle([]byte(tradeA)))

	err := a.Handle([]byte(`{"type":"Trade","data":{"mint":"mintA"}}`))
	assert.True(t, errors.Is(err, ErrMalformed))
	assert.NotPanics(t, func() { a.OnMessage([]byte("garbage")) })

	st := a.Status()
	assert.Equal(t, uint64(1), st.Trades)
	assert.Equal(t, uint64(1), st.Duplicates)
	assert.Equal(t, uint64(2), st.Malformed)
	assert.Equal(t, uint64(1), st.Snapshots)
	assert.Equal(t, baseMs, st.LastMessageAt)
	assert.Equal(t, 2, st.Mints)
}

func TestAdapter_PauseFreezesViewButKeepsIngesting(t *testing.T) {
	a, store := newTestAdapter()
	require.NoError(t, a.Handle([]byte(snapshotAB)))

	assert.Equal(t, []string{"mintB", "mintA"}, a.View().RankedByActivity())

	require.True(t, a.Pause())
	assert.False(t, a.Pause(), "already paused")
	assert.True(t, a.Status().Paused)
	assert.Equal(t, baseMs, a.Status().PausedAt)

	require.NoError(t, a.Handle([]byte(tradeA)))
	require.NoError(t, a.Handle([]byte(`{"type":"Update","data":{"mint":"mintC","tps":3}}`)))

	frozen, ok := a.View().GetAggregate("mintA")
	require.True(t, ok)
	assert.Empty(t, frozen.RecentTrades, "paused view does not move")
	assert.Equal(t, 2, a.View().Len())

	live, _ := store.GetAggregate("mintA")
	assert.Len(t, live.RecentTrades, 1, "ingestion continues while paused")
	assert.Equal(t, 3, store.Len())
	st := a.Status()
	assert.Equal(t, 2, st.Mints, "status follows the frozen view")
	assert.Equal(t, 3, st.LiveMints)

	require.True(t, a.Resume())
	assert.False(t, a.Resume())
	resumed, _ := a.View().GetAggregate("mintA")
	assert.Len(t, resumed.RecentTrades, 1, "resume shows current truth")
	assert.Equal(t, 3, a.View().Len())
	assert.Equal(t, 3, a.Status().Mints)
}

func TestAdapter_ConnectionState(t *testing.T) {
	a, _ := newTestAdapter()
	assert.False(t, a.Status().Connected)

	a.OnConnect()
	assert.True(t, a.Status().Connected)
	assert.Equal(t, uint64(1), a.Status().Connects)

	a.OnDisconnect(errors.New("read: connection reset"))
	assert.False(t, a.Status().Connected)
}
