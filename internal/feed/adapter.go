// Package feed normalizes the push feed into aggregate store writes.
//
// A Client owns the transport and its reconnect loop; an Adapter parses frames,
// gates incremental messages behind a fresh snapshot after every connect and
// exposes a pausable read view of the store.
package feed

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"solana-activity-engine/internal/aggregate"
	"solana-activity-engine/internal/observability"
)

// Status is the connectivity indicator exposed to consumers. Times are Unix ms.
type Status struct {
	Connected        bool   `json:"connected"`
	AwaitingSnapshot bool   `json:"awaiting_snapshot"`
	Paused           bool   `json:"paused"`
	PausedAt         int64  `json:"paused_at,omitempty"`
	Connects         uint64 `json:"connects"`
	LastMessageAt    int64  `json:"last_message_at,omitempty"`
	LastSnapshotAt   int64  `json:"last_snapshot_at,omitempty"`

	Snapshots  uint64 `json:"snapshots"`
	Updates    uint64 `json:"updates"`
	Trades     uint64 `json:"trades"`
	Duplicates uint64 `json:"duplicates"`
	Malformed  uint64 `json:"malformed"`
	Dropped    uint64 `json:"dropped"`    // well-formed but not applied
	Mints      int    `json:"mints"`      // in the visible view, frozen while paused
	LiveMints  int    `json:"live_mints"` // in the live store
}

// AdapterOptions configures an Adapter.
type AdapterOptions struct {
	Logger logrus.FieldLogger
	// Now overrides the clock (tests).
	Now func() time.Time
}

// Adapter applies feed messages to a store. It implements Handler.
type Adapter struct {
	store  *aggregate.Store
	logger logrus.FieldLogger
	now    func() time.Time

	connected        atomic.Bool
	awaitingSnapshot atomic.Bool
	frozen           atomic.Pointer[aggregate.Frozen]

	connects       atomic.Uint64
	lastMessageAt  atomic.Int64
	lastSnapshotAt atomic.Int64
	snapshots      atomic.Uint64
	updates        atomic.Uint64
	trades         atomic.Uint64
	duplicates     atomic.Uint64
	malformed      atomic.Uint64
	dropped        atomic.Uint64
}

var _ Handler = (*Adapter)(nil)

// NewAdapter creates an adapter. It starts out awaiting a snapshot.
func NewAdapter(store *aggregate.Store, opts AdapterOptions) *Adapter {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	a := &Adapter{
		store:  store,
		logger: opts.Logger.WithField("component", "feed_adapter"),
		now:    opts.Now,
	}
	a.awaitingSnapshot.Store(true)
	return a
}

// OnConnect resets the snapshot gate: incremental messages wait for a fresh snapshot.
func (a *Adapter) OnConnect() {
	a.connects.Add(1)
	a.connected.Store(true)
	a.awaitingSnapshot.Store(true)
}

// OnDisconnect marks the feed offline. Store state is kept as last known truth.
func (a *Adapter) OnDisconnect(err error) {
	a.connected.Store(false)
	a.logger.WithError(err).Debug("feed offline, awaiting reconnect")
}

// OnMessage handles one frame. Errors are logged and counted, never returned.
func (a *Adapter) OnMessage(data []byte) {
	_ = a.Handle(data)
}

// Handle parses and applies one frame. Malformed frames return an error
// matching ErrMalformed; everything else returns nil.
func (a *Adapter) Handle(data []byte) error {
	start := time.Now()

	msg, err := ParseMessage(data)
	if err != nil {
		a.malformed.Add(1)
		observability.RecordMalformed(MalformedReason(err))
		a.logger.WithError(err).Warn("dropping malformed feed message")
		return err
	}
	a.lastMessageAt.Store(a.now().UnixMilli())

	if msg.Skipped > 0 {
		observability.RecordFeedDropped("invalid_entry")
		a.logger.WithFields(logrus.Fields{
			"type":    msg.Type,
			"skipped": msg.Skipped,
		}).Warn("skipped invalid entries in feed message")
	}

	switch msg.Type {
	case MessageSnapshot:
		n := a.store.ApplySnapshot(msg.Snapshot)
		a.awaitingSnapshot.Store(false)
		a.snapshots.Add(1)
		a.lastSnapshotAt.Store(a.now().UnixMilli())
		observability.RecordSnapshot(n)
		a.logger.WithField("mints", n).Info("applied feed snapshot")

	case MessageUpdate:
		if a.gated(msg.Type) {
			return nil
		}
		if err := a.store.MergeAggregate(msg.Update); err != nil {
			a.drop("invalid_update", err)
			return nil
		}
		a.updates.Add(1)

	case MessageTrade:
		if a.gated(msg.Type) {
			return nil
		}
		res, err := a.store.ApplyTrade(msg.Trade.Mint, msg.Trade)
		if err != nil {
			a.drop("invalid_trade", err)
			return nil
		}
		duplicate := res == aggregate.ApplyDuplicate
		if duplicate {
			a.duplicates.Add(1)
		} else {
			a.trades.Add(1)
		}
		observability.RecordTrade(duplicate)
	}

	observability.RecordFeedMessage(string(msg.Type), time.Since(start).Seconds())
	return nil
}

// gated drops incremental messages until the first snapshot after a connect.
func (a *Adapter) gated(t MessageType) bool {
	if !a.awaitingSnapshot.Load() {
		return false
	}
	a.dropped.Add(1)
	observability.RecordFeedDropped("awaiting_snapshot")
	a.logger.WithField("type", t).Debug("dropping message while awaiting snapshot")
	return true
}

func (a *Adapter) drop(reason string, err error) {
	a.dropped.Add(1)
	observability.RecordFeedDropped(reason)
	if errors.Is(err, aggregate.ErrInvalidTrade) || errors.Is(err, aggregate.ErrInvalidAggregate) {
		a.logger.WithError(err).Warn("feed message rejected by store")
		return
	}
	a.logger.WithError(err).Error("feed message not applied")
}

// Pause freezes the exposed view at the current state. Ingestion continues.
// Returns false if already paused.
func (a *Adapter) Pause() bool {
	if !a.frozen.CompareAndSwap(nil, a.store.Freeze()) {
		return false
	}
	observability.SetFeedPaused(true)
	a.logger.Info("feed view paused")
	return true
}

// Resume switches the exposed view back to live state. Nothing is replayed.
// Returns false if not paused.
func (a *Adapter) Resume() bool {
	if a.frozen.Swap(nil) == nil {
		return false
	}
	observability.SetFeedPaused(false)
	a.logger.Info("feed view resumed")
	return true
}

// Paused reports whether the view is frozen.
func (a *Adapter) Paused() bool {
	return a.frozen.Load() != nil
}

// View returns the frozen view while paused, the live store otherwise.
func (a *Adapter) View() aggregate.Reader {
	if f := a.frozen.Load(); f != nil {
		return f
	}
	return a.store
}

// Status returns the connectivity indicator and counters.
func (a *Adapter) Status() Status {
	s := Status{
		Connected:        a.connected.Load(),
		AwaitingSnapshot: a.awaitingSnapshot.Load(),
		Connects:         a.connects.Load(),
		LastMessageAt:    a.lastMessageAt.Load(),
		LastSnapshotAt:   a.lastSnapshotAt.Load(),
		Snapshots:        a.snapshots.Load(),
		Updates:          a.updates.Load(),
		Trades:           a.trades.Load(),
		Duplicates:       a.duplicates.Load(),
		Malformed:        a.malformed.Load(),
		Dropped:          a.dropped.Load(),
		Mints:            a.store.Len(),
		LiveMints:        a.store.Len(),
	}
	if f := a.frozen.Load(); f != nil {
		s.Paused = true
		s.PausedAt = f.At()
		s.Mints = f.Len()
	}
	return s
}
