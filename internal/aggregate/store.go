package aggregate

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"solana-activity-engine/internal/domain"
	"solana-activity-engine/internal/notify"
)

// ChangeKind identifies what a Change describes.
type ChangeKind int

const (
	// ChangeSnapshot means the whole table was replaced.
	ChangeSnapshot ChangeKind = iota
	// ChangeMint means a single mint's aggregate was replaced.
	ChangeMint
)

// Change is published after every committed write.
type Change struct {
	Kind ChangeKind
	Mint string // empty for ChangeSnapshot
	At   int64  // ms
}

// entry holds the writer-side state of one mint and its latest published snapshot.
type entry struct {
	mu   sync.Mutex // single writer per mint
	work domain.MintAggregate
	snap atomic.Pointer[domain.MintAggregate]
}

func newEntry(mint string) *entry {
	return &entry{
		work: domain.MintAggregate{
			Mint:          mint,
			WalletVolumes: make(map[string]domain.WalletVolume),
			UniqueTraders: make(map[string]struct{}),
		},
	}
}

// publish stores an immutable copy of the working state. Caller holds e.mu.
func (e *entry) publish() {
	c := e.work.Clone()
	e.snap.Store(&c)
}

func (e *entry) published() bool {
	return e.snap.Load() != nil
}

// Store is the in-memory mint aggregate table.
//
// Lock order: Store.mu (read for per-mint writes, write for snapshot swaps),
// then entry.mu. Writers hold Store.mu for reading for the whole per-mint
// write, so a snapshot swap never races a trade applied to a retired entry.
type Store struct {
	opts Options

	mu      sync.RWMutex
	entries map[string]*entry

	changes *notify.Broadcaster[Change]
}

// NewStore creates an empty store.
func NewStore(opts Options) *Store {
	return &Store{
		opts:    opts.withDefaults(),
		entries: make(map[string]*entry),
		changes: notify.NewBroadcaster[Change](),
	}
}

var _ Reader = (*Store)(nil)

func (s *Store) nowMs() int64 {
	return s.opts.Now().UnixMilli()
}

// Subscribe returns a bounded subscription to change notifications.
// Slow subscribers lose the oldest notifications, never block writers.
func (s *Store) Subscribe(buffer int) *notify.Subscription[Change] {
	return s.changes.Subscribe(buffer)
}

// acquire returns the entry for mint, creating it if needed, with Store.mu
// held for reading. The caller must call release.
func (s *Store) acquire(mint string) (e *entry, release func()) {
	for {
		s.mu.RLock()
		if e = s.entries[mint]; e != nil {
			return e, s.mu.RUnlock
		}
		s.mu.RUnlock()

		s.mu.Lock()
		if s.entries[mint] == nil {
			s.entries[mint] = newEntry(mint)
		}
		s.mu.Unlock()
	}
}

// ApplyTrade applies one trade to mint's aggregate.
// Replaying a signature still inside the recent-trade window is a no-op.
func (s *Store) ApplyTrade(mint string, t domain.TradeEvent) (ApplyResult, error) {
	if mint == "" {
		mint = t.Mint
	}
	if mint == "" || t.Signature == "" {
		return ApplyRejected, fmt.Errorf("%w: missing mint or signature", ErrInvalidTrade)
	}
	if t.Mint != "" && t.Mint != mint {
		return ApplyRejected, fmt.Errorf("%w: trade mint %s does not match %s", ErrInvalidTrade, t.Mint, mint)
	}
	t.Mint = mint

	now := s.nowMs()
	if t.Timestamp == 0 {
		t.Timestamp = now
	}

	result := s.applyTrade(mint, t, now)
	if result == ApplyApplied {
		s.changes.Publish(Change{Kind: ChangeMint, Mint: mint, At: now})
	}
	return result, nil
}

func (s *Store) applyTrade(mint string, t domain.TradeEvent, now int64) ApplyResult {
	e, release := s.acquire(mint)
	defer release()

	e.mu.Lock()
	defer e.mu.Unlock()

	a := &e.work
	for i := range a.RecentTrades {
		if a.RecentTrades[i].Signature == t.Signature {
			return ApplyDuplicate
		}
	}

	if a.TokenCreatedAt == 0 {
		a.TokenCreatedAt = now
	}

	// Most recent first, oldest evicted beyond capacity.
	trades := make([]domain.TradeEvent, 0, min(len(a.RecentTrades)+1, s.opts.RecentTradesCap))
	trades = append(trades, t)
	for _, prev := range a.RecentTrades {
		if len(trades) == s.opts.RecentTradesCap {
			break
		}
		trades = append(trades, prev)
	}
	a.RecentTrades = trades

	a.TPSWindow = s.pruneWindow(a.TPSWindow, now)
	if t.Timestamp > now-s.opts.Window.Milliseconds() {
		a.TPSWindow = append(a.TPSWindow, t.Timestamp)
	}
	a.TPS = s.tps(len(a.TPSWindow))

	if t.IsBuy {
		a.TotalBuyVolume += t.SolAmount
	} else {
		a.TotalSellVolume += t.SolAmount
	}

	if t.TraderAddress != "" {
		wv := a.WalletVolumes[t.TraderAddress]
		if t.IsBuy {
			wv.BuyVolume += t.SolAmount
		} else {
			wv.SellVolume += t.SolAmount
		}
		wv.TotalVolume += t.SolAmount
		wv.TradeCount++
		a.WalletVolumes[t.TraderAddress] = wv
		a.UniqueTraders[t.TraderAddress] = struct{}{}
	}

	// Zero token amount keeps the previous price.
	if t.TokenAmount > 0 {
		a.PricePerToken = float64(t.SolAmount) / float64(t.TokenAmount)
	}

	s.applyReserves(a, t.RealSolReserves, t.Timestamp)

	if t.Timestamp > a.LastTradeAt {
		a.LastTradeAt = t.Timestamp
	}
	a.UpdatedAt = now

	e.publish()
	return ApplyApplied
}

// applyReserves recomputes bonding state. Zero reserves are unknown and leave it untouched.
func (s *Store) applyReserves(a *domain.MintAggregate, reserves uint64, at int64) {
	if reserves > 0 {
		a.RealSolReserves = reserves
	}
	if a.FullyBonded {
		a.BondingProgress = 1
		a.AboutToGraduate = false
		return
	}
	if reserves == 0 {
		return
	}

	p := clampProgress(float64(reserves) / float64(s.opts.GraduationTarget))
	a.BondingProgress = p
	if p >= 1 {
		a.FullyBonded = true
		a.GraduatedAt = at
	}
	a.AboutToGraduate = !a.FullyBonded && p >= s.opts.GraduatingAt && p < 1
}

// ApplySnapshot replaces the whole table atomically.
// Mints absent from aggs are dropped; creation time, graduation state and
// accumulated totals of mints already known are preserved.
// Returns the number of mints in the new table.
func (s *Store) ApplySnapshot(aggs map[string]domain.MintAggregate) int {
	now := s.nowMs()

	next := make(map[string]*entry, len(aggs))

	s.mu.Lock()
	for key, in := range aggs {
		if key == "" {
			continue
		}
		in.Mint = key

		var prev *domain.MintAggregate
		// No per-mint writer can be active while Store.mu is held for writing.
		if old := s.entries[key]; old != nil && old.published() {
			prev = &old.work
		}

		e := &entry{work: s.normalize(in, prev, now)}
		e.publish()
		next[key] = e
	}
	s.entries = next
	s.mu.Unlock()

	s.changes.Publish(Change{Kind: ChangeSnapshot, At: now})
	return len(next)
}

// MergeAggregate replaces one mint's aggregate using the same rules as ApplySnapshot.
func (s *Store) MergeAggregate(in domain.MintAggregate) error {
	if in.Mint == "" {
		return fmt.Errorf("%w: missing mint", ErrInvalidAggregate)
	}
	now := s.nowMs()

	func() {
		e, release := s.acquire(in.Mint)
		defer release()

		e.mu.Lock()
		defer e.mu.Unlock()

		var prev *domain.MintAggregate
		if e.published() {
			prev = &e.work
		}
		e.work = s.normalize(in, prev, now)
		e.publish()
	}()

	s.changes.Publish(Change{Kind: ChangeMint, Mint: in.Mint, At: now})
	return nil
}

// GetAggregate returns an immutable copy of mint's aggregate.
func (s *Store) GetAggregate(mint string) (domain.MintAggregate, bool) {
	s.mu.RLock()
	e := s.entries[mint]
	s.mu.RUnlock()
	if e == nil {
		return domain.MintAggregate{}, false
	}
	snap := e.snap.Load()
	if snap == nil {
		return domain.MintAggregate{}, false
	}
	return snap.Clone(), true
}

// snapshots returns the current published snapshot pointers. Snapshots are never mutated.
func (s *Store) snapshots() map[string]*domain.MintAggregate {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]*domain.MintAggregate, len(s.entries))
	for mint, e := range s.entries {
		if snap := e.snap.Load(); snap != nil {
			out[mint] = snap
		}
	}
	return out
}

func (s *Store) view() *view {
	return newView(s.snapshots(), s.nowMs(), s.opts)
}

// RankedByActivity returns all mints ordered by TPS DESC, mint ASC.
func (s *Store) RankedByActivity() []string {
	return s.view().rankedByActivity()
}

// NewlyMinted returns young mints that are neither graduating nor bonded, newest first.
func (s *Store) NewlyMinted() []domain.MintAggregate {
	return s.view().newlyMinted()
}

// AboutToGraduate returns graduating mints by bonding progress DESC.
func (s *Store) AboutToGraduate() []domain.MintAggregate {
	return s.view().aboutToGraduate()
}

// RecentlyGraduated returns fully bonded mints by graduation time DESC.
func (s *Store) RecentlyGraduated() []domain.MintAggregate {
	return s.view().recentlyGraduated()
}

// Len returns the number of mints with a published aggregate.
func (s *Store) Len() int {
	return len(s.snapshots())
}

// Mints returns all known mints in ascending order.
func (s *Store) Mints() []string {
	snaps := s.snapshots()
	mints := make([]string, 0, len(snaps))
	for m := range snaps {
		mints = append(mints, m)
	}
	sort.Strings(mints)
	return mints
}

// Freeze captures an immutable point-in-time view of the table.
func (s *Store) Freeze() *Frozen {
	return &Frozen{view: s.view()}
}

// Sweep prunes TPS windows relative to now, so mints that went silent decay to zero.
// Returns the number of mints whose aggregate changed.
func (s *Store) Sweep(nowMs int64) int {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.entries))
	mints := make([]string, 0, len(s.entries))
	for mint, e := range s.entries {
		entries = append(entries, e)
		mints = append(mints, mint)
	}
	s.mu.RUnlock()

	var changed []string
	for i, e := range entries {
		if s.sweepEntry(e, nowMs) {
			changed = append(changed, mints[i])
		}
	}

	for _, mint := range changed {
		s.changes.Publish(Change{Kind: ChangeMint, Mint: mint, At: nowMs})
	}
	return len(changed)
}

func (s *Store) sweepEntry(e *entry, nowMs int64) bool {
	// Hold Store.mu for reading so a concurrent snapshot swap cannot interleave.
	s.mu.RLock()
	defer s.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.published() {
		return false
	}
	before := len(e.work.TPSWindow)
	e.work.TPSWindow = s.pruneWindow(e.work.TPSWindow, nowMs)
	if len(e.work.TPSWindow) == before {
		return false
	}
	e.work.TPS = s.tps(len(e.work.TPSWindow))
	e.work.UpdatedAt = nowMs
	e.publish()
	return true
}

// pruneWindow keeps timestamps strictly newer than now-window. Order is not assumed.
func (s *Store) pruneWindow(window []int64, now int64) []int64 {
	cutoff := now - s.opts.Window.Milliseconds()
	kept := make([]int64, 0, len(window))
	for _, ts := range window {
		if ts > cutoff {
			kept = append(kept, ts)
		}
	}
	return kept
}

func (s *Store) tps(n int) float64 {
	return float64(n) / s.opts.Window.Seconds()
}
