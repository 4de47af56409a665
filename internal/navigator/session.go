// Package navigator provides a stable, pageable ordering over the ranked aggregate table.
//
// A Session seeds its stack from the activity ranking once and afterwards only
// appends. Trades arriving mid-session change what an entry shows, never where
// it sits.
package navigator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"solana-activity-engine/internal/aggregate"
	"solana-activity-engine/internal/cache"
	"solana-activity-engine/internal/domain"
)

// State is the session lifecycle state.
type State int

const (
	Idle State = iota
	Navigating
	Loading
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Navigating:
		return "navigating"
	case Loading:
		return "loading"
	default:
		return "unknown"
	}
}

// MarshalText renders the state name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name.
func (s *State) UnmarshalText(b []byte) error {
	switch string(b) {
	case "idle":
		*s = Idle
	case "navigating":
		*s = Navigating
	case "loading":
		*s = Loading
	default:
		return fmt.Errorf("unknown session state %q", b)
	}
	return nil
}

// Direction is a cursor move.
type Direction int

const (
	Forward Direction = iota
	Backward
)

// ParseDirection accepts "forward"/"next" and "backward"/"back"/"prev".
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "forward", "next":
		return Forward, nil
	case "backward", "back", "prev":
		return Backward, nil
	default:
		return Forward, ErrInvalidDirection
	}
}

// Defaults.
const (
	DefaultStackSize = 6
	DefaultThreshold = 3
	DefaultBatch     = 3

	// PlaceholderLabel is shown for stacked mints missing from the store.
	PlaceholderLabel = "Loading…"
)

var (
	ErrNotStarted       = errors.New("navigation session not started")
	ErrAlreadyStarted   = errors.New("navigation session already started")
	ErrInvalidDirection = errors.New("invalid direction")
)

// Source supplies the reader a session consults on every call.
type Source interface {
	View() aggregate.Reader
}

// SourceFunc adapts a function to Source.
type SourceFunc func() aggregate.Reader

// View calls f.
func (f SourceFunc) View() aggregate.Reader { return f() }

// Static returns a Source that always yields r.
func Static(r aggregate.Reader) Source {
	return SourceFunc(func() aggregate.Reader { return r })
}

// Options configures sessions.
type Options struct {
	// StackSize is how many ranked mints seed a new stack.
	StackSize int
	// Threshold triggers LoadMore when at most this many entries remain past the cursor.
	Threshold int
	// Batch is how many mints LoadMore appends at most.
	Batch int
	// Labels is an optional display metadata cache.
	Labels cache.TokenInfoCache
	Logger logrus.FieldLogger
	// Now overrides the clock (tests).
	Now func() time.Time
}

func (o Options) withDefaults() Options {
	if o.StackSize <= 0 {
		o.StackSize = DefaultStackSize
	}
	if o.Threshold <= 0 {
		o.Threshold = DefaultThreshold
	}
	if o.Batch <= 0 {
		o.Batch = DefaultBatch
	}
	if o.Logger == nil {
		o.Logger = logrus.StandardLogger()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Entry is one stacked mint as displayed. Stats are read fresh on every call.
type Entry struct {
	Index       int     `json:"index"`
	Mint        string  `json:"mint"`
	Label       string  `json:"label"`
	Placeholder bool    `json:"placeholder"`
	TPS         float64 `json:"tps"`
	Price       float64 `json:"price_per_token"`
	BuyVolume   uint64  `json:"total_buy_volume"`
	SellVolume  uint64  `json:"total_sell_volume"`
	Traders     int     `json:"unique_traders"`
	Bonding     float64 `json:"bonding_progress"`
	FullyBonded bool    `json:"fully_bonded"`
	Graduating  bool    `json:"about_to_graduate"`
	Liquidity   *uint64 `json:"liquidity,omitempty"` // nil when unknown
}

// Snapshot is a consistent copy of session state.
type Snapshot struct {
	ID      string   `json:"id"`
	State   State    `json:"state"`
	Cursor  int      `json:"cursor"`
	Stack   []string `json:"stack"`
	Entries []Entry  `json:"entries"`
}

// Session is one user's navigation over the ranking.
type Session struct {
	id     string
	src    Source
	opts   Options
	logger logrus.FieldLogger

	mu     sync.Mutex
	state  State
	stack  []string
	cursor int

	touched atomic.Int64 // ms
}

// NewSession creates an idle session.
func NewSession(id string, src Source, opts Options) *Session {
	opts = opts.withDefaults()
	s := &Session{
		id:     id,
		src:    src,
		opts:   opts,
		logger: opts.Logger.WithFields(logrus.Fields{"component": "navigator", "session": id}),
	}
	s.touch()
	return s
}

func (s *Session) touch() {
	s.touched.Store(s.opts.Now().UnixMilli())
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// LastActive returns when the session was last used, in ms.
func (s *Session) LastActive() int64 {
	return s.touched.Load()
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Stack returns a copy of the stack and the cursor.
func (s *Session) Stack() ([]string, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.stack...), s.cursor
}

// Start seeds the stack with the top ranked mints. A non-empty pinned mint is
// placed at index 0, moved rather than duplicated if it was already ranked.
func (s *Session) Start(pinned string) error {
	s.touch()
	ranked := s.src.View().RankedByActivity()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Idle {
		return ErrAlreadyStarted
	}

	k := s.opts.StackSize
	stack := make([]string, 0, k)
	if pinned != "" {
		stack = append(stack, pinned)
	}
	for _, mint := range ranked {
		if len(stack) == k {
			break
		}
		if mint == pinned {
			continue
		}
		stack = append(stack, mint)
	}

	s.stack = stack
	s.cursor = 0
	s.state = Navigating
	s.logger.WithFields(logrus.Fields{"size": len(stack), "pinned": pinned}).Debug("session started")
	return nil
}

// Advance moves the cursor one step, clamped to the stack bounds.
// A forward request that leaves Threshold or fewer entries ahead triggers LoadMore,
// including one clamped at the end of the stack.
func (s *Session) Advance(dir Direction) (bool, error) {
	s.touch()

	s.mu.Lock()
	if s.state == Idle {
		s.mu.Unlock()
		return false, ErrNotStarted
	}

	next := s.cursor
	switch dir {
	case Forward:
		next++
	case Backward:
		next--
	default:
		s.mu.Unlock()
		return false, ErrInvalidDirection
	}
	moved := next >= 0 && next < len(s.stack)
	if moved {
		s.cursor = next
	}
	// A clamped forward move still checks the threshold, so an empty or
	// exhausted stack can grow.
	needMore := dir == Forward && len(s.stack)-s.cursor-1 <= s.opts.Threshold
	s.mu.Unlock()

	if needMore {
		if _, err := s.LoadMore(); err != nil && !errors.Is(err, ErrNotStarted) {
			return moved, err
		}
	}
	return moved, nil
}

// LoadMore appends up to Batch ranked mints not yet stacked. Existing order is kept.
// A call while another load is in flight is a no-op.
func (s *Session) LoadMore() (int, error) {
	s.touch()

	s.mu.Lock()
	switch s.state {
	case Idle:
		s.mu.Unlock()
		return 0, ErrNotStarted
	case Loading:
		s.mu.Unlock()
		return 0, nil
	}
	s.state = Loading
	present := make(map[string]struct{}, len(s.stack))
	for _, mint := range s.stack {
		present[mint] = struct{}{}
	}
	s.mu.Unlock()

	ranked := s.src.View().RankedByActivity()

	var add []string
	for _, mint := range ranked {
		if len(add) == s.opts.Batch {
			break
		}
		if _, ok := present[mint]; !ok {
			add = append(add, mint)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Loading {
		// Stopped while loading.
		return 0, nil
	}
	s.stack = append(s.stack, add...)
	s.state = Navigating
	if len(add) > 0 {
		s.logger.WithFields(logrus.Fields{"added": len(add), "size": len(s.stack)}).Debug("stack extended")
	}
	return len(add), nil
}

// Stop returns the session to Idle and clears the stack.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = Idle
	s.stack = nil
	s.cursor = 0
}

// Entries resolves every stacked mint against the current view.
func (s *Session) Entries(ctx context.Context) []Entry {
	stack, _ := s.Stack()
	view := s.src.View()
	out := make([]Entry, len(stack))
	for i, mint := range stack {
		out[i] = s.resolve(ctx, view, i, mint)
	}
	return out
}

// Current resolves the entry under the cursor. ok is false for an empty or idle session.
func (s *Session) Current(ctx context.Context) (Entry, bool) {
	s.touch()
	stack, cursor := s.Stack()
	if len(stack) == 0 {
		return Entry{}, false
	}
	return s.resolve(ctx, s.src.View(), cursor, stack[cursor]), true
}

// Snapshot returns state, stack and resolved entries.
func (s *Session) Snapshot(ctx context.Context) Snapshot {
	s.touch()
	s.mu.Lock()
	snap := Snapshot{
		ID:     s.id,
		State:  s.state,
		Cursor: s.cursor,
		Stack:  append([]string(nil), s.stack...),
	}
	s.mu.Unlock()

	view := s.src.View()
	snap.Entries = make([]Entry, len(snap.Stack))
	for i, mint := range snap.Stack {
		snap.Entries[i] = s.resolve(ctx, view, i, mint)
	}
	return snap
}

// resolve looks mint up; a mint missing from the view becomes a placeholder.
func (s *Session) resolve(ctx context.Context, view aggregate.Reader, index int, mint string) Entry {
	agg, ok := view.GetAggregate(mint)
	if !ok {
		return Entry{Index: index, Mint: mint, Label: PlaceholderLabel, Placeholder: true}
	}

	e := Entry{
		Index:       index,
		Mint:        mint,
		Label:       s.label(ctx, &agg),
		TPS:         agg.TPS,
		Price:       agg.PricePerToken,
		BuyVolume:   agg.TotalBuyVolume,
		SellVolume:  agg.TotalSellVolume,
		Traders:     agg.UniqueTraderCount(),
		Bonding:     agg.BondingProgress,
		FullyBonded: agg.FullyBonded,
		Graduating:  agg.AboutToGraduate,
	}
	if liq, known := agg.Liquidity(); known {
		e.Liquidity = &liq
	}
	return e
}

// label prefers cached metadata, then feed metadata, then a shortened mint.
// Feed metadata is written through to the cache.
func (s *Session) label(ctx context.Context, agg *domain.MintAggregate) string {
	if s.opts.Labels != nil {
		info, err := s.opts.Labels.Get(ctx, agg.Mint)
		switch {
		case err == nil && info.Symbol != "":
			return info.Symbol
		case err == nil && info.Name != "":
			return info.Name
		case err != nil && !errors.Is(err, cache.ErrNotFound):
			s.logger.WithError(err).Debug("token info lookup failed")
		}
	}

	if agg.Symbol != "" || agg.Name != "" {
		if s.opts.Labels != nil {
			info := domain.TokenInfo{Mint: agg.Mint, Name: agg.Name, Symbol: agg.Symbol, UpdatedAt: s.opts.Now().UnixMilli()}
			if err := s.opts.Labels.Put(ctx, info); err != nil {
				s.logger.WithError(err).Debug("token info write-through failed")
			}
		}
		if agg.Symbol != "" {
			return agg.Symbol
		}
		return agg.Name
	}
	return ShortMint(agg.Mint)
}

// ShortMint abbreviates long mint addresses as "abcd…wxyz".
func ShortMint(mint string) string {
	if len(mint) <= 10 {
		return mint
	}
	return mint[:4] + "…" + mint[len(mint)-4:]
}
