// Package ledger keeps per-mint positions derived from confirmed fills.
//
// Every fill is appended to its position's transaction list and the totals are
// rebuilt by replaying that list from the start. A position whose holdings fall
// to epsilon or below is closed, leaves the open set and is recorded in history
// exactly once.
package ledger

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"solana-activity-engine/internal/domain"
	"solana-activity-engine/internal/notify"
	"solana-activity-engine/internal/observability"
)

// ErrInvalidFill is returned for fills that cannot be recorded.
var ErrInvalidFill = errors.New("invalid fill")

// Outcome is what RecordFill did with a fill.
type Outcome string

const (
	OutcomeOpened     Outcome = "opened"
	OutcomeUpdated    Outcome = "updated"
	OutcomeClosed     Outcome = "closed"
	OutcomeDuplicate  Outcome = "duplicate"
	OutcomeOrphanSell Outcome = "orphan_sell"
)

// DefaultEpsilon is the holding at or below which a position counts as closed.
var DefaultEpsilon = decimal.New(1, -9)

// DefaultEventBuffer is the queue size of subscriptions created with buffer <= 0.
const DefaultEventBuffer = 64

// Options configures a Ledger.
type Options struct {
	// Wallet labels log entries; one ledger tracks one wallet.
	Wallet  string
	Epsilon decimal.Decimal
	Logger  logrus.FieldLogger
	// Now overrides the clock used for event times (tests).
	Now func() time.Time
}

// Event is published after every recorded fill. Position is set while the
// position stays open, Closed when the fill closed it.
type Event struct {
	Outcome  Outcome
	Mint     string
	Fill     domain.Fill
	Position *domain.Position
	Closed   *domain.ClosedPosition
	At       int64 // ms
}

// Ledger is safe for concurrent use. Fills apply fully or not at all.
type Ledger struct {
	opts   Options
	logger logrus.FieldLogger
	events *notify.Broadcaster[Event]

	mu     sync.RWMutex
	open   map[string]*domain.Position
	closed []domain.ClosedPosition
	seen   map[string]struct{}
}

// New creates an empty ledger.
func New(opts Options) *Ledger {
	if opts.Epsilon.IsZero() {
		opts.Epsilon = DefaultEpsilon
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger.WithField("component", "ledger")
	if opts.Wallet != "" {
		logger = logger.WithField("wallet", opts.Wallet)
	}
	return &Ledger{
		opts:   opts,
		logger: logger,
		events: notify.NewBroadcaster[Event](),
		open:   make(map[string]*domain.Position),
		seen:   make(map[string]struct{}),
	}
}

// Subscribe returns a bounded stream of ledger events. A slow subscriber loses
// the oldest queued events, never blocks RecordFill.
func (l *Ledger) Subscribe(buffer int) *notify.Subscription[Event] {
	if buffer <= 0 {
		buffer = DefaultEventBuffer
	}
	return l.events.Subscribe(buffer)
}

// RecordFill applies a confirmed fill for mint. It is idempotent on FillID.
// A sell without an open position changes nothing and logs one warning.
func (l *Ledger) RecordFill(mint string, f domain.Fill) (Outcome, error) {
	f, err := normalizeFill(mint, f)
	if err != nil {
		return "", err
	}

	l.mu.Lock()
	outcome, ev := l.record(mint, f)
	openCount := len(l.open)
	l.mu.Unlock()

	observability.RecordFill(string(outcome), openCount)
	if ev != nil {
		l.events.Publish(*ev)
	}
	return outcome, nil
}

// record must be called with l.mu held.
func (l *Ledger) record(mint string, f domain.Fill) (Outcome, *Event) {
	if _, dup := l.seen[f.FillID]; dup {
		return OutcomeDuplicate, nil
	}

	prev, ok := l.open[mint]
	if !ok && f.Type == domain.FillSell {
		l.logger.WithFields(logrus.Fields{
			"mint":    mint,
			"fill_id": f.FillID,
			"amount":  f.Amount.String(),
		}).Warn("sell fill without open position ignored")
		return OutcomeOrphanSell, nil
	}

	// Build the new position off to the side, then swap it in.
	var next domain.Position
	outcome := OutcomeUpdated
	if ok {
		next = prev.Clone()
	} else {
		next = domain.Position{Mint: mint, OpenedAt: f.Timestamp}
		outcome = OutcomeOpened
	}
	next.Transactions = append(next.Transactions, f)
	replay(&next, l.opts.Epsilon)
	next.UpdatedAt = f.Timestamp

	l.seen[f.FillID] = struct{}{}
	ev := &Event{Outcome: outcome, Mint: mint, Fill: f, At: l.opts.Now().UnixMilli()}

	if f.Type == domain.FillSell && next.TotalAmountHeld.LessThanOrEqual(l.opts.Epsilon) {
		cp := closePosition(&next, f.Timestamp)
		delete(l.open, mint)
		l.closed = append(l.closed, cp)

		published := cp
		published.Transactions = append([]domain.Fill(nil), cp.Transactions...)
		ev.Outcome = OutcomeClosed
		ev.Closed = &published
		l.logger.WithFields(logrus.Fields{
			"mint":         mint,
			"realized_pnl": cp.RealizedPnL.String(),
		}).Info("position closed")
		return OutcomeClosed, ev
	}

	l.open[mint] = &next
	snap := next.Clone()
	ev.Position = &snap
	return outcome, ev
}

// normalizeFill validates f and derives a missing price or total value.
func normalizeFill(mint string, f domain.Fill) (domain.Fill, error) {
	switch {
	case mint == "":
		return f, fmt.Errorf("%w: empty mint", ErrInvalidFill)
	case f.FillID == "":
		return f, fmt.Errorf("%w: empty fill id", ErrInvalidFill)
	case !f.Type.IsValid():
		return f, fmt.Errorf("%w: unknown type %q", ErrInvalidFill, f.Type)
	case !f.Amount.IsPositive():
		return f, fmt.Errorf("%w: amount must be positive, got %s", ErrInvalidFill, f.Amount)
	case f.Price.IsNegative() || f.TotalValue.IsNegative():
		return f, fmt.Errorf("%w: negative price or value", ErrInvalidFill)
	}

	if f.TotalValue.IsZero() && f.Price.IsPositive() {
		f.TotalValue = f.Amount.Mul(f.Price)
	}
	if f.Price.IsZero() && f.TotalValue.IsPositive() {
		f.Price = f.TotalValue.Div(f.Amount)
	}
	return f, nil
}

// OpenPositions returns copies of all open positions, ordered by mint.
func (l *Ledger) OpenPositions() []domain.Position {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.openLocked()
}

func (l *Ledger) openLocked() []domain.Position {
	out := make([]domain.Position, 0, len(l.open))
	for _, p := range l.open {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Mint < out[j].Mint })
	return out
}

// Position returns a copy of the open position for mint.
func (l *Ledger) Position(mint string) (domain.Position, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.open[mint]
	if !ok {
		return domain.Position{}, false
	}
	return p.Clone(), true
}

// ClosedPositions returns closed positions in the order they closed.
func (l *Ledger) ClosedPositions() []domain.ClosedPosition {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.closedLocked()
}

func (l *Ledger) closedLocked() []domain.ClosedPosition {
	out := make([]domain.ClosedPosition, len(l.closed))
	for i, cp := range l.closed {
		cp.Transactions = append([]domain.Fill(nil), cp.Transactions...)
		out[i] = cp
	}
	return out
}

// State returns open and closed positions from one consistent point in time.
func (l *Ledger) State() ([]domain.Position, []domain.ClosedPosition) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.openLocked(), l.closedLocked()
}

// Seen reports whether a fill id has been recorded.
func (l *Ledger) Seen(fillID string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.seen[fillID]
	return ok
}
