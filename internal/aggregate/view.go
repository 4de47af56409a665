package aggregate

import (
	"sort"

	"solana-activity-engine/internal/domain"
)

// Reader is the read-only query surface over aggregate state.
// Returned aggregates are copies; callers may not observe later writes through them.
type Reader interface {
	GetAggregate(mint string) (domain.MintAggregate, bool)
	RankedByActivity() []string
	NewlyMinted() []domain.MintAggregate
	AboutToGraduate() []domain.MintAggregate
	RecentlyGraduated() []domain.MintAggregate
	Len() int
}

// view evaluates queries over a fixed set of immutable snapshots.
type view struct {
	snaps map[string]*domain.MintAggregate
	now   int64
	opts  Options
}

func newView(snaps map[string]*domain.MintAggregate, now int64, opts Options) *view {
	return &view{snaps: snaps, now: now, opts: opts}
}

func (v *view) rankedByActivity() []string {
	list := v.filter(func(*domain.MintAggregate) bool { return true })
	sort.Slice(list, func(i, j int) bool {
		if list[i].TPS != list[j].TPS {
			return list[i].TPS > list[j].TPS
		}
		return list[i].Mint < list[j].Mint
	})

	mints := make([]string, len(list))
	for i, a := range list {
		mints[i] = a.Mint
	}
	return mints
}

func (v *view) newlyMinted() []domain.MintAggregate {
	maxAge := v.opts.NewlyMintedMaxAge.Milliseconds()
	list := v.filter(func(a *domain.MintAggregate) bool {
		return v.now-a.TokenCreatedAt < maxAge && !a.AboutToGraduate && !a.FullyBonded
	})
	return v.top(list, func(a, b *domain.MintAggregate) int {
		return compareDesc(a.TokenCreatedAt, b.TokenCreatedAt)
	})
}

func (v *view) aboutToGraduate() []domain.MintAggregate {
	list := v.filter(func(a *domain.MintAggregate) bool { return a.AboutToGraduate })
	return v.top(list, func(a, b *domain.MintAggregate) int {
		return compareDesc(a.BondingProgress, b.BondingProgress)
	})
}

func (v *view) recentlyGraduated() []domain.MintAggregate {
	list := v.filter(func(a *domain.MintAggregate) bool { return a.FullyBonded })
	return v.top(list, func(a, b *domain.MintAggregate) int {
		return compareDesc(a.GraduatedAt, b.GraduatedAt)
	})
}

func (v *view) filter(keep func(*domain.MintAggregate) bool) []*domain.MintAggregate {
	out := make([]*domain.MintAggregate, 0, len(v.snaps))
	for _, a := range v.snaps {
		if keep(a) {
			out = append(out, a)
		}
	}
	return out
}

// top sorts by cmp with mint ASC as tie-break and copies at most ClassLimit results.
func (v *view) top(list []*domain.MintAggregate, cmp func(a, b *domain.MintAggregate) int) []domain.MintAggregate {
	sort.Slice(list, func(i, j int) bool {
		if c := cmp(list[i], list[j]); c != 0 {
			return c < 0
		}
		return list[i].Mint < list[j].Mint
	})
	if len(list) > v.opts.ClassLimit {
		list = list[:v.opts.ClassLimit]
	}
	out := make([]domain.MintAggregate, len(list))
	for i, a := range list {
		out[i] = a.Clone()
	}
	return out
}

func compareDesc[T int64 | float64](a, b T) int {
	switch {
	case a > b:
		return -1
	case a < b:
		return 1
	default:
		return 0
	}
}

// Frozen is an immutable point-in-time view of the store.
// Classification ages are evaluated at the freeze time.
type Frozen struct {
	view *view
}

var _ Reader = (*Frozen)(nil)

// At returns the freeze time in ms.
func (f *Frozen) At() int64 {
	return f.view.now
}

// GetAggregate returns a copy of mint's aggregate at freeze time.
func (f *Frozen) GetAggregate(mint string) (domain.MintAggregate, bool) {
	a, ok := f.view.snaps[mint]
	if !ok {
		return domain.MintAggregate{}, false
	}
	return a.Clone(), true
}

// RankedByActivity returns mints ordered by TPS DESC, mint ASC.
func (f *Frozen) RankedByActivity() []string {
	return f.view.rankedByActivity()
}

// NewlyMinted returns the newly minted class.
func (f *Frozen) NewlyMinted() []domain.MintAggregate {
	return f.view.newlyMinted()
}

// AboutToGraduate returns the graduating class.
func (f *Frozen) AboutToGraduate() []domain.MintAggregate {
	return f.view.aboutToGraduate()
}

// RecentlyGraduated returns the graduated class.
func (f *Frozen) RecentlyGraduated() []domain.MintAggregate {
	return f.view.recentlyGraduated()
}

// Len returns the number of mints captured.
func (f *Frozen) Len() int {
	return len(f.view.snaps)
}
