// Package aggregate maintains the authoritative per-mint rolling statistics table.
//
// The Store is the sole mutator of aggregate state. Writes for one mint are
// serialized by a per-mint lock; writes for different mints run in parallel.
// Every write publishes a new immutable snapshot behind an atomic pointer, so
// readers never observe a half-applied update.
package aggregate

import (
	"time"

	"github.com/sirupsen/logrus"

	"solana-activity-engine/internal/domain"
)

// GraduationTarget is the real SOL reserve level at which a mint is fully bonded.
const GraduationTarget uint64 = 74 * domain.LamportsPerSOL

// Defaults.
const (
	DefaultRecentTradesCap   = 100
	DefaultWindow            = 60 * time.Second
	DefaultGraduatingAt      = 0.85
	DefaultNewlyMintedMaxAge = time.Hour
	DefaultClassLimit        = 20
)

// Options configures a Store.
type Options struct {
	// RecentTradesCap bounds RecentTrades per mint.
	RecentTradesCap int
	// Window is the trailing TPS window.
	Window time.Duration
	// GraduationTarget in lamports.
	GraduationTarget uint64
	// GraduatingAt is the bonding progress at which a mint is about to graduate.
	GraduatingAt float64
	// NewlyMintedMaxAge is the maximum age for the newly minted class.
	NewlyMintedMaxAge time.Duration
	// ClassLimit caps classification results.
	ClassLimit int
	// Now overrides the clock (tests).
	Now func() time.Time
	// Logger receives store diagnostics.
	Logger logrus.FieldLogger
}

// DefaultOptions returns production defaults.
func DefaultOptions() Options {
	return Options{
		RecentTradesCap:   DefaultRecentTradesCap,
		Window:            DefaultWindow,
		GraduationTarget:  GraduationTarget,
		GraduatingAt:      DefaultGraduatingAt,
		NewlyMintedMaxAge: DefaultNewlyMintedMaxAge,
		ClassLimit:        DefaultClassLimit,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.RecentTradesCap <= 0 {
		o.RecentTradesCap = def.RecentTradesCap
	}
	if o.Window <= 0 {
		o.Window = def.Window
	}
	if o.GraduationTarget == 0 {
		o.GraduationTarget = def.GraduationTarget
	}
	if o.GraduatingAt <= 0 || o.GraduatingAt >= 1 {
		o.GraduatingAt = def.GraduatingAt
	}
	if o.NewlyMintedMaxAge <= 0 {
		o.NewlyMintedMaxAge = def.NewlyMintedMaxAge
	}
	if o.ClassLimit <= 0 {
		o.ClassLimit = def.ClassLimit
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Logger == nil {
		l := logrus.New()
		l.SetLevel(logrus.WarnLevel)
		o.Logger = l
	}
	return o
}
