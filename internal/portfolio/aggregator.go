// Package portfolio derives whole-portfolio statistics from the position ledger.
// Nothing is stored: every snapshot is recomputed from ledger state.
package portfolio

import (
	"github.com/shopspring/decimal"

	"solana-activity-engine/internal/aggregate"
	"solana-activity-engine/internal/domain"
)

// Source provides open and closed positions from one point in time.
// *ledger.Ledger implements it.
type Source interface {
	State() ([]domain.Position, []domain.ClosedPosition)
}

// Aggregator computes PortfolioSnapshots.
type Aggregator struct {
	source Source
	prices aggregate.Reader
}

// NewAggregator creates an aggregator. prices may be nil; when set, open
// positions are marked to the latest trade price of their mint.
func NewAggregator(source Source, prices aggregate.Reader) *Aggregator {
	return &Aggregator{source: source, prices: prices}
}

// Snapshot recomputes the portfolio from current ledger state.
func (a *Aggregator) Snapshot() domain.PortfolioSnapshot {
	open, closed := a.source.State()
	return Compute(open, closed, a.prices)
}

// Compute derives a snapshot from positions. prices may be nil.
func Compute(open []domain.Position, closed []domain.ClosedPosition, prices aggregate.Reader) domain.PortfolioSnapshot {
	snap := domain.PortfolioSnapshot{
		OpenPositions:   len(open),
		ClosedPositions: len(closed),
	}

	for i := range open {
		p := &open[i]
		snap.TotalInvested = snap.TotalInvested.Add(p.TotalInvested)
		snap.OpenCostBasis = snap.OpenCostBasis.Add(openCostBasis(p))
		snap.OpenRealizedPnL = snap.OpenRealizedPnL.Add(p.RealizedPnL)

		if prices == nil {
			continue
		}
		agg, ok := prices.GetAggregate(p.Mint)
		if !ok || agg.PricePerToken <= 0 {
			continue
		}
		value := p.TotalAmountHeld.Mul(decimal.NewFromFloat(agg.PricePerToken))
		snap.MarketValue = snap.MarketValue.Add(value)
		snap.UnrealizedPnL = snap.UnrealizedPnL.Add(value.Sub(p.TotalInvested))
		snap.PricedPositions++
	}

	for i := range closed {
		cp := &closed[i]
		snap.TotalRealizedPnL = snap.TotalRealizedPnL.Add(cp.RealizedPnL)
		if cp.IsWin() {
			snap.Wins++
		} else {
			snap.Losses++
		}
	}
	snap.WinRate = winRate(snap.Wins, len(closed))
	return snap
}

// openCostBasis apportions total buy cost to the tokens still held:
// TotalBuyCost * held / TotalBought.
func openCostBasis(p *domain.Position) decimal.Decimal {
	if !p.TotalBought.IsPositive() {
		return decimal.Zero
	}
	return p.TotalBuyCost.Mul(p.TotalAmountHeld).Div(p.TotalBought)
}

func winRate(wins, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(wins) / float64(total)
}
