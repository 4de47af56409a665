package ledger

import (
	"github.com/shopspring/decimal"

	"solana-activity-engine/internal/domain"
)

// replay rebuilds every total of p from its transaction list using average cost.
//
// A buy adds its amount and value. A sell realizes value - sold*avg, where avg is
// the average buy price at the time of the sale and sold is capped at the
// holding, then removes that cost from TotalInvested.
func replay(p *domain.Position, epsilon decimal.Decimal) {
	var (
		held, invested          decimal.Decimal
		bought, buyCost         decimal.Decimal
		sold, revenue, realized decimal.Decimal
	)

	for _, tx := range p.Transactions {
		switch tx.Type {
		case domain.FillBuy:
			held = held.Add(tx.Amount)
			invested = invested.Add(tx.TotalValue)
			bought = bought.Add(tx.Amount)
			buyCost = buyCost.Add(tx.TotalValue)

		case domain.FillSell:
			qty := decimal.Min(tx.Amount, held)
			cost := qty.Mul(averagePrice(invested, held))
			realized = realized.Add(tx.TotalValue.Sub(cost))
			invested = invested.Sub(cost)
			held = held.Sub(qty)
			sold = sold.Add(tx.Amount)
			revenue = revenue.Add(tx.TotalValue)

			if held.LessThanOrEqual(epsilon) {
				held = decimal.Zero
				invested = decimal.Zero
			}
		}
	}

	p.TotalAmountHeld = held
	p.TotalInvested = invested
	p.AverageBuyPrice = averagePrice(invested, held)
	p.TotalBought = bought
	p.TotalBuyCost = buyCost
	p.TotalSold = sold
	p.TotalSellRevenue = revenue
	p.RealizedPnL = realized
}

func averagePrice(invested, held decimal.Decimal) decimal.Decimal {
	if !held.IsPositive() {
		return decimal.Zero
	}
	return invested.Div(held)
}

func closePosition(p *domain.Position, closedAt int64) domain.ClosedPosition {
	return domain.ClosedPosition{
		Mint:             p.Mint,
		TotalBought:      p.TotalBought,
		TotalBuyCost:     p.TotalBuyCost,
		TotalSold:        p.TotalSold,
		TotalSellRevenue: p.TotalSellRevenue,
		RealizedPnL:      p.RealizedPnL,
		Transactions:     append([]domain.Fill(nil), p.Transactions...),
		OpenedAt:         p.OpenedAt,
		ClosedAt:         closedAt,
	}
}
