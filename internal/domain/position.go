package domain

import "github.com/shopspring/decimal"

// Position is the open holding of one mint, derived from its transaction ledger.
type Position struct {
	Mint string

	TotalAmountHeld decimal.Decimal // raw token units
	TotalInvested   decimal.Decimal // cost basis of held units (lamports)
	AverageBuyPrice decimal.Decimal // TotalInvested / TotalAmountHeld

	TotalBought      decimal.Decimal
	TotalBuyCost     decimal.Decimal
	TotalSold        decimal.Decimal
	TotalSellRevenue decimal.Decimal
	RealizedPnL      decimal.Decimal // realized by partial sells so far

	Transactions []Fill // append-only, in ledger order

	OpenedAt  int64 // ms
	UpdatedAt int64 // ms
}

// Clone returns a copy that does not share the transaction slice.
func (p *Position) Clone() Position {
	c := *p
	c.Transactions = make([]Fill, len(p.Transactions))
	copy(c.Transactions, p.Transactions)
	return c
}

// ClosedPosition is the final state of a position whose holdings reached zero.
type ClosedPosition struct {
	Mint string

	TotalBought      decimal.Decimal
	TotalBuyCost     decimal.Decimal
	TotalSold        decimal.Decimal
	TotalSellRevenue decimal.Decimal
	RealizedPnL      decimal.Decimal

	Transactions []Fill

	OpenedAt int64 // ms
	ClosedAt int64 // ms
}

// IsWin reports whether the closed position realized a profit.
func (c *ClosedPosition) IsWin() bool {
	return c.RealizedPnL.IsPositive()
}
