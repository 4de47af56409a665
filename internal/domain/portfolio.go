package domain

import "github.com/shopspring/decimal"

// PortfolioSnapshot is a derived whole-portfolio view. It is never stored.
type PortfolioSnapshot struct {
	OpenPositions   int
	ClosedPositions int
	Wins            int
	Losses          int
	WinRate         float64 // wins / closed, 0 when nothing closed

	TotalInvested    decimal.Decimal // sum of open cost basis (lamports)
	OpenCostBasis    decimal.Decimal // sum of TotalBuyCost * held / TotalBought
	OpenRealizedPnL  decimal.Decimal // realized by partial sells of still-open positions
	TotalRealizedPnL decimal.Decimal // sum over closed positions

	// Mark-to-market, only populated when prices are available.
	MarketValue     decimal.Decimal
	UnrealizedPnL   decimal.Decimal
	PricedPositions int
}
