package api

import (
	"github.com/shopspring/decimal"

	"solana-activity-engine/internal/domain"
)

const defaultTopWallets = 10

type walletView struct {
	Address     string `json:"address"`
	BuyVolume   uint64 `json:"buy_volume"`
	SellVolume  uint64 `json:"sell_volume"`
	TotalVolume uint64 `json:"total_volume"`
	TradeCount  int    `json:"trade_count"`
}

type tradeView struct {
	Signature   string `json:"signature"`
	Side        string `json:"side"`
	SolAmount   uint64 `json:"sol_amount"`
	TokenAmount uint64 `json:"token_amount"`
	Trader      string `json:"trader"`
	Timestamp   int64  `json:"timestamp"`
}

type aggregateView struct {
	Mint            string       `json:"mint"`
	Name            string       `json:"name,omitempty"`
	Symbol          string       `json:"symbol,omitempty"`
	TPS             float64      `json:"tps"`
	TotalBuyVolume  uint64       `json:"total_buy_volume"`
	TotalSellVolume uint64       `json:"total_sell_volume"`
	UniqueTraders   int          `json:"unique_traders"`
	PricePerToken   float64      `json:"price_per_token"`
	Liquidity       *uint64      `json:"liquidity,omitempty"`
	BondingProgress float64      `json:"bonding_progress"`
	AboutToGraduate bool         `json:"about_to_graduate"`
	FullyBonded     bool         `json:"fully_bonded"`
	TokenCreatedAt  int64        `json:"token_created_at"`
	GraduatedAt     int64        `json:"graduated_at,omitempty"`
	LastTradeAt     int64        `json:"last_trade_at,omitempty"`
	TopWallets      []walletView `json:"top_wallets,omitempty"`
	RecentTrades    []tradeView  `json:"recent_trades,omitempty"`
}

// newAggregateView flattens an aggregate. wallets > 0 includes the volume
// leaderboard and recent trades.
func newAggregateView(a *domain.MintAggregate, wallets int) aggregateView {
	v := aggregateView{
		Mint:            a.Mint,
		Name:            a.Name,
		Symbol:          a.Symbol,
		TPS:             a.TPS,
		TotalBuyVolume:  a.TotalBuyVolume,
		TotalSellVolume: a.TotalSellVolume,
		UniqueTraders:   a.UniqueTraderCount(),
		PricePerToken:   a.PricePerToken,
		BondingProgress: a.BondingProgress,
		AboutToGraduate: a.AboutToGraduate,
		FullyBonded:     a.FullyBonded,
		TokenCreatedAt:  a.TokenCreatedAt,
		GraduatedAt:     a.GraduatedAt,
		LastTradeAt:     a.LastTradeAt,
	}
	if liq, ok := a.Liquidity(); ok {
		v.Liquidity = &liq
	}
	if wallets <= 0 {
		return v
	}

	for _, w := range a.TopWallets(wallets) {
		v.TopWallets = append(v.TopWallets, walletView{
			Address:     w.Address,
			BuyVolume:   w.BuyVolume,
			SellVolume:  w.SellVolume,
			TotalVolume: w.TotalVolume,
			TradeCount:  w.TradeCount,
		})
	}
	for _, t := range a.RecentTrades {
		v.RecentTrades = append(v.RecentTrades, tradeView{
			Signature:   t.Signature,
			Side:        t.Side(),
			SolAmount:   t.SolAmount,
			TokenAmount: t.TokenAmount,
			Trader:      t.TraderAddress,
			Timestamp:   t.Timestamp,
		})
	}
	return v
}

type fillView struct {
	FillID     string          `json:"fill_id"`
	Type       domain.FillType `json:"type"`
	Amount     decimal.Decimal `json:"amount"`
	Price      decimal.Decimal `json:"price"`
	TotalValue decimal.Decimal `json:"total_value"`
	Timestamp  int64           `json:"timestamp"`
}

func newFillViews(fills []domain.Fill) []fillView {
	out := make([]fillView, len(fills))
	for i, f := range fills {
		out[i] = fillView{
			FillID:     f.FillID,
			Type:       f.Type,
			Amount:     f.Amount,
			Price:      f.Price,
			TotalValue: f.TotalValue,
			Timestamp:  f.Timestamp,
		}
	}
	return out
}

type positionView struct {
	Mint             string          `json:"mint"`
	TotalAmountHeld  decimal.Decimal `json:"total_amount_held"`
	TotalInvested    decimal.Decimal `json:"total_invested"`
	AverageBuyPrice  decimal.Decimal `json:"average_buy_price"`
	TotalBought      decimal.Decimal `json:"total_bought"`
	TotalBuyCost     decimal.Decimal `json:"total_buy_cost"`
	TotalSold        decimal.Decimal `json:"total_sold"`
	TotalSellRevenue decimal.Decimal `json:"total_sell_revenue"`
	RealizedPnL      decimal.Decimal `json:"realized_pnl"`
	OpenedAt         int64           `json:"opened_at"`
	UpdatedAt        int64           `json:"updated_at"`
	Transactions     []fillView      `json:"transactions"`
}

func newPositionView(p *domain.Position) positionView {
	return positionView{
		Mint:             p.Mint,
		TotalAmountHeld:  p.TotalAmountHeld,
		TotalInvested:    p.TotalInvested,
		AverageBuyPrice:  p.AverageBuyPrice,
		TotalBought:      p.TotalBought,
		TotalBuyCost:     p.TotalBuyCost,
		TotalSold:        p.TotalSold,
		TotalSellRevenue: p.TotalSellRevenue,
		RealizedPnL:      p.RealizedPnL,
		OpenedAt:         p.OpenedAt,
		UpdatedAt:        p.UpdatedAt,
		Transactions:     newFillViews(p.Transactions),
	}
}

type closedPositionView struct {
	Mint             string          `json:"mint"`
	TotalBought      decimal.Decimal `json:"total_bought"`
	TotalBuyCost     decimal.Decimal `json:"total_buy_cost"`
	TotalSold        decimal.Decimal `json:"total_sold"`
	TotalSellRevenue decimal.Decimal `json:"total_sell_revenue"`
	RealizedPnL      decimal.Decimal `json:"realized_pnl"`
	Win              bool            `json:"win"`
	OpenedAt         int64           `json:"opened_at"`
	ClosedAt         int64           `json:"closed_at"`
	Transactions     []fillView      `json:"transactions"`
}

func newClosedPositionView(c *domain.ClosedPosition) closedPositionView {
	return closedPositionView{
		Mint:             c.Mint,
		TotalBought:      c.TotalBought,
		TotalBuyCost:     c.TotalBuyCost,
		TotalSold:        c.TotalSold,
		TotalSellRevenue: c.TotalSellRevenue,
		RealizedPnL:      c.RealizedPnL,
		Win:              c.IsWin(),
		OpenedAt:         c.OpenedAt,
		ClosedAt:         c.ClosedAt,
		Transactions:     newFillViews(c.Transactions),
	}
}

type portfolioView struct {
	OpenPositions    int             `json:"open_positions"`
	ClosedPositions  int             `json:"closed_positions"`
	Wins             int             `json:"wins"`
	Losses           int             `json:"losses"`
	WinRate          float64         `json:"win_rate"`
	TotalInvested    decimal.Decimal `json:"total_invested"`
	OpenCostBasis    decimal.Decimal `json:"open_cost_basis"`
	OpenRealizedPnL  decimal.Decimal `json:"open_realized_pnl"`
	TotalRealizedPnL decimal.Decimal `json:"total_realized_pnl"`
	MarketValue      decimal.Decimal `json:"market_value"`
	UnrealizedPnL    decimal.Decimal `json:"unrealized_pnl"`
	PricedPositions  int             `json:"priced_positions"`
}

func newPortfolioView(p domain.PortfolioSnapshot) portfolioView {
	return portfolioView{
		OpenPositions:    p.OpenPositions,
		ClosedPositions:  p.ClosedPositions,
		Wins:             p.Wins,
		Losses:           p.Losses,
		WinRate:          p.WinRate,
		TotalInvested:    p.TotalInvested,
		OpenCostBasis:    p.OpenCostBasis,
		OpenRealizedPnL:  p.OpenRealizedPnL,
		TotalRealizedPnL: p.TotalRealizedPnL,
		MarketValue:      p.MarketValue,
		UnrealizedPnL:    p.UnrealizedPnL,
		PricedPositions:  p.PricedPositions,
	}
}
