package domain

import "sort"

// WalletVolume holds per-wallet trade volume for a mint (lamports).
type WalletVolume struct {
	BuyVolume   uint64
	SellVolume  uint64
	TotalVolume uint64
	TradeCount  int
}

// WalletRank is a wallet paired with its volume, used for volume leaderboards.
type WalletRank struct {
	Address string
	WalletVolume
}

// MintAggregate holds rolling statistics for one mint.
// Values handed out by the aggregate store are snapshots and must be treated as read-only.
type MintAggregate struct {
	Mint   string
	Name   string // optional feed metadata
	Symbol string // optional feed metadata

	RecentTrades    []TradeEvent // most recent first
	TotalBuyVolume  uint64       // lamports, monotonic
	TotalSellVolume uint64       // lamports, monotonic
	TPS             float64      // trades per second over the trailing window
	TPSWindow       []int64      // trade timestamps (ms) inside the trailing window

	WalletVolumes map[string]WalletVolume
	UniqueTraders map[string]struct{}

	PricePerToken   float64 // lamports per raw token unit, from the latest priced trade
	RealSolReserves uint64  // lamports, 0 means unknown
	BondingProgress float64 // [0, 1]
	FullyBonded     bool    // terminal once true
	AboutToGraduate bool

	TokenCreatedAt int64 // ms, immutable after first observation
	GraduatedAt    int64 // ms, 0 until FullyBonded
	LastTradeAt    int64 // ms
	UpdatedAt      int64 // ms
}

// Liquidity returns real SOL reserves and whether they are known.
// Zero reserves are reported as unknown rather than empty.
func (a *MintAggregate) Liquidity() (uint64, bool) {
	if a.RealSolReserves == 0 {
		return 0, false
	}
	return a.RealSolReserves, true
}

// UniqueTraderCount returns the number of distinct wallets seen.
func (a *MintAggregate) UniqueTraderCount() int {
	return len(a.UniqueTraders)
}

// TopWallets returns up to n wallets ordered by total volume DESC, address ASC.
// n <= 0 returns all wallets.
func (a *MintAggregate) TopWallets(n int) []WalletRank {
	ranks := make([]WalletRank, 0, len(a.WalletVolumes))
	for addr, v := range a.WalletVolumes {
		ranks = append(ranks, WalletRank{Address: addr, WalletVolume: v})
	}
	sort.Slice(ranks, func(i, j int) bool {
		if ranks[i].TotalVolume != ranks[j].TotalVolume {
			return ranks[i].TotalVolume > ranks[j].TotalVolume
		}
		return ranks[i].Address < ranks[j].Address
	})
	if n > 0 && len(ranks) > n {
		ranks = ranks[:n]
	}
	return ranks
}

// Clone returns a deep copy.
func (a *MintAggregate) Clone() MintAggregate {
	c := *a
	if a.RecentTrades != nil {
		c.RecentTrades = make([]TradeEvent, len(a.RecentTrades))
		copy(c.RecentTrades, a.RecentTrades)
	}
	if a.TPSWindow != nil {
		c.TPSWindow = make([]int64, len(a.TPSWindow))
		copy(c.TPSWindow, a.TPSWindow)
	}
	if a.WalletVolumes != nil {
		c.WalletVolumes = make(map[string]WalletVolume, len(a.WalletVolumes))
		for k, v := range a.WalletVolumes {
			c.WalletVolumes[k] = v
		}
	}
	if a.UniqueTraders != nil {
		c.UniqueTraders = make(map[string]struct{}, len(a.UniqueTraders))
		for k := range a.UniqueTraders {
			c.UniqueTraders[k] = struct{}{}
		}
	}
	return c
}
