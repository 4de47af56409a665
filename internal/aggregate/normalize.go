package aggregate

import (
	"math"

	"solana-activity-engine/internal/domain"
)

func clampProgress(p float64) float64 {
	if math.IsNaN(p) || p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

// normalize turns a feed-supplied aggregate into store state.
// prev is the currently known state for the same mint, or nil.
// The result never shares memory with in or prev.
func (s *Store) normalize(in domain.MintAggregate, prev *domain.MintAggregate, now int64) domain.MintAggregate {
	a := in.Clone()
	if a.WalletVolumes == nil {
		a.WalletVolumes = make(map[string]domain.WalletVolume)
	}
	if a.UniqueTraders == nil {
		a.UniqueTraders = make(map[string]struct{})
	}

	if len(a.RecentTrades) > s.opts.RecentTradesCap {
		a.RecentTrades = a.RecentTrades[:s.opts.RecentTradesCap]
	}
	var latestPriced *domain.TradeEvent
	for i := range a.RecentTrades {
		t := &a.RecentTrades[i]
		if t.Mint == "" {
			t.Mint = a.Mint
		}
		if t.TraderAddress != "" {
			a.UniqueTraders[t.TraderAddress] = struct{}{}
		}
		if t.Timestamp > a.LastTradeAt {
			a.LastTradeAt = t.Timestamp
		}
		if t.TokenAmount > 0 && (latestPriced == nil || t.Timestamp > latestPriced.Timestamp) {
			latestPriced = t
		}
	}
	for addr := range a.WalletVolumes {
		a.UniqueTraders[addr] = struct{}{}
	}

	// TPS: an explicit window wins, then the recent trades, then the supplied rate.
	switch {
	case len(a.TPSWindow) > 0:
		a.TPSWindow = s.pruneWindow(a.TPSWindow, now)
		a.TPS = s.tps(len(a.TPSWindow))
	case len(a.RecentTrades) > 0:
		window := make([]int64, 0, len(a.RecentTrades))
		for _, t := range a.RecentTrades {
			window = append(window, t.Timestamp)
		}
		a.TPSWindow = s.pruneWindow(window, now)
		a.TPS = s.tps(len(a.TPSWindow))
	default:
		a.TPSWindow = nil
		if math.IsNaN(a.TPS) || math.IsInf(a.TPS, 0) || a.TPS < 0 {
			a.TPS = 0
		}
	}

	if math.IsNaN(a.PricePerToken) || math.IsInf(a.PricePerToken, 0) || a.PricePerToken < 0 {
		a.PricePerToken = 0
	}
	if a.PricePerToken == 0 {
		switch {
		case latestPriced != nil:
			a.PricePerToken = float64(latestPriced.SolAmount) / float64(latestPriced.TokenAmount)
		case prev != nil:
			a.PricePerToken = prev.PricePerToken
		}
	}

	fully := a.FullyBonded
	if prev != nil {
		a.TotalBuyVolume = max(a.TotalBuyVolume, prev.TotalBuyVolume)
		a.TotalSellVolume = max(a.TotalSellVolume, prev.TotalSellVolume)
		a.LastTradeAt = max(a.LastTradeAt, prev.LastTradeAt)
		if a.Name == "" {
			a.Name = prev.Name
		}
		if a.Symbol == "" {
			a.Symbol = prev.Symbol
		}
		if a.RealSolReserves == 0 {
			a.RealSolReserves = prev.RealSolReserves
		}
		fully = fully || prev.FullyBonded
	}

	progress := a.BondingProgress
	if in.RealSolReserves > 0 {
		progress = float64(in.RealSolReserves) / float64(s.opts.GraduationTarget)
	} else if progress == 0 && prev != nil {
		progress = prev.BondingProgress
	}
	progress = clampProgress(progress)
	if progress >= 1 {
		fully = true
	}

	a.FullyBonded = fully
	if fully {
		a.BondingProgress = 1
		switch {
		case prev != nil && prev.GraduatedAt > 0:
			a.GraduatedAt = prev.GraduatedAt
		case a.GraduatedAt > 0:
		default:
			a.GraduatedAt = now
		}
	} else {
		a.BondingProgress = progress
		a.GraduatedAt = 0
	}
	a.AboutToGraduate = !fully && progress >= s.opts.GraduatingAt && progress < 1

	switch {
	case prev != nil && prev.TokenCreatedAt > 0:
		a.TokenCreatedAt = prev.TokenCreatedAt
	case a.TokenCreatedAt > 0:
	default:
		a.TokenCreatedAt = now
	}

	a.UpdatedAt = now
	return a
}
