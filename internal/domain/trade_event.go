package domain

// LamportsPerSOL is the number of lamports in one SOL.
const LamportsPerSOL uint64 = 1_000_000_000

// Trade side constants
const (
	TradeSideBuy  = "buy"
	TradeSideSell = "sell"
)

// TradeEvent represents a single observed market trade for a mint.
// Amounts are in smallest units: lamports for SOL, raw units for tokens.
type TradeEvent struct {
	Mint            string // token mint address
	Signature       string // transaction signature, dedup key
	IsBuy           bool   // true when trader bought the token
	SolAmount       uint64 // lamports exchanged
	TokenAmount     uint64 // raw token units exchanged
	TraderAddress   string // trader wallet
	RealSolReserves uint64 // bonding curve real SOL reserves after the trade (lamports)
	Timestamp       int64  // Unix timestamp in milliseconds
}

// Side returns "buy" or "sell".
func (e TradeEvent) Side() string {
	if e.IsBuy {
		return TradeSideBuy
	}
	return TradeSideSell
}
