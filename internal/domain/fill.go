package domain

import "github.com/shopspring/decimal"

// FillType is the side of a confirmed fill.
type FillType string

const (
	FillBuy  FillType = "buy"
	FillSell FillType = "sell"
)

// IsValid checks if the fill type is a known value.
func (t FillType) IsValid() bool {
	return t == FillBuy || t == FillSell
}

// Fill represents a confirmed, on-chain settled trade execution of the wallet.
// Amount is in raw token units, TotalValue in lamports, Price in lamports per raw unit.
type Fill struct {
	FillID     string
	Type       FillType
	Amount     decimal.Decimal
	Price      decimal.Decimal
	TotalValue decimal.Decimal
	Timestamp  int64 // ms
}
