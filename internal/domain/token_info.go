package domain

// TokenInfo is display metadata for a mint.
type TokenInfo struct {
	Mint      string `json:"mint"`
	Name      string `json:"name"`
	Symbol    string `json:"symbol"`
	UpdatedAt int64  `json:"updated_at"` // ms
}
