// Package idhash derives deterministic identifiers.
package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeFillID computes a deterministic fill_id using SHA256.
// Used when a confirmed-fill notification carries a signature but no fill id,
// so redeliveries of the same fill map to the same id.
// Formula: SHA256(mint|signature|type|amount)
// amount must be the canonical decimal string (decimal.Decimal.String()).
// Returns hex-encoded hash (64 characters).
func ComputeFillID(
	mint string,
	signature string,
	fillType string,
	amount string,
) string {
	data := fmt.Sprintf("%s|%s|%s|%s",
		mint,
		signature,
		fillType,
		amount,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
