package fills

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"solana-activity-engine/internal/domain"
	"solana-activity-engine/internal/idhash"
)

// ErrMalformed is returned for fill notifications that cannot be decoded.
var ErrMalformed = errors.New("malformed fill notification")

// Notification is the wire shape of a confirmed-fill notification.
// Decimal fields accept JSON numbers or numeric strings.
type Notification struct {
	Mint       string          `json:"mint"`
	Type       string          `json:"type"`
	Amount     decimal.Decimal `json:"amount"`
	Price      decimal.Decimal `json:"price"`
	TotalValue decimal.Decimal `json:"totalValue"`
	Timestamp  json.Number     `json:"timestamp"`
	FillID     string          `json:"fillId"`
	Signature  string          `json:"signature"`
}

// Decode parses a notification body into a mint and a fill. A missing fill id
// is derived from the signature; with neither the message is malformed.
func Decode(body []byte) (string, domain.Fill, error) {
	var n Notification
	if err := json.Unmarshal(body, &n); err != nil {
		return "", domain.Fill{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	mint := strings.TrimSpace(n.Mint)
	if mint == "" {
		return "", domain.Fill{}, fmt.Errorf("%w: missing mint", ErrMalformed)
	}

	typ := domain.FillType(strings.ToLower(strings.TrimSpace(n.Type)))
	if !typ.IsValid() {
		return "", domain.Fill{}, fmt.Errorf("%w: unknown type %q", ErrMalformed, n.Type)
	}

	ts, err := parseTimestamp(n.Timestamp)
	if err != nil {
		return "", domain.Fill{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	id := strings.TrimSpace(n.FillID)
	if id == "" {
		if n.Signature == "" {
			return "", domain.Fill{}, fmt.Errorf("%w: missing fillId and signature", ErrMalformed)
		}
		id = idhash.ComputeFillID(mint, n.Signature, string(typ), n.Amount.String())
	}

	return mint, domain.Fill{
		FillID:     id,
		Type:       typ,
		Amount:     n.Amount,
		Price:      n.Price,
		TotalValue: n.TotalValue,
		Timestamp:  ts,
	}, nil
}

// parseTimestamp returns Unix ms. Values below 1e11 are taken as seconds.
// A missing timestamp means now.
func parseTimestamp(n json.Number) (int64, error) {
	if n == "" {
		return time.Now().UnixMilli(), nil
	}
	v, err := strconv.ParseInt(n.String(), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid timestamp %q", n)
	}
	if v < 0 {
		return 0, fmt.Errorf("negative timestamp %d", v)
	}
	if v < 1e11 {
		v *= 1000
	}
	return v, nil
}
