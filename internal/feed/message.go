package feed

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"

	"solana-activity-engine/internal/domain"
)

// MessageType is the feed envelope discriminator.
type MessageType string

const (
	MessageSnapshot MessageType = "Snapshot"
	MessageUpdate   MessageType = "Update"
	MessageTrade    MessageType = "Trade"
)

// ErrMalformed matches every parse failure. Use errors.As with *MalformedError for the reason.
var ErrMalformed = errors.New("malformed message")

// Malformed reasons, used as metric labels.
const (
	ReasonInvalidJSON   = "invalid_json"
	ReasonUnknownType   = "unknown_type"
	ReasonMissingData   = "missing_data"
	ReasonInvalidData   = "invalid_data"
	ReasonInvalidMint   = "invalid_mint"
	ReasonInvalidSig    = "invalid_signature"
	ReasonEmptyEnvelope = "empty_envelope"
)

// MalformedError describes why a message was dropped.
type MalformedError struct {
	Reason string
	Detail string
}

func (e *MalformedError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("malformed message: %s", e.Reason)
	}
	return fmt.Sprintf("malformed message: %s: %s", e.Reason, e.Detail)
}

// Is reports whether target is ErrMalformed.
func (e *MalformedError) Is(target error) bool {
	return target == ErrMalformed
}

func malformed(reason, format string, args ...any) error {
	return &MalformedError{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// MalformedReason extracts the reason from a parse error, or "unknown".
func MalformedReason(err error) string {
	var me *MalformedError
	if errors.As(err, &me) {
		return me.Reason
	}
	return "unknown"
}

// Message is a parsed feed message. Exactly one payload field is set, per Type.
type Message struct {
	Type     MessageType
	Snapshot map[string]domain.MintAggregate
	Update   domain.MintAggregate
	Trade    domain.TradeEvent

	// Skipped counts snapshot entries or nested trades dropped for invalid ids.
	Skipped int
}

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// ParseMessage decodes one feed frame. It never panics; every failure is a *MalformedError.
func ParseMessage(data []byte) (msg *Message, err error) {
	defer func() {
		if r := recover(); r != nil {
			msg = nil
			err = malformed(ReasonInvalidData, "decoder panic: %v", r)
		}
	}()

	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, malformed(ReasonEmptyEnvelope, "empty frame")
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, malformed(ReasonInvalidJSON, "%v", err)
	}
	if isNull(env.Data) {
		return nil, malformed(ReasonMissingData, "type %q without data", env.Type)
	}

	switch MessageType(env.Type) {
	case MessageSnapshot:
		return parseSnapshot(env.Data)
	case MessageUpdate:
		return parseUpdate(env.Data)
	case MessageTrade:
		return parseTrade(env.Data)
	default:
		return nil, malformed(ReasonUnknownType, "%q", env.Type)
	}
}

func parseSnapshot(data json.RawMessage) (*Message, error) {
	msg := &Message{Type: MessageSnapshot, Snapshot: make(map[string]domain.MintAggregate)}

	// Accept both {mint: aggregate} and [aggregate, ...].
	data = bytes.TrimSpace(data)
	var entries map[string]wireAggregate
	if data[0] == '[' {
		var list []wireAggregate
		if err := json.Unmarshal(data, &list); err != nil {
			return nil, malformed(ReasonInvalidData, "snapshot: %v", err)
		}
		entries = make(map[string]wireAggregate, len(list))
		for _, w := range list {
			entries[w.Mint] = w
		}
	} else if err := json.Unmarshal(data, &entries); err != nil {
		return nil, malformed(ReasonInvalidData, "snapshot: %v", err)
	}

	for key, w := range entries {
		if w.Mint != "" && w.Mint != key {
			msg.Skipped++
			continue
		}
		w.Mint = key
		if !validAddress(key) {
			msg.Skipped++
			continue
		}
		agg, skipped := w.toDomain()
		msg.Skipped += skipped
		msg.Snapshot[key] = agg
	}
	return msg, nil
}

func parseUpdate(data json.RawMessage) (*Message, error) {
	var w wireAggregate
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, malformed(ReasonInvalidData, "update: %v", err)
	}
	if !validAddress(w.Mint) {
		return nil, malformed(ReasonInvalidMint, "update mint %q", w.Mint)
	}
	agg, skipped := w.toDomain()
	return &Message{Type: MessageUpdate, Update: agg, Skipped: skipped}, nil
}

func parseTrade(data json.RawMessage) (*Message, error) {
	var w wireTrade
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, malformed(ReasonInvalidData, "trade: %v", err)
	}
	if !validAddress(w.Mint) {
		return nil, malformed(ReasonInvalidMint, "trade mint %q", w.Mint)
	}
	if !validAddress(w.Signature) {
		return nil, malformed(ReasonInvalidSig, "trade signature %q", w.Signature)
	}
	return &Message{Type: MessageTrade, Trade: w.toDomain()}, nil
}

// validAddress reports whether s is a non-empty base58 string.
func validAddress(s string) bool {
	if s == "" {
		return false
	}
	_, err := base58.Decode(s)
	return err == nil
}

func isNull(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

// Wire shapes. Every numeric field tolerates numbers, numeric strings and null.

type wireTrade struct {
	Mint            string   `json:"mint"`
	Signature       string   `json:"signature"`
	IsBuy           flexBool `json:"isBuy"`
	SolAmount       flexUint `json:"solAmount"`
	TokenAmount     flexUint `json:"tokenAmount"`
	TraderAddress   string   `json:"traderAddress"`
	RealSolReserves flexUint `json:"realSolReserves"`
	Timestamp       flexTime `json:"timestamp"`
}

func (w wireTrade) toDomain() domain.TradeEvent {
	return domain.TradeEvent{
		Mint:            w.Mint,
		Signature:       w.Signature,
		IsBuy:           bool(w.IsBuy),
		SolAmount:       uint64(w.SolAmount),
		TokenAmount:     uint64(w.TokenAmount),
		TraderAddress:   w.TraderAddress,
		RealSolReserves: uint64(w.RealSolReserves),
		Timestamp:       int64(w.Timestamp),
	}
}

type wireWalletVolume struct {
	BuyVolume   flexUint `json:"buyVolume"`
	SellVolume  flexUint `json:"sellVolume"`
	TotalVolume flexUint `json:"totalVolume"`
	TradeCount  flexUint `json:"tradeCount"`
}

type wireAggregate struct {
	Mint            string                      `json:"mint"`
	Name            string                      `json:"name"`
	Symbol          string                      `json:"symbol"`
	RecentTrades    []wireTrade                 `json:"recentTrades"`
	TotalBuyVolume  flexUint                    `json:"totalBuyVolume"`
	TotalSellVolume flexUint                    `json:"totalSellVolume"`
	TPS             flexFloat                   `json:"tps"`
	TPSWindow       []flexTime                  `json:"tpsWindow"`
	WalletVolumes   map[string]wireWalletVolume `json:"walletVolumes"`
	UniqueTraders   flexStrings                 `json:"uniqueTraders"`
	PricePerToken   flexFloat                   `json:"pricePerToken"`
	RealSolReserves flexUint                    `json:"realSolReserves"`
	BondingProgress flexFloat                   `json:"bondingProgress"`
	FullyBonded     flexBool                    `json:"fullyBonded"`
	TokenCreatedAt  flexTime                    `json:"tokenCreatedAt"`
	GraduatedAt     flexTime                    `json:"graduatedAt"`
}

// toDomain converts the wire aggregate. Nested trades with invalid signatures are dropped and counted.
func (w wireAggregate) toDomain() (domain.MintAggregate, int) {
	skipped := 0
	agg := domain.MintAggregate{
		Mint:            w.Mint,
		Name:            w.Name,
		Symbol:          w.Symbol,
		TotalBuyVolume:  uint64(w.TotalBuyVolume),
		TotalSellVolume: uint64(w.TotalSellVolume),
		TPS:             float64(w.TPS),
		PricePerToken:   float64(w.PricePerToken),
		RealSolReserves: uint64(w.RealSolReserves),
		BondingProgress: float64(w.BondingProgress),
		FullyBonded:     bool(w.FullyBonded),
		TokenCreatedAt:  int64(w.TokenCreatedAt),
		GraduatedAt:     int64(w.GraduatedAt),
		WalletVolumes:   make(map[string]domain.WalletVolume, len(w.WalletVolumes)),
		UniqueTraders:   make(map[string]struct{}, len(w.UniqueTraders)),
	}

	for _, t := range w.RecentTrades {
		if t.Mint != "" && t.Mint != w.Mint {
			skipped++
			continue
		}
		if !validAddress(t.Signature) {
			skipped++
			continue
		}
		t.Mint = w.Mint
		agg.RecentTrades = append(agg.RecentTrades, t.toDomain())
	}

	for _, ts := range w.TPSWindow {
		if ts > 0 {
			agg.TPSWindow = append(agg.TPSWindow, int64(ts))
		}
	}

	for addr, v := range w.WalletVolumes {
		if addr == "" {
			continue
		}
		wv := domain.WalletVolume{
			BuyVolume:   uint64(v.BuyVolume),
			SellVolume:  uint64(v.SellVolume),
			TotalVolume: uint64(v.TotalVolume),
			TradeCount:  int(v.TradeCount),
		}
		if wv.TotalVolume == 0 {
			wv.TotalVolume = wv.BuyVolume + wv.SellVolume
		}
		agg.WalletVolumes[addr] = wv
	}

	for _, addr := range w.UniqueTraders {
		if addr != "" {
			agg.UniqueTraders[addr] = struct{}{}
		}
	}

	return agg, skipped
}
