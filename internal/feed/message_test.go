package feed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMessage_Snapshot(t *testing.T) {
	raw := `{
		"type": "Snapshot",
		"data": {
			"mintA": {
				"tps": "5",
				"totalBuyVolume": "1000",
				"totalSellVolume": 250,
				"bondingProgress": 0.5,
				"symbol": "ALP",
				"walletVolumes": {"wallet1": {"buyVolume": "10", "tradeCount": 2}},
				"uniqueTraders": ["wallet1", "wallet2", 7],
				"recentTrades": [
					{"signature": "sigA", "isBuy": "true", "solAmount": 10, "tokenAmount": "5", "timestamp": 1700000000000},
					{"signature": "bad-sig", "solAmount": 1}
				],
				"someFutureField": {"nested": true}
			},
			"mintB": {"tps": 9},
			"0OIl": {"tps": 1}
		}
	}`

	msg, err := ParseMessage([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, MessageSnapshot, msg.Type)
	require.Len(t, msg.Snapshot, 2)
	assert.Equal(t, 2, msg.Skipped, "invalid mint key and invalid nested signature")

	a := msg.Snapshot["mintA"]
	assert.Equal(t, "mintA", a.Mint)
	assert.Equal(t, "ALP", a.Symbol)
	assert.Equal(t, 5.0, a.TPS)
	assert.Equal(t, uint64(1000), a.TotalBuyVolume)
	assert.Equal(t, uint64(250), a.TotalSellVolume)
	assert.Equal(t, 0.5, a.BondingProgress)
	assert.Equal(t, uint64(10), a.WalletVolumes["wallet1"].TotalVolume)
	assert.Equal(t, 2, a.WalletVolumes["wallet1"].TradeCount)
	assert.Len(t, a.UniqueTraders, 2)

	require.Len(t, a.RecentTrades, 1)
	tr := a.RecentTrades[0]
	assert.Equal(t, "mintA", tr.Mint)
	assert.True(t, tr.IsBuy)
	assert.Equal(t, uint64(5), tr.TokenAmount)
	assert.Equal(t, int64(1_700_000_000_000), tr.Timestamp)

	assert.Equal(t, 9.0, msg.Snapshot["mintB"].TPS)
}

func TestParseMessage_SnapshotArray(t *testing.T) {
	msg, err := ParseMessage([]byte(`{"type":"Snapshot","data":[{"mint":"mintA","tps":1},{"mint":"mintB"},{"tps":3}]}`))
	require.NoError(t, err)
	assert.Len(t, msg.Snapshot, 2)
	assert.Equal(t, 1, msg.Skipped)
}

func TestParseMessage_EmptySnapshot(t *testing.T) {
	msg, err := ParseMessage([]byte(`{"type":"Snapshot","data":{}}`))
	require.NoError(t, err)
	assert.Empty(t, msg.Snapshot)
}

func TestParseMessage_Update(t *testing.T) {
	msg, err := ParseMessage([]byte(`{"type":"Update","data":{"mint":"mintA","realSolReserves":"70000000000","fullyBonded":0,"tokenCreatedAt":"2023-11-14T22:13:20Z"}}`))
	require.NoError(t, err)
	assert.Equal(t, MessageUpdate, msg.Type)
	assert.Equal(t, "mintA", msg.Update.Mint)
	assert.Equal(t, uint64(70_000_000_000), msg.Update.RealSolReserves)
	assert.False(t, msg.Update.FullyBonded)
	assert.Equal(t, int64(1_700_000_000_000), msg.Update.TokenCreatedAt)
}

func TestParseMessage_Trade(t *testing.T) {
	msg, err := ParseMessage([]byte(`{"type":"Trade","data":{"mint":"mintA","signature":"sigA","isBuy":1,"solAmount":"1500000000","tokenAmount":1e6,"traderAddress":"wallet1","timestamp":1700000000}}`))
	require.NoError(t, err)
	assert.Equal(t, MessageTrade, msg.Type)

	tr := msg.Trade
	assert.Equal(t, "mintA", tr.Mint)
	assert.Equal(t, "sigA", tr.Signature)
	assert.True(t, tr.IsBuy)
	assert.Equal(t, uint64(1_500_000_000), tr.SolAmount)
	assert.Equal(t, uint64(1_000_000), tr.TokenAmount)
	assert.Equal(t, "wallet1", tr.TraderAddress)
	assert.Equal(t, int64(1_700_000_000_000), tr.Timestamp, "second timestamps are scaled to ms")
}

func TestParseMessage_LenientScalars(t *testing.T) {
	msg, err := ParseMessage([]byte(`{"type":"Update","data":{"mint":"mintA","tps":{"x":1},"totalBuyVolume":-5,"pricePerToken":"NaN","bondingProgress":null,"isBuy":[1]}}`))
	require.NoError(t, err)
	assert.Equal(t, 0.0, msg.Update.TPS)
	assert.Equal(t, uint64(0), msg.Update.TotalBuyVolume)
	assert.Equal(t, 0.0, msg.Update.PricePerToken)
	assert.Equal(t, 0.0, msg.Update.BondingProgress)
}

func TestParseMessage_Malformed(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		reason string
	}{
		{"empty frame", "  ", ReasonEmptyEnvelope},
		{"not json", "{oops", ReasonInvalidJSON},
		{"array envelope", `[1,2]`, ReasonInvalidJSON},
		{"missing data", `{"type":"Update"}`, ReasonMissingData},
		{"null data", `{"type":"Snapshot","data":null}`, ReasonMissingData},
		{"unknown type", `{"type":"Bogus","data":{}}`, ReasonUnknownType},
		{"snapshot not object", `{"type":"Snapshot","data":"x"}`, ReasonInvalidData},
		{"snapshot bad list", `{"type":"Snapshot","data":[1,2]}`, ReasonInvalidData},
		{"update no mint", `{"type":"Update","data":{"tps":1}}`, ReasonInvalidMint},
		{"update bad mint", `{"type":"Update","data":{"mint":"0OIl"}}`, ReasonInvalidMint},
		{"update wrong shape", `{"type":"Update","data":[]}`, ReasonInvalidData},
		{"trade no signature", `{"type":"Trade","data":{"mint":"mintA"}}`, ReasonInvalidSig},
		{"trade bad signature", `{"type":"Trade","data":{"mint":"mintA","signature":"sig-1"}}`, ReasonInvalidSig},
		{"trade no mint", `{"type":"Trade","data":{"signature":"sigA"}}`, ReasonInvalidMint},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := ParseMessage([]byte(tt.raw))
			assert.Nil(t, msg)
			require.ErrorIs(t, err, ErrMalformed)
			assert.Equal(t, tt.reason, MalformedReason(err))
		})
	}
}

func TestParseMessage_NeverPanics(t *testing.T) {
	inputs := []string{
		`null`, `"str"`, `123`, `{"type":null,"data":{}}`, `{"type":"Trade","data":{"mint":123}}`,
		`{"type":"Snapshot","data":{"mintA":null}}`, `{"type":"Snapshot","data":{"mintA":{"recentTrades":{}}}}`,
		`{"type":"Update","data":{"mint":"mintA","walletVolumes":[]}}`, "\x00\x01\x02",
	}
	for _, in := range inputs {
		assert.NotPanics(t, func() { _, _ = ParseMessage([]byte(in)) }, in)
	}
}

func TestMalformedReason_Unknown(t *testing.T) {
	assert.Equal(t, "unknown", MalformedReason(assert.AnError))
}
