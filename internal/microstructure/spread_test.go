package microstructure

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// levels builds a book side from price/quantity string pairs
func levels(pairs ...[2]string) []PriceLevel {
	out := make([]PriceLevel, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, PriceLevel{Price: dec(p[0]), Quantity: dec(p[1])})
	}
	return out
}

// createReferenceBook is bids [[100,2],[99,3]], asks [[101,1],[102,4]]
func createReferenceBook() OrderBookSnapshot {
	return OrderBookSnapshot{
		Symbol:    "BTCUSDT",
		Venue:     "binance",
		Bids:      levels([2]string{"100", "2"}, [2]string{"99", "3"}),
		Asks:      levels([2]string{"101", "1"}, [2]string{"102", "4"}),
		Timestamp: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func assertDecimal(t *testing.T, want string, got decimal.NullDecimal, msgAndArgs ...interface{}) {
	t.Helper()
	require.True(t, got.Valid, msgAndArgs...)
	assert.True(t, dec(want).Equal(got.Decimal), "want %s, got %s", want, got.Decimal)
}

func TestAnalyzeMarket_ReferenceBook(t *testing.T) {
	m, err := AnalyzeMarket(createReferenceBook(), 0)
	require.NoError(t, err)

	assertDecimal(t, "100", m.BestBid)
	assertDecimal(t, "101", m.BestAsk)
	assertDecimal(t, "1", m.Spread)
	assertDecimal(t, "100.5", m.MidPrice)
	assert.Equal(t, "0.9950", FormatNull(m.SpreadPercent, 4))
	assert.True(t, m.BidDepth.Equal(dec("5")))
	assert.True(t, m.AskDepth.Equal(dec("5")))
	assertDecimal(t, "0", m.Imbalance)
}

func TestAnalyzeMarket_DepthLimit(t *testing.T) {
	m, err := AnalyzeMarket(createReferenceBook(), 1)
	require.NoError(t, err)

	assert.True(t, m.BidDepth.Equal(dec("2")))
	assert.True(t, m.AskDepth.Equal(dec("1")))
	// (2 - 1) / 3
	assert.Equal(t, "0.3333", FormatNull(m.Imbalance, 4))
}

func TestAnalyzeMarket_OneSided(t *testing.T) {
	snap := createReferenceBook()
	snap.Asks = nil

	m, err := AnalyzeMarket(snap, 0)
	require.NoError(t, err)

	assertDecimal(t, "100", m.BestBid)
	assert.False(t, m.BestAsk.Valid)
	assert.False(t, m.MidPrice.Valid)
	assert.False(t, m.Spread.Valid)
	assert.False(t, m.SpreadPercent.Valid)
	assert.True(t, m.AskDepth.IsZero())
	assertDecimal(t, "1", m.Imbalance)

	raw, err := json.Marshal(m)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"best_ask":null`)
	assert.Contains(t, string(raw), `"spread_percent":null`)
}

func TestAnalyzeMarket_EmptyBook(t *testing.T) {
	m, err := AnalyzeMarket(OrderBookSnapshot{Symbol: "EMPTY"}, 0)
	require.NoError(t, err)

	assert.False(t, m.BestBid.Valid)
	assert.False(t, m.BestAsk.Valid)
	assert.False(t, m.Imbalance.Valid)
	assert.True(t, m.BidDepth.IsZero())
	assert.True(t, m.AskDepth.IsZero())
}

func TestAnalyzeMarket_LockedBook(t *testing.T) {
	snap := OrderBookSnapshot{
		Bids: levels([2]string{"101", "1"}),
		Asks: levels([2]string{"101", "2"}),
	}
	m, err := AnalyzeMarket(snap, 0)
	require.NoError(t, err)
	assertDecimal(t, "0", m.Spread)
	assertDecimal(t, "0", m.SpreadPercent)
}

func TestAnalyzeMarket_Bounds(t *testing.T) {
	books := []OrderBookSnapshot{
		createReferenceBook(),
		{Bids: levels([2]string{"10", "1000"}), Asks: levels([2]string{"10.01", "0.001"})},
		{Bids: levels([2]string{"0.0001", "5"}), Asks: levels([2]string{"50000", "5"})},
		{Bids: levels([2]string{"10", "0"}), Asks: levels([2]string{"11", "7"})},
	}

	for i, snap := range books {
		m, err := AnalyzeMarket(snap, 0)
		require.NoError(t, err, "book %d", i)

		assert.False(t, m.Spread.Decimal.IsNegative(), "book %d spread", i)
		require.True(t, m.Imbalance.Valid, "book %d", i)
		assert.True(t, m.Imbalance.Decimal.GreaterThanOrEqual(dec("-1")), "book %d imbalance", i)
		assert.True(t, m.Imbalance.Decimal.LessThanOrEqual(dec("1")), "book %d imbalance", i)
	}
}

func TestSpreadSummary(t *testing.T) {
	m, err := AnalyzeMarket(createReferenceBook(), 0)
	require.NoError(t, err)
	assert.Contains(t, SpreadSummary(m), "(0.9950%)")

	snap := createReferenceBook()
	snap.Bids = nil
	m, err = AnalyzeMarket(snap, 0)
	require.NoError(t, err)
	assert.Equal(t, "Spread: n/a (bid: n/a, ask: 101)", SpreadSummary(m))
}

func TestFormatNull(t *testing.T) {
	assert.Equal(t, "n/a", FormatNull(decimal.NullDecimal{}, 2))
	assert.Equal(t, "1.50", FormatNull(defined(dec("1.5")), 2))
	assert.Equal(t, "1.5", FormatNull(defined(dec("1.5")), -1))
}
