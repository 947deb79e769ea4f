package microstructure

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyzeSnapshot(t *testing.T) {
	snap := createReferenceBook()
	trades := append(createTape(0, 5*time.Second, 12), createTape(61*time.Second, time.Second, 10)...)

	result, err := AnalyzeSnapshot(snap, trades, nil)
	require.NoError(t, err)

	assert.Equal(t, "BTCUSDT", result.Symbol)
	assert.Equal(t, snap.Timestamp, result.Timestamp)
	assertDecimal(t, "1", result.Market.Spread)
	assertDecimal(t, "0", result.Market.Imbalance)
	assertDecimal(t, "0", result.OBI)
	assert.True(t, result.WOBI.Valid)
	assertDecimal(t, "3", result.LiquiditySlope.Bid)
	assert.True(t, result.LiquidityScore.Valid)
	assertDecimal(t, "100", result.VWAP)
	assert.True(t, result.Burst.Detected)
	assert.Equal(t, 2, result.DepthBand.BidLevels)
	assert.Equal(t, 2, result.DepthBand.AskLevels)

	require.True(t, result.PressureIndex.Valid)
	assert.True(t, result.PressureIndex.Decimal.GreaterThanOrEqual(dec("-1")))
	assert.True(t, result.PressureIndex.Decimal.LessThanOrEqual(dec("1")))
}

func TestAnalyzeSnapshot_Deterministic(t *testing.T) {
	snap := createReferenceBook()
	trades := createTape(0, time.Second, 300)

	first, err := AnalyzeSnapshot(snap, trades, DefaultConfig())
	require.NoError(t, err)
	second, err := AnalyzeSnapshot(snap, trades, DefaultConfig())
	require.NoError(t, err)

	a, err := json.Marshal(first)
	require.NoError(t, err)
	b, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestAnalyzeSnapshot_EmptyInputs(t *testing.T) {
	result, err := AnalyzeSnapshot(OrderBookSnapshot{Symbol: "NONE"}, nil, nil)
	require.NoError(t, err)

	assert.False(t, result.Market.BestBid.Valid)
	assert.False(t, result.OBI.Valid)
	assert.False(t, result.WOBI.Valid)
	assert.False(t, result.LiquidityScore.Valid)
	assert.False(t, result.VWAP.Valid)
	assert.False(t, result.VWAPDrift.Valid)
	assert.False(t, result.PressureIndex.Valid)
	assert.Equal(t, FlowNeutral, result.TradeFlow.Signal)
	assert.False(t, result.Burst.Detected)
}

func TestAnalyzeSnapshot_InvalidInput(t *testing.T) {
	crossed := OrderBookSnapshot{
		Bids: levels([2]string{"102", "1"}),
		Asks: levels([2]string{"101", "1"}),
	}
	_, err := AnalyzeSnapshot(crossed, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)

	backwards := []Trade{
		trade("100", "1", time.Second, true),
		trade("100", "1", 0, true),
	}
	_, err = AnalyzeSnapshot(createReferenceBook(), backwards, nil)
	var inputErr *InputError
	require.True(t, errors.As(err, &inputErr))
	assert.Equal(t, "trades[1].timestamp", inputErr.Field)
}

func TestAnalyzeBatch(t *testing.T) {
	crossed := OrderBookSnapshot{
		Symbol: "CROSSED",
		Bids:   levels([2]string{"102", "1"}),
		Asks:   levels([2]string{"101", "1"}),
	}
	second := createReferenceBook()
	second.Symbol = "ETHUSDT"

	inputs := []AnalysisInput{
		{Snapshot: createReferenceBook()},
		{Snapshot: crossed},
		{Snapshot: second, Trades: createTape(0, time.Second, 10)},
	}

	results, err := AnalyzeBatch(context.Background(), inputs, nil)
	require.NoError(t, err)
	require.Len(t, results, 3)

	require.NoError(t, results[0].Err)
	assert.Equal(t, "BTCUSDT", results[0].Result.Symbol)

	assert.ErrorIs(t, results[1].Err, ErrInvalidInput)
	assert.Nil(t, results[1].Result)

	require.NoError(t, results[2].Err)
	assert.Equal(t, "ETHUSDT", results[2].Result.Symbol)
	assert.Equal(t, 10, results[2].Result.TradeFlow.TradeCount)
}

func TestAnalyzeBatch_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := AnalyzeBatch(ctx, []AnalysisInput{{Snapshot: createReferenceBook()}}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"negative_depth", func(c *Config) { c.Depth = -1 }},
		{"zero_obi_depth", func(c *Config) { c.OBIDepth = 0 }},
		{"zero_drift_window", func(c *Config) { c.DriftWindow = 0 }},
		{"negative_decay", func(c *Config) { c.WOBIDecay = dec("-1") }},
		{"threshold_above_one", func(c *Config) { c.FlowThreshold = dec("1.5") }},
		{"no_concurrency", func(c *Config) { c.MaxBatchConcurrency = 0 }},
		{"bad_pressure", func(c *Config) { c.Pressure.FlowWeight = decimal.NewFromInt(2) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
