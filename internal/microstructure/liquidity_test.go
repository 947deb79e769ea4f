package microstructure

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateLiquiditySlope(t *testing.T) {
	slope, err := CalculateLiquiditySlope(createReferenceBook(), 0)
	require.NoError(t, err)

	// bids: (0.5, 2), (1.5, 5); asks: (0.5, 1), (1.5, 5)
	assertDecimal(t, "3", slope.Bid)
	assertDecimal(t, "4", slope.Ask)
}

func TestCalculateLiquiditySlope_Undefined(t *testing.T) {
	tests := []struct {
		name string
		snap OrderBookSnapshot
	}{
		{
			name: "single_level",
			snap: OrderBookSnapshot{
				Bids: levels([2]string{"100", "1"}),
				Asks: levels([2]string{"101", "1"}),
			},
		},
		{
			name: "one_sided",
			snap: OrderBookSnapshot{
				Bids: levels([2]string{"100", "1"}, [2]string{"99", "1"}),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			slope, err := CalculateLiquiditySlope(tt.snap, 0)
			require.NoError(t, err)
			assert.False(t, slope.Bid.Valid)
			assert.False(t, slope.Ask.Valid)
		})
	}
}

func TestComputeLiquidityScore_Bounds(t *testing.T) {
	cfg := DefaultLiquidityScoreConfig()
	snap := createReferenceBook()

	m, err := AnalyzeMarket(snap, 0)
	require.NoError(t, err)
	slope := liquiditySlope(snap, 0)

	score := ComputeLiquidityScore(m, slope, cfg)
	require.True(t, score.Valid)
	assert.True(t, score.Decimal.GreaterThanOrEqual(decimal.Zero))
	assert.True(t, score.Decimal.LessThanOrEqual(one))
}

func TestComputeLiquidityScore_Monotonic(t *testing.T) {
	cfg := DefaultLiquidityScoreConfig()
	base := MarketAnalysis{
		BestBid:       defined(dec("100")),
		BestAsk:       defined(dec("101")),
		SpreadPercent: defined(dec("0.5")),
		BidDepth:      dec("100"),
		AskDepth:      dec("100"),
	}
	slope := LiquiditySlope{Bid: defined(dec("200")), Ask: defined(dec("200"))}
	baseScore := ComputeLiquidityScore(base, slope, cfg)
	require.True(t, baseScore.Valid)

	t.Run("deeper_book_scores_higher", func(t *testing.T) {
		deeper := base
		deeper.BidDepth = dec("300")
		assert.True(t, ComputeLiquidityScore(deeper, slope, cfg).Decimal.GreaterThan(baseScore.Decimal))
	})

	t.Run("tighter_spread_scores_higher", func(t *testing.T) {
		tighter := base
		tighter.SpreadPercent = defined(dec("0.1"))
		assert.True(t, ComputeLiquidityScore(tighter, slope, cfg).Decimal.GreaterThan(baseScore.Decimal))
	})

	t.Run("steeper_slope_scores_higher", func(t *testing.T) {
		steeper := LiquiditySlope{Bid: defined(dec("600")), Ask: defined(dec("600"))}
		assert.True(t, ComputeLiquidityScore(base, steeper, cfg).Decimal.GreaterThan(baseScore.Decimal))
	})

	t.Run("saturates_at_one", func(t *testing.T) {
		huge := base
		huge.BidDepth = dec("1e9")
		huge.SpreadPercent = defined(decimal.Zero)
		steep := LiquiditySlope{Bid: defined(dec("1e9")), Ask: defined(dec("1e9"))}
		assertDecimal(t, "1", ComputeLiquidityScore(huge, steep, cfg))
	})
}

func TestComputeLiquidityScore_Undefined(t *testing.T) {
	cfg := DefaultLiquidityScoreConfig()

	assert.False(t, ComputeLiquidityScore(MarketAnalysis{}, LiquiditySlope{}, cfg).Valid)

	// One populated side still scores on depth alone
	oneSided := MarketAnalysis{BestBid: defined(dec("100")), BidDepth: dec("500"), AskDepth: decimal.Zero}
	score := ComputeLiquidityScore(oneSided, LiquiditySlope{}, cfg)
	assertDecimal(t, "0.2", score)
}

func TestLiquidityScoreConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultLiquidityScoreConfig().Validate())

	bad := DefaultLiquidityScoreConfig()
	bad.DepthWeight = dec("-0.1")
	assert.Error(t, bad.Validate())

	bad = DefaultLiquidityScoreConfig()
	bad.SpreadMaxPercent = bad.SpreadMinPercent
	assert.Error(t, bad.Validate())

	bad = DefaultLiquidityScoreConfig()
	bad.DepthWeight, bad.SpreadWeight, bad.SlopeWeight = decimal.Zero, decimal.Zero, decimal.Zero
	assert.Error(t, bad.Validate())
}
