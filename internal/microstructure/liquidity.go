package microstructure

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// LiquidityScoreConfig sets the fixed weights and the min-max reference ranges
// used to normalize each score component into [0, 1].
type LiquidityScoreConfig struct {
	DepthWeight  decimal.Decimal `yaml:"depth_weight"`
	SpreadWeight decimal.Decimal `yaml:"spread_weight"`
	SlopeWeight  decimal.Decimal `yaml:"slope_weight"`

	DepthMin         decimal.Decimal `yaml:"depth_min"` // total bid+ask quantity
	DepthMax         decimal.Decimal `yaml:"depth_max"`
	SpreadMinPercent decimal.Decimal `yaml:"spread_min_percent"`
	SpreadMaxPercent decimal.Decimal `yaml:"spread_max_percent"`
	SlopeMin         decimal.Decimal `yaml:"slope_min"`
	SlopeMax         decimal.Decimal `yaml:"slope_max"`
}

// DefaultLiquidityScoreConfig weighs depth and spread equally with slope as a tiebreaker
func DefaultLiquidityScoreConfig() LiquidityScoreConfig {
	return LiquidityScoreConfig{
		DepthWeight:      decimal.RequireFromString("0.4"),
		SpreadWeight:     decimal.RequireFromString("0.4"),
		SlopeWeight:      decimal.RequireFromString("0.2"),
		DepthMin:         decimal.Zero,
		DepthMax:         decimal.NewFromInt(1000),
		SpreadMinPercent: decimal.Zero,
		SpreadMaxPercent: decimal.NewFromInt(1),
		SlopeMin:         decimal.Zero,
		SlopeMax:         decimal.NewFromInt(1000),
	}
}

// Validate checks weights are non-negative with a positive sum and every range is non-empty
func (c LiquidityScoreConfig) Validate() error {
	for name, w := range map[string]decimal.Decimal{
		"depth_weight": c.DepthWeight, "spread_weight": c.SpreadWeight, "slope_weight": c.SlopeWeight,
	} {
		if w.IsNegative() {
			return fmt.Errorf("liquidity score %s must be >= 0", name)
		}
	}
	if !c.DepthWeight.Add(c.SpreadWeight).Add(c.SlopeWeight).IsPositive() {
		return fmt.Errorf("liquidity score weights must sum to > 0")
	}
	if !c.DepthMax.GreaterThan(c.DepthMin) {
		return fmt.Errorf("liquidity score depth range is empty")
	}
	if !c.SpreadMaxPercent.GreaterThan(c.SpreadMinPercent) {
		return fmt.Errorf("liquidity score spread range is empty")
	}
	if !c.SlopeMax.GreaterThan(c.SlopeMin) {
		return fmt.Errorf("liquidity score slope range is empty")
	}
	return nil
}

// CalculateLiquiditySlope fits cumulative quantity against distance from mid for each side.
// A side is undefined with fewer than 2 levels, an undefined mid, or levels all equidistant.
func CalculateLiquiditySlope(snap OrderBookSnapshot, depth int) (LiquiditySlope, error) {
	norm, err := Normalize(snap)
	if err != nil {
		return LiquiditySlope{}, err
	}
	return liquiditySlope(norm, depth), nil
}

func liquiditySlope(snap OrderBookSnapshot, depth int) LiquiditySlope {
	mid := midPrice(snap)
	if !mid.Valid {
		return LiquiditySlope{}
	}
	return LiquiditySlope{
		Bid: sideSlope(limitLevels(snap.Bids, depth), mid.Decimal),
		Ask: sideSlope(limitLevels(snap.Asks, depth), mid.Decimal),
	}
}

func sideSlope(levels []PriceLevel, mid decimal.Decimal) decimal.NullDecimal {
	if len(levels) < 2 {
		return undefined
	}

	var sumX, sumY, sumXY, sumXX decimal.Decimal
	cum := decimal.Zero
	for _, lvl := range levels {
		cum = cum.Add(lvl.Quantity)
		x := lvl.Price.Sub(mid).Abs()
		sumX = sumX.Add(x)
		sumY = sumY.Add(cum)
		sumXY = sumXY.Add(x.Mul(cum))
		sumXX = sumXX.Add(x.Mul(x))
	}

	n := decimal.NewFromInt(int64(len(levels)))
	denom := n.Mul(sumXX).Sub(sumX.Mul(sumX))
	if denom.IsZero() {
		return undefined
	}
	return defined(n.Mul(sumXY).Sub(sumX.Mul(sumY)).Div(denom))
}

// ComputeLiquidityScore combines total depth, inverse spread and mean slope into [0, 1].
// Undefined components contribute nothing; the score is undefined only for a book with
// both sides empty.
func ComputeLiquidityScore(m MarketAnalysis, slope LiquiditySlope, cfg LiquidityScoreConfig) decimal.NullDecimal {
	if !m.BestBid.Valid && !m.BestAsk.Valid {
		return undefined
	}

	depthScore := normalize(m.BidDepth.Add(m.AskDepth), cfg.DepthMin, cfg.DepthMax)

	spreadScore := decimal.Zero
	if m.SpreadPercent.Valid {
		spreadScore = one.Sub(normalize(m.SpreadPercent.Decimal, cfg.SpreadMinPercent, cfg.SpreadMaxPercent))
	}

	slopeScore := decimal.Zero
	if s, ok := meanSlope(slope); ok {
		slopeScore = normalize(s, cfg.SlopeMin, cfg.SlopeMax)
	}

	totalWeight := cfg.DepthWeight.Add(cfg.SpreadWeight).Add(cfg.SlopeWeight)
	if !totalWeight.IsPositive() {
		return undefined
	}

	score := cfg.DepthWeight.Mul(depthScore).
		Add(cfg.SpreadWeight.Mul(spreadScore)).
		Add(cfg.SlopeWeight.Mul(slopeScore)).
		Div(totalWeight)
	return defined(clamp(score, decimal.Zero, one))
}

func meanSlope(s LiquiditySlope) (decimal.Decimal, bool) {
	switch {
	case s.Bid.Valid && s.Ask.Valid:
		return s.Bid.Decimal.Add(s.Ask.Decimal).Div(two), true
	case s.Bid.Valid:
		return s.Bid.Decimal, true
	case s.Ask.Valid:
		return s.Ask.Decimal, true
	}
	return decimal.Zero, false
}

// normalize maps v into [0, 1] against [lo, hi]
func normalize(v, lo, hi decimal.Decimal) decimal.Decimal {
	span := hi.Sub(lo)
	if !span.IsPositive() {
		return decimal.Zero
	}
	return clamp(v.Sub(lo).Div(span), decimal.Zero, one)
}
