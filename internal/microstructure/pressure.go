package microstructure

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// PressureConfig weighs the three directional signals. DriftScalePercent is the VWAP drift
// that maps to a full ±1 contribution.
type PressureConfig struct {
	WOBIWeight        decimal.Decimal `yaml:"wobi_weight"`
	FlowWeight        decimal.Decimal `yaml:"flow_weight"`
	DriftWeight       decimal.Decimal `yaml:"drift_weight"`
	DriftScalePercent decimal.Decimal `yaml:"drift_scale_percent"`
}

// DefaultPressureConfig weights WOBI and trade flow at 0.4 each and VWAP drift at 0.2,
// with a 0.5% drift saturating the drift component
func DefaultPressureConfig() PressureConfig {
	return PressureConfig{
		WOBIWeight:        decimal.RequireFromString("0.4"),
		FlowWeight:        decimal.RequireFromString("0.4"),
		DriftWeight:       decimal.RequireFromString("0.2"),
		DriftScalePercent: decimal.RequireFromString("0.5"),
	}
}

// Validate requires non-negative weights summing to at most 1, so the index stays in [-1, 1]
func (c PressureConfig) Validate() error {
	if c.WOBIWeight.IsNegative() || c.FlowWeight.IsNegative() || c.DriftWeight.IsNegative() {
		return fmt.Errorf("pressure weights must be >= 0")
	}
	if c.WOBIWeight.Add(c.FlowWeight).Add(c.DriftWeight).GreaterThan(one) {
		return fmt.Errorf("pressure weights must sum to <= 1")
	}
	if !c.DriftScalePercent.IsPositive() {
		return fmt.Errorf("pressure drift scale must be > 0")
	}
	return nil
}

// ComputeMarketPressureIndex blends WOBI, net trade flow and scaled VWAP drift into [-1, 1].
// Undefined inputs contribute zero; the index is undefined only when every input is.
func ComputeMarketPressureIndex(wobi, flowNet, vwapDrift decimal.NullDecimal, cfg PressureConfig) decimal.NullDecimal {
	if !wobi.Valid && !flowNet.Valid && !vwapDrift.Valid {
		return undefined
	}

	neg := one.Neg()
	index := decimal.Zero
	if wobi.Valid {
		index = index.Add(cfg.WOBIWeight.Mul(clamp(wobi.Decimal, neg, one)))
	}
	if flowNet.Valid {
		index = index.Add(cfg.FlowWeight.Mul(clamp(flowNet.Decimal, neg, one)))
	}
	if vwapDrift.Valid && cfg.DriftScalePercent.IsPositive() {
		drift := clamp(vwapDrift.Decimal.Div(cfg.DriftScalePercent), neg, one)
		index = index.Add(cfg.DriftWeight.Mul(drift))
	}
	return defined(clamp(index, neg, one))
}
