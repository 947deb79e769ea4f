package microstructure

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// BurstConfig controls trade burst detection
type BurstConfig struct {
	ShortWindow       time.Duration   `yaml:"short_window"`
	BaselineWindow    time.Duration   `yaml:"baseline_window"`
	Multiple          decimal.Decimal `yaml:"multiple"`
	MinBaselineTrades int             `yaml:"min_baseline_trades"`
}

// DefaultBurstConfig flags a 10s rate more than 3x the preceding minute's rate
func DefaultBurstConfig() BurstConfig {
	return BurstConfig{
		ShortWindow:       10 * time.Second,
		BaselineWindow:    60 * time.Second,
		Multiple:          decimal.NewFromInt(3),
		MinBaselineTrades: 10,
	}
}

// Validate checks windows are positive and the multiple is at least 1
func (c BurstConfig) Validate() error {
	if c.ShortWindow <= 0 || c.BaselineWindow <= 0 {
		return fmt.Errorf("burst windows must be > 0")
	}
	if c.Multiple.LessThan(one) {
		return fmt.Errorf("burst multiple must be >= 1")
	}
	if c.MinBaselineTrades < 1 {
		return fmt.Errorf("burst min baseline trades must be >= 1")
	}
	return nil
}

// lastN returns the most recent n trades; n <= 0 returns all
func lastN(trades []Trade, n int) []Trade {
	if n <= 0 || n >= len(trades) {
		return trades
	}
	return trades[len(trades)-n:]
}

// CalculateVWAP returns Σ(price·quantity) / Σ(quantity).
// Undefined for an empty window or zero total quantity.
func CalculateVWAP(trades []Trade) (decimal.NullDecimal, error) {
	if err := ValidateTrades(trades); err != nil {
		return undefined, err
	}
	return vwap(trades), nil
}

func vwap(trades []Trade) decimal.NullDecimal {
	notional := decimal.Zero
	volume := decimal.Zero
	for _, t := range trades {
		notional = notional.Add(t.Notional())
		volume = volume.Add(t.Quantity)
	}
	if volume.IsZero() {
		return undefined
	}
	return defined(notional.Div(volume))
}

// CalculateVWAPDrift compares the VWAP of the last window trades against the window before it,
// in percent. Undefined with fewer than 2*window trades.
func CalculateVWAPDrift(trades []Trade, window int) (decimal.NullDecimal, error) {
	if err := ValidateTrades(trades); err != nil {
		return undefined, err
	}
	return vwapDrift(trades, window), nil
}

func vwapDrift(trades []Trade, window int) decimal.NullDecimal {
	if window <= 0 || len(trades) < 2*window {
		return undefined
	}

	n := len(trades)
	recent := vwap(trades[n-window:])
	prior := vwap(trades[n-2*window : n-window])
	if !recent.Valid || !prior.Valid || prior.Decimal.IsZero() {
		return undefined
	}
	return defined(recent.Decimal.Sub(prior.Decimal).Div(prior.Decimal).Mul(hundred))
}

// ClassifyTradeFlow splits the last window trades by aggressor and classifies the net ratio
// against ±threshold. An empty window, or one with zero volume, is neutral with an undefined ratio.
func ClassifyTradeFlow(trades []Trade, window int, threshold decimal.Decimal) (TradeFlow, error) {
	if threshold.IsNegative() {
		return TradeFlow{}, inputErrorf("threshold", "negative threshold %s", threshold)
	}
	if err := ValidateTrades(trades); err != nil {
		return TradeFlow{}, err
	}
	return tradeFlow(trades, window, threshold), nil
}

func tradeFlow(trades []Trade, window int, threshold decimal.Decimal) TradeFlow {
	w := lastN(trades, window)

	flow := TradeFlow{
		BuyVolume:  decimal.Zero,
		SellVolume: decimal.Zero,
		Signal:     FlowNeutral,
		TradeCount: len(w),
	}
	for _, t := range w {
		if t.TakerIsBuyer {
			flow.BuyVolume = flow.BuyVolume.Add(t.Quantity)
		} else {
			flow.SellVolume = flow.SellVolume.Add(t.Quantity)
		}
	}

	flow.NetRatio = imbalance(flow.BuyVolume, flow.SellVolume)
	if !flow.NetRatio.Valid {
		return flow
	}

	switch net := flow.NetRatio.Decimal; {
	case net.GreaterThan(threshold):
		flow.Signal = FlowBullish
	case net.LessThan(threshold.Neg()):
		flow.Signal = FlowBearish
	}
	return flow
}

// DetectTradeBurst compares the trade rate in (t-short, t] with the rate in the baseline
// window immediately before it, where t is the last trade's timestamp. A baseline with fewer
// than MinBaselineTrades trades never flags a burst.
func DetectTradeBurst(trades []Trade, cfg BurstConfig) (BurstResult, error) {
	if err := ValidateTrades(trades); err != nil {
		return BurstResult{}, err
	}
	return tradeBurst(trades, cfg), nil
}

func tradeBurst(trades []Trade, cfg BurstConfig) BurstResult {
	result := BurstResult{
		ShortRate:        decimal.Zero,
		ShortVolumeRate:  decimal.Zero,
		InsufficientData: true,
	}
	if len(trades) == 0 || cfg.ShortWindow <= 0 || cfg.BaselineWindow <= 0 {
		return result
	}

	end := trades[len(trades)-1].Timestamp
	shortStart := end.Add(-cfg.ShortWindow)
	baseStart := shortStart.Add(-cfg.BaselineWindow)

	shortVol := decimal.Zero
	baseVol := decimal.Zero
	for _, t := range trades {
		switch {
		case t.Timestamp.After(shortStart):
			result.ShortCount++
			shortVol = shortVol.Add(t.Quantity)
		case t.Timestamp.After(baseStart):
			result.BaselineCount++
			baseVol = baseVol.Add(t.Quantity)
		}
	}

	shortSecs := seconds(cfg.ShortWindow)
	baseSecs := seconds(cfg.BaselineWindow)
	result.ShortRate = decimal.NewFromInt(int64(result.ShortCount)).Div(shortSecs)
	result.ShortVolumeRate = shortVol.Div(shortSecs)

	if result.BaselineCount < cfg.MinBaselineTrades {
		return result
	}
	result.InsufficientData = false

	baseRate := decimal.NewFromInt(int64(result.BaselineCount)).Div(baseSecs)
	result.BaselineRate = defined(baseRate)
	result.BaselineVolRate = defined(baseVol.Div(baseSecs))
	result.RateRatio = defined(result.ShortRate.Div(baseRate))
	result.Detected = result.ShortRate.GreaterThan(cfg.Multiple.Mul(baseRate))
	return result
}

func seconds(d time.Duration) decimal.Decimal {
	return decimal.NewFromInt(d.Nanoseconds()).Div(decimal.NewFromInt(int64(time.Second)))
}
