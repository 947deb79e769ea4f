package microstructure

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// Config holds every policy parameter of the analysis. None of the defaults are venue
// contract values; they are tunables.
type Config struct {
	Depth            int             `yaml:"depth"`              // levels per side for spread/depth; 0 = all
	OBIDepth         int             `yaml:"obi_depth"`          // near-touch levels for OBI
	WOBIDepth        int             `yaml:"wobi_depth"`         // 0 = all
	WOBIDecay        decimal.Decimal `yaml:"wobi_decay"`         // k in exp(-k·dist/mid)
	SlopeDepth       int             `yaml:"slope_depth"`        // 0 = all
	DepthBandPercent decimal.Decimal `yaml:"depth_band_percent"` // ±% of mid
	FlowWindow       int             `yaml:"flow_window"`        // trades; 0 = all
	FlowThreshold    decimal.Decimal `yaml:"flow_threshold"`
	DriftWindow      int             `yaml:"drift_window"` // trades per half

	LiquidityScore LiquidityScoreConfig `yaml:"liquidity_score"`
	Burst          BurstConfig          `yaml:"burst"`
	Pressure       PressureConfig       `yaml:"pressure"`

	MaxBatchConcurrency int `yaml:"max_batch_concurrency"`
}

// DefaultConfig returns the tunables used when no configuration file is supplied
func DefaultConfig() *Config {
	return &Config{
		Depth:               0,
		OBIDepth:            5,
		WOBIDepth:           0,
		WOBIDecay:           decimal.NewFromInt(50),
		SlopeDepth:          20,
		DepthBandPercent:    decimal.NewFromInt(2),
		FlowWindow:          100,
		FlowThreshold:       decimal.RequireFromString("0.2"),
		DriftWindow:         50,
		LiquidityScore:      DefaultLiquidityScoreConfig(),
		Burst:               DefaultBurstConfig(),
		Pressure:            DefaultPressureConfig(),
		MaxBatchConcurrency: 4,
	}
}

// Validate checks the configuration is internally consistent
func (c *Config) Validate() error {
	if c.Depth < 0 || c.WOBIDepth < 0 || c.SlopeDepth < 0 || c.FlowWindow < 0 {
		return fmt.Errorf("depth and window settings must be >= 0")
	}
	if c.OBIDepth <= 0 {
		return fmt.Errorf("obi depth must be > 0")
	}
	if c.DriftWindow <= 0 {
		return fmt.Errorf("drift window must be > 0")
	}
	if c.WOBIDecay.IsNegative() {
		return fmt.Errorf("wobi decay must be >= 0")
	}
	if c.DepthBandPercent.IsNegative() {
		return fmt.Errorf("depth band percent must be >= 0")
	}
	if c.FlowThreshold.IsNegative() || c.FlowThreshold.GreaterThan(one) {
		return fmt.Errorf("flow threshold must be within [0, 1]")
	}
	if c.MaxBatchConcurrency <= 0 {
		return fmt.Errorf("max batch concurrency must be > 0")
	}
	if err := c.LiquidityScore.Validate(); err != nil {
		return err
	}
	if err := c.Burst.Validate(); err != nil {
		return err
	}
	return c.Pressure.Validate()
}

// AnalyzeSnapshot computes every metric for one snapshot and its trade tape.
// Malformed input fails the whole call with *InputError; degenerate input yields undefined fields.
func AnalyzeSnapshot(snap OrderBookSnapshot, trades []Trade, cfg *Config) (*AnalysisResult, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	norm, err := validateInputs(snap, trades)
	if err != nil {
		return nil, err
	}

	market := analyzeMarket(norm, cfg.Depth)
	slope := liquiditySlope(norm, cfg.SlopeDepth)
	flow := tradeFlow(trades, cfg.FlowWindow, cfg.FlowThreshold)
	drift := vwapDrift(trades, cfg.DriftWindow)
	wobiValue := wobi(norm, cfg.WOBIDecay, cfg.WOBIDepth)

	result := &AnalysisResult{
		Symbol:         snap.Symbol,
		Timestamp:      snap.Timestamp,
		Market:         market,
		OBI:            obi(norm, cfg.OBIDepth),
		WOBI:           wobiValue,
		DepthBand:      depthBand(norm, cfg.DepthBandPercent),
		LiquiditySlope: slope,
		LiquidityScore: ComputeLiquidityScore(market, slope, cfg.LiquidityScore),
		VWAP:           vwap(lastN(trades, cfg.FlowWindow)),
		VWAPDrift:      drift,
		TradeFlow:      flow,
		Burst:          tradeBurst(trades, cfg.Burst),
		PressureIndex:  ComputeMarketPressureIndex(wobiValue, flow.NetRatio, drift, cfg.Pressure),
	}
	return result, nil
}

// validateInputs normalizes the snapshot and checks the trade tape
func validateInputs(snap OrderBookSnapshot, trades []Trade) (OrderBookSnapshot, error) {
	norm, err := Normalize(snap)
	if err != nil {
		return OrderBookSnapshot{}, err
	}
	if err := ValidateTrades(trades); err != nil {
		return OrderBookSnapshot{}, err
	}
	return norm, nil
}

// AnalysisInput is one snapshot and its tape for batch analysis
type AnalysisInput struct {
	Snapshot OrderBookSnapshot
	Trades   []Trade
}

// BatchResult holds either a result or the input's own error
type BatchResult struct {
	Result *AnalysisResult
	Err    error
}

// AnalyzeBatch analyzes inputs concurrently. Each input is independent: results are returned
// in input order and one input's failure never affects another's.
func AnalyzeBatch(ctx context.Context, inputs []AnalysisInput, cfg *Config) ([]BatchResult, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	results := make([]BatchResult, len(inputs))
	g, ctx := errgroup.WithContext(ctx)
	if cfg.MaxBatchConcurrency > 0 {
		g.SetLimit(cfg.MaxBatchConcurrency)
	}

	for i := range inputs {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res, err := AnalyzeSnapshot(inputs[i].Snapshot, inputs[i].Trades, cfg)
			results[i] = BatchResult{Result: res, Err: err}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
