// Package microstructure derives spread, imbalance, liquidity and trade-flow metrics
// from discrete order book snapshots and a bounded trade tape. Every function is pure:
// inputs are never mutated and no state survives a call.
package microstructure

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceLevel is a single resting price and the quantity available at it
type PriceLevel struct {
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
}

// OrderBookSnapshot is one discrete view of both book sides
type OrderBookSnapshot struct {
	Symbol       string       `json:"symbol,omitempty"`
	Venue        string       `json:"venue,omitempty"`
	Bids         []PriceLevel `json:"bids"` // Descending by price
	Asks         []PriceLevel `json:"asks"` // Ascending by price
	Timestamp    time.Time    `json:"timestamp"`
	LastUpdateID int64        `json:"last_update_id,omitempty"`
}

// Trade is a single print from the venue tape
type Trade struct {
	ID           int64           `json:"id,omitempty"`
	Price        decimal.Decimal `json:"price"`
	Quantity     decimal.Decimal `json:"quantity"`
	Timestamp    time.Time       `json:"timestamp"`
	TakerIsBuyer bool            `json:"taker_is_buyer"` // true when an aggressive buy lifted the offer
}

// Notional returns price * quantity
func (t Trade) Notional() decimal.Decimal {
	return t.Price.Mul(t.Quantity)
}

// FlowSignal classifies net taker pressure
type FlowSignal string

const (
	FlowBullish FlowSignal = "bullish"
	FlowBearish FlowSignal = "bearish"
	FlowNeutral FlowSignal = "neutral"
)

// MarketAnalysis is the spread & depth view of a snapshot
type MarketAnalysis struct {
	BestBid       decimal.NullDecimal `json:"best_bid"`
	BestAsk       decimal.NullDecimal `json:"best_ask"`
	MidPrice      decimal.NullDecimal `json:"mid_price"`
	Spread        decimal.NullDecimal `json:"spread"`
	SpreadPercent decimal.NullDecimal `json:"spread_percent"` // 1.0 == 1%
	BidDepth      decimal.Decimal     `json:"bid_depth"`
	AskDepth      decimal.Decimal     `json:"ask_depth"`
	Imbalance     decimal.NullDecimal `json:"imbalance"` // [-1, 1]
}

// LiquiditySlope is the least-squares slope of cumulative quantity against distance from mid
type LiquiditySlope struct {
	Bid decimal.NullDecimal `json:"bid"`
	Ask decimal.NullDecimal `json:"ask"`
}

// TradeFlow splits a trade window into taker-buy and taker-sell volume
type TradeFlow struct {
	BuyVolume  decimal.Decimal     `json:"buy_volume"`
	SellVolume decimal.Decimal     `json:"sell_volume"`
	NetRatio   decimal.NullDecimal `json:"net_ratio"` // (buy - sell) / (buy + sell)
	Signal     FlowSignal          `json:"signal"`
	TradeCount int                 `json:"trade_count"`
}

// BurstResult compares the most recent trade rate against a trailing baseline
type BurstResult struct {
	Detected         bool                `json:"detected"`
	ShortCount       int                 `json:"short_count"`
	BaselineCount    int                 `json:"baseline_count"`
	ShortRate        decimal.Decimal     `json:"short_rate"`    // trades per second
	BaselineRate     decimal.NullDecimal `json:"baseline_rate"` // undefined with insufficient history
	ShortVolumeRate  decimal.Decimal     `json:"short_volume_rate"`
	BaselineVolRate  decimal.NullDecimal `json:"baseline_volume_rate"`
	RateRatio        decimal.NullDecimal `json:"rate_ratio"`
	InsufficientData bool                `json:"insufficient_data"`
}

// AnalysisResult aggregates every metric derived from one snapshot and its trade tape
type AnalysisResult struct {
	Symbol    string    `json:"symbol,omitempty"`
	Timestamp time.Time `json:"timestamp"`

	Market         MarketAnalysis      `json:"market"`
	OBI            decimal.NullDecimal `json:"obi"`
	WOBI           decimal.NullDecimal `json:"wobi"`
	DepthBand      DepthBand           `json:"depth_band"`
	LiquiditySlope LiquiditySlope      `json:"liquidity_slope"`
	LiquidityScore decimal.NullDecimal `json:"liquidity_score"` // [0, 1]

	VWAP      decimal.NullDecimal `json:"vwap"`
	VWAPDrift decimal.NullDecimal `json:"vwap_drift"` // percent
	TradeFlow TradeFlow           `json:"trade_flow"`
	Burst     BurstResult         `json:"burst"`

	PressureIndex decimal.NullDecimal `json:"pressure_index"` // [-1, 1]
}
