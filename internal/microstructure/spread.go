package microstructure

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// AnalyzeMarket computes best prices, spread and depth over the first depth levels per side.
// depth <= 0 includes every level.
func AnalyzeMarket(snap OrderBookSnapshot, depth int) (MarketAnalysis, error) {
	norm, err := Normalize(snap)
	if err != nil {
		return MarketAnalysis{}, err
	}
	return analyzeMarket(norm, depth), nil
}

func analyzeMarket(snap OrderBookSnapshot, depth int) MarketAnalysis {
	result := MarketAnalysis{
		BidDepth: sumQuantity(snap.Bids, depth),
		AskDepth: sumQuantity(snap.Asks, depth),
	}

	if len(snap.Bids) > 0 {
		result.BestBid = defined(snap.Bids[0].Price)
	}
	if len(snap.Asks) > 0 {
		result.BestAsk = defined(snap.Asks[0].Price)
	}

	if result.BestBid.Valid && result.BestAsk.Valid {
		bid, ask := result.BestBid.Decimal, result.BestAsk.Decimal
		mid := bid.Add(ask).Div(two)
		spread := ask.Sub(bid)

		result.MidPrice = defined(mid)
		result.Spread = defined(spread)
		if !mid.IsZero() {
			result.SpreadPercent = defined(spread.Div(mid).Mul(hundred))
		}
	}

	result.Imbalance = imbalance(result.BidDepth, result.AskDepth)
	return result
}

// midPrice returns (bestBid + bestAsk) / 2, undefined when either side is empty
func midPrice(snap OrderBookSnapshot) decimal.NullDecimal {
	if len(snap.Bids) == 0 || len(snap.Asks) == 0 {
		return undefined
	}
	return defined(snap.Bids[0].Price.Add(snap.Asks[0].Price).Div(two))
}

// SpreadSummary renders a one-line description of a market analysis
func SpreadSummary(m MarketAnalysis) string {
	if !m.Spread.Valid {
		return fmt.Sprintf("Spread: n/a (bid: %s, ask: %s)", FormatNull(m.BestBid, -1), FormatNull(m.BestAsk, -1))
	}
	return fmt.Sprintf("Spread: %s (%s%%) bid: %s ask: %s mid: %s",
		m.Spread.Decimal.String(),
		FormatNull(m.SpreadPercent, 4),
		m.BestBid.Decimal.String(),
		m.BestAsk.Decimal.String(),
		m.MidPrice.Decimal.String())
}

// FormatNull renders an optional metric; places < 0 prints the exact value
func FormatNull(v decimal.NullDecimal, places int32) string {
	if !v.Valid {
		return "n/a"
	}
	if places < 0 {
		return v.Decimal.String()
	}
	return v.Decimal.StringFixed(places)
}
