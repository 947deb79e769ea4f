package microstructure

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// DepthBand is resting liquidity within ±Percent of the mid price
type DepthBand struct {
	Percent     decimal.Decimal     `json:"percent"`
	BidBound    decimal.NullDecimal `json:"bid_bound"` // mid * (1 - pct/100)
	AskBound    decimal.NullDecimal `json:"ask_bound"` // mid * (1 + pct/100)
	BidQuantity decimal.Decimal     `json:"bid_quantity"`
	AskQuantity decimal.Decimal     `json:"ask_quantity"`
	BidNotional decimal.Decimal     `json:"bid_notional"`
	AskNotional decimal.Decimal     `json:"ask_notional"`
	BidLevels   int                 `json:"bid_levels"`
	AskLevels   int                 `json:"ask_levels"`
	Imbalance   decimal.NullDecimal `json:"imbalance"`
}

// CalculateDepthBand sums liquidity within ±pct% of mid. Bounds are undefined when mid is,
// and both sides then report zero.
func CalculateDepthBand(snap OrderBookSnapshot, pct decimal.Decimal) (DepthBand, error) {
	if pct.IsNegative() {
		return DepthBand{}, inputErrorf("percent", "negative depth band %s", pct)
	}
	norm, err := Normalize(snap)
	if err != nil {
		return DepthBand{}, err
	}
	return depthBand(norm, pct), nil
}

func depthBand(snap OrderBookSnapshot, pct decimal.Decimal) DepthBand {
	band := DepthBand{
		Percent:     pct,
		BidQuantity: decimal.Zero,
		AskQuantity: decimal.Zero,
		BidNotional: decimal.Zero,
		AskNotional: decimal.Zero,
	}

	mid := midPrice(snap)
	if !mid.Valid {
		return band
	}

	frac := pct.Div(hundred)
	bidBound := mid.Decimal.Mul(one.Sub(frac))
	askBound := mid.Decimal.Mul(one.Add(frac))
	band.BidBound = defined(bidBound)
	band.AskBound = defined(askBound)

	// Bids are sorted descending, so we can break early
	for _, bid := range snap.Bids {
		if bid.Price.LessThan(bidBound) {
			break
		}
		band.BidQuantity = band.BidQuantity.Add(bid.Quantity)
		band.BidNotional = band.BidNotional.Add(bid.Price.Mul(bid.Quantity))
		band.BidLevels++
	}

	// Asks are sorted ascending
	for _, ask := range snap.Asks {
		if ask.Price.GreaterThan(askBound) {
			break
		}
		band.AskQuantity = band.AskQuantity.Add(ask.Quantity)
		band.AskNotional = band.AskNotional.Add(ask.Price.Mul(ask.Quantity))
		band.AskLevels++
	}

	band.Imbalance = imbalance(band.BidQuantity, band.AskQuantity)
	return band
}

// DepthSummary returns a human-readable depth band summary
func DepthSummary(b DepthBand) string {
	if !b.BidBound.Valid {
		return fmt.Sprintf("Depth ±%s%%: n/a (one-sided book)", b.Percent)
	}
	return fmt.Sprintf("Depth ±%s%%: %s bids @ %d levels, %s asks @ %d levels",
		b.Percent, b.BidQuantity, b.BidLevels, b.AskQuantity, b.AskLevels)
}
