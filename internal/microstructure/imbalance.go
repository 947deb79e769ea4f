package microstructure

import (
	"github.com/shopspring/decimal"
)

// Past this exponent exp(-x) is below the 16-digit division precision.
var maxDecayExponent = decimal.NewFromInt(40)

const expPrecision = 16

// CalculateOBI returns the order book imbalance over the first depth levels per side.
// Undefined when both bounded sides hold zero quantity.
func CalculateOBI(snap OrderBookSnapshot, depth int) (decimal.NullDecimal, error) {
	norm, err := Normalize(snap)
	if err != nil {
		return undefined, err
	}
	return obi(norm, depth), nil
}

func obi(snap OrderBookSnapshot, depth int) decimal.NullDecimal {
	return imbalance(sumQuantity(snap.Bids, depth), sumQuantity(snap.Asks, depth))
}

// CalculateWOBI returns the proximity-weighted imbalance. Each level's quantity is scaled by
// exp(-k * |price - mid| / mid). depth <= 0 weighs every level.
func CalculateWOBI(snap OrderBookSnapshot, k decimal.Decimal, depth int) (decimal.NullDecimal, error) {
	if k.IsNegative() {
		return undefined, inputErrorf("k", "negative decay %s", k)
	}
	norm, err := Normalize(snap)
	if err != nil {
		return undefined, err
	}
	return wobi(norm, k, depth), nil
}

func wobi(snap OrderBookSnapshot, k decimal.Decimal, depth int) decimal.NullDecimal {
	mid := midPrice(snap)
	if !mid.Valid || mid.Decimal.IsZero() {
		return undefined
	}

	bid := weightedSum(limitLevels(snap.Bids, depth), mid.Decimal, k)
	ask := weightedSum(limitLevels(snap.Asks, depth), mid.Decimal, k)
	return imbalance(bid, ask)
}

func weightedSum(levels []PriceLevel, mid, k decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, lvl := range levels {
		if lvl.Quantity.IsZero() {
			continue
		}
		total = total.Add(lvl.Quantity.Mul(proximityWeight(lvl.Price, mid, k)))
	}
	return total
}

// proximityWeight is exp(-k * |price - mid| / mid), in (0, 1]
func proximityWeight(price, mid, k decimal.Decimal) decimal.Decimal {
	x := k.Mul(price.Sub(mid).Abs()).Div(mid)
	if !x.IsPositive() {
		return one
	}
	if x.GreaterThan(maxDecayExponent) {
		return decimal.Zero
	}
	w, err := x.Neg().ExpTaylor(expPrecision)
	if err != nil {
		return decimal.Zero
	}
	return w
}
