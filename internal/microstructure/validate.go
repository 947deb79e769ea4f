package microstructure

import (
	"fmt"

	"github.com/shopspring/decimal"
)

type side int

const (
	sideBid side = iota
	sideAsk
)

func (s side) String() string {
	if s == sideBid {
		return "bids"
	}
	return "asks"
}

// Normalize validates a snapshot and returns a copy with adjacent duplicate prices coalesced.
// The input is left untouched.
func Normalize(snap OrderBookSnapshot) (OrderBookSnapshot, error) {
	bids, err := normalizeSide(snap.Bids, sideBid)
	if err != nil {
		return OrderBookSnapshot{}, err
	}
	asks, err := normalizeSide(snap.Asks, sideAsk)
	if err != nil {
		return OrderBookSnapshot{}, err
	}

	if len(bids) > 0 && len(asks) > 0 && bids[0].Price.GreaterThan(asks[0].Price) {
		return OrderBookSnapshot{}, inputErrorf("book",
			"crossed book: best bid %s > best ask %s", bids[0].Price, asks[0].Price)
	}

	out := snap
	out.Bids = bids
	out.Asks = asks
	return out, nil
}

// Validate checks a snapshot without returning the normalized copy
func Validate(snap OrderBookSnapshot) error {
	_, err := Normalize(snap)
	return err
}

// ValidateLevels checks one side in execution-priority order: strictly descending for bids,
// strictly ascending for asks. Direction is inferred from the first two distinct prices.
func ValidateLevels(levels []PriceLevel) error {
	_, err := NormalizeLevels(levels)
	return err
}

// NormalizeLevels is ValidateLevels returning the coalesced copy
func NormalizeLevels(levels []PriceLevel) ([]PriceLevel, error) {
	s := sideAsk
	for i := 1; i < len(levels); i++ {
		if cmp := levels[i].Price.Cmp(levels[0].Price); cmp != 0 {
			if cmp < 0 {
				s = sideBid
			}
			break
		}
	}
	return normalizeSide(levels, s)
}

// NormalizeAsks requires strictly ascending prices and returns the coalesced copy
func NormalizeAsks(levels []PriceLevel) ([]PriceLevel, error) {
	return normalizeSide(levels, sideAsk)
}

// NormalizeBids requires strictly descending prices and returns the coalesced copy
func NormalizeBids(levels []PriceLevel) ([]PriceLevel, error) {
	return normalizeSide(levels, sideBid)
}

func normalizeSide(levels []PriceLevel, s side) ([]PriceLevel, error) {
	if len(levels) == 0 {
		return nil, nil
	}

	out := make([]PriceLevel, 0, len(levels))
	for i, lvl := range levels {
		if lvl.Price.IsNegative() {
			return nil, inputErrorf(fmt.Sprintf("%s[%d].price", s, i), "negative price %s", lvl.Price)
		}
		if lvl.Quantity.IsNegative() {
			return nil, inputErrorf(fmt.Sprintf("%s[%d].quantity", s, i), "negative quantity %s", lvl.Quantity)
		}

		if n := len(out); n > 0 {
			prev := out[n-1]
			cmp := lvl.Price.Cmp(prev.Price)
			if cmp == 0 {
				out[n-1].Quantity = prev.Quantity.Add(lvl.Quantity)
				continue
			}
			if (s == sideBid && cmp > 0) || (s == sideAsk && cmp < 0) {
				return nil, inputErrorf(fmt.Sprintf("%s[%d].price", s, i),
					"%s not sorted in priority order (%s after %s)", s, lvl.Price, prev.Price)
			}
		}
		out = append(out, lvl)
	}
	return out, nil
}

// ValidateTrades checks trade values and time ordering (oldest first)
func ValidateTrades(trades []Trade) error {
	for i, t := range trades {
		if t.Price.IsNegative() {
			return inputErrorf(fmt.Sprintf("trades[%d].price", i), "negative price %s", t.Price)
		}
		if t.Quantity.IsNegative() {
			return inputErrorf(fmt.Sprintf("trades[%d].quantity", i), "negative quantity %s", t.Quantity)
		}
		if i > 0 && t.Timestamp.Before(trades[i-1].Timestamp) {
			return inputErrorf(fmt.Sprintf("trades[%d].timestamp", i),
				"trades not time-ordered (%s before %s)", t.Timestamp, trades[i-1].Timestamp)
		}
	}
	return nil
}

func defined(d decimal.Decimal) decimal.NullDecimal {
	return decimal.NewNullDecimal(d)
}

var undefined = decimal.NullDecimal{}

var (
	one     = decimal.NewFromInt(1)
	two     = decimal.NewFromInt(2)
	hundred = decimal.NewFromInt(100)
)

func clamp(d, lo, hi decimal.Decimal) decimal.Decimal {
	return decimal.Max(lo, decimal.Min(hi, d))
}

func sumQuantity(levels []PriceLevel, depth int) decimal.Decimal {
	total := decimal.Zero
	for _, lvl := range limitLevels(levels, depth) {
		total = total.Add(lvl.Quantity)
	}
	return total
}

func limitLevels(levels []PriceLevel, depth int) []PriceLevel {
	if depth <= 0 || depth >= len(levels) {
		return levels
	}
	return levels[:depth]
}

func imbalance(bid, ask decimal.Decimal) decimal.NullDecimal {
	total := bid.Add(ask)
	if total.IsZero() {
		return undefined
	}
	return defined(bid.Sub(ask).Div(total))
}
