// Package execution plans order execution against one side of a book: expected slippage,
// order type, clip splitting, pre-trade risk limits and budget-constrained size.
package execution

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/sawpanic/bookscope/internal/microstructure"
)

var hundred = decimal.NewFromInt(100)

// SlippageResult is the outcome of walking a book side for a target quantity.
// An insufficiently deep book is a partial fill, not an error.
type SlippageResult struct {
	AveragePrice      decimal.NullDecimal `json:"average_price"`
	SlippagePercent   decimal.NullDecimal `json:"slippage_percent"` // signed; negative when walking bids
	FilledQuantity    decimal.Decimal     `json:"filled_quantity"`
	RequestedQuantity decimal.Decimal     `json:"requested_quantity"`
	Cost              decimal.Decimal     `json:"cost"`
	LevelsConsumed    int                 `json:"levels_consumed"`
	FullyFilled       bool                `json:"fully_filled"`
}

// CalculateSlippage walks levels in priority order until qty is filled or the side is exhausted.
// qty == 0 prices at the touch with zero slippage. An empty side leaves price and slippage undefined.
func CalculateSlippage(levels []microstructure.PriceLevel, qty decimal.Decimal) (SlippageResult, error) {
	if qty.IsNegative() {
		return SlippageResult{}, invalid("quantity", "negative quantity %s", qty)
	}
	book, err := microstructure.NormalizeLevels(levels)
	if err != nil {
		return SlippageResult{}, err
	}
	return walk(book, qty), nil
}

func walk(levels []microstructure.PriceLevel, qty decimal.Decimal) SlippageResult {
	result := SlippageResult{
		FilledQuantity:    decimal.Zero,
		RequestedQuantity: qty,
		Cost:              decimal.Zero,
	}
	if len(levels) == 0 {
		result.FullyFilled = qty.IsZero()
		return result
	}

	best := levels[0].Price
	if qty.IsZero() {
		result.AveragePrice = decimal.NewNullDecimal(best)
		result.SlippagePercent = decimal.NewNullDecimal(decimal.Zero)
		result.FullyFilled = true
		return result
	}

	remaining := qty
	for _, lvl := range levels {
		if !remaining.IsPositive() {
			break
		}
		take := decimal.Min(remaining, lvl.Quantity)
		if !take.IsPositive() {
			continue
		}
		result.Cost = result.Cost.Add(take.Mul(lvl.Price))
		result.FilledQuantity = result.FilledQuantity.Add(take)
		result.LevelsConsumed++
		remaining = remaining.Sub(take)
	}
	result.FullyFilled = !remaining.IsPositive()

	if result.FilledQuantity.IsZero() {
		return result
	}
	avg := result.Cost.Div(result.FilledQuantity)
	result.AveragePrice = decimal.NewNullDecimal(avg)
	if !best.IsZero() {
		result.SlippagePercent = decimal.NewNullDecimal(avg.Sub(best).Div(best).Mul(hundred))
	}
	return result
}

func invalid(field, format string, args ...interface{}) error {
	return &microstructure.InputError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
