package execution

import (
	"github.com/shopspring/decimal"

	"github.com/sawpanic/bookscope/internal/microstructure"
)

// QuantityScale is the number of decimal places a partially consumed level is floored to
const QuantityScale int32 = 8

// BuyableResult is the largest order a budget affords against one book side
type BuyableResult struct {
	Budget         decimal.Decimal     `json:"budget"`
	Quantity       decimal.Decimal     `json:"quantity"`
	Cost           decimal.Decimal     `json:"cost"`
	Remaining      decimal.Decimal     `json:"remaining"`
	AveragePrice   decimal.NullDecimal `json:"average_price"`
	LevelsConsumed int                 `json:"levels_consumed"`
	BookExhausted  bool                `json:"book_exhausted"` // budget outlasted the side
}

// MaxBuyableQty walks ask levels cumulatively and returns the largest quantity whose total
// cost stays within budget. The last level may be consumed partially.
func MaxBuyableQty(levels []microstructure.PriceLevel, budget decimal.Decimal) (BuyableResult, error) {
	if budget.IsNegative() {
		return BuyableResult{}, invalid("budget", "negative budget %s", budget)
	}
	book, err := microstructure.NormalizeAsks(levels)
	if err != nil {
		return BuyableResult{}, err
	}

	result := BuyableResult{
		Budget:        budget,
		Quantity:      decimal.Zero,
		Cost:          decimal.Zero,
		BookExhausted: true,
	}

	for _, lvl := range book {
		if !lvl.Quantity.IsPositive() {
			continue
		}
		levelCost := lvl.Price.Mul(lvl.Quantity)
		left := budget.Sub(result.Cost)

		if levelCost.LessThanOrEqual(left) {
			result.Quantity = result.Quantity.Add(lvl.Quantity)
			result.Cost = result.Cost.Add(levelCost)
			result.LevelsConsumed++
			continue
		}

		result.BookExhausted = false
		partial, _ := left.QuoRem(lvl.Price, QuantityScale)
		if partial.IsPositive() {
			result.Quantity = result.Quantity.Add(partial)
			result.Cost = result.Cost.Add(partial.Mul(lvl.Price))
			result.LevelsConsumed++
		}
		break
	}

	result.Remaining = budget.Sub(result.Cost)
	if result.Quantity.IsPositive() {
		result.AveragePrice = decimal.NewNullDecimal(result.Cost.Div(result.Quantity))
	}
	return result, nil
}
