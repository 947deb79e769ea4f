package execution

import (
	"github.com/shopspring/decimal"

	"github.com/sawpanic/bookscope/internal/microstructure"
)

// Clip is one child order of a split plan
type Clip struct {
	Index           int             `json:"index"`
	Quantity        decimal.Decimal `json:"quantity"`
	StartPrice      decimal.Decimal `json:"start_price"`
	AveragePrice    decimal.Decimal `json:"average_price"`
	SlippagePercent decimal.Decimal `json:"slippage_percent"`
	Levels          int             `json:"levels"`
}

// SplitPlan partitions a parent order into sequential clips
type SplitPlan struct {
	Requested          decimal.Decimal `json:"requested"`
	Planned            decimal.Decimal `json:"planned"`
	MaxSlippagePercent decimal.Decimal `json:"max_slippage_percent"`
	Clips              []Clip          `json:"clips"`
	Partial            bool            `json:"partial"` // book could not absorb the full quantity
}

// SplitOrder greedily sizes clips so each one, filled alone against the book left by the
// clips before it, stays within maxSlippagePercent of its own starting price. Clips sum to
// total, or to everything the side holds when Partial is set.
func SplitOrder(total decimal.Decimal, levels []microstructure.PriceLevel, maxSlippagePercent decimal.Decimal) (SplitPlan, error) {
	if total.IsNegative() {
		return SplitPlan{}, invalid("quantity", "negative quantity %s", total)
	}
	if maxSlippagePercent.IsNegative() {
		return SplitPlan{}, invalid("max_slippage", "negative max slippage %s", maxSlippagePercent)
	}
	book, err := microstructure.NormalizeLevels(levels)
	if err != nil {
		return SplitPlan{}, err
	}

	plan := SplitPlan{
		Requested:          total,
		Planned:            decimal.Zero,
		MaxSlippagePercent: maxSlippagePercent,
	}

	book = consume(book, decimal.Zero)
	remaining := total
	for remaining.IsPositive() && len(book) > 0 {
		size := clipSize(book, remaining, maxSlippagePercent)
		if !size.IsPositive() {
			break
		}

		fill := walk(book, size)
		clip := Clip{
			Index:           len(plan.Clips),
			Quantity:        size,
			StartPrice:      book[0].Price,
			AveragePrice:    fill.AveragePrice.Decimal,
			SlippagePercent: decimal.Zero,
			Levels:          fill.LevelsConsumed,
		}
		if fill.SlippagePercent.Valid {
			clip.SlippagePercent = fill.SlippagePercent.Decimal
		}
		plan.Clips = append(plan.Clips, clip)

		plan.Planned = plan.Planned.Add(size)
		remaining = remaining.Sub(size)
		book = consume(book, size)
	}

	plan.Partial = remaining.IsPositive()
	return plan, nil
}

// clipSize finds the largest quantity whose average price stays within max% of book[0].
// With limit D and distance d_i from the start price, that holds while Σ x_i·(D − d_i) >= 0,
// so levels inside D are taken whole and the first level outside D absorbs the accumulated slack.
func clipSize(book []microstructure.PriceLevel, remaining, maxSlippagePercent decimal.Decimal) decimal.Decimal {
	start := book[0].Price
	limit := maxSlippagePercent.Mul(start).Div(hundred)

	size := decimal.Zero
	slack := decimal.Zero
	for _, lvl := range book {
		want := decimal.Min(lvl.Quantity, remaining.Sub(size))
		if !want.IsPositive() {
			break
		}

		dist := lvl.Price.Sub(start).Abs()
		if dist.LessThanOrEqual(limit) {
			size = size.Add(want)
			slack = slack.Add(want.Mul(limit.Sub(dist)))
			continue
		}

		excess := dist.Sub(limit)
		fit, _ := slack.QuoRem(excess, QuantityScale)
		if fit.LessThan(want) {
			size = size.Add(fit)
			break
		}
		size = size.Add(want)
		slack = slack.Sub(want.Mul(excess))
	}
	return size
}

// consume returns a copy of the book with qty removed from the front and empty levels dropped
func consume(book []microstructure.PriceLevel, qty decimal.Decimal) []microstructure.PriceLevel {
	out := make([]microstructure.PriceLevel, 0, len(book))
	for _, lvl := range book {
		if qty.IsPositive() {
			take := decimal.Min(qty, lvl.Quantity)
			qty = qty.Sub(take)
			lvl.Quantity = lvl.Quantity.Sub(take)
		}
		if lvl.Quantity.IsPositive() {
			out = append(out, lvl)
		}
	}
	return out
}
