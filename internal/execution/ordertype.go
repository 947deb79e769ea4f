package execution

import (
	"github.com/shopspring/decimal"
)

// OrderType is the recommended way to enter a position
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

// RecommendOrderType returns market when the spread is at or inside thresholdPercent.
// An undefined spread is treated as wide.
func RecommendOrderType(spreadPercent decimal.NullDecimal, thresholdPercent decimal.Decimal) OrderType {
	if spreadPercent.Valid && spreadPercent.Decimal.LessThanOrEqual(thresholdPercent) {
		return OrderTypeMarket
	}
	return OrderTypeLimit
}
