package execution

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Risk constraint names reported in violations
const (
	ConstraintMinQuantity = "min_quantity"
	ConstraintMaxQuantity = "max_quantity"
	ConstraintMinNotional = "min_notional"
	ConstraintMaxNotional = "max_notional"
	ConstraintMaxLeverage = "max_leverage"
)

// RiskLimits are pre-trade limits; a zero limit is unset
type RiskLimits struct {
	MinQuantity decimal.Decimal `yaml:"min_quantity" json:"min_quantity"`
	MaxQuantity decimal.Decimal `yaml:"max_quantity" json:"max_quantity"`
	MinNotional decimal.Decimal `yaml:"min_notional" json:"min_notional"`
	MaxNotional decimal.Decimal `yaml:"max_notional" json:"max_notional"`
	MaxLeverage decimal.Decimal `yaml:"max_leverage" json:"max_leverage"`
}

// Validate rejects negative limits and inverted ranges
func (l RiskLimits) Validate() error {
	for name, v := range map[string]decimal.Decimal{
		ConstraintMinQuantity: l.MinQuantity,
		ConstraintMaxQuantity: l.MaxQuantity,
		ConstraintMinNotional: l.MinNotional,
		ConstraintMaxNotional: l.MaxNotional,
		ConstraintMaxLeverage: l.MaxLeverage,
	} {
		if v.IsNegative() {
			return fmt.Errorf("risk limit %s must be >= 0", name)
		}
	}
	if l.MaxQuantity.IsPositive() && l.MinQuantity.GreaterThan(l.MaxQuantity) {
		return fmt.Errorf("risk limit min_quantity exceeds max_quantity")
	}
	if l.MaxNotional.IsPositive() && l.MinNotional.GreaterThan(l.MaxNotional) {
		return fmt.Errorf("risk limit min_notional exceeds max_notional")
	}
	return nil
}

// RiskCheckInput describes a prospective order
type RiskCheckInput struct {
	Symbol   string          `json:"symbol,omitempty"`
	Quantity decimal.Decimal `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	Leverage decimal.Decimal `json:"leverage"` // zero for spot
}

// Violation is one breached limit
type Violation struct {
	Constraint string          `json:"constraint"`
	Limit      decimal.Decimal `json:"limit"`
	Actual     decimal.Decimal `json:"actual"`
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: %s breaches limit %s", v.Constraint, v.Actual, v.Limit)
}

// RiskVerdict lists every violated limit; Passed is true when there are none
type RiskVerdict struct {
	Passed     bool            `json:"passed"`
	Notional   decimal.Decimal `json:"notional"`
	Violations []Violation     `json:"violations,omitempty"`
}

// CheckRisk evaluates an order against limits. Breaches are reported in the verdict;
// only malformed input or limits return an error.
func CheckRisk(in RiskCheckInput, limits RiskLimits) (RiskVerdict, error) {
	if in.Quantity.IsNegative() {
		return RiskVerdict{}, invalid("quantity", "negative quantity %s", in.Quantity)
	}
	if in.Price.IsNegative() {
		return RiskVerdict{}, invalid("price", "negative price %s", in.Price)
	}
	if in.Leverage.IsNegative() {
		return RiskVerdict{}, invalid("leverage", "negative leverage %s", in.Leverage)
	}
	if err := limits.Validate(); err != nil {
		return RiskVerdict{}, err
	}

	notional := in.Quantity.Mul(in.Price)
	verdict := RiskVerdict{Notional: notional}

	below := func(name string, limit, actual decimal.Decimal) {
		if limit.IsPositive() && actual.LessThan(limit) {
			verdict.Violations = append(verdict.Violations, Violation{Constraint: name, Limit: limit, Actual: actual})
		}
	}
	above := func(name string, limit, actual decimal.Decimal) {
		if limit.IsPositive() && actual.GreaterThan(limit) {
			verdict.Violations = append(verdict.Violations, Violation{Constraint: name, Limit: limit, Actual: actual})
		}
	}

	below(ConstraintMinQuantity, limits.MinQuantity, in.Quantity)
	above(ConstraintMaxQuantity, limits.MaxQuantity, in.Quantity)
	below(ConstraintMinNotional, limits.MinNotional, notional)
	above(ConstraintMaxNotional, limits.MaxNotional, notional)
	above(ConstraintMaxLeverage, limits.MaxLeverage, in.Leverage)

	verdict.Passed = len(verdict.Violations) == 0
	return verdict, nil
}
