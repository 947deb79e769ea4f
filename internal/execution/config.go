package execution

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Config holds execution planning defaults
type Config struct {
	OrderTypeThresholdPercent decimal.Decimal `yaml:"order_type_threshold_percent"`
	MaxSlippagePercent        decimal.Decimal `yaml:"max_slippage_percent"`
	Risk                      RiskLimits      `yaml:"risk"`
}

// DefaultConfig recommends market orders inside a 0.1% spread and splits at 0.5% slippage
func DefaultConfig() Config {
	return Config{
		OrderTypeThresholdPercent: decimal.RequireFromString("0.1"),
		MaxSlippagePercent:        decimal.RequireFromString("0.5"),
	}
}

// Validate requires non-negative percentage thresholds and a valid risk section
func (c Config) Validate() error {
	if c.OrderTypeThresholdPercent.IsNegative() {
		return fmt.Errorf("order type threshold must be >= 0")
	}
	if c.MaxSlippagePercent.IsNegative() {
		return fmt.Errorf("max slippage must be >= 0")
	}
	return c.Risk.Validate()
}
