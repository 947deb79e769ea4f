package microstructure

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var tapeStart = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

func trade(price, qty string, offset time.Duration, takerBuy bool) Trade {
	return Trade{
		Price:        dec(price),
		Quantity:     dec(qty),
		Timestamp:    tapeStart.Add(offset),
		TakerIsBuyer: takerBuy,
	}
}

// createTape spaces count trades every step starting at from
func createTape(from, step time.Duration, count int) []Trade {
	out := make([]Trade, 0, count)
	for i := 0; i < count; i++ {
		out = append(out, trade("100", "1", from+time.Duration(i)*step, i%2 == 0))
	}
	return out
}

func mustVWAP(t *testing.T, trades []Trade) decimal.NullDecimal {
	t.Helper()
	got, err := CalculateVWAP(trades)
	require.NoError(t, err)
	return got
}

func mustDrift(t *testing.T, trades []Trade, window int) decimal.NullDecimal {
	t.Helper()
	got, err := CalculateVWAPDrift(trades, window)
	require.NoError(t, err)
	return got
}

func mustFlow(t *testing.T, trades []Trade, window int, threshold decimal.Decimal) TradeFlow {
	t.Helper()
	got, err := ClassifyTradeFlow(trades, window, threshold)
	require.NoError(t, err)
	return got
}

func mustBurst(t *testing.T, trades []Trade, cfg BurstConfig) BurstResult {
	t.Helper()
	got, err := DetectTradeBurst(trades, cfg)
	require.NoError(t, err)
	return got
}

func TestCalculateVWAP(t *testing.T) {
	t.Run("single_trade_is_its_price", func(t *testing.T) {
		assertDecimal(t, "101.5", mustVWAP(t, []Trade{trade("101.5", "2", 0, true)}))
	})

	t.Run("volume_weighted", func(t *testing.T) {
		trades := []Trade{
			trade("100", "1", 0, true),
			trade("103", "2", time.Second, false),
		}
		assertDecimal(t, "102", mustVWAP(t, trades))
	})

	t.Run("empty_is_undefined", func(t *testing.T) {
		assert.False(t, mustVWAP(t, nil).Valid)
	})

	t.Run("zero_volume_is_undefined", func(t *testing.T) {
		assert.False(t, mustVWAP(t, []Trade{trade("100", "0", 0, true)}).Valid)
	})
}

func TestCalculateVWAPDrift(t *testing.T) {
	trades := []Trade{
		trade("100", "1", 0, true),
		trade("100", "1", time.Second, true),
		trade("101", "1", 2*time.Second, true),
		trade("101", "1", 3*time.Second, true),
	}

	assertDecimal(t, "1", mustDrift(t, trades, 2))
	assert.False(t, mustDrift(t, trades[:3], 2).Valid, "needs 2*window trades")
	assert.False(t, mustDrift(t, trades, 0).Valid)

	falling := []Trade{
		trade("200", "1", 0, true),
		trade("190", "1", time.Second, true),
	}
	assertDecimal(t, "-5", mustDrift(t, falling, 1))
}

func TestClassifyTradeFlow(t *testing.T) {
	threshold := dec("0.2")

	tests := []struct {
		name   string
		trades []Trade
		signal FlowSignal
		net    string
	}{
		{
			name: "bullish",
			trades: []Trade{
				trade("100", "3", 0, true),
				trade("100", "1", time.Second, false),
			},
			signal: FlowBullish,
			net:    "0.5",
		},
		{
			name: "bearish",
			trades: []Trade{
				trade("100", "1", 0, true),
				trade("100", "3", time.Second, false),
			},
			signal: FlowBearish,
			net:    "-0.5",
		},
		{
			name: "balanced",
			trades: []Trade{
				trade("100", "2", 0, true),
				trade("100", "2", time.Second, false),
			},
			signal: FlowNeutral,
			net:    "0",
		},
		{
			name: "threshold_is_exclusive",
			trades: []Trade{
				trade("100", "6", 0, true),
				trade("100", "4", time.Second, false),
			},
			signal: FlowNeutral,
			net:    "0.2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flow := mustFlow(t, tt.trades, 0, threshold)
			assert.Equal(t, tt.signal, flow.Signal)
			assertDecimal(t, tt.net, flow.NetRatio)
			assert.Equal(t, len(tt.trades), flow.TradeCount)
		})
	}
}

func TestClassifyTradeFlow_Window(t *testing.T) {
	trades := []Trade{
		trade("100", "10", 0, false),
		trade("100", "1", time.Second, true),
		trade("100", "1", 2*time.Second, true),
	}

	flow := mustFlow(t, trades, 2, dec("0.2"))
	assert.Equal(t, FlowBullish, flow.Signal)
	assert.True(t, flow.SellVolume.IsZero())
	assert.Equal(t, 2, flow.TradeCount)

	empty := mustFlow(t, nil, 100, dec("0.2"))
	assert.Equal(t, FlowNeutral, empty.Signal)
	assert.False(t, empty.NetRatio.Valid)
}

func TestDetectTradeBurst(t *testing.T) {
	cfg := DefaultBurstConfig()

	t.Run("spike_detected", func(t *testing.T) {
		// baseline: one trade every 5s over the minute, then 10 trades in the last 10s
		trades := append(createTape(0, 5*time.Second, 12), createTape(61*time.Second, time.Second, 10)...)

		burst := mustBurst(t, trades, cfg)
		assert.True(t, burst.Detected)
		assert.False(t, burst.InsufficientData)
		assert.Equal(t, 10, burst.ShortCount)
		assert.Equal(t, 11, burst.BaselineCount)
		assert.True(t, burst.ShortRate.Equal(decimal.NewFromInt(1)))
		require.True(t, burst.RateRatio.Valid)
		assert.True(t, burst.RateRatio.Decimal.GreaterThan(cfg.Multiple))
	})

	t.Run("steady_rate", func(t *testing.T) {
		trades := createTape(0, 5*time.Second, 15)

		burst := mustBurst(t, trades, cfg)
		assert.False(t, burst.Detected)
		assert.False(t, burst.InsufficientData)
		assert.Equal(t, 2, burst.ShortCount)
		assert.Equal(t, 12, burst.BaselineCount)
		assertDecimal(t, "1", burst.RateRatio)
	})

	t.Run("insufficient_baseline", func(t *testing.T) {
		trades := append(createTape(30*time.Second, 5*time.Second, 3), createTape(61*time.Second, 100*time.Millisecond, 50)...)

		burst := mustBurst(t, trades, cfg)
		assert.False(t, burst.Detected)
		assert.True(t, burst.InsufficientData)
		assert.False(t, burst.BaselineRate.Valid)
		assert.False(t, burst.RateRatio.Valid)
		assert.Equal(t, 3, burst.BaselineCount)
	})

	t.Run("empty_tape", func(t *testing.T) {
		burst := mustBurst(t, nil, cfg)
		assert.False(t, burst.Detected)
		assert.True(t, burst.InsufficientData)
	})
}

func TestTradeFunctions_RejectMalformedTape(t *testing.T) {
	negativeQty := []Trade{
		trade("100", "2", 0, true),
		trade("100", "-1", time.Second, false),
	}
	negativePrice := []Trade{trade("-100", "1", 0, true)}
	outOfOrder := []Trade{
		trade("100", "1", time.Second, true),
		trade("100", "1", 0, false),
	}

	calls := map[string]func([]Trade) error{
		"vwap": func(tr []Trade) error {
			_, err := CalculateVWAP(tr)
			return err
		},
		"vwap_drift": func(tr []Trade) error {
			_, err := CalculateVWAPDrift(tr, 1)
			return err
		},
		"trade_flow": func(tr []Trade) error {
			_, err := ClassifyTradeFlow(tr, 0, dec("0.2"))
			return err
		},
		"trade_burst": func(tr []Trade) error {
			_, err := DetectTradeBurst(tr, DefaultBurstConfig())
			return err
		},
	}

	tests := []struct {
		name   string
		trades []Trade
		field  string
	}{
		{"negative_quantity", negativeQty, "trades[1].quantity"},
		{"negative_price", negativePrice, "trades[0].price"},
		{"out_of_order", outOfOrder, "trades[1].timestamp"},
	}

	for _, tt := range tests {
		for name, call := range calls {
			t.Run(name+"/"+tt.name, func(t *testing.T) {
				err := call(tt.trades)
				var inputErr *InputError
				require.True(t, errors.As(err, &inputErr), "got %v", err)
				assert.Equal(t, tt.field, inputErr.Field)
				assert.ErrorIs(t, err, ErrInvalidInput)
			})
		}
	}
}

func TestClassifyTradeFlow_NegativeQuantityNeverClassified(t *testing.T) {
	trades := []Trade{
		trade("100", "2", 0, true),
		trade("100", "-1", time.Second, false),
	}

	flow, err := ClassifyTradeFlow(trades, 0, dec("0.2"))
	require.ErrorIs(t, err, ErrInvalidInput)
	assert.False(t, flow.NetRatio.Valid)
	assert.Empty(t, flow.Signal)

	_, err = ClassifyTradeFlow(nil, 0, dec("-0.1"))
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestBurstConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultBurstConfig().Validate())

	bad := DefaultBurstConfig()
	bad.Multiple = dec("0.5")
	assert.Error(t, bad.Validate())

	bad = DefaultBurstConfig()
	bad.ShortWindow = 0
	assert.Error(t, bad.Validate())
}
