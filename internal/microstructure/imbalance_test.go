package microstructure

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateOBI(t *testing.T) {
	tests := []struct {
		name  string
		depth int
		want  string
	}{
		{"top_of_book", 1, "0.3333"},
		{"full_book", 5, "0.0000"},
		{"all_levels", 0, "0.0000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CalculateOBI(createReferenceBook(), tt.depth)
			require.NoError(t, err)
			assert.Equal(t, tt.want, FormatNull(got, 4))
		})
	}
}

func TestCalculateOBI_ZeroQuantity(t *testing.T) {
	snap := OrderBookSnapshot{
		Bids: levels([2]string{"100", "0"}),
		Asks: levels([2]string{"101", "0"}),
	}
	got, err := CalculateOBI(snap, 5)
	require.NoError(t, err)
	assert.False(t, got.Valid)
}

func TestCalculateWOBI(t *testing.T) {
	snap := createReferenceBook()

	// With no decay every level weighs 1 and WOBI equals full-book OBI
	flat, err := CalculateWOBI(snap, decimal.Zero, 0)
	require.NoError(t, err)
	assertDecimal(t, "0", flat)

	// Near levels dominate: 2 bid vs 1 ask at the touch
	weighted, err := CalculateWOBI(snap, decimal.NewFromInt(50), 0)
	require.NoError(t, err)
	require.True(t, weighted.Valid)
	assert.True(t, weighted.Decimal.IsPositive())
	assert.True(t, weighted.Decimal.LessThanOrEqual(one))

	// Stronger decay pushes WOBI towards top-of-book OBI
	steep, err := CalculateWOBI(snap, decimal.NewFromInt(1000), 0)
	require.NoError(t, err)
	require.True(t, steep.Valid)
	assert.True(t, steep.Decimal.GreaterThan(weighted.Decimal))
}

func TestCalculateWOBI_Undefined(t *testing.T) {
	snap := createReferenceBook()
	snap.Asks = nil

	got, err := CalculateWOBI(snap, decimal.NewFromInt(50), 0)
	require.NoError(t, err)
	assert.False(t, got.Valid)

	_, err = CalculateWOBI(OrderBookSnapshot{
		Bids: levels([2]string{"105", "1"}),
		Asks: levels([2]string{"101", "1"}),
	}, decimal.NewFromInt(50), 0)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestCalculateWOBI_RejectsNegativeDecay(t *testing.T) {
	tests := []struct {
		name string
		k    string
		ok   bool
	}{
		{"zero_is_plain_obi", "0", true},
		{"positive", "50", true},
		{"negative", "-1", false},
		{"tiny_negative", "-0.0001", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CalculateWOBI(createReferenceBook(), dec(tt.k), 0)
			if tt.ok {
				require.NoError(t, err)
				assert.True(t, got.Valid)
				return
			}
			var inputErr *InputError
			require.True(t, errors.As(err, &inputErr))
			assert.Equal(t, "k", inputErr.Field)
			assert.ErrorIs(t, err, ErrInvalidInput)
			assert.False(t, got.Valid)
		})
	}
}

func TestProximityWeight(t *testing.T) {
	mid := dec("100")
	k := decimal.NewFromInt(50)

	assert.True(t, proximityWeight(mid, mid, k).Equal(one))

	near := proximityWeight(dec("100.5"), mid, k)
	far := proximityWeight(dec("101.5"), mid, k)
	assert.True(t, near.GreaterThan(far))
	assert.True(t, far.IsPositive())

	// Beyond the decay cutoff the weight is zero
	assert.True(t, proximityWeight(dec("200"), mid, k).IsZero())
}
