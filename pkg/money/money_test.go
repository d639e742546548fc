package money

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDivRoundHalfAwayFromZero(t *testing.T) {
	cases := []struct {
		num, den, want int64
	}{
		{5, 2, 3},
		{-5, 2, -3},
		{4, 2, 2},
		{7, 3, 2},
		{-7, 3, -2},
		{1, 3, 0},
		{15, 10, 2},
		{25, 10, 3},
		{0, 7, 0},
		{5, -2, -3},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, DivRound(tc.num, tc.den), "%d/%d", tc.num, tc.den)
	}
}

func TestApplyBasisPoints(t *testing.T) {
	assert.Equal(t, int64(4000), ApplyBasisPoints(20000, 2000))
	assert.Equal(t, int64(1), ApplyBasisPoints(5, 1000))  // 0.5 rounds up
	assert.Equal(t, int64(0), ApplyBasisPoints(4, 1000))  // 0.4 rounds down
	assert.Equal(t, int64(-1), ApplyBasisPoints(-5, 1000)) // away from zero
}

func TestApplyBasisPointsDoesNotOverflow(t *testing.T) {
	got := ApplyBasisPoints(math.MaxInt64/2, 10000)
	assert.Equal(t, int64(math.MaxInt64/2), got)
}

func TestExtractInclusive(t *testing.T) {
	// 12000 gross at 20% contains 2000 tax.
	assert.Equal(t, int64(2000), ExtractInclusive(12000, 2000))
	// 20000 gross at 20% contains 3333.33 tax.
	assert.Equal(t, int64(3333), ExtractInclusive(20000, 2000))
	assert.Equal(t, int64(0), ExtractInclusive(20000, 0))
}

func TestLineAmount(t *testing.T) {
	got, err := LineAmount(decimal.NewFromInt(2), 10000)
	require.NoError(t, err)
	assert.Equal(t, int64(20000), got)

	got, err = LineAmount(decimal.RequireFromString("1.5"), 333)
	require.NoError(t, err)
	assert.Equal(t, int64(500), got) // 499.5

	_, err = LineAmount(decimal.NewFromInt(-1), 100)
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = LineAmount(decimal.NewFromInt(math.MaxInt64), 2)
	assert.ErrorIs(t, err, ErrAmountOverflow)
}

func TestParseQuantity(t *testing.T) {
	qty, err := ParseQuantity(" 2.25 ")
	require.NoError(t, err)
	assert.True(t, qty.Equal(decimal.RequireFromString("2.25")))

	_, err = ParseQuantity("-1")
	assert.ErrorIs(t, err, ErrInvalidQuantity)
	_, err = ParseQuantity("abc")
	assert.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestNormalizeCurrency(t *testing.T) {
	got, err := NormalizeCurrency(" usd ")
	require.NoError(t, err)
	assert.Equal(t, "USD", got)

	_, err = NormalizeCurrency("")
	assert.ErrorIs(t, err, ErrInvalidCurrency)
	_, err = NormalizeCurrency("ZZZ")
	assert.ErrorIs(t, err, ErrInvalidCurrency)
	_, err = NormalizeCurrency("DOLLAR")
	assert.ErrorIs(t, err, ErrInvalidCurrency)
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "1,234.56 USD", Format(123456, "USD"))
	assert.Equal(t, "0.05 EUR", Format(5, "eur"))
	assert.Equal(t, "-1,000.00 USD", Format(-100000, "USD"))
	assert.Equal(t, "1,500 JPY", Format(1500, "JPY"))
}
