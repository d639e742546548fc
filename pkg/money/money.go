// Package money holds integer minor-unit arithmetic shared by every ledger component.
//
// Amounts are int64 minor units. Rates are basis points (10000 = 100%).
// Rounding is half away from zero and is applied once per line.
package money

import (
	"errors"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

// BasisPointsScale is 100% expressed in basis points.
const BasisPointsScale int64 = 10000

var (
	ErrInvalidCurrency = errors.New("invalid_currency")
	ErrInvalidQuantity = errors.New("invalid_quantity")
	ErrAmountOverflow  = errors.New("amount_overflow")
)

var (
	maxInt64 = decimal.NewFromInt(int64(^uint64(0) >> 1))
	minInt64 = decimal.NewFromInt(-int64(^uint64(0)>>1) - 1)
)

// MulDivRound returns round(a*b/den) with half away from zero rounding.
// The product is computed in arbitrary precision so large invoices cannot overflow.
func MulDivRound(a, b, den int64) int64 {
	if den == 0 {
		return 0
	}
	num := new(big.Int).Mul(big.NewInt(a), big.NewInt(b))
	d := big.NewInt(den)
	if d.Sign() < 0 {
		num.Neg(num)
		d.Neg(d)
	}

	q, r := new(big.Int).QuoRem(num, d, new(big.Int))
	if r.Sign() != 0 {
		twice := new(big.Int).Abs(r)
		twice.Lsh(twice, 1)
		if twice.Cmp(d) >= 0 {
			if num.Sign() < 0 {
				q.Sub(q, big.NewInt(1))
			} else {
				q.Add(q, big.NewInt(1))
			}
		}
	}
	return q.Int64()
}

// DivRound returns round(num/den) with half away from zero rounding.
func DivRound(num, den int64) int64 {
	return MulDivRound(num, 1, den)
}

// ApplyBasisPoints returns round(base * bp / 10000).
func ApplyBasisPoints(base, bp int64) int64 {
	return MulDivRound(base, bp, BasisPointsScale)
}

// ExtractInclusive returns the tax contained in a gross amount:
// round(gross - gross*10000/(10000+bp)), computed as round(gross*bp/(10000+bp)).
func ExtractInclusive(gross, bp int64) int64 {
	if bp <= 0 {
		return 0
	}
	return MulDivRound(gross, bp, BasisPointsScale+bp)
}

// LineAmount multiplies a decimal quantity by a unit amount and rounds to minor units.
func LineAmount(quantity decimal.Decimal, unitAmount int64) (int64, error) {
	if quantity.IsNegative() {
		return 0, ErrInvalidQuantity
	}
	amount := quantity.Mul(decimal.NewFromInt(unitAmount)).Round(0)
	if amount.GreaterThan(maxInt64) || amount.LessThan(minInt64) {
		return 0, ErrAmountOverflow
	}
	return amount.IntPart(), nil
}

// ParseQuantity parses a decimal quantity string and rejects negatives.
func ParseQuantity(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Decimal{}, ErrInvalidQuantity
	}
	qty, err := decimal.NewFromString(raw)
	if err != nil || qty.IsNegative() {
		return decimal.Decimal{}, ErrInvalidQuantity
	}
	return qty, nil
}

// NormalizeCurrency upper-cases and validates an ISO 4217 code.
func NormalizeCurrency(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != 3 {
		return "", ErrInvalidCurrency
	}
	unit, err := currency.ParseISO(code)
	if err != nil {
		return "", ErrInvalidCurrency
	}
	return unit.String(), nil
}

// Clamp0 floors v at zero.
func Clamp0(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}

func Min(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

// Format renders minor units as a display string, e.g. 123456 USD as "1,234.56 USD".
// It uses the currency's standard scale (JPY has none) and never feeds back into arithmetic.
func Format(amount int64, code string) string {
	scale := 2
	if unit, err := currency.ParseISO(strings.ToUpper(strings.TrimSpace(code))); err == nil {
		scale, _ = currency.Standard.Rounding(unit)
	}
	value := decimal.New(amount, -int32(scale)).StringFixed(int32(scale))

	sign := ""
	if strings.HasPrefix(value, "-") {
		sign, value = "-", value[1:]
	}
	whole, frac, _ := strings.Cut(value, ".")
	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	out := sign + b.String()
	if frac != "" {
		out += "." + frac
	}
	return strings.TrimSpace(out + " " + strings.ToUpper(code))
}
