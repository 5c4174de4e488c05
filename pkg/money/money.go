// Package money performs exact minor-unit arithmetic for commission amounts.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/brokerledger/pkg/enums"
)

// BasisPointsScale is 100% expressed in basis points.
const BasisPointsScale int64 = 10000

var (
	two      = decimal.NewFromInt(2)
	bpScale  = decimal.NewFromInt(BasisPointsScale)
	maxInt64 = decimal.NewFromInt(int64(^uint64(0) >> 1))
)

// DivRound divides num by den and rounds the quotient to an integer using
// rule. Ties are resolved exactly; no floating point is involved.
func DivRound(num, den decimal.Decimal, rule enums.RoundingRule) (decimal.Decimal, error) {
	if den.IsZero() {
		return decimal.Zero, fmt.Errorf("division by zero")
	}
	if den.IsNegative() {
		num, den = num.Neg(), den.Neg()
	}

	q, r := num.QuoRem(den, 0)
	if r.IsZero() {
		return q, nil
	}

	twiceRem := r.Abs().Mul(two)
	cmp := twiceRem.Cmp(den)
	step := decimal.NewFromInt(int64(num.Sign()))

	switch {
	case cmp > 0:
		return q.Add(step), nil
	case cmp < 0:
		return q, nil
	}

	switch rule {
	case enums.RoundingBankers:
		if q.Mod(two).IsZero() {
			return q, nil
		}
		return q.Add(step), nil
	case enums.RoundingHalfUp:
		return q.Add(step), nil
	default:
		return decimal.Zero, fmt.Errorf("unsupported rounding rule %q", rule)
	}
}

// MulBasisPoints returns round(amount * bp / 10000) in minor units.
func MulBasisPoints(amount, bp int64, rule enums.RoundingRule) (int64, error) {
	num := decimal.NewFromInt(amount).Mul(decimal.NewFromInt(bp))
	out, err := DivRound(num, bpScale, rule)
	if err != nil {
		return 0, err
	}
	return toInt64(out)
}

// Div returns round(num / den) for integer minor-unit values.
func Div(num, den int64, rule enums.RoundingRule) (int64, error) {
	out, err := DivRound(decimal.NewFromInt(num), decimal.NewFromInt(den), rule)
	if err != nil {
		return 0, err
	}
	return toInt64(out)
}

// PercentFromBasisPoints renders bp as a plain percentage string, e.g. 10000 -> "100".
func PercentFromBasisPoints(bp int64) string {
	return decimal.NewFromInt(bp).Div(decimal.NewFromInt(100)).String()
}

// BasisPointsFromPercent converts a 0-100 percentage to basis points, rounding
// half up at the fourth decimal place of the percentage.
func BasisPointsFromPercent(percent decimal.Decimal) int64 {
	return percent.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

func toInt64(d decimal.Decimal) (int64, error) {
	if d.Abs().GreaterThan(maxInt64) {
		return 0, fmt.Errorf("amount %s overflows minor units", d.String())
	}
	return d.IntPart(), nil
}
