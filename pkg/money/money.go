// Package money holds the rounding and comparison rules shared by every
// monetary computation. All amounts are decimals rounded half-up to two
// places; equality checks tolerate a one-cent epsilon so that cent-split
// schedules and display-rounded inputs never wedge a loan one cent short of
// finished.
package money

import "github.com/shopspring/decimal"

// Epsilon is the settlement tolerance: amounts closer than one cent are
// considered equal.
var Epsilon = decimal.New(1, -2)

// Round normalizes an amount to two decimal places, half up.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Cents returns the amount as an integer number of cents, half up.
func Cents(d decimal.Decimal) int64 {
	return d.Mul(decimal.New(100, 0)).Round(0).IntPart()
}

// FromCents builds an amount from an integer number of cents.
func FromCents(c int64) decimal.Decimal {
	return decimal.New(c, -2)
}

// Equal reports whether a and b are within Epsilon of each other.
func Equal(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(Epsilon)
}

// GTE reports whether a >= b allowing the one-cent tolerance.
func GTE(a, b decimal.Decimal) bool {
	return a.GreaterThanOrEqual(b) || Equal(a, b)
}

// LTE reports whether a <= b allowing the one-cent tolerance.
func LTE(a, b decimal.Decimal) bool {
	return a.LessThanOrEqual(b) || Equal(a, b)
}

// IsZero reports whether the amount is zero within Epsilon.
func IsZero(d decimal.Decimal) bool {
	return d.Abs().LessThanOrEqual(Epsilon)
}

// NonNegative clamps small negative residue (from epsilon-tolerant math) to
// exactly zero and otherwise returns the value unchanged.
func NonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		if IsZero(d) {
			return decimal.Zero
		}
		return d
	}
	return d
}
