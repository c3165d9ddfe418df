// Package core provides money handling utilities.
//
// Amounts are held as integer cents so that comparisons and sums never
// accumulate floating-point drift. Provider amounts arrive as JSON floats and
// are converted exactly once, at the edge, with half-up rounding.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// MoneyFromFloat converts a provider float (dollars) into cents, rounding
// half away from zero on the third decimal place.
//
// Examples:
//
//	MoneyFromFloat(312.45)  -> Money{Cents: 31245}
//	MoneyFromFloat(12.345)  -> Money{Cents: 1235}
//	MoneyFromFloat(-45.67)  -> Money{Cents: -4567}
func MoneyFromFloat(f float64) Money {
	return Money{Cents: decimal.NewFromFloat(f).Round(2).Mul(hundred).IntPart()}
}

// ParseMoney parses a decimal string into cents.
//
// Only a dot separates dollars from cents; any comma is rejected, so "1,000"
// is an error rather than 1.00. Rounds half-up on the third decimal place.
// Signed values are accepted; callers that need a non-negative amount check
// Cents themselves.
func ParseMoney(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Money{}, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, ErrInvalidAmount
	}
	// Prevent overflow when scaling to cents
	const maxSafeInt64 = (1<<63 - 1) / 100
	if d.Abs().GreaterThan(decimal.NewFromInt(maxSafeInt64)) {
		return Money{}, ErrInvalidAmount
	}
	return Money{Cents: d.Round(2).Mul(hundred).IntPart()}, nil
}

// Decimal returns the amount in currency units.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Cents, -2)
}

func (m Money) Add(o Money) Money { return Money{Cents: m.Cents + o.Cents} }
func (m Money) Sub(o Money) Money { return Money{Cents: m.Cents - o.Cents} }
func (m Money) Neg() Money        { return Money{Cents: -m.Cents} }

// String renders the amount with exactly two decimal places.
func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}

// MarshalJSON emits a JSON number rounded to two decimal places.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalJSON accepts a JSON number or numeric string.
func (m *Money) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "null" {
		*m = Money{}
		return nil
	}
	v, err := ParseMoney(s)
	if err != nil {
		return err
	}
	*m = v
	return nil
}
