// Package types provides shared value types for the billing domain.
package types

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Money is an exact decimal amount bound to an ISO 4217 currency code.
// All arithmetic is currency-checked: mixing currencies is a programming
// or data error, so the binary operations panic on mismatch. Callers are
// expected to validate currency uniformity at the aggregate boundary
// (see invoice.Validate) before doing arithmetic.
//
// Amounts carry full decimal precision; rounding happens only at the
// point of tax computation (half-up, 2 fractional digits), never earlier.
type Money struct {
	Amount   decimal.Decimal `db:"amount" json:"amount"`
	Currency string          `db:"currency" json:"currency"`
}

// SAR is the default currency for the platform.
const SAR = "SAR"

// NewMoney creates a Money value, validating the currency code.
func NewMoney(amount decimal.Decimal, currency string) (Money, error) {
	if err := ValidateCurrency(currency); err != nil {
		return Money{}, err
	}
	return Money{Amount: amount, Currency: currency}, nil
}

// NewMoneyFromString creates a Money value from a decimal string.
// This is the preferred constructor for monetary values.
func NewMoneyFromString(amount, currency string) (Money, error) {
	dec, err := decimal.NewFromString(amount)
	if err != nil {
		return Money{}, fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	return NewMoney(dec, currency)
}

// MustMoney creates a Money value from a string, panics on error.
// Use only for constants and tests.
func MustMoney(amount, currency string) Money {
	m, err := NewMoneyFromString(amount, currency)
	if err != nil {
		panic(err)
	}
	return m
}

// ZeroMoney returns zero in the given currency.
func ZeroMoney(currency string) Money {
	return Money{Amount: decimal.Zero, Currency: currency}
}

// ValidateCurrency checks that the code is a 3-letter uppercase ISO code.
func ValidateCurrency(currency string) error {
	if len(currency) != 3 || currency != strings.ToUpper(currency) {
		return fmt.Errorf("invalid currency code %q", currency)
	}
	for _, r := range currency {
		if r < 'A' || r > 'Z' {
			return fmt.Errorf("invalid currency code %q", currency)
		}
	}
	return nil
}

// Add returns m + other. Panics if currencies differ.
func (m Money) Add(other Money) Money {
	m.mustMatch(other, "add")
	return Money{Amount: m.Amount.Add(other.Amount), Currency: m.Currency}
}

// Sub returns m - other. Panics if currencies differ.
func (m Money) Sub(other Money) Money {
	m.mustMatch(other, "subtract")
	return Money{Amount: m.Amount.Sub(other.Amount), Currency: m.Currency}
}

// MulInt returns m * n. Multiplication by an integer quantity is exact.
func (m Money) MulInt(n int64) Money {
	return Money{Amount: m.Amount.Mul(decimal.NewFromInt(n)), Currency: m.Currency}
}

// Cmp compares two Money values: -1 if m < other, 0 if equal, 1 if m > other.
// Panics if currencies differ.
func (m Money) Cmp(other Money) int {
	m.mustMatch(other, "compare")
	return m.Amount.Cmp(other.Amount)
}

// GreaterOrEqual reports whether m >= other. Panics if currencies differ.
func (m Money) GreaterOrEqual(other Money) bool {
	return m.Cmp(other) >= 0
}

// Equal reports whether amount and currency are both equal.
func (m Money) Equal(other Money) bool {
	return m.Currency == other.Currency && m.Amount.Equal(other.Amount)
}

// IsZero reports whether the amount is zero.
func (m Money) IsZero() bool {
	return m.Amount.IsZero()
}

// IsPositive reports whether the amount is strictly positive.
func (m Money) IsPositive() bool {
	return m.Amount.IsPositive()
}

// IsNegative reports whether the amount is strictly negative.
func (m Money) IsNegative() bool {
	return m.Amount.IsNegative()
}

// RoundCents returns the amount rounded half-up to 2 fractional digits.
// Used exclusively at the tax-computation boundary.
func (m Money) RoundCents() Money {
	return Money{Amount: m.Amount.Round(2), Currency: m.Currency}
}

// String returns the amount with 2 fractional digits and the currency code,
// e.g. "280.00 SAR".
func (m Money) String() string {
	return m.Amount.StringFixed(2) + " " + m.Currency
}

func (m Money) mustMatch(other Money, op string) {
	if m.Currency != other.Currency {
		panic(fmt.Sprintf("money: cannot %s different currencies: %s vs %s", op, m.Currency, other.Currency))
	}
}
