// Package money provides currency-safe ledger arithmetic using integer minor units
// and the Fowler Money pattern. Every value carries an ISO-4217 code; a ledger
// works in a single currency and mixing codes is reported as an error.
package money

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// Common currency codes (ISO-4217)
const (
	EUR = "EUR" // Euro
	USD = "USD" // US Dollar
	GBP = "GBP" // British Pound
	CHF = "CHF" // Swiss Franc
	CAD = "CAD" // Canadian Dollar
	JPY = "JPY" // Japanese Yen (no decimal places)
)

// DefaultCurrency is used when a nil Money has to produce a value.
const DefaultCurrency = EUR

var (
	// ErrCurrencyMismatch is returned when arithmetic mixes two currencies.
	ErrCurrencyMismatch = errors.New("currency mismatch")
	// ErrPrecision is returned when an amount has more decimal places than
	// its currency.
	ErrPrecision = errors.New("too many decimal places for currency")
)

// Money represents a monetary value with currency.
// It wraps go-money for safe arithmetic and shopspring/decimal for parsing.
// Values are immutable: every operation returns a new Money.
type Money struct {
	m *money.Money
}

// New creates a new Money value from minor units and currency code.
// For JPY and other zero-decimal currencies, amount is the actual value.
func New(amountCents int64, currencyCode string) *Money {
	return &Money{
		m: money.New(amountCents, currencyCode),
	}
}

// NewFromDecimal creates Money from a decimal.Decimal value, rounding half away
// from zero to the currency's scale.
func NewFromDecimal(amount decimal.Decimal, currencyCode string) *Money {
	currency := money.GetCurrency(currencyCode)
	if currency == nil {
		currency = money.GetCurrency(DefaultCurrency)
	}

	multiplier := decimal.New(1, Scale(currency.Code))
	cents := amount.Mul(multiplier).Round(0).IntPart()

	return New(cents, currency.Code)
}

// NewFromString parses a string amount and currency.
// Accepts formats like "100.50", "1,234.56", "+45,00", "-5 428,69 €" and
// "1.234,56" (European). Regular, non-breaking and narrow no-break spaces are
// treated as thousands separators.
func NewFromString(amount string, currencyCode string, europeanFormat bool) (*Money, error) {
	raw := amount
	amount = strings.TrimSpace(amount)
	amount = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\u00A0', '\u202F', '"':
			return -1
		}
		return r
	}, amount)

	for _, sym := range []string{"€", "$", "£", "CHF", "EUR", "USD"} {
		amount = strings.ReplaceAll(amount, sym, "")
	}

	positive := strings.HasPrefix(amount, "+")
	amount = strings.TrimPrefix(amount, "+")

	if strings.HasPrefix(amount, "(") && strings.HasSuffix(amount, ")") {
		amount = "-" + strings.Trim(amount, "()")
	}

	if europeanFormat {
		// European: 1.234,56 -> 1234.56
		amount = strings.ReplaceAll(amount, ".", "")
		amount = strings.ReplaceAll(amount, ",", ".")
	} else {
		// American: 1,234.56 -> 1234.56
		amount = strings.ReplaceAll(amount, ",", "")
	}

	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", raw, err)
	}
	if positive {
		d = d.Abs()
	}
	if scale := Scale(currencyCode); !d.Equal(d.Round(scale)) {
		return nil, fmt.Errorf("invalid amount %q: %w (%d)", raw, ErrPrecision, scale)
	}

	return NewFromDecimal(d, currencyCode), nil
}

// Scale returns the number of decimal places of a currency, falling back to
// the default currency for unknown codes.
func Scale(currencyCode string) int32 {
	currency := money.GetCurrency(currencyCode)
	if currency == nil {
		currency = money.GetCurrency(DefaultCurrency)
	}
	return int32(currency.Fraction)
}

// MustParse is NewFromString for literals in tests and fixtures.
func MustParse(amount string, currencyCode string) *Money {
	m, err := NewFromString(amount, currencyCode, false)
	if err != nil {
		panic(err)
	}
	return m
}

// Zero returns a zero Money value for the given currency
func Zero(currencyCode string) *Money {
	return New(0, currencyCode)
}

// Sum adds values of the same currency. Nil values count as zero.
func Sum(currencyCode string, values ...*Money) (*Money, error) {
	total := Zero(currencyCode)
	for _, v := range values {
		if v == nil || v.m == nil {
			continue
		}
		next, err := total.Add(v)
		if err != nil {
			return nil, err
		}
		total = next
	}
	return total, nil
}

// Amount returns the amount in minor units (cents)
func (m *Money) Amount() int64 {
	if m == nil || m.m == nil {
		return 0
	}
	return m.m.Amount()
}

// Currency returns the ISO-4217 currency code
func (m *Money) Currency() string {
	if m == nil || m.m == nil {
		return ""
	}
	return m.m.Currency().Code
}

// IsZero returns true if the amount is zero
func (m *Money) IsZero() bool {
	return m == nil || m.m == nil || m.m.IsZero()
}

// IsPositive returns true if the amount is greater than zero
func (m *Money) IsPositive() bool {
	return m != nil && m.m != nil && m.m.IsPositive()
}

// IsNegative returns true if the amount is less than zero
func (m *Money) IsNegative() bool {
	return m != nil && m.m != nil && m.m.IsNegative()
}

// Abs returns the absolute value
func (m *Money) Abs() *Money {
	if m == nil || m.m == nil {
		return Zero(DefaultCurrency)
	}
	return &Money{m: m.m.Absolute()}
}

// Negate returns the negated value
func (m *Money) Negate() *Money {
	if m == nil || m.m == nil {
		return Zero(DefaultCurrency)
	}
	return &Money{m: m.m.Negative()}
}

// Add adds two Money values. Returns ErrCurrencyMismatch if currencies differ.
func (m *Money) Add(other *Money) (*Money, error) {
	if m == nil || m.m == nil {
		return other, nil
	}
	if other == nil || other.m == nil {
		return m, nil
	}

	result, err := m.m.Add(other.m)
	if err != nil {
		return nil, fmt.Errorf("%w: %s + %s", ErrCurrencyMismatch, m.Currency(), other.Currency())
	}
	return &Money{m: result}, nil
}

// MustAdd adds two Money values, panics if currencies don't match.
func (m *Money) MustAdd(other *Money) *Money {
	result, err := m.Add(other)
	if err != nil {
		panic(err)
	}
	return result
}

// Subtract subtracts other from m. Returns ErrCurrencyMismatch if currencies differ.
func (m *Money) Subtract(other *Money) (*Money, error) {
	if m == nil || m.m == nil {
		if other == nil {
			return Zero(DefaultCurrency), nil
		}
		return other.Negate(), nil
	}
	if other == nil || other.m == nil {
		return m, nil
	}

	result, err := m.m.Subtract(other.m)
	if err != nil {
		return nil, fmt.Errorf("%w: %s - %s", ErrCurrencyMismatch, m.Currency(), other.Currency())
	}
	return &Money{m: result}, nil
}

// MustSubtract subtracts other from m, panics if currencies don't match.
func (m *Money) MustSubtract(other *Money) *Money {
	result, err := m.Subtract(other)
	if err != nil {
		panic(err)
	}
	return result
}

// Equals returns true if both values are equal. A nil value equals zero and
// values of different currencies are never equal.
func (m *Money) Equals(other *Money) bool {
	if m == nil || m.m == nil {
		return other == nil || other.m == nil || other.IsZero()
	}
	if other == nil || other.m == nil {
		return m.IsZero()
	}
	eq, err := m.m.Equals(other.m)
	return err == nil && eq
}

// SameCurrency returns true if both have the same currency
func (m *Money) SameCurrency(other *Money) bool {
	if m == nil || m.m == nil || other == nil || other.m == nil {
		return false
	}
	return m.m.SameCurrency(other.m)
}

// Display returns a formatted string for display (e.g., "€1,234.56")
func (m *Money) Display() string {
	if m == nil || m.m == nil {
		return Zero(DefaultCurrency).Display()
	}
	return m.m.Display()
}

// String returns the amount as a fixed-scale decimal string (e.g., "1234.56")
func (m *Money) String() string {
	if m == nil || m.m == nil {
		return "0.00"
	}
	return m.ToDecimal().StringFixed(int32(m.m.Currency().Fraction))
}

// ToDecimal converts to decimal.Decimal for precise calculations
func (m *Money) ToDecimal() decimal.Decimal {
	if m == nil || m.m == nil {
		return decimal.Zero
	}
	currency := m.m.Currency()
	return decimal.New(m.m.Amount(), -int32(currency.Fraction))
}

// Split divides money into n equal parts, distributing remainder to first parts.
// This ensures no money is lost in division.
func (m *Money) Split(n int) ([]*Money, error) {
	if m == nil || m.m == nil {
		return nil, errors.New("cannot split nil money")
	}
	if n <= 0 {
		return nil, errors.New("n must be positive")
	}

	parts, err := m.m.Split(n)
	if err != nil {
		return nil, err
	}

	result := make([]*Money, len(parts))
	for i, p := range parts {
		result[i] = &Money{m: p}
	}
	return result, nil
}

// MarshalJSON encodes minor units, currency and display form. Nil encodes
// as null.
func (m *Money) MarshalJSON() ([]byte, error) {
	if m == nil || m.m == nil {
		return json.Marshal(nil)
	}
	return json.Marshal(map[string]interface{}{
		"amount":   m.Amount(),
		"currency": m.Currency(),
		"display":  m.Display(),
	})
}
