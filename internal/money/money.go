// Package money holds the exact decimal amount type shared by every gateway
// integration, together with the single minor-unit conversion rule.
package money

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrUnknownCurrency  = errors.New("unknown_currency")
	ErrInvalidAmount    = errors.New("invalid_amount")
	ErrCurrencyMismatch = errors.New("currency_mismatch")
)

// exponents maps ISO-4217 codes to their minor-unit exponent.
var exponents = map[string]int32{
	"AED": 2, "ARS": 2, "AUD": 2, "BDT": 2, "BGN": 2, "BHD": 3, "BRL": 2,
	"CAD": 2, "CHF": 2, "CLP": 0, "CNY": 2, "COP": 2, "CZK": 2, "DKK": 2,
	"EGP": 2, "EUR": 2, "GBP": 2, "HKD": 2, "HUF": 2, "IDR": 2, "ILS": 2,
	"INR": 2, "IQD": 3, "ISK": 0, "JOD": 3, "JPY": 0, "KES": 2, "KRW": 0,
	"KWD": 3, "LKR": 2, "LYD": 3, "MAD": 2, "MXN": 2, "MYR": 2, "NGN": 2,
	"NOK": 2, "NPR": 2, "NZD": 2, "OMR": 3, "PEN": 2, "PHP": 2, "PKR": 2,
	"PLN": 2, "PYG": 0, "QAR": 2, "RON": 2, "RWF": 0, "SAR": 2, "SEK": 2,
	"SGD": 2, "THB": 2, "TND": 3, "TRY": 2, "TWD": 2, "UAH": 2, "UGX": 0,
	"USD": 2, "UYU": 2, "VND": 0, "XAF": 0, "XOF": 0, "ZAR": 2,
}

// Exponent returns the minor-unit exponent of currency.
func Exponent(currency string) (int32, bool) {
	exp, ok := exponents[NormalizeCurrency(currency)]
	return exp, ok
}

// Known reports whether currency has a registered exponent.
func Known(currency string) bool {
	_, ok := Exponent(currency)
	return ok
}

func NormalizeCurrency(currency string) string {
	return strings.ToUpper(strings.TrimSpace(currency))
}

type Money struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// New builds a Money from a decimal amount.
func New(amount decimal.Decimal, currency string) (Money, error) {
	currency = NormalizeCurrency(currency)
	if !Known(currency) {
		return Money{}, fmt.Errorf("%w: %s", ErrUnknownCurrency, currency)
	}
	return Money{Amount: amount, Currency: currency}, nil
}

// Parse builds a Money from a decimal string such as "49.99".
func Parse(amount string, currency string) (Money, error) {
	value, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return Money{}, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	return New(value, currency)
}

// MustParse is Parse for literals known to be valid.
func MustParse(amount string, currency string) Money {
	m, err := Parse(amount, currency)
	if err != nil {
		panic(err)
	}
	return m
}

// FromMinor converts an integer minor-unit amount back to Money. The result is exact.
func FromMinor(minor int64, currency string) (Money, error) {
	currency = NormalizeCurrency(currency)
	exp, ok := Exponent(currency)
	if !ok {
		return Money{}, fmt.Errorf("%w: %s", ErrUnknownCurrency, currency)
	}
	return Money{Amount: decimal.New(minor, -exp), Currency: currency}, nil
}

// ToMinor converts the amount to integer minor units, rounding half up at the
// currency exponent. Every adapter goes through this conversion.
func (m Money) ToMinor() (int64, error) {
	exp, ok := Exponent(m.Currency)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownCurrency, m.Currency)
	}
	shifted := m.Amount.Shift(exp)
	rounded := shifted.Add(half).Floor()
	if rounded.Cmp(decimal.NewFromInt(maxMinor)) > 0 || rounded.Cmp(decimal.NewFromInt(-maxMinor)) < 0 {
		return 0, fmt.Errorf("%w: %s out of range", ErrInvalidAmount, m.Amount.String())
	}
	return rounded.IntPart(), nil
}

const maxMinor = int64(1) << 53

var half = decimal.New(5, -1)

func (m Money) IsPositive() bool {
	return m.Amount.IsPositive()
}

func (m Money) IsZero() bool {
	return m.Amount.IsZero()
}

func (m Money) Add(other Money) (Money, error) {
	if NormalizeCurrency(m.Currency) != NormalizeCurrency(other.Currency) {
		return Money{}, ErrCurrencyMismatch
	}
	return Money{Amount: m.Amount.Add(other.Amount), Currency: NormalizeCurrency(m.Currency)}, nil
}

// Cmp compares two amounts of the same currency.
func (m Money) Cmp(other Money) (int, error) {
	if NormalizeCurrency(m.Currency) != NormalizeCurrency(other.Currency) {
		return 0, ErrCurrencyMismatch
	}
	return m.Amount.Cmp(other.Amount), nil
}

func (m Money) Equal(other Money) bool {
	return NormalizeCurrency(m.Currency) == NormalizeCurrency(other.Currency) && m.Amount.Equal(other.Amount)
}

// String renders the amount at the currency exponent, e.g. "49.99 USD".
func (m Money) String() string {
	exp, ok := Exponent(m.Currency)
	if !ok {
		return m.Amount.String() + " " + m.Currency
	}
	return m.Amount.StringFixed(exp) + " " + m.Currency
}

// FormatMinor renders a minor-unit integer as a major-unit decimal string for
// gateways whose wire format is a decimal string.
func FormatMinor(minor int64, currency string) (string, error) {
	exp, ok := Exponent(currency)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownCurrency, currency)
	}
	return decimal.New(minor, -exp).StringFixed(exp), nil
}

// ParseMajor converts a gateway's major-unit decimal string to minor units.
func ParseMajor(amount string, currency string) (int64, error) {
	m, err := Parse(amount, currency)
	if err != nil {
		return 0, err
	}
	return m.ToMinor()
}
