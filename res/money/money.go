package money

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var ErrCurrencyMismatch = errors.New("money: currency mismatch")

var (
	half    = decimal.New(5, -1)
	hundred = decimal.NewFromInt(100)
)

// Money is an amount in minor units (cents) of a single currency.
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

func New(amount int64, currency string) Money {
	return Money{Amount: amount, Currency: currency}
}

func Zero(currency string) Money {
	return Money{Currency: currency}
}

// RoundHalfUp rounds a fractional cent value to the nearest cent, with .5 going up.
// Every split, percentage and rate in the system goes through here.
func RoundHalfUp(d decimal.Decimal) int64 {
	return d.Add(half).Floor().IntPart()
}

func (m Money) Add(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, fmt.Errorf("%w (%s + %s)", ErrCurrencyMismatch, m.Currency, other.Currency)
	}
	return Money{Amount: m.Amount + other.Amount, Currency: m.Currency}, nil
}

func (m Money) Sub(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, fmt.Errorf("%w (%s - %s)", ErrCurrencyMismatch, m.Currency, other.Currency)
	}
	return Money{Amount: m.Amount - other.Amount, Currency: m.Currency}, nil
}

// Percent returns pct percent of m, e.g. Percent(40) of 10000 is 4000.
func (m Money) Percent(pct decimal.Decimal) Money {
	return m.MulRate(pct.Div(hundred))
}

// MulRate multiplies by a fractional rate or quantity (0.062, 7.5 hours, ...).
func (m Money) MulRate(rate decimal.Decimal) Money {
	return Money{Amount: RoundHalfUp(decimal.NewFromInt(m.Amount).Mul(rate)), Currency: m.Currency}
}

func (m Money) Times(n int64) Money {
	return Money{Amount: m.Amount * n, Currency: m.Currency}
}

// Half returns the floor of m/2. The odd cent is not assigned to either half.
func (m Money) Half() Money {
	return Money{Amount: m.Amount / 2, Currency: m.Currency}
}

func (m Money) Min(other Money) Money {
	if other.Amount < m.Amount {
		return other
	}
	return m
}

func (m Money) IsZero() bool     { return m.Amount == 0 }
func (m Money) IsPositive() bool { return m.Amount > 0 }
func (m Money) IsNegative() bool { return m.Amount < 0 }

func (m Money) GreaterThan(other Money) bool { return m.Amount > other.Amount }
func (m Money) LessThan(other Money) bool    { return m.Amount < other.Amount }

func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Amount, -2)
}

func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.Decimal().StringFixed(2), m.Currency)
}
