package subscription

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/frogedu/backend/core"
)

const DefaultCurrency = "VND"

var (
	ErrNegativeAmount   = errors.New("amount cannot be negative")
	ErrInvalidCurrency  = errors.New("currency must be a 3-letter ISO code")
	ErrCurrencyMismatch = errors.New("cannot combine money of different currencies")

	currencyRegex = regexp.MustCompile(`^[A-Z]{3}$`)
)

// Money is a non-negative amount in a currency's minor units.
// Construct through NewMoney or Zero.
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

func NewMoney(amount int64, currency string) (Money, error) {
	if amount < 0 {
		return Money{}, ErrNegativeAmount
	}
	currency = strings.ToUpper(core.CleanString(currency))
	if currency == "" {
		currency = DefaultCurrency
	}
	if !currencyRegex.MatchString(currency) {
		return Money{}, ErrInvalidCurrency
	}
	return Money{Amount: amount, Currency: currency}, nil
}

func Zero(currency string) Money {
	m, _ := NewMoney(0, currency)
	return m
}

func (m Money) Add(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, ErrCurrencyMismatch
	}
	return Money{Amount: m.Amount + other.Amount, Currency: m.Currency}, nil
}

func (m Money) Subtract(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, ErrCurrencyMismatch
	}
	if other.Amount > m.Amount {
		return Money{}, ErrNegativeAmount
	}
	return Money{Amount: m.Amount - other.Amount, Currency: m.Currency}, nil
}

func (m Money) GreaterThan(other Money) (bool, error) {
	if m.Currency != other.Currency {
		return false, ErrCurrencyMismatch
	}
	return m.Amount > other.Amount, nil
}

func (m Money) IsZero() bool {
	return m.Amount == 0
}

func (m Money) String() string {
	return fmt.Sprintf("%d %s", m.Amount, m.Currency)
}
