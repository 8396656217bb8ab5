package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidPrice = errors.New("price is not a positive amount")
	ErrInvalidRate  = errors.New("exchange rate must be a positive number")
)

// ParseDisplayPrice turns a catalog display string such as "₹1,999.00" into a
// decimal by dropping every character other than digits and '.'.
func ParseDisplayPrice(display string) (decimal.Decimal, error) {
	cleaned := strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == '.' {
			return r
		}
		return -1
	}, display)

	if cleaned == "" {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidPrice, display)
	}
	amount, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q: %v", ErrInvalidPrice, display, err)
	}
	if !amount.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidPrice, display)
	}
	return amount, nil
}

// ParseRate parses an exchange rate (local units per settlement unit).
func ParseRate(raw string) (decimal.Decimal, error) {
	rate, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidRate, raw)
	}
	if !rate.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidRate, raw)
	}
	return rate, nil
}

// Convert divides a local-currency amount by rate and rounds to two decimal
// places.
func Convert(local decimal.Decimal, rate decimal.Decimal, currency string) Money {
	return Money{
		Amount:   local.Div(rate).Round(2),
		Currency: currency,
	}
}
