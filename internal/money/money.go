package money

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits every stored amount carries.
const Scale = 2

var (
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrTooManyDecimals = errors.New("amount has too many decimal places")
)

func Parse(input string) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	value, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	return Normalize(value)
}

// Normalize rejects values finer than a cent and returns the value rounded to
// Scale so that equal amounts compare and print identically.
func Normalize(value decimal.Decimal) (decimal.Decimal, error) {
	if value.Exponent() < -Scale && !value.Equal(value.Truncate(Scale)) {
		return decimal.Zero, ErrTooManyDecimals
	}
	return value.Round(Scale), nil
}

func Positive(value decimal.Decimal) bool {
	return value.GreaterThan(decimal.Zero)
}

func Format(value decimal.Decimal) string {
	return value.StringFixed(Scale)
}

func FormatSigned(value decimal.Decimal, negative bool) string {
	if negative {
		return value.Abs().Neg().StringFixed(Scale)
	}
	return value.Abs().StringFixed(Scale)
}

func MustParse(input string) decimal.Decimal {
	value, err := Parse(input)
	if err != nil {
		panic(err)
	}
	return value
}
