// Package format renders amounts for display.
package format

import (
	"fmt"
	"math"
	"strings"

	"golang.org/x/text/currency"
)

var symbols = map[currency.Unit]string{
	currency.GBP: "£",
	currency.USD: "$",
	currency.EUR: "€",
	currency.JPY: "¥",
	currency.CHF: "CHF ",
	currency.CAD: "CA$",
	currency.AUD: "A$",
}

// Money formats amounts in one currency.
type Money struct {
	unit   currency.Unit
	symbol string
}

// NewMoney returns a formatter for the ISO 4217 code, e.g. "GBP".
func NewMoney(code string) (*Money, error) {
	unit, err := currency.ParseISO(strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return nil, fmt.Errorf("unknown currency code %q: %w", code, err)
	}

	symbol, ok := symbols[unit]
	if !ok {
		symbol = unit.String() + " "
	}
	return &Money{unit: unit, symbol: symbol}, nil
}

// Code returns the ISO 4217 code.
func (m *Money) Code() string {
	return m.unit.String()
}

// Format returns the amount with the currency symbol and thousands
// separators (e.g., "-£1,234.56").
func (m *Money) Format(amount float64) string {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return "—"
	}
	formatted := formatPositiveCurrency(math.Abs(amount))
	if amount < 0 && formatted != "0.00" {
		return "-" + m.symbol + formatted
	}
	return m.symbol + formatted
}

// Rate returns an annual percentage rate with two decimals (e.g., "5.25").
func Rate(rate float64) string {
	return fmt.Sprintf("%.2f", rate)
}

func formatPositiveCurrency(value float64) string {
	formatted := fmt.Sprintf("%.2f", value)
	parts := strings.SplitN(formatted, ".", 2)
	intPart := parts[0]
	decPart := "00"
	if len(parts) == 2 {
		decPart = parts[1]
	}

	if len(intPart) > 3 {
		var builder strings.Builder
		for i, digit := range intPart {
			if i > 0 && (len(intPart)-i)%3 == 0 {
				builder.WriteByte(',')
			}
			builder.WriteRune(digit)
		}
		intPart = builder.String()
	}

	return intPart + "." + decPart
}
