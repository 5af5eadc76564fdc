// Package money holds the monetary arithmetic shared by billing and
// reconciliation. All values are decimal; floats never touch an amount.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Places is the number of decimal places every stored amount carries.
const Places = 2

// DefaultGSTRate is the rate used when neither configuration nor the
// milestone supplies one.
var DefaultGSTRate = decimal.RequireFromString("0.10")

// Breakdown is an amount split into subtotal, tax and total.
// Total == Subtotal + GST holds exactly.
type Breakdown struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	GST      decimal.Decimal `json:"gst"`
	Total    decimal.Decimal `json:"total"`
}

// Round rounds d to cents, half away from zero.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Places)
}

// Compute applies rate to amount. Subtotal and GST are each rounded to cents
// before they are added, so no fraction of a cent is carried into Total.
func Compute(amount, rate decimal.Decimal) Breakdown {
	subtotal := Round(amount)
	gst := Round(subtotal.Mul(rate))
	return Breakdown{
		Subtotal: subtotal,
		GST:      gst,
		Total:    subtotal.Add(gst),
	}
}

// RateOr returns override when it is valid, otherwise def.
func RateOr(override decimal.NullDecimal, def decimal.Decimal) decimal.Decimal {
	if override.Valid {
		return override.Decimal
	}
	return def
}

// FromMinorUnits converts a provider amount in cents to major units.
func FromMinorUnits(cents int64) decimal.Decimal {
	return decimal.New(cents, -Places)
}

// ToMinorUnits converts a major-unit amount to cents, rounding to the
// nearest cent first.
func ToMinorUnits(d decimal.Decimal) int64 {
	return Round(d).Shift(Places).IntPart()
}

// Parse reads a decimal amount from text and rejects negatives.
func Parse(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse amount %q: %w", s, err)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("parse amount %q: must not be negative", s)
	}
	return d, nil
}
