// Package currency converts amounts between the currencies a reconciliation can involve.
package currency

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Converter converts an amount between two currencies at a date. Implementations must return the
// same result for the same inputs and round to the minor units of the target currency.
type Converter interface {
	Convert(ctx context.Context, amount decimal.Decimal, from, to string, date time.Time) (decimal.Decimal, error)
}

// ISO 4217 currencies whose minor unit differs from two digits.
var exponents = map[string]int32{
	"BIF": 0, "CLP": 0, "DJF": 0, "GNF": 0, "ISK": 0, "JPY": 0, "KMF": 0, "KRW": 0, "PYG": 0,
	"RWF": 0, "UGX": 0, "UYI": 0, "VND": 0, "VUV": 0, "XAF": 0, "XOF": 0, "XPF": 0,
	"BHD": 3, "IQD": 3, "JOD": 3, "KWD": 3, "LYD": 3, "OMR": 3, "TND": 3,
	"CLF": 4, "UYW": 4,
}

// Places returns the number of decimal places of a currency.
func Places(code string) int32 {
	if p, ok := exponents[strings.ToUpper(code)]; ok {
		return p
	}
	return 2
}

// Round rounds an amount to the minor units of a currency.
func Round(amount decimal.Decimal, code string) decimal.Decimal {
	return amount.Round(Places(code))
}

// IsZero reports whether the amount rounds to zero in the given currency.
func IsZero(amount decimal.Decimal, code string) bool {
	return Round(amount, code).IsZero()
}
