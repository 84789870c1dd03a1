package commission

import (
	"github.com/shopspring/decimal"
)

const moneyPlaces = 2

var (
	one  = decimal.NewFromInt(1)
	zero = decimal.Zero
)

// roundMoney rounds half away from zero to cents.
func roundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(moneyPlaces)
}

// floorMoney rounds down to cents. Scaled amounts use it so that a budget
// is never exceeded by rounding.
func floorMoney(d decimal.Decimal) decimal.Decimal {
	return d.RoundFloor(moneyPlaces)
}

// FormatMoney renders an amount as a fixed two-decimal string.
func FormatMoney(d decimal.Decimal) string {
	return d.StringFixed(moneyPlaces)
}

// FormatFactor renders a scale factor for display.
func FormatFactor(d decimal.Decimal, places int32) string {
	return d.StringFixed(places)
}

func minDecimal(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

func sumDecimals(values ...decimal.Decimal) decimal.Decimal {
	total := zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}
