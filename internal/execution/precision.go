package execution

import "github.com/shopspring/decimal"

// Default precisions used when a market does not define its own.
const (
	defaultAmountPrecision = 8
	defaultPricePrecision  = 8
)

// amountToPrecision truncates an amount to the given number of decimal
// places. Amounts are truncated, never rounded up, so an order can never
// exceed the available balance.
func amountToPrecision(amount float64, precision int) float64 {
	if precision <= 0 {
		return decimal.NewFromFloat(amount).Truncate(0).InexactFloat64()
	}
	f, _ := decimal.NewFromFloat(amount).Truncate(int32(precision)).Float64()
	return f
}

// priceToPrecision rounds a price to the given number of decimal places.
func priceToPrecision(price float64, precision int) float64 {
	f, _ := decimal.NewFromFloat(price).Round(int32(precision)).Float64()
	return f
}

// markets indexes Market definitions by symbol with precision fallbacks.
type markets map[string]Market

func (m markets) amountPrecision(symbol string) int {
	if mk, ok := m[symbol]; ok && mk.AmountPrecision > 0 {
		return mk.AmountPrecision
	}
	return defaultAmountPrecision
}

func (m markets) pricePrecision(symbol string) int {
	if mk, ok := m[symbol]; ok && mk.PricePrecision > 0 {
		return mk.PricePrecision
	}
	return defaultPricePrecision
}
