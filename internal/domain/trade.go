package domain

// Fee is a commission charged on a trade or order.
type Fee struct {
	Currency string
	Cost     float64
}

// Trade is a single fill reported by the exchange.
type Trade struct {
	OrderID string
	Amount  float64 // base currency
	Price   float64
	Cost    float64 // quote currency
	Fee     *Fee
}

// TradeTotals aggregates fills: total base amount, total quote cost and the
// volume weighted average price. An empty list, or one whose amounts sum to
// zero, is ErrEmptyTrades.
func TradeTotals(trades []Trade) (amount, cost, price float64, err error) {
	for _, t := range trades {
		amount += t.Amount
		cost += t.Amount * t.Price
	}
	if amount == 0 {
		return 0, 0, 0, ErrEmptyTrades
	}
	return amount, cost, cost / amount, nil
}

// FeesFromTrades sums the fees of the trades per currency. The start and
// dest currencies are always present in the result, with zero amounts when
// no fee was charged in them.
func FeesFromTrades(trades []Trade, startCurrency, destCurrency string) map[string]float64 {
	total := make(map[string]float64)

	for _, t := range trades {
		if t.Fee == nil {
			continue
		}
		total[t.Fee.Currency] += t.Fee.Cost
	}

	for _, c := range []string{startCurrency, destCurrency} {
		if _, ok := total[c]; !ok {
			total[c] = 0
		}
	}
	return total
}
