package domain

import (
	"fmt"
	"strings"
)

// Order sides.
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// SplitSymbol returns the base and quote currencies of a "BASE/QUOTE" symbol.
func SplitSymbol(symbol string) (base, quote string) {
	base, quote, _ = strings.Cut(symbol, "/")
	return base, quote
}

// TradeDirectionToCurrency returns the side of an order on symbol that
// results in destCurrency. Empty string if the symbol does not contain it.
func TradeDirectionToCurrency(symbol, destCurrency string) string {
	base, quote := SplitSymbol(symbol)
	switch destCurrency {
	case base:
		return SideBuy
	case quote:
		return SideSell
	}
	return ""
}

// OrderSide returns the side of an order on symbol converting startCurrency
// into destCurrency. Empty string if the pair does not match the symbol.
func OrderSide(startCurrency, destCurrency, symbol string) string {
	switch symbol {
	case startCurrency + "/" + destCurrency:
		return SideSell
	case destCurrency + "/" + startCurrency:
		return SideBuy
	}
	return ""
}

// SymbolFor returns the market symbol trading c1 against c2, looked up in
// the set of known symbols. Empty string if neither orientation exists.
func SymbolFor(c1, c2 string, symbols map[string]struct{}) string {
	if _, ok := symbols[c1+"/"+c2]; ok {
		return c1 + "/" + c2
	}
	if _, ok := symbols[c2+"/"+c1]; ok {
		return c2 + "/" + c1
	}
	return ""
}

// RelativeTargetPriceDifference returns how far currentPrice has moved from
// targetPrice relative to the order side. Negative values mean the market
// moved against the order.
//
// Sell: (current / target) - 1. Buy: 1 - (current / target).
func RelativeTargetPriceDifference(side string, targetPrice, currentPrice float64) (float64, error) {
	switch strings.ToLower(side) {
	case SideSell:
		return (currentPrice / targetPrice) - 1, nil
	case SideBuy:
		return 1 - (currentPrice / targetPrice), nil
	}
	return 0, fmt.Errorf("%w: side %q", ErrUnknownAction, side)
}

// PriceForDestAmount returns the limit price at which an order of the given
// side converts startAmount into destAmount.
func PriceForDestAmount(side string, startAmount, destAmount float64) (float64, error) {
	if startAmount == 0 || destAmount == 0 {
		return 0, ErrZeroAmounts
	}
	switch strings.ToLower(side) {
	case SideBuy:
		return startAmount / destAmount, nil
	case SideSell:
		return destAmount / startAmount, nil
	}
	return 0, fmt.Errorf("%w: side %q", ErrUnknownAction, side)
}

// ConvertCurrency returns the amount of destCurrency gained by converting
// startAmount of startCurrency over the given ticker at the taker price.
// Set taker to false to use the maker price instead.
func ConvertCurrency(startCurrency string, startAmount float64, destCurrency string, ticker Ticker, taker bool) (float64, error) {
	symbol := ticker.Symbol
	if symbol == "" {
		return 0, fmt.Errorf("%w: ticker has no symbol", ErrNoTicker)
	}

	side := TradeDirectionToCurrency(symbol, destCurrency)
	if side == "" {
		return 0, fmt.Errorf("%w: %s on %s", ErrSymbolMismatch, destCurrency, symbol)
	}

	var price float64
	switch {
	case side == SideBuy && taker:
		price = ticker.Ask
	case side == SideBuy:
		price = ticker.Bid
	case side == SideSell && taker:
		price = ticker.Bid
	default:
		price = ticker.Ask
	}

	if price <= 0 {
		return 0, fmt.Errorf("%w: no usable price on %s", ErrNoTicker, symbol)
	}

	if side == SideBuy {
		return startAmount / price, nil
	}
	return startAmount * price, nil
}
