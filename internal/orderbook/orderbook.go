// Package orderbook provides taker-side depth calculations over order book
// snapshots.
package orderbook

import (
	"errors"
	"fmt"
	"sort"

	"ordex/internal/domain"
)

// Currency units a depth amount can be expressed in.
const (
	UnitBase  = "base"
	UnitQuote = "quote"
)

var (
	// ErrUnknownUnit is returned for a currency unit other than "base"
	// or "quote".
	ErrUnknownUnit = errors.New("unknown currency unit")

	// ErrUnknownSide is returned for a direction other than "buy" or
	// "sell".
	ErrUnknownSide = errors.New("unknown trade side")

	// ErrEmptySide is returned when the relevant side of the book has no
	// levels to fill against.
	ErrEmptySide = errors.New("empty order book side")
)

// Level is a single price level.
type Level struct {
	Price    float64
	Quantity float64
}

// Book is an order book snapshot with asks sorted ascending and bids
// sorted descending by price.
type Book struct {
	Symbol string
	Asks   []Level
	Bids   []Level
}

// NewBook builds a Book from raw [price, quantity] rows, sorting each side
// into fill order.
func NewBook(symbol string, asks, bids [][2]float64) *Book {
	b := &Book{Symbol: symbol}
	for _, r := range asks {
		b.Asks = append(b.Asks, Level{Price: r[0], Quantity: r[1]})
	}
	for _, r := range bids {
		b.Bids = append(b.Bids, Level{Price: r[0], Quantity: r[1]})
	}
	sort.Slice(b.Asks, func(i, j int) bool { return b.Asks[i].Price < b.Asks[j].Price })
	sort.Slice(b.Bids, func(i, j int) bool { return b.Bids[i].Price > b.Bids[j].Price })
	return b
}

// Depth is the result of filling an amount against one side of the book.
type Depth struct {
	Quantity    float64 // total quantity obtained, in Unit
	Price       float64 // volume weighted average price
	Levels      int     // book levels consumed
	Unit        string  // currency unit of Quantity
	FilledShare float64 // filled amount / requested amount
}

// GetDepth walks the taker side of the book and returns the quantity and
// average price obtained for the given amount. The amount is expressed in
// unit ("base" or "quote") and the result in the opposite unit. A partial
// fill is reported through FilledShare < 1.
func (b *Book) GetDepth(amount float64, direction, unit string) (Depth, error) {
	var fills []Level
	switch direction {
	case domain.SideBuy:
		fills = b.Asks
	case domain.SideSell:
		fills = b.Bids
	default:
		return Depth{}, fmt.Errorf("%w: %q", ErrUnknownSide, direction)
	}
	if len(fills) == 0 {
		return Depth{}, fmt.Errorf("%w: %s %s", ErrEmptySide, b.Symbol, direction)
	}

	// Each level contributes addAmount towards the requested amount and
	// addTotal towards the obtained quantity. obQty converts a partial
	// amount back into level quantity.
	var addAmount, addTotal, obQty func(l Level) float64
	var resultUnit string

	switch unit {
	case UnitBase:
		addAmount = func(l Level) float64 { return l.Quantity }
		addTotal = func(l Level) float64 { return l.Quantity * l.Price }
		obQty = func(l Level) float64 { return l.Quantity }
		resultUnit = UnitQuote
	case UnitQuote:
		addAmount = func(l Level) float64 { return l.Quantity * l.Price }
		addTotal = func(l Level) float64 { return l.Quantity }
		obQty = func(l Level) float64 { return l.Quantity / l.Price }
		resultUnit = UnitBase
	default:
		return Depth{}, fmt.Errorf("%w: %q", ErrUnknownUnit, unit)
	}

	var amountFilled, totalQuantity float64
	levels := 0

	for levels < len(fills) && amountFilled < amount {
		l := fills[levels]
		quantity := addAmount(l)

		if amountFilled+quantity >= amount {
			partial := Level{Price: l.Price, Quantity: amount - amountFilled}
			totalQuantity += addTotal(Level{Price: l.Price, Quantity: obQty(partial)})
			amountFilled = amount
		} else {
			amountFilled += quantity
			totalQuantity += addTotal(l)
		}
		levels++
	}

	if amountFilled == 0 || totalQuantity == 0 {
		return Depth{}, fmt.Errorf("%w: %s %s", ErrEmptySide, b.Symbol, direction)
	}

	var price float64
	if direction == domain.SideBuy {
		price = amountFilled / totalQuantity
	} else {
		price = totalQuantity / amountFilled
	}

	return Depth{
		Quantity:    totalQuantity,
		Price:       price,
		Levels:      levels,
		Unit:        resultUnit,
		FilledShare: amountFilled / amount,
	}, nil
}

// TradeDirectionToCurrency returns the side on this book's symbol that
// results in destCurrency.
func (b *Book) TradeDirectionToCurrency(destCurrency string) string {
	return domain.TradeDirectionToCurrency(b.Symbol, destCurrency)
}

// GetDepthForDestinationCurrency fills initAmount of the opposite currency
// towards destCurrency: buys spend quote, sells spend base.
func (b *Book) GetDepthForDestinationCurrency(initAmount float64, destCurrency string) (Depth, error) {
	switch b.TradeDirectionToCurrency(destCurrency) {
	case domain.SideBuy:
		return b.GetDepth(initAmount, domain.SideBuy, UnitQuote)
	case domain.SideSell:
		return b.GetDepth(initAmount, domain.SideSell, UnitBase)
	}
	return Depth{}, fmt.Errorf("%w: %s on %s", domain.ErrSymbolMismatch, destCurrency, b.Symbol)
}

// GetDepthForTradeSide fills startAmount of the side's start currency:
// quote for buys, base for sells.
func (b *Book) GetDepthForTradeSide(startAmount float64, side string) (Depth, error) {
	switch side {
	case domain.SideBuy:
		return b.GetDepth(startAmount, domain.SideBuy, UnitQuote)
	case domain.SideSell:
		return b.GetDepth(startAmount, domain.SideSell, UnitBase)
	}
	return Depth{}, fmt.Errorf("%w: %q", ErrUnknownSide, side)
}
