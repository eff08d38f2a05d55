// Package execution provides the exchange connectors the engine places
// orders through: a simulated connector driven by scripted responses and a
// live REST connector.
package execution

import (
	"context"
	"errors"

	"ordex/internal/domain"
	"ordex/internal/orderbook"
)

var (
	// ErrNoMoreData is returned by the simulated connector when a script
	// has no further responses.
	ErrNoMoreData = errors.New("no more scripted data")

	// ErrNoOrderScript is returned when a leg has no scripted responses
	// and auto-scripting is disabled.
	ErrNoOrderScript = errors.New("no script for order")

	// ErrTradesMismatch is returned when the amount reconstructed from
	// trades does not match the order's filled amount.
	ErrTradesMismatch = errors.New("trades do not match filled amount")
)

// Market carries the per-symbol precision used to round amounts and
// prices.
type Market struct {
	Symbol          string
	AmountPrecision int
	PricePrecision  int
}

// Connector is the exchange surface the engine drives orders through.
// All network-bound calls take a context.
type Connector interface {
	// PlaceLimitOrder submits the leg and returns the placement
	// response, including open timestamps.
	PlaceLimitOrder(ctx context.Context, leg *domain.LegOrder) (*domain.OrderResponse, error)

	// GetOrderUpdate polls the current state of a placed leg.
	GetOrderUpdate(ctx context.Context, leg *domain.LegOrder) (*domain.OrderResponse, error)

	// CancelOrder requests cancellation and returns the resulting state.
	CancelOrder(ctx context.Context, leg *domain.LegOrder) (*domain.OrderResponse, error)

	// GetTradesResults reconstructs the filled amounts of a leg from its
	// trades. The result is merged into the final order update.
	GetTradesResults(ctx context.Context, leg *domain.LegOrder) (*domain.OrderResponse, error)

	// FetchTickers returns current tickers, optionally restricted to the
	// given symbols.
	FetchTickers(ctx context.Context, symbols ...string) (domain.TickerMap, error)

	// FetchOrderBooks fetches order books for the symbols concurrently.
	FetchOrderBooks(ctx context.Context, symbols []string) (map[string]*orderbook.Book, error)

	// AmountToPrecision truncates an amount to the symbol's precision.
	AmountToPrecision(symbol string, amount float64) float64

	// PriceToPrecision rounds a price to the symbol's precision.
	PriceToPrecision(symbol string, price float64) float64
}
