package domain

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Leg order statuses as reported by the exchange.
const (
	StatusOpen     = "open"
	StatusClosed   = "closed"
	StatusCanceled = "canceled"
)

// LegOrder is a single limit order on the exchange. A parent order fills
// itself through one or more consecutive legs.
type LegOrder struct {
	ID         string // exchange order id, empty until placed
	InternalID string // engine-side id, assigned on creation

	Datetime           string
	Timestamp          int64 // placing timestamp, Unix milliseconds
	LastTradeTimestamp int64

	Status string // "", "open", "closed", "canceled"

	TimestampOpen   OrderStamps
	TimestampClosed OrderStamps

	Symbol string
	Type   string // "limit"
	Side   string // "buy" or "sell"

	Amount    float64 // ordered amount of base currency
	InitPrice float64 // price at creation
	Price     float64 // placed price, may be refined by the exchange

	Fee    *Fee
	Trades []Trade
	Fees   []Fee

	Filled    float64 // filled amount of base currency
	Remaining float64
	Cost      float64 // filled amount of quote currency

	AmountStart float64 // ordered amount in start currency
	AmountDest  float64 // expected amount in dest currency

	UpdateAttempts int // exchange updates applied to this leg

	FilledStartAmount float64
	FilledDestAmount  float64

	StartCurrency string
	DestCurrency  string

	ParentState string // state of the owning parent order when this leg was created
}

// NewLegOrder creates a leg order. A zero price leaves the start and dest
// amounts unset.
func NewLegOrder(ordType, symbol string, amount float64, side string, price float64) *LegOrder {
	symbol = strings.ToUpper(symbol)
	side = strings.ToLower(side)
	base, quote := SplitSymbol(symbol)

	l := &LegOrder{
		InternalID: uuid.NewString(),
		Symbol:     symbol,
		Type:       ordType,
		Side:       side,
		Amount:     amount,
		InitPrice:  price,
		Price:      price,
	}

	if side == SideBuy {
		l.StartCurrency, l.DestCurrency = quote, base
	} else {
		l.StartCurrency, l.DestCurrency = base, quote
	}

	if price != 0 {
		if side == SideSell {
			l.AmountStart = amount
			l.AmountDest = amount * price
		} else if side == SideBuy {
			l.AmountStart = amount * price
			l.AmountDest = amount
		}
	}
	return l
}

// NewLegFromStartAmount creates a limit leg converting amountStart of
// startCurrency into destCurrency over the given symbol.
func NewLegFromStartAmount(symbol, startCurrency string, amountStart float64, destCurrency string, price float64) (*LegOrder, error) {
	side := OrderSide(startCurrency, destCurrency, strings.ToUpper(symbol))
	if side == "" {
		return nil, fmt.Errorf("%w: %s for %s -> %s", ErrSymbolMismatch, symbol, startCurrency, destCurrency)
	}
	if price <= 0 {
		return nil, fmt.Errorf("%w: symbol %s side %s price %v", ErrBadPrice, symbol, side, price)
	}

	amount := amountStart
	if side == SideBuy {
		amount = amountStart / price
	}
	return NewLegOrder("limit", symbol, amount, side, price), nil
}

// ApplyResponse overlays the present fields of an exchange response onto
// the leg and recomputes the filled start/dest amounts. The update counter
// is incremented on every call, including nil responses, to keep it in
// line with the number of exchange requests made.
func (l *LegOrder) ApplyResponse(resp *OrderResponse) {
	if resp != nil {
		if resp.ID != "" {
			l.ID = resp.ID
		}
		if resp.Datetime != "" {
			l.Datetime = resp.Datetime
		}
		if resp.Timestamp != 0 {
			l.Timestamp = resp.Timestamp
		}
		if resp.LastTradeTimestamp != 0 {
			l.LastTradeTimestamp = resp.LastTradeTimestamp
		}
		if resp.Status != "" {
			l.Status = resp.Status
		}
		if resp.Amount != nil {
			l.Amount = *resp.Amount
		}
		if resp.Filled != nil {
			l.Filled = *resp.Filled
		}
		if resp.Remaining != nil {
			l.Remaining = *resp.Remaining
		}
		if resp.Cost != nil {
			l.Cost = *resp.Cost
		}
		if resp.Price != nil {
			l.Price = *resp.Price
		}
		if resp.Trades != nil {
			l.Trades = resp.Trades
		}
		if resp.Fee != nil {
			l.Fee = resp.Fee
		}
		if resp.Fees != nil {
			l.Fees = resp.Fees
		}
		if resp.TimestampOpen != nil {
			l.TimestampOpen = *resp.TimestampOpen
		}
		if resp.TimestampClosed != nil {
			l.TimestampClosed = *resp.TimestampClosed
		}
	}

	if l.Side == SideBuy {
		l.FilledStartAmount = l.Cost
		l.FilledDestAmount = l.Filled
	} else if l.Side == SideSell {
		l.FilledStartAmount = l.Filled
		l.FilledDestAmount = l.Cost
	}

	l.UpdateAttempts++
}

func (l *LegOrder) String() string {
	return fmt.Sprintf("LegOrder %s. %s -%s-> %s filled %v/%v",
		l.ID, l.StartCurrency, l.Side, l.DestCurrency, l.Filled, l.Amount)
}
