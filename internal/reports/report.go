// Package reports builds flat report views of orders for persistence and
// publishing.
package reports

import (
	"strings"

	"ordex/internal/domain"
)

// OrderReport is a flat snapshot of a parent order at reporting time.
type OrderReport struct {
	OrderID        string  `json:"order_id"`
	Timestamp      float64 `json:"timestamp"`
	TimestampClose float64 `json:"timestamp_close"`

	Symbol string  `json:"symbol"`
	Side   string  `json:"side"`
	Amount float64 `json:"amount"`
	Price  float64 `json:"price"`

	Status string `json:"status"`
	State  string `json:"state"`

	Strategy string `json:"strategy"`

	StartCurrency string  `json:"start_currency"`
	DestCurrency  string  `json:"dest_currency"`
	StartAmount   float64 `json:"start_amount"`
	DestAmount    float64 `json:"dest_amount"`

	Filled            float64 `json:"filled"`
	FilledStartAmount float64 `json:"filled_start_amount"`
	FilledDestAmount  float64 `json:"filled_dest_amount"`
	FilledPrice       float64 `json:"filled_price"`

	Legs int    `json:"legs"`
	Tags string `json:"tags"`

	Fees map[string]float64 `json:"fees"`

	Supplementary map[string]any `json:"supplementary,omitempty"`
}

// LegReport is a flat snapshot of one retired leg.
type LegReport struct {
	OrderID    string `json:"order_id"`
	LegID      string `json:"leg_id"`
	InternalID string `json:"internal_id"`

	Symbol string `json:"symbol"`
	Type   string `json:"type"`
	Side   string `json:"side"`

	Status      string `json:"status"`
	ParentState string `json:"parent_state"`

	Amount    float64 `json:"amount"`
	InitPrice float64 `json:"init_price"`
	Price     float64 `json:"price"`

	Filled float64 `json:"filled"`
	Cost   float64 `json:"cost"`

	FilledStartAmount float64 `json:"filled_start_amount"`
	FilledDestAmount  float64 `json:"filled_dest_amount"`

	UpdateAttempts int `json:"update_attempts"`
	Trades         int `json:"trades"`

	TimestampOpen   float64 `json:"timestamp_open"`
	TimestampClosed float64 `json:"timestamp_closed"`
}

// FromOrder builds the report view of a parent order. Supplementary data
// from the engine may be nil.
func FromOrder(o *domain.ParentOrder, supplementary map[string]any) OrderReport {
	var trades []domain.Trade
	for _, l := range o.History {
		trades = append(trades, l.Trades...)
	}

	return OrderReport{
		OrderID:           o.ID,
		Timestamp:         o.Timestamp,
		TimestampClose:    o.TimestampClose,
		Symbol:            o.Symbol,
		Side:              o.Side,
		Amount:            o.Amount,
		Price:             o.Price,
		Status:            o.Status,
		State:             o.State,
		Strategy:          o.StrategyName(),
		StartCurrency:     o.StartCurrency,
		DestCurrency:      o.DestCurrency,
		StartAmount:       o.StartAmount,
		DestAmount:        o.DestAmount,
		Filled:            o.Filled,
		FilledStartAmount: o.FilledStartAmount,
		FilledDestAmount:  o.FilledDestAmount,
		FilledPrice:       o.FilledPrice,
		Legs:              len(o.History),
		Tags:              strings.Join(o.Tags, " "),
		Fees:              domain.FeesFromTrades(trades, o.StartCurrency, o.DestCurrency),
		Supplementary:     supplementary,
	}
}

// FromLegs builds reports for all retired legs of an order.
func FromLegs(o *domain.ParentOrder) []LegReport {
	out := make([]LegReport, 0, len(o.History))
	for _, l := range o.History {
		out = append(out, LegReport{
			OrderID:           o.ID,
			LegID:             l.ID,
			InternalID:        l.InternalID,
			Symbol:            l.Symbol,
			Type:              l.Type,
			Side:              l.Side,
			Status:            l.Status,
			ParentState:       l.ParentState,
			Amount:            l.Amount,
			InitPrice:         l.InitPrice,
			Price:             l.Price,
			Filled:            l.Filled,
			Cost:              l.Cost,
			FilledStartAmount: l.FilledStartAmount,
			FilledDestAmount:  l.FilledDestAmount,
			UpdateAttempts:    l.UpdateAttempts,
			Trades:            len(l.Trades),
			TimestampOpen:     l.TimestampOpen.RequestReceived,
			TimestampClosed:   l.TimestampClosed.RequestReceived,
		})
	}
	return out
}
