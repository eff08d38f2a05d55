package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Parent order statuses.
const (
	ParentNew    = "new"
	ParentOpen   = "open"
	ParentClosed = "closed"
)

// DefaultCancelThreshold is the remaining amount below which a leg is not
// worth cancelling and replacing. Usually the market's minimum order
// amount plus commission.
const DefaultCancelThreshold = 0.000001

// Strategy decides what a parent order does next. OnOpen is called after
// every update while the active leg is open, OnClosed once the active leg
// reports closed or canceled. The returned command replaces the order's
// pending command.
type Strategy interface {
	Name() string
	OnOpen(o *ParentOrder, leg *LegOrder, marketData []any) (Command, error)
	OnClosed(o *ParentOrder, leg *LegOrder, marketData []any) (Command, error)
}

// Snapshot is an immutable view of a parent order used to detect changes
// between updates. Comparable with ==.
type Snapshot struct {
	Symbol          string
	Amount          float64
	Price           float64
	Side            string
	Status          string
	State           string
	Filled          float64
	ActiveLegID     string
	ActiveLegStatus string
}

// ParentOrder converts an amount of one currency into another through a
// sequence of exchange legs. It is a state machine driven by exchange
// responses: each update recomputes the cumulative fill and emits the next
// command for the engine.
type ParentOrder struct {
	ID             string
	Timestamp      float64 // creation time, Unix seconds
	TimestampClose float64

	Symbol string
	Amount float64 // total expected fill in base currency
	Price  float64 // price of the current leg
	Side   string

	CancelThreshold float64

	Status string // "new", "open", "closed"
	State  string // strategy dependent, e.g. "fill", "fok", "best_amount"

	FilledDestAmount  float64
	FilledStartAmount float64
	FilledPrice       float64
	Filled            float64 // cumulative fill in base currency

	Command Command

	ActiveLeg *LegOrder
	History   []*LegOrder

	MarketData []any

	StartCurrency string
	DestCurrency  string
	StartAmount   float64
	DestAmount    float64

	Tags []string

	// Changed reports whether the last update moved the order's snapshot.
	Changed          bool
	PreviousSnapshot Snapshot

	strategy Strategy

	prevFilledDest  float64
	prevFilledStart float64
	prevFilled      float64

	forceClose bool
}

// NewParentOrder creates an open parent order with its initial leg ready
// for placement. A cancelThreshold of 0 selects the default.
func NewParentOrder(symbol string, amount, price float64, side string, cancelThreshold float64) (*ParentOrder, error) {
	if price <= 0 {
		return nil, fmt.Errorf("%w: %v", ErrBadPrice, price)
	}
	if cancelThreshold == 0 {
		cancelThreshold = DefaultCancelThreshold
	}

	o := &ParentOrder{
		ID:              uuid.NewString(),
		Timestamp:       unixNow(),
		Symbol:          strings.ToUpper(symbol),
		Amount:          amount,
		Price:           price,
		Side:            strings.ToLower(side),
		CancelThreshold: cancelThreshold,
		Status:          ParentNew,
		Changed:         true,
	}

	leg := NewLegOrder("limit", o.Symbol, amount, o.Side, price)
	o.ActiveLeg = leg
	o.StartCurrency = leg.StartCurrency
	o.DestCurrency = leg.DestCurrency
	o.StartAmount = leg.AmountStart
	o.DestAmount = leg.AmountDest

	o.Status = ParentOpen
	o.SetState("fill")
	o.Command = New()

	return o, nil
}

// NewParentOrderFromStartAmount creates a parent order converting
// amountStart of startCurrency into destCurrency over symbol.
func NewParentOrderFromStartAmount(symbol, startCurrency string, amountStart float64, destCurrency string, price, cancelThreshold float64) (*ParentOrder, error) {
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
	return NewParentOrder(symbol, amount, price, side, cancelThreshold)
}

// SetStrategy attaches the fill strategy. A nil strategy behaves as a
// plain limit order: hold while open, finalize once the leg closes.
func (o *ParentOrder) SetStrategy(s Strategy) {
	o.strategy = s
}

// StrategyName returns the attached strategy's name, or "fill".
func (o *ParentOrder) StrategyName() string {
	if o.strategy == nil {
		return "fill"
	}
	return o.strategy.Name()
}

// SetState changes the order state and stamps it on the active leg.
func (o *ParentOrder) SetState(state string) {
	o.State = state
	if o.ActiveLeg != nil {
		o.ActiveLeg.ParentState = state
	}
}

// SetActiveLeg installs a replacement leg, stamped with the current state.
func (o *ParentOrder) SetActiveLeg(leg *LegOrder) {
	leg.ParentState = o.State
	o.ActiveLeg = leg
}

// NewLegForRemaining creates a leg for the still unfilled part of the
// order at the given price. Returns ErrBadAmount when nothing remains.
func (o *ParentOrder) NewLegForRemaining(price float64) (*LegOrder, error) {
	amount := o.StartAmount - o.FilledStartAmount
	if amount <= 0 {
		return nil, fmt.Errorf("%w: %v", ErrBadAmount, amount)
	}

	leg, err := NewLegFromStartAmount(o.Symbol, o.StartCurrency, amount, o.DestCurrency, price)
	if err != nil {
		return nil, err
	}
	leg.ParentState = o.State
	return leg, nil
}

// RetireActiveLeg moves a closed or canceled active leg into the history
// and folds its fills into the carried-over totals.
func (o *ParentOrder) RetireActiveLeg() error {
	leg := o.ActiveLeg
	if leg == nil {
		return ErrLegNotClosed
	}
	if leg.Status != StatusClosed && leg.Status != StatusCanceled {
		return fmt.Errorf("%w: status %q", ErrLegNotClosed, leg.Status)
	}

	o.History = append(o.History, leg)
	o.ActiveLeg = nil
	o.Command = NoneCmd()

	o.prevFilled = o.Filled
	o.prevFilledStart = o.FilledStartAmount
	o.prevFilledDest = o.FilledDestAmount
	return nil
}

// Close marks the parent order closed and drops the active leg.
func (o *ParentOrder) Close() {
	o.Status = ParentClosed
	o.ActiveLeg = nil
	o.Command = NoneCmd()
	o.TimestampClose = unixNow()
	if o.forceClose {
		o.Tags = append(o.Tags, "#force_close")
	}
	o.forceClose = false
}

// Finalize retires the active leg and closes the order.
func (o *ParentOrder) Finalize() error {
	if err := o.RetireActiveLeg(); err != nil {
		return err
	}
	o.Close()
	return nil
}

// ForceClose requests the order to wind down: an open leg gets a cancel
// command, a leg that never reached the exchange is dropped immediately.
func (o *ParentOrder) ForceClose() {
	switch {
	case o.Status != ParentClosed && o.ActiveLeg != nil && o.ActiveLeg.Status == StatusOpen:
		o.forceClose = true
		o.Command = Cancel()
	case o.ActiveLeg != nil && o.ActiveLeg.Status != StatusClosed && o.ActiveLeg.Status != StatusCanceled:
		o.forceClose = true
		o.Close()
	}
}

// AddTag appends a reporting tag.
func (o *ParentOrder) AddTag(tag string) {
	o.Tags = append(o.Tags, tag)
}

// HasTag reports whether the tag was already added.
func (o *ParentOrder) HasTag(tag string) bool {
	for _, t := range o.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// IsOpen reports whether the order still needs engine attention.
func (o *ParentOrder) IsOpen() bool {
	return o.Status != ParentClosed
}

// Snapshot returns the current immutable view of the order.
func (o *ParentOrder) Snapshot() Snapshot {
	s := Snapshot{
		Symbol: o.Symbol,
		Amount: o.Amount,
		Price:  o.Price,
		Side:   o.Side,
		Status: o.Status,
		State:  o.State,
		Filled: o.Filled,
	}
	if o.ActiveLeg != nil {
		s.ActiveLegID = o.ActiveLeg.ID
		s.ActiveLegStatus = o.ActiveLeg.Status
	}
	return s
}

// UpdateFromExchange applies an exchange response for the active leg,
// recomputes the cumulative fill and returns the next command. Market data
// resolved for the order's previous data requests is passed through to the
// strategy.
//
// A sparse or nil response still counts as an update attempt.
func (o *ParentOrder) UpdateFromExchange(resp *OrderResponse, marketData []any) (Command, error) {
	before := o.Snapshot()

	o.ActiveLeg.ApplyResponse(resp)
	o.MarketData = marketData

	o.FilledDestAmount = o.prevFilledDest + o.ActiveLeg.FilledDestAmount
	o.FilledStartAmount = o.prevFilledStart + o.ActiveLeg.FilledStartAmount

	if o.FilledDestAmount != 0 && o.FilledStartAmount != 0 {
		if o.Side == SideBuy {
			o.FilledPrice = o.FilledStartAmount / o.FilledDestAmount
		} else {
			o.FilledPrice = o.FilledDestAmount / o.FilledStartAmount
		}
	}

	o.Filled = o.prevFilled + o.ActiveLeg.Filled

	after := o.Snapshot()
	o.Changed = before != after
	if o.Changed {
		o.PreviousSnapshot = before
	}

	switch o.ActiveLeg.Status {
	case StatusOpen:
		if o.forceClose {
			o.Command = Cancel()
			return o.Command, nil
		}
		o.Command = Hold()
		if o.strategy != nil {
			next, err := o.strategy.OnOpen(o, o.ActiveLeg, marketData)
			if err != nil {
				return o.Command, err
			}
			o.Command = next
		}
		return o.Command, nil

	case StatusClosed, StatusCanceled:
		o.Command = NoneCmd()
		if o.strategy == nil {
			if err := o.Finalize(); err != nil {
				return o.Command, err
			}
			return o.Command, nil
		}
		next, err := o.strategy.OnClosed(o, o.ActiveLeg, marketData)
		if err != nil {
			return o.Command, err
		}
		o.Command = next
		return o.Command, nil
	}

	return o.Command, nil
}

func (o *ParentOrder) String() string {
	return fmt.Sprintf("ParentOrder %s -%s-> %s filled %v/%v",
		o.StartCurrency, o.Side, o.DestCurrency, o.Filled, o.Amount)
}

func unixNow() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}
