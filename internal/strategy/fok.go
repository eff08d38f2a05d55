// Package strategy implements the fill strategies a parent order can run:
// fill-or-kill variants and two-phase recovery.
package strategy

import (
	"time"

	"ordex/internal/domain"
)

// Tags attached to orders for reporting.
const (
	TagTimeout        = "#timeout"
	TagBelowThreshold = "#below_threshold"
)

// FOK cancels the active leg once it has been polled MaxOrderUpdates
// times without filling, or after TimeToCancel seconds when that is set.
// A leg whose remaining amount is below the order's cancel threshold is
// left to fill.
type FOK struct {
	MaxOrderUpdates int
	TimeToCancel    float64 // seconds, 0 disables the time check

	// TimeFromCreate is the age of the active leg measured at the last
	// OnOpen call.
	TimeFromCreate float64
}

var _ domain.Strategy = (*FOK)(nil)

func (s *FOK) Name() string { return "fok" }

func (s *FOK) OnOpen(o *domain.ParentOrder, leg *domain.LegOrder, _ []any) (domain.Command, error) {
	now := unixNow()
	received := leg.TimestampOpen.RequestReceived
	if received == 0 {
		received = now
	}
	s.TimeFromCreate = now - received

	if s.TimeToCancel > 0 {
		if s.TimeFromCreate >= s.TimeToCancel && leg.Amount-leg.Filled > o.CancelThreshold {
			o.AddTag(TagTimeout)
			return domain.Cancel(), nil
		}
		return domain.Hold(), nil
	}

	if leg.UpdateAttempts >= s.MaxOrderUpdates && leg.Amount-leg.Filled > o.CancelThreshold {
		return domain.Cancel(), nil
	}
	return domain.Hold(), nil
}

func (s *FOK) OnClosed(o *domain.ParentOrder, _ *domain.LegOrder, _ []any) (domain.Command, error) {
	if err := o.Finalize(); err != nil {
		return domain.NoneCmd(), err
	}
	return domain.NoneCmd(), nil
}

// NewFOKOrder creates a parent order with a FOK strategy attached.
func NewFOKOrder(symbol string, amount, price float64, side string, cancelThreshold float64, maxOrderUpdates int, timeToCancel float64) (*domain.ParentOrder, error) {
	o, err := domain.NewParentOrder(symbol, amount, price, side, cancelThreshold)
	if err != nil {
		return nil, err
	}
	o.SetState("fok")
	o.SetStrategy(&FOK{MaxOrderUpdates: maxOrderUpdates, TimeToCancel: timeToCancel})
	return o, nil
}

// NewFOKOrderFromStartAmount creates a FOK order converting amountStart
// of startCurrency into destCurrency.
func NewFOKOrderFromStartAmount(symbol, startCurrency string, amountStart float64, destCurrency string, price, cancelThreshold float64, maxOrderUpdates int, timeToCancel float64) (*domain.ParentOrder, error) {
	o, err := domain.NewParentOrderFromStartAmount(symbol, startCurrency, amountStart, destCurrency, price, cancelThreshold)
	if err != nil {
		return nil, err
	}
	o.SetState("fok")
	o.SetStrategy(&FOK{MaxOrderUpdates: maxOrderUpdates, TimeToCancel: timeToCancel})
	return o, nil
}

// FOKTakerThreshold is a FOK order that additionally watches the taker
// price: once the leg has been polled ThresholdCheckAfterUpdates times it
// starts requesting tickers, and cancels when the taker price has moved
// against the order by more than TakerPriceThreshold.
type FOKTakerThreshold struct {
	FOK

	// TakerPriceThreshold is the relative price difference that triggers
	// cancellation. Negative values mean the market moved against the
	// order.
	TakerPriceThreshold float64

	// ThresholdCheckAfterUpdates is how many leg updates pass before the
	// price check starts.
	ThresholdCheckAfterUpdates int
}

var _ domain.Strategy = (*FOKTakerThreshold)(nil)

func (s *FOKTakerThreshold) Name() string { return "fok_taker_threshold" }

func (s *FOKTakerThreshold) OnOpen(o *domain.ParentOrder, leg *domain.LegOrder, marketData []any) (domain.Command, error) {
	cmd, err := s.FOK.OnOpen(o, leg, marketData)
	if err != nil {
		return cmd, err
	}
	if cmd.Action == domain.ActionCancel {
		return domain.Cancel(), nil
	}

	if leg.UpdateAttempts <= s.ThresholdCheckAfterUpdates {
		return domain.Hold(), nil
	}

	// From here on every hold carries a ticker request. On the first
	// pass there is no market data yet.
	holdTickers := domain.Hold().WithRequest("tickers", o.Symbol)

	if len(marketData) == 0 || marketData[0] == nil {
		return holdTickers, nil
	}
	ticker, ok := domain.AsTicker(marketData[0])
	if !ok {
		return holdTickers, nil
	}
	if ticker.Symbol == "" {
		ticker.Symbol = o.Symbol
	}

	op, err := domain.OrderPriceFromTickers(o.StartCurrency, o.DestCurrency, domain.TickerMap{o.Symbol: ticker})
	if err != nil || op.Price <= 0 {
		return holdTickers, nil
	}

	diff, err := domain.RelativeTargetPriceDifference(o.Side, leg.Price, op.Price)
	if err != nil {
		return holdTickers, nil
	}

	if diff <= s.TakerPriceThreshold && leg.Amount-leg.Filled > o.CancelThreshold {
		if !o.HasTag(TagBelowThreshold) {
			o.AddTag(TagBelowThreshold)
		}
		return domain.Cancel(), nil
	}
	return holdTickers, nil
}

// NewFOKTakerThresholdOrder creates a parent order with a price-watching
// FOK strategy attached.
func NewFOKTakerThresholdOrder(symbol string, amount, price float64, side string, cancelThreshold float64, maxOrderUpdates int, timeToCancel, takerPriceThreshold float64, thresholdCheckAfterUpdates int) (*domain.ParentOrder, error) {
	o, err := domain.NewParentOrder(symbol, amount, price, side, cancelThreshold)
	if err != nil {
		return nil, err
	}
	o.SetState("fok")
	o.SetStrategy(&FOKTakerThreshold{
		FOK:                        FOK{MaxOrderUpdates: maxOrderUpdates, TimeToCancel: timeToCancel},
		TakerPriceThreshold:        takerPriceThreshold,
		ThresholdCheckAfterUpdates: thresholdCheckAfterUpdates,
	})
	return o, nil
}

func unixNow() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}
