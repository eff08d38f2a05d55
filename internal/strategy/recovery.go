package strategy

import (
	"fmt"
	"strings"

	"ordex/internal/domain"
)

// closeFillRatio is the share of the start amount that counts as a
// complete fill, absorbing float rounding in cumulative fills.
const closeFillRatio = 0.99999

// Recovery fills a target destination amount in two phases. The first leg
// is priced so a complete fill yields exactly BestDestAmount. If it does
// not fill within MaxBestAmountUpdates polls it is cancelled and the
// remainder is chased with consecutive taker-priced legs, each allowed
// MaxOrderUpdates polls.
type Recovery struct {
	BestDestAmount       float64
	MaxBestAmountUpdates int
	MaxOrderUpdates      int
}

var _ domain.Strategy = (*Recovery)(nil)

// Recovery phases, exposed through the parent order's State.
const (
	StateBestAmount  = "best_amount"
	StateMarketPrice = "market_price"
)

func (s *Recovery) Name() string { return "recovery" }

func (s *Recovery) OnOpen(o *domain.ParentOrder, leg *domain.LegOrder, _ []any) (domain.Command, error) {
	maxUpdates := s.MaxBestAmountUpdates
	if o.State != StateBestAmount {
		maxUpdates = s.MaxOrderUpdates
	}

	if leg.UpdateAttempts >= maxUpdates && leg.Amount-leg.Filled > o.CancelThreshold {
		return domain.Cancel().WithRequest("tickers", leg.Symbol), nil
	}
	return domain.Hold(), nil
}

func (s *Recovery) OnClosed(o *domain.ParentOrder, leg *domain.LegOrder, marketData []any) (domain.Command, error) {
	if o.FilledStartAmount >= o.StartAmount*closeFillRatio {
		if err := o.Finalize(); err != nil {
			return domain.NoneCmd(), err
		}
		return domain.NoneCmd(), nil
	}

	o.SetState(StateMarketPrice)

	// Without a fresh ticker the closed leg is kept in place and the
	// ticker is requested again on the next tick.
	if len(marketData) == 0 || marketData[0] == nil {
		return domain.Hold().WithRequest("tickers", leg.Symbol), nil
	}
	ticker, ok := domain.AsTicker(marketData[0])
	if !ok {
		return domain.Hold().WithRequest("tickers", leg.Symbol), nil
	}
	if ticker.Symbol == "" {
		ticker.Symbol = o.Symbol
	}

	if err := o.RetireActiveLeg(); err != nil {
		return domain.NoneCmd(), err
	}

	op, err := domain.OrderPriceFromTickers(o.StartCurrency, o.DestCurrency, domain.TickerMap{o.Symbol: ticker})
	if err != nil {
		return domain.NoneCmd(), err
	}
	if op.Price <= 0 {
		return domain.NoneCmd(), fmt.Errorf("%w: no taker price for %s", domain.ErrNoTicker, o.Symbol)
	}

	next, err := o.NewLegForRemaining(op.Price)
	if err != nil {
		return domain.NoneCmd(), err
	}

	o.Price = op.Price
	o.SetActiveLeg(next)
	return domain.New(), nil
}

// NewRecoveryOrder creates a parent order that converts startAmount of
// startCurrency into destCurrency, aiming for destAmount and falling back
// to market price. The first leg is priced from the target amounts.
func NewRecoveryOrder(symbol, startCurrency string, startAmount float64, destCurrency string, destAmount, cancelThreshold float64, maxBestAmountUpdates, maxOrderUpdates int) (*domain.ParentOrder, error) {
	if startAmount == 0 || destAmount == 0 {
		return nil, domain.ErrZeroAmounts
	}

	symbol = strings.ToUpper(symbol)
	side := domain.TradeDirectionToCurrency(symbol, destCurrency)
	if side == "" {
		return nil, fmt.Errorf("%w: %s for %s -> %s", domain.ErrSymbolMismatch, symbol, startCurrency, destCurrency)
	}

	price, err := domain.PriceForDestAmount(side, startAmount, destAmount)
	if err != nil {
		return nil, err
	}

	o, err := domain.NewParentOrderFromStartAmount(symbol, startCurrency, startAmount, destCurrency, price, cancelThreshold)
	if err != nil {
		return nil, err
	}

	o.SetState(StateBestAmount)
	o.SetStrategy(&Recovery{
		BestDestAmount:       destAmount,
		MaxBestAmountUpdates: maxBestAmountUpdates,
		MaxOrderUpdates:      maxOrderUpdates,
	})
	return o, nil
}
