package execution

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"ordex/internal/domain"
	"ordex/internal/infra"
	"ordex/internal/orderbook"
)

// bookSynthQty is the quantity placed at the single level of an order book
// synthesized from a ticker.
const bookSynthQty = 99999999

// orderScript holds the scripted exchange responses for one leg: the
// placement response and a sequence of update responses consumed one per
// poll. Cancelling rewinds the sequence by one update.
type orderScript struct {
	create   *domain.OrderResponse
	updates  []*domain.OrderResponse
	idx      int
	canceled bool
}

// SimConnector is an exchange stand-in driven by scripted responses. Legs
// without an explicit script get a linear fill schedule of
// DefaultUpdatesToFill updates. Ticker fetches walk a scripted sequence.
type SimConnector struct {
	mu sync.Mutex

	markets markets
	scripts map[string]*orderScript // keyed by leg InternalID

	tickerSeq   []domain.TickerMap
	tickerIdx   int
	lastTickers domain.TickerMap

	books   map[string][]*orderbook.Book
	bookIdx map[string]int

	// UseLastTickers repeats the final scripted tickers instead of
	// failing once the sequence is exhausted.
	UseLastTickers bool

	// DefaultUpdatesToFill is the number of updates an auto-scripted leg
	// takes to fill completely. Zero or negative disables auto-scripting.
	DefaultUpdatesToFill int

	// DefaultZeroFillUpdates is the number of leading updates of an
	// auto-scripted leg that report a zero fill.
	DefaultZeroFillUpdates int

	// Throttle, when set, accounts every simulated request.
	Throttle *infra.Throttle
}

var _ Connector = (*SimConnector)(nil)

// NewSimConnector creates a simulated connector with auto-scripting of
// ten updates per leg.
func NewSimConnector() *SimConnector {
	return &SimConnector{
		markets:              make(markets),
		scripts:              make(map[string]*orderScript),
		books:                make(map[string][]*orderbook.Book),
		bookIdx:              make(map[string]int),
		DefaultUpdatesToFill: 10,
	}
}

// SetMarkets installs per-symbol precision definitions.
func (c *SimConnector) SetMarkets(ms []Market) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range ms {
		c.markets[m.Symbol] = m
	}
}

// SetTickerSequence installs the ticker snapshots returned by consecutive
// FetchTickers calls.
func (c *SimConnector) SetTickerSequence(seq []domain.TickerMap) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tickerSeq = seq
	c.tickerIdx = 0
}

// AddOrderBooks installs scripted order books for a symbol, one per
// FetchOrderBooks call.
func (c *SimConnector) AddOrderBooks(symbol string, books []*orderbook.Book) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.books[symbol] = books
}

// AddOrderScript scripts a linear fill for the leg: updatesToFill updates
// reach a complete fill, the first zeroFillUpdates of them report nothing
// filled.
func (c *SimConnector) AddOrderScript(leg *domain.LegOrder, updatesToFill, zeroFillUpdates int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scripts[leg.InternalID] = c.buildScript(leg, updatesToFill, zeroFillUpdates)
}

// HasOrderScript reports whether the leg already has scripted responses.
func (c *SimConnector) HasOrderScript(leg *domain.LegOrder) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.scripts[leg.InternalID]
	return ok
}

func (c *SimConnector) buildScript(leg *domain.LegOrder, updatesToFill, zeroFillUpdates int) *orderScript {
	amount := amountToPrecision(leg.Amount, c.markets.amountPrecision(leg.Symbol))
	price := priceToPrecision(leg.Price, c.markets.pricePrecision(leg.Symbol))
	id := uuid.NewString()

	s := &orderScript{
		create: &domain.OrderResponse{
			ID:        id,
			Status:    domain.StatusOpen,
			Amount:    domain.Float(amount),
			Filled:    domain.Float(0),
			Price:     domain.Float(price),
			Timestamp: time.Now().UnixMilli(),
		},
	}

	fillUpdates := updatesToFill - zeroFillUpdates
	var trades []domain.Trade

	for i := 0; i < updatesToFill; i++ {
		u := &domain.OrderResponse{Status: domain.StatusOpen}

		if i < zeroFillUpdates {
			u.Filled = domain.Float(0)
			u.Cost = domain.Float(0)
		} else {
			filled := amount * float64(i-zeroFillUpdates+1) / float64(fillUpdates)
			u.Filled = domain.Float(filled)
			u.Cost = domain.Float(filled * price)

			trades = append(trades, domain.Trade{
				OrderID: id,
				Amount:  amount / float64(fillUpdates),
				Price:   price,
				Cost:    amount / float64(fillUpdates) * price,
			})
		}

		u.Trades = append([]domain.Trade(nil), trades...)

		if i == updatesToFill-1 {
			if fillUpdates > 0 {
				u.Status = domain.StatusClosed
				u.Filled = domain.Float(amount)
				u.Cost = domain.Float(amount * price)
			} else {
				u.Filled = domain.Float(0)
				u.Cost = domain.Float(0)
			}
		}

		s.updates = append(s.updates, u)
	}

	return s
}

func (c *SimConnector) script(leg *domain.LegOrder) (*orderScript, error) {
	s, ok := c.scripts[leg.InternalID]
	if ok {
		return s, nil
	}
	if c.DefaultUpdatesToFill <= 0 {
		return nil, fmt.Errorf("%w: leg %s", ErrNoOrderScript, leg.InternalID)
	}
	s = c.buildScript(leg, c.DefaultUpdatesToFill, c.DefaultZeroFillUpdates)
	c.scripts[leg.InternalID] = s
	return s, nil
}

// PlaceLimitOrder returns the scripted placement response with open
// timestamps attached.
func (c *SimConnector) PlaceLimitOrder(_ context.Context, leg *domain.LegOrder) (*domain.OrderResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.count("create_order")

	s, err := c.script(leg)
	if err != nil {
		return nil, err
	}

	now := unixNow()
	resp := *s.create
	resp.TimestampOpen = &domain.OrderStamps{
		RequestPlaced:   now,
		RequestReceived: now,
		FromExchange:    now,
	}
	if resp.Status == domain.StatusClosed || resp.Status == domain.StatusCanceled {
		resp.TimestampClosed = resp.TimestampOpen
	}
	return &resp, nil
}

// GetOrderUpdate returns the next scripted update. A cancelled leg stops
// advancing and reports the cancelled state instead.
func (c *SimConnector) GetOrderUpdate(_ context.Context, leg *domain.LegOrder) (*domain.OrderResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.count("fetch_order")

	s, err := c.script(leg)
	if err != nil {
		return nil, err
	}

	if s.idx >= len(s.updates) {
		return nil, fmt.Errorf("%w: %d updates consumed", ErrNoMoreData, len(s.updates))
	}

	var resp domain.OrderResponse
	if s.canceled {
		resp = domain.OrderResponse{
			Status: domain.StatusCanceled,
			Filled: domain.Float(leg.Filled),
		}
	} else {
		resp = *s.updates[s.idx]
		s.idx++
	}

	if resp.Status == domain.StatusClosed || resp.Status == domain.StatusCanceled {
		now := unixNow()
		resp.TimestampClosed = &domain.OrderStamps{
			RequestPlaced:   now,
			RequestReceived: now,
			FromExchange:    now,
		}
	}
	return &resp, nil
}

// CancelOrder marks the script cancelled. The first cancel rewinds the
// update sequence by one, so the fill already reported in the pending
// update is not lost.
func (c *SimConnector) CancelOrder(_ context.Context, leg *domain.LegOrder) (*domain.OrderResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.count("cancel_order")

	s, ok := c.scripts[leg.InternalID]
	if !ok {
		return nil, fmt.Errorf("%w: leg %s", ErrNoOrderScript, leg.InternalID)
	}

	if !s.canceled && s.idx > 0 {
		s.idx--
	}
	s.canceled = true

	return &domain.OrderResponse{
		Status: domain.StatusCanceled,
		Filled: domain.Float(leg.Filled),
	}, nil
}

// GetTradesResults rebuilds the filled amounts from the leg's trades, or
// from the scripted trades at the current position when the leg carries
// none.
func (c *SimConnector) GetTradesResults(_ context.Context, leg *domain.LegOrder) (*domain.OrderResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.count("fetch_my_trades")

	trades := leg.Trades
	if len(trades) == 0 {
		s, ok := c.scripts[leg.InternalID]
		if !ok {
			return nil, fmt.Errorf("%w: leg %s", ErrNoOrderScript, leg.InternalID)
		}
		idx := s.idx
		if idx >= len(s.updates) {
			idx = len(s.updates) - 1
		}
		trades = s.updates[idx].Trades
	}

	amount, cost, price, err := domain.TradeTotals(trades)
	if err != nil {
		return nil, fmt.Errorf("%w: zero fill from trades", ErrTradesMismatch)
	}

	pp := c.markets.pricePrecision(leg.Symbol)
	return &domain.OrderResponse{
		Trades: trades,
		Filled: domain.Float(amount),
		Cost:   domain.Float(priceToPrecision(cost, pp)),
		Price:  domain.Float(priceToPrecision(price, pp)),
	}, nil
}

// FetchTickers returns the next scripted ticker snapshot, filtered to the
// given symbols when any are named.
func (c *SimConnector) FetchTickers(_ context.Context, symbols ...string) (domain.TickerMap, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.count("fetch_tickers")

	var tickers domain.TickerMap
	switch {
	case c.tickerIdx < len(c.tickerSeq):
		tickers = c.tickerSeq[c.tickerIdx]
		c.tickerIdx++
	case c.UseLastTickers && len(c.tickerSeq) > 0:
		tickers = c.tickerSeq[len(c.tickerSeq)-1]
	default:
		return nil, fmt.Errorf("%w: %d ticker snapshots consumed", ErrNoMoreData, len(c.tickerSeq))
	}

	c.lastTickers = tickers

	if len(symbols) == 0 {
		return tickers, nil
	}
	out := make(domain.TickerMap, len(symbols))
	for _, s := range symbols {
		if t, ok := tickers[s]; ok {
			out[s] = t
		}
	}
	return out, nil
}

// FetchOrderBooks returns scripted books, or books synthesized from the
// last fetched tickers with one deep level per side. Symbols are fetched
// concurrently to mirror the live connector.
func (c *SimConnector) FetchOrderBooks(ctx context.Context, symbols []string) (map[string]*orderbook.Book, error) {
	out := make(map[string]*orderbook.Book, len(symbols))
	var (
		outMu sync.Mutex
		wg    sync.WaitGroup
		errMu sync.Mutex
		first error
	)

	for _, symbol := range symbols {
		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			b, err := c.fetchOrderBook(symbol)
			if err != nil {
				errMu.Lock()
				if first == nil {
					first = err
				}
				errMu.Unlock()
				return
			}
			outMu.Lock()
			out[symbol] = b
			outMu.Unlock()
		}(symbol)
	}
	wg.Wait()

	if first != nil {
		return nil, first
	}
	return out, nil
}

func (c *SimConnector) fetchOrderBook(symbol string) (*orderbook.Book, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.count("fetch_order_book")

	if seq, ok := c.books[symbol]; ok {
		idx := c.bookIdx[symbol]
		if idx >= len(seq) {
			return nil, fmt.Errorf("%w: %d order books consumed for %s", ErrNoMoreData, len(seq), symbol)
		}
		c.bookIdx[symbol] = idx + 1
		return seq[idx], nil
	}

	t, ok := c.lastTickers[symbol]
	if !ok {
		return nil, fmt.Errorf("%w: no ticker to build book for %s", ErrNoMoreData, symbol)
	}
	return orderbook.NewBook(symbol,
		[][2]float64{{t.Ask, bookSynthQty}},
		[][2]float64{{t.Bid, bookSynthQty}},
	), nil
}

// AmountToPrecision truncates the amount to the symbol's precision.
func (c *SimConnector) AmountToPrecision(symbol string, amount float64) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return amountToPrecision(amount, c.markets.amountPrecision(symbol))
}

// PriceToPrecision rounds the price to the symbol's precision.
func (c *SimConnector) PriceToPrecision(symbol string, price float64) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return priceToPrecision(price, c.markets.pricePrecision(symbol))
}

func (c *SimConnector) count(kind string) {
	if c.Throttle != nil {
		c.Throttle.AddRequestNow(kind)
	}
}

func unixNow() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}
