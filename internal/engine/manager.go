// Package engine drives parent orders against an exchange connector. Each
// tick it executes every open order's pending command, resolves its data
// requests and feeds the exchange response back into the order.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"ordex/internal/domain"
	"ordex/internal/execution"
)

// Manager owns a set of parent orders and proceeds them tick by tick.
// Not safe for concurrent use; drive it from a single loop.
type Manager struct {
	conn execution.Connector
	log  *slog.Logger

	Orders []*domain.ParentOrder

	// MaxOrderUpdateAttempts bounds the retries of a single placement,
	// poll or trades request.
	MaxOrderUpdateAttempts int

	// MaxCancelAttempts bounds the cancel-and-verify loop. Exhausting it
	// leaves the exchange state unknown and aborts the tick.
	MaxCancelAttempts int

	// RequestSleep is the pause between retries of a failed request.
	RequestSleep time.Duration

	// RequestTrades enables reconciling closed legs against their
	// trades before the final update is applied.
	RequestTrades bool

	// DataForOrders is externally supplied data for order data requests,
	// keyed by request key. Cleared after every tick.
	DataForOrders map[string]any

	// Supplementary holds caller data attached to orders for reporting,
	// keyed by order ID.
	Supplementary map[string]map[string]any

	closedLastTick []*domain.ParentOrder
}

// NewManager creates a manager over the connector. Attempt budgets must be
// positive.
func NewManager(conn execution.Connector, log *slog.Logger, maxOrderUpdateAttempts, maxCancelAttempts int) (*Manager, error) {
	if maxOrderUpdateAttempts <= 0 {
		return nil, fmt.Errorf("bad max order update attempts %d", maxOrderUpdateAttempts)
	}
	if maxCancelAttempts <= 0 {
		return nil, fmt.Errorf("bad max cancel attempts %d", maxCancelAttempts)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		conn:                   conn,
		log:                    log,
		MaxOrderUpdateAttempts: maxOrderUpdateAttempts,
		MaxCancelAttempts:      maxCancelAttempts,
		RequestTrades:          true,
		DataForOrders:          make(map[string]any),
		Supplementary:          make(map[string]map[string]any),
	}, nil
}

// AddOrder registers a parent order for processing.
func (m *Manager) AddOrder(o *domain.ParentOrder) {
	m.Orders = append(m.Orders, o)
}

// SetOrderSupplementaryData attaches reporting data to an order,
// replacing anything stored earlier.
func (m *Manager) SetOrderSupplementaryData(o *domain.ParentOrder, data map[string]any) {
	cp := make(map[string]any, len(data))
	for k, v := range data {
		cp[k] = v
	}
	m.Supplementary[o.ID] = cp
}

// OpenOrders returns the orders that still need processing.
func (m *Manager) OpenOrders() []*domain.ParentOrder {
	var open []*domain.ParentOrder
	for _, o := range m.Orders {
		if o.IsOpen() {
			open = append(open, o)
		}
	}
	return open
}

// HaveOpenOrders reports whether any order is still open.
func (m *Manager) HaveOpenOrders() bool {
	for _, o := range m.Orders {
		if o.IsOpen() {
			return true
		}
	}
	return false
}

// ClosedOrders returns the orders that closed during the last tick.
func (m *Manager) ClosedOrders() []*domain.ParentOrder {
	return m.closedLastTick
}

// PendingActionsCount returns how many open orders are waiting to place or
// cancel a leg.
func (m *Manager) PendingActionsCount() int {
	n := 0
	for _, o := range m.Orders {
		if !o.IsOpen() || o.ActiveLeg == nil {
			continue
		}
		if a := o.Command.Action; a == domain.ActionNew || a == domain.ActionCancel {
			n++
		}
	}
	return n
}

// ProceedOrders runs one tick over all open orders: executes each order's
// pending command, resolves its data requests and applies the resulting
// exchange response. Externally supplied order data is consumed by the
// tick and cleared afterwards.
//
// The only fatal condition is an exhausted cancel budget, which leaves an
// exchange order in an unknown state.
func (m *Manager) ProceedOrders(ctx context.Context) error {
	m.closedLastTick = nil

	for _, order := range m.Orders {
		if !order.IsOpen() || order.ActiveLeg == nil {
			continue
		}

		if order.Changed {
			m.log.Info("order status",
				slog.String("order", order.ID),
				slog.String("status", order.String()))
		}

		var err error
		switch order.Command.Action {
		case domain.ActionNew:
			err = m.placeLeg(ctx, order)
		case domain.ActionHold:
			err = m.pollLeg(ctx, order)
		case domain.ActionCancel:
			err = m.cancelLeg(ctx, order)
		default:
			err = fmt.Errorf("%w: %q", domain.ErrUnknownAction, order.Command.Action)
		}
		if err != nil {
			return err
		}

		if order.Status != domain.ParentOpen {
			m.log.Info("order closed",
				slog.String("order", order.ID),
				slog.String("state", order.State),
				slog.Float64("filled", order.Filled),
				slog.Float64("amount", order.Amount))
			m.closedLastTick = append(m.closedLastTick, order)
		}
	}

	m.DataForOrders = make(map[string]any)
	return nil
}

// placeLeg submits the order's active leg. A placement that exhausts its
// retries closes the whole order with whatever was filled so far.
func (m *Manager) placeLeg(ctx context.Context, order *domain.ParentOrder) error {
	leg := order.ActiveLeg
	if leg.Status == domain.StatusOpen {
		return fmt.Errorf("%w: order %s", domain.ErrLegAlreadyOpen, order.ID)
	}

	m.log.Info("creating leg",
		slog.String("order", order.ID),
		slog.String("start", order.StartCurrency),
		slog.String("side", order.Side),
		slog.String("dest", order.DestCurrency),
		slog.Float64("amount", leg.Amount),
		slog.Float64("price", leg.Price))

	requests := order.Command.Requests

	resp := m.withRetries(ctx, "create", order.ID, func() (*domain.OrderResponse, error) {
		return m.conn.PlaceLimitOrder(ctx, leg)
	})
	if resp == nil || resp.ID == "" {
		m.log.Error("could not create leg, closing order", slog.String("order", order.ID))
		order.Close()
		return nil
	}

	marketData := m.resolveRequests(ctx, requests, order.ID)
	m.applyUpdate(order, resp, marketData)

	m.log.Info("leg created",
		slog.String("order", order.ID),
		slog.String("leg", resp.ID))
	return nil
}

// pollLeg requests an update for the open leg and applies it. A leg that
// turns out closed is reconciled against its trades first.
func (m *Manager) pollLeg(ctx context.Context, order *domain.ParentOrder) error {
	leg := order.ActiveLeg
	requests := order.Command.Requests

	resp := m.withRetries(ctx, "update", order.ID, func() (*domain.OrderResponse, error) {
		return m.conn.GetOrderUpdate(ctx, leg)
	})
	if resp == nil {
		m.log.Info("skipping order", slog.String("order", order.ID))
		return nil
	}

	if resp.Status == domain.StatusClosed || resp.Status == domain.StatusCanceled {
		m.log.Info("leg done",
			slog.String("order", order.ID),
			slog.String("status", resp.Status))
		m.reconcileTrades(ctx, order, resp)
	}

	marketData := m.resolveRequests(ctx, requests, order.ID)
	m.applyUpdate(order, resp, marketData)

	if order.ActiveLeg == nil && len(order.History) > 0 {
		last := order.History[len(order.History)-1]
		m.log.Info("leg retired",
			slog.String("order", order.ID),
			slog.Int("updates", last.UpdateAttempts),
			slog.String("status", last.Status),
			slog.Float64("filled", last.Filled),
			slog.Float64("amount", last.Amount))
	}
	return nil
}

// cancelLeg cancels the open leg, verifying after every attempt that the
// exchange reports it closed or canceled. Exhausting the attempts is
// fatal: the engine no longer knows whether the order is still live.
func (m *Manager) cancelLeg(ctx context.Context, order *domain.ParentOrder) error {
	leg := order.ActiveLeg
	requests := order.Command.Requests

	m.log.Info("cancelling leg",
		slog.String("order", order.ID),
		slog.String("leg", leg.ID),
		slog.String("symbol", leg.Symbol))

	var resp *domain.OrderResponse
	for attempt := 0; attempt < m.MaxCancelAttempts; attempt++ {
		if _, err := m.conn.CancelOrder(ctx, leg); err != nil {
			m.log.Error("cancel error",
				slog.String("order", order.ID),
				slog.String("err", err.Error()))
			m.pause(ctx)
		}

		check := m.withRetries(ctx, "update", order.ID, func() (*domain.OrderResponse, error) {
			return m.conn.GetOrderUpdate(ctx, leg)
		})
		if check != nil && (check.Status == domain.StatusClosed || check.Status == domain.StatusCanceled) {
			resp = check
			break
		}
	}
	if resp == nil {
		return fmt.Errorf("%w: order %s leg %s", domain.ErrCancelAttemptsExceeded, order.ID, leg.ID)
	}

	m.reconcileTrades(ctx, order, resp)

	// The exchange may report the final state as closed; for the order
	// lifecycle this leg was canceled.
	resp.Status = domain.StatusCanceled

	m.log.Info("leg canceled",
		slog.String("order", order.ID),
		slog.Int("updates", leg.UpdateAttempts),
		slog.Float64("filled", leg.Filled),
		slog.Float64("amount", leg.Amount))

	marketData := m.resolveRequests(ctx, requests, order.ID)
	m.applyUpdate(order, resp, marketData)
	return nil
}

// reconcileTrades folds trade-derived amounts into the final response of
// a leg. The leg sees the raw response first so the trades request can
// relate to its latest fill.
func (m *Manager) reconcileTrades(ctx context.Context, order *domain.ParentOrder, resp *domain.OrderResponse) {
	if !m.RequestTrades {
		return
	}
	leg := order.ActiveLeg

	leg.ApplyResponse(resp)
	if leg.Filled <= 0 {
		return
	}

	trades := m.withRetries(ctx, "trades", order.ID, func() (*domain.OrderResponse, error) {
		return m.conn.GetTradesResults(ctx, leg)
	})
	if trades == nil || len(trades.Trades) == 0 {
		m.log.Error("skipping trades reconciliation", slog.String("order", order.ID))
		return
	}
	resp.Merge(trades)
}

// applyUpdate feeds the response into the order. Strategy errors are
// logged and leave the order on its previous command.
func (m *Manager) applyUpdate(order *domain.ParentOrder, resp *domain.OrderResponse, marketData []any) {
	if _, err := order.UpdateFromExchange(resp, marketData); err != nil {
		m.log.Error("order update failed",
			slog.String("order", order.ID),
			slog.String("err", err.Error()))
	}
}

// withRetries calls fn until it yields a response, up to the update
// attempt budget, pausing between failures.
func (m *Manager) withRetries(ctx context.Context, what, orderID string, fn func() (*domain.OrderResponse, error)) *domain.OrderResponse {
	for i := 0; i < m.MaxOrderUpdateAttempts; i++ {
		m.log.Debug("request attempt",
			slog.String("what", what),
			slog.String("order", orderID),
			slog.Int("attempt", i))

		resp, err := fn()
		if err == nil && resp != nil {
			return resp
		}
		if err != nil {
			m.log.Error("request failed",
				slog.String("what", what),
				slog.String("order", orderID),
				slog.String("err", err.Error()))
		}
		m.pause(ctx)
	}
	return nil
}

func (m *Manager) pause(ctx context.Context) {
	if m.RequestSleep <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(m.RequestSleep):
	}
}

// resolveRequests resolves each data request to a value, in request
// order. Unresolvable requests yield nil entries.
func (m *Manager) resolveRequests(ctx context.Context, requests []domain.DataRequest, orderID string) []any {
	if len(requests) == 0 {
		return nil
	}

	values := make([]any, 0, len(requests))
	for _, req := range requests {
		v, err := m.resolveRequest(ctx, req, orderID)
		if err != nil {
			m.log.Error("could not resolve data request",
				slog.String("order", orderID),
				slog.String("request", req.String()),
				slog.String("err", err.Error()))
			values = append(values, nil)
			continue
		}
		values = append(values, v)
	}
	return values
}

// resolveRequest looks the request up in the externally supplied data
// first, then falls back to the built-in fetchers. Keys match
// case-insensitively.
func (m *Manager) resolveRequest(ctx context.Context, req domain.DataRequest, orderID string) (any, error) {
	if req.Key == "" {
		return nil, domain.ErrEmptyDataRequest
	}

	m.log.Debug("data request",
		slog.String("order", orderID),
		slog.String("request", req.String()))

	for key := range m.DataForOrders {
		if strings.EqualFold(key, req.Key) {
			return pathValue(m.DataForOrders, req.Path()), nil
		}
	}

	if strings.EqualFold(req.Key, "tickers") {
		tickers, err := m.conn.FetchTickers(ctx, req.Params...)
		if err != nil {
			return nil, err
		}
		return pathValue(map[string]any{req.Key: tickers}, req.Path()), nil
	}

	return nil, fmt.Errorf("no data source for request %q", req.Key)
}

// pathValue descends node along the path, matching keys
// case-insensitively. Returns nil as soon as a segment cannot be
// resolved.
func pathValue(node any, path []string) any {
	for _, p := range path {
		node = childValue(node, p)
		if node == nil {
			return nil
		}
	}
	return node
}

func childValue(node any, key string) any {
	switch n := node.(type) {
	case map[string]any:
		for k, v := range n {
			if strings.EqualFold(k, key) {
				return v
			}
		}
	case domain.TickerMap:
		for k, v := range n {
			if strings.EqualFold(k, key) {
				return v
			}
		}
	case domain.Ticker:
		return tickerField(n, key)
	case *domain.Ticker:
		if n != nil {
			return tickerField(*n, key)
		}
	}
	return nil
}

func tickerField(t domain.Ticker, key string) any {
	switch strings.ToLower(key) {
	case "ask":
		return t.Ask
	case "bid":
		return t.Bid
	case "last":
		return t.Last
	case "symbol":
		return t.Symbol
	}
	return nil
}
