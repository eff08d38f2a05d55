package execution

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/x509"
	"encoding/hex"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"ordex/internal/domain"
	"ordex/internal/infra"
	"ordex/internal/orderbook"
)

// ErrCircuitOpen is returned when the exchange circuit breaker rejects a
// request.
var ErrCircuitOpen = errors.New("exchange circuit open")

// LiveConnector talks to the exchange REST API. Every request is signed
// with a short-lived ES256 JWT, throttled against the request budget and
// guarded by a circuit breaker.
type LiveConnector struct {
	baseURL string
	keyName string
	privKey *ecdsa.PrivateKey

	httpc    *http.Client
	breaker  *infra.Breaker
	throttle *infra.Throttle
	log      *slog.Logger

	mu      sync.Mutex
	markets markets
}

var _ Connector = (*LiveConnector)(nil)

// NewLiveConnector creates a live connector. privateKeyPEM must hold an EC
// private key in PEM form.
func NewLiveConnector(baseURL, keyName, privateKeyPEM string, throttle *infra.Throttle, log *slog.Logger) (*LiveConnector, error) {
	block, _ := pem.Decode([]byte(privateKeyPEM))
	if block == nil {
		return nil, fmt.Errorf("no PEM block in private key")
	}
	key, err := x509.ParseECPrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse EC private key: %w", err)
	}

	return &LiveConnector{
		baseURL:  strings.TrimRight(baseURL, "/"),
		keyName:  keyName,
		privKey:  key,
		httpc:    &http.Client{Timeout: 15 * time.Second},
		breaker:  infra.NewBreaker("exchange-rest", 0, 0, 0),
		throttle: throttle,
		log:      log,
	}, nil
}

// SetMarkets installs per-symbol precision definitions.
func (c *LiveConnector) SetMarkets(ms []Market) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.markets == nil {
		c.markets = make(markets)
	}
	for _, m := range ms {
		c.markets[m.Symbol] = m
	}
}

// wire types of the REST API.

type wireOrder struct {
	ID                 string      `json:"id"`
	Datetime           string      `json:"datetime"`
	Timestamp          int64       `json:"timestamp"`
	LastTradeTimestamp int64       `json:"last_trade_timestamp"`
	Status             string      `json:"status"`
	Amount             *float64    `json:"amount"`
	Filled             *float64    `json:"filled"`
	Remaining          *float64    `json:"remaining"`
	Cost               *float64    `json:"cost"`
	Price              *float64    `json:"price"`
	Trades             []wireTrade `json:"trades"`
}

type wireTrade struct {
	OrderID string  `json:"order"`
	Amount  float64 `json:"amount"`
	Price   float64 `json:"price"`
	Cost    float64 `json:"cost"`
	Fee     *struct {
		Currency string  `json:"currency"`
		Cost     float64 `json:"cost"`
	} `json:"fee"`
}

type wireTicker struct {
	Symbol    string  `json:"symbol"`
	Ask       float64 `json:"ask"`
	Bid       float64 `json:"bid"`
	Last      float64 `json:"last"`
	Timestamp int64   `json:"timestamp"`
}

type wireBook struct {
	Symbol string       `json:"symbol"`
	Asks   [][2]float64 `json:"asks"`
	Bids   [][2]float64 `json:"bids"`
}

// PlaceLimitOrder submits the leg as a limit order.
func (c *LiveConnector) PlaceLimitOrder(ctx context.Context, leg *domain.LegOrder) (*domain.OrderResponse, error) {
	body := map[string]any{
		"symbol": leg.Symbol,
		"type":   leg.Type,
		"side":   leg.Side,
		"amount": c.AmountToPrecision(leg.Symbol, leg.Amount),
		"price":  c.PriceToPrecision(leg.Symbol, leg.Price),
	}

	placed := unixNow()

	var w wireOrder
	if err := c.send(ctx, http.MethodPost, "/orders", "create_order", body, &w); err != nil {
		return nil, err
	}

	resp := w.toResponse()
	received := unixNow()
	resp.TimestampOpen = &domain.OrderStamps{
		RequestPlaced:   placed,
		RequestReceived: received,
		FromExchange:    float64(w.Timestamp) / 1000,
	}
	if resp.Status == domain.StatusClosed || resp.Status == domain.StatusCanceled {
		resp.TimestampClosed = resp.TimestampOpen
	}
	return resp, nil
}

// GetOrderUpdate polls the current order state.
func (c *LiveConnector) GetOrderUpdate(ctx context.Context, leg *domain.LegOrder) (*domain.OrderResponse, error) {
	placed := unixNow()

	var w wireOrder
	if err := c.send(ctx, http.MethodGet, "/orders/"+url.PathEscape(leg.ID), "fetch_order", nil, &w); err != nil {
		return nil, err
	}

	resp := w.toResponse()
	if resp.Status == domain.StatusClosed || resp.Status == domain.StatusCanceled {
		resp.TimestampClosed = &domain.OrderStamps{
			RequestPlaced:   placed,
			RequestReceived: unixNow(),
			FromExchange:    float64(w.LastTradeTimestamp) / 1000,
		}
	}
	return resp, nil
}

// CancelOrder requests cancellation of the leg's exchange order.
func (c *LiveConnector) CancelOrder(ctx context.Context, leg *domain.LegOrder) (*domain.OrderResponse, error) {
	var w wireOrder
	if err := c.send(ctx, http.MethodDelete, "/orders/"+url.PathEscape(leg.ID), "cancel_order", nil, &w); err != nil {
		return nil, err
	}
	return w.toResponse(), nil
}

// GetTradesResults fetches the leg's fills and rebuilds the filled
// amounts from them. The amounts must reconcile with the leg's reported
// fill within 0.1%.
func (c *LiveConnector) GetTradesResults(ctx context.Context, leg *domain.LegOrder) (*domain.OrderResponse, error) {
	trades := leg.Trades

	fromTrades := 0.0
	for _, t := range trades {
		fromTrades += t.Amount
	}
	fromTrades = c.AmountToPrecision(leg.Symbol, fromTrades)

	// Some venues ship the trades inside the order payload. Only hit the
	// fills endpoint when they are missing or incomplete.
	if len(trades) == 0 || fromTrades < leg.Filled*0.9999999 {
		var ws []wireTrade
		path := fmt.Sprintf("/orders/%s/fills?since=%d", url.PathEscape(leg.ID), leg.Timestamp)
		if err := c.send(ctx, http.MethodGet, path, "fetch_my_trades", nil, &ws); err != nil {
			return nil, err
		}

		trades = trades[:0]
		for _, w := range ws {
			if w.OrderID == leg.ID {
				trades = append(trades, w.toTrade())
			}
		}

		fromTrades = 0.0
		for _, t := range trades {
			fromTrades += t.Amount
		}
		fromTrades = c.AmountToPrecision(leg.Symbol, fromTrades)
	}

	if len(trades) == 0 || leg.Filled <= 0 || fromTrades/leg.Filled < 0.999 {
		return nil, fmt.Errorf("%w: %v != %v", ErrTradesMismatch, fromTrades, leg.Filled)
	}

	amount, cost, price, err := domain.TradeTotals(trades)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTradesMismatch, err)
	}
	pp := c.pricePrecision(leg.Symbol)
	return &domain.OrderResponse{
		Trades: trades,
		Filled: domain.Float(amount),
		Cost:   domain.Float(priceToPrecision(cost, pp)),
		Price:  domain.Float(priceToPrecision(price, pp)),
	}, nil
}

// FetchTickers returns current tickers for the symbols, or all tickers
// when none are named.
func (c *LiveConnector) FetchTickers(ctx context.Context, symbols ...string) (domain.TickerMap, error) {
	path := "/tickers"
	if len(symbols) > 0 {
		path += "?symbols=" + url.QueryEscape(strings.Join(symbols, ","))
	}

	var ws []wireTicker
	if err := c.send(ctx, http.MethodGet, path, "fetch_tickers", nil, &ws); err != nil {
		return nil, err
	}

	out := make(domain.TickerMap, len(ws))
	for _, w := range ws {
		out[w.Symbol] = domain.Ticker{
			Symbol:    w.Symbol,
			Ask:       w.Ask,
			Bid:       w.Bid,
			Last:      w.Last,
			Timestamp: w.Timestamp,
		}
	}
	return out, nil
}

// FetchOrderBooks fetches the order books for all symbols concurrently
// and waits until every fetch finishes.
func (c *LiveConnector) FetchOrderBooks(ctx context.Context, symbols []string) (map[string]*orderbook.Book, error) {
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

			var w wireBook
			path := "/orderbook?symbol=" + url.QueryEscape(symbol)
			if err := c.send(ctx, http.MethodGet, path, "fetch_order_book", nil, &w); err != nil {
				errMu.Lock()
				if first == nil {
					first = err
				}
				errMu.Unlock()
				return
			}

			outMu.Lock()
			out[symbol] = orderbook.NewBook(symbol, w.Asks, w.Bids)
			outMu.Unlock()
		}(symbol)
	}
	wg.Wait()

	if first != nil {
		return nil, first
	}
	return out, nil
}

// AmountToPrecision truncates the amount to the symbol's precision.
func (c *LiveConnector) AmountToPrecision(symbol string, amount float64) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return amountToPrecision(amount, c.markets.amountPrecision(symbol))
}

// PriceToPrecision rounds the price to the symbol's precision.
func (c *LiveConnector) PriceToPrecision(symbol string, price float64) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return priceToPrecision(price, c.markets.pricePrecision(symbol))
}

func (c *LiveConnector) pricePrecision(symbol string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.markets.pricePrecision(symbol)
}

// send performs one signed request: throttle pause, breaker check, JWT
// bearer auth, JSON decode into out.
func (c *LiveConnector) send(ctx context.Context, method, path, kind string, body, out any) error {
	if c.throttle != nil {
		if pause := c.throttle.SleepTimeNow(); pause > 0 {
			c.log.Debug("throttle pause", slog.Float64("seconds", pause))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(pause * float64(time.Second))):
			}
		}
		c.throttle.AddRequestNow(kind)
	}

	if !c.breaker.Allow() {
		return ErrCircuitOpen
	}

	var rdr io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rdr = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return err
	}

	token, err := c.buildJWT(method, req.URL)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		c.breaker.RecordFailure()
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		c.breaker.RecordFailure()
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.breaker.RecordFailure()
		return fmt.Errorf("exchange %s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	c.breaker.RecordSuccess()

	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}

// buildJWT signs a short-lived ES256 token scoped to one request URI.
func (c *LiveConnector) buildJWT(method string, u *url.URL) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": c.keyName,
		"iss": "ordex",
		"nbf": now.Unix(),
		"exp": now.Add(2 * time.Minute).Unix(),
		"uri": method + " " + u.Host + u.Path,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	token.Header["kid"] = c.keyName
	token.Header["nonce"] = newNonce()

	return token.SignedString(c.privKey)
}

func newNonce() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return strconv.FormatInt(time.Now().UnixNano(), 16)
	}
	return hex.EncodeToString(b)
}

func (w wireOrder) toResponse() *domain.OrderResponse {
	resp := &domain.OrderResponse{
		ID:                 w.ID,
		Datetime:           w.Datetime,
		Timestamp:          w.Timestamp,
		LastTradeTimestamp: w.LastTradeTimestamp,
		Status:             w.Status,
		Amount:             w.Amount,
		Filled:             w.Filled,
		Remaining:          w.Remaining,
		Cost:               w.Cost,
		Price:              w.Price,
	}
	for _, t := range w.Trades {
		resp.Trades = append(resp.Trades, t.toTrade())
	}
	return resp
}

func (w wireTrade) toTrade() domain.Trade {
	t := domain.Trade{
		OrderID: w.OrderID,
		Amount:  w.Amount,
		Price:   w.Price,
		Cost:    w.Cost,
	}
	if w.Fee != nil {
		t.Fee = &domain.Fee{Currency: w.Fee.Currency, Cost: w.Fee.Cost}
	}
	return t
}
