package infra

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"ordex/internal/domain"
)

// TickerFeed maintains a WebSocket subscription to the exchange ticker
// channel and exposes the latest tickers as a snapshot. It reconnects
// with exponential backoff on read errors.
type TickerFeed struct {
	url     string
	symbols []string

	mu      sync.RWMutex
	tickers domain.TickerMap
	conn    *websocket.Conn

	cancel context.CancelFunc
	wg     sync.WaitGroup

	ReadTimeout  time.Duration
	PingInterval time.Duration
	Backoff      ReconnectBackoff
}

type tickerMessage struct {
	Channel string `json:"channel"`
	Events  []struct {
		Tickers []struct {
			Symbol    string  `json:"product_id"`
			Ask       float64 `json:"best_ask,string"`
			Bid       float64 `json:"best_bid,string"`
			Last      float64 `json:"price,string"`
			Timestamp int64   `json:"time"`
		} `json:"tickers"`
	} `json:"events"`
}

// NewTickerFeed creates a feed for the given WebSocket URL and symbols.
func NewTickerFeed(url string, symbols []string) *TickerFeed {
	return &TickerFeed{
		url:          url,
		symbols:      symbols,
		tickers:      make(domain.TickerMap),
		ReadTimeout:  60 * time.Second,
		PingInterval: 30 * time.Second,
		Backoff:      DefaultReconnectBackoff,
	}
}

// Start initiates the connection loop.
func (f *TickerFeed) Start(ctx context.Context) {
	ctx, f.cancel = context.WithCancel(ctx)
	f.wg.Add(1)
	go f.runLoop(ctx)
}

// Stop terminates the feed.
func (f *TickerFeed) Stop() {
	if f.cancel != nil {
		f.cancel()
	}
	f.close()
	f.wg.Wait()
}

// Snapshot returns a copy of the latest tickers.
func (f *TickerFeed) Snapshot() domain.TickerMap {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make(domain.TickerMap, len(f.tickers))
	for k, v := range f.tickers {
		out[k] = v
	}
	return out
}

func (f *TickerFeed) runLoop(ctx context.Context) {
	defer f.wg.Done()
	retry := 0

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := f.connect(ctx); err != nil {
			slog.Warn("WS Connection failed", "url", f.url, "err", err, "retry", retry)
			delay := f.Backoff.Delay(retry)
			retry++

			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
				continue
			}
		}

		retry = 0
		f.process(ctx)
	}
}

func (f *TickerFeed) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}

	conn, _, err := dialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return err
	}

	sub := map[string]any{
		"type":        "subscribe",
		"channel":     "ticker",
		"product_ids": f.symbols,
	}
	if err := conn.WriteJSON(sub); err != nil {
		conn.Close()
		return err
	}

	f.mu.Lock()
	f.conn = conn
	f.mu.Unlock()

	if f.PingInterval > 0 {
		go f.pingLoop(ctx, conn)
	}

	slog.Info("WS Connected", "url", f.url)
	return nil
}

func (f *TickerFeed) process(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		f.mu.RLock()
		c := f.conn
		f.mu.RUnlock()
		if c == nil {
			return
		}

		c.SetReadDeadline(time.Now().Add(f.ReadTimeout))
		_, msg, err := c.ReadMessage()
		if err != nil {
			slog.Warn("WS Read error", "url", f.url, "err", err)
			f.close()
			return
		}

		f.onMessage(msg)
	}
}

func (f *TickerFeed) onMessage(msg []byte) {
	var m tickerMessage
	if err := json.Unmarshal(msg, &m); err != nil {
		slog.Debug("WS message skipped", "err", err)
		return
	}
	if m.Channel != "ticker" {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ev := range m.Events {
		for _, t := range ev.Tickers {
			f.tickers[t.Symbol] = domain.Ticker{
				Symbol:    t.Symbol,
				Ask:       t.Ask,
				Bid:       t.Bid,
				Last:      t.Last,
				Timestamp: t.Timestamp,
			}
		}
	}
}

// pingLoop keeps one specific connection alive. It exits as soon as the
// feed has moved on to a replacement connection.
func (f *TickerFeed) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(f.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.mu.RLock()
			current := f.conn
			f.mu.RUnlock()
			if current != conn {
				return
			}
			deadline := time.Now().Add(10 * time.Second)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				slog.Warn("WS Ping error", "url", f.url, "err", err)
				f.close()
				return
			}
		}
	}
}

func (f *TickerFeed) close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conn != nil {
		f.conn.Close()
		f.conn = nil
	}
}
