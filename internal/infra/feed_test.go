package infra

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func newWSServer(t *testing.T) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		// keep reading so control frames get handled
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dialWS(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestTickerFeed_PingLoopStopsWhenConnReplaced(t *testing.T) {
	url := newWSServer(t)
	first := dialWS(t, url)
	second := dialWS(t, url)

	f := NewTickerFeed(url, nil)
	f.PingInterval = 5 * time.Millisecond
	f.conn = first

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		f.pingLoop(ctx, first)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	select {
	case <-done:
		t.Fatal("pingLoop exited while its connection was still current")
	default:
	}

	f.mu.Lock()
	f.conn = second
	f.mu.Unlock()

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("pingLoop kept running after its connection was replaced")
	}
}

func TestTickerFeed_PingLoopStopsOnCancel(t *testing.T) {
	url := newWSServer(t)
	conn := dialWS(t, url)

	f := NewTickerFeed(url, nil)
	f.PingInterval = 5 * time.Millisecond
	f.conn = conn

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.pingLoop(ctx, conn)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("pingLoop kept running after cancel")
	}
}

func TestTickerFeed_OnMessage(t *testing.T) {
	f := NewTickerFeed("ws://unused", []string{"ETH-BTC"})

	f.onMessage([]byte(`{"channel":"ticker","events":[{"tickers":[` +
		`{"product_id":"ETH-BTC","best_ask":"0.05","best_bid":"0.049","price":"0.0495","time":1}]}]}`))
	f.onMessage([]byte(`{"channel":"heartbeats"}`))
	f.onMessage([]byte(`not json`))

	snap := f.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("Snapshot() len = %d, want 1", len(snap))
	}
	tk := snap["ETH-BTC"]
	if tk.Ask != 0.05 || tk.Bid != 0.049 || tk.Last != 0.0495 {
		t.Errorf("ticker = %+v, want ask 0.05 bid 0.049 last 0.0495", tk)
	}
}
