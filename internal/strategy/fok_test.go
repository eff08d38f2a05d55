package strategy

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"ordex/internal/domain"
	"ordex/internal/engine"
	"ordex/internal/execution"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestManager(t *testing.T, conn execution.Connector) *engine.Manager {
	t.Helper()
	m, err := engine.NewManager(conn, testLogger(), 3, 5)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	return m
}

func runTicks(t *testing.T, m *engine.Manager, maxTicks int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < maxTicks; i++ {
		if err := m.ProceedOrders(ctx); err != nil {
			t.Fatalf("ProceedOrders() tick %d error = %v", i+1, err)
		}
		if !m.HaveOpenOrders() {
			return
		}
	}
	t.Fatalf("orders still open after %d ticks", maxTicks)
}

func TestNewFOKOrder(t *testing.T) {
	o, err := NewFOKOrder("ETH/BTC", 10, 0.05, "sell", 0, 10, 0)
	if err != nil {
		t.Fatalf("NewFOKOrder() error = %v", err)
	}
	if o.State != "fok" || o.StrategyName() != "fok" {
		t.Errorf("State/strategy = %q/%q, want fok/fok", o.State, o.StrategyName())
	}
	if o.Command.Action != domain.ActionNew {
		t.Errorf("Command = %v, want new", o.Command)
	}
}

func TestFOK_FillsBeforeLimit(t *testing.T) {
	c := execution.NewSimConnector()
	m := newTestManager(t, c)

	o, _ := NewFOKOrder("ETH/BTC", 10, 0.05, "sell", 0, 10, 0)
	c.AddOrderScript(o.ActiveLeg, 3, 0)
	m.AddOrder(o)

	runTicks(t, m, 10)

	if o.Status != domain.ParentClosed {
		t.Fatalf("Status = %q, want closed", o.Status)
	}
	if o.Filled != 10 {
		t.Errorf("Filled = %v, want 10", o.Filled)
	}
	if len(o.Tags) != 0 {
		t.Errorf("Tags = %v, want none on a clean fill", o.Tags)
	}
}

func TestFOK_CancelsAfterUpdateLimit(t *testing.T) {
	c := execution.NewSimConnector()
	m := newTestManager(t, c)

	o, _ := NewFOKOrder("ETH/BTC", 10, 0.05, "sell", 0, 10, 0)
	c.AddOrderScript(o.ActiveLeg, 50, 50)
	m.AddOrder(o)

	runTicks(t, m, 20)

	if o.Status != domain.ParentClosed {
		t.Fatalf("Status = %q, want closed", o.Status)
	}
	if o.Filled != 0 {
		t.Errorf("Filled = %v, want 0", o.Filled)
	}
	if len(o.History) != 1 {
		t.Fatalf("history = %d legs, want 1", len(o.History))
	}
	// ten polls trip the limit, the cancel verification adds one more
	if got := o.History[0].UpdateAttempts; got != 11 {
		t.Errorf("UpdateAttempts = %d, want 11", got)
	}
	if o.History[0].Status != domain.StatusCanceled {
		t.Errorf("leg status = %q, want canceled", o.History[0].Status)
	}
}

func TestFOK_CancelsByTime(t *testing.T) {
	c := execution.NewSimConnector()
	m := newTestManager(t, c)

	o, _ := NewFOKOrder("ETH/BTC", 10, 0.05, "sell", 0, 0, 0.05)
	c.AddOrderScript(o.ActiveLeg, 50, 50)
	m.AddOrder(o)

	ctx := context.Background()
	if err := m.ProceedOrders(ctx); err != nil {
		t.Fatalf("placement tick error = %v", err)
	}

	time.Sleep(60 * time.Millisecond)
	runTicks(t, m, 10)

	if o.Status != domain.ParentClosed {
		t.Fatalf("Status = %q, want closed", o.Status)
	}
	if !o.HasTag(TagTimeout) {
		t.Errorf("Tags = %v, want %s", o.Tags, TagTimeout)
	}
}

func TestFOK_SmallRemainderIsLeftToFill(t *testing.T) {
	o, _ := NewFOKOrder("ETH/BTC", 10, 0.05, "sell", 1, 2, 0)
	s := &FOK{MaxOrderUpdates: 2}

	leg := o.ActiveLeg
	leg.Status = domain.StatusOpen
	leg.UpdateAttempts = 5
	leg.Filled = 9.5 // remaining 0.5 is below the threshold of 1

	cmd, err := s.OnOpen(o, leg, nil)
	if err != nil {
		t.Fatalf("OnOpen() error = %v", err)
	}
	if cmd.Action != domain.ActionHold {
		t.Errorf("command = %v, want hold for a dust remainder", cmd)
	}
}

func TestFOKTakerThreshold_CancelsOnPriceMove(t *testing.T) {
	c := execution.NewSimConnector()
	c.UseLastTickers = true
	c.SetTickerSequence([]domain.TickerMap{
		{"ETH/BTC": {Symbol: "ETH/BTC", Ask: 0.0495, Bid: 0.049}},
	})
	m := newTestManager(t, c)

	// sell at 0.05 while the bid sits 2% lower, threshold at -1%
	o, err := NewFOKTakerThresholdOrder("ETH/BTC", 10, 0.05, "sell", 0, 100, 0, -0.01, 2)
	if err != nil {
		t.Fatalf("NewFOKTakerThresholdOrder() error = %v", err)
	}
	c.AddOrderScript(o.ActiveLeg, 50, 50)
	m.AddOrder(o)

	runTicks(t, m, 20)

	if o.Status != domain.ParentClosed {
		t.Fatalf("Status = %q, want closed", o.Status)
	}
	if !o.HasTag(TagBelowThreshold) {
		t.Errorf("Tags = %v, want %s", o.Tags, TagBelowThreshold)
	}
	if o.History[0].Status != domain.StatusCanceled {
		t.Errorf("leg status = %q, want canceled", o.History[0].Status)
	}
}

func TestFOKTakerThreshold_HoldsWhilePriceKeeps(t *testing.T) {
	c := execution.NewSimConnector()
	c.UseLastTickers = true
	c.SetTickerSequence([]domain.TickerMap{
		{"ETH/BTC": {Symbol: "ETH/BTC", Ask: 0.0505, Bid: 0.0499}},
	})
	m := newTestManager(t, c)

	// bid only 0.2% below target, threshold at -1%: fills out normally
	o, _ := NewFOKTakerThresholdOrder("ETH/BTC", 10, 0.05, "sell", 0, 100, 0, -0.01, 2)
	c.AddOrderScript(o.ActiveLeg, 6, 0)
	m.AddOrder(o)

	runTicks(t, m, 15)

	if o.Status != domain.ParentClosed {
		t.Fatalf("Status = %q, want closed", o.Status)
	}
	if o.Filled != 10 {
		t.Errorf("Filled = %v, want 10", o.Filled)
	}
	if o.HasTag(TagBelowThreshold) {
		t.Errorf("unexpected %s tag", TagBelowThreshold)
	}
}
