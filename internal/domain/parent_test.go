package domain

import (
	"math"
	"testing"
)

func TestNewParentOrder(t *testing.T) {
	o, err := NewParentOrder("ETH/BTC", 10, 0.05, "sell", 0)
	if err != nil {
		t.Fatalf("NewParentOrder() error = %v", err)
	}
	if o.Status != ParentOpen || o.State != "fill" {
		t.Errorf("Status/State = %q/%q, want open/fill", o.Status, o.State)
	}
	if o.Command.Action != ActionNew {
		t.Errorf("Command = %v, want new", o.Command)
	}
	if o.StartCurrency != "ETH" || o.DestCurrency != "BTC" {
		t.Errorf("currencies = %s -> %s, want ETH -> BTC", o.StartCurrency, o.DestCurrency)
	}
	if o.StartAmount != 10 || o.DestAmount != 0.5 {
		t.Errorf("amounts = %v/%v, want 10/0.5", o.StartAmount, o.DestAmount)
	}
	if o.CancelThreshold != DefaultCancelThreshold {
		t.Errorf("CancelThreshold = %v, want default", o.CancelThreshold)
	}
	if !o.Changed {
		t.Error("a fresh order must report Changed")
	}

	if _, err := NewParentOrder("ETH/BTC", 10, 0, "sell", 0); err == nil {
		t.Error("expected error for zero price")
	}
}

func TestNewParentOrderFromStartAmount(t *testing.T) {
	o, err := NewParentOrderFromStartAmount("ETH/BTC", "BTC", 0.5, "ETH", 0.05, 0)
	if err != nil {
		t.Fatalf("NewParentOrderFromStartAmount() error = %v", err)
	}
	if o.Side != SideBuy {
		t.Errorf("Side = %q, want buy", o.Side)
	}
	if math.Abs(o.Amount-10) > 1e-9 {
		t.Errorf("Amount = %v, want 10", o.Amount)
	}
}

func TestParentOrder_UpdateFromExchange_FillToClose(t *testing.T) {
	o, err := NewParentOrder("ETH/BTC", 10, 0.05, "sell", 0)
	if err != nil {
		t.Fatalf("NewParentOrder() error = %v", err)
	}

	cmd, err := o.UpdateFromExchange(&OrderResponse{
		ID: "e-1", Status: StatusOpen, Filled: Float(4), Cost: Float(0.2),
	}, nil)
	if err != nil {
		t.Fatalf("UpdateFromExchange() error = %v", err)
	}
	if cmd.Action != ActionHold {
		t.Errorf("command = %v, want hold", cmd)
	}
	if o.Filled != 4 || o.FilledStartAmount != 4 || o.FilledDestAmount != 0.2 {
		t.Errorf("fills = %v/%v/%v, want 4/4/0.2", o.Filled, o.FilledStartAmount, o.FilledDestAmount)
	}
	if math.Abs(o.FilledPrice-0.05) > 1e-12 {
		t.Errorf("FilledPrice = %v, want 0.05", o.FilledPrice)
	}
	if !o.Changed {
		t.Error("fill progress must mark the order changed")
	}

	cmd, err = o.UpdateFromExchange(&OrderResponse{
		Status: StatusClosed, Filled: Float(10), Cost: Float(0.5),
	}, nil)
	if err != nil {
		t.Fatalf("UpdateFromExchange() error = %v", err)
	}
	if cmd.Action != ActionNone {
		t.Errorf("command = %v, want none", cmd)
	}
	if o.Status != ParentClosed {
		t.Errorf("Status = %q, want closed", o.Status)
	}
	if len(o.History) != 1 || o.ActiveLeg != nil {
		t.Errorf("leg not retired: history %d active %v", len(o.History), o.ActiveLeg)
	}
	if o.TimestampClose == 0 {
		t.Error("TimestampClose not stamped")
	}
}

func TestParentOrder_UpdateFromExchange_Unchanged(t *testing.T) {
	o, _ := NewParentOrder("ETH/BTC", 10, 0.05, "sell", 0)

	o.UpdateFromExchange(&OrderResponse{ID: "e-1", Status: StatusOpen, Filled: Float(2), Cost: Float(0.1)}, nil)
	o.UpdateFromExchange(&OrderResponse{Status: StatusOpen, Filled: Float(2), Cost: Float(0.1)}, nil)
	if o.Changed {
		t.Error("identical update must not mark the order changed")
	}
	if o.ActiveLeg.UpdateAttempts != 2 {
		t.Errorf("UpdateAttempts = %d, want 2", o.ActiveLeg.UpdateAttempts)
	}
}

func TestParentOrder_ForceClose(t *testing.T) {
	t.Run("open leg gets a cancel and the tag", func(t *testing.T) {
		o, _ := NewParentOrder("ETH/BTC", 10, 0.05, "sell", 0)
		o.UpdateFromExchange(&OrderResponse{ID: "e-1", Status: StatusOpen}, nil)

		o.ForceClose()
		if o.Command.Action != ActionCancel {
			t.Fatalf("command = %v, want cancel", o.Command)
		}

		cmd, err := o.UpdateFromExchange(&OrderResponse{Status: StatusCanceled, Filled: Float(3), Cost: Float(0.15)}, nil)
		if err != nil {
			t.Fatalf("UpdateFromExchange() error = %v", err)
		}
		if cmd.Action != ActionNone || o.Status != ParentClosed {
			t.Errorf("got command %v status %q, want none/closed", cmd, o.Status)
		}
		if !o.HasTag("#force_close") {
			t.Error("missing #force_close tag")
		}
	})

	t.Run("unplaced leg closes immediately", func(t *testing.T) {
		o, _ := NewParentOrder("ETH/BTC", 10, 0.05, "sell", 0)
		o.ForceClose()
		if o.Status != ParentClosed {
			t.Errorf("Status = %q, want closed", o.Status)
		}
		if !o.HasTag("#force_close") {
			t.Error("missing #force_close tag")
		}
	})
}

func TestParentOrder_RetireActiveLeg(t *testing.T) {
	o, _ := NewParentOrder("ETH/BTC", 10, 0.05, "sell", 0)

	if err := o.RetireActiveLeg(); err == nil {
		t.Error("retiring an unfinished leg must fail")
	}

	o.UpdateFromExchange(&OrderResponse{ID: "e-1", Status: StatusCanceled, Filled: Float(4), Cost: Float(0.2)}, nil)
	// the nil-strategy path finalized the order; rebuild the scenario with
	// a manual retire to check the carried totals
	o2, _ := NewParentOrder("ETH/BTC", 10, 0.05, "sell", 0)
	o2.SetStrategy(holdForever{})
	o2.UpdateFromExchange(&OrderResponse{ID: "e-1", Status: StatusCanceled, Filled: Float(4), Cost: Float(0.2)}, nil)

	if err := o2.RetireActiveLeg(); err != nil {
		t.Fatalf("RetireActiveLeg() error = %v", err)
	}

	leg, err := o2.NewLegForRemaining(0.05)
	if err != nil {
		t.Fatalf("NewLegForRemaining() error = %v", err)
	}
	if math.Abs(leg.Amount-6) > 1e-9 {
		t.Errorf("remaining leg amount = %v, want 6", leg.Amount)
	}
	o2.SetActiveLeg(leg)

	// fills of the new leg stack on the carried totals
	o2.UpdateFromExchange(&OrderResponse{ID: "e-2", Status: StatusOpen, Filled: Float(6), Cost: Float(0.3)}, nil)
	if math.Abs(o2.Filled-10) > 1e-9 {
		t.Errorf("cumulative Filled = %v, want 10", o2.Filled)
	}
	if math.Abs(o2.FilledStartAmount-10) > 1e-9 || math.Abs(o2.FilledDestAmount-0.5) > 1e-9 {
		t.Errorf("cumulative fills = %v/%v, want 10/0.5", o2.FilledStartAmount, o2.FilledDestAmount)
	}
}

func TestParentOrder_NewLegForRemaining_NothingLeft(t *testing.T) {
	o, _ := NewParentOrder("ETH/BTC", 10, 0.05, "sell", 0)
	o.SetStrategy(holdForever{})
	o.UpdateFromExchange(&OrderResponse{ID: "e-1", Status: StatusCanceled, Filled: Float(10), Cost: Float(0.5)}, nil)
	o.RetireActiveLeg()

	if _, err := o.NewLegForRemaining(0.05); err == nil {
		t.Error("expected error when the order is fully filled")
	}
}

// holdForever keeps closed legs in place so tests can drive retirement
// manually.
type holdForever struct{}

func (holdForever) Name() string { return "hold_forever" }

func (holdForever) OnOpen(o *ParentOrder, leg *LegOrder, marketData []any) (Command, error) {
	return Hold(), nil
}

func (holdForever) OnClosed(o *ParentOrder, leg *LegOrder, marketData []any) (Command, error) {
	return Hold(), nil
}
