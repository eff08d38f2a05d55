package storage

import (
	"context"
	"path/filepath"
	"testing"

	"ordex/internal/reports"
)

func newTestStore(t *testing.T) *ReportStore {
	t.Helper()
	store, err := NewReportStore(filepath.Join(t.TempDir(), "reports.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestReportStore_SaveAndLoad(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	order := reports.OrderReport{
		OrderID:  "o-1",
		Symbol:   "ETH/BTC",
		Side:     "sell",
		Status:   "closed",
		State:    "fill",
		Strategy: "fill",
		Filled:   10,
		Amount:   10,
	}
	legs := []reports.LegReport{
		{OrderID: "o-1", LegID: "e-1", InternalID: "i-1", Status: "canceled", Filled: 4, Amount: 10, UpdateAttempts: 5},
		{OrderID: "o-1", LegID: "e-2", InternalID: "i-2", Status: "closed", Filled: 6, Amount: 6, UpdateAttempts: 3},
	}

	if err := store.SaveOrder(ctx, order, legs); err != nil {
		t.Fatalf("SaveOrder() error = %v", err)
	}

	got, err := store.LoadOrder(ctx, "o-1")
	if err != nil {
		t.Fatalf("LoadOrder() error = %v", err)
	}
	if got == nil {
		t.Fatal("LoadOrder() = nil, want stored report")
	}
	if got.OrderID != "o-1" || got.Filled != 10 || got.Strategy != "fill" {
		t.Errorf("loaded report = %+v", got)
	}

	gotLegs, err := store.LoadLegs(ctx, "o-1")
	if err != nil {
		t.Fatalf("LoadLegs() error = %v", err)
	}
	if len(gotLegs) != 2 {
		t.Fatalf("LoadLegs() = %d legs, want 2", len(gotLegs))
	}
	if gotLegs[0].LegID != "e-1" || gotLegs[1].LegID != "e-2" {
		t.Errorf("leg order = %q, %q, want e-1, e-2", gotLegs[0].LegID, gotLegs[1].LegID)
	}
	if gotLegs[0].UpdateAttempts != 5 {
		t.Errorf("UpdateAttempts = %d, want 5", gotLegs[0].UpdateAttempts)
	}
}

func TestReportStore_SaveOrderTwiceUpserts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	order := reports.OrderReport{OrderID: "o-1", Symbol: "ETH/BTC", Side: "sell", Status: "open", State: "fill", Strategy: "fill", Filled: 2, Amount: 10}
	if err := store.SaveOrder(ctx, order, nil); err != nil {
		t.Fatalf("SaveOrder() error = %v", err)
	}

	order.Status = "closed"
	order.Filled = 10
	if err := store.SaveOrder(ctx, order, nil); err != nil {
		t.Fatalf("SaveOrder() again error = %v", err)
	}

	got, err := store.LoadOrder(ctx, "o-1")
	if err != nil {
		t.Fatalf("LoadOrder() error = %v", err)
	}
	if got.Status != "closed" || got.Filled != 10 {
		t.Errorf("reloaded report = %+v, want closed with filled 10", got)
	}
}

func TestReportStore_LoadMissingOrder(t *testing.T) {
	store := newTestStore(t)

	got, err := store.LoadOrder(context.Background(), "nope")
	if err != nil {
		t.Fatalf("LoadOrder() error = %v", err)
	}
	if got != nil {
		t.Errorf("LoadOrder() = %+v, want nil", got)
	}
}
