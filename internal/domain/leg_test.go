package domain

import (
	"math"
	"testing"
)

func TestNewLegOrder(t *testing.T) {
	tests := []struct {
		name         string
		symbol       string
		amount       float64
		side         string
		price        float64
		wantStartCur string
		wantDestCur  string
		wantAmtStart float64
		wantAmtDest  float64
	}{
		{"sell", "ETH/BTC", 10, "sell", 0.05, "ETH", "BTC", 10, 0.5},
		{"buy", "ETH/BTC", 10, "buy", 0.05, "BTC", "ETH", 0.5, 10},
		{"zero price leaves amounts unset", "ETH/BTC", 10, "sell", 0, "ETH", "BTC", 0, 0},
		{"lowercase symbol normalized", "eth/btc", 1, "SELL", 0.05, "ETH", "BTC", 1, 0.05},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewLegOrder("limit", tt.symbol, tt.amount, tt.side, tt.price)
			if l.InternalID == "" {
				t.Error("InternalID not assigned")
			}
			if l.StartCurrency != tt.wantStartCur || l.DestCurrency != tt.wantDestCur {
				t.Errorf("currencies = %s -> %s, want %s -> %s",
					l.StartCurrency, l.DestCurrency, tt.wantStartCur, tt.wantDestCur)
			}
			if l.AmountStart != tt.wantAmtStart {
				t.Errorf("AmountStart = %v, want %v", l.AmountStart, tt.wantAmtStart)
			}
			if l.AmountDest != tt.wantAmtDest {
				t.Errorf("AmountDest = %v, want %v", l.AmountDest, tt.wantAmtDest)
			}
		})
	}
}

func TestNewLegFromStartAmount(t *testing.T) {
	t.Run("buy divides start amount by price", func(t *testing.T) {
		l, err := NewLegFromStartAmount("ETH/BTC", "BTC", 0.5, "ETH", 0.05)
		if err != nil {
			t.Fatalf("NewLegFromStartAmount() error = %v", err)
		}
		if l.Side != SideBuy {
			t.Errorf("Side = %q, want buy", l.Side)
		}
		if math.Abs(l.Amount-10) > 1e-9 {
			t.Errorf("Amount = %v, want 10", l.Amount)
		}
	})

	t.Run("sell keeps start amount", func(t *testing.T) {
		l, err := NewLegFromStartAmount("ETH/BTC", "ETH", 10, "BTC", 0.05)
		if err != nil {
			t.Fatalf("NewLegFromStartAmount() error = %v", err)
		}
		if l.Side != SideSell || l.Amount != 10 {
			t.Errorf("got side %q amount %v, want sell 10", l.Side, l.Amount)
		}
	})

	t.Run("symbol mismatch", func(t *testing.T) {
		if _, err := NewLegFromStartAmount("ETH/BTC", "XRP", 1, "BTC", 0.05); err == nil {
			t.Error("expected error for mismatched symbol")
		}
	})

	t.Run("bad price", func(t *testing.T) {
		if _, err := NewLegFromStartAmount("ETH/BTC", "ETH", 1, "BTC", 0); err == nil {
			t.Error("expected error for zero price")
		}
	})
}

func TestLegOrder_ApplyResponse(t *testing.T) {
	t.Run("sparse overlay keeps absent fields", func(t *testing.T) {
		l := NewLegOrder("limit", "ETH/BTC", 10, "sell", 0.05)
		l.ApplyResponse(&OrderResponse{ID: "e-1", Status: StatusOpen, Filled: Float(2), Cost: Float(0.1)})

		if l.ID != "e-1" || l.Status != StatusOpen {
			t.Errorf("ID/Status = %q/%q, want e-1/open", l.ID, l.Status)
		}
		if l.Filled != 2 || l.Cost != 0.1 {
			t.Errorf("Filled/Cost = %v/%v, want 2/0.1", l.Filled, l.Cost)
		}
		if l.Amount != 10 || l.Price != 0.05 {
			t.Errorf("absent fields changed: Amount %v Price %v", l.Amount, l.Price)
		}

		// a later sparse update must not reset the fill
		l.ApplyResponse(&OrderResponse{Status: StatusOpen})
		if l.Filled != 2 {
			t.Errorf("Filled reset to %v by sparse update", l.Filled)
		}
	})

	t.Run("fill amounts follow the side", func(t *testing.T) {
		sell := NewLegOrder("limit", "ETH/BTC", 10, "sell", 0.05)
		sell.ApplyResponse(&OrderResponse{Filled: Float(4), Cost: Float(0.2)})
		if sell.FilledStartAmount != 4 || sell.FilledDestAmount != 0.2 {
			t.Errorf("sell fills = %v/%v, want 4/0.2", sell.FilledStartAmount, sell.FilledDestAmount)
		}

		buy := NewLegOrder("limit", "ETH/BTC", 10, "buy", 0.05)
		buy.ApplyResponse(&OrderResponse{Filled: Float(4), Cost: Float(0.2)})
		if buy.FilledStartAmount != 0.2 || buy.FilledDestAmount != 4 {
			t.Errorf("buy fills = %v/%v, want 0.2/4", buy.FilledStartAmount, buy.FilledDestAmount)
		}
	})

	t.Run("nil response still counts an attempt", func(t *testing.T) {
		l := NewLegOrder("limit", "ETH/BTC", 10, "sell", 0.05)
		l.ApplyResponse(nil)
		l.ApplyResponse(&OrderResponse{Status: StatusOpen})
		if l.UpdateAttempts != 2 {
			t.Errorf("UpdateAttempts = %d, want 2", l.UpdateAttempts)
		}
	})
}
