package infra

import (
	"testing"
	"time"
)

func TestReconnectBackoff_Delay(t *testing.T) {
	b := DefaultReconnectBackoff

	tests := []struct {
		name  string
		retry int
		want  time.Duration
	}{
		{"first retry", 0, 1 * time.Second},
		{"doubles", 1, 2 * time.Second},
		{"keeps doubling", 3, 8 * time.Second},
		{"capped", 10, 60 * time.Second},
		{"stays capped", 100, 60 * time.Second},
		{"negative retry", -1, 1 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := b.Delay(tt.retry); got != tt.want {
				t.Errorf("Delay(%d) = %s, want %s", tt.retry, got, tt.want)
			}
		})
	}
}

func TestReconnectBackoff_CustomPolicy(t *testing.T) {
	b := ReconnectBackoff{Base: 100 * time.Millisecond, Max: 1 * time.Second}

	if got := b.Delay(2); got != 400*time.Millisecond {
		t.Errorf("Delay(2) = %s, want 400ms", got)
	}
	if got := b.Delay(5); got != 1*time.Second {
		t.Errorf("Delay(5) = %s, want the 1s cap", got)
	}
}
