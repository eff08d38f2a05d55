package domain

import (
	"errors"
	"testing"
)

func TestCommand_String(t *testing.T) {
	tests := []struct {
		name string
		cmd  Command
		want string
	}{
		{"none", NoneCmd(), ""},
		{"hold", Hold(), "hold"},
		{"new", New(), "new"},
		{"cancel", Cancel(), "cancel"},
		{"hold with request", Hold().WithRequest("tickers", "ETH/BTC"), "hold tickers ETH/BTC"},
		{
			"two requests",
			Cancel().WithRequest("tickers", "ETH/BTC").WithRequest("ohlcv", "ETH/BTC", "1m"),
			"cancel tickers ETH/BTC; ohlcv ETH/BTC 1m",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cmd.String(); got != tt.want {
				t.Errorf("Command.String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    Command
		wantErr bool
	}{
		{"empty", "", NoneCmd(), false},
		{"hold", "hold", Hold(), false},
		{"cancel with tickers", "cancel tickers ETH/BTC", Cancel().WithRequest("tickers", "ETH/BTC"), false},
		{
			"two requests",
			"hold tickers ETH/BTC; tickers BTC/USDT",
			Hold().WithRequest("tickers", "ETH/BTC").WithRequest("tickers", "BTC/USDT"),
			false,
		},
		{"blank request dropped", "hold tickers ETH/BTC; ", Hold().WithRequest("tickers", "ETH/BTC"), false},
		{"unknown action", "explode now", Command{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCommand(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseCommand(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, ErrUnknownAction) {
					t.Errorf("ParseCommand(%q) error = %v, want ErrUnknownAction", tt.in, err)
				}
				return
			}
			if got.Action != tt.want.Action {
				t.Errorf("ParseCommand(%q).Action = %v, want %v", tt.in, got.Action, tt.want.Action)
			}
			if len(got.Requests) != len(tt.want.Requests) {
				t.Fatalf("ParseCommand(%q) requests = %v, want %v", tt.in, got.Requests, tt.want.Requests)
			}
			for i := range got.Requests {
				if got.Requests[i].String() != tt.want.Requests[i].String() {
					t.Errorf("request[%d] = %q, want %q", i, got.Requests[i], tt.want.Requests[i])
				}
			}
		})
	}
}

func TestParseCommand_RoundTrip(t *testing.T) {
	in := "cancel tickers ETH/BTC; tickers BTC/USDT"
	cmd, err := ParseCommand(in)
	if err != nil {
		t.Fatalf("ParseCommand(%q) error = %v", in, err)
	}
	if got := cmd.String(); got != in {
		t.Errorf("round trip = %q, want %q", got, in)
	}
}
