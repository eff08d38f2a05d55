package infra

import (
	"time"
)

// ReconnectBackoff is the retry policy of connection loops: the base delay
// doubles with every failed attempt until it reaches the cap.
type ReconnectBackoff struct {
	Base time.Duration
	Max  time.Duration
}

// DefaultReconnectBackoff paces the ticker feed's reconnect attempts.
var DefaultReconnectBackoff = ReconnectBackoff{
	Base: 1 * time.Second,
	Max:  60 * time.Second,
}

// Delay returns the wait before the given retry. Negative retries wait the
// base delay.
func (b ReconnectBackoff) Delay(retry int) time.Duration {
	if retry < 0 {
		return b.Base
	}
	// the shift would wrap long after the cap is reached
	if retry > 30 {
		return b.Max
	}
	d := b.Base << uint(retry)
	if d > b.Max {
		return b.Max
	}
	return d
}
