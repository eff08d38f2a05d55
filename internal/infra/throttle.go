package infra

import (
	"sync"
	"time"
)

// Request kinds with a default weight of one. Exchanges that weight
// endpoints differently can override these per Throttle instance.
var defaultRequestWeights = map[string]int{
	"single":           1,
	"load_markets":     1,
	"fetch_tickers":    1,
	"fetch_ticker":     1,
	"fetch_order_book": 1,
	"create_order":     1,
	"fetch_order":      1,
	"cancel_order":     1,
	"fetch_my_trades":  1,
	"fetch_balance":    1,
}

type throttleEntry struct {
	timestamp float64
	kind      string
	count     int
}

// Throttle enforces a weighted request budget over a fixed period. The
// period window is anchored at the first retained request and advances in
// whole multiples of the period length. Safe for concurrent use.
type Throttle struct {
	mu sync.Mutex

	// Period is the window length in seconds.
	Period float64
	// RequestsPerPeriod is the weighted budget for one period.
	RequestsPerPeriod int

	// AllowedTimePerRequest is the minimum spacing between unit-weight
	// requests that keeps the rate within budget.
	AllowedTimePerRequest float64

	weights map[string]int

	entries           []throttleEntry
	total             int
	periodStart       float64
	periodsSinceStart int
}

// NewThrottle creates a throttle for the given period (seconds) and
// weighted request budget. The weight table is copied, so overrides never
// leak into other instances.
func NewThrottle(period float64, requestsPerPeriod int, weights map[string]int) *Throttle {
	t := &Throttle{
		Period:            period,
		RequestsPerPeriod: requestsPerPeriod,
		weights:           make(map[string]int, len(defaultRequestWeights)),
	}
	for k, v := range defaultRequestWeights {
		t.weights[k] = v
	}
	for k, v := range weights {
		t.weights[k] = v
	}
	if requestsPerPeriod != 0 {
		t.AllowedTimePerRequest = period / float64(requestsPerPeriod)
	}
	return t
}

// AddRequest records count requests of the given kind at the timestamp
// (Unix seconds) and rolls the window forward. An empty kind counts as
// "single".
func (t *Throttle) AddRequest(timestamp float64, kind string, count int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if kind == "" {
		kind = "single"
	}

	t.total += t.weight(kind) * count
	t.entries = append(t.entries, throttleEntry{timestamp: timestamp, kind: kind, count: count})
	t.update(timestamp)
}

// AddRequestNow records a single request of the given kind at the current
// time.
func (t *Throttle) AddRequestNow(kind string) {
	t.AddRequest(unixNow(), kind, 1)
}

// SleepTime returns how long to pause at the given timestamp (Unix
// seconds) to keep the request rate within budget.
func (t *Throttle) SleepTime(timestamp float64) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	requests := 0
	if len(t.entries) > 0 {
		requests = t.total
	}

	periodTime := timestamp - t.periodStart
	spent := float64(requests) * t.AllowedTimePerRequest
	if spent > periodTime {
		return spent - periodTime
	}
	return 0
}

// SleepTimeNow returns the pause needed at the current time.
func (t *Throttle) SleepTimeNow() float64 {
	return t.SleepTime(unixNow())
}

// Total returns the weighted request count of the current period.
func (t *Throttle) Total() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total
}

// Periods returns how many whole periods have elapsed since the first
// request.
func (t *Throttle) Periods() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.periodsSinceStart
}

func (t *Throttle) weight(kind string) int {
	if w, ok := t.weights[kind]; ok {
		return w
	}
	return 1
}

// update re-anchors the window at the first retained request and, when one
// or more whole periods have passed, prunes requests that fell out of the
// current period.
func (t *Throttle) update(now float64) {
	if len(t.entries) == 0 {
		return
	}
	t.periodStart = t.entries[0].timestamp

	elapsed := int((now - t.periodStart) / t.Period)
	t.periodStart += float64(elapsed) * t.Period

	if elapsed <= 0 {
		return
	}
	t.periodsSinceStart += elapsed

	kept := t.entries[:0]
	total := 0
	for _, e := range t.entries {
		if e.timestamp >= t.periodStart && e.timestamp <= now {
			kept = append(kept, e)
			total += t.weight(e.kind) * e.count
		}
	}
	t.entries = kept
	t.total = total
}

func unixNow() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}
