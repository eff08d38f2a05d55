package domain

// OrderStamps records when an order transition was observed, as Unix
// timestamps in seconds.
type OrderStamps struct {
	RequestPlaced   float64
	RequestReceived float64
	FromExchange    float64
}

// OrderResponse is a sparse order update from the exchange. Nil pointer
// fields and empty strings mean "not reported in this response" and leave
// the corresponding leg field untouched when applied.
type OrderResponse struct {
	ID                 string
	Datetime           string
	Timestamp          int64 // Unix milliseconds
	LastTradeTimestamp int64

	Status string // "open", "closed", "canceled"

	Amount    *float64
	Filled    *float64
	Remaining *float64
	Cost      *float64
	Price     *float64

	Trades []Trade
	Fee    *Fee
	Fees   []Fee

	TimestampOpen   *OrderStamps
	TimestampClosed *OrderStamps
}

// Float returns a pointer to v, for building sparse responses.
func Float(v float64) *float64 {
	return &v
}

// Merge overlays the present fields of other onto r. Used to fold trade
// reconciliation results into an order update before applying it.
func (r *OrderResponse) Merge(other *OrderResponse) {
	if other == nil {
		return
	}
	if other.ID != "" {
		r.ID = other.ID
	}
	if other.Status != "" {
		r.Status = other.Status
	}
	if other.Filled != nil {
		r.Filled = other.Filled
	}
	if other.Cost != nil {
		r.Cost = other.Cost
	}
	if other.Price != nil {
		r.Price = other.Price
	}
	if len(other.Trades) > 0 {
		r.Trades = other.Trades
	}
}
