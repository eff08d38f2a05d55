package domain

import "fmt"

// Ticker is the best bid/ask view of a single market.
type Ticker struct {
	Symbol    string
	Ask       float64
	Bid       float64
	Last      float64
	Timestamp int64 // Unix milliseconds
}

// TickerMap holds tickers keyed by symbol.
type TickerMap map[string]Ticker

// OrderPrice describes how to convert one currency into another over a
// single market: which symbol, which side, and the current taker and maker
// prices for that side.
type OrderPrice struct {
	Symbol         string
	Side           string  // "buy" or "sell"
	PriceType      string  // "ask" or "bid"
	Price          float64 // taker price, 0 when not available
	MakerPriceType string
	MakerPrice     float64
}

// OrderPriceFromTickers resolves the symbol, side and taker/maker prices
// for converting startCurrency into destCurrency using the given tickers.
func OrderPriceFromTickers(startCurrency, destCurrency string, tickers TickerMap) (OrderPrice, error) {
	var op OrderPrice

	if t, ok := tickers[startCurrency+"/"+destCurrency]; ok {
		op.Symbol = t.Symbol
		if op.Symbol == "" {
			op.Symbol = startCurrency + "/" + destCurrency
		}
		op.Side = SideSell
		op.PriceType = "bid"
		op.MakerPriceType = "ask"
		if t.Bid > 0 {
			op.Price = t.Bid
		}
		if t.Ask > 0 {
			op.MakerPrice = t.Ask
		}
		return op, nil
	}

	if t, ok := tickers[destCurrency+"/"+startCurrency]; ok {
		op.Symbol = t.Symbol
		if op.Symbol == "" {
			op.Symbol = destCurrency + "/" + startCurrency
		}
		op.Side = SideBuy
		op.PriceType = "ask"
		op.MakerPriceType = "bid"
		if t.Ask > 0 {
			op.Price = t.Ask
		}
		if t.Bid > 0 {
			op.MakerPrice = t.Bid
		}
		return op, nil
	}

	return op, fmt.Errorf("%w: %s -> %s", ErrNoTicker, startCurrency, destCurrency)
}

// AsTicker extracts a Ticker from a resolved market data value. Values may
// arrive as Ticker, *Ticker or a generic map produced by path lookups.
func AsTicker(v any) (Ticker, bool) {
	switch t := v.(type) {
	case Ticker:
		return t, true
	case *Ticker:
		if t == nil {
			return Ticker{}, false
		}
		return *t, true
	case map[string]any:
		var out Ticker
		if s, ok := t["symbol"].(string); ok {
			out.Symbol = s
		}
		if f, ok := t["ask"].(float64); ok {
			out.Ask = f
		}
		if f, ok := t["bid"].(float64); ok {
			out.Bid = f
		}
		if f, ok := t["last"].(float64); ok {
			out.Last = f
		}
		return out, out.Ask > 0 || out.Bid > 0
	}
	return Ticker{}, false
}
