package domain

import "errors"

// Sentinel errors for order handling. Callers match with errors.Is.
var (
	// ErrBadPrice is returned when an order is created with a zero or
	// negative price.
	ErrBadPrice = errors.New("bad order price")

	// ErrBadAmount is returned when a replacement leg would be created
	// for a non-positive remaining amount.
	ErrBadAmount = errors.New("bad order amount")

	// ErrSymbolMismatch is returned when a currency pair cannot be
	// traded on the given symbol.
	ErrSymbolMismatch = errors.New("symbol does not match currencies")

	// ErrLegNotClosed is returned when retiring a leg that is still open.
	ErrLegNotClosed = errors.New("active leg is not closed")

	// ErrLegAlreadyOpen is returned when a placement is requested for a
	// leg that the exchange already reports as open.
	ErrLegAlreadyOpen = errors.New("leg already open")

	// ErrCancelAttemptsExceeded is returned when the cancel budget is
	// exhausted while a leg is still open. The state of the exchange
	// order is unknown at this point, so the engine treats it as fatal.
	ErrCancelAttemptsExceeded = errors.New("cancel attempts exceeded")

	// ErrUnknownAction is returned for an order command the engine does
	// not recognize.
	ErrUnknownAction = errors.New("unknown order action")

	// ErrEmptyDataRequest is returned when a data request has no key.
	ErrEmptyDataRequest = errors.New("empty data request")

	// ErrNoTicker is returned when no ticker covers the requested
	// currency pair.
	ErrNoTicker = errors.New("no ticker for currency pair")

	// ErrZeroAmounts is returned when a recovery target cannot be priced
	// because the start or destination amount is zero.
	ErrZeroAmounts = errors.New("zero start or dest amount")

	// ErrEmptyTrades is returned when totals are requested for a trade
	// list with nothing filled.
	ErrEmptyTrades = errors.New("no filled trades")
)
