package domain

import "errors"

var (
	// ErrDataInsufficient means too few candles to evaluate; the step is skipped.
	ErrDataInsufficient = errors.New("insufficient market data")
	// ErrExecutionFailure means the exchange rejected or failed an order; retried next cycle.
	ErrExecutionFailure = errors.New("order execution failed")
	// ErrConstraintUnavailable blocks trading a symbol until constraints are known.
	ErrConstraintUnavailable = errors.New("symbol constraints unavailable")
	ErrPriceUnavailable      = errors.New("price unavailable")
	ErrInvalidSeries         = errors.New("invalid candle series")
	ErrInvalidParameters     = errors.New("invalid parameter set")

	ErrPositionExists   = errors.New("position already open")
	ErrPositionNotFound = errors.New("position not found")
	ErrPositionClosing  = errors.New("position close already in progress")
	ErrMaxPositions     = errors.New("max concurrent positions reached")
	ErrOrderTooSmall    = errors.New("order below exchange minimum")
	ErrNoCandidates     = errors.New("optimization grid is empty")
	ErrUnknownGridField = errors.New("unknown parameter field")
)
