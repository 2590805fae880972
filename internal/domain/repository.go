package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// MarketDataProvider supplies candles, last price and bid/ask spread.
type MarketDataProvider interface {
	LatestCandles(ctx context.Context, symbol string, limit int) ([]Candle, error)
	// CurrentPrice returns ErrPriceUnavailable when no fresh price exists.
	CurrentPrice(ctx context.Context, symbol string) (float64, error)
	// Spread is (ask-bid)/bid as a fraction.
	Spread(ctx context.Context, symbol string) (float64, error)
}

// OrderExecutionPort submits market orders to the venue.
type OrderExecutionPort interface {
	SubmitMarketOrder(ctx context.Context, symbol, side string, qty decimal.Decimal) (Fill, error)
}

// SymbolConstraintsPort returns exchange trading rules for a symbol.
type SymbolConstraintsPort interface {
	Constraints(ctx context.Context, symbol string) (SymbolConstraints, error)
}

// TradeJournal is the append-only store of closed trades.
type TradeJournal interface {
	Record(ctx context.Context, trade Trade) error
	RecentTrades(ctx context.Context, limit int) ([]Trade, error)
	DailyStats(ctx context.Context, day time.Time) (Metrics, error)
	TradesByConfig(ctx context.Context, configHash string) ([]Trade, error)
}

// CandleStore caches historical candles for offline replay.
type CandleStore interface {
	SaveCandles(ctx context.Context, symbol, interval string, candles []Candle) error
	LoadCandles(ctx context.Context, symbol, interval string, from, to time.Time) ([]Candle, error)
}

// ParameterSource provides the active parameters and the search grid.
type ParameterSource interface {
	DefaultParameters() ParameterSet
	OptimizationGrid() ParameterGrid
}

// Notifier fans trading events out to an operator channel.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}
