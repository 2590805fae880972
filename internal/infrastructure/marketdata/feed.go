package marketdata

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"spot-engine/internal/domain"
	"spot-engine/internal/infrastructure/binance"
)

// DefaultStaleAfter is how long a streamed quote is trusted.
const DefaultStaleAfter = 5 * time.Second

// RESTSource is the subset of the public REST client the feed falls back to.
type RESTSource interface {
	Ping(ctx context.Context) error
	Klines(ctx context.Context, symbol, interval string, limit int, start, end time.Time) ([]domain.Candle, error)
	Price(ctx context.Context, symbol string) (float64, error)
	BookTicker(ctx context.Context, symbol string) (binance.BookTicker, error)
}

type cachedQuote struct {
	quote    binance.Quote
	received time.Time
}

// Feed serves prices from the ticker stream while it is fresh and falls back
// to REST otherwise. Candles always come from REST.
type Feed struct {
	rest       RESTSource
	interval   string
	staleAfter time.Duration
	now        func() time.Time

	mu     sync.RWMutex
	quotes map[string]cachedQuote
}

var _ domain.MarketDataProvider = (*Feed)(nil)

func NewFeed(rest RESTSource, interval string, staleAfter time.Duration) *Feed {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &Feed{
		rest:       rest,
		interval:   interval,
		staleAfter: staleAfter,
		now:        time.Now,
		quotes:     make(map[string]cachedQuote),
	}
}

// OnQuote is the stream handler.
func (f *Feed) OnQuote(q binance.Quote) {
	f.mu.Lock()
	f.quotes[q.Symbol] = cachedQuote{quote: q, received: f.now()}
	f.mu.Unlock()
}

// fresh returns the cached quote if it arrived within staleAfter.
func (f *Feed) fresh(symbol string) (binance.Quote, bool) {
	f.mu.RLock()
	c, ok := f.quotes[symbol]
	f.mu.RUnlock()
	if !ok || f.now().Sub(c.received) > f.staleAfter {
		return binance.Quote{}, false
	}
	return c.quote, true
}

func (f *Feed) Ping(ctx context.Context) error {
	return f.rest.Ping(ctx)
}

func (f *Feed) LatestCandles(ctx context.Context, symbol string, limit int) ([]domain.Candle, error) {
	candles, err := f.rest.Klines(ctx, symbol, f.interval, limit, time.Time{}, time.Time{})
	if err != nil {
		return nil, err
	}
	if err := domain.ValidateSeries(candles); err != nil {
		return nil, err
	}
	return candles, nil
}

func (f *Feed) CurrentPrice(ctx context.Context, symbol string) (float64, error) {
	if q, ok := f.fresh(symbol); ok && q.Last > 0 {
		return q.Last, nil
	}

	price, err := f.rest.Price(ctx, symbol)
	if err != nil {
		log.Debug().Err(err).Str("component", "feed").Str("symbol", symbol).Msg("REST price fallback failed")
		return 0, fmt.Errorf("%w: %s: %v", domain.ErrPriceUnavailable, symbol, err)
	}
	return price, nil
}

func (f *Feed) Spread(ctx context.Context, symbol string) (float64, error) {
	if q, ok := f.fresh(symbol); ok && q.Bid > 0 && q.Ask >= q.Bid {
		return (q.Ask - q.Bid) / q.Bid, nil
	}

	bt, err := f.rest.BookTicker(ctx, symbol)
	if err != nil {
		return 0, fmt.Errorf("%w: %s spread: %v", domain.ErrPriceUnavailable, symbol, err)
	}
	return bt.Spread()
}
