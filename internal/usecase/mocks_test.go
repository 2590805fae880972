package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"spot-engine/internal/domain"
)

type mockConstraints struct {
	mock.Mock
}

func (m *mockConstraints) Constraints(ctx context.Context, symbol string) (domain.SymbolConstraints, error) {
	args := m.Called(ctx, symbol)
	return args.Get(0).(domain.SymbolConstraints), args.Error(1)
}

type mockExecutor struct {
	mock.Mock
}

func (m *mockExecutor) SubmitMarketOrder(ctx context.Context, symbol, side string, qty decimal.Decimal) (domain.Fill, error) {
	args := m.Called(ctx, symbol, side, qty)
	return args.Get(0).(domain.Fill), args.Error(1)
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Notify(ctx context.Context, event domain.Event) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// fakeMarket serves canned candles, prices and spreads.
type fakeMarket struct {
	mu      sync.Mutex
	candles map[string][]domain.Candle
	prices  map[string]float64
	spreads map[string]float64
	errs    map[string]error
}

func newFakeMarket() *fakeMarket {
	return &fakeMarket{
		candles: make(map[string][]domain.Candle),
		prices:  make(map[string]float64),
		spreads: make(map[string]float64),
		errs:    make(map[string]error),
	}
}

func (f *fakeMarket) set(symbol string, candles []domain.Candle, price, spread float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.candles[symbol] = candles
	f.prices[symbol] = price
	f.spreads[symbol] = spread
}

func (f *fakeMarket) setPrice(symbol string, price float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prices[symbol] = price
}

func (f *fakeMarket) LatestCandles(_ context.Context, symbol string, limit int) ([]domain.Candle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[symbol]; err != nil {
		return nil, err
	}
	c := f.candles[symbol]
	if limit > 0 && len(c) > limit {
		c = c[len(c)-limit:]
	}
	return c, nil
}

func (f *fakeMarket) CurrentPrice(_ context.Context, symbol string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[symbol]; err != nil {
		return 0, err
	}
	p, ok := f.prices[symbol]
	if !ok {
		return 0, domain.ErrPriceUnavailable
	}
	return p, nil
}

func (f *fakeMarket) Spread(_ context.Context, symbol string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.spreads[symbol]
	if !ok {
		return 0, domain.ErrPriceUnavailable
	}
	return s, nil
}

// blockingHistory serves prices from fakeMarket but holds LatestCandles
// until the caller gives up.
type blockingHistory struct {
	*fakeMarket
}

func (b blockingHistory) LatestCandles(ctx context.Context, _ string, _ int) ([]domain.Candle, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// memJournal records trades and can be told to fail.
type memJournal struct {
	mu     sync.Mutex
	trades []domain.Trade
	fail   bool
}

func (j *memJournal) setFail(v bool) {
	j.mu.Lock()
	j.fail = v
	j.mu.Unlock()
}

func (j *memJournal) Record(_ context.Context, trade domain.Trade) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.fail {
		return context.DeadlineExceeded
	}
	j.trades = append(j.trades, trade)
	return nil
}

func (j *memJournal) RecentTrades(_ context.Context, limit int) ([]domain.Trade, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := append([]domain.Trade(nil), j.trades...)
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (j *memJournal) DailyStats(_ context.Context, day time.Time) (domain.Metrics, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	var today []domain.Trade
	for _, t := range j.trades {
		if sessionDay(t.ExitTime).Equal(sessionDay(day)) {
			today = append(today, t)
		}
	}
	return domain.ComputeMetrics(today), nil
}

func (j *memJournal) TradesByConfig(_ context.Context, hash string) ([]domain.Trade, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []domain.Trade
	for _, t := range j.trades {
		if t.ConfigHash == hash {
			out = append(out, t)
		}
	}
	return out, nil
}

func (j *memJournal) count() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.trades)
}

type staticParams struct {
	params domain.ParameterSet
	grid   domain.ParameterGrid
}

func (s staticParams) DefaultParameters() domain.ParameterSet { return s.params }

func (s staticParams) OptimizationGrid() domain.ParameterGrid { return s.grid }

func btcConstraints() domain.SymbolConstraints {
	return domain.SymbolConstraints{
		MinQty:         decimal.RequireFromString("0.0001"),
		MaxQty:         decimal.RequireFromString("9000"),
		StepSize:       decimal.RequireFromString("0.0001"),
		MinNotional:    decimal.RequireFromString("10"),
		TickSize:       decimal.RequireFromString("0.01"),
		PricePrecision: 2,
	}
}
