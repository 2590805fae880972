package usecase

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spot-engine/internal/domain"
	"spot-engine/internal/infrastructure/indicators"
)

func newTestBacktest(src SnapshotSource) *BacktestEngine {
	machine := NewPositionStateMachine(NewSignalEvaluator(), testRisk().TotalCostPct)
	return NewBacktestEngine(src, machine, testRisk())
}

func trigger(c []domain.Candle, i int) {
	c[i].Volume = triggerVolume
}

func TestBacktest_TakeProfitAndStopLoss(t *testing.T) {
	candles := flatCandles(200)
	trigger(candles, 60)
	candles[100].High = 103
	trigger(candles, 120)
	candles[130].Low = 98

	res, err := newTestBacktest(scriptedIndicators{}).Run(context.Background(), "BTCUSDT", candles, testParams())
	require.NoError(t, err)
	require.Len(t, res.Trades, 2)

	tp := res.Trades[0]
	assert.Equal(t, "BTCUSDT-1", tp.ID)
	assert.Equal(t, domain.ExitTakeProfit, tp.ExitReason)
	assert.InDelta(t, 102.5, tp.ExitPrice, 1e-9)
	assert.InDelta(t, 2.25, tp.PnlPct, 1e-9)
	assert.InDelta(t, 0.225, tp.Quantity, 1e-9, "22.5 quote at 100")
	assert.Equal(t, candles[60].OpenTime, tp.EntryTime)
	assert.Equal(t, 40.0, tp.DurationMinutes)

	sl := res.Trades[1]
	assert.Equal(t, "BTCUSDT-2", sl.ID)
	assert.Equal(t, domain.ExitStopLoss, sl.ExitReason)
	assert.InDelta(t, 98.5, sl.ExitPrice, 1e-9)
	assert.InDelta(t, -1.75, sl.PnlPct, 1e-9)

	assert.Equal(t, 2, res.Metrics.TotalTrades)
	assert.InDelta(t, 50, res.Metrics.WinRate, 1e-9)
}

func TestBacktest_QuickExitFillsAtClose(t *testing.T) {
	candles := flatCandles(120)
	trigger(candles, 60)
	candles[65].Close = 101.2
	candles[65].High = 101.3

	res, err := newTestBacktest(scriptedIndicators{}).Run(context.Background(), "ETHUSDT", candles, testParams())
	require.NoError(t, err)
	require.Len(t, res.Trades, 1)
	assert.Equal(t, domain.ExitQuick, res.Trades[0].ExitReason)
	assert.InDelta(t, 101.2, res.Trades[0].ExitPrice, 1e-9)
}

func TestBacktest_BreakerBlocksUntilNextDay(t *testing.T) {
	candles := flatCandles(24*60 + 120)
	for _, i := range []int{60, 70, 80} {
		trigger(candles, i)
		candles[i+2].Low = 98
	}
	trigger(candles, 90)
	nextDay := 24*60 + 60
	trigger(candles, nextDay)
	candles[nextDay+2].Low = 98

	res, err := newTestBacktest(scriptedIndicators{}).Run(context.Background(), "BTCUSDT", candles, testParams())
	require.NoError(t, err)
	require.Len(t, res.Trades, 4)
	for _, tr := range res.Trades[:3] {
		assert.Equal(t, domain.ExitStopLoss, tr.ExitReason)
	}
	assert.Equal(t, candles[nextDay].OpenTime, res.Trades[3].EntryTime, "third loss blocks entries for the day")
}

func TestBacktest_Deterministic(t *testing.T) {
	candles := make([]domain.Candle, 400)
	for i := range candles {
		base := 100 + 3*math.Sin(float64(i)/7) + 1.5*math.Sin(float64(i)/3)
		candles[i] = domain.Candle{
			OpenTime: testStart.Add(time.Duration(i) * time.Minute),
			Open:     base,
			High:     base + 0.6,
			Low:      base - 0.6,
			Close:    base + 0.2*math.Cos(float64(i)),
			Volume:   10 + 5*math.Abs(math.Sin(float64(i)/2)),
		}
	}
	engine := newTestBacktest(indicators.NewEngine(indicators.DefaultPeriods()))

	first, err := engine.Run(context.Background(), "BTCUSDT", candles, testParams())
	require.NoError(t, err)
	second, err := engine.Run(context.Background(), "BTCUSDT", candles, testParams())
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestBacktest_Errors(t *testing.T) {
	engine := newTestBacktest(scriptedIndicators{})

	_, err := engine.Run(context.Background(), "BTCUSDT", flatCandles(99), testParams())
	assert.ErrorIs(t, err, domain.ErrDataInsufficient)

	bad := testParams()
	bad.StopLossPct = 0
	_, err = engine.Run(context.Background(), "BTCUSDT", flatCandles(200), bad)
	assert.ErrorIs(t, err, domain.ErrInvalidParameters)

	unordered := flatCandles(200)
	unordered[150].OpenTime = unordered[149].OpenTime
	_, err = engine.Run(context.Background(), "BTCUSDT", unordered, testParams())
	assert.ErrorIs(t, err, domain.ErrInvalidSeries)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = engine.Run(ctx, "BTCUSDT", flatCandles(200), testParams())
	assert.ErrorIs(t, err, context.Canceled)
}
