package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spot-engine/internal/domain"
)

var day = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func trade(id string, exit time.Time, pnlPct float64, hash string) domain.Trade {
	return domain.Trade{
		ID:          id,
		Symbol:      "BTCUSDT",
		Side:        domain.SideLong,
		EntryPrice:  100,
		ExitPrice:   100 + pnlPct,
		Quantity:    0.2,
		PnlPct:      pnlPct,
		PnlAbsolute: pnlPct * 0.2,
		ExitReason:  domain.ExitTakeProfit,
		EntryTime:   exit.Add(-10 * time.Minute),
		ExitTime:    exit,
		ConfigHash:  hash,
	}
}

func TestInMemoryTradeJournal_RecordIsIdempotent(t *testing.T) {
	j := NewInMemoryTradeJournal()
	ctx := context.Background()

	require.NoError(t, j.Record(ctx, trade("t1", day.Add(time.Hour), 1, "a")))
	require.NoError(t, j.Record(ctx, trade("t1", day.Add(time.Hour), 1, "a")))
	assert.Error(t, j.Record(ctx, domain.Trade{Symbol: "BTCUSDT"}))

	all, err := j.RecentTrades(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestInMemoryTradeJournal_RecentTradesNewestFirst(t *testing.T) {
	j := NewInMemoryTradeJournal()
	ctx := context.Background()
	for i, id := range []string{"t1", "t2", "t3"} {
		require.NoError(t, j.Record(ctx, trade(id, day.Add(time.Duration(i)*time.Hour), 1, "a")))
	}

	recent, err := j.RecentTrades(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "t3", recent[0].ID)
	assert.Equal(t, "t2", recent[1].ID)
}

func TestInMemoryTradeJournal_DailyStats(t *testing.T) {
	j := NewInMemoryTradeJournal()
	ctx := context.Background()
	require.NoError(t, j.Record(ctx, trade("prev", day.Add(-time.Minute), -5, "a")))
	require.NoError(t, j.Record(ctx, trade("w", day, 2, "a")))
	require.NoError(t, j.Record(ctx, trade("l", day.Add(23*time.Hour+59*time.Minute), -1, "b")))
	require.NoError(t, j.Record(ctx, trade("next", day.AddDate(0, 0, 1), 3, "b")))

	m, err := j.DailyStats(ctx, day.Add(12*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, m.TotalTrades)
	assert.Equal(t, 1, m.WinningTrades)
	assert.InDelta(t, 50.0, m.WinRate, 1e-9)
	assert.InDelta(t, 2.0, m.ProfitFactor, 1e-9)

	empty, err := j.DailyStats(ctx, day.AddDate(0, 0, 5))
	require.NoError(t, err)
	assert.Equal(t, domain.Metrics{}, empty)
}

func TestInMemoryTradeJournal_TradesByConfig(t *testing.T) {
	j := NewInMemoryTradeJournal()
	ctx := context.Background()
	require.NoError(t, j.Record(ctx, trade("t1", day, 1, "a")))
	require.NoError(t, j.Record(ctx, trade("t2", day, 1, "b")))
	require.NoError(t, j.Record(ctx, trade("t3", day, 1, "a")))

	got, err := j.TradesByConfig(ctx, "a")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "t1", got[0].ID)
	assert.Equal(t, "t3", got[1].ID)

	none, err := j.TradesByConfig(ctx, "zzz")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestTokenRepository(t *testing.T) {
	r := NewTokenRepository()
	now := time.Now()

	require.NoError(t, r.RegisterToken("tok-b", "ios", now))
	require.NoError(t, r.RegisterToken("tok-a", "android", now))
	require.NoError(t, r.RegisterToken("tok-a", "android", now.Add(time.Minute)))
	assert.Error(t, r.RegisterToken("", "android", now))
	assert.Error(t, r.RegisterToken("tok-c", "web", now))

	assert.Equal(t, []string{"tok-a", "tok-b"}, r.Tokens())
	assert.Equal(t, 2, r.Count())

	r.UnregisterToken("tok-b")
	r.UnregisterToken("missing")
	assert.Equal(t, []string{"tok-a"}, r.Tokens())
}
