package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spot-engine/internal/domain"
	"spot-engine/internal/infrastructure/db"
)

// testPool connects to SPOT_TEST_DATABASE_URL or skips.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv("SPOT_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("SPOT_TEST_DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pool, err := db.NewPool(ctx, url, "disable", db.DefaultPoolConfig())
	require.NoError(t, err)
	require.NoError(t, db.Migrate(ctx, pool))
	t.Cleanup(pool.Close)
	return pool
}

func TestPostgresTradeJournal(t *testing.T) {
	pool := testPool(t)
	j := NewPostgresTradeJournal(pool)
	ctx := context.Background()

	hash := "test-" + uuid.NewString()
	exit := time.Now().UTC().Truncate(time.Millisecond)
	tr := trade(uuid.NewString(), exit, 1.5, hash)

	require.NoError(t, j.Record(ctx, tr))
	require.NoError(t, j.Record(ctx, tr), "re-recording is a no-op")

	got, err := j.TradesByConfig(ctx, hash)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, tr.ID, got[0].ID)
	assert.Equal(t, domain.SideLong, got[0].Side)
	assert.Equal(t, domain.ExitTakeProfit, got[0].ExitReason)
	assert.True(t, tr.ExitTime.Equal(got[0].ExitTime))

	stats, err := j.DailyStats(ctx, exit)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, stats.TotalTrades, 1)

	recent, err := j.RecentTrades(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, recent, 1)
}

func TestPostgresCandleRepository(t *testing.T) {
	pool := testPool(t)
	r := NewPostgresCandleRepository(pool)
	ctx := context.Background()

	symbol := "TEST" + uuid.NewString()[:8]
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	candles := []domain.Candle{
		{OpenTime: start, Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 10},
		{OpenTime: start.Add(time.Minute), Open: 1.5, High: 2.5, Low: 1, Close: 2, Volume: 11},
	}
	require.NoError(t, r.SaveCandles(ctx, symbol, "1m", candles))

	candles[1].Close = 2.2
	require.NoError(t, r.SaveCandles(ctx, symbol, "1m", candles[1:]))

	got, err := r.LoadCandles(ctx, symbol, "1m", start, start.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, candles, got)

	none, err := r.LoadCandles(ctx, symbol, "5m", start, start.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, none)
}
