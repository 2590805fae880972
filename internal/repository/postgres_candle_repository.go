package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"spot-engine/internal/domain"
)

// PostgresCandleRepository caches downloaded klines keyed by
// (symbol, interval, open_time).
type PostgresCandleRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresCandleRepository(pool *pgxpool.Pool) *PostgresCandleRepository {
	return &PostgresCandleRepository{pool: pool}
}

// SaveCandles upserts candles in one batch.
func (r *PostgresCandleRepository) SaveCandles(ctx context.Context, symbol, interval string, candles []domain.Candle) error {
	if len(candles) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, c := range candles {
		batch.Queue(`
			insert into candles(symbol, interval, open_time, open, high, low, close, volume)
			values ($1,$2,$3,$4,$5,$6,$7,$8)
			on conflict (symbol, interval, open_time) do update set
				open=excluded.open,
				high=excluded.high,
				low=excluded.low,
				close=excluded.close,
				volume=excluded.volume
		`, symbol, interval, c.OpenTime, c.Open, c.High, c.Low, c.Close, c.Volume)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()
	for i := range candles {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("save %s %s candle %d: %w", symbol, interval, i, err)
		}
	}
	return nil
}

// LoadCandles returns cached candles with open time in [from, to), oldest first.
func (r *PostgresCandleRepository) LoadCandles(ctx context.Context, symbol, interval string, from, to time.Time) ([]domain.Candle, error) {
	rows, err := r.pool.Query(ctx, `
		select open_time, open, high, low, close, volume
		from candles
		where symbol = $1 and interval = $2 and open_time >= $3 and open_time < $4
		order by open_time asc
	`, symbol, interval, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	candles := make([]domain.Candle, 0)
	for rows.Next() {
		var c domain.Candle
		if err := rows.Scan(&c.OpenTime, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, err
		}
		c.OpenTime = c.OpenTime.UTC()
		candles = append(candles, c)
	}
	return candles, rows.Err()
}

var _ domain.CandleStore = (*PostgresCandleRepository)(nil)
