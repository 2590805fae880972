package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"spot-engine/internal/domain"
)

// PostgresTradeJournal stores closed trades in Postgres. Rows are inserted
// once and never updated.
type PostgresTradeJournal struct {
	pool *pgxpool.Pool
}

func NewPostgresTradeJournal(pool *pgxpool.Pool) *PostgresTradeJournal {
	return &PostgresTradeJournal{pool: pool}
}

const tradeColumns = `id, symbol, side, entry_price, exit_price, quantity,
	pnl_pct, pnl_abs, fees, exit_reason, entry_time, exit_time,
	duration_minutes, config_hash`

func (r *PostgresTradeJournal) Record(ctx context.Context, trade domain.Trade) error {
	if trade.ID == "" {
		return errors.New("trade without ID")
	}

	_, err := r.pool.Exec(ctx, `
		insert into trades(`+tradeColumns+`)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		on conflict (id) do nothing
	`,
		trade.ID,
		trade.Symbol,
		string(trade.Side),
		trade.EntryPrice,
		trade.ExitPrice,
		trade.Quantity,
		trade.PnlPct,
		trade.PnlAbsolute,
		trade.Fees,
		string(trade.ExitReason),
		trade.EntryTime,
		trade.ExitTime,
		trade.DurationMinutes,
		nullableText(trade.ConfigHash),
	)
	return err
}

func (r *PostgresTradeJournal) RecentTrades(ctx context.Context, limit int) ([]domain.Trade, error) {
	if limit <= 0 {
		limit = 1000
	}
	return r.query(ctx, `
		select `+tradeColumns+`
		from trades
		order by exit_time desc
		limit $1
	`, limit)
}

func (r *PostgresTradeJournal) DailyStats(ctx context.Context, day time.Time) (domain.Metrics, error) {
	from, to := dayBounds(day)
	trades, err := r.query(ctx, `
		select `+tradeColumns+`
		from trades
		where exit_time >= $1 and exit_time < $2
		order by exit_time asc
	`, from, to)
	if err != nil {
		return domain.Metrics{}, err
	}
	return domain.ComputeMetrics(trades), nil
}

func (r *PostgresTradeJournal) TradesByConfig(ctx context.Context, configHash string) ([]domain.Trade, error) {
	return r.query(ctx, `
		select `+tradeColumns+`
		from trades
		where config_hash = $1
		order by exit_time asc
	`, configHash)
}

func (r *PostgresTradeJournal) query(ctx context.Context, sql string, args ...any) ([]domain.Trade, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	trades := make([]domain.Trade, 0)
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTrade(s scanner) (domain.Trade, error) {
	var t domain.Trade
	var side, reason string
	var configHash pgtype.Text

	if err := s.Scan(
		&t.ID,
		&t.Symbol,
		&side,
		&t.EntryPrice,
		&t.ExitPrice,
		&t.Quantity,
		&t.PnlPct,
		&t.PnlAbsolute,
		&t.Fees,
		&reason,
		&t.EntryTime,
		&t.ExitTime,
		&t.DurationMinutes,
		&configHash,
	); err != nil {
		return domain.Trade{}, err
	}

	t.Side = domain.Side(side)
	t.ExitReason = domain.ExitReason(reason)
	t.EntryTime = t.EntryTime.UTC()
	t.ExitTime = t.ExitTime.UTC()
	if configHash.Valid {
		t.ConfigHash = configHash.String
	}
	return t, nil
}

func nullableText(v string) any {
	if v == "" {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{Valid: true, String: v}
}

var _ domain.TradeJournal = (*PostgresTradeJournal)(nil)
