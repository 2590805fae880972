package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Migrate creates the trade journal and candle cache tables.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`create table if not exists trades (
			id text primary key,
			symbol text not null,
			side text not null,
			entry_price double precision not null,
			exit_price double precision not null,
			quantity double precision not null,
			pnl_pct double precision not null,
			pnl_abs double precision not null,
			fees double precision not null default 0,
			exit_reason text not null,
			entry_time timestamptz not null,
			exit_time timestamptz not null,
			duration_minutes double precision not null default 0,
			config_hash text null,
			recorded_at timestamptz not null default now()
		);`,
		`create index if not exists trades_exit_time_idx on trades(exit_time desc);`,
		`create index if not exists trades_config_hash_idx on trades(config_hash);`,
		`create index if not exists trades_symbol_exit_time_idx on trades(symbol, exit_time desc);`,
		`create table if not exists candles (
			symbol text not null,
			interval text not null,
			open_time timestamptz not null,
			open double precision not null,
			high double precision not null,
			low double precision not null,
			close double precision not null,
			volume double precision not null,
			primary key (symbol, interval, open_time)
		);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
