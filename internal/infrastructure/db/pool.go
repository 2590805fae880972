package db

import (
	"context"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type PoolConfig struct {
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxConns:          10,
		MinConns:          2,
		MaxConnLifetime:   30 * time.Minute,
		MaxConnIdleTime:   5 * time.Minute,
		HealthCheckPeriod: 30 * time.Second,
	}
}

// PoolConfigFromEnv overlays DB_* environment variables on the defaults.
// Malformed values are ignored.
func PoolConfigFromEnv() PoolConfig {
	return poolConfigFrom(os.Getenv)
}

func poolConfigFrom(getenv func(string) string) PoolConfig {
	cfg := DefaultPoolConfig()

	conns := map[string]*int32{
		"DB_MAX_CONNS": &cfg.MaxConns,
		"DB_MIN_CONNS": &cfg.MinConns,
	}
	for key, dst := range conns {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			if n, err := strconv.ParseInt(v, 10, 32); err == nil {
				*dst = int32(n)
			}
		}
	}

	durations := map[string]*time.Duration{
		"DB_MAX_CONN_LIFETIME":  &cfg.MaxConnLifetime,
		"DB_MAX_CONN_IDLE_TIME": &cfg.MaxConnIdleTime,
		"DB_HEALTHCHECK_PERIOD": &cfg.HealthCheckPeriod,
	}
	for key, dst := range durations {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			if d, err := time.ParseDuration(v); err == nil {
				*dst = d
			}
		}
	}

	if cfg.MaxConns < 1 {
		cfg.MaxConns = 1
	}
	if cfg.MinConns < 0 {
		cfg.MinConns = 0
	}
	if cfg.MinConns > cfg.MaxConns {
		cfg.MinConns = cfg.MaxConns
	}

	return cfg
}

// withSSLMode sets sslmode when the URL does not carry one. Local
// databases usually run with mode "disable".
func withSSLMode(dbURL, mode string) string {
	if mode == "" {
		return dbURL
	}
	u, err := url.Parse(dbURL)
	if err != nil {
		// pgx will surface the parse error.
		return dbURL
	}

	q := u.Query()
	if q.Get("sslmode") == "" {
		q.Set("sslmode", mode)
		u.RawQuery = q.Encode()
	}
	return strings.TrimSpace(u.String())
}

// NewPool connects and pings. sslMode defaults to "require".
func NewPool(ctx context.Context, databaseURL, sslMode string, cfg PoolConfig) (*pgxpool.Pool, error) {
	if sslMode == "" {
		sslMode = "require"
	}
	poolCfg, err := pgxpool.ParseConfig(withSSLMode(databaseURL, sslMode))
	if err != nil {
		return nil, err
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolCfg.HealthCheckPeriod = cfg.HealthCheckPeriod

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}
