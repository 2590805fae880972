package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"spot-engine/internal/domain"
)

type klineSource interface {
	HistoricalKlines(ctx context.Context, symbol, interval string, from, to time.Time) ([]domain.Candle, error)
}

// historyLoader reads candles from the store when it covers the whole
// range and falls back to the venue, writing what it fetched back.
type historyLoader struct {
	rest     klineSource
	store    domain.CandleStore
	interval string
	step     time.Duration
}

func (l *historyLoader) Load(ctx context.Context, symbol string, from, to time.Time) ([]domain.Candle, error) {
	if l.store != nil {
		cached, err := l.store.LoadCandles(ctx, symbol, l.interval, from, to)
		switch {
		case err != nil:
			log.Warn().Err(err).Str("symbol", symbol).Msg("candle cache read failed")
		case l.covers(cached, from, to):
			log.Debug().Str("symbol", symbol).Int("candles", len(cached)).Msg("candles served from cache")
			return cached, nil
		}
	}

	candles, err := l.rest.HistoricalKlines(ctx, symbol, l.interval, from, to)
	if err != nil {
		return nil, fmt.Errorf("fetch %s klines: %w", symbol, err)
	}
	if l.store != nil && len(candles) > 0 {
		if err := l.store.SaveCandles(ctx, symbol, l.interval, candles); err != nil {
			log.Warn().Err(err).Str("symbol", symbol).Msg("candle cache write failed")
		}
	}
	return candles, nil
}

func (l *historyLoader) covers(candles []domain.Candle, from, to time.Time) bool {
	want := int(to.Sub(from) / l.step)
	if want == 0 || len(candles) < want {
		return false
	}
	return !candles[0].OpenTime.After(from) && !candles[len(candles)-1].OpenTime.Before(to.Add(-l.step))
}
