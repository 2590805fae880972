package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"spot-engine/internal/domain"
)

// InMemoryTradeJournal stores closed trades in memory, in recording order.
type InMemoryTradeJournal struct {
	mu     sync.RWMutex
	trades []domain.Trade
	ids    map[string]struct{}
}

var _ domain.TradeJournal = (*InMemoryTradeJournal)(nil)

func NewInMemoryTradeJournal() *InMemoryTradeJournal {
	return &InMemoryTradeJournal{
		trades: make([]domain.Trade, 0),
		ids:    make(map[string]struct{}),
	}
}

// Record appends a trade. Re-recording an ID is a no-op so pending retries
// stay idempotent.
func (r *InMemoryTradeJournal) Record(_ context.Context, trade domain.Trade) error {
	if trade.ID == "" {
		return fmt.Errorf("trade without ID for %s", trade.Symbol)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.ids[trade.ID]; exists {
		return nil
	}
	r.ids[trade.ID] = struct{}{}
	r.trades = append(r.trades, trade)
	return nil
}

// RecentTrades returns up to limit trades, newest first. limit <= 0 means all.
func (r *InMemoryTradeJournal) RecentTrades(_ context.Context, limit int) ([]domain.Trade, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := len(r.trades)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]domain.Trade, 0, n)
	for i := len(r.trades) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, r.trades[i])
	}
	return out, nil
}

// DailyStats computes metrics over trades that exited on day's UTC date.
func (r *InMemoryTradeJournal) DailyStats(_ context.Context, day time.Time) (domain.Metrics, error) {
	from, to := dayBounds(day)

	r.mu.RLock()
	defer r.mu.RUnlock()

	var today []domain.Trade
	for _, t := range r.trades {
		if !t.ExitTime.Before(from) && t.ExitTime.Before(to) {
			today = append(today, t)
		}
	}
	return domain.ComputeMetrics(today), nil
}

func (r *InMemoryTradeJournal) TradesByConfig(_ context.Context, configHash string) ([]domain.Trade, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Trade, 0)
	for _, t := range r.trades {
		if t.ConfigHash == configHash {
			out = append(out, t)
		}
	}
	return out, nil
}

// dayBounds is [00:00, 24:00) UTC of t's date.
func dayBounds(t time.Time) (time.Time, time.Time) {
	u := t.UTC()
	from := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	return from, from.AddDate(0, 0, 1)
}
