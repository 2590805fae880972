package usecase

import (
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"spot-engine/internal/domain"
)

const kellySafetyMultiplier = 0.25

// RiskGovernor owns the daily risk ledger and the capital-protection gates.
// All methods are safe for concurrent use.
type RiskGovernor struct {
	cfg   domain.RiskConfig
	mu    sync.RWMutex
	state domain.DailyRiskState
}

// NewRiskGovernor starts a session on the UTC day of now.
func NewRiskGovernor(cfg domain.RiskConfig, now time.Time) *RiskGovernor {
	return &RiskGovernor{
		cfg: cfg,
		state: domain.DailyRiskState{
			SessionDay:     sessionDay(now),
			PeakBalance:    cfg.InitialBalance,
			CurrentBalance: cfg.InitialBalance,
		},
	}
}

func (g *RiskGovernor) Config() domain.RiskConfig {
	return g.cfg
}

// Breaker reports the first gate that blocks new entries, or BreakerNone.
// maxSpread is a fraction; MaxSpreadPct is in percent.
func (g *RiskGovernor) Breaker(consecutiveLosses int, dailyPnl, maxSpread float64) domain.Breaker {
	switch {
	case consecutiveLosses >= g.cfg.MaxConsecutiveLosses:
		return domain.BreakerConsecutiveLosses
	case dailyPnl <= -g.cfg.DailyLossLimit:
		return domain.BreakerDailyLoss
	case maxSpread >= g.cfg.MaxSpreadPct/100:
		return domain.BreakerSpread
	}
	return domain.BreakerNone
}

// CheckCircuitBreakers returns false when any gate blocks new entries.
func (g *RiskGovernor) CheckCircuitBreakers(consecutiveLosses int, dailyPnl, maxSpread float64) bool {
	b := g.Breaker(consecutiveLosses, dailyPnl, maxSpread)
	if b != domain.BreakerNone {
		log.Warn().
			Str("breaker", string(b)).
			Int("consecutiveLosses", consecutiveLosses).
			Float64("dailyPnl", dailyPnl).
			Float64("maxSpread", maxSpread).
			Msg("circuit breaker tripped")
		return false
	}
	return true
}

// CurrentBreaker evaluates the gates against the governor's own ledger.
func (g *RiskGovernor) CurrentBreaker(maxSpread float64) domain.Breaker {
	s := g.State()
	return g.Breaker(s.ConsecutiveLosses, s.DailyPnl, maxSpread)
}

// SizePosition returns the quote notional for a new position, or 0 when the
// clipped size is still below the minimum order size.
func (g *RiskGovernor) SizePosition(availableBalance, price float64) float64 {
	base := availableBalance * g.cfg.PositionSizePct / 100
	size := math.Max(base, g.cfg.MinPositionSize)
	size = math.Min(size, g.cfg.MaxPositionSize)

	if size < g.cfg.MinOrderSize {
		log.Debug().Float64("size", size).Float64("minOrderSize", g.cfg.MinOrderSize).Msg("position size below minimum")
		return 0
	}
	return size
}

// KellyFraction is a quarter-Kelly fraction clamped to [0.05, 0.25].
// winRate is a probability in [0,1]; avgLoss is a positive magnitude.
// Without a loss or a win to measure against it returns 0.
func KellyFraction(winRate, avgWin, avgLoss float64) float64 {
	if avgLoss == 0 || avgWin <= 0 {
		return 0
	}
	p := winRate
	q := 1 - winRate
	b := avgWin / avgLoss

	kelly := (p*b - q) / b
	return math.Max(0.05, math.Min(0.25, kelly*kellySafetyMultiplier))
}

// Update folds a closed trade into the ledger.
func (g *RiskGovernor) Update(trade domain.Trade) {
	g.mu.Lock()
	defer g.mu.Unlock()

	s := &g.state
	if trade.PnlAbsolute > 0 {
		s.DailyProfit += trade.PnlAbsolute
		s.ConsecutiveLosses = 0
	} else {
		s.DailyLoss += math.Abs(trade.PnlAbsolute)
		s.ConsecutiveLosses++
	}
	s.DailyTrades++
	s.DailyPnl = s.DailyProfit - s.DailyLoss

	s.CurrentBalance = g.cfg.InitialBalance + s.DailyProfit - s.DailyLoss
	if s.CurrentBalance > s.PeakBalance {
		s.PeakBalance = s.CurrentBalance
	}
	if s.PeakBalance > 0 {
		dd := (s.PeakBalance - s.CurrentBalance) / s.PeakBalance * 100
		s.MaxDrawdownPct = math.Max(s.MaxDrawdownPct, dd)
	}
}

// RollDay resets the daily counters when now falls on a new UTC day.
// It reports whether a reset happened.
func (g *RiskGovernor) RollDay(now time.Time) bool {
	day := sessionDay(now)

	g.mu.Lock()
	defer g.mu.Unlock()
	if day.Equal(g.state.SessionDay) {
		return false
	}
	g.resetLocked(day)
	return true
}

// Reset clears daily counters. The peak balance carries over.
func (g *RiskGovernor) Reset(now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.resetLocked(sessionDay(now))
}

func (g *RiskGovernor) resetLocked(day time.Time) {
	g.state = domain.DailyRiskState{
		SessionDay:     day,
		PeakBalance:    g.state.PeakBalance,
		CurrentBalance: g.cfg.InitialBalance,
	}
	log.Info().Time("sessionDay", day).Msg("daily risk stats reset")
}

// State returns a copy of the ledger.
func (g *RiskGovernor) State() domain.DailyRiskState {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state
}

func sessionDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
