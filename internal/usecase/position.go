package usecase

import (
	"math"
	"time"

	"spot-engine/internal/domain"
)

// PositionStateMachine implements the NONE -> OPEN -> NONE transitions shared
// by live trading and backtests. It holds no state of its own.
type PositionStateMachine struct {
	signals      *SignalEvaluator
	totalCostPct float64
}

func NewPositionStateMachine(signals *SignalEvaluator, totalCostPct float64) *PositionStateMachine {
	return &PositionStateMachine{signals: signals, totalCostPct: totalCostPct}
}

// EntryCheck bundles everything the NONE -> OPEN transition depends on.
type EntryCheck struct {
	HasPosition bool
	Breaker     domain.Breaker
	Snapshot    domain.IndicatorSnapshot
	Price       float64
	Params      domain.ParameterSet
}

// DecideEntry returns Enter only when the slot is empty, no breaker is
// tripped and the entry signal fires. Sizing is checked by the caller.
func (m *PositionStateMachine) DecideEntry(c EntryCheck) domain.Decision {
	if c.HasPosition || c.Breaker != domain.BreakerNone {
		return domain.Hold()
	}
	return m.signals.EvaluateEntry(c.Snapshot, c.Price, c.Params)
}

// DecideExit delegates to the exit rules.
func (m *PositionStateMachine) DecideExit(pos domain.Position, obs domain.PriceObservation, now time.Time) domain.Decision {
	return m.signals.EvaluateExit(pos, obs, now)
}

// Stops computes fixed stop-loss and take-profit levels for an entry.
func Stops(entry float64, side domain.Side, params domain.ParameterSet) (stopLoss, takeProfit float64) {
	if side == domain.SideShort {
		return entry * (1 + params.StopLossPct/100), entry * (1 - params.TakeProfitPct/100)
	}
	return entry * (1 - params.StopLossPct/100), entry * (1 + params.TakeProfitPct/100)
}

// OpenRequest describes a filled entry.
type OpenRequest struct {
	ID       string
	Symbol   string
	Side     domain.Side
	Price    float64
	Quantity float64
	Time     time.Time
	Params   domain.ParameterSet
	Snapshot domain.IndicatorSnapshot
	OrderID  string
}

// Open builds the position for a filled entry.
func (m *PositionStateMachine) Open(req OpenRequest) domain.Position {
	sl, tp := Stops(req.Price, req.Side, req.Params)
	return domain.Position{
		ID:         req.ID,
		Symbol:     req.Symbol,
		Side:       req.Side,
		EntryPrice: req.Price,
		Quantity:   req.Quantity,
		StopLoss:   sl,
		TakeProfit: tp,
		EntryTime:  req.Time,
		Params:     req.Params,
		Snapshot:   req.Snapshot,
		ConfigHash: req.Params.Hash(),
		OrderID:    req.OrderID,
	}
}

// Close turns a position into a trade. The flat round-trip cost is deducted
// from pnl% and charged on the entry notional.
func (m *PositionStateMachine) Close(pos domain.Position, exitPrice float64, reason domain.ExitReason, exitTime time.Time, tradeID string) domain.Trade {
	gross := (exitPrice - pos.EntryPrice) * pos.Quantity
	if pos.Side == domain.SideShort {
		gross = -gross
	}
	fees := pos.Quantity * pos.EntryPrice * m.totalCostPct / 100

	return domain.Trade{
		ID:              tradeID,
		Symbol:          pos.Symbol,
		Side:            pos.Side,
		EntryPrice:      pos.EntryPrice,
		ExitPrice:       exitPrice,
		Quantity:        pos.Quantity,
		PnlPct:          pos.UnrealizedPct(exitPrice) - m.totalCostPct,
		PnlAbsolute:     gross - fees,
		Fees:            fees,
		ExitReason:      reason,
		EntryTime:       pos.EntryTime,
		ExitTime:        exitTime,
		DurationMinutes: math.Floor(exitTime.Sub(pos.EntryTime).Minutes()),
		ConfigHash:      pos.ConfigHash,
	}
}
