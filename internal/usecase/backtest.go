package usecase

import (
	"context"
	"fmt"

	"spot-engine/internal/domain"
)

const (
	// BacktestWarmup is the trailing window length fed to the indicators.
	BacktestWarmup = 50
	// MinBacktestCandles is the shortest history a replay accepts.
	MinBacktestCandles = 100
)

// SnapshotSource computes indicators over a candle window.
type SnapshotSource interface {
	Snapshot(candles []domain.Candle) domain.IndicatorSnapshot
}

// BacktestResult is the outcome of one replay.
type BacktestResult struct {
	Symbol  string              `json:"symbol"`
	Params  domain.ParameterSet `json:"params"`
	Trades  []domain.Trade      `json:"trades"`
	Metrics domain.Metrics      `json:"metrics"`
	Candles int                 `json:"candles"`
}

// BacktestEngine replays history through the live decision logic. It keeps
// no state between runs and is safe to call from several goroutines.
type BacktestEngine struct {
	indicators SnapshotSource
	machine    *PositionStateMachine
	risk       domain.RiskConfig
}

func NewBacktestEngine(indicators SnapshotSource, machine *PositionStateMachine, risk domain.RiskConfig) *BacktestEngine {
	return &BacktestEngine{indicators: indicators, machine: machine, risk: risk}
}

// Run replays candles with params. Entries fill at the candle close; stops
// and targets are tested against the candle range and fill at their level.
// Cancellation is checked between steps.
func (e *BacktestEngine) Run(ctx context.Context, symbol string, candles []domain.Candle, params domain.ParameterSet) (BacktestResult, error) {
	result := BacktestResult{Symbol: symbol, Params: params, Candles: len(candles)}

	if err := params.Validate(); err != nil {
		return result, err
	}
	if len(candles) < MinBacktestCandles {
		return result, fmt.Errorf("%w: %s has %d candles, need %d", domain.ErrDataInsufficient, symbol, len(candles), MinBacktestCandles)
	}
	if err := domain.ValidateSeries(candles); err != nil {
		return result, err
	}

	gov := NewRiskGovernor(e.risk, candles[0].OpenTime)
	available := e.risk.InitialBalance * e.risk.CapitalUsagePct / 100

	var open *domain.Position
	trades := make([]domain.Trade, 0)
	opened := 0

	for i := BacktestWarmup; i < len(candles); i++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		c := candles[i]
		gov.RollDay(c.OpenTime)

		if open == nil {
			snap := e.indicators.Snapshot(candles[i-BacktestWarmup : i+1])
			decision := e.machine.DecideEntry(EntryCheck{
				Breaker:  gov.CurrentBreaker(0),
				Snapshot: snap,
				Price:    c.Close,
				Params:   params,
			})
			if decision.Action != domain.ActionEnter {
				continue
			}
			notional := gov.SizePosition(available, c.Close)
			if notional <= 0 {
				continue
			}

			opened++
			pos := e.machine.Open(OpenRequest{
				ID:       fmt.Sprintf("%s-%d", symbol, opened),
				Symbol:   symbol,
				Side:     decision.Side,
				Price:    c.Close,
				Quantity: notional / c.Close,
				Time:     c.OpenTime,
				Params:   params,
				Snapshot: snap,
			})
			open = &pos
			continue
		}

		obs := domain.PriceObservation{Low: c.Low, High: c.High, Last: c.Close}
		decision := e.machine.DecideExit(*open, obs, c.OpenTime)
		if decision.Action != domain.ActionExit {
			continue
		}

		trade := e.machine.Close(*open, simulatedExitPrice(*open, decision.Reason, c), decision.Reason, c.OpenTime, open.ID)
		trades = append(trades, trade)
		gov.Update(trade)
		open = nil
	}

	result.Trades = trades
	result.Metrics = domain.ComputeMetrics(trades)
	return result, nil
}

func simulatedExitPrice(pos domain.Position, reason domain.ExitReason, c domain.Candle) float64 {
	switch reason {
	case domain.ExitStopLoss:
		return pos.StopLoss
	case domain.ExitTakeProfit:
		return pos.TakeProfit
	}
	return c.Close
}
