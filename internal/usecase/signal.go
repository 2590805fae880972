package usecase

import (
	"time"

	"spot-engine/internal/domain"
)

const (
	quickExitMinPnlPct = 1.0
	quickExitWindow    = 15 * time.Minute
)

// SignalEvaluator holds the pure entry and exit rules.
type SignalEvaluator struct{}

func NewSignalEvaluator() *SignalEvaluator {
	return &SignalEvaluator{}
}

// EvaluateEntry returns Enter(long) only when every condition holds.
func (e *SignalEvaluator) EvaluateEntry(snap domain.IndicatorSnapshot, price float64, params domain.ParameterSet) domain.Decision {
	conditions := []bool{
		snap.RSI < params.RSIOversold,
		price < snap.BBLower,
		price > snap.EMA,
		snap.VolumeRatio > params.MinVolumeRatio,
		snap.BBWidthPct > params.MinBBWidth,
		snap.BBWidthPct < params.BBSqueezeCeiling,
	}
	for _, ok := range conditions {
		if !ok {
			return domain.Hold()
		}
	}
	return domain.Enter(domain.SideLong)
}

// EvaluateExit checks stop loss, take profit and quick exit in that order.
// For a long, obs.Low is tested against the stop and obs.High against the
// target; a short mirrors both.
func (e *SignalEvaluator) EvaluateExit(pos domain.Position, obs domain.PriceObservation, now time.Time) domain.Decision {
	if pos.Side == domain.SideShort {
		if obs.High >= pos.StopLoss {
			return domain.Exit(domain.ExitStopLoss)
		}
		if obs.Low <= pos.TakeProfit {
			return domain.Exit(domain.ExitTakeProfit)
		}
	} else {
		if obs.Low <= pos.StopLoss {
			return domain.Exit(domain.ExitStopLoss)
		}
		if obs.High >= pos.TakeProfit {
			return domain.Exit(domain.ExitTakeProfit)
		}
	}

	if pos.UnrealizedPct(obs.Last) >= quickExitMinPnlPct && now.Sub(pos.EntryTime) < quickExitWindow {
		return domain.Exit(domain.ExitQuick)
	}
	return domain.Hold()
}
