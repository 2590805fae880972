package usecase

import (
	"time"

	"spot-engine/internal/domain"
)

var testStart = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func testParams() domain.ParameterSet {
	return domain.ParameterSet{
		RSIOversold:      32,
		RSIOverbought:    68,
		StopLossPct:      1.5,
		TakeProfitPct:    2.5,
		MinVolumeRatio:   0.5,
		MinBBWidth:       0.8,
		BBSqueezeCeiling: 5.0,
	}
}

func testRisk() domain.RiskConfig {
	return domain.RiskConfig{
		InitialBalance:       200,
		CapitalUsagePct:      75,
		PositionSizePct:      15,
		MinPositionSize:      15,
		MaxPositionSize:      40,
		MinOrderSize:         10,
		DailyLossLimit:       15,
		MaxConsecutiveLosses: 3,
		MaxSpreadPct:         0.3,
		TotalCostPct:         0.25,
	}
}

// flatCandles returns n one-minute candles around price 100.
func flatCandles(n int) []domain.Candle {
	out := make([]domain.Candle, n)
	for i := range out {
		out[i] = domain.Candle{
			OpenTime: testStart.Add(time.Duration(i) * time.Minute),
			Open:     100,
			High:     100.5,
			Low:      99.5,
			Close:    100,
			Volume:   10,
		}
	}
	return out
}

// triggerVolume marks a candle on which scriptedIndicators fires an entry.
const triggerVolume = 999

// scriptedIndicators emits an entry-worthy snapshot whenever the window's
// last candle carries triggerVolume, and a neutral snapshot otherwise.
type scriptedIndicators struct{}

func (scriptedIndicators) Snapshot(candles []domain.Candle) domain.IndicatorSnapshot {
	snap := domain.DefaultSnapshot()
	if len(candles) == 0 {
		return snap
	}
	last := candles[len(candles)-1]
	snap.CurrentPrice = last.Close
	if last.Volume != triggerVolume {
		return snap
	}
	snap.RSI = 20
	snap.BBLower = last.Close + 1
	snap.EMA = last.Close - 1
	snap.VolumeRatio = 2
	snap.BBWidthPct = 2
	return snap
}

func entrySnapshot(price float64) domain.IndicatorSnapshot {
	return domain.IndicatorSnapshot{
		RSI:          28,
		BBLower:      price + 1,
		EMA:          price - 4,
		VolumeRatio:  0.8,
		BBWidthPct:   1.0,
		BBPosition:   0,
		CurrentPrice: price,
	}
}
