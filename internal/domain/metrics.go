package domain

import "math"

// Metrics aggregates a trade list. Percent fields are in percent units.
type Metrics struct {
	TotalTrades    int     `json:"totalTrades"`
	WinningTrades  int     `json:"winningTrades"`
	LosingTrades   int     `json:"losingTrades"`
	WinRate        float64 `json:"winRate"`
	TotalProfit    float64 `json:"totalProfit"`
	TotalLoss      float64 `json:"totalLoss"`
	ProfitFactor   float64 `json:"profitFactor"`
	AvgProfitPct   float64 `json:"avgProfitPct"`
	AvgLossPct     float64 `json:"avgLossPct"`
	MaxDrawdownPct float64 `json:"maxDrawdownPct"`
	Sharpe         float64 `json:"sharpe"`
	Expectancy     float64 `json:"expectancy"`
}

const tradingDaysPerYear = 252

// ComputeMetrics derives Metrics from trade pnl percentages. An empty list
// yields the zero value. Profit factor is 0 when there are no losing trades.
func ComputeMetrics(trades []Trade) Metrics {
	if len(trades) == 0 {
		return Metrics{}
	}

	m := Metrics{TotalTrades: len(trades)}
	returns := make([]float64, len(trades))
	for i, t := range trades {
		returns[i] = t.PnlPct
		switch {
		case t.PnlPct > 0:
			m.WinningTrades++
			m.TotalProfit += t.PnlPct
		case t.PnlPct < 0:
			m.LosingTrades++
			m.TotalLoss += -t.PnlPct
		}
	}

	m.WinRate = float64(m.WinningTrades) / float64(m.TotalTrades) * 100
	if m.TotalLoss > 0 {
		m.ProfitFactor = m.TotalProfit / m.TotalLoss
	}
	if m.WinningTrades > 0 {
		m.AvgProfitPct = m.TotalProfit / float64(m.WinningTrades)
	}
	if m.LosingTrades > 0 {
		m.AvgLossPct = -m.TotalLoss / float64(m.LosingTrades)
	}
	m.Expectancy = m.WinRate/100*m.AvgProfitPct + (1-m.WinRate/100)*m.AvgLossPct
	m.MaxDrawdownPct = compoundedDrawdown(returns)

	mean, std := meanStd(returns)
	if std > 0 && !math.IsNaN(std) {
		m.Sharpe = mean / std * math.Sqrt(tradingDaysPerYear)
	}
	return m
}

// compoundedDrawdown is the largest peak-to-trough fall of the curve that
// compounds each return. The running peak starts at the first point of the
// curve, so a losing first trade is not a drawdown on its own.
func compoundedDrawdown(returns []float64) float64 {
	equity, worst := 1.0, 0.0
	peak := math.Inf(-1)
	for _, r := range returns {
		equity *= 1 + r/100
		if equity > peak {
			peak = equity
		}
		if peak <= 0 {
			continue
		}
		if dd := (peak - equity) / peak * 100; dd > worst {
			worst = dd
		}
	}
	return worst
}

// meanStd returns the mean and sample standard deviation. Fewer than two
// values have no defined deviation and report 0.
func meanStd(values []float64) (float64, float64) {
	n := float64(len(values))
	if n == 0 {
		return 0, 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	mean := sum / n
	if n < 2 {
		return mean, 0
	}
	sq := 0.0
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	return mean, math.Sqrt(sq / (n - 1))
}
