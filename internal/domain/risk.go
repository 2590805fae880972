package domain

import "time"

// RiskConfig holds capital-protection limits. Monetary values are in quote currency.
type RiskConfig struct {
	InitialBalance       float64 `json:"initial_balance" mapstructure:"initial_balance" validate:"gt=0"`
	CapitalUsagePct      float64 `json:"capital_usage_pct" mapstructure:"capital_usage_pct" validate:"gt=0,lte=100"`
	PositionSizePct      float64 `json:"position_size_pct" mapstructure:"position_size_pct" validate:"gt=0,lte=100"`
	MinPositionSize      float64 `json:"min_position_size" mapstructure:"min_position_size" validate:"gte=0"`
	MaxPositionSize      float64 `json:"max_position_size" mapstructure:"max_position_size" validate:"gtefield=MinPositionSize"`
	MinOrderSize         float64 `json:"min_order_size" mapstructure:"min_order_size" validate:"gte=0"`
	DailyLossLimit       float64 `json:"daily_loss_limit" mapstructure:"daily_loss_limit" validate:"gt=0"`
	MaxConsecutiveLosses int     `json:"max_consecutive_losses" mapstructure:"max_consecutive_losses" validate:"gt=0"`
	MaxSpreadPct         float64 `json:"max_spread_pct" mapstructure:"max_spread_pct" validate:"gt=0"`
	TotalCostPct         float64 `json:"total_cost_pct" mapstructure:"total_cost_pct" validate:"gte=0"`
}

// DailyRiskState is the per-session risk ledger. Drawdown is in percent.
type DailyRiskState struct {
	SessionDay        time.Time `json:"sessionDay"`
	ConsecutiveLosses int       `json:"consecutiveLosses"`
	DailyProfit       float64   `json:"dailyProfit"`
	DailyLoss         float64   `json:"dailyLoss"`
	DailyPnl          float64   `json:"dailyPnl"`
	DailyTrades       int       `json:"dailyTrades"`
	PeakBalance       float64   `json:"peakBalance"`
	CurrentBalance    float64   `json:"currentBalance"`
	MaxDrawdownPct    float64   `json:"maxDrawdownPct"`
}

// Breaker names the circuit breaker that blocks new entries.
type Breaker string

const (
	BreakerNone              Breaker = ""
	BreakerConsecutiveLosses Breaker = "consecutive_losses"
	BreakerDailyLoss         Breaker = "daily_loss_limit"
	BreakerSpread            Breaker = "max_spread"
)
