package domain

import "time"

type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// EntryOrderSide is the exchange order side that opens a position.
func (s Side) EntryOrderSide() string {
	if s == SideShort {
		return "SELL"
	}
	return "BUY"
}

// ExitOrderSide is the exchange order side that closes a position.
func (s Side) ExitOrderSide() string {
	if s == SideShort {
		return "BUY"
	}
	return "SELL"
}

type ExitReason string

const (
	ExitStopLoss   ExitReason = "stop_loss"
	ExitTakeProfit ExitReason = "take_profit"
	ExitQuick      ExitReason = "quick_exit"
	ExitShutdown   ExitReason = "shutdown"
	ExitManual     ExitReason = "manual"
)

type Action string

const (
	ActionHold  Action = "HOLD"
	ActionEnter Action = "ENTER"
	ActionExit  Action = "EXIT"
)

// Decision is the outcome of a signal evaluation.
type Decision struct {
	Action Action     `json:"action"`
	Side   Side       `json:"side,omitempty"`
	Reason ExitReason `json:"reason,omitempty"`
}

func Hold() Decision { return Decision{Action: ActionHold} }

func Enter(side Side) Decision { return Decision{Action: ActionEnter, Side: side} }

func Exit(reason ExitReason) Decision { return Decision{Action: ActionExit, Reason: reason} }

// Position is an open holding in one symbol. Stops are fixed at entry.
type Position struct {
	ID         string            `json:"id"`
	Symbol     string            `json:"symbol"`
	Side       Side              `json:"side"`
	EntryPrice float64           `json:"entryPrice"`
	Quantity   float64           `json:"quantity"`
	StopLoss   float64           `json:"stopLoss"`
	TakeProfit float64           `json:"takeProfit"`
	EntryTime  time.Time         `json:"entryTime"`
	Params     ParameterSet      `json:"params"`
	Snapshot   IndicatorSnapshot `json:"snapshot"`
	ConfigHash string            `json:"configHash"`
	OrderID    string            `json:"orderId,omitempty"`
}

// UnrealizedPct is the gross return at price, signed for the position side.
func (p Position) UnrealizedPct(price float64) float64 {
	if p.EntryPrice == 0 {
		return 0
	}
	pct := (price - p.EntryPrice) / p.EntryPrice * 100
	if p.Side == SideShort {
		return -pct
	}
	return pct
}

// Notional is the quote value committed at entry.
func (p Position) Notional() float64 {
	return p.EntryPrice * p.Quantity
}

// Trade is a closed round trip. Trades are never mutated after being recorded.
type Trade struct {
	ID              string     `json:"id"`
	Symbol          string     `json:"symbol"`
	Side            Side       `json:"side"`
	EntryPrice      float64    `json:"entryPrice"`
	ExitPrice       float64    `json:"exitPrice"`
	Quantity        float64    `json:"quantity"`
	PnlPct          float64    `json:"pnlPct"`
	PnlAbsolute     float64    `json:"pnlAbsolute"`
	Fees            float64    `json:"fees"`
	ExitReason      ExitReason `json:"exitReason"`
	EntryTime       time.Time  `json:"entryTime"`
	ExitTime        time.Time  `json:"exitTime"`
	DurationMinutes float64    `json:"durationMinutes"`
	ConfigHash      string     `json:"configHash"`
}
