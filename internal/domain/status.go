package domain

import "time"

// EngineStatus is the operator view of the live engine.
type EngineStatus struct {
	Running        bool              `json:"running"`
	Paused         bool              `json:"paused"`
	Mode           string            `json:"mode"`
	Breaker        Breaker           `json:"breaker,omitempty"`
	Positions      []Position        `json:"positions"`
	Risk           DailyRiskState    `json:"risk"`
	Daily          Metrics           `json:"daily"`
	ConfigHash     string            `json:"configHash"`
	Params         ParameterSet      `json:"params"`
	KellyFraction  float64           `json:"kellyFraction"`
	PendingRecords int               `json:"pendingRecords"`
	SymbolErrors   map[string]string `json:"symbolErrors,omitempty"`
	LastCycle      time.Time         `json:"lastCycle"`
	UpdatedAt      time.Time         `json:"updatedAt"`
}

type EventKind string

const (
	EventPositionOpened EventKind = "POSITION_OPENED"
	EventPositionClosed EventKind = "POSITION_CLOSED"
	EventBreakerTripped EventKind = "BREAKER_TRIPPED"
	EventParamsUpdated  EventKind = "PARAMS_UPDATED"
	EventTest           EventKind = "TEST"
)

// Event is a notable engine occurrence pushed to notifiers.
type Event struct {
	Kind     EventKind `json:"kind"`
	Symbol   string    `json:"symbol,omitempty"`
	Title    string    `json:"title"`
	Body     string    `json:"body"`
	Position *Position `json:"position,omitempty"`
	Trade    *Trade    `json:"trade,omitempty"`
	Time     time.Time `json:"time"`
}

// Data flattens the event into string pairs for push payloads.
func (e Event) Data() map[string]string {
	data := map[string]string{
		"type": string(e.Kind),
	}
	if e.Symbol != "" {
		data["symbol"] = e.Symbol
	}
	return data
}
