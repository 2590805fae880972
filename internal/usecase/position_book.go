package usecase

import (
	"sort"
	"sync"
	"time"

	"spot-engine/internal/domain"
)

type slotState int

const (
	slotReserved slotState = iota
	slotOpen
	slotClosing
)

type slot struct {
	state slotState
	pos   domain.Position
}

// PositionBook is the live symbol -> position map. A symbol holds at most one
// slot; a slot is reserved before any order is sent so concurrent entries for
// the same symbol are rejected up front.
type PositionBook struct {
	mu        sync.RWMutex
	slots     map[string]*slot
	lastTrade map[string]time.Time
}

func NewPositionBook() *PositionBook {
	return &PositionBook{
		slots:     make(map[string]*slot),
		lastTrade: make(map[string]time.Time),
	}
}

// Reserve claims the symbol's slot. maxPositions counts every occupied slot.
func (b *PositionBook) Reserve(symbol string, maxPositions int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.slots[symbol]; exists {
		return domain.ErrPositionExists
	}
	if maxPositions > 0 && len(b.slots) >= maxPositions {
		return domain.ErrMaxPositions
	}
	b.slots[symbol] = &slot{state: slotReserved}
	return nil
}

// Commit publishes the opened position into its reserved slot.
func (b *PositionBook) Commit(pos domain.Position) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.slots[pos.Symbol] = &slot{state: slotOpen, pos: pos}
	b.lastTrade[pos.Symbol] = pos.EntryTime
}

// Release frees a reservation whose entry did not go through.
func (b *PositionBook) Release(symbol string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if s, ok := b.slots[symbol]; ok && s.state == slotReserved {
		delete(b.slots, symbol)
	}
}

// BeginClose marks an open position as closing and returns it. The position
// stays visible to readers until CompleteClose.
func (b *PositionBook) BeginClose(symbol string) (domain.Position, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.slots[symbol]
	if !ok || s.state == slotReserved {
		return domain.Position{}, domain.ErrPositionNotFound
	}
	if s.state == slotClosing {
		return domain.Position{}, domain.ErrPositionClosing
	}
	s.state = slotClosing
	return s.pos, nil
}

// AbortClose returns a closing position to open so it is retried.
func (b *PositionBook) AbortClose(symbol string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if s, ok := b.slots[symbol]; ok && s.state == slotClosing {
		s.state = slotOpen
	}
}

// CompleteClose runs commit and removes the position under one write lock,
// so no reader sees the trade booked while the position is still listed.
func (b *PositionBook) CompleteClose(symbol string, closedAt time.Time, commit func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if commit != nil {
		commit()
	}
	delete(b.slots, symbol)
	b.lastTrade[symbol] = closedAt
}

// Has reports whether the symbol's slot is occupied in any state.
func (b *PositionBook) Has(symbol string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.slots[symbol]
	return ok
}

func (b *PositionBook) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.slots)
}

// Snapshot copies all open and closing positions, ordered by symbol.
func (b *PositionBook) Snapshot() []domain.Position {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]domain.Position, 0, len(b.slots))
	for _, s := range b.slots {
		if s.state != slotReserved {
			out = append(out, s.pos)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// UsedCapital is the entry notional tied up in positions.
func (b *PositionBook) UsedCapital() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()

	used := 0.0
	for _, s := range b.slots {
		if s.state != slotReserved {
			used += s.pos.Notional()
		}
	}
	return used
}

// LastTrade is the time of the symbol's most recent open or close.
func (b *PositionBook) LastTrade(symbol string) (time.Time, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	t, ok := b.lastTrade[symbol]
	return t, ok
}
