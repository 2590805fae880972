package usecase

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spot-engine/internal/domain"
)

func TestPositionStateMachine_OpenClose(t *testing.T) {
	m := NewPositionStateMachine(NewSignalEvaluator(), 0.25)

	pos := m.Open(OpenRequest{
		ID:       "p1",
		Symbol:   "BTCUSDT",
		Side:     domain.SideLong,
		Price:    100,
		Quantity: 2,
		Time:     testStart,
		Params:   testParams(),
	})
	assert.InDelta(t, 98.5, pos.StopLoss, 1e-9)
	assert.InDelta(t, 102.5, pos.TakeProfit, 1e-9)
	assert.Equal(t, testParams().Hash(), pos.ConfigHash)

	trade := m.Close(pos, 102, domain.ExitQuick, testStart.Add(90*time.Second), "t1")
	assert.InDelta(t, 1.75, trade.PnlPct, 1e-9)
	assert.InDelta(t, 0.5, trade.Fees, 1e-9)
	assert.InDelta(t, 3.5, trade.PnlAbsolute, 1e-9)
	assert.Equal(t, 1.0, trade.DurationMinutes)
	assert.Equal(t, pos.ConfigHash, trade.ConfigHash)
	assert.Equal(t, domain.ExitQuick, trade.ExitReason)
}

func TestPositionStateMachine_DecideEntryGates(t *testing.T) {
	m := NewPositionStateMachine(NewSignalEvaluator(), 0.25)
	check := EntryCheck{Snapshot: entrySnapshot(99), Price: 99, Params: testParams()}

	assert.Equal(t, domain.ActionEnter, m.DecideEntry(check).Action)

	held := check
	held.HasPosition = true
	assert.Equal(t, domain.ActionHold, m.DecideEntry(held).Action)

	tripped := check
	tripped.Breaker = domain.BreakerDailyLoss
	assert.Equal(t, domain.ActionHold, m.DecideEntry(tripped).Action)
}

func TestPositionBook_OneSlotPerSymbol(t *testing.T) {
	b := NewPositionBook()

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if b.Reserve("BTCUSDT", 0) == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, wins.Load())

	assert.Empty(t, b.Snapshot(), "reserved slot is not a position yet")
	b.Release("BTCUSDT")
	assert.False(t, b.Has("BTCUSDT"))
}

func TestPositionBook_MaxPositions(t *testing.T) {
	b := NewPositionBook()
	for i := 0; i < 2; i++ {
		require.NoError(t, b.Reserve(fmt.Sprintf("S%d", i), 2))
	}
	assert.ErrorIs(t, b.Reserve("S2", 2), domain.ErrMaxPositions)
	assert.ErrorIs(t, b.Reserve("S0", 2), domain.ErrPositionExists)
}

func TestPositionBook_CloseLifecycle(t *testing.T) {
	b := NewPositionBook()
	require.NoError(t, b.Reserve("BTCUSDT", 2))
	b.Commit(domain.Position{ID: "p1", Symbol: "BTCUSDT", EntryPrice: 100, Quantity: 0.2, EntryTime: testStart})
	assert.InDelta(t, 20, b.UsedCapital(), 1e-9)

	pos, err := b.BeginClose("BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, "p1", pos.ID)

	_, err = b.BeginClose("BTCUSDT")
	assert.ErrorIs(t, err, domain.ErrPositionClosing, "cannot close twice")
	assert.Len(t, b.Snapshot(), 1, "closing position stays visible")

	b.AbortClose("BTCUSDT")
	_, err = b.BeginClose("BTCUSDT")
	require.NoError(t, err, "aborted close can be retried")

	committed := false
	closedAt := testStart.Add(time.Hour)
	b.CompleteClose("BTCUSDT", closedAt, func() { committed = true })
	assert.True(t, committed)
	assert.False(t, b.Has("BTCUSDT"))
	assert.Zero(t, b.Count())

	last, ok := b.LastTrade("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, closedAt, last)

	_, err = b.BeginClose("BTCUSDT")
	assert.ErrorIs(t, err, domain.ErrPositionNotFound)
}

func TestPositionBook_SnapshotIsACopy(t *testing.T) {
	b := NewPositionBook()
	for _, s := range []string{"ETHUSDT", "BTCUSDT"} {
		require.NoError(t, b.Reserve(s, 0))
		b.Commit(domain.Position{Symbol: s, EntryPrice: 10, Quantity: 1})
	}

	snap := b.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "BTCUSDT", snap[0].Symbol)

	snap[0].EntryPrice = 999
	assert.Equal(t, 10.0, b.Snapshot()[0].EntryPrice)
}
