package risk

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/kalshibot/internal/domain"
)

func intent(id string, count int) *domain.OrderIntent {
	return &domain.OrderIntent{
		Ticker:        "INXD-23DEC29",
		Action:        domain.ActionBuy,
		Side:          domain.SideYes,
		PriceCents:    37,
		Count:         count,
		ClientOrderID: id,
	}
}

func newLedger(t *testing.T, limit int) *GroupLedger {
	t.Helper()
	l := NewGroupLedger()
	require.NoError(t, l.Register("touch", limit))
	return l
}

func TestRegisterRejectsBadInput(t *testing.T) {
	l := NewGroupLedger()
	assert.Error(t, l.Register("g", 0))
	assert.Error(t, l.Register("g", -5))
	require.NoError(t, l.Register("g", 10))
	assert.Error(t, l.Register("g", 10), "duplicate registration")
}

// Walk-through of the capacity lifecycle: admit, decline, fill,
// readmit.
func TestCapacityLifecycle(t *testing.T) {
	l := newLedger(t, 100)
	assert.Equal(t, 100, l.Remaining("touch"))

	a := intent("A", 60)
	require.True(t, l.Admit("touch", a))
	assert.Equal(t, 40, l.Remaining("touch"))
	assert.Equal(t, 60, l.PendingContracts("touch"))

	b := intent("B", 50)
	assert.False(t, l.Admit("touch", b), "50 > 40 must be declined")
	assert.Equal(t, 40, l.Remaining("touch"), "declined admit must not mutate")
	assert.Equal(t, 60, l.PendingContracts("touch"))

	l.ConfirmFill("touch", "A", 60)
	assert.Equal(t, 40, l.Remaining("touch"))
	assert.Equal(t, 0, l.PendingContracts("touch"))
	assert.False(t, l.IsPending("touch", "A"))

	c := intent("C", 40)
	assert.True(t, l.Admit("touch", c))
	assert.Equal(t, 0, l.Remaining("touch"))
}

func TestRemainingUnknownGroup(t *testing.T) {
	l := NewGroupLedger()
	assert.Equal(t, 0, l.Remaining("nope"))
	assert.False(t, l.Admit("nope", intent("X", 1)))
}

func TestPartialFillKeepsIntentPending(t *testing.T) {
	l := newLedger(t, 100)
	require.True(t, l.Admit("touch", intent("A", 60)))

	l.ConfirmFill("touch", "A", 25)
	assert.True(t, l.IsPending("touch", "A"), "partially filled intent stays pending")
	assert.Equal(t, 35, l.PendingContracts("touch"))
	assert.Equal(t, 100-25-35, l.Remaining("touch"))

	l.ConfirmFill("touch", "A", 35)
	assert.False(t, l.IsPending("touch", "A"))
	assert.Equal(t, 40, l.Remaining("touch"))
}

func TestReleaseReturnsCapacity(t *testing.T) {
	l := newLedger(t, 50)
	require.True(t, l.Admit("touch", intent("A", 50)))
	assert.Equal(t, 0, l.Remaining("touch"))

	assert.True(t, l.Release("touch", "A"))
	assert.Equal(t, 50, l.Remaining("touch"))
	assert.False(t, l.Release("touch", "A"), "double release is a no-op")
}

func TestOverfillClampsAndFlags(t *testing.T) {
	l := newLedger(t, 10)
	require.True(t, l.Admit("touch", intent("A", 10)))
	assert.False(t, l.Inconsistent("touch"))

	// The exchange reports more than our cap allows; the ledger clamps
	// instead of crashing and marks the drift.
	l.ConfirmFill("touch", "A", 25)
	assert.Equal(t, 0, l.Remaining("touch"))
	assert.True(t, l.Inconsistent("touch"))
}

func TestDuplicateClientOrderIDRejected(t *testing.T) {
	l := newLedger(t, 100)
	require.True(t, l.Admit("touch", intent("A", 10)))
	assert.False(t, l.Admit("touch", intent("A", 10)))
	assert.Equal(t, 10, l.PendingContracts("touch"))
}

// Admission is conservative under contention: concurrent admits may
// never jointly reserve more than the cap.
func TestConcurrentAdmitNoOversell(t *testing.T) {
	const limit = 100
	l := newLedger(t, limit)

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			oi := intent(fmt.Sprintf("order-%d", n), 10)
			if l.Admit("touch", oi) {
				mu.Lock()
				admitted += oi.Count
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, limit, admitted, "exactly the cap must be admitted")
	assert.Equal(t, 0, l.Remaining("touch"))
	assert.Equal(t, limit, l.PendingContracts("touch"))
}

func TestMarkCreated(t *testing.T) {
	l := newLedger(t, 10)
	_, created := l.Created("touch")
	assert.False(t, created)

	l.MarkCreated("touch", "og-42")
	id, created := l.Created("touch")
	assert.True(t, created)
	assert.Equal(t, "og-42", id)
}

func TestStalePending(t *testing.T) {
	l := newLedger(t, 100)
	require.True(t, l.Admit("touch", intent("A", 10)))

	assert.Empty(t, l.StalePending(time.Minute))

	time.Sleep(5 * time.Millisecond)
	stale := l.StalePending(time.Millisecond)
	require.Len(t, stale, 1)
	assert.Equal(t, "touch", stale[0].Group)
	assert.Equal(t, "A", stale[0].ClientOrderID)
}
