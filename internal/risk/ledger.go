package risk

import (
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/betbot/kalshibot/internal/domain"
	"github.com/betbot/kalshibot/pkg/logger"
)

// pendingIntent is an admitted-but-unconfirmed order. remaining starts
// at the intent's count and shrinks as partial fills confirm.
type pendingIntent struct {
	intent    *domain.OrderIntent
	remaining int
	admitted  time.Time
}

// groupState is one risk bucket. All mutation happens under its mutex,
// never the ledger-wide one, so unrelated groups don't serialize.
type groupState struct {
	mu sync.Mutex

	name            string
	contractsLimit  int
	filledContracts int
	created         bool
	groupID         string
	inconsistent    bool
	pending         map[string]*pendingIntent
}

func (g *groupState) pendingLocked() int {
	total := 0
	for _, p := range g.pending {
		total += p.remaining
	}
	return total
}

// remainingLocked is the admissible headroom: the cap minus confirmed
// fills minus capacity already reserved by pending intents. Without
// the pending term two sequential admits could jointly oversell a
// bucket before either fill confirms.
func (g *groupState) remainingLocked() int {
	r := g.contractsLimit - g.filledContracts - g.pendingLocked()
	if r < 0 {
		return 0
	}
	return r
}

// GroupLedger tracks contract capacity per named strategy bucket and
// gates order admission. Admission is a single atomic check-and-reserve
// per group; no network I/O ever happens under a group lock.
type GroupLedger struct {
	mu     sync.RWMutex
	groups map[string]*groupState
}

// NewGroupLedger returns an empty ledger.
func NewGroupLedger() *GroupLedger {
	return &GroupLedger{groups: make(map[string]*groupState)}
}

// Register creates a bucket with an immutable contract cap.
func (l *GroupLedger) Register(name string, contractsLimit int) error {
	if contractsLimit <= 0 {
		return errors.Errorf("ledger: group %q limit %d must be positive", name, contractsLimit)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.groups[name]; ok {
		return errors.Errorf("ledger: group %q already registered", name)
	}
	l.groups[name] = &groupState{
		name:           name,
		contractsLimit: contractsLimit,
		pending:        make(map[string]*pendingIntent),
	}
	return nil
}

func (l *GroupLedger) group(name string) (*groupState, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	g, ok := l.groups[name]
	return g, ok
}

// Remaining is the capacity still open for new intents: the cap minus
// confirmed fills minus pending reservations, floored at zero. It is
// the only number strategies may trust when sizing new orders.
func (l *GroupLedger) Remaining(name string) int {
	g, ok := l.group(name)
	if !ok {
		return 0
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.remainingLocked()
}

// Admit reserves capacity for an intent. It registers the intent as
// pending and returns true only when intent.Count fits in the group's
// remaining capacity; otherwise it mutates nothing and returns false.
// The check and the registration are atomic per group, so concurrent
// admits cannot jointly oversell a bucket.
func (l *GroupLedger) Admit(name string, intent *domain.OrderIntent) bool {
	g, ok := l.group(name)
	if !ok {
		logger.Warnf("ledger: admit against unknown group %q", name)
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if intent.Count <= 0 || intent.Count > g.remainingLocked() {
		return false
	}
	if _, dup := g.pending[intent.ClientOrderID]; dup {
		logger.Warnf("ledger: duplicate client order id %s in group %q", intent.ClientOrderID, name)
		return false
	}
	g.pending[intent.ClientOrderID] = &pendingIntent{
		intent:    intent,
		remaining: intent.Count,
		admitted:  time.Now(),
	}
	return true
}

// ConfirmFill applies an exchange-confirmed fill. Partial fills keep
// the intent pending with its unfilled remainder. A fill that would
// push filled past the cap is clamped and flagged, not propagated: the
// exchange is the source of truth and the overshoot means our local
// view drifted.
func (l *GroupLedger) ConfirmFill(name, clientOrderID string, filledCount int) {
	g, ok := l.group(name)
	if !ok {
		logger.Warnf("ledger: fill for unknown group %q", name)
		return
	}
	if filledCount <= 0 {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.filledContracts+filledCount > g.contractsLimit {
		logger.Warnf("ledger: group %q fill of %d would exceed cap %d (filled=%d); clamping",
			name, filledCount, g.contractsLimit, g.filledContracts)
		g.filledContracts = g.contractsLimit
		g.inconsistent = true
	} else {
		g.filledContracts += filledCount
	}

	p, ok := g.pending[clientOrderID]
	if !ok {
		logger.Warnf("ledger: fill for untracked order %s in group %q", clientOrderID, name)
		return
	}
	p.remaining -= filledCount
	if p.remaining <= 0 {
		delete(g.pending, clientOrderID)
	}
}

// Release drops a pending intent without counting any fill, returning
// its reserved capacity. Used on cancellation or submit rejection.
func (l *GroupLedger) Release(name, clientOrderID string) bool {
	g, ok := l.group(name)
	if !ok {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.pending[clientOrderID]; !ok {
		return false
	}
	delete(g.pending, clientOrderID)
	return true
}

// IsPending reports whether a client order id is still tracked as
// pending in the group.
func (l *GroupLedger) IsPending(name, clientOrderID string) bool {
	g, ok := l.group(name)
	if !ok {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok = g.pending[clientOrderID]
	return ok
}

// PendingContracts sums the unconfirmed contract counts currently
// reserved in a group. Callers that want to stay conservative bound
// Remaining() minus this as well.
func (l *GroupLedger) PendingContracts(name string) int {
	g, ok := l.group(name)
	if !ok {
		return 0
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pendingLocked()
}

// MarkCreated records the exchange-side group registration.
func (l *GroupLedger) MarkCreated(name, exchangeGroupID string) {
	g, ok := l.group(name)
	if !ok {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.created = true
	g.groupID = exchangeGroupID
}

// Created reports whether the group was registered with the exchange,
// and under which exchange-assigned id.
func (l *GroupLedger) Created(name string) (string, bool) {
	g, ok := l.group(name)
	if !ok {
		return "", false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.groupID, g.created
}

// Inconsistent reports whether a clamped fill was ever observed for
// the group. Operators should reconcile against the exchange.
func (l *GroupLedger) Inconsistent(name string) bool {
	g, ok := l.group(name)
	if !ok {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inconsistent
}

// StaleIntent identifies a pending intent older than some cutoff.
type StaleIntent struct {
	Group         string
	ClientOrderID string
	Age           time.Duration
}

// StalePending lists intents admitted longer than maxAge ago. A stuck
// intent reserves capacity forever; the watchdog uses this to find and
// release them.
func (l *GroupLedger) StalePending(maxAge time.Duration) []StaleIntent {
	l.mu.RLock()
	groups := make([]*groupState, 0, len(l.groups))
	for _, g := range l.groups {
		groups = append(groups, g)
	}
	l.mu.RUnlock()

	now := time.Now()
	var stale []StaleIntent
	for _, g := range groups {
		g.mu.Lock()
		for id, p := range g.pending {
			if age := now.Sub(p.admitted); age > maxAge {
				stale = append(stale, StaleIntent{Group: g.name, ClientOrderID: id, Age: age})
			}
		}
		g.mu.Unlock()
	}
	return stale
}
