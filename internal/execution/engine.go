package execution

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/betbot/kalshibot/internal/domain"
	"github.com/betbot/kalshibot/internal/risk"
	"github.com/betbot/kalshibot/pkg/kalshi"
	"github.com/betbot/kalshibot/pkg/logger"
)

// ErrNoCapacity means the ledger declined admission. This is an
// expected outcome under normal operation, not a fault.
var ErrNoCapacity = errors.New("execution: group capacity exhausted")

// OrderAPI is the slice of the exchange client the engine needs.
type OrderAPI interface {
	CreateOrder(ctx context.Context, payload any) (*kalshi.CreateOrderResponse, error)
	CancelOrder(ctx context.Context, orderID string) (*kalshi.CancelOrderResponse, error)
}

// Engine glues the ledger to the exchange: capacity is reserved first,
// the HTTP submission happens outside every ledger lock, and a failed
// submission returns its reservation immediately.
type Engine struct {
	client OrderAPI
	ledger *risk.GroupLedger

	// Transport-level submit failures are retried a bounded number of
	// times with jittered exponential backoff. Exchange rejections
	// (non-200) are never retried.
	maxAttempts int
	retryBase   time.Duration

	mu          sync.Mutex
	exchangeIDs map[string]string // client order id -> exchange order id
}

// NewEngine builds an engine over a client and a seeded ledger.
func NewEngine(client OrderAPI, ledger *risk.GroupLedger) *Engine {
	return &Engine{
		client:      client,
		ledger:      ledger,
		maxAttempts: 3,
		retryBase:   250 * time.Millisecond,
		exchangeIDs: make(map[string]string),
	}
}

// Submit reserves capacity for the intent and sends it. On any final
// failure the reservation is released before the error is returned.
func (e *Engine) Submit(ctx context.Context, group string, intent *domain.OrderIntent) (*kalshi.Order, error) {
	if err := intent.Validate(); err != nil {
		return nil, err
	}
	if !e.ledger.Admit(group, intent) {
		return nil, ErrNoCapacity
	}

	resp, err := e.submitWithRetry(ctx, intent)
	if err != nil {
		e.ledger.Release(group, intent.ClientOrderID)
		return nil, err
	}

	e.mu.Lock()
	e.exchangeIDs[intent.ClientOrderID] = resp.Order.OrderID
	e.mu.Unlock()

	logger.WithFields(map[string]interface{}{
		"group":  group,
		"ticker": intent.Ticker,
		"count":  intent.Count,
		"order":  resp.Order.OrderID,
	}).Infof("order submitted")
	return &resp.Order, nil
}

func (e *Engine) submitWithRetry(ctx context.Context, intent *domain.OrderIntent) (*kalshi.CreateOrderResponse, error) {
	payload := intent.Payload()
	var lastErr error
	for attempt := 0; attempt < e.maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoffDelay(attempt, e.retryBase)):
			}
		}
		resp, err := e.client.CreateOrder(ctx, payload)
		if err == nil {
			return resp, nil
		}
		if _, isStatus := kalshi.AsStatusError(err); isStatus {
			// The exchange saw and rejected the request. Retrying the
			// same client_order_id cannot help.
			return nil, err
		}
		lastErr = err
		logger.Warnf("submit attempt %d failed (transport): %v", attempt+1, err)
	}
	return nil, errors.Wrapf(lastErr, "submit gave up after %d attempts", e.maxAttempts)
}

// ConfirmFill reports an exchange-confirmed fill to the ledger and
// drops the exchange-id mapping once the order is no longer pending.
func (e *Engine) ConfirmFill(group, clientOrderID string, filledCount int) {
	e.ledger.ConfirmFill(group, clientOrderID, filledCount)
	if !e.ledger.IsPending(group, clientOrderID) {
		e.forget(clientOrderID)
	}
}

// Cancel cancels a pending order at the exchange and returns its
// reserved capacity to the group.
func (e *Engine) Cancel(ctx context.Context, group, clientOrderID string) error {
	e.mu.Lock()
	exchangeID, ok := e.exchangeIDs[clientOrderID]
	e.mu.Unlock()

	if ok {
		if _, err := e.client.CancelOrder(ctx, exchangeID); err != nil {
			return err
		}
	}
	e.ledger.Release(group, clientOrderID)
	e.forget(clientOrderID)
	return nil
}

func (e *Engine) forget(clientOrderID string) {
	e.mu.Lock()
	delete(e.exchangeIDs, clientOrderID)
	e.mu.Unlock()
}

// StartWatchdog releases intents that have sat pending longer than
// ttl. An admitted-but-stuck intent otherwise reserves its capacity
// forever. Runs until ctx is done.
func (e *Engine) StartWatchdog(ctx context.Context, ttl, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				e.reapStale(ctx, ttl)
			}
		}
	}()
}

func (e *Engine) reapStale(ctx context.Context, ttl time.Duration) {
	for _, s := range e.ledger.StalePending(ttl) {
		logger.Warnf("watchdog: releasing stale intent %s in group %q (age %s)",
			s.ClientOrderID, s.Group, s.Age.Round(time.Second))
		if err := e.Cancel(ctx, s.Group, s.ClientOrderID); err != nil {
			logger.Warnf("watchdog: cancel %s failed: %v", s.ClientOrderID, err)
		}
	}
}

// backoffDelay is exponential in attempt with +-50% jitter.
func backoffDelay(attempt int, base time.Duration) time.Duration {
	d := base << uint(attempt-1)
	jitter := 0.5 + rand.Float64()
	return time.Duration(float64(d) * jitter)
}
