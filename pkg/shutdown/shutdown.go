package shutdown

import (
	"context"
	"sync"

	"github.com/betbot/kalshibot/pkg/logger"
)

// Handler is one shutdown callback.
type Handler func(ctx context.Context)

// Manager runs registered callbacks concurrently on shutdown, bounded
// by the caller's context deadline.
type Manager struct {
	mu        sync.Mutex
	callbacks []Handler
}

// NewManager returns an empty manager.
func NewManager() *Manager {
	return &Manager{}
}

// OnShutdown registers a callback.
func (m *Manager) OnShutdown(handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, handler)
}

// Shutdown executes all callbacks and blocks until they finish or ctx
// expires. Pass a context with a timeout.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	callbacks := m.callbacks
	m.mu.Unlock()

	if len(callbacks) == 0 {
		return
	}
	logger.Infof("shutting down, %d callbacks", len(callbacks))

	var wg sync.WaitGroup
	wg.Add(len(callbacks))
	for _, cb := range callbacks {
		go func(handler Handler) {
			defer wg.Done()
			handler(ctx)
		}(cb)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Infof("shutdown complete")
	case <-ctx.Done():
		logger.Warnf("shutdown timed out: %v", ctx.Err())
	}
}
