package syncgroup

import "sync"

// SyncGroup wraps sync.WaitGroup so Add and Done cannot be forgotten:
// register functions, then Run them all.
type SyncGroup struct {
	wg sync.WaitGroup

	mu    sync.Mutex
	funcs []func()
}

// NewSyncGroup returns an empty group.
func NewSyncGroup() *SyncGroup {
	return &SyncGroup{}
}

// Add registers a function to run as a goroutine. Call before Run.
func (g *SyncGroup) Add(fn func()) {
	if fn == nil {
		return
	}
	g.mu.Lock()
	g.funcs = append(g.funcs, fn)
	g.mu.Unlock()
}

// Run starts every registered function and clears the list.
func (g *SyncGroup) Run() {
	g.mu.Lock()
	fns := g.funcs
	g.funcs = nil
	g.mu.Unlock()

	for _, fn := range fns {
		g.wg.Add(1)
		go func(do func()) {
			defer g.wg.Done()
			do()
		}(fn)
	}
}

// Wait blocks until every started goroutine returns.
func (g *SyncGroup) Wait() {
	g.wg.Wait()
}
