package livestorage

import (
	"sync"
	"sync/atomic"
)

// updateGate marks a block of externally sourced mutations. While a batch is
// applied the view lock is held, so readers never observe half of a batch and
// concurrent local writes queue behind it. Mutations inside the batch use the
// direct view path and are never forwarded to the host; the gate is released
// before any host call or listener runs.
type updateGate struct {
	mu       *sync.RWMutex
	updating atomic.Bool
}

func (g *updateGate) apply(fn func()) {
	g.mu.Lock()
	g.updating.Store(true)
	defer func() {
		g.updating.Store(false)
		g.mu.Unlock()
	}()
	fn()
}

func (g *updateGate) open() bool {
	return g.updating.Load()
}
