package lifecycle

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
)

// FlushGuard is the single cell that keeps lifecycle-triggered flushes from
// overlapping. It is shared by every handler of a coordinator and must be
// created once and passed in, never created per call.
type FlushGuard struct {
	clock clockwork.Clock
	held  atomic.Bool

	mu      sync.Mutex
	pending clockwork.Timer
	// token invalidates timed releases scheduled before the latest change.
	token uint64
}

// NewFlushGuard returns a released guard. A nil clock uses the real clock.
func NewFlushGuard(clock clockwork.Clock) *FlushGuard {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &FlushGuard{clock: clock}
}

// TryAcquire sets the guard and reports whether the caller now holds it.
func (g *FlushGuard) TryAcquire() bool {
	if !g.held.CompareAndSwap(false, true) {
		return false
	}
	g.mu.Lock()
	g.cancelPendingLocked()
	g.mu.Unlock()
	return true
}

// Held reports whether the guard is set.
func (g *FlushGuard) Held() bool {
	return g.held.Load()
}

// Release clears the guard immediately.
func (g *FlushGuard) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancelPendingLocked()
	g.held.Store(false)
}

// ReleaseAfter clears the guard once delay has passed, unless it is
// released or re-acquired first.
func (g *FlushGuard) ReleaseAfter(delay time.Duration) {
	if delay <= 0 {
		g.Release()
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancelPendingLocked()
	token := g.token
	g.pending = g.clock.AfterFunc(delay, func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		if g.token != token {
			return
		}
		g.pending = nil
		g.token++
		g.held.Store(false)
	})
}

// ReleasePending clears the guard now if a timed release is scheduled and
// reports whether it did. A guard held by a flush still in flight is left alone.
func (g *FlushGuard) ReleasePending() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pending == nil {
		return false
	}
	g.cancelPendingLocked()
	g.held.Store(false)
	return true
}

func (g *FlushGuard) cancelPendingLocked() {
	g.token++
	if g.pending != nil {
		g.pending.Stop()
		g.pending = nil
	}
}
