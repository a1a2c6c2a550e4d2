// Package lifecycle turns process lifecycle signals into a flush of every
// active timer.
//
// Signals arrive unordered and may overlap: a single shutdown can produce
// hidden, page-hide and hard-terminate in a row, or only before-terminate and
// hard-terminate. Two independent paths stop timers:
//
//   - the sequential path calls the timer manager's StopAll and needs the
//     process to stay alive until the backend answers;
//   - the beacon path queues a fire-and-forget stop-all request that does
//     not depend on the process surviving.
//
// Stopping an already stopped timer is a no-op on the backend, so both paths
// may land. A FlushGuard keeps the sequential path from running twice at once.
package lifecycle

import (
	"sort"
	"sync"
)

// Source delivers lifecycle signals. Every subscription returns a function
// that removes it.
type Source interface {
	// OnHidden fires when the host stops being visible; work may continue
	// for a short while.
	OnHidden(handler func()) (unsubscribe func())
	// OnPageHide fires when the host may be suspended at any point after
	// the handler returns.
	OnPageHide(handler func()) (unsubscribe func())
	// OnBeforeTerminate fires when the host may be terminated right after
	// the handler returns. A non-empty return value is a warning the host
	// may show to the user.
	OnBeforeTerminate(handler func() string) (unsubscribe func())
	// OnHardTerminate fires when no further execution is guaranteed.
	OnHardTerminate(handler func()) (unsubscribe func())
}

// Emitter is an in-process Source. Handlers run synchronously on the
// emitting goroutine in subscription order.
type Emitter struct {
	mu              sync.Mutex
	nextID          int
	hidden          map[int]func()
	pageHide        map[int]func()
	beforeTerminate map[int]func() string
	hardTerminate   map[int]func()
}

// NewEmitter returns an emitter with no subscribers.
func NewEmitter() *Emitter {
	return &Emitter{
		hidden:          make(map[int]func()),
		pageHide:        make(map[int]func()),
		beforeTerminate: make(map[int]func() string),
		hardTerminate:   make(map[int]func()),
	}
}

// OnHidden implements Source.
func (e *Emitter) OnHidden(handler func()) func() {
	return subscribe(e, e.hidden, handler)
}

// OnPageHide implements Source.
func (e *Emitter) OnPageHide(handler func()) func() {
	return subscribe(e, e.pageHide, handler)
}

// OnBeforeTerminate implements Source.
func (e *Emitter) OnBeforeTerminate(handler func() string) func() {
	return subscribe(e, e.beforeTerminate, handler)
}

// OnHardTerminate implements Source.
func (e *Emitter) OnHardTerminate(handler func()) func() {
	return subscribe(e, e.hardTerminate, handler)
}

// Hide emits the hidden signal.
func (e *Emitter) Hide() {
	for _, handler := range snapshot(e, e.hidden) {
		handler()
	}
}

// PageHide emits the page-hide signal.
func (e *Emitter) PageHide() {
	for _, handler := range snapshot(e, e.pageHide) {
		handler()
	}
}

// BeforeTerminate emits the before-terminate signal and returns the
// non-empty warnings handlers returned.
func (e *Emitter) BeforeTerminate() []string {
	var warnings []string
	for _, handler := range snapshot(e, e.beforeTerminate) {
		if warning := handler(); warning != "" {
			warnings = append(warnings, warning)
		}
	}
	return warnings
}

// HardTerminate emits the hard-terminate signal.
func (e *Emitter) HardTerminate() {
	for _, handler := range snapshot(e, e.hardTerminate) {
		handler()
	}
}

// Subscribers returns the total number of subscriptions.
func (e *Emitter) Subscribers() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.hidden) + len(e.pageHide) + len(e.beforeTerminate) + len(e.hardTerminate)
}

func subscribe[H any](e *Emitter, handlers map[int]H, handler H) func() {
	e.mu.Lock()
	id := e.nextID
	e.nextID++
	handlers[id] = handler
	e.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			delete(handlers, id)
			e.mu.Unlock()
		})
	}
}

func snapshot[H any](e *Emitter, handlers map[int]H) []H {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]int, 0, len(handlers))
	for id := range handlers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	result := make([]H, 0, len(ids))
	for _, id := range ids {
		result = append(result, handlers[id])
	}
	return result
}
