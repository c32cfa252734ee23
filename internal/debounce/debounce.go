// Package debounce coalesces bursts of calls into one trailing invocation.
package debounce

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Timer runs fn once the delay has passed without another Trigger.
// It is safe for concurrent use.
type Timer struct {
	clock clockwork.Clock
	delay time.Duration
	fn    func()

	mu      sync.Mutex
	pending clockwork.Timer
	gen     uint64
}

// New creates an idle debounce timer.
func New(clock clockwork.Clock, delay time.Duration, fn func()) *Timer {
	return &Timer{clock: clock, delay: delay, fn: fn}
}

// Trigger (re)starts the quiet period. fn runs delay after the last Trigger.
func (t *Timer) Trigger() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopLocked()
	gen := t.gen
	t.pending = t.clock.AfterFunc(t.delay, func() { t.fire(gen) })
}

// Cancel drops a pending invocation. It reports whether one was pending.
func (t *Timer) Cancel() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopLocked()
}

// Flush runs a pending invocation immediately on the calling goroutine.
// It reports whether fn ran.
func (t *Timer) Flush() bool {
	if !t.Cancel() {
		return false
	}
	t.fn()
	return true
}

// Pending reports whether an invocation is scheduled.
func (t *Timer) Pending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending != nil
}

// stopLocked invalidates the scheduled callback; a callback already in flight
// sees a stale generation and returns without calling fn.
func (t *Timer) stopLocked() bool {
	t.gen++
	if t.pending == nil {
		return false
	}
	t.pending.Stop()
	t.pending = nil
	return true
}

func (t *Timer) fire(gen uint64) {
	t.mu.Lock()
	if gen != t.gen {
		t.mu.Unlock()
		return
	}
	t.pending = nil
	t.gen++
	t.mu.Unlock()

	t.fn()
}
