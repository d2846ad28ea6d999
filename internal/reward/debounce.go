package reward

import (
	"sync"
	"time"
)

// DefaultDebounceWait is the quiet period before a debounced call fires.
const DefaultDebounceWait = 300 * time.Millisecond

// Debouncer collapses bursts of Trigger calls into one call of fn with the
// arguments of the last trigger, fired once no trigger arrived for wait.
type Debouncer[T any] struct {
	clock Clock
	wait  time.Duration
	fn    func(T)

	mu      sync.Mutex
	timer   Timer
	pending T
	armed   bool
	gen     uint64
	stopped bool
}

// NewDebouncer builds a trailing-edge debouncer. A nil clock uses SystemClock.
func NewDebouncer[T any](clock Clock, wait time.Duration, fn func(T)) *Debouncer[T] {
	if clock == nil {
		clock = SystemClock()
	}
	if wait <= 0 {
		wait = DefaultDebounceWait
	}
	return &Debouncer[T]{clock: clock, wait: wait, fn: fn}
}

// Trigger schedules fn(args), replacing any call still pending.
func (d *Debouncer[T]) Trigger(args T) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.pending = args
	d.armed = true
	d.timer = d.clock.AfterFunc(d.wait, func() { d.fire(gen) })
}

// Pending reports whether a call is scheduled.
func (d *Debouncer[T]) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.armed
}

// Cancel drops the pending call and reports whether one was scheduled.
// Later triggers still work.
func (d *Debouncer[T]) Cancel() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	armed := d.armed
	d.disarm()
	return armed
}

// Stop drops the pending call and ignores every later trigger.
func (d *Debouncer[T]) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.disarm()
	d.stopped = true
}

// Flush runs the pending call now, on the caller's goroutine.
func (d *Debouncer[T]) Flush() bool {
	d.mu.Lock()
	if !d.armed || d.stopped {
		d.mu.Unlock()
		return false
	}
	args := d.pending
	d.disarm()
	d.mu.Unlock()

	d.fn(args)
	return true
}

func (d *Debouncer[T]) fire(gen uint64) {
	d.mu.Lock()
	// a Stop/Cancel/Trigger after this timer was armed bumps gen
	if gen != d.gen || !d.armed || d.stopped {
		d.mu.Unlock()
		return
	}
	args := d.pending
	d.armed = false
	d.timer = nil
	var zero T
	d.pending = zero
	d.mu.Unlock()

	d.fn(args)
}

// disarm must be called with d.mu held.
func (d *Debouncer[T]) disarm() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
	d.armed = false
	var zero T
	d.pending = zero
}
