// internal/substitute/watchdog.go
package substitute

import (
	"context"
	"sync/atomic"
	"time"
)

/*
 * Escalation watchdog for one substitution call.
 *
 * State machine:
 *
 *   Running --primary timeout--> TimedOut --worker stopped--> Cancelled
 *                                         \--grace elapsed--> Escalated
 *
 * Running is initial. A call whose worker finishes before the primary
 * timer fires disarms the watchdog while still Running and it never
 * reaches TimedOut. A caller that gives up early abandons the watchdog
 * instead: the worker is cancelled at once but both timers stay armed,
 * so a worker that ignores cancellation still escalates at timeout plus
 * grace. Escalation is only reachable from TimedOut, so a restart is
 * never armed before a confirmed primary timeout.
 *
 * Both timers run on runtime timer goroutines, independent of the caller
 * and of the worker, so a worker pinned inside the pattern engine cannot
 * delay either check.
 */

// State is a watchdog state.
type State int32

const (
	StateRunning State = iota
	StateTimedOut
	StateCancelled
	StateEscalated
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateTimedOut:
		return "timed_out"
	case StateCancelled:
		return "cancelled"
	case StateEscalated:
		return "escalated"
	default:
		return "unknown"
	}
}

// Watchdog owns the primary and grace timers of one substitution call.
type Watchdog struct {
	state      atomic.Int32
	grace      time.Duration
	workerDone <-chan struct{}
	cancel     context.CancelFunc
	escalate   func(elapsed time.Duration)
	armedAt    time.Time
	timer      *time.Timer

	expired  chan struct{} // closed on Running -> TimedOut
	resolved chan struct{} // closed once Cancelled or Escalated
}

// armWatchdog starts the primary timer. cancel is the worker's
// cancellation request; escalate runs at most once, on the grace timer's
// goroutine, if the worker is still active when the grace window ends.
func armWatchdog(timeout, grace time.Duration, workerDone <-chan struct{}, cancel context.CancelFunc, escalate func(time.Duration)) *Watchdog {
	w := &Watchdog{
		grace:      grace,
		workerDone: workerDone,
		cancel:     cancel,
		escalate:   escalate,
		armedAt:    time.Now(),
		expired:    make(chan struct{}),
		resolved:   make(chan struct{}),
	}
	w.timer = time.AfterFunc(timeout, w.expire)
	return w
}

// State reports the current state.
func (w *Watchdog) State() State {
	return State(w.state.Load())
}

// Expired is closed when the primary timeout fires.
func (w *Watchdog) Expired() <-chan struct{} {
	return w.expired
}

// Resolved is closed when the watchdog reaches a terminal state.
func (w *Watchdog) Resolved() <-chan struct{} {
	return w.resolved
}

// disarm stops the primary timer. Returns false if it already fired.
func (w *Watchdog) disarm() bool {
	return w.timer.Stop()
}

func (w *Watchdog) expire() {
	if !w.state.CompareAndSwap(int32(StateRunning), int32(StateTimedOut)) {
		return
	}
	w.cancel()
	close(w.expired)
	w.awaitStop()
}

// abandon cancels the worker of a caller that stopped waiting and leaves
// the timers armed. cancel must be idempotent.
func (w *Watchdog) abandon() {
	w.cancel()
}

// awaitStop observes whether the cancellation request took effect.
func (w *Watchdog) awaitStop() {
	defer close(w.resolved)

	grace := time.NewTimer(w.grace)
	defer grace.Stop()

	select {
	case <-w.workerDone:
		w.state.Store(int32(StateCancelled))
		return
	case <-grace.C:
	}

	// Re-check: a worker that stopped exactly at the deadline is not a runaway.
	select {
	case <-w.workerDone:
		w.state.Store(int32(StateCancelled))
		return
	default:
	}

	w.state.Store(int32(StateEscalated))
	w.escalate(time.Since(w.armedAt))
}
