package substitute

import (
	"context"
	"fmt"
	"time"

	"github.com/solatis/sieve/internal/types"
)

// Pending is an error whose worker may still be running. Wait blocks
// until the watchdog reaches a terminal state or ctx ends.
type Pending interface {
	error
	Wait(ctx context.Context) (State, error)
}

// TimeoutError is returned when a substitution exceeds its budget.
// The subject is left unchanged by the failed call. Wait reports whether
// the worker then stopped (StateCancelled) or the process was escalated
// to restart (StateEscalated).
type TimeoutError struct {
	Pattern string
	Subject string
	Timeout time.Duration
	Elapsed time.Duration

	watchdog *Watchdog
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("substitution timed out after %v (pattern %q)", e.Timeout, e.Pattern)
}

// Is matches types.ErrRegexTimeout.
func (e *TimeoutError) Is(target error) bool {
	return target == types.ErrRegexTimeout
}

// State returns the watchdog state at the time of the call.
func (e *TimeoutError) State() State {
	if e.watchdog == nil {
		return StateTimedOut
	}
	return e.watchdog.State()
}

// Wait blocks until the watchdog resolves or ctx ends.
func (e *TimeoutError) Wait(ctx context.Context) (State, error) {
	return waitResolved(ctx, e.watchdog, StateTimedOut)
}

// AbortedError is returned when the caller's context ends before the
// substitution does. Err is the context error. The abandoned worker is
// cancelled but still watched: once the budget has passed, Wait reports
// StateCancelled if it stopped, or StateEscalated if it outlived the
// grace period too.
type AbortedError struct {
	Pattern string
	Err     error

	watchdog *Watchdog
}

func (e *AbortedError) Error() string {
	return fmt.Sprintf("substitution aborted: %v", e.Err)
}

func (e *AbortedError) Unwrap() error {
	return e.Err
}

// Wait blocks until the abandoned worker is resolved or ctx ends. A call
// aborted before its worker started reports StateCancelled.
func (e *AbortedError) Wait(ctx context.Context) (State, error) {
	return waitResolved(ctx, e.watchdog, StateCancelled)
}

func waitResolved(ctx context.Context, wd *Watchdog, none State) (State, error) {
	if wd == nil {
		return none, nil
	}
	select {
	case <-wd.Resolved():
		return wd.State(), nil
	case <-ctx.Done():
		return wd.State(), ctx.Err()
	}
}

// FailedError wraps an error raised inside the worker: a transform
// callback failure, a malformed template, or an engine error.
type FailedError struct {
	Pattern string
	Err     error
}

func (e *FailedError) Error() string {
	return fmt.Sprintf("substitution failed for pattern %q: %v", e.Pattern, e.Err)
}

// Is matches types.ErrSubstitutionFailed.
func (e *FailedError) Is(target error) bool {
	return target == types.ErrSubstitutionFailed
}

func (e *FailedError) Unwrap() error {
	return e.Err
}
