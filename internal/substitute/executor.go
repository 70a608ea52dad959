// Package substitute runs pattern match-and-replace under a hard time
// budget.
//
// The work happens on a worker goroutine. The caller waits on the first of
// worker completion, primary timeout, or its own context. After a timeout
// the worker is asked to stop; if it is still running when the grace
// period ends, the executor records a diagnostic and restarts the host
// process, the only way to reclaim a goroutine stuck inside the engine.
package substitute

import (
	"context"
	"time"

	"github.com/dlclark/regexp2"
	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"

	"github.com/solatis/sieve/internal/types"
)

// Executor runs timeout-guarded substitutions. Safe for concurrent use;
// calls share nothing but the recorder and restarter.
type Executor struct {
	timeout   time.Duration
	grace     time.Duration
	recorder  Recorder
	restarter Restarter
}

// Option configures an Executor.
type Option func(*Executor)

// WithDefaultTimeout sets the budget used for non-positive timeouts.
func WithDefaultTimeout(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithGracePeriod sets how long a cancelled worker may keep running.
func WithGracePeriod(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.grace = d
		}
	}
}

// WithRecorder sets the durable diagnostic sink written before restart.
func WithRecorder(r Recorder) Option {
	return func(e *Executor) {
		if r != nil {
			e.recorder = r
		}
	}
}

// WithRestarter sets the process restart action.
func WithRestarter(r Restarter) Option {
	return func(e *Executor) {
		if r != nil {
			e.restarter = r
		}
	}
}

// NewExecutor creates an executor. Defaults: DefaultTimeout,
// DefaultGracePeriod, a log-only recorder, and ExitRestarter.
func NewExecutor(opts ...Option) *Executor {
	e := &Executor{
		timeout:   types.DefaultTimeout,
		grace:     types.DefaultGracePeriod,
		recorder:  logRecorder{},
		restarter: ExitRestarter{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type workerResult struct {
	out string
	err error
}

// Substitute replaces every match of pattern in subject per repl.
// A non-positive timeout uses the executor's default timeout.
//
// Returns *TimeoutError when the budget is exceeded, *FailedError when
// the worker fails and *AbortedError when ctx ends first. Exactly one
// outcome is delivered; a worker that finishes after the timeout is
// discarded. A worker left behind by an abort stays under the watchdog
// and escalates like a timed-out one if it never stops.
func (e *Executor) Substitute(ctx context.Context, subject string, pattern *regexp2.Regexp, timeout time.Duration, repl Replacement) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &AbortedError{Pattern: pattern.String(), Err: err}
	}
	if timeout <= 0 {
		timeout = e.timeout
	}
	logger := zerolog.Ctx(ctx)
	start := time.Now()

	// Worker and escalation keep ctx values (logger) but not its cancellation.
	detached := context.WithoutCancel(ctx)
	workerCtx, cancelWorker := context.WithCancel(detached)

	results := make(chan workerResult, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		results <- runWorker(workerCtx, pattern, subject, repl)
	}()

	esc := Escalation{
		Pattern: pattern.String(),
		Subject: types.Truncate(subject, types.MaxDiagnosticSubject),
		Timeout: timeout,
		Grace:   e.grace,
	}
	wd := armWatchdog(timeout, e.grace, done, cancelWorker, func(elapsed time.Duration) {
		esc.Elapsed = elapsed
		esc.Occurred = time.Now().UTC()
		e.escalate(detached, esc)
	})

	select {
	case res := <-results:
		wd.disarm()
		cancelWorker()
		if res.err != nil {
			return "", &FailedError{Pattern: pattern.String(), Err: res.err}
		}
		return res.out, nil

	case <-wd.Expired():
		elapsed := time.Since(start)
		logger.Warn().
			Str("pattern", pattern.String()).
			Str("subject", types.Truncate(subject, types.MaxDiagnosticSubject)).
			Dur("timeout", timeout).
			Dur("elapsed", elapsed).
			Dur("grace", e.grace).
			Msg("substitution timed out, worker cancelled; process restarts if it does not stop within grace period")
		go logStopped(logger, wd, pattern, start)
		return "", &TimeoutError{
			Pattern:  pattern.String(),
			Subject:  subject,
			Timeout:  timeout,
			Elapsed:  elapsed,
			watchdog: wd,
		}

	case <-ctx.Done():
		// The watchdog keeps running: a worker that ignores the cancel is
		// escalated when the budget and grace window have both passed.
		wd.abandon()
		logger.Debug().
			Str("pattern", pattern.String()).
			Dur("elapsed", time.Since(start)).
			Dur("grace", e.grace).
			Msg("caller gave up, worker cancelled")
		go logStopped(logger, wd, pattern, start)
		return "", &AbortedError{Pattern: pattern.String(), Err: ctx.Err(), watchdog: wd}
	}
}

// logStopped reports a worker that honoured cancellation.
func logStopped(logger *zerolog.Logger, wd *Watchdog, pattern *regexp2.Regexp, start time.Time) {
	<-wd.Resolved()
	if wd.State() == StateCancelled {
		logger.Info().Str("pattern", pattern.String()).Dur("elapsed", time.Since(start)).Msg("cancelled worker stopped")
	}
}

// runWorker converts a worker panic into an error result.
func runWorker(ctx context.Context, pattern *regexp2.Regexp, subject string, repl Replacement) (res workerResult) {
	defer func() {
		if r := recover(); r != nil {
			res = workerResult{err: errors.Errorf("worker panic: %v", r)}
		}
	}()
	out, err := replaceAll(ctx, pattern, subject, repl)
	return workerResult{out: out, err: err}
}

// escalate persists the diagnostic, then restarts. Runs on the grace
// timer goroutine.
func (e *Executor) escalate(ctx context.Context, esc Escalation) {
	logger := zerolog.Ctx(ctx)
	logger.Error().
		Str("pattern", esc.Pattern).
		Str("subject", esc.Subject).
		Dur("elapsed", esc.Elapsed).
		Msg("substitution worker still running after grace period, recording diagnostic")

	if err := e.recorder.RecordEscalation(ctx, esc); err != nil {
		logger.Error().Err(err).Msg("failed to persist escalation record")
	}
	logger.Error().Str("pattern", esc.Pattern).Msg("restarting process")
	if err := e.restarter.Restart(ctx, esc); err != nil {
		logger.Error().Err(err).Msg("process restart failed")
	}
}

// logRecorder is the fallback Recorder; it only logs.
type logRecorder struct{}

func (logRecorder) RecordEscalation(ctx context.Context, esc Escalation) error {
	zerolog.Ctx(ctx).Error().
		Str("pattern", esc.Pattern).
		Str("subject", esc.Subject).
		Dur("timeout", esc.Timeout).
		Dur("elapsed", esc.Elapsed).
		Msg("runaway substitution")
	return nil
}
