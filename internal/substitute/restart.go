package substitute

import (
	"context"
	"os"
	"time"
)

// ExitCodeRestart is the exit status used when the process terminates so
// that a supervisor restarts it (EX_TEMPFAIL).
const ExitCodeRestart = 75

// Escalation describes a runaway worker that survived cancellation.
type Escalation struct {
	Pattern  string
	Subject  string
	Timeout  time.Duration
	Grace    time.Duration
	Elapsed  time.Duration
	Occurred time.Time
}

// Recorder persists escalation diagnostics. It must be safe for
// concurrent use and must not return before the record is durable.
type Recorder interface {
	RecordEscalation(ctx context.Context, esc Escalation) error
}

// Restarter terminates and restarts the host process.
// A successful Restart does not return.
type Restarter interface {
	Restart(ctx context.Context, esc Escalation) error
}

// RestarterFunc adapts a function to Restarter.
type RestarterFunc func(ctx context.Context, esc Escalation) error

func (f RestarterFunc) Restart(ctx context.Context, esc Escalation) error {
	return f(ctx, esc)
}

// osExit is replaced in tests.
var osExit = os.Exit

// ExitRestarter terminates the process with Code (ExitCodeRestart if
// zero) and leaves the restart to the supervisor. Used by one-shot
// commands, where re-executing would replay the runaway input.
type ExitRestarter struct {
	Code int
}

func (r ExitRestarter) Restart(ctx context.Context, esc Escalation) error {
	code := r.Code
	if code == 0 {
		code = ExitCodeRestart
	}
	osExit(code)
	return nil
}

// ExecRestarter replaces the running process with a fresh copy of the
// same executable, arguments and environment.
type ExecRestarter struct{}

func (ExecRestarter) Restart(ctx context.Context, esc Escalation) error {
	exe, err := os.Executable()
	if err != nil {
		return err
	}
	return reexec(exe, os.Args, os.Environ())
}
