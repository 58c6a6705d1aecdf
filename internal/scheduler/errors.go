package scheduler

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTimeout is the failure of a unit that exceeded its timeout.
	ErrTimeout = errors.New("unit timed out")
	// ErrGraceExpired is the failure of a unit that kept running past the
	// grace period after the run was cancelled.
	ErrGraceExpired = errors.New("unit did not stop within the grace period")
	// ErrPanic wraps a panic raised by a unit.
	ErrPanic = errors.New("unit panicked")
)

// Cause is one failure observed during a run.
type Cause struct {
	Unit  string
	Stage int
	Err   error
}

func (c Cause) Error() string {
	return fmt.Sprintf("unit '%s' (stage %d): %v", c.Unit, c.Stage, c.Err)
}

func (c Cause) Unwrap() error { return c.Err }

// RunError is returned by Await for a Failed run. It lists every fatal
// cause in the order they were observed.
type RunError struct {
	RunID  string
	Causes []Cause
}

func (e *RunError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "run %s failed", e.RunID)
	if len(e.Causes) == 1 {
		fmt.Fprintf(&b, ": %s", e.Causes[0].Error())
		return b.String()
	}
	fmt.Fprintf(&b, " with %d errors:", len(e.Causes))
	for _, c := range e.Causes {
		b.WriteString("\n  - ")
		b.WriteString(c.Error())
	}
	return b.String()
}

func (e *RunError) Unwrap() []error {
	errs := make([]error, len(e.Causes))
	for i, c := range e.Causes {
		errs[i] = c.Err
	}
	return errs
}

// CancellationError is returned by Await for a Cancelled run.
type CancellationError struct {
	RunID string
	// Stage is the stage executing when the run was cancelled, -1 if no
	// stage had started.
	Stage int
	Cause error
}

func (e *CancellationError) Error() string {
	if e.Stage < 0 {
		return fmt.Sprintf("run %s cancelled before execution: %v", e.RunID, e.Cause)
	}
	return fmt.Sprintf("run %s cancelled at stage %d: %v", e.RunID, e.Stage, e.Cause)
}

func (e *CancellationError) Unwrap() error { return e.Cause }
