package scheduler

import "fmt"

// State is the lifecycle state of a run.
type State int

const (
	StateIdle State = iota
	StatePlanning
	StateRunning
	StateCompleted
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StatePlanning:
		return "Planning"
	case StateRunning:
		return "Running"
	case StateCompleted:
		return "Completed"
	case StateFailed:
		return "Failed"
	case StateCancelled:
		return "Cancelled"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Terminal reports whether the run has ended.
func (s State) Terminal() bool {
	return s >= StateCompleted
}

// Status is a point-in-time view of a run. Stage is the index of the stage
// being executed, or of the last one entered once the run has ended; it is
// -1 before the first stage.
type Status struct {
	State  State
	Stage  int
	Stages int
}

func (s Status) String() string {
	if s.State == StateRunning {
		return fmt.Sprintf("Running(%d)", s.Stage)
	}
	return s.State.String()
}
