package unit

import (
	"context"
	"fmt"

	"github.com/vk/blockgrid/internal/execctx"
	"github.com/vk/blockgrid/internal/port"
)

// Unit is the closed capability interface implemented by every atomic block.
type Unit interface {
	// ID is the stable identity of this unit instance within its graph.
	ID() string
	// Ports returns the declared input and output ports.
	Ports() (inputs, outputs []port.Port)
	// EstimateResources returns the planner's cost estimate for one execution.
	EstimateResources() ResourceRequirements
	// Execute computes outputs from inputs. Implementations must return
	// promptly once ctx is done if they block.
	Execute(ctx context.Context, ec *execctx.Context, in Inputs) (Outputs, error)
}

// Splitter is implemented by units whose work can be sharded into parts that
// run independently and are joined afterwards.
type Splitter interface {
	SupportsSplit() bool
	// Split returns parts units. Every part receives the full inputs of the
	// original unit and is expected to compute its own shard.
	Split(parts int) ([]Unit, error)
	// Join combines part outputs, ordered by part index.
	Join(parts []Outputs) (Outputs, error)
}

// Effectful is implemented by units that perform side effects. A unit that
// does not implement it, or returns no effects, is pure.
type Effectful interface {
	Effects() []execctx.Capability
}

// CanSplit reports whether u declares the split capability.
func CanSplit(u Unit) bool {
	s, ok := u.(Splitter)
	return ok && s.SupportsSplit()
}

// Effects returns the capabilities u needs, or nil for a pure unit.
func Effects(u Unit) []execctx.Capability {
	if e, ok := u.(Effectful); ok {
		return e.Effects()
	}
	return nil
}

// IsPure reports whether u declares no effects.
func IsPure(u Unit) bool {
	return len(Effects(u)) == 0
}

// FailurePolicy decides what a unit failure does to the rest of the run.
type FailurePolicy int

const (
	// AbortRun fails the whole run on the first failure.
	AbortRun FailurePolicy = iota
	// BestEffort records the failure and skips only the failed branch.
	BestEffort
)

func (p FailurePolicy) String() string {
	switch p {
	case AbortRun:
		return "abort-run"
	case BestEffort:
		return "best-effort"
	default:
		return fmt.Sprintf("FailurePolicy(%d)", int(p))
	}
}

// ParseFailurePolicy accepts "abort-run" and "best-effort".
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch s {
	case "", "abort-run":
		return AbortRun, nil
	case "best-effort":
		return BestEffort, nil
	default:
		return AbortRun, fmt.Errorf("unknown failure policy %q", s)
	}
}

// ExecutionError is a unit-level failure.
type ExecutionError struct {
	Unit string
	Err  error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("unit '%s' failed: %v", e.Unit, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}
