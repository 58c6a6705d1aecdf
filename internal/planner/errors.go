package planner

import (
	"errors"
	"fmt"
)

var (
	// ErrCyclicDependency means the dependency graph has a cycle outside an
	// iterative block.
	ErrCyclicDependency = errors.New("cyclic dependency")
	// ErrUnsatisfiableResourceBudget means a single unsplittable node
	// exceeds the stage budget.
	ErrUnsatisfiableResourceBudget = errors.New("unsatisfiable resource budget")
)

// PlanningError is fatal for the run and surfaces before any unit executes.
type PlanningError struct {
	Reason error
	Unit   string
	Detail string
}

func (e *PlanningError) Error() string {
	if e.Unit == "" {
		return fmt.Sprintf("planning error: %v: %s", e.Reason, e.Detail)
	}
	return fmt.Sprintf("planning error at unit '%s': %v: %s", e.Unit, e.Reason, e.Detail)
}

func (e *PlanningError) Unwrap() error { return e.Reason }
