package planner

import (
	"fmt"
	"strings"
	"time"

	"github.com/vk/blockgrid/internal/dag"
	"github.com/vk/blockgrid/internal/graph"
	"github.com/vk/blockgrid/internal/unit"
)

// Task is one schedulable piece of work: a whole node, or one part of a
// split node.
type Task struct {
	ID   string
	Node *graph.Node
	// Unit is what executes: the node's unit, or the part unit of a split
	// node. Nil for opaque composites and iterative blocks.
	Unit unit.Unit
	// Part is the index of this part; Parts is zero for unsplit nodes.
	Part  int
	Parts int
	Cost  unit.ResourceRequirements
}

// Split reports whether the task is one part of a split node.
func (t *Task) Split() bool { return t.Parts > 0 }

// Stage is a set of tasks that may run concurrently.
type Stage struct {
	Index int
	Tasks []string
	Cost  unit.ResourceRequirements
}

// Plan is the immutable result of planning one run.
type Plan struct {
	Level  OptimizationLevel
	Stages []Stage
	Tasks  map[string]*Task
	// Graph is the expanded graph the plan was built from.
	Graph *graph.Graph
	// Deps is the task-level dependency graph.
	Deps *dag.Graph
	// NodeTasks lists, per node, the ids of its tasks in part order.
	NodeTasks map[string][]string

	EntryPoints  []string
	ExitPoints   []string
	CriticalPath []string
	// Estimate is the sum of the stages' longest durations.
	Estimate time.Duration
}

// StageOf returns the index of the stage holding the task, or -1.
func (p *Plan) StageOf(taskID string) int {
	for _, s := range p.Stages {
		for _, id := range s.Tasks {
			if id == taskID {
				return s.Index
			}
		}
	}
	return -1
}

// Shape returns the task ids of every stage, for tests and logs.
func (p *Plan) Shape() [][]string {
	out := make([][]string, len(p.Stages))
	for i, s := range p.Stages {
		out[i] = append([]string(nil), s.Tasks...)
	}
	return out
}

func (p *Plan) String() string {
	parts := make([]string, len(p.Stages))
	for i, s := range p.Stages {
		parts[i] = "{" + strings.Join(s.Tasks, ",") + "}"
	}
	return fmt.Sprintf("plan[%s](%s)", p.Level, strings.Join(parts, " "))
}
