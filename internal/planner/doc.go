// Package planner turns a validated graph into an ExecutionPlan: an ordered
// list of stages, each a set of tasks with no dependency among them whose
// aggregate estimated cost fits the configured resource limits.
//
// Planning happens in four steps. Transparent composites are inlined and the
// dependency graph is derived from the expanded graph. Nodes whose estimate
// exceeds the stage budget are split when their unit supports it, and
// rejected with ErrUnsatisfiableResourceBudget otherwise. The dependency
// graph is layered by longest path. Finally the optimization level shapes
// the stages:
//
//   - None keeps the layers, subdividing any layer that exceeds the budget.
//   - Basic additionally merges adjacent stages that fit together and have
//     no dependency between them.
//   - Balanced builds the stages by list scheduling instead: tasks without
//     slack go first, the rest are packed first-fit-decreasing by cost
//     toward an even per-stage target. Basic merging follows.
//   - Aggressive additionally splits splittable tasks whose cost exceeds
//     the per-stage target before packing.
//
// Whenever packing must choose between tasks, the one with more transitive
// dependents wins, then the lower id.
package planner
