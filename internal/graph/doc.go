// Package graph is the executable program: units wired together by
// policy-governed edges.
//
// A Graph holds three node variants:
//
//   - Atomic nodes wrap a unit.Unit and are executed directly.
//   - Composite nodes own a body Graph and expose a subset of its internal
//     ports as their own. A transparent composite is inlined by Expand so
//     the planner sees its inner units; an opaque one stays a single node
//     and runs its body as a nested plan.
//   - Iterative blocks own a body Graph that is executed repeatedly until
//     an explicit termination condition holds. Loop-carried values travel
//     through the block's feedback mapping, never through a literal cycle.
//
// Graphs are assembled with the builder methods (AddUnit, AddComposite,
// AddIterative, Connect, DependsOn) and checked with Validate before any
// planning happens. Builder mistakes such as duplicate IDs are recorded and
// reported by Validate, so a program can be assembled without checking
// every call.
//
// The package is purely structural: it never executes anything.
package graph
