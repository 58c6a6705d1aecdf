// Package dag holds the DependencyGraph derived from a unit graph: one node
// per schedulable unit and one directed edge per data or control
// dependency. It is the read-only view the planner analyses; it knows
// nothing about ports, values or execution.
//
// Beyond the basic structure the package answers the questions planning
// needs: whether the graph is acyclic, its topological layers (longest path
// from the entry points), how late each node may run without stretching the
// plan, how many transitive dependents each node has, and the critical path
// under a caller-supplied weight.
//
// Every query that returns a list of IDs returns it sorted, so planning is
// deterministic regardless of map iteration order.
package dag
