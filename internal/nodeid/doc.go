/*
Package nodeid provides a structured representation for unit identifiers.

A unit id is a dot-separated path of segments, optionally indexed, e.g.
`pipeline.normalize` for a unit inlined from the composite `pipeline`, or
`sum[1]` for the second part of a split unit.

The package centralizes formatting and parsing so that graph expansion and
the planner agree on how derived identifiers look.
*/
package nodeid
