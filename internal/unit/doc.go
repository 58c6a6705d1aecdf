// Package unit defines the capability contract every executable block must
// satisfy, plus a function-backed atomic unit that covers most
// implementations.
//
// A unit describes its ports, estimates its resource cost for the planner,
// and executes against a set of inputs inside an ExecutionContext. Units
// that can be sharded implement Splitter; units that touch the outside
// world implement Effectful and are checked against the run's capability
// set before they execute.
package unit
