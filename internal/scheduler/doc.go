// Package scheduler executes a validated graph as a run: it plans the graph,
// walks the plan's stages in order with a bounded worker pool, routes every
// unit's outputs through its edge channels, and reports the outcome through
// a RunHandle.
//
// # Run Lifecycle
//
// A run moves through Idle, Planning, Running(k) for each stage k, and ends
// in exactly one of Completed, Failed or Cancelled:
//
//  1. Run validates the graph and builds the plan. Either failure is
//     returned synchronously and no unit starts.
//  2. Each stage is a full barrier: every unit of stage k settles before
//     stage k+1 begins, and the memory manager collects after each barrier.
//  3. The run ends Failed when any abort-run unit failed, Cancelled when the
//     cancellation token tripped without such a failure, and Completed
//     otherwise.
//
// # Failure Handling
//
//   - **Abort-run:** the failure is fatal. The token trips, not-yet-started
//     units become Skipped and running ones get the grace period.
//   - **Best-effort:** the failure is recorded as partial. Consumers whose
//     every source on some input is cut off are Skipped; fan-in consumers
//     with at least one live source still run and see the skipped sources.
//   - **Timeouts:** a watchdog fails a unit with ErrTimeout when it exceeds
//     its declared timeout; the unit's failure policy then applies.
//
// # Concurrency Model
//
// Runs share nothing but the memory manager, the cache and the optional
// scheduler-wide event feed. Inside a run, workers pull ready units from a
// channel fed in stage order, and blocking edges are pumped by their own
// goroutines so that a small buffer never deadlocks a producer against a
// consumer in a later stage.
package scheduler
