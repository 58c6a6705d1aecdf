package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vk/blockgrid/internal/execctx"
	"github.com/vk/blockgrid/internal/memory"
	"github.com/vk/blockgrid/internal/planner"
	"github.com/vk/blockgrid/internal/runstore"
	"github.com/vk/blockgrid/internal/unit"
	"github.com/zclconf/go-cty/cty"
)

// UnitReport is the outcome of one unit, or of one part of a split unit.
type UnitReport struct {
	Status   runstore.Status
	Stage    int
	Err      error
	CacheHit bool
	Started  time.Time
	Duration time.Duration
}

// Result is what a run produced.
type Result struct {
	RunID string
	State State
	// Outputs holds the outputs of every completed unit, keyed by unit id.
	// Sink outputs are read back from their memory containers.
	Outputs map[string]unit.Outputs
	Units   map[string]UnitReport
	// PartialFailures lists failures that did not abort the run: best-effort
	// units, and units that failed after the run was already cancelled.
	PartialFailures []Cause
	Memory          memory.Snapshot
	Plan            *planner.Plan
	Started         time.Time
	Finished        time.Time
}

// Status returns the final status of a unit, StatusPending if unknown.
func (r *Result) Status(id string) runstore.Status {
	if rep, ok := r.Units[id]; ok {
		return rep.Status
	}
	return runstore.StatusPending
}

// Statuses returns the status of every unit.
func (r *Result) Statuses() map[string]runstore.Status {
	out := make(map[string]runstore.Status, len(r.Units))
	for id, rep := range r.Units {
		out[id] = rep.Status
	}
	return out
}

// Value returns the first value a completed unit emitted on a port.
func (r *Result) Value(id, portName string) (cty.Value, bool) {
	vals := r.Outputs[id][portName]
	if len(vals) == 0 {
		return cty.NilVal, false
	}
	return vals[0].Data, true
}

// UnitIDs returns the ids of every reported unit, sorted.
func (r *Result) UnitIDs() []string {
	ids := make([]string, 0, len(r.Units))
	for id := range r.Units {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// RunHandle controls and observes one run.
type RunHandle struct {
	id          string
	ec          *execctx.Context
	feed        *Feed
	eventBuffer int

	mutex  sync.Mutex
	status Status
	plan   *planner.Plan

	done     chan struct{}
	result   *Result
	err      error
	snapshot func() *Result
}

func newHandle(ec *execctx.Context, eventBuffer int) *RunHandle {
	return &RunHandle{
		id:          ec.RunID,
		ec:          ec,
		feed:        newReplayFeed(),
		eventBuffer: eventBuffer,
		status:      Status{State: StateIdle, Stage: -1},
		done:        make(chan struct{}),
	}
}

// ID returns the run id.
func (h *RunHandle) ID() string { return h.id }

// Plan returns the execution plan, nil while planning.
func (h *RunHandle) Plan() *planner.Plan {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return h.plan
}

// Status returns the current run state.
func (h *RunHandle) Status() Status {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return h.status
}

// Cancel trips the run's cancellation token. Units not yet started are
// skipped; running units get the grace period. Cancelling an ended run has
// no effect.
func (h *RunHandle) Cancel() {
	h.ec.Cancel(execctx.ErrCancelled)
}

// Done is closed once the run has ended.
func (h *RunHandle) Done() <-chan struct{} { return h.done }

// Await blocks until the run ends and returns its result, with a *RunError
// for a Failed run and a *CancellationError for a Cancelled one. If ctx
// ends first, Await returns a snapshot of the results so far with ctx's
// error; the run itself keeps going.
func (h *RunHandle) Await(ctx context.Context) (*Result, error) {
	select {
	case <-h.done:
		return h.result, h.err
	case <-ctx.Done():
	}
	h.mutex.Lock()
	snapshot := h.snapshot
	h.mutex.Unlock()
	if snapshot == nil {
		return nil, ctx.Err()
	}
	return snapshot(), ctx.Err()
}

// Events returns every event of the run published so far followed by the
// live ones. The channel is closed when the run ends.
func (h *RunHandle) Events() <-chan Event {
	ch, _ := h.feed.Subscribe(h.eventBuffer)
	return ch
}

// setState moves the run to state. A negative stage keeps the current one.
func (h *RunHandle) setState(state State, stage int) (prev, next Status) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	prev = h.status
	h.status.State = state
	if stage >= 0 {
		h.status.Stage = stage
	}
	return prev, h.status
}

func (h *RunHandle) started(plan *planner.Plan, snapshot func() *Result) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.plan = plan
	h.snapshot = snapshot
	h.status.Stages = len(plan.Stages)
}

func (h *RunHandle) complete(res *Result, err error) {
	h.result = res
	h.err = err
	close(h.done)
	h.feed.Close()
}
