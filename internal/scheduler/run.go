package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vk/blockgrid/internal/edge"
	"github.com/vk/blockgrid/internal/execctx"
	"github.com/vk/blockgrid/internal/graph"
	"github.com/vk/blockgrid/internal/memory"
	"github.com/vk/blockgrid/internal/nodeid"
	"github.com/vk/blockgrid/internal/planner"
	"github.com/vk/blockgrid/internal/runstore"
	"github.com/vk/blockgrid/internal/unit"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var errRunEnded = errors.New("run ended")

// outcome is how one task ended.
type outcome struct {
	status   runstore.Status
	outputs  unit.Outputs
	err      error
	reason   string
	cacheHit bool
	started  time.Time
	duration time.Duration
}

// splitState collects the parts of a split node until the last one
// settles.
type splitState struct {
	outputs []unit.Outputs
	pending int
	status  runstore.Status
}

// gatherState makes the parts of a split node share one read of their
// inputs.
type gatherState struct {
	once sync.Once
	in   unit.Inputs
	skip string
	err  error
}

// run is the state of one execution of a plan.
type run struct {
	s      *Scheduler
	id     string
	ec     *execctx.Context
	handle *RunHandle
	logger *slog.Logger
	opts   runOptions
	store  *runstore.Store

	plan    *planner.Plan
	g       *graph.Graph
	ctx     context.Context
	stop    func()
	started time.Time

	edges     []graph.Edge
	channels  []*edge.Channel
	inbound   map[graph.Endpoint][]int
	outbound  map[string][]int
	producers map[string][]string
	consumers map[string]int
	collect   map[string]bool
	gathers   map[string]*gatherState
	releases  map[string]*sync.Once
	splits    map[string]*splitState

	arrival atomic.Uint64
	pumps   sync.WaitGroup

	mutex   sync.Mutex
	fatal   []Cause
	partial []Cause
	reports map[string]UnitReport
}

func newRun(s *Scheduler, ec *execctx.Context, h *RunHandle, logger *slog.Logger, opts runOptions) *run {
	return &run{
		s:       s,
		id:      ec.RunID,
		ec:      ec,
		handle:  h,
		logger:  logger,
		opts:    opts,
		store:   runstore.New(),
		reports: make(map[string]UnitReport),
	}
}

// prepare builds the edge channels and the bookkeeping the workers read
// without locking.
func (r *run) prepare(ctx context.Context, plan *planner.Plan) error {
	r.plan = plan
	r.g = plan.Graph
	r.edges = r.g.Edges()
	r.channels = make([]*edge.Channel, len(r.edges))
	r.inbound = make(map[graph.Endpoint][]int)
	r.outbound = make(map[string][]int)
	r.producers = make(map[string][]string)
	r.consumers = make(map[string]int)
	r.gathers = make(map[string]*gatherState)
	r.releases = make(map[string]*sync.Once)
	r.splits = make(map[string]*splitState)

	for i, e := range r.edges {
		adapter, err := r.ec.Adapters().Build(e.Policy.Adapter)
		if err != nil {
			return fmt.Errorf("edge %s: %w", e.Name(), err)
		}
		r.channels[i] = edge.NewChannel(e.Name(), e.Policy, adapter)
		r.inbound[e.To] = append(r.inbound[e.To], i)
		r.outbound[e.From.Node] = append(r.outbound[e.From.Node], i)
		if !slices.Contains(r.producers[e.To.Node], e.From.Node) {
			r.producers[e.To.Node] = append(r.producers[e.To.Node], e.From.Node)
		}
	}

	r.collect = r.opts.collect
	if len(r.collect) == 0 {
		r.collect = make(map[string]bool)
		for _, id := range r.g.IDs() {
			if len(r.outbound[id]) == 0 {
				r.collect[id] = true
			}
		}
	}

	for _, id := range r.g.IDs() {
		r.gathers[id] = &gatherState{}
		r.releases[id] = &sync.Once{}
		sort.Strings(r.producers[id])

		downstream := make(map[string]bool)
		for _, i := range r.outbound[id] {
			downstream[r.edges[i].To.Node] = true
		}
		r.consumers[id] = len(downstream)
		if r.collect[id] {
			r.consumers[id]++
		}
	}

	for id, tasks := range plan.NodeTasks {
		if len(tasks) == 0 || !plan.Tasks[tasks[0]].Split() {
			continue
		}
		r.splits[id] = &splitState{
			outputs: make([]unit.Outputs, len(tasks)),
			pending: len(tasks),
			status:  runstore.StatusCompleted,
		}
	}

	// Units observe cancellation only through the token, so the cause is
	// always recorded before their context is done.
	linked, unlink := r.ec.Link(context.WithoutCancel(ctx))
	stopParent := context.AfterFunc(ctx, func() {
		r.ec.Cancel(fmt.Errorf("%w: %w", execctx.ErrCancelled, context.Cause(ctx)))
	})
	r.ctx = linked
	r.stop = func() {
		stopParent()
		unlink()
	}
	r.started = time.Now()
	return nil
}

// loop walks the stages in order. Each stage is a full barrier followed by
// a garbage collection.
func (r *run) loop() {
	ctx, span := r.s.tracer.Start(r.ctx, "blockgrid.run",
		trace.WithAttributes(
			attribute.String("run.id", r.id),
			attribute.Int("run.stages", len(r.plan.Stages)),
			attribute.Int("run.units", len(r.plan.Tasks)),
		),
	)
	r.logger.Info("▶️ Starting run", "plan", r.plan.String(), "estimate", r.plan.Estimate)

	for _, st := range r.plan.Stages {
		if r.ec.Err() != nil {
			r.skipStage(ctx, st, "run cancelled before the stage started")
			continue
		}
		r.setState(StateRunning, st.Index, "")
		r.runStage(ctx, st)
		r.collectGarbage(st.Index)
	}
	r.finish(ctx, span)
}

func (r *run) runStage(ctx context.Context, st planner.Stage) {
	ctx, span := r.s.tracer.Start(ctx, "blockgrid.stage",
		trace.WithAttributes(
			attribute.Int("stage.index", st.Index),
			attribute.StringSlice("stage.units", st.Tasks),
		),
	)
	defer span.End()

	logger := r.logger.With("stage", st.Index)
	logger.Debug("Stage started.", "units", st.Tasks)

	ready := make(chan string)
	var wg sync.WaitGroup
	workers := min(r.s.cfg.Workers, len(st.Tasks))
	for w := range workers {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			r.worker(ctx, workerID, st.Index, ready)
		}(w + 1)
	}
	for _, id := range st.Tasks {
		ready <- id
	}
	close(ready)
	wg.Wait()

	logger.Debug("Stage finished.")
}

func (r *run) worker(ctx context.Context, workerID, stage int, ready <-chan string) {
	logger := r.logger.With("workerID", workerID)
	for id := range ready {
		logger.Debug("Worker picked up unit for execution.", "unitID", id)
		r.runTask(ctx, stage, r.plan.Tasks[id])
	}
}

func (r *run) runTask(ctx context.Context, stage int, t *planner.Task) {
	if r.ec.Err() != nil {
		r.skipTask(ctx, stage, t, "run cancelled")
		return
	}
	ctx, span := startUnitSpan(ctx, r.s.tracer, t.ID, stage)
	o := r.attempt(ctx, stage, t)
	r.settle(ctx, stage, t, o)
	endSpan(span, o.status.String(), o.err)
}

func (r *run) attempt(ctx context.Context, stage int, t *planner.Task) outcome {
	in, skip, err := r.inputs(ctx, t.Node)
	switch {
	case err != nil && r.ec.Err() != nil:
		return outcome{status: runstore.StatusSkipped, reason: "run cancelled"}
	case err != nil:
		return outcome{status: runstore.StatusFailed, err: &unit.ExecutionError{Unit: t.ID, Err: err}}
	case skip != "":
		return outcome{status: runstore.StatusSkipped, reason: skip}
	}
	r.transition(stage, t.ID, runstore.StatusRunning, "")
	return r.invoke(ctx, t, in)
}

func (r *run) skipStage(ctx context.Context, st planner.Stage, reason string) {
	for _, id := range st.Tasks {
		r.skipTask(ctx, st.Index, r.plan.Tasks[id], reason)
	}
}

func (r *run) skipTask(ctx context.Context, stage int, t *planner.Task, reason string) {
	r.releaseUpstream(t.Node.ID)
	r.settle(ctx, stage, t, outcome{status: runstore.StatusSkipped, reason: reason})
}

// settle records the outcome of a task and, once its node is decided,
// routes or cuts off the node's outputs.
func (r *run) settle(ctx context.Context, stage int, t *planner.Task, o outcome) {
	r.transition(stage, t.ID, o.status, reasonOf(o))
	r.mutex.Lock()
	r.reports[t.ID] = UnitReport{
		Status:   o.status,
		Stage:    stage,
		Err:      o.err,
		CacheHit: o.cacheHit,
		Started:  o.started,
		Duration: o.duration,
	}
	r.mutex.Unlock()
	r.s.metrics.unitSettled(ctx, o.status, o.duration, o.cacheHit)

	if o.status == runstore.StatusFailed {
		r.store.SetError(t.ID, o.err)
		r.fail(stage, t.ID, t.Node.FailurePolicy, o.err)
	}
	if !t.Split() {
		r.conclude(ctx, stage, t.Node, o.status, o.outputs)
		return
	}
	r.settlePart(ctx, stage, t, o)
}

func (r *run) settlePart(ctx context.Context, stage int, t *planner.Task, o outcome) {
	r.mutex.Lock()
	sp := r.splits[t.Node.ID]
	sp.outputs[t.Part] = o.outputs
	sp.pending--
	sp.status = worse(sp.status, o.status)
	last, status, parts := sp.pending == 0, sp.status, sp.outputs
	r.mutex.Unlock()
	if !last {
		return
	}

	id := t.Node.ID
	joined := outcome{status: status}
	if status == runstore.StatusCompleted {
		out, err := t.Node.Unit.(unit.Splitter).Join(parts)
		if err != nil {
			joined = outcome{
				status: runstore.StatusFailed,
				err:    &unit.ExecutionError{Unit: id, Err: fmt.Errorf("joining %d parts: %w", len(parts), err)},
			}
			r.store.SetError(id, joined.err)
			r.fail(stage, id, t.Node.FailurePolicy, joined.err)
		}
		joined.outputs = out
	}
	r.transition(stage, id, joined.status, reasonOf(joined))
	r.mutex.Lock()
	r.reports[id] = UnitReport{Status: joined.status, Stage: stage, Err: joined.err}
	r.mutex.Unlock()
	r.conclude(ctx, stage, t.Node, joined.status, joined.outputs)
}

// fail applies the failure policy. An abort-run failure trips the token,
// unless the caller already cancelled the run, in which case it is only
// reported.
func (r *run) fail(stage int, id string, policy unit.FailurePolicy, err error) {
	cause := Cause{Unit: id, Stage: stage, Err: err}

	r.mutex.Lock()
	abort := policy == unit.AbortRun && (len(r.fatal) > 0 || r.ec.Err() == nil)
	if !abort {
		r.partial = append(r.partial, cause)
		r.mutex.Unlock()
		r.logger.Warn("Unit failed; run continues.", "unitID", id, "policy", policy, "error", err)
		return
	}
	r.fatal = append(r.fatal, cause)
	r.mutex.Unlock()

	r.logger.Error("Unit failed; aborting run.", "unitID", id, "stage", stage, "error", err)
	r.ec.Cancel(err)
}

// conclude publishes a decided node's outputs, or marks its outbound edges
// skipped when it produced none.
func (r *run) conclude(ctx context.Context, stage int, n *graph.Node, status runstore.Status, out unit.Outputs) {
	if status != runstore.StatusCompleted {
		r.skipOutbound(n.ID)
		return
	}
	out = stamp(n.ID, out)
	r.store.SetOutput(n.ID, out)
	if err := r.retain(ctx, n.ID, out); err != nil {
		r.fail(stage, n.ID, unit.AbortRun, err)
		r.skipOutbound(n.ID)
		return
	}
	r.route(n.ID, out)
}

func (r *run) collectGarbage(stage int) {
	n := r.s.memory.Collect()
	r.s.memory.Profiler().Sample()
	if n > 0 {
		r.logger.Debug("Collected memory at stage barrier.", "stage", stage, "handles", n)
	}
}

func (r *run) finish(ctx context.Context, span trace.Span) {
	r.stop()
	r.pumps.Wait()

	res := r.result(true)
	r.s.memory.Collect()
	r.freeLeftovers()
	res.Memory = r.s.memory.Profiler().Snapshot()

	r.mutex.Lock()
	fatal := slices.Clone(r.fatal)
	r.mutex.Unlock()

	state := StateCompleted
	var err error
	switch {
	case len(fatal) > 0:
		state = StateFailed
		err = &RunError{RunID: r.id, Causes: fatal}
	case r.ec.Err() != nil:
		state = StateCancelled
		err = &CancellationError{RunID: r.id, Stage: r.handle.Status().Stage, Cause: r.ec.Err()}
	}
	res.State = state
	res.Finished = time.Now()

	reason := ""
	if err != nil {
		reason = err.Error()
	}
	r.setState(state, -1, reason)
	r.s.metrics.runFinished(ctx, state)

	elapsed := res.Finished.Sub(r.started)
	switch state {
	case StateCompleted:
		r.logger.Info("✅ Finished run", "duration", elapsed, "partialFailures", len(res.PartialFailures))
	case StateCancelled:
		r.logger.Warn("Run cancelled.", "duration", elapsed, "cause", r.ec.Err())
	default:
		r.logger.Error("Run failed.", "duration", elapsed, "error", err)
	}

	endSpan(span, state.String(), err)
	r.ec.Cancel(errRunEnded)
	r.handle.complete(res, err)
}

// result assembles the run's result. The final result reads collected
// outputs back from memory and releases them; a snapshot only reads the
// store. Other completed units report what the store recorded.
func (r *run) result(final bool) *Result {
	res := &Result{
		RunID:   r.id,
		State:   r.handle.Status().State,
		Outputs: make(map[string]unit.Outputs),
		Units:   make(map[string]UnitReport),
		Plan:    r.plan,
		Started: r.started,
	}

	r.mutex.Lock()
	maps.Copy(res.Units, r.reports)
	res.PartialFailures = slices.Clone(r.partial)
	r.mutex.Unlock()

	for id, task := range r.plan.Tasks {
		if _, ok := res.Units[id]; !ok {
			res.Units[id] = UnitReport{Status: r.store.Status(id), Stage: r.plan.StageOf(task.ID)}
		}
	}

	ids := make([]string, 0, len(r.collect))
	for id := range r.collect {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if r.store.Status(id) != runstore.StatusCompleted {
			continue
		}
		if !final {
			res.Outputs[id] = r.store.Output(id)
			continue
		}
		out, err := r.load(id)
		if err != nil {
			r.logger.Warn("Could not read outputs back from memory.", "unitID", id, "error", err)
			out = r.store.Output(id)
		}
		res.Outputs[id] = out
	}
	for _, id := range r.g.IDs() {
		if r.collect[id] || r.store.Status(id) != runstore.StatusCompleted {
			continue
		}
		res.Outputs[id] = r.store.Output(id)
	}
	if !final {
		res.Memory = r.s.memory.Profiler().Snapshot()
	}
	return res
}

// load decodes a collected unit's outputs from its memory container and
// drops the result's reference to it.
func (r *run) load(id string) (unit.Outputs, error) {
	h, ok := r.store.Handle(id)
	if !ok {
		return nil, fmt.Errorf("'%s' holds no memory: %w", id, memory.ErrInvalidHandle)
	}
	data, err := r.s.memory.Load(h)
	if err != nil {
		return nil, err
	}
	if err := r.s.memory.Release(h); err != nil {
		return nil, err
	}
	return unit.DecodeOutputs(data)
}

// freeLeftovers frees every container still held, because its consumers
// never ran.
func (r *run) freeLeftovers() {
	freed := 0
	for _, id := range r.store.Handles() {
		h, ok := r.store.TakeHandle(id)
		if !ok {
			continue
		}
		err := r.s.memory.Free(h)
		switch {
		case err == nil:
			freed++
		case !errors.Is(err, memory.ErrInvalidHandle):
			r.logger.Warn("Freeing leftover memory failed.", "unitID", id, "error", err)
		}
	}
	if freed > 0 {
		r.logger.Debug("Freed memory still held at the end of the run.", "handles", freed)
	}
}

func (r *run) setState(state State, stage int, reason string) {
	prev, next := r.handle.setState(state, stage)
	r.publish(Event{
		RunID:     r.id,
		Kind:      EventRun,
		Stage:     next.Stage,
		From:      prev.String(),
		To:        next.String(),
		Timestamp: time.Now(),
		Reason:    reason,
	})
}

func (r *run) transition(stage int, id string, to runstore.Status, reason string) {
	from := r.store.SetStatus(id, to)
	r.logger.Debug("Unit status changed.", "unitID", id, "from", from, "to", to)
	r.publish(Event{
		RunID:     r.id,
		Kind:      EventUnit,
		Stage:     stage,
		Unit:      id,
		From:      from.String(),
		To:        to.String(),
		Timestamp: time.Now(),
		Reason:    reason,
	})
}

// publish delivers ev to the run's subscribers. Nested runs forward their
// unit events to the parent under the owning block's id.
func (r *run) publish(ev Event) {
	r.handle.feed.Publish(ev)
	if parent := r.opts.parent; parent != nil {
		if ev.Kind == EventUnit {
			ev.Unit = nodeid.Join(r.opts.owner, ev.Unit)
			parent.publish(ev)
		}
		return
	}
	if r.s.feed != nil {
		r.s.feed.Publish(ev)
	}
}

func reasonOf(o outcome) string {
	if o.reason != "" {
		return o.reason
	}
	if o.err != nil {
		return o.err.Error()
	}
	return ""
}

// worse orders terminal statuses by severity.
func worse(a, b runstore.Status) runstore.Status {
	rank := func(s runstore.Status) int {
		switch s {
		case runstore.StatusFailed:
			return 3
		case runstore.StatusCancelled:
			return 2
		case runstore.StatusSkipped:
			return 1
		default:
			return 0
		}
	}
	if rank(b) > rank(a) {
		return b
	}
	return a
}
