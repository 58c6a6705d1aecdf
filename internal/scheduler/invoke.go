package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vk/blockgrid/internal/cache"
	"github.com/vk/blockgrid/internal/graph"
	"github.com/vk/blockgrid/internal/planner"
	"github.com/vk/blockgrid/internal/runstore"
	"github.com/vk/blockgrid/internal/unit"
)

// invoke executes one task: capability check, cache lookup, then the unit
// itself under the watchdog.
func (r *run) invoke(ctx context.Context, t *planner.Task, in unit.Inputs) outcome {
	logger := r.logger.With("unitID", t.ID)

	if t.Unit != nil {
		if err := r.ec.Require(unit.Effects(t.Unit)...); err != nil {
			return outcome{status: runstore.StatusFailed, err: &unit.ExecutionError{Unit: t.ID, Err: err}}
		}
	}

	key, cacheable := r.cacheKey(t, in)
	if cacheable {
		out, hit, err := r.s.cache.Get(ctx, key)
		switch {
		case err != nil:
			logger.Warn("Cache lookup failed; treating it as a miss.", "key", key, "error", err)
		case hit:
			logger.Debug("Outputs served from cache.", "key", key)
			return outcome{status: runstore.StatusCompleted, outputs: out, cacheHit: true, started: time.Now()}
		}
	}

	logger.Info("▶️ Starting unit")
	logger.Debug("Unit inputs resolved.", "inputs", formatPortsForLogs(in.Values))
	o := r.watch(ctx, t, func(ctx context.Context) (unit.Outputs, error) {
		return r.call(ctx, t, in)
	})

	switch o.status {
	case runstore.StatusCompleted:
		logger.Info("✅ Finished unit", "duration", o.duration)
		logger.Debug("Unit outputs produced.", "outputs", formatPortsForLogs(o.outputs))
		if cacheable {
			if err := r.s.cache.Set(ctx, key, o.outputs); err != nil {
				logger.Warn("Cache store failed.", "key", key, "error", err)
			}
		}
	case runstore.StatusCancelled:
		logger.Info("Unit stopped after cancellation.", "duration", o.duration)
	}
	return o
}

func (r *run) call(ctx context.Context, t *planner.Task, in unit.Inputs) (unit.Outputs, error) {
	switch {
	case t.Unit != nil:
		return t.Unit.Execute(ctx, r.ec, in)
	case t.Node.Kind == graph.KindComposite:
		return r.nest(ctx, t.Node, in)
	case t.Node.Kind == graph.KindIterative:
		return r.iterate(ctx, t.Node, in)
	default:
		return nil, fmt.Errorf("node '%s' has nothing to execute", t.Node.ID)
	}
}

// cacheKey fingerprints the inputs of a pure, unsplit unit.
func (r *run) cacheKey(t *planner.Task, in unit.Inputs) (cache.Key, bool) {
	if _, off := r.s.cache.(cache.Nop); off || t.Unit == nil || t.Split() || !unit.IsPure(t.Unit) {
		return 0, false
	}
	identity, err := cache.BoundIdentity(t.Unit, r.ec.Binding)
	if err != nil {
		r.logger.Debug("Bindings cannot be fingerprinted; skipping the cache.", "unitID", t.ID, "error", err)
		return 0, false
	}
	key, err := cache.Fingerprint(identity, in)
	if err != nil {
		r.logger.Debug("Inputs cannot be fingerprinted; skipping the cache.", "unitID", t.ID, "error", err)
		return 0, false
	}
	return key, true
}

func (r *run) timeout(t *planner.Task) time.Duration {
	if t.Node.Timeout > 0 {
		return t.Node.Timeout
	}
	return r.s.cfg.DefaultTimeout
}

// watch runs fn under a watchdog. The unit fails with ErrTimeout when it
// outlives its timeout. When the run is cancelled the unit's context is
// cancelled and it has the grace period to return: an error then means
// Cancelled, no return at all means Failed with ErrGraceExpired.
func (r *run) watch(ctx context.Context, t *planner.Task, fn func(context.Context) (unit.Outputs, error)) outcome {
	unitCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	started := time.Now()
	done := make(chan outcome, 1)
	go func() {
		var o outcome
		defer func() {
			if p := recover(); p != nil {
				o = outcome{err: fmt.Errorf("%w: %v", ErrPanic, p)}
			}
			done <- o
		}()
		o.outputs, o.err = fn(unitCtx)
	}()

	finish := func(o outcome) outcome {
		o.started = started
		o.duration = time.Since(started)
		return o
	}
	failed := func(err error) outcome {
		return finish(outcome{status: runstore.StatusFailed, err: &unit.ExecutionError{Unit: t.ID, Err: err}})
	}

	var expired <-chan time.Time
	limit := r.timeout(t)
	if limit > 0 {
		timer := time.NewTimer(limit)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case o := <-done:
		return finish(r.judge(t, o))

	case <-expired:
		err := fmt.Errorf("%w after %s", ErrTimeout, limit)
		cancel(err)
		r.logger.Warn("Unit exceeded its timeout.", "unitID", t.ID, "timeout", limit)
		r.grace(done)
		return failed(err)

	case <-r.ec.Done():
		cancel(r.ec.Err())
		o, ok := r.grace(done)
		switch {
		case !ok:
			r.logger.Error("Unit ignored cancellation.", "unitID", t.ID, "grace", r.s.cfg.Grace)
			return failed(fmt.Errorf("%w (%s)", ErrGraceExpired, r.s.cfg.Grace))
		case o.err == nil:
			o.status = runstore.StatusCompleted
			return finish(o)
		default:
			return finish(outcome{status: runstore.StatusCancelled, err: o.err, reason: "cancelled"})
		}
	}
}

// grace waits up to the grace period for the unit to return.
func (r *run) grace(done <-chan outcome) (outcome, bool) {
	timer := time.NewTimer(r.s.cfg.Grace)
	defer timer.Stop()
	select {
	case o := <-done:
		return o, true
	case <-timer.C:
		return outcome{}, false
	}
}

// judge turns what the unit returned into an outcome. An error returned
// while the run is cancelled counts as the unit stopping on request.
func (r *run) judge(t *planner.Task, o outcome) outcome {
	switch {
	case o.err == nil:
		o.status = runstore.StatusCompleted
	case r.ec.Err() != nil:
		o.status = runstore.StatusCancelled
		o.reason = "cancelled"
	default:
		o.status = runstore.StatusFailed
		var execErr *unit.ExecutionError
		if !errors.As(o.err, &execErr) {
			o.err = &unit.ExecutionError{Unit: t.ID, Err: o.err}
		}
	}
	return o
}
