package scheduler

import (
	"context"
	"fmt"

	"github.com/vk/blockgrid/internal/graph"
	"github.com/vk/blockgrid/internal/nodeid"
	"github.com/vk/blockgrid/internal/port"
	"github.com/vk/blockgrid/internal/unit"
)

// body runs g as a nested plan owned by owner. values are injected at the
// inner endpoints named by inputs; the result is read back through
// outputs. The nested run shares the parent's memory, cache and
// cancellation token, and forwards its unit events to the parent feed.
func (r *run) body(ctx context.Context, owner string, g *graph.Graph, inputs, outputs []graph.Exposure, values map[string][]port.Value) (unit.Outputs, error) {
	inject := make(map[graph.Endpoint][]port.Value, len(inputs))
	for _, e := range inputs {
		if vals, ok := values[e.Port.Name]; ok {
			inject[graph.Endpoint{Node: e.Node, Port: e.InternalPort}] = vals
		}
	}
	collect := make(map[string]bool, len(outputs))
	for _, e := range outputs {
		collect[e.Node] = true
	}

	h, err := r.s.start(ctx, g, r.ec, runOptions{inject: inject, collect: collect, parent: r, owner: owner})
	if err != nil {
		return nil, fmt.Errorf("block '%s': %w", owner, err)
	}
	// The nested token already follows ctx; waiting must not give up early
	// or the body would outlive its owner.
	res, err := h.Await(context.WithoutCancel(ctx))
	if err != nil {
		return nil, err
	}

	out := make(unit.Outputs, len(outputs))
	for _, e := range outputs {
		out[e.Port.Name] = res.Outputs[e.Node][e.InternalPort]
	}
	return out, nil
}

// nest runs an opaque composite.
func (r *run) nest(ctx context.Context, n *graph.Node, in unit.Inputs) (unit.Outputs, error) {
	c := n.Composite
	return r.body(ctx, n.ID, c.Body, c.Inputs, c.Outputs, in.Values)
}

// iterate runs the body of an iterative block once per iteration, feeding
// outputs back into inputs, until Termination reports done. Reaching
// MaxIterations ends the block with the last outputs.
func (r *run) iterate(ctx context.Context, n *graph.Node, in unit.Inputs) (unit.Outputs, error) {
	it := n.Iterative
	values := make(map[string][]port.Value, len(in.Values))
	for name, vals := range in.Values {
		values[name] = vals
	}

	var out unit.Outputs
	for i := 1; i <= it.MaxIterations; i++ {
		if err := ctx.Err(); err != nil {
			return nil, context.Cause(ctx)
		}
		var err error
		out, err = r.body(ctx, nodeid.Part(n.ID, i), it.Body, it.Inputs, it.Outputs, values)
		if err != nil {
			return nil, fmt.Errorf("iteration %d: %w", i, err)
		}

		done, err := it.Termination(i, out)
		if err != nil {
			return nil, fmt.Errorf("termination check after iteration %d: %w", i, err)
		}
		if done {
			r.logger.Debug("Iterative block converged.", "unitID", n.ID, "iterations", i)
			return out, nil
		}
		for outName, inName := range it.Feedback {
			values[inName] = out[outName]
		}
	}

	r.logger.Warn("Iterative block hit its iteration bound.", "unitID", n.ID, "maxIterations", it.MaxIterations)
	return out, nil
}
