package scheduler

import (
	"context"
	"errors"
	"fmt"

	"github.com/vk/blockgrid/internal/edge"
	"github.com/vk/blockgrid/internal/graph"
	"github.com/vk/blockgrid/internal/memory"
	"github.com/vk/blockgrid/internal/port"
	"github.com/vk/blockgrid/internal/unit"
)

// inputs reads a node's inputs once, however many parts it was split into,
// and then drops the references the node held on its producers' memory.
func (r *run) inputs(ctx context.Context, n *graph.Node) (unit.Inputs, string, error) {
	gs := r.gathers[n.ID]
	gs.once.Do(func() {
		defer r.releaseUpstream(n.ID)
		gs.in, gs.skip, gs.err = r.gather(ctx, n)
	})
	return gs.in, gs.skip, gs.err
}

// gather drains every inbound edge of n. A non-empty skip reason means the
// node's branch was cut off upstream and it must not run.
func (r *run) gather(ctx context.Context, n *graph.Node) (in unit.Inputs, skip string, err error) {
	in = unit.NewInputs()
	for _, dep := range r.g.ControlDeps(n.ID) {
		if st := r.store.Status(dep); !st.Live() {
			return in, fmt.Sprintf("control dependency '%s' is %s", dep, st), nil
		}
	}

	inputs, _ := n.Ports()
	for _, p := range inputs {
		ep := graph.Endpoint{Node: n.ID, Port: p.Name}
		edges := r.inbound[ep]

		var sources []edge.Inbound
		for _, i := range edges {
			ch := r.channels[i]
			vals, err := ch.Drain(ctx)
			if err != nil {
				return in, "", fmt.Errorf("input '%s': %w", p.Name, err)
			}
			from := r.edges[i].From.Node
			if ch.Skipped() {
				in.SkippedSources[p.Name] = append(in.SkippedSources[p.Name], from)
				continue
			}
			sources = append(sources, edge.Inbound{Source: from, Values: vals})
		}
		if vals, ok := r.opts.inject[ep]; ok {
			sources = append(sources, edge.Inbound{Source: r.opts.owner, Values: vals})
		}

		if len(sources) == 0 {
			if len(edges) > 0 {
				return in, fmt.Sprintf("every source of input '%s' was skipped", p.Name), nil
			}
			if p.HasDefault() {
				in.Values[p.Name] = []port.Value{port.New(p.Kind, p.Default)}
			}
			continue
		}

		merged := edge.Merge(p.Merge, p.Priority, sources)
		vals := make([]port.Value, len(merged))
		for j, v := range merged {
			data, err := port.Coerce(v.Data, p.Type)
			if err != nil {
				return in, "", port.Invalid(port.ErrTypeMismatch, n.ID, p.Name, "delivered %s: %v", v.Data.Type().FriendlyName(), err)
			}
			vals[j] = v.WithData(data)
		}
		in.Values[p.Name] = vals
	}
	return in, "", nil
}

// releaseUpstream drops id's reference on each producer's memory. It runs
// once per node whether the node ran or was skipped.
func (r *run) releaseUpstream(id string) {
	r.releases[id].Do(func() {
		for _, producer := range r.producers[id] {
			h, ok := r.store.Handle(producer)
			if !ok {
				continue
			}
			if err := r.s.memory.Release(h); err != nil {
				r.logger.Warn("Releasing upstream memory failed.", "unitID", id, "producer", producer, "error", err)
			}
		}
	})
}

// retain moves a node's encoded outputs into pooled memory, handing them
// off to every downstream consumer plus the result when the node is
// collected. An exhausted pool triggers one out-of-cycle collection before
// the allocation is retried.
func (r *run) retain(ctx context.Context, id string, out unit.Outputs) error {
	consumers := r.consumers[id]
	if consumers == 0 {
		return nil
	}
	data, err := unit.EncodeOutputs(out)
	if err != nil {
		return fmt.Errorf("encoding outputs of '%s': %w", id, err)
	}

	h, err := r.s.memory.Allocate(id, len(data))
	if errors.Is(err, memory.ErrPoolExhausted) {
		r.s.metrics.poolExhausted(ctx)
		n := r.s.memory.Collect()
		r.logger.Warn("Memory pool exhausted; collected out of cycle.", "unitID", id, "collected", n)
		h, err = r.s.memory.Allocate(id, len(data))
	}
	if err != nil {
		return err
	}
	if err := r.s.memory.Store(h, data); err != nil {
		_ = r.s.memory.Free(h)
		return err
	}
	if err := r.s.memory.Handoff(h, consumers); err != nil {
		_ = r.s.memory.Free(h)
		return err
	}
	r.store.SetHandle(id, h)
	return nil
}

// route sends a node's outputs down its outbound edges. Arrival stamps are
// taken here, in completion order. Blocking edges are pumped by their own
// goroutine because their consumer only drains in a later stage; every
// other strategy never blocks and is sent inline.
func (r *run) route(id string, out unit.Outputs) {
	for _, i := range r.outbound[id] {
		e, ch := r.edges[i], r.channels[i]
		vals := make([]port.Value, len(out[e.From.Port]))
		for j, v := range out[e.From.Port] {
			v.Arrival = r.arrival.Add(1)
			vals[j] = v
		}

		if e.Policy.Backpressure != edge.Block {
			r.pump(ch, vals)
			continue
		}
		r.pumps.Add(1)
		go func() {
			defer r.pumps.Done()
			r.pump(ch, vals)
		}()
	}
}

func (r *run) pump(ch *edge.Channel, vals []port.Value) {
	for _, v := range vals {
		if err := ch.Send(r.ctx, v); err != nil {
			if r.ctx.Err() != nil {
				ch.Abort(err)
				return
			}
			r.logger.Warn("Edge rejected a value.", "edge", ch.Name(), "error", err)
			return
		}
	}
	if err := ch.Close(r.ctx); err != nil {
		r.logger.Warn("Closing edge failed.", "edge", ch.Name(), "error", err)
	}
}

func (r *run) skipOutbound(id string) {
	for _, i := range r.outbound[id] {
		r.channels[i].Skip()
	}
}

// stamp sets the emission index and producer on every value.
func stamp(source string, out unit.Outputs) unit.Outputs {
	stamped := make(unit.Outputs, len(out))
	for name, vals := range out {
		cp := make([]port.Value, len(vals))
		for i, v := range vals {
			v.Seq = uint64(i)
			v.Source = source
			cp[i] = v
		}
		stamped[name] = cp
	}
	return stamped
}
