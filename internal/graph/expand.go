package graph

import (
	"fmt"

	"github.com/vk/blockgrid/internal/nodeid"
	"github.com/vk/blockgrid/internal/unit"
)

// expansion records where the ports of an inlined composite ended up.
type expansion struct {
	inputs  map[Endpoint]Endpoint
	outputs map[Endpoint]Endpoint
}

// Expand returns an equivalent graph in which every transparent composite
// is replaced by its body, recursively. Inner node ids become
// "composite.child". Opaque composites and iterative blocks stay single
// nodes. Control dependencies on a composite apply to each of its inner
// nodes. The receiver is not modified; g is expected to be valid.
func (g *Graph) Expand() (*Graph, error) {
	out, _, err := g.expand()
	return out, err
}

func (g *Graph) expand() (*Graph, expansion, error) {
	out := New()
	x := expansion{
		inputs:  make(map[Endpoint]Endpoint),
		outputs: make(map[Endpoint]Endpoint),
	}
	inlined := make(map[string][]string)

	for _, n := range g.Nodes() {
		if n.Kind != KindComposite || n.Composite.Opaque {
			out.nodes[n.ID] = n
			continue
		}

		body, inner, err := n.Composite.Body.expand()
		if err != nil {
			return nil, x, fmt.Errorf("expanding composite '%s': %w", n.ID, err)
		}
		prefix := func(ep Endpoint, through map[Endpoint]Endpoint) Endpoint {
			if mapped, ok := through[ep]; ok {
				ep = mapped
			}
			return Endpoint{Node: nodeid.Join(n.ID, ep.Node), Port: ep.Port}
		}

		for _, bn := range body.Nodes() {
			clone := *bn
			clone.ID = nodeid.Join(n.ID, bn.ID)
			if n.FailurePolicy != unit.AbortRun {
				clone.FailurePolicy = n.FailurePolicy
			}
			if clone.Timeout == 0 {
				clone.Timeout = n.Timeout
			}
			if _, exists := out.nodes[clone.ID]; exists {
				return nil, x, fmt.Errorf("expanding composite '%s': inner id '%s' collides", n.ID, clone.ID)
			}
			out.nodes[clone.ID] = &clone
			inlined[n.ID] = append(inlined[n.ID], clone.ID)
		}
		for _, e := range body.edges {
			out.edges = append(out.edges, Edge{
				From:   Endpoint{Node: nodeid.Join(n.ID, e.From.Node), Port: e.From.Port},
				To:     Endpoint{Node: nodeid.Join(n.ID, e.To.Node), Port: e.To.Port},
				Policy: e.Policy,
			})
		}
		for id, deps := range body.control {
			for _, dep := range deps {
				out.DependsOn(nodeid.Join(n.ID, id), nodeid.Join(n.ID, dep))
			}
		}
		for _, e := range n.Composite.Inputs {
			x.inputs[Endpoint{Node: n.ID, Port: e.Port.Name}] = prefix(Endpoint{Node: e.Node, Port: e.InternalPort}, inner.inputs)
		}
		for _, e := range n.Composite.Outputs {
			x.outputs[Endpoint{Node: n.ID, Port: e.Port.Name}] = prefix(Endpoint{Node: e.Node, Port: e.InternalPort}, inner.outputs)
		}
	}

	for _, e := range g.edges {
		from, to := e.From, e.To
		if mapped, ok := x.outputs[from]; ok {
			from = mapped
		}
		if mapped, ok := x.inputs[to]; ok {
			to = mapped
		}
		out.edges = append(out.edges, Edge{From: from, To: to, Policy: e.Policy})
	}

	members := func(id string) []string {
		if ids, ok := inlined[id]; ok {
			return ids
		}
		return []string{id}
	}
	for _, id := range sortedKeys(g.control) {
		for _, dep := range g.control[id] {
			for _, a := range members(id) {
				for _, b := range members(dep) {
					out.DependsOn(a, b)
				}
			}
		}
	}

	out.errs = append(out.errs, g.errs...)
	return out, x, nil
}
