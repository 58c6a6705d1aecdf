package graph

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/vk/blockgrid/internal/dag"
	"github.com/vk/blockgrid/internal/nodeid"
	"github.com/vk/blockgrid/internal/port"
)

// Validate checks the graph before any execution: every edge connects
// existing, compatible ports under a valid policy; every input without a
// default is connected; stream outputs respect their connection limit;
// there is no cycle; and every composite or iterative node exposes its body
// consistently. Bodies are validated recursively. All problems are
// reported at once, joined, each as a *port.ValidationError.
func (g *Graph) Validate() error {
	return errors.Join(g.validate(nil)...)
}

// validate checks g as a body whose exposed inputs receive the given number
// of edges from outside.
func (g *Graph) validate(external map[Endpoint]int) []error {
	errs := append([]error(nil), g.errs...)

	inbound := make(map[Endpoint]int, len(external))
	for ep, n := range external {
		inbound[ep] += n
	}
	outbound := make(map[Endpoint]int)
	sources := make(map[Endpoint][]string)
	for _, e := range g.edges {
		inbound[e.To]++
		outbound[e.From]++
		sources[e.To] = append(sources[e.To], e.From.Node)
	}

	reported := make(map[Endpoint]bool)
	for _, e := range g.edges {
		err := g.validateEdge(e, inbound[e.To])
		if err == nil {
			continue
		}
		if errors.Is(err, port.ErrCardinalityViolation) {
			if reported[e.To] {
				continue
			}
			reported[e.To] = true
		}
		errs = append(errs, err)
	}

	for _, n := range g.Nodes() {
		inputs, outputs := n.Ports()
		for _, p := range inputs {
			ep := Endpoint{Node: n.ID, Port: p.Name}
			if inbound[ep] == 0 && !p.HasDefault() {
				errs = append(errs, port.Invalid(ErrUnconnectedInput, n.ID, p.Name, "no inbound edge and no default"))
			}
			// Exposed inputs also receive from the owning block, whose id
			// the body cannot see.
			if external[ep] == 0 {
				errs = append(errs, checkPriority(n.ID, p, sources[ep])...)
			}
		}
		for _, p := range outputs {
			if err := port.CheckOutbound(p, outbound[Endpoint{Node: n.ID, Port: p.Name}]); err != nil {
				errs = append(errs, attach(err, n.ID, p.Name))
			}
		}
		if n.Kind != KindAtomic {
			errs = append(errs, validateNested(n)...)
		}
	}

	for _, id := range sortedKeys(g.control) {
		for _, dep := range g.control[id] {
			for _, ref := range []string{id, dep} {
				if _, ok := g.nodes[ref]; !ok {
					errs = append(errs, port.Invalid(ErrUnknownUnit, ref, "", "control dependency %s -> %s", dep, id))
				}
			}
		}
	}

	if err := g.checkCycles(); err != nil {
		errs = append(errs, err)
	}
	return errs
}

// checkPriority reports priority entries that name no unit connected to p.
func checkPriority(id string, p port.Port, connected []string) []error {
	var errs []error
	for _, src := range p.Priority {
		if !slices.Contains(connected, src) {
			errs = append(errs, port.Invalid(port.ErrCardinalityViolation, id, p.Name, "priority names '%s', which is not connected to this input", src))
		}
	}
	return errs
}

func (g *Graph) validateEdge(e Edge, inbound int) error {
	from, ok := g.nodes[e.From.Node]
	if !ok {
		return port.Invalid(ErrUnknownUnit, e.From.Node, e.From.Port, "edge %s", e.Name())
	}
	to, ok := g.nodes[e.To.Node]
	if !ok {
		return port.Invalid(ErrUnknownUnit, e.To.Node, e.To.Port, "edge %s", e.Name())
	}

	_, fromOutputs := from.Ports()
	out, ok := port.Find(fromOutputs, e.From.Port)
	if !ok {
		return port.Invalid(ErrUnknownPort, e.From.Node, e.From.Port, "no such output")
	}
	toInputs, _ := to.Ports()
	in, ok := port.Find(toInputs, e.To.Port)
	if !ok {
		return port.Invalid(ErrUnknownPort, e.To.Node, e.To.Port, "no such input")
	}

	if err := e.Policy.Validate(out.Kind); err != nil {
		return attach(err, e.To.Node, e.To.Port)
	}

	// The input sees what the adapter produces, not what the output emits.
	delivered := out
	delivered.Type = e.Policy.Adapter.ResultType(out.Type)
	return attach(port.ValidateConnection(delivered, in, inbound), e.To.Node, e.To.Port)
}

func (g *Graph) checkCycles() error {
	d := g.DependencyGraph()
	if err := d.DetectCycles(); err != nil {
		var cycleErr *dag.CycleError
		if errors.As(err, &cycleErr) {
			return port.Invalid(ErrIllegalCycle, cycleErr.Path[0], "", "%s; wrap the loop in an iterative block", strings.Join(cycleErr.Path, " -> "))
		}
		return port.Invalid(ErrIllegalCycle, "", "", "%v", err)
	}
	for _, e := range g.edges {
		if e.From.Node == e.To.Node {
			return port.Invalid(ErrIllegalCycle, e.From.Node, e.To.Port, "edge %s loops back to its own unit", e.Name())
		}
	}
	return nil
}

func validateNested(n *Node) []error {
	var errs []error
	var inputs, outputs []Exposure
	body := n.Body()
	switch n.Kind {
	case KindComposite:
		inputs, outputs = n.Composite.Inputs, n.Composite.Outputs
	case KindIterative:
		inputs, outputs = n.Iterative.Inputs, n.Iterative.Outputs
	}
	if body == nil {
		return []error{port.Invalid(ErrExposureMismatch, n.ID, "", "%s node without a body", n.Kind)}
	}

	external := make(map[Endpoint]int)
	errs = append(errs, checkExposures(n.ID, body, inputs, true, external)...)
	errs = append(errs, checkExposures(n.ID, body, outputs, false, nil)...)

	if n.Kind == KindIterative {
		it := n.Iterative
		if it.Termination == nil {
			errs = append(errs, port.Invalid(ErrMissingTermination, n.ID, "", "iterative block needs a termination condition"))
		}
		for _, outName := range sortedKeys(it.Feedback) {
			inName := it.Feedback[outName]
			out, okOut := findExposure(it.Outputs, outName)
			in, okIn := findExposure(it.Inputs, inName)
			switch {
			case !okOut || !okIn:
				errs = append(errs, port.Invalid(ErrExposureMismatch, n.ID, outName, "feedback %s -> %s names an unexposed port", outName, inName))
			case out.Port.Kind != in.Port.Kind || !port.Compatible(out.Port.Type, in.Port.Type):
				errs = append(errs, port.Invalid(ErrExposureMismatch, n.ID, outName, "feedback %s -> %s: %s %s does not feed %s %s",
					outName, inName, out.Port.Kind, out.Port.Type.FriendlyName(), in.Port.Kind, in.Port.Type.FriendlyName()))
			}
		}
	}

	for _, err := range body.validate(external) {
		errs = append(errs, scoped(err, n.ID))
	}
	return errs
}

// checkExposures verifies that each exposed port maps to exactly one
// internal port of the same kind and type. Exposed inputs are counted into
// external as inbound edges of the internal port.
func checkExposures(owner string, body *Graph, exps []Exposure, input bool, external map[Endpoint]int) []error {
	var errs []error
	seen := make(map[string]bool)
	for _, e := range exps {
		if seen[e.Port.Name] {
			errs = append(errs, port.Invalid(ErrExposureMismatch, owner, e.Port.Name, "port exposed twice"))
			continue
		}
		seen[e.Port.Name] = true

		inner, ok := body.nodes[e.Node]
		if !ok {
			errs = append(errs, port.Invalid(ErrExposureMismatch, owner, e.Port.Name, "maps to unknown unit %q", e.Node))
			continue
		}
		innerInputs, innerOutputs := inner.Ports()
		candidates := innerOutputs
		if input {
			candidates = innerInputs
		}
		p, ok := port.Find(candidates, e.InternalPort)
		if !ok {
			errs = append(errs, port.Invalid(ErrExposureMismatch, owner, e.Port.Name, "maps to unknown port %s.%s", e.Node, e.InternalPort))
			continue
		}
		if p.Kind != e.Port.Kind || !p.Type.Equals(e.Port.Type) {
			errs = append(errs, port.Invalid(ErrExposureMismatch, owner, e.Port.Name, "exposed as %s %s but %s.%s is %s %s",
				e.Port.Kind, e.Port.Type.FriendlyName(), e.Node, e.InternalPort, p.Kind, p.Type.FriendlyName()))
			continue
		}
		if input {
			external[Endpoint{Node: e.Node, Port: e.InternalPort}]++
		}
	}
	return errs
}

// scoped rewrites the unit of a body validation error to its full id.
func scoped(err error, owner string) error {
	var vErr *port.ValidationError
	if errors.As(err, &vErr) {
		vErr.Unit = nodeid.Join(owner, vErr.Unit)
		return vErr
	}
	return fmt.Errorf("%s: %w", owner, err)
}

// DependencyGraph derives the dependency view of g: one node per graph
// node, an edge from producer to consumer for every data edge and from
// dependency to dependent for every control dependency. Edges naming
// unknown or identical nodes are left out; Validate reports them.
func (g *Graph) DependencyGraph() *dag.Graph {
	d := dag.New()
	for _, id := range g.IDs() {
		d.AddNode(id)
	}
	for _, e := range g.edges {
		_ = d.AddEdge(e.From.Node, e.To.Node)
	}
	for _, id := range sortedKeys(g.control) {
		for _, dep := range g.control[id] {
			_ = d.AddEdge(dep, id)
		}
	}
	return d
}
