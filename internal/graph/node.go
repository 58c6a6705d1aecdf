package graph

import (
	"fmt"
	"time"

	"github.com/vk/blockgrid/internal/port"
	"github.com/vk/blockgrid/internal/unit"
)

// Default iteration cap of an IterativeBlock that does not set one.
const DefaultMaxIterations = 100

// NodeKind tags the node variant.
type NodeKind int

const (
	KindAtomic NodeKind = iota
	KindComposite
	KindIterative
)

func (k NodeKind) String() string {
	switch k {
	case KindAtomic:
		return "atomic"
	case KindComposite:
		return "composite"
	case KindIterative:
		return "iterative"
	default:
		return fmt.Sprintf("NodeKind(%d)", int(k))
	}
}

// Exposure maps a port of a composite or iterative node to one port of a
// node in its body.
type Exposure struct {
	// Port is the port as seen from outside.
	Port port.Port
	// Node and InternalPort locate the internal port.
	Node         string
	InternalPort string
}

// Expose is shorthand for an Exposure.
func Expose(p port.Port, node, internalPort string) Exposure {
	return Exposure{Port: p, Node: node, InternalPort: internalPort}
}

// Composite is a unit made of a sub-graph.
type Composite struct {
	Body    *Graph
	Inputs  []Exposure
	Outputs []Exposure
	// Opaque keeps the composite a single planning node that runs its body
	// as a nested plan instead of being inlined.
	Opaque bool
	// Estimate overrides the cost estimate derived from the body.
	Estimate *unit.ResourceRequirements
}

// TerminationFunc decides after each iteration whether the block is done.
// iteration counts from 1.
type TerminationFunc func(iteration int, outputs unit.Outputs) (bool, error)

// IterativeBlock repeats its body until Termination reports done or
// MaxIterations is reached.
type IterativeBlock struct {
	Body    *Graph
	Inputs  []Exposure
	Outputs []Exposure
	// Feedback maps an exposed output to the exposed input it feeds on the
	// next iteration.
	Feedback      map[string]string
	Termination   TerminationFunc
	MaxIterations int
	Estimate      *unit.ResourceRequirements
}

// Node is one vertex of a Graph.
type Node struct {
	ID   string
	Kind NodeKind

	Unit      unit.Unit
	Composite *Composite
	Iterative *IterativeBlock

	FailurePolicy unit.FailurePolicy
	// Timeout bounds one execution; zero means no watchdog.
	Timeout time.Duration
}

// NodeOption configures a node at insertion time.
type NodeOption func(*Node)

// WithFailurePolicy sets what a failure of the node does to the run.
func WithFailurePolicy(p unit.FailurePolicy) NodeOption {
	return func(n *Node) { n.FailurePolicy = p }
}

// WithTimeout sets the node's watchdog duration.
func WithTimeout(d time.Duration) NodeOption {
	return func(n *Node) { n.Timeout = d }
}

// Ports returns the ports of the node as seen from its graph.
func (n *Node) Ports() (inputs, outputs []port.Port) {
	switch n.Kind {
	case KindComposite:
		return exposedPorts(n.Composite.Inputs), exposedPorts(n.Composite.Outputs)
	case KindIterative:
		return exposedPorts(n.Iterative.Inputs), exposedPorts(n.Iterative.Outputs)
	default:
		return n.Unit.Ports()
	}
}

// Estimate returns the cost of one execution of the node. A composite costs
// what its body costs when every body node runs side by side; an iterative
// block is estimated per iteration.
func (n *Node) Estimate() unit.ResourceRequirements {
	switch n.Kind {
	case KindComposite:
		if n.Composite.Estimate != nil {
			return *n.Composite.Estimate
		}
		return n.Composite.Body.Estimate()
	case KindIterative:
		if n.Iterative.Estimate != nil {
			return *n.Iterative.Estimate
		}
		return n.Iterative.Body.Estimate()
	default:
		return n.Unit.EstimateResources()
	}
}

// Splittable reports whether the planner may shard the node.
func (n *Node) Splittable() bool {
	return n.Kind == KindAtomic && unit.CanSplit(n.Unit)
}

// Pure reports whether the node's execution has no side effects.
func (n *Node) Pure() bool {
	switch n.Kind {
	case KindComposite:
		return n.Composite.Body.Pure()
	case KindIterative:
		return n.Iterative.Body.Pure()
	default:
		return unit.IsPure(n.Unit)
	}
}

// Body returns the sub-graph of a composite or iterative node.
func (n *Node) Body() *Graph {
	switch n.Kind {
	case KindComposite:
		return n.Composite.Body
	case KindIterative:
		return n.Iterative.Body
	default:
		return nil
	}
}

func exposedPorts(exps []Exposure) []port.Port {
	out := make([]port.Port, len(exps))
	for i, e := range exps {
		out[i] = e.Port
	}
	return out
}

func findExposure(exps []Exposure, name string) (Exposure, bool) {
	for _, e := range exps {
		if e.Port.Name == name {
			return e, true
		}
	}
	return Exposure{}, false
}
