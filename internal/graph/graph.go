package graph

import (
	"fmt"
	"slices"
	"sort"

	"github.com/vk/blockgrid/internal/edge"
	"github.com/vk/blockgrid/internal/nodeid"
	"github.com/vk/blockgrid/internal/port"
	"github.com/vk/blockgrid/internal/unit"
)

// Endpoint is one port of one node.
type Endpoint struct {
	Node string
	Port string
}

func (e Endpoint) String() string { return e.Node + "." + e.Port }

// Edge is a directed, policy-governed link from an output port to an input
// port.
type Edge struct {
	From   Endpoint
	To     Endpoint
	Policy edge.Policy
}

// Name identifies the edge in logs and errors.
func (e Edge) Name() string { return e.From.String() + "->" + e.To.String() }

// Graph is a set of nodes and edges forming one executable program or one
// composite body. It is immutable once validated.
type Graph struct {
	nodes   map[string]*Node
	edges   []Edge
	control map[string][]string
	errs    []error
}

// New returns an empty Graph.
func New() *Graph {
	return &Graph{
		nodes:   make(map[string]*Node),
		control: make(map[string][]string),
	}
}

func (g *Graph) add(n *Node, opts []NodeOption) {
	if err := nodeid.Validate(n.ID); err != nil {
		g.errs = append(g.errs, port.Invalid(ErrInvalidID, n.ID, "", "%v", err))
		return
	}
	if _, exists := g.nodes[n.ID]; exists {
		g.errs = append(g.errs, port.Invalid(ErrDuplicateUnit, n.ID, "", "node added twice"))
		return
	}
	for _, opt := range opts {
		opt(n)
	}
	g.nodes[n.ID] = n
}

// AddUnit adds an atomic node identified by u.ID().
func (g *Graph) AddUnit(u unit.Unit, opts ...NodeOption) *Graph {
	g.add(&Node{ID: u.ID(), Kind: KindAtomic, Unit: u}, opts)
	return g
}

// AddComposite adds a composite node.
func (g *Graph) AddComposite(id string, c *Composite, opts ...NodeOption) *Graph {
	g.add(&Node{ID: id, Kind: KindComposite, Composite: c}, opts)
	return g
}

// AddIterative adds an iterative block.
func (g *Graph) AddIterative(id string, it *IterativeBlock, opts ...NodeOption) *Graph {
	if it.MaxIterations <= 0 {
		it.MaxIterations = DefaultMaxIterations
	}
	g.add(&Node{ID: id, Kind: KindIterative, Iterative: it}, opts)
	return g
}

// Connect links from.fromPort to to.toPort with the default edge policy.
func (g *Graph) Connect(from, fromPort, to, toPort string) *Graph {
	return g.ConnectWith(from, fromPort, to, toPort, edge.DefaultPolicy())
}

// ConnectWith links two ports with an explicit policy.
func (g *Graph) ConnectWith(from, fromPort, to, toPort string, policy edge.Policy) *Graph {
	g.edges = append(g.edges, Edge{
		From:   Endpoint{Node: from, Port: fromPort},
		To:     Endpoint{Node: to, Port: toPort},
		Policy: policy,
	})
	return g
}

// DependsOn adds a control dependency: id runs only after dep finished.
func (g *Graph) DependsOn(id, dep string) *Graph {
	if !slices.Contains(g.control[id], dep) {
		g.control[id] = append(g.control[id], dep)
	}
	return g
}

// Node returns the node with the given ID.
func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// IDs returns every node ID, sorted.
func (g *Graph) IDs() []string {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Nodes returns every node, sorted by ID.
func (g *Graph) Nodes() []*Node {
	ids := g.IDs()
	out := make([]*Node, len(ids))
	for i, id := range ids {
		out[i] = g.nodes[id]
	}
	return out
}

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.nodes) }

// Edges returns every edge in insertion order.
func (g *Graph) Edges() []Edge { return slices.Clone(g.edges) }

// Inbound returns the edges ending at node id.
func (g *Graph) Inbound(id string) []Edge {
	var out []Edge
	for _, e := range g.edges {
		if e.To.Node == id {
			out = append(out, e)
		}
	}
	return out
}

// Outbound returns the edges starting at node id.
func (g *Graph) Outbound(id string) []Edge {
	var out []Edge
	for _, e := range g.edges {
		if e.From.Node == id {
			out = append(out, e)
		}
	}
	return out
}

// ControlDeps returns the control dependencies of node id, sorted.
func (g *Graph) ControlDeps(id string) []string {
	deps := slices.Clone(g.control[id])
	sort.Strings(deps)
	return deps
}

// Estimate aggregates the cost of every node as if all ran side by side.
func (g *Graph) Estimate() unit.ResourceRequirements {
	var total unit.ResourceRequirements
	for _, n := range g.Nodes() {
		total = total.Add(n.Estimate())
	}
	return total
}

// Pure reports whether no node in the graph has side effects.
func (g *Graph) Pure() bool {
	for _, n := range g.nodes {
		if !n.Pure() {
			return false
		}
	}
	return true
}

// String summarizes the graph for logs.
func (g *Graph) String() string {
	return fmt.Sprintf("graph(%d nodes, %d edges)", len(g.nodes), len(g.edges))
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
