package registry

import (
	"errors"

	"github.com/vk/blockgrid/internal/edge"
	"github.com/vk/blockgrid/internal/execctx"
	"github.com/vk/blockgrid/internal/graph"
	"github.com/vk/blockgrid/internal/unit"
	"github.com/zclconf/go-cty/cty"
)

// Program is a named graph definition built out of registered units.
type Program struct {
	Name        string
	Description string
	// Variables are the bindings the program's units read, with their
	// default values.
	Variables map[string]cty.Value
	// Capabilities lists what the program's effectful units need granted.
	Capabilities []execctx.Capability
	Build        func(b *Builder)
}

// Graph builds the program's graph.
func (p *Program) Graph(r *Registry) (*graph.Graph, error) {
	b := r.NewBuilder()
	p.Build(b)
	if err := b.Err(); err != nil {
		return nil, err
	}
	return b.Graph(), nil
}

// Builder assembles a graph from registered unit kinds. Errors are
// collected and reported by Err so programs read as a list of
// declarations.
type Builder struct {
	reg  *Registry
	g    *graph.Graph
	errs []error
}

// NewBuilder returns a builder for a fresh graph.
func (r *Registry) NewBuilder() *Builder {
	return &Builder{reg: r, g: graph.New()}
}

// Body returns a builder for the body of a composite or iterative block.
// Its errors are reported by the parent's Err.
func (b *Builder) Body() *Builder {
	return &Builder{reg: b.reg, g: graph.New()}
}

// Unit builds a unit without adding it to the graph.
func (b *Builder) Unit(kind, id string, args Args) unit.Unit {
	u, err := b.reg.NewUnit(kind, id, args)
	if err != nil {
		b.errs = append(b.errs, err)
		return nil
	}
	return u
}

// Add builds a unit and adds it to the graph.
func (b *Builder) Add(kind, id string, args Args, opts ...graph.NodeOption) *Builder {
	if u := b.Unit(kind, id, args); u != nil {
		b.g.AddUnit(u, opts...)
	}
	return b
}

// Composite adds a composite block whose body was built by body.
func (b *Builder) Composite(id string, body *Builder, c graph.Composite, opts ...graph.NodeOption) *Builder {
	b.errs = append(b.errs, body.errs...)
	c.Body = body.g
	b.g.AddComposite(id, &c, opts...)
	return b
}

// Iterative adds an iterative block whose body was built by body.
func (b *Builder) Iterative(id string, body *Builder, it graph.IterativeBlock, opts ...graph.NodeOption) *Builder {
	b.errs = append(b.errs, body.errs...)
	it.Body = body.g
	b.g.AddIterative(id, &it, opts...)
	return b
}

// Connect adds a data edge with the default policy.
func (b *Builder) Connect(from, fromPort, to, toPort string) *Builder {
	b.g.Connect(from, fromPort, to, toPort)
	return b
}

// ConnectWith adds a data edge with an explicit policy.
func (b *Builder) ConnectWith(from, fromPort, to, toPort string, policy edge.Policy) *Builder {
	b.g.ConnectWith(from, fromPort, to, toPort, policy)
	return b
}

// DependsOn adds a control dependency.
func (b *Builder) DependsOn(id, dep string) *Builder {
	b.g.DependsOn(id, dep)
	return b
}

// Graph returns the graph built so far.
func (b *Builder) Graph() *graph.Graph { return b.g }

// Err returns every error collected while building.
func (b *Builder) Err() error { return errors.Join(b.errs...) }
