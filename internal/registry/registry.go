package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/vk/blockgrid/internal/edge"
	"github.com/vk/blockgrid/internal/unit"
	"github.com/zclconf/go-cty/cty"
)

// ErrUnknownKind is returned when a program asks for a kind no module
// registered.
var ErrUnknownKind = errors.New("unknown unit kind")

// Module is the interface that all block modules must implement to be
// registered.
type Module interface {
	Register(r *Registry)
}

// Factory builds one unit with the given id from its arguments.
type Factory func(id string, args Args) (unit.Unit, error)

// UnitDefinition describes a registered unit kind.
type UnitDefinition struct {
	Kind        string
	Description string
	New         Factory
}

// Registry holds the unit factories, programs and adapter functions of a
// single application instance.
type Registry struct {
	units    map[string]*UnitDefinition
	programs map[string]*Program
	adapters *edge.Registry
}

// New creates and initializes a new Registry instance.
func New() *Registry {
	return &Registry{
		units:    make(map[string]*UnitDefinition),
		programs: make(map[string]*Program),
		adapters: edge.NewRegistry(),
	}
}

// RegisterUnit registers the factory of a unit kind.
func (r *Registry) RegisterUnit(def *UnitDefinition) {
	if _, exists := r.units[def.Kind]; exists {
		panic(fmt.Sprintf("unit kind '%s' already registered", def.Kind))
	}
	slog.Debug("Registering unit kind.", "kind", def.Kind)
	r.units[def.Kind] = def
}

// RegisterProgram registers a named program.
func (r *Registry) RegisterProgram(p *Program) {
	if _, exists := r.programs[p.Name]; exists {
		panic(fmt.Sprintf("program '%s' already registered", p.Name))
	}
	slog.Debug("Registering program.", "name", p.Name)
	r.programs[p.Name] = p
}

// RegisterMap registers a named value transform edges can apply.
func (r *Registry) RegisterMap(name string, fn edge.MapFunc) {
	slog.Debug("Registering map adapter.", "name", name)
	r.adapters.RegisterMap(name, fn)
}

// RegisterFilter registers a named predicate edges can apply.
func (r *Registry) RegisterFilter(name string, fn edge.FilterFunc) {
	slog.Debug("Registering filter adapter.", "name", name)
	r.adapters.RegisterFilter(name, fn)
}

// Adapters returns the adapter functions for the execution context.
func (r *Registry) Adapters() *edge.Registry { return r.adapters }

// NewUnit builds a unit of the given kind.
func (r *Registry) NewUnit(kind, id string, args Args) (unit.Unit, error) {
	def, ok := r.units[kind]
	if !ok {
		return nil, fmt.Errorf("unit '%s': %w %q", id, ErrUnknownKind, kind)
	}
	u, err := def.New(id, args)
	if err != nil {
		return nil, fmt.Errorf("building %s unit '%s': %w", kind, id, err)
	}
	return u, nil
}

// Units returns the registered unit kinds, sorted by kind.
func (r *Registry) Units() []*UnitDefinition {
	defs := make([]*UnitDefinition, 0, len(r.units))
	for _, def := range r.units {
		defs = append(defs, def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Kind < defs[j].Kind })
	return defs
}

// Program returns a registered program.
func (r *Registry) Program(name string) (*Program, bool) {
	p, ok := r.programs[name]
	return p, ok
}

// Programs returns the registered programs, sorted by name.
func (r *Registry) Programs() []*Program {
	progs := make([]*Program, 0, len(r.programs))
	for _, p := range r.programs {
		progs = append(progs, p)
	}
	sort.Slice(progs, func(i, j int) bool { return progs[i].Name < progs[j].Name })
	return progs
}

// Bindings returns the program's variable defaults overridden by vars.
// A variable the program does not declare is an error.
func (p *Program) Bindings(vars map[string]cty.Value) (map[string]cty.Value, error) {
	out := make(map[string]cty.Value, len(p.Variables))
	for name, v := range p.Variables {
		out[name] = v
	}
	for name, v := range vars {
		if _, ok := p.Variables[name]; !ok {
			return nil, fmt.Errorf("program '%s' declares no variable '%s'", p.Name, name)
		}
		out[name] = v
	}
	return out, nil
}
