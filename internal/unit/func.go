package unit

import (
	"context"

	"github.com/vk/blockgrid/internal/execctx"
	"github.com/vk/blockgrid/internal/port"
)

// ExecFunc is the body of a Func unit.
type ExecFunc func(ctx context.Context, ec *execctx.Context, in Inputs) (Outputs, error)

// Func is an atomic unit backed by a plain function. Most registered
// blocks are Funcs configured through options.
type Func struct {
	id       string
	inputs   []port.Port
	outputs  []port.Port
	estimate ResourceRequirements
	effects  []execctx.Capability
	exec     ExecFunc
}

// FuncOption configures a Func.
type FuncOption func(*Func)

// WithInputs declares the input ports.
func WithInputs(ports ...port.Port) FuncOption {
	return func(f *Func) { f.inputs = append(f.inputs, ports...) }
}

// WithOutputs declares the output ports.
func WithOutputs(ports ...port.Port) FuncOption {
	return func(f *Func) { f.outputs = append(f.outputs, ports...) }
}

// WithEstimate overrides the default resource estimate.
func WithEstimate(r ResourceRequirements) FuncOption {
	return func(f *Func) { f.estimate = r }
}

// WithEffects marks the unit effectful.
func WithEffects(caps ...execctx.Capability) FuncOption {
	return func(f *Func) { f.effects = append(f.effects, caps...) }
}

// NewFunc builds a Func unit.
func NewFunc(id string, exec ExecFunc, opts ...FuncOption) *Func {
	f := &Func{id: id, exec: exec, estimate: DefaultRequirements()}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Func) ID() string { return f.id }

func (f *Func) Ports() ([]port.Port, []port.Port) { return f.inputs, f.outputs }

func (f *Func) EstimateResources() ResourceRequirements { return f.estimate }

func (f *Func) Effects() []execctx.Capability { return f.effects }

func (f *Func) Execute(ctx context.Context, ec *execctx.Context, in Inputs) (Outputs, error) {
	return f.exec(ctx, ec, in)
}
