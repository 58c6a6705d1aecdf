package math

import (
	"context"
	"errors"
	"fmt"

	"github.com/vk/blockgrid/internal/ctxlog"
	"github.com/vk/blockgrid/internal/execctx"
	"github.com/vk/blockgrid/internal/port"
	"github.com/vk/blockgrid/internal/registry"
	"github.com/vk/blockgrid/internal/unit"
	"github.com/zclconf/go-cty/cty"
)

// ErrDivisionByZero is returned by the divide block.
var ErrDivisionByZero = errors.New("division by zero")

// Module implements the registry.Module interface for this package.
type Module struct{}

// constant is a Func whose cache identity includes its value, so two const
// blocks with the same id but different values never share a cache entry.
type constant struct {
	*unit.Func
	identity string
}

func (c constant) CacheIdentity() string { return c.identity }

func newConst(id string, args registry.Args) (unit.Unit, error) {
	v, ok := args.Value("value")
	if !ok {
		return nil, fmt.Errorf("const '%s': argument 'value' is required", id)
	}
	f := unit.NewFunc(id, func(context.Context, *execctx.Context, unit.Inputs) (unit.Outputs, error) {
		return unit.Single("out", v), nil
	}, unit.WithOutputs(port.Scalar("out", v.Type())))
	return constant{Func: f, identity: fmt.Sprintf("const:%s:%#v", id, v)}, nil
}

func newRange(id string, args registry.Args) (unit.Unit, error) {
	from, err := args.Int("from", 0)
	if err != nil {
		return nil, err
	}
	to, err := args.Int("to", 0)
	if err != nil {
		return nil, err
	}
	step, err := args.Int("step", 1)
	if err != nil {
		return nil, err
	}
	if step <= 0 {
		return nil, fmt.Errorf("range '%s': step must be positive, got %d", id, step)
	}
	return unit.NewFunc(id, func(ctx context.Context, _ *execctx.Context, _ unit.Inputs) (unit.Outputs, error) {
		var data []cty.Value
		for n := from; n < to; n += step {
			data = append(data, cty.NumberIntVal(int64(n)))
		}
		ctxlog.FromContext(ctx).Debug("Range emitted values.", "unitID", id, "count", len(data))
		return unit.Outputs{"out": unit.Emit(port.KindStream, data...)}, nil
	}, unit.WithOutputs(port.Stream("out", cty.Number))), nil
}

// binary builds a factory for a block combining number inputs "a" and "b".
func binary(op func(a, b cty.Value) (cty.Value, error)) registry.Factory {
	return func(id string, _ registry.Args) (unit.Unit, error) {
		return unit.NewFunc(id, func(_ context.Context, _ *execctx.Context, in unit.Inputs) (unit.Outputs, error) {
			a, err := in.Require("a")
			if err != nil {
				return nil, err
			}
			b, err := in.Require("b")
			if err != nil {
				return nil, err
			}
			out, err := op(a, b)
			if err != nil {
				return nil, err
			}
			return unit.Single("out", out), nil
		},
			unit.WithInputs(port.Scalar("a", cty.Number), port.Scalar("b", cty.Number)),
			unit.WithOutputs(port.Scalar("out", cty.Number)),
		), nil
	}
}

func add(a, b cty.Value) (cty.Value, error)      { return a.Add(b), nil }
func multiply(a, b cty.Value) (cty.Value, error) { return a.Multiply(b), nil }

func divide(a, b cty.Value) (cty.Value, error) {
	if b.Equals(cty.Zero).True() {
		return cty.NilVal, ErrDivisionByZero
	}
	return a.Divide(b), nil
}

// newtonStep performs one Newton iteration towards the square root of
// "target": x' = (x + target/x) / 2.
func newtonStep(id string, _ registry.Args) (unit.Unit, error) {
	return unit.NewFunc(id, func(_ context.Context, _ *execctx.Context, in unit.Inputs) (unit.Outputs, error) {
		x, err := in.Require("x")
		if err != nil {
			return nil, err
		}
		target, err := in.Require("target")
		if err != nil {
			return nil, err
		}
		if x.Equals(cty.Zero).True() {
			return nil, ErrDivisionByZero
		}
		next := x.Add(target.Divide(x)).Divide(cty.NumberIntVal(2))
		return unit.Single("x", next), nil
	},
		unit.WithInputs(port.Scalar("x", cty.Number), port.Scalar("target", cty.Number)),
		unit.WithOutputs(port.Scalar("x", cty.Number)),
	), nil
}

// Register registers the blocks and edge functions with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterUnit(&registry.UnitDefinition{Kind: "const", Description: "Emits its 'value' argument.", New: newConst})
	r.RegisterUnit(&registry.UnitDefinition{Kind: "range", Description: "Streams integers in [from, to) by step.", New: newRange})
	r.RegisterUnit(&registry.UnitDefinition{Kind: "add", Description: "Adds 'a' and 'b'.", New: binary(add)})
	r.RegisterUnit(&registry.UnitDefinition{Kind: "multiply", Description: "Multiplies 'a' by 'b'.", New: binary(multiply)})
	r.RegisterUnit(&registry.UnitDefinition{Kind: "divide", Description: "Divides 'a' by 'b'.", New: binary(divide)})
	r.RegisterUnit(&registry.UnitDefinition{Kind: "sum", Description: "Sums a list of numbers. Splittable.", New: newSum})
	r.RegisterUnit(&registry.UnitDefinition{Kind: "newton_step", Description: "One Newton iteration towards sqrt(target).", New: newtonStep})

	r.RegisterMap("double", func(v cty.Value) (cty.Value, error) {
		if v.Type() != cty.Number {
			return cty.NilVal, fmt.Errorf("double: expected number, got %s", v.Type().FriendlyName())
		}
		return v.Multiply(cty.NumberIntVal(2)), nil
	})
	r.RegisterMap("square", func(v cty.Value) (cty.Value, error) {
		if v.Type() != cty.Number {
			return cty.NilVal, fmt.Errorf("square: expected number, got %s", v.Type().FriendlyName())
		}
		return v.Multiply(v), nil
	})
	r.RegisterMap("negate", func(v cty.Value) (cty.Value, error) {
		if v.Type() != cty.Number {
			return cty.NilVal, fmt.Errorf("negate: expected number, got %s", v.Type().FriendlyName())
		}
		return v.Negate(), nil
	})
	r.RegisterFilter("even", func(v cty.Value) (bool, error) {
		if v.Type() != cty.Number {
			return false, fmt.Errorf("even: expected number, got %s", v.Type().FriendlyName())
		}
		return v.Modulo(cty.NumberIntVal(2)).Equals(cty.Zero).True(), nil
	})
	r.RegisterFilter("positive", func(v cty.Value) (bool, error) {
		if v.Type() != cty.Number {
			return false, fmt.Errorf("positive: expected number, got %s", v.Type().FriendlyName())
		}
		return v.GreaterThan(cty.Zero).True(), nil
	})
}
