package text

import (
	"context"
	"fmt"
	"strings"

	"github.com/vk/blockgrid/internal/execctx"
	"github.com/vk/blockgrid/internal/port"
	"github.com/vk/blockgrid/internal/registry"
	"github.com/vk/blockgrid/internal/unit"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// newConcat joins every string delivered to the fan-in "in" port with the
// "separator" argument. Skipped sources are left out.
func newConcat(id string, args registry.Args) (unit.Unit, error) {
	sep, err := args.String("separator", "")
	if err != nil {
		return nil, err
	}
	merge := port.MergeFirstArrival
	var order []string
	if err := args.Decode("order", &order); err != nil {
		return nil, err
	}
	if len(order) > 0 {
		merge = port.MergePriority
	}
	return unit.NewFunc(id, func(_ context.Context, _ *execctx.Context, in unit.Inputs) (unit.Outputs, error) {
		vals := in.All("in")
		parts := make([]string, 0, len(vals))
		for _, v := range vals {
			s, err := convert.Convert(v.Data, cty.String)
			if err != nil {
				return nil, fmt.Errorf("value from '%s': %w", v.Source, err)
			}
			parts = append(parts, s.AsString())
		}
		return unit.Single("out", cty.StringVal(strings.Join(parts, sep))), nil
	},
		unit.WithInputs(port.Scalar("in", cty.String).WithFanIn(port.Unbounded, merge, order...)),
		unit.WithOutputs(port.Scalar("out", cty.String)),
	), nil
}

var variableTypes = map[string]cty.Type{
	"string": cty.String,
	"number": cty.Number,
	"bool":   cty.Bool,
	"any":    cty.DynamicPseudoType,
}

// newVariable emits the ExecutionContext binding named by "name", converted
// to "type". A missing binding falls back to "default" when one is given.
func newVariable(id string, args registry.Args) (unit.Unit, error) {
	name, err := args.String("name", "")
	if err != nil {
		return nil, err
	}
	if name == "" {
		return nil, fmt.Errorf("variable '%s': argument 'name' is required", id)
	}
	typeName, err := args.String("type", "string")
	if err != nil {
		return nil, err
	}
	ty, ok := variableTypes[typeName]
	if !ok {
		return nil, fmt.Errorf("variable '%s': unsupported type '%s'", id, typeName)
	}
	def, hasDefault := args.Value("default")

	f := unit.NewFunc(id, func(_ context.Context, ec *execctx.Context, _ unit.Inputs) (unit.Outputs, error) {
		v, ok := ec.Binding(name)
		if !ok {
			if !hasDefault {
				return nil, fmt.Errorf("variable '%s' is not bound", name)
			}
			v = def
		}
		if ty != cty.DynamicPseudoType {
			converted, err := convert.Convert(v, ty)
			if err != nil {
				return nil, fmt.Errorf("variable '%s': %w", name, err)
			}
			v = converted
		}
		return unit.Single("out", v), nil
	}, unit.WithOutputs(port.Scalar("out", ty)))
	return &variable{Func: f, name: name, identity: fmt.Sprintf("variable:%s:%s:%s:%#v", id, name, typeName, def)}, nil
}

// variable is cached per binding value.
type variable struct {
	*unit.Func
	name     string
	identity string
}

func (v *variable) CacheIdentity() string   { return v.identity }
func (v *variable) CacheBindings() []string { return []string{v.name} }

// Register registers the blocks with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterUnit(&registry.UnitDefinition{
		Kind:        "concat",
		Description: "Joins every string it receives with a separator.",
		New:         newConcat,
	})
	r.RegisterUnit(&registry.UnitDefinition{
		Kind:        "variable",
		Description: "Emits a variable bound on the execution context.",
		New:         newVariable,
	})
}
