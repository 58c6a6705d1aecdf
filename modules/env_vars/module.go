package env_vars

import (
	"context"
	"os"
	"strings"

	"github.com/vk/blockgrid/internal/ctxlog"
	"github.com/vk/blockgrid/internal/execctx"
	"github.com/vk/blockgrid/internal/port"
	"github.com/vk/blockgrid/internal/registry"
	"github.com/vk/blockgrid/internal/unit"
	"github.com/zclconf/go-cty/cty"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

var defaultLookup = os.Environ

// Lookup reads the environment as "KEY=value" pairs.
var Lookup = defaultLookup

// collect returns the variables whose name starts with prefix, with the
// prefix stripped when strip is set.
func collect(prefix string, strip bool) map[string]cty.Value {
	all := make(map[string]cty.Value)
	for _, e := range Lookup() {
		name, value, ok := strings.Cut(e, "=")
		if !ok || !strings.HasPrefix(name, prefix) {
			continue
		}
		if strip {
			name = strings.TrimPrefix(name, prefix)
		}
		if name != "" {
			all[name] = cty.StringVal(value)
		}
	}
	return all
}

func newEnvVars(id string, args registry.Args) (unit.Unit, error) {
	prefix, err := args.String("prefix", "")
	if err != nil {
		return nil, err
	}
	strip := false
	if err := args.Decode("strip_prefix", &strip); err != nil {
		return nil, err
	}

	return unit.NewFunc(id, func(ctx context.Context, _ *execctx.Context, _ unit.Inputs) (unit.Outputs, error) {
		all := collect(prefix, strip)
		ctxlog.FromContext(ctx).Debug("Environment read.", "unitID", id, "prefix", prefix, "count", len(all))
		if len(all) == 0 {
			return unit.Single("all", cty.MapValEmpty(cty.String)), nil
		}
		return unit.Single("all", cty.MapVal(all)), nil
	},
		unit.WithOutputs(port.Scalar("all", cty.Map(cty.String))),
		unit.WithEffects(execctx.EnvRead),
	), nil
}

// Register registers the block with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterUnit(&registry.UnitDefinition{
		Kind:        "env_vars",
		Description: "Reads environment variables, optionally filtered by a name prefix.",
		New:         newEnvVars,
	})
}
