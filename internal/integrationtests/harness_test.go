package integrationtests

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vk/blockgrid/internal/app"
	"github.com/vk/blockgrid/internal/execctx"
	"github.com/vk/blockgrid/internal/hcl"
	"github.com/vk/blockgrid/internal/registry"
	"github.com/vk/blockgrid/internal/testutil"
	"github.com/vk/blockgrid/internal/unit"
	"github.com/vk/blockgrid/modules/math"
	"github.com/vk/blockgrid/modules/print"
	"github.com/vk/blockgrid/modules/text"
	"github.com/zclconf/go-cty/cty"
)

// newApp writes files into a temporary directory and builds an app loading
// them as engine configuration. Without modules the core set is used.
func newApp(t *testing.T, cfg *app.Config, files map[string]string, modules ...registry.Module) (*app.App, *testutil.SafeBuffer) {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(testutil.Unindent(content)), 0600))
	}
	if len(files) > 0 {
		cfg.ConfigPaths = append(cfg.ConfigPaths, dir)
	}
	return app.SetupAppTest(t, cfg, hcl.NewLoader(), modules...)
}

// timingModule registers sleeper blocks and programs built from them.
type timingModule struct {
	rec *testutil.Recorder
}

func (m *timingModule) Register(r *registry.Registry) {
	r.RegisterUnit(&registry.UnitDefinition{
		Kind: "sleep",
		New: func(id string, args registry.Args) (unit.Unit, error) {
			raw, err := args.String("for", "50ms")
			if err != nil {
				return nil, err
			}
			d, err := time.ParseDuration(raw)
			if err != nil {
				return nil, err
			}
			return testutil.Sleeper(id, m.rec, d, true), nil
		},
	})

	r.RegisterProgram(&registry.Program{
		Name: "parallel",
		Build: func(b *registry.Builder) {
			b.Add("const", "seed", registry.Args{"value": cty.NumberIntVal(1)}).
				Add("sleep", "left", registry.Args{"for": cty.StringVal("150ms")}).
				Add("sleep", "right", registry.Args{"for": cty.StringVal("150ms")}).
				Add("add", "join", nil).
				Connect("seed", "out", "left", "in").
				Connect("seed", "out", "right", "in").
				Connect("left", "out", "join", "a").
				Connect("right", "out", "join", "b")
		},
	})
	r.RegisterProgram(&registry.Program{
		Name: "endless",
		Build: func(b *registry.Builder) {
			b.Add("const", "seed", registry.Args{"value": cty.NumberIntVal(1)}).
				Add("sleep", "forever", registry.Args{"for": cty.StringVal("1h")}).
				Add("add", "after", nil).
				Connect("seed", "out", "forever", "in").
				Connect("forever", "out", "after", "a").
				Connect("seed", "out", "after", "b")
		},
	})
	r.RegisterProgram(&registry.Program{
		Name:         "greet",
		Variables:    map[string]cty.Value{"name": cty.StringVal("world")},
		Capabilities: []execctx.Capability{execctx.StdoutWrite},
		Build: func(b *registry.Builder) {
			b.Add("variable", "name", registry.Args{"name": cty.StringVal("name")}).
				Add("const", "hello", registry.Args{"value": cty.StringVal("hello")}).
				Add("concat", "greeting", registry.Args{
					"separator": cty.StringVal(" "),
					"order":     cty.ListVal([]cty.Value{cty.StringVal("hello.out"), cty.StringVal("name.out")}),
				}).
				Add("print", "out", registry.Args{"label": cty.StringVal("greet")}).
				Connect("hello", "out", "greeting", "in").
				Connect("name", "out", "greeting", "in").
				Connect("greeting", "out", "out", "value")
		},
	})
}

// withTiming returns the modules the timing programs need.
func withTiming(rec *testutil.Recorder, out *testutil.SafeBuffer) []registry.Module {
	return []registry.Module{
		&math.Module{},
		&text.Module{},
		&print.Module{Out: out},
		&timingModule{rec: rec},
	}
}
