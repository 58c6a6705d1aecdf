package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/blockgrid/internal/ctxlog"
	"github.com/vk/blockgrid/internal/execctx"
	"github.com/vk/blockgrid/internal/testutil"
	"github.com/vk/blockgrid/internal/unit"
	"github.com/zclconf/go-cty/cty"
)

func testRegistry() *Registry {
	r := New()
	r.RegisterUnit(&UnitDefinition{
		Kind: "const",
		New: func(id string, args Args) (unit.Unit, error) {
			v, _ := args.Value("value")
			return testutil.Const(id, v), nil
		},
	})
	r.RegisterUnit(&UnitDefinition{
		Kind: "pass",
		New: func(id string, _ Args) (unit.Unit, error) {
			return testutil.Pass(id, testutil.NewRecorder()), nil
		},
	})
	r.RegisterUnit(&UnitDefinition{
		Kind: "shout",
		New: func(id string, _ Args) (unit.Unit, error) {
			return testutil.Pass(id, testutil.NewRecorder(), unit.WithEffects(execctx.StdoutWrite)), nil
		},
	})
	return r
}

func testCtx() context.Context {
	return ctxlog.Discard(context.Background())
}

func TestRegistry_UnitsAndPrograms(t *testing.T) {
	r := testRegistry()
	r.RegisterProgram(&Program{Name: "b", Build: func(*Builder) {}})
	r.RegisterProgram(&Program{Name: "a", Build: func(*Builder) {}})

	var kinds []string
	for _, def := range r.Units() {
		kinds = append(kinds, def.Kind)
	}
	assert.Equal(t, []string{"const", "pass", "shout"}, kinds)
	require.Len(t, r.Programs(), 2)
	assert.Equal(t, "a", r.Programs()[0].Name)

	_, err := r.NewUnit("missing", "x", nil)
	require.ErrorIs(t, err, ErrUnknownKind)

	_, err = r.Lookup("c")
	require.ErrorIs(t, err, ErrUnknownProgram)
	assert.Contains(t, err.Error(), "a, b")
}

func TestRegistry_DuplicatesPanic(t *testing.T) {
	r := testRegistry()
	assert.Panics(t, func() { r.RegisterUnit(&UnitDefinition{Kind: "const"}) })
	r.RegisterProgram(&Program{Name: "p"})
	assert.Panics(t, func() { r.RegisterProgram(&Program{Name: "p"}) })
}

func TestRegistry_Validate(t *testing.T) {
	testCases := []struct {
		name    string
		program *Program
		errPart string
	}{
		{
			name: "valid",
			program: &Program{Name: "ok", Build: func(b *Builder) {
				b.Add("const", "one", Args{"value": cty.NumberIntVal(1)}).
					Add("pass", "p", nil).
					Connect("one", "out", "p", "in")
			}},
		},
		{
			name: "unknown kind",
			program: &Program{Name: "bad_kind", Build: func(b *Builder) {
				b.Add("nope", "x", nil)
			}},
			errPart: "unknown unit kind",
		},
		{
			name: "dangling edge",
			program: &Program{Name: "dangling", Build: func(b *Builder) {
				b.Add("pass", "p", nil).Connect("ghost", "out", "p", "in")
			}},
			errPart: "program 'dangling'",
		},
		{
			name: "undeclared capability",
			program: &Program{Name: "loud", Build: func(b *Builder) {
				b.Add("const", "one", Args{"value": cty.NumberIntVal(1)}).
					Add("shout", "s", nil).
					Connect("one", "out", "s", "in")
			}},
			errPart: "needs capability 'stdout.write'",
		},
		{
			name: "declared capability",
			program: &Program{Name: "allowed", Capabilities: []execctx.Capability{execctx.StdoutWrite}, Build: func(b *Builder) {
				b.Add("const", "one", Args{"value": cty.NumberIntVal(1)}).
					Add("shout", "s", nil).
					Connect("one", "out", "s", "in")
			}},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r := testRegistry()
			r.RegisterProgram(tc.program)
			err := r.Validate(testCtx())
			if tc.errPart == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.errPart)
		})
	}
}

func TestProgram_Bindings(t *testing.T) {
	p := &Program{Name: "p", Variables: map[string]cty.Value{"x": cty.NumberIntVal(1), "y": cty.True}}

	got, err := p.Bindings(map[string]cty.Value{"x": cty.NumberIntVal(2)})
	require.NoError(t, err)
	assert.True(t, got["x"].Equals(cty.NumberIntVal(2)).True())
	assert.True(t, got["y"].True())
	assert.True(t, p.Variables["x"].Equals(cty.NumberIntVal(1)).True(), "defaults must not change")

	_, err = p.Bindings(map[string]cty.Value{"z": cty.True})
	require.Error(t, err)
}

func TestArgs(t *testing.T) {
	args := Args{
		"name":  cty.StringVal("n"),
		"count": cty.StringVal("3"),
		"ratio": cty.NumberFloatVal(0.5),
		"tags":  cty.ListVal([]cty.Value{cty.StringVal("a"), cty.StringVal("b")}),
		"nil":   cty.NullVal(cty.String),
	}

	s, err := args.String("name", "")
	require.NoError(t, err)
	assert.Equal(t, "n", s)

	n, err := args.Int("count", 0)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	f, err := args.Float("ratio", 1)
	require.NoError(t, err)
	assert.Equal(t, 0.5, f)

	def, err := args.String("nil", "fallback")
	require.NoError(t, err)
	assert.Equal(t, "fallback", def)

	var tags []string
	require.NoError(t, args.Decode("tags", &tags))
	assert.Equal(t, []string{"a", "b"}, tags)

	_, err = args.Int("name", 0)
	require.Error(t, err)

	v, err := args.As("count", cty.Number, cty.NilVal)
	require.NoError(t, err)
	assert.True(t, v.Equals(cty.NumberIntVal(3)).True())

	assert.Equal(t, []string{"count", "name", "nil", "ratio", "tags"}, args.Names())
}
