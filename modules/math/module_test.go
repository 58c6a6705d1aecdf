package math

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/blockgrid/internal/cache"
	"github.com/vk/blockgrid/internal/ctxlog"
	"github.com/vk/blockgrid/internal/edge"
	"github.com/vk/blockgrid/internal/execctx"
	"github.com/vk/blockgrid/internal/port"
	"github.com/vk/blockgrid/internal/registry"
	"github.com/vk/blockgrid/internal/unit"
	"github.com/zclconf/go-cty/cty"
)

func newRegistry() *registry.Registry {
	r := registry.New()
	(&Module{}).Register(r)
	return r
}

func execute(t *testing.T, u unit.Unit, in unit.Inputs) (unit.Outputs, error) {
	t.Helper()
	return u.Execute(ctxlog.Discard(context.Background()), execctx.New(), in)
}

func numbers(vals map[string]int64) unit.Inputs {
	in := unit.NewInputs()
	for name, v := range vals {
		in.Values[name] = []port.Value{port.ScalarValue(cty.NumberIntVal(v))}
	}
	return in
}

func TestBinary(t *testing.T) {
	r := newRegistry()
	testCases := []struct {
		kind string
		a, b int64
		want cty.Value
	}{
		{"add", 2, 3, cty.NumberIntVal(5)},
		{"multiply", 4, 3, cty.NumberIntVal(12)},
		{"divide", 9, 2, cty.NumberFloatVal(4.5)},
	}
	for _, tc := range testCases {
		t.Run(tc.kind, func(t *testing.T) {
			u, err := r.NewUnit(tc.kind, "op", nil)
			require.NoError(t, err)
			out, err := execute(t, u, numbers(map[string]int64{"a": tc.a, "b": tc.b}))
			require.NoError(t, err)
			require.Len(t, out["out"], 1)
			assert.True(t, out["out"][0].Data.Equals(tc.want).True(), "got %#v", out["out"][0].Data)
		})
	}
}

func TestDivide_ByZero(t *testing.T) {
	u, err := newRegistry().NewUnit("divide", "ratio", nil)
	require.NoError(t, err)
	_, err = execute(t, u, numbers(map[string]int64{"a": 1, "b": 0}))
	require.ErrorIs(t, err, ErrDivisionByZero)
}

func TestBinary_MissingInput(t *testing.T) {
	u, err := newRegistry().NewUnit("add", "sum", nil)
	require.NoError(t, err)
	_, err = execute(t, u, numbers(map[string]int64{"a": 1}))
	require.Error(t, err)
}

func TestConst(t *testing.T) {
	r := newRegistry()
	_, err := r.NewUnit("const", "c", nil)
	require.Error(t, err)

	u, err := r.NewUnit("const", "c", registry.Args{"value": cty.StringVal("x")})
	require.NoError(t, err)
	_, outs := u.Ports()
	require.Len(t, outs, 1)
	assert.Equal(t, cty.String, outs[0].Type)

	other, err := r.NewUnit("const", "c", registry.Args{"value": cty.StringVal("y")})
	require.NoError(t, err)
	assert.NotEqual(t, cache.Identity(u), cache.Identity(other))
}

func TestRange(t *testing.T) {
	r := newRegistry()
	u, err := r.NewUnit("range", "r", registry.Args{
		"from": cty.NumberIntVal(2), "to": cty.NumberIntVal(9), "step": cty.NumberIntVal(3),
	})
	require.NoError(t, err)
	out, err := execute(t, u, unit.NewInputs())
	require.NoError(t, err)

	var got []int64
	for _, v := range out["out"] {
		assert.Equal(t, port.KindStream, v.Kind)
		n, _ := v.Data.AsBigFloat().Int64()
		got = append(got, n)
	}
	assert.Equal(t, []int64{2, 5, 8}, got)

	_, err = r.NewUnit("range", "bad", registry.Args{"step": cty.Zero})
	require.Error(t, err)
}

func TestNewtonStep(t *testing.T) {
	u, err := newRegistry().NewUnit("newton_step", "step", nil)
	require.NoError(t, err)

	out, err := execute(t, u, numbers(map[string]int64{"x": 1, "target": 2}))
	require.NoError(t, err)
	assert.True(t, out["x"][0].Data.Equals(cty.NumberFloatVal(1.5)).True())

	_, err = execute(t, u, numbers(map[string]int64{"x": 0, "target": 2}))
	require.ErrorIs(t, err, ErrDivisionByZero)
}

func TestAdapters(t *testing.T) {
	adapters := newRegistry().Adapters()
	apply := func(spec edge.AdapterSpec, v cty.Value) []port.Value {
		t.Helper()
		a, err := adapters.Build(spec)
		require.NoError(t, err)
		out, err := a.Apply(port.StreamValue(v))
		require.NoError(t, err)
		return out
	}

	assert.True(t, apply(edge.Map("double"), cty.NumberIntVal(4))[0].Data.Equals(cty.NumberIntVal(8)).True())
	assert.True(t, apply(edge.Map("square"), cty.NumberIntVal(3))[0].Data.Equals(cty.NumberIntVal(9)).True())
	assert.True(t, apply(edge.Map("negate"), cty.NumberIntVal(3))[0].Data.Equals(cty.NumberIntVal(-3)).True())
	assert.Len(t, apply(edge.Filter("even"), cty.NumberIntVal(3)), 0)
	assert.Len(t, apply(edge.Filter("even"), cty.NumberIntVal(4)), 1)
	assert.Len(t, apply(edge.Filter("positive"), cty.NumberIntVal(-1)), 0)

	a, err := adapters.Build(edge.Map("double"))
	require.NoError(t, err)
	_, err = a.Apply(port.StreamValue(cty.StringVal("two")))
	require.Error(t, err)
}
