package programs

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/blockgrid/internal/ctxlog"
	"github.com/vk/blockgrid/internal/execctx"
	"github.com/vk/blockgrid/internal/port"
	"github.com/vk/blockgrid/internal/registry"
	"github.com/vk/blockgrid/internal/scheduler"
	"github.com/vk/blockgrid/internal/unit"
	"github.com/vk/blockgrid/modules/env_vars"
	"github.com/vk/blockgrid/modules/math"
	"github.com/vk/blockgrid/modules/print"
	"github.com/vk/blockgrid/modules/text"
	"github.com/zclconf/go-cty/cty"
)

func setup(t *testing.T) (*registry.Registry, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	r := registry.New()
	for _, m := range []registry.Module{&env_vars.Module{}, &print.Module{Out: &out}, &math.Module{}, &text.Module{}, &Module{}} {
		m.Register(r)
	}
	require.NoError(t, r.Validate(ctxlog.Discard(context.Background())))
	return r, &out
}

func run(t *testing.T, r *registry.Registry, name string) (*scheduler.Result, error) {
	t.Helper()
	p, err := r.Lookup(name)
	require.NoError(t, err)
	bindings, err := p.Bindings(nil)
	require.NoError(t, err)
	g, err := p.Graph(r)
	require.NoError(t, err)

	s, err := scheduler.New(scheduler.DefaultConfig())
	require.NoError(t, err)
	ctx := ctxlog.Discard(context.Background())
	ec := execctx.New(
		execctx.WithBindings(bindings),
		execctx.WithCapabilities(p.Capabilities...),
		execctx.WithAdapters(r.Adapters()),
	)
	h, err := s.Run(ctx, g, ec)
	require.NoError(t, err)
	return h.Await(ctx)
}

func number(t *testing.T, res *scheduler.Result, id, portName string) float64 {
	t.Helper()
	v, ok := res.Value(id, portName)
	require.True(t, ok, "no value on %s.%s", id, portName)
	f, _ := v.AsBigFloat().Float64()
	return f
}

func TestDiamond(t *testing.T) {
	r, out := setup(t)
	res, err := run(t, r, "diamond")
	require.NoError(t, err)
	assert.Equal(t, 12.0, number(t, res, "join", "out"))
	assert.Equal(t, "diamond: 12\n", out.String())
}

func TestSqrt(t *testing.T) {
	r, out := setup(t)
	res, err := run(t, r, "sqrt")
	require.NoError(t, err)
	assert.InDelta(t, 1.41421356, number(t, res, "newton", "x"), 1e-8)
	assert.Contains(t, out.String(), "sqrt: 1.41421356")
}

func TestFanIn(t *testing.T) {
	r, out := setup(t)
	res, err := run(t, r, "fan_in")
	require.NoError(t, err)
	assert.Equal(t, scheduler.StateCompleted, res.State)
	require.Len(t, res.PartialFailures, 1)
	assert.ErrorIs(t, res.PartialFailures[0], math.ErrDivisionByZero)
	assert.Equal(t, "fan_in: hello, alpha, beta\n", out.String())
}

func TestSplitSum(t *testing.T) {
	r, _ := setup(t)
	res, err := run(t, r, "split_sum")
	require.NoError(t, err)
	assert.Equal(t, 5050.0, number(t, res, "total", "out"))
	assert.Greater(t, len(res.Plan.NodeTasks["total"]), 1)
}

func TestConverged(t *testing.T) {
	done := Converged("x", 0.01)
	step := func(i int, v float64) bool {
		ok, err := done(i, unit.Outputs{"x": {port.ScalarValue(cty.NumberFloatVal(v))}})
		require.NoError(t, err)
		return ok
	}

	assert.False(t, step(1, 2))
	assert.False(t, step(2, 1.5))
	assert.True(t, step(3, 1.495))

	// A new run starts over at iteration 1.
	assert.False(t, step(1, 1.495))

	ok, err := done(2, unit.Outputs{})
	require.NoError(t, err)
	assert.False(t, ok)
}
