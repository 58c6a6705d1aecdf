package app

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/blockgrid/internal/config"
	"github.com/vk/blockgrid/internal/registry"
	"github.com/vk/blockgrid/internal/scheduler"
	"github.com/zclconf/go-cty/cty"
)

func number(t *testing.T, v cty.Value) float64 {
	t.Helper()
	require.Equal(t, cty.Number, v.Type())
	f, _ := v.AsBigFloat().Float64()
	return f
}

func TestNewApp_InvalidLogLevel(t *testing.T) {
	t.Parallel()
	_, err := NewApp(&bytes.Buffer{}, &Config{LogLevel: "loud"}, StaticLoader(config.Default()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown log level")
}

func TestNewApp_InvalidOverride(t *testing.T) {
	t.Parallel()
	_, err := NewApp(&bytes.Buffer{}, &Config{Optimization: "fast"}, StaticLoader(config.Default()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Optimization")
}

func TestNewApp_OverridesModel(t *testing.T) {
	t.Parallel()
	a, _ := SetupAppTest(t, &Config{Program: "sqrt", Workers: 3, Optimization: "none", Cache: "memory"}, nil)

	m := a.Model()
	assert.Equal(t, "sqrt", m.Program)
	assert.Equal(t, 3, m.Engine.Workers)
	assert.Equal(t, "none", m.Planner.Optimization)
	assert.Equal(t, "memory", m.Cache.Backend)
}

func TestApp_Execute_Diamond(t *testing.T) {
	t.Parallel()
	a, logs := SetupAppTest(t, &Config{}, nil)

	res, err := a.Execute(context.Background(), "diamond")
	require.NoError(t, err)
	assert.Equal(t, scheduler.StateCompleted, res.State)

	v, ok := res.Value("join", "out")
	require.True(t, ok)
	assert.Equal(t, 12.0, number(t, v))
	assert.Contains(t, logs.String(), "🏁 Execution finished.")
	assert.Contains(t, logs.String(), "diamond")
}

func TestApp_Execute_VariableOverride(t *testing.T) {
	t.Parallel()
	model := config.Default()
	model.Variables = map[string]cty.Value{"x": cty.NumberIntVal(5)}
	a, _ := SetupAppTest(t, &Config{}, StaticLoader(model))

	res, err := a.Execute(context.Background(), "diamond")
	require.NoError(t, err)
	v, ok := res.Value("join", "out")
	require.True(t, ok)
	assert.Equal(t, 20.0, number(t, v))
}

func TestApp_Execute_UndeclaredVariable(t *testing.T) {
	t.Parallel()
	model := config.Default()
	model.Variables = map[string]cty.Value{"nope": cty.True}
	a, _ := SetupAppTest(t, &Config{}, StaticLoader(model))

	_, err := a.Execute(context.Background(), "diamond")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope")
}

func TestApp_Execute_PartialFailure(t *testing.T) {
	t.Parallel()
	a, logs := SetupAppTest(t, &Config{}, nil)

	res, err := a.Execute(context.Background(), "fan_in")
	require.NoError(t, err)
	assert.Equal(t, scheduler.StateCompleted, res.State)
	require.Len(t, res.PartialFailures, 1)
	assert.Equal(t, "ratio", res.PartialFailures[0].Unit)

	v, ok := res.Value("joined", "out")
	require.True(t, ok)
	assert.Equal(t, "hello, alpha, beta", v.AsString())
	assert.Contains(t, logs.String(), "Unit failed without aborting the run")
}

func TestApp_Execute_Sqrt(t *testing.T) {
	t.Parallel()
	a, _ := SetupAppTest(t, &Config{}, nil)

	res, err := a.Execute(context.Background(), "sqrt")
	require.NoError(t, err)
	v, ok := res.Value("newton", "x")
	require.True(t, ok)
	assert.InDelta(t, 1.41421356, number(t, v), 1e-8)
}

func TestApp_Execute_CachedSecondRun(t *testing.T) {
	t.Parallel()
	a, _ := SetupAppTest(t, &Config{Cache: "memory"}, nil)

	_, err := a.Execute(context.Background(), "diamond")
	require.NoError(t, err)
	first := a.Cache().Stats()
	assert.Zero(t, first.Hits)

	res, err := a.Execute(context.Background(), "diamond")
	require.NoError(t, err)
	v, ok := res.Value("join", "out")
	require.True(t, ok)
	assert.Equal(t, 12.0, number(t, v))
	assert.Greater(t, a.Cache().Stats().Hits, first.Hits)
}

func TestApp_Run_NoProgram(t *testing.T) {
	t.Parallel()
	a, _ := SetupAppTest(t, &Config{}, nil)
	err := a.Run(context.Background())
	require.ErrorIs(t, err, ErrNoProgram)
}

func TestApp_Run_UnknownProgram(t *testing.T) {
	t.Parallel()
	a, _ := SetupAppTest(t, &Config{Program: "missing"}, nil)
	err := a.Run(context.Background())
	require.ErrorIs(t, err, registry.ErrUnknownProgram)
}

func TestApp_Run_PrintsResult(t *testing.T) {
	t.Parallel()
	a, logs := SetupAppTest(t, &Config{Program: "split_sum"}, nil)
	require.NoError(t, a.Run(context.Background()))
	assert.Contains(t, logs.String(), "5050")
}

func TestApp_Run_Cancelled(t *testing.T) {
	t.Parallel()
	a, _ := SetupAppTest(t, &Config{Program: "diamond"}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := a.Run(ctx)
	require.Error(t, err)
}

func TestApp_List(t *testing.T) {
	t.Parallel()
	a, _ := SetupAppTest(t, &Config{}, nil)

	var out bytes.Buffer
	require.NoError(t, a.List(&out))
	s := out.String()
	assert.Contains(t, s, "UNITS")
	assert.Contains(t, s, "newton_step")
	assert.Contains(t, s, "PROGRAMS")
	assert.Contains(t, s, "diamond")
	assert.Contains(t, s, "variables: x")
}
