package math

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/blockgrid/internal/port"
	"github.com/vk/blockgrid/internal/registry"
	"github.com/vk/blockgrid/internal/unit"
	"github.com/zclconf/go-cty/cty"
)

func list(n int) unit.Inputs {
	vals := make([]cty.Value, n)
	for i := range vals {
		vals[i] = cty.NumberIntVal(int64(i + 1))
	}
	in := unit.NewInputs()
	in.Values["in"] = []port.Value{port.ScalarValue(cty.ListVal(vals))}
	return in
}

func TestSum_SplitJoin(t *testing.T) {
	// --- Arrange ---
	u, err := newRegistry().NewUnit("sum", "total", registry.Args{"cpu": cty.NumberIntVal(12)})
	require.NoError(t, err)
	s := u.(*Sum)
	assert.Equal(t, 12.0, s.EstimateResources().CPU)
	require.True(t, s.SupportsSplit())

	// --- Act ---
	parts, err := s.Split(3)
	require.NoError(t, err)
	outs := make([]unit.Outputs, len(parts))
	for i, p := range parts {
		outs[i], err = p.Execute(context.Background(), nil, list(100))
		require.NoError(t, err)
	}
	joined, err := s.Join(outs)
	require.NoError(t, err)

	// --- Assert ---
	require.Len(t, parts, 3)
	assert.Equal(t, "total[0]", parts[0].ID())
	assert.InDelta(t, 4.0, parts[0].EstimateResources().CPU, 1e-9)
	assert.False(t, parts[0].(*Sum).SupportsSplit())
	assert.True(t, joined["out"][0].Data.Equals(cty.NumberIntVal(5050)).True())

	whole, err := s.Execute(context.Background(), nil, list(100))
	require.NoError(t, err)
	assert.True(t, whole["out"][0].Data.Equals(cty.NumberIntVal(5050)).True())
}

func TestSum_Errors(t *testing.T) {
	s := &Sum{id: "s", parts: 1}
	_, err := s.Split(0)
	require.Error(t, err)

	in := unit.NewInputs()
	in.Values["in"] = []port.Value{port.ScalarValue(cty.ListVal([]cty.Value{cty.NumberIntVal(1), cty.NullVal(cty.Number)}))}
	_, err = s.Execute(context.Background(), nil, in)
	require.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Execute(ctx, nil, list(3))
	require.ErrorIs(t, err, context.Canceled)

	_, err = s.Join([]unit.Outputs{{}})
	require.Error(t, err)
}
