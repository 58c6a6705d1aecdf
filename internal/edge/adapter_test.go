package edge

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/blockgrid/internal/port"
	"github.com/zclconf/go-cty/cty"
)

func testRegistry() *Registry {
	r := NewRegistry()
	r.RegisterMap("double", func(v cty.Value) (cty.Value, error) {
		return v.Multiply(cty.NumberIntVal(2)), nil
	})
	r.RegisterMap("positive_only", func(v cty.Value) (cty.Value, error) {
		if v.LessThan(cty.Zero).True() {
			return cty.NilVal, errors.New("negative input")
		}
		return v, nil
	})
	r.RegisterFilter("even", func(v cty.Value) (bool, error) {
		n, _ := v.AsBigFloat().Int64()
		return n%2 == 0, nil
	})
	return r
}

func adapted(t *testing.T, p Policy) *Channel {
	t.Helper()
	a, err := testRegistry().Build(p.Adapter)
	require.NoError(t, err)
	return NewChannel("e", p, a)
}

func lists(t *testing.T, vals []port.Value) [][]int64 {
	t.Helper()
	out := make([][]int64, len(vals))
	for i, v := range vals {
		for _, el := range v.Data.AsValueSlice() {
			n, _ := el.AsBigFloat().Int64()
			out[i] = append(out[i], n)
		}
	}
	return out
}

func TestAdapter_Map(t *testing.T) {
	ch := adapted(t, DefaultPolicy().WithAdapter(Map("double")))
	sendAll(t, ch, 1, 2, 3)

	got, err := ch.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 4, 6}, ints(t, got))
}

func TestAdapter_Filter(t *testing.T) {
	ch := adapted(t, DefaultPolicy().WithAdapter(Filter("even")))
	sendAll(t, ch, 1, 2, 3, 4, 5, 6)

	got, err := ch.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 4, 6}, ints(t, got), "filtered sequence numbers must not stall delivery")
}

func TestAdapter_ErrorModes(t *testing.T) {
	t.Run("lenient drops failing values", func(t *testing.T) {
		p := DefaultPolicy().WithAdapter(Map("positive_only"))
		p.Mode = Lenient
		ch := adapted(t, p)
		sendAll(t, ch, 1, -2, 3)

		got, err := ch.Drain(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []int64{1, 3}, ints(t, got))
		assert.Equal(t, uint64(1), ch.Stats().AdapterErrors)
	})

	t.Run("strict aborts the edge", func(t *testing.T) {
		ch := adapted(t, DefaultPolicy().WithAdapter(Map("positive_only")))
		ctx := context.Background()

		require.NoError(t, ch.Send(ctx, num(0, 1)))
		err := ch.Send(ctx, num(1, -2))

		var adapterErr *AdapterError
		require.ErrorAs(t, err, &adapterErr)
		assert.Equal(t, OpMap, adapterErr.Op)

		_, err = ch.Drain(ctx)
		assert.Error(t, err)
	})
}

func TestAdapter_Buffer(t *testing.T) {
	ch := adapted(t, DefaultPolicy().WithAdapter(Buffer(2)))
	sendAll(t, ch, 1, 2, 3)

	got, err := ch.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, [][]int64{{1, 2}, {3}}, lists(t, got), "close flushes the partial batch")
}

func TestAdapter_Window(t *testing.T) {
	t.Run("slides over a stream", func(t *testing.T) {
		ch := adapted(t, DefaultPolicy().WithAdapter(Window(3, 1)))
		sendAll(t, ch, 1, 2, 3, 4, 5)

		got, err := ch.Drain(context.Background())
		require.NoError(t, err)
		assert.Equal(t, [][]int64{{1, 2, 3}, {2, 3, 4}, {3, 4, 5}}, lists(t, got))
	})

	t.Run("tumbles when step equals size", func(t *testing.T) {
		ch := adapted(t, DefaultPolicy().WithAdapter(Window(2, 2)))
		sendAll(t, ch, 1, 2, 3, 4, 5)

		got, err := ch.Drain(context.Background())
		require.NoError(t, err)
		assert.Equal(t, [][]int64{{1, 2}, {3, 4}}, lists(t, got))
	})

	t.Run("refuses scalar values", func(t *testing.T) {
		ch := adapted(t, DefaultPolicy().WithAdapter(Window(2, 1)))
		err := ch.Send(context.Background(), port.ScalarValue(cty.NumberIntVal(1)))
		assert.ErrorIs(t, err, ErrUnsupportedAdapterForKind)
	})
}

func TestAdapterSpec_ResultType(t *testing.T) {
	assert.Equal(t, cty.Number, Map("double").ResultType(cty.Number))
	assert.Equal(t, cty.String, AdapterSpec{Op: OpMap, Func: "f", Type: cty.String}.ResultType(cty.Number))
	assert.Equal(t, cty.List(cty.Number), Window(2, 1).ResultType(cty.Number))
	assert.Equal(t, cty.List(cty.String), Buffer(4).ResultType(cty.String))
	assert.Equal(t, cty.Bool, Filter("even").ResultType(cty.Bool))
}

func TestRegistry(t *testing.T) {
	t.Run("unknown function", func(t *testing.T) {
		_, err := NewRegistry().Build(Map("missing"))
		assert.ErrorIs(t, err, ErrUnknownAdapter)
	})

	t.Run("nil registry supports stateless builtins", func(t *testing.T) {
		var r *Registry
		_, err := r.Build(Window(2, 1))
		assert.NoError(t, err)
		assert.ErrorIs(t, r.Resolve(Filter("even")), ErrUnknownAdapter)
	})

	t.Run("duplicate registration panics", func(t *testing.T) {
		r := NewRegistry()
		r.RegisterMap("f", func(v cty.Value) (cty.Value, error) { return v, nil })
		assert.Panics(t, func() {
			r.RegisterMap("f", func(v cty.Value) (cty.Value, error) { return v, nil })
		})
	})

	t.Run("names are sorted", func(t *testing.T) {
		maps, filters := testRegistry().Names()
		assert.Equal(t, []string{"double", "positive_only"}, maps)
		assert.Equal(t, []string{"even"}, filters)
	})
}

func TestPolicy_Validate(t *testing.T) {
	testCases := []struct {
		name    string
		policy  Policy
		kind    port.Kind
		wantErr error
	}{
		{name: "default", policy: DefaultPolicy(), kind: port.KindScalar},
		{name: "zero capacity", policy: Policy{Capacity: 0}, kind: port.KindStream, wantErr: ErrInvalidPolicy},
		{
			name:    "expand below capacity",
			policy:  Policy{Backpressure: Expand, Capacity: 8, MaxCapacity: 4},
			kind:    port.KindStream,
			wantErr: ErrInvalidPolicy,
		},
		{name: "map without function", policy: DefaultPolicy().WithAdapter(AdapterSpec{Op: OpMap}), kind: port.KindStream, wantErr: ErrInvalidPolicy},
		{name: "buffer without size", policy: DefaultPolicy().WithAdapter(Buffer(0)), kind: port.KindStream, wantErr: ErrInvalidPolicy},
		{name: "window on scalar", policy: DefaultPolicy().WithAdapter(Window(2, 1)), kind: port.KindScalar, wantErr: ErrUnsupportedAdapterForKind},
		{name: "window on composite", policy: DefaultPolicy().WithAdapter(Window(2, 1)), kind: port.KindComposite, wantErr: ErrUnsupportedAdapterForKind},
		{name: "window step too large", policy: DefaultPolicy().WithAdapter(Window(2, 3)), kind: port.KindEvent, wantErr: ErrInvalidPolicy},
		{name: "window on event", policy: DefaultPolicy().WithAdapter(Window(2, 1)), kind: port.KindEvent},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.policy.Validate(tc.kind)
			if tc.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tc.wantErr)
			var vErr *port.ValidationError
			assert.ErrorAs(t, err, &vErr)
		})
	}
}
