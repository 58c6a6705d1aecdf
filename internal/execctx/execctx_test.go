package execctx

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

func TestCapabilities(t *testing.T) {
	ec := New(WithCapabilities(StdoutWrite, EnvRead))

	assert.True(t, ec.Allows(EnvRead))
	assert.False(t, ec.Allows(NetHTTP))
	assert.NoError(t, ec.Require(StdoutWrite, EnvRead))

	err := ec.Require(StdoutWrite, NetHTTP)
	require.ErrorIs(t, err, ErrCapabilityDenied)
	assert.ErrorContains(t, err, "net.http")

	assert.Equal(t, []Capability{EnvRead, StdoutWrite}, ec.Capabilities())
}

func TestBindings(t *testing.T) {
	ec := New(
		WithBinding("name", cty.StringVal("world")),
		WithBindings(map[string]cty.Value{"n": cty.NumberIntVal(3)}),
	)

	v, ok := ec.Binding("name")
	require.True(t, ok)
	assert.Equal(t, "world", v.AsString())

	all := ec.Bindings()
	assert.Len(t, all, 2)
	delete(all, "name")
	_, ok = ec.Binding("name")
	assert.True(t, ok, "Bindings returns a copy")

	assert.NotNil(t, ec.Adapters())
}

func TestCancel(t *testing.T) {
	t.Run("default cause", func(t *testing.T) {
		ec := New()
		assert.NoError(t, ec.Err())

		ec.Cancel(nil)
		<-ec.Done()
		assert.ErrorIs(t, ec.Err(), ErrCancelled)
	})

	t.Run("first cause wins", func(t *testing.T) {
		ec := New()
		first := errors.New("first")
		ec.Cancel(first)
		ec.Cancel(errors.New("second"))
		assert.ErrorIs(t, ec.Err(), first)
	})

	t.Run("child follows parent", func(t *testing.T) {
		ec := New(WithCapabilities(EnvRead))
		child := ec.Child("nested")
		assert.True(t, child.Allows(EnvRead))

		ec.Cancel(nil)
		select {
		case <-child.Done():
		case <-time.After(time.Second):
			t.Fatal("child was not cancelled")
		}
		assert.ErrorIs(t, child.Err(), ErrCancelled)
	})

	t.Run("linked context", func(t *testing.T) {
		ec := New()
		ctx, stop := ec.Link(context.Background())
		defer stop()

		ec.Cancel(nil)
		select {
		case <-ctx.Done():
		case <-time.After(time.Second):
			t.Fatal("linked context was not cancelled")
		}
		assert.ErrorIs(t, context.Cause(ctx), ErrCancelled)
	})
}
