package socketio

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/blockgrid/internal/ctxlog"
	"github.com/vk/blockgrid/internal/execctx"
	"github.com/vk/blockgrid/internal/registry"
	"github.com/vk/blockgrid/internal/unit"
	"github.com/zclconf/go-cty/cty"
)

func TestParseRequest(t *testing.T) {
	req, err := parseRequest("sio", registry.Args{
		"url":        cty.StringVal("ws://localhost:3000/socket.io/"),
		"on_event":   cty.StringVal("pong"),
		"emit_event": cty.StringVal("ping"),
		"emit_data":  cty.ObjectVal(map[string]cty.Value{"n": cty.NumberIntVal(1)}),
		"timeout":    cty.StringVal("250ms"),
	})
	require.NoError(t, err)
	assert.Equal(t, "/", req.Namespace)
	assert.Equal(t, 250*time.Millisecond, req.Timeout)
	assert.Equal(t, map[string]any{"n": float64(1)}, req.EmitData)
	assert.False(t, req.InsecureSkipVerify)
}

func TestParseRequest_Errors(t *testing.T) {
	testCases := map[string]registry.Args{
		"missing url":      {"on_event": cty.StringVal("pong")},
		"missing on_event": {"url": cty.StringVal("ws://localhost")},
		"bad timeout": {
			"url": cty.StringVal("ws://localhost"), "on_event": cty.StringVal("pong"), "timeout": cty.StringVal("soon"),
		},
		"wrong type": {
			"url": cty.StringVal("ws://localhost"), "on_event": cty.StringVal("pong"), "insecure_skip_verify": cty.StringVal("perhaps"),
		},
	}
	for name, args := range testCases {
		t.Run(name, func(t *testing.T) {
			_, err := parseRequest("sio", args)
			require.Error(t, err)
		})
	}
}

func TestFromJSON(t *testing.T) {
	v, err := fromJSON(map[string]any{"ok": true, "items": []any{"a", "b"}})
	require.NoError(t, err)
	assert.True(t, v.GetAttr("ok").True())
	assert.Equal(t, 2, v.GetAttr("items").LengthInt())

	null, err := fromJSON(nil)
	require.NoError(t, err)
	assert.True(t, null.IsNull())
}

func TestRequest_CancelledContext(t *testing.T) {
	r := registry.New()
	(&Module{}).Register(r)
	u, err := r.NewUnit("socketio_request", "sio", registry.Args{
		"url":      cty.StringVal("ws://127.0.0.1:1/socket.io/"),
		"on_event": cty.StringVal("pong"),
	})
	require.NoError(t, err)
	assert.False(t, unit.IsPure(u))

	ctx, cancel := context.WithCancel(ctxlog.Discard(context.Background()))
	cancel()
	_, err = u.Execute(ctx, execctx.New(), unit.NewInputs())
	require.ErrorIs(t, err, context.Canceled)
}
