// Package socketio provides the socketio_request block: connect to a
// Socket.IO namespace, optionally emit one event, and wait for a reply.
package socketio

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/vk/blockgrid/internal/ctxlog"
	"github.com/vk/blockgrid/internal/execctx"
	"github.com/vk/blockgrid/internal/port"
	"github.com/vk/blockgrid/internal/registry"
	"github.com/vk/blockgrid/internal/unit"
	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"
)

// DefaultTimeout bounds the connection and the wait for the reply.
const DefaultTimeout = 10 * time.Second

// ErrTimeout is returned when no reply arrives in time.
var ErrTimeout = errors.New("socket.io request timed out")

// Module implements the registry.Module interface for this package.
type Module struct{}

// request holds the arguments of a socketio_request block.
type request struct {
	URL                string
	Namespace          string
	OnEvent            string
	EmitEvent          string
	EmitData           any
	Timeout            time.Duration
	InsecureSkipVerify bool
}

func parseRequest(id string, args registry.Args) (*request, error) {
	req := &request{Namespace: "/", Timeout: DefaultTimeout}
	var timeout string
	for name, target := range map[string]any{
		"url":                  &req.URL,
		"namespace":            &req.Namespace,
		"on_event":             &req.OnEvent,
		"emit_event":           &req.EmitEvent,
		"timeout":              &timeout,
		"insecure_skip_verify": &req.InsecureSkipVerify,
	} {
		if err := args.Decode(name, target); err != nil {
			return nil, err
		}
	}
	if req.URL == "" || req.OnEvent == "" {
		return nil, fmt.Errorf("socketio_request '%s': arguments 'url' and 'on_event' are required", id)
	}
	if timeout != "" {
		d, err := time.ParseDuration(timeout)
		if err != nil {
			return nil, fmt.Errorf("socketio_request '%s': invalid timeout: %w", id, err)
		}
		req.Timeout = d
	}
	if v, ok := args.Value("emit_data"); ok {
		data, err := toJSON(v)
		if err != nil {
			return nil, fmt.Errorf("socketio_request '%s': emit_data: %w", id, err)
		}
		req.EmitData = data
	}
	return req, nil
}

// toJSON turns a cty value into the generic Go value the client emits.
func toJSON(v cty.Value) (any, error) {
	raw, err := ctyjson.SimpleJSONValue{Value: v}.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// fromJSON turns a decoded event payload into a cty value of its implied type.
func fromJSON(data any) (cty.Value, error) {
	if data == nil {
		return cty.NullVal(cty.DynamicPseudoType), nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return cty.NilVal, err
	}
	ty, err := ctyjson.ImpliedType(raw)
	if err != nil {
		return cty.NilVal, err
	}
	return ctyjson.Unmarshal(raw, ty)
}

type result struct {
	data any
	err  error
}

func (req *request) do(ctx context.Context) (cty.Value, error) {
	logger := ctxlog.FromContext(ctx).With("url", req.URL, "onEvent", req.OnEvent, "emitEvent", req.EmitEvent)
	logger.Debug("Socket.IO request started")
	defer logger.Debug("Socket.IO request finished")

	parsed, err := url.Parse(req.URL)
	if err != nil {
		return cty.NilVal, fmt.Errorf("failed to parse URL: %w", err)
	}

	opCtx, cancel := context.WithTimeout(ctx, req.Timeout)
	defer cancel()

	opts := socket.DefaultOptions()
	opts.SetPath(parsed.Path)
	opts.SetTransports(types.NewSet(transports.WebSocket))
	if req.InsecureSkipVerify {
		logger.Warn("Skipping TLS certificate verification")
		opts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}

	manager := socket.NewManager(fmt.Sprintf("%s://%s", parsed.Scheme, parsed.Host), opts)
	io := manager.Socket(req.Namespace, opts)
	defer io.Disconnect()

	var connected atomic.Bool
	done := make(chan result, 1)
	deliver := func(r result) {
		select {
		case done <- r:
		default:
		}
	}

	io.On(types.EventName("connect"), func(...any) {
		connected.Store(true)
		logger.Info("Connected", "namespace", req.Namespace, "sid", io.Id())
		if req.EmitEvent != "" {
			io.Emit(req.EmitEvent, req.EmitData)
		}
	})
	io.On(types.EventName("connect_error"), func(errs ...any) {
		err := errors.New("connect error")
		if len(errs) > 0 {
			if e, ok := errs[0].(error); ok {
				err = e
			}
		}
		deliver(result{err: fmt.Errorf("connecting to %s: %w", req.URL, err)})
	})
	io.On(types.EventName(req.OnEvent), func(data ...any) {
		var payload any
		if len(data) > 0 {
			payload = data[0]
		}
		deliver(result{data: payload})
	})

	io.Connect()

	select {
	case <-opCtx.Done():
		if ctx.Err() != nil {
			return cty.NilVal, context.Cause(ctx)
		}
		if connected.Load() {
			return cty.NilVal, fmt.Errorf("%w after connecting while waiting for event '%s'", ErrTimeout, req.OnEvent)
		}
		return cty.NilVal, fmt.Errorf("%w while waiting for the initial connection", ErrTimeout)
	case res := <-done:
		if res.err != nil {
			return cty.NilVal, res.err
		}
		return fromJSON(res.data)
	}
}

func newRequest(id string, args registry.Args) (unit.Unit, error) {
	req, err := parseRequest(id, args)
	if err != nil {
		return nil, err
	}
	return unit.NewFunc(id, func(ctx context.Context, _ *execctx.Context, _ unit.Inputs) (unit.Outputs, error) {
		v, err := req.do(ctx)
		if err != nil {
			return nil, err
		}
		return unit.Single("response", v), nil
	},
		unit.WithOutputs(port.Scalar("response", cty.DynamicPseudoType)),
		unit.WithEffects(execctx.NetSocketIO),
	), nil
}

// Register registers the block with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterUnit(&registry.UnitDefinition{
		Kind:        "socketio_request",
		Description: "Emits an event over Socket.IO and waits for a reply event.",
		New:         newRequest,
	})
}
