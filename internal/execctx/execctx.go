// Package execctx holds the per-run ExecutionContext: variable bindings, the
// capability set restricting effectful units, the adapter registry used by
// edge policies and the run's cancellation token.
package execctx

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sort"

	"github.com/vk/blockgrid/internal/edge"
	"github.com/zclconf/go-cty/cty"
)

// Capability names one class of side effect a unit may perform.
type Capability string

const (
	EnvRead     Capability = "env.read"
	NetHTTP     Capability = "net.http"
	NetSocketIO Capability = "net.socketio"
	StdoutWrite Capability = "stdout.write"
)

// ErrCapabilityDenied is returned when a unit needs a capability the run
// was not granted.
var ErrCapabilityDenied = errors.New("capability denied")

// ErrCancelled is the default cause recorded by Cancel.
var ErrCancelled = errors.New("run cancelled")

// Context is the state shared by every unit of one run. It is created at
// run start and must not be reused for another run.
type Context struct {
	RunID string

	bindings map[string]cty.Value
	caps     map[Capability]struct{}
	adapters *edge.Registry

	ctx    context.Context
	cancel context.CancelCauseFunc
}

// Option configures a Context.
type Option func(*Context)

// WithRunID sets the run identifier. The scheduler assigns one when empty.
func WithRunID(id string) Option {
	return func(c *Context) { c.RunID = id }
}

// WithBinding binds a variable visible to every unit.
func WithBinding(name string, v cty.Value) Option {
	return func(c *Context) { c.bindings[name] = v }
}

// WithBindings binds several variables at once.
func WithBindings(vars map[string]cty.Value) Option {
	return func(c *Context) { maps.Copy(c.bindings, vars) }
}

// WithCapabilities grants capabilities to the run.
func WithCapabilities(caps ...Capability) Option {
	return func(c *Context) {
		for _, cp := range caps {
			c.caps[cp] = struct{}{}
		}
	}
}

// WithAdapters sets the registry that map and filter edge adapters
// resolve their functions from.
func WithAdapters(r *edge.Registry) Option {
	return func(c *Context) { c.adapters = r }
}

// New creates a Context. Without WithAdapters the registry is empty.
func New(opts ...Option) *Context {
	ctx, cancel := context.WithCancelCause(context.Background())
	c := &Context{
		bindings: make(map[string]cty.Value),
		caps:     make(map[Capability]struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.adapters == nil {
		c.adapters = edge.NewRegistry()
	}
	return c
}

// Child returns a Context for a nested run. It shares bindings,
// capabilities and adapters and is cancelled together with c.
func (c *Context) Child(runID string) *Context {
	ctx, cancel := context.WithCancelCause(c.ctx)
	return &Context{
		RunID:    runID,
		bindings: c.bindings,
		caps:     c.caps,
		adapters: c.adapters,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Binding returns a bound variable.
func (c *Context) Binding(name string) (cty.Value, bool) {
	v, ok := c.bindings[name]
	return v, ok
}

// Bindings returns a copy of all bound variables.
func (c *Context) Bindings() map[string]cty.Value {
	return maps.Clone(c.bindings)
}

// Allows reports whether the capability was granted.
func (c *Context) Allows(cp Capability) bool {
	_, ok := c.caps[cp]
	return ok
}

// Require returns ErrCapabilityDenied unless every capability was granted.
func (c *Context) Require(caps ...Capability) error {
	for _, cp := range caps {
		if !c.Allows(cp) {
			return fmt.Errorf("%w: %s", ErrCapabilityDenied, cp)
		}
	}
	return nil
}

// Capabilities returns the granted capabilities, sorted.
func (c *Context) Capabilities() []Capability {
	caps := slices.Collect(maps.Keys(c.caps))
	sort.Slice(caps, func(i, j int) bool { return caps[i] < caps[j] })
	return caps
}

// Adapters returns the adapter registry of the run.
func (c *Context) Adapters() *edge.Registry { return c.adapters }

// Cancel trips the run's cancellation token. A nil cause records
// ErrCancelled. Only the first call has an effect.
func (c *Context) Cancel(cause error) {
	if cause == nil {
		cause = ErrCancelled
	}
	c.cancel(cause)
}

// Done is closed once the run is cancelled.
func (c *Context) Done() <-chan struct{} { return c.ctx.Done() }

// Err returns the cancellation cause, or nil while the run is live.
func (c *Context) Err() error {
	if c.ctx.Err() == nil {
		return nil
	}
	return context.Cause(c.ctx)
}

// Link derives a context from parent that is also cancelled, with the
// same cause, when the token trips. Call stop to release resources.
func (c *Context) Link(parent context.Context) (ctx context.Context, stop func()) {
	ctx, cancel := context.WithCancelCause(parent)
	unregister := context.AfterFunc(c.ctx, func() { cancel(context.Cause(c.ctx)) })
	return ctx, func() {
		unregister()
		cancel(context.Canceled)
	}
}
