package scheduler

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/vk/blockgrid/internal/cache"
	"github.com/vk/blockgrid/internal/ctxlog"
	"github.com/vk/blockgrid/internal/execctx"
	"github.com/vk/blockgrid/internal/graph"
	"github.com/vk/blockgrid/internal/memory"
	"github.com/vk/blockgrid/internal/planner"
	"github.com/vk/blockgrid/internal/port"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Scheduler executes graphs. It holds no per-run state: every Run owns its
// plan, worker pool and unit store, so one Scheduler serves concurrent runs.
type Scheduler struct {
	cfg     Config
	planner *planner.Planner
	memory  *memory.Manager
	cache   cache.Cache
	feed    *Feed

	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	tracer         trace.Tracer
	metrics        *instruments
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithMemory shares m between this scheduler's runs. By default each
// scheduler creates a manager with memory.DefaultConfig.
func WithMemory(m *memory.Manager) Option {
	return func(s *Scheduler) { s.memory = m }
}

// WithCache consults c before executing pure units.
func WithCache(c cache.Cache) Option {
	return func(s *Scheduler) { s.cache = c }
}

// WithFeed also publishes every run's events to f.
func WithFeed(f *Feed) Option {
	return func(s *Scheduler) { s.feed = f }
}

// WithTracerProvider overrides the global OpenTelemetry tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Scheduler) { s.tracerProvider = tp }
}

// WithMeterProvider overrides the global OpenTelemetry meter provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *Scheduler) { s.meterProvider = mp }
}

// New creates a Scheduler.
func New(cfg Config, opts ...Option) (*Scheduler, error) {
	cfg = cfg.withDefaults()
	s := &Scheduler{
		cfg:            cfg,
		planner:        planner.New(cfg.Planner),
		cache:          cache.Nop{},
		tracerProvider: otel.GetTracerProvider(),
		meterProvider:  otel.GetMeterProvider(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.memory == nil {
		m, err := memory.NewManager(memory.DefaultConfig())
		if err != nil {
			return nil, fmt.Errorf("creating memory manager: %w", err)
		}
		s.memory = m
	}
	s.tracer = s.tracerProvider.Tracer(instrumentationName)
	metrics, err := newInstruments(s.meterProvider.Meter(instrumentationName))
	if err != nil {
		return nil, fmt.Errorf("creating scheduler metrics: %w", err)
	}
	s.metrics = metrics
	return s, nil
}

// Config returns the effective configuration.
func (s *Scheduler) Config() Config { return s.cfg }

// Memory returns the memory manager shared by the scheduler's runs.
func (s *Scheduler) Memory() *memory.Manager { return s.memory }

// Run validates and plans g, then starts executing it in the background.
// Validation and planning errors are returned here, before any unit
// starts. ec supplies bindings and capabilities and acts as the parent
// cancellation token: the run gets its own child token, so cancelling ec
// cancels the run but cancelling the run leaves ec alone. ec may be nil.
//
// Cancelling ctx cancels the run. The logger is taken from ctx; without
// one the run logs nowhere.
func (s *Scheduler) Run(ctx context.Context, g *graph.Graph, ec *execctx.Context) (*RunHandle, error) {
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("graph validation failed: %w", err)
	}
	return s.start(ctx, g, ec, runOptions{})
}

// runOptions carry what a nested run needs from its parent.
type runOptions struct {
	// inject feeds values to body endpoints the parent exposes.
	inject map[graph.Endpoint][]port.Value
	// collect names the units whose outputs form the result; sinks when
	// empty.
	collect map[string]bool
	parent  *run
	owner   string
}

// childContext derives the run's token from the caller's. Tests replace it
// to observe the token.
var childContext = (*execctx.Context).Child

func (s *Scheduler) start(ctx context.Context, g *graph.Graph, ec *execctx.Context, opts runOptions) (*RunHandle, error) {
	if ec == nil {
		ec = execctx.New()
	}
	runID := ec.RunID
	switch {
	case opts.parent != nil:
		runID = opts.parent.id + "/" + opts.owner
	case runID == "":
		runID = uuid.NewString()
	}
	ec = childContext(ec, runID)

	if _, ok := ctxlog.Lookup(ctx); !ok {
		ctx = ctxlog.Discard(ctx)
	}
	key, value := "runID", runID
	if opts.parent != nil {
		key, value = "block", opts.owner
	}
	ctx, logger := ctxlog.With(ctx, key, value)

	h := newHandle(ec, s.cfg.EventBuffer)
	r := newRun(s, ec, h, logger, opts)
	r.setState(StatePlanning, -1, "")

	plan, err := s.planner.Plan(ctx, g)
	if err != nil {
		r.setState(StateFailed, -1, err.Error())
		logger.Error("Planning failed.", "error", err)
		ec.Cancel(err)
		return nil, err
	}
	if err := r.prepare(ctx, plan); err != nil {
		r.setState(StateFailed, -1, err.Error())
		logger.Error("Run preparation failed.", "error", err)
		ec.Cancel(err)
		return nil, err
	}
	h.started(plan, func() *Result { return r.result(false) })

	go r.loop()
	return h, nil
}
