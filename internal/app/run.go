package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vk/blockgrid/internal/ctxlog"
	"github.com/vk/blockgrid/internal/execctx"
	"github.com/vk/blockgrid/internal/scheduler"
	"golang.org/x/sync/errgroup"
)

// ErrNoProgram is returned by Run when neither the command line nor the
// configuration names a program.
var ErrNoProgram = errors.New("no program selected")

// profileInterval is how often the memory profiler samples during a run.
const profileInterval = 50 * time.Millisecond

// Run executes the configured program, serving health, metrics and events
// on the healthcheck port while it runs.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	if a.config.Program == "" {
		return fmt.Errorf("%w: pass -program or set 'program' in the configuration", ErrNoProgram)
	}

	g, gctx := errgroup.WithContext(ctx)
	if port := a.config.Server.HealthcheckPort; port > 0 {
		srv, err := a.startServer(gctx, g, port)
		if err != nil {
			return err
		}
		defer a.stopServer(ctx, srv)
	}

	g.Go(func() error {
		_, err := a.Execute(gctx, a.config.Program)
		return err
	})
	err := g.Wait()
	a.logger.Debug("App.Run method finished.")
	return err
}

// Execute runs one registered program to completion and returns its result.
// Configuration variables override the program's defaults.
func (a *App) Execute(ctx context.Context, name string) (*scheduler.Result, error) {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	prog, err := a.registry.Lookup(name)
	if err != nil {
		return nil, err
	}
	bindings, err := prog.Bindings(a.config.Variables)
	if err != nil {
		return nil, err
	}
	g, err := prog.Graph(a.registry)
	if err != nil {
		return nil, fmt.Errorf("failed to build program '%s': %w", name, err)
	}

	ec := execctx.New(
		execctx.WithBindings(bindings),
		execctx.WithCapabilities(prog.Capabilities...),
		execctx.WithAdapters(a.registry.Adapters()),
	)

	profCtx, stopProfiler := context.WithCancel(ctx)
	defer stopProfiler()
	go a.memory.Profiler().Run(profCtx, profileInterval)

	a.logger.Info("🚀 Starting program", "program", name, "units", g.Len())
	h, err := a.scheduler.Run(ctx, g, ec)
	if err != nil {
		return nil, fmt.Errorf("program '%s' was rejected: %w", name, err)
	}
	a.logger.Debug("Run started.", "runID", h.ID(), "stages", len(h.Plan().Stages))

	// Cancelling ctx cancels the run; waiting past that yields its final state.
	res, err := h.Await(context.WithoutCancel(ctx))
	a.report(name, res)
	if err != nil {
		return res, fmt.Errorf("execution failed: %w", err)
	}
	return res, nil
}

func (a *App) report(name string, res *scheduler.Result) {
	if res == nil {
		return
	}
	for _, c := range res.PartialFailures {
		a.logger.Warn("Unit failed without aborting the run", "unitID", c.Unit, "stage", c.Stage, "error", c.Err)
	}
	stats := a.cache.Stats()
	a.logger.Info("🏁 Execution finished.",
		"program", name,
		"runID", res.RunID,
		"state", res.State.String(),
		"duration", res.Finished.Sub(res.Started).String(),
		"partialFailures", len(res.PartialFailures),
		"peakLiveBytes", res.Memory.PeakLiveBytes,
		"cacheHits", stats.Hits,
		"cacheMisses", stats.Misses,
	)
}
