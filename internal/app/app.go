package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/vk/blockgrid/internal/cache"
	"github.com/vk/blockgrid/internal/config"
	"github.com/vk/blockgrid/internal/ctxlog"
	"github.com/vk/blockgrid/internal/memory"
	"github.com/vk/blockgrid/internal/registry"
	"github.com/vk/blockgrid/internal/scheduler"
	"github.com/vk/blockgrid/internal/telemetry"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW      io.Writer
	logger    *slog.Logger
	registry  *registry.Registry
	config    *config.Model
	telemetry *telemetry.Providers
	memory    *memory.Manager
	cache     *cache.Metered
	feed      *scheduler.Feed
	scheduler *scheduler.Scheduler
	server    *http.Server
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance, including its own isolated logger and registry.
// Modules default to the core modules, with print writing to outW.
func NewApp(outW io.Writer, appConfig *Config, loader config.Loader, modules ...registry.Module) (*App, error) {
	logger, err := newLogger(appConfig.LogLevel, appConfig.LogFormat, outW)
	if err != nil {
		return nil, err
	}
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	model, err := loader.Load(ctx, appConfig.ConfigPaths...)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	appConfig.apply(model)
	if err := model.Validate(); err != nil {
		return nil, err
	}
	logger.Debug("Configuration loaded.", "paths", len(appConfig.ConfigPaths), "program", model.Program)

	reg := registry.New()
	if len(modules) == 0 {
		modules = coreModules(outW)
	}
	for _, mod := range modules {
		mod.Register(reg)
	}
	logger.Debug("All Go modules registered.", "count", len(modules))

	if err := reg.Validate(ctx); err != nil {
		return nil, err
	}
	logger.Debug("Registry validation passed.")

	a := &App{outW: outW, logger: logger, registry: reg, config: model}
	if err := a.wire(ctx); err != nil {
		return nil, errors.Join(err, a.Close(ctx))
	}
	return a, nil
}

// wire builds the engine services the configuration describes.
func (a *App) wire(ctx context.Context) error {
	providers, err := telemetry.New(ctx, telemetry.DefaultConfig())
	if err != nil {
		return fmt.Errorf("failed to set up telemetry: %w", err)
	}
	a.telemetry = providers

	a.memory, err = memory.NewManager(a.config.Memory)
	if err != nil {
		return fmt.Errorf("failed to create memory manager: %w", err)
	}

	backend, err := cache.New(a.config.Cache, cache.WithBadgerLogger(a.logger.With("component", "badger")))
	if err != nil {
		return fmt.Errorf("failed to open cache: %w", err)
	}
	a.cache = cache.NewMetered(backend)

	if err := providers.Registry.Register(memory.NewCollector(a.memory.Profiler())); err != nil {
		return err
	}
	if err := providers.Registry.Register(a.cache); err != nil {
		return err
	}

	schedCfg, err := a.config.SchedulerConfig()
	if err != nil {
		return err
	}
	a.feed = scheduler.NewFeed()
	opts := []scheduler.Option{
		scheduler.WithMemory(a.memory),
		scheduler.WithFeed(a.feed),
		scheduler.WithTracerProvider(providers.Tracer),
		scheduler.WithMeterProvider(providers.Meter),
	}
	if _, off := backend.(cache.Nop); !off {
		opts = append(opts, scheduler.WithCache(a.cache))
	}
	a.scheduler, err = scheduler.New(schedCfg, opts...)
	if err != nil {
		return err
	}
	a.logger.Debug("Engine wired.",
		"workers", schedCfg.Workers,
		"optimization", schedCfg.Planner.Level.String(),
		"cache", a.config.Cache.Backend,
		"pools", len(a.config.Memory.Classes),
	)
	return nil
}

// Close releases the cache, ends the event feed and flushes telemetry.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.feed != nil {
		a.feed.Close()
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing cache: %w", err))
		}
	}
	if a.telemetry != nil {
		if err := a.telemetry.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutting down telemetry: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Registry returns the application's registry. This is primarily for testing.
func (a *App) Registry() *registry.Registry {
	return a.registry
}

// Model returns the effective engine configuration.
func (a *App) Model() *config.Model {
	return a.config
}

// Cache returns the metered cache the scheduler consults.
func (a *App) Cache() *cache.Metered {
	return a.cache
}
