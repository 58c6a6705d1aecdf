package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/vk/blockgrid/internal/cache"
	"github.com/vk/blockgrid/internal/memory"
	"github.com/vk/blockgrid/internal/planner"
	"github.com/vk/blockgrid/internal/scheduler"
	"github.com/zclconf/go-cty/cty"
)

// Model is the unified representation of the engine configuration.
type Model struct {
	// Program names the registered program to run when none is given on
	// the command line.
	Program string

	Engine  Engine
	Planner Planner
	Memory  memory.Config
	Cache   cache.Config
	Server  Server

	// Variables are bound on the execution context of every run and
	// override the program's defaults.
	Variables map[string]cty.Value
}

// Engine tunes the scheduler.
type Engine struct {
	Workers        int           `validate:"gte=0"`
	DefaultTimeout time.Duration `validate:"gte=0"`
	Grace          time.Duration `validate:"gte=0"`
	EventBuffer    int           `validate:"gte=0"`
}

// Planner tunes plan construction. Optimization is one of the level names
// accepted by planner.ParseOptimizationLevel. A zero limit is unlimited.
type Planner struct {
	Optimization  string  `validate:"omitempty,oneof=none basic balanced aggressive"`
	CPU           float64 `validate:"gte=0"`
	MemoryBytes   int64   `validate:"gte=0"`
	IOOps         int64   `validate:"gte=0"`
	MaxUnits      int     `validate:"gte=0"`
	MaxSplitParts int     `validate:"gte=0"`
}

// Server configures the observability HTTP server. A zero port disables it.
type Server struct {
	HealthcheckPort int `validate:"gte=0,lte=65535"`
}

// Default returns a model holding the engine defaults.
func Default() *Model {
	pc := planner.DefaultConfig()
	return &Model{
		Engine: Engine{
			Workers:     scheduler.DefaultWorkers,
			Grace:       scheduler.DefaultGrace,
			EventBuffer: scheduler.DefaultEventBuffer,
		},
		Planner: Planner{
			Optimization:  pc.Level.String(),
			CPU:           pc.Limits.CPU,
			MemoryBytes:   pc.Limits.MemoryBytes,
			IOOps:         pc.Limits.IOOps,
			MaxUnits:      pc.Limits.MaxUnits,
			MaxSplitParts: pc.MaxSplitParts,
		},
		Memory:    memory.DefaultConfig(),
		Cache:     cache.DefaultConfig(),
		Variables: make(map[string]cty.Value),
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks every field constraint and reports all violations.
func (m *Model) Validate() error {
	err := validate.Struct(m)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validating configuration: %w", err)
	}
	msgs := make([]string, len(verrs))
	for i, fe := range verrs {
		msgs[i] = fmt.Sprintf("- %s: failed '%s' (value %v)", fe.Namespace(), fe.Tag(), fe.Value())
	}
	return fmt.Errorf("invalid configuration:\n%s", strings.Join(msgs, "\n"))
}

// SchedulerConfig derives the scheduler configuration.
func (m *Model) SchedulerConfig() (scheduler.Config, error) {
	level, err := planner.ParseOptimizationLevel(m.Planner.Optimization)
	if err != nil {
		return scheduler.Config{}, err
	}
	return scheduler.Config{
		Workers:        m.Engine.Workers,
		DefaultTimeout: m.Engine.DefaultTimeout,
		Grace:          m.Engine.Grace,
		EventBuffer:    m.Engine.EventBuffer,
		Planner: planner.Config{
			Level: level,
			Limits: planner.Limits{
				CPU:         m.Planner.CPU,
				MemoryBytes: m.Planner.MemoryBytes,
				IOOps:       m.Planner.IOOps,
				MaxUnits:    m.Planner.MaxUnits,
			},
			MaxSplitParts: m.Planner.MaxSplitParts,
		},
	}, nil
}
