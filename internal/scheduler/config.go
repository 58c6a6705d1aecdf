package scheduler

import (
	"time"

	"github.com/vk/blockgrid/internal/planner"
)

// Config tunes a Scheduler. Zero values fall back to the defaults.
type Config struct {
	// Workers bounds how many units of one run execute at the same time.
	Workers int

	// DefaultTimeout applies to units whose node declares none. Zero means
	// no watchdog.
	DefaultTimeout time.Duration

	// Grace is how long a running unit may take to return after the run is
	// cancelled before it is treated as failed.
	Grace time.Duration

	// EventBuffer is the channel capacity of each event subscriber.
	EventBuffer int

	Planner planner.Config
}

const (
	DefaultWorkers     = 8
	DefaultGrace       = 2 * time.Second
	DefaultEventBuffer = 256
)

// DefaultConfig returns the scheduler defaults with the default planner
// configuration.
func DefaultConfig() Config {
	return Config{
		Workers:     DefaultWorkers,
		Grace:       DefaultGrace,
		EventBuffer: DefaultEventBuffer,
		Planner:     planner.DefaultConfig(),
	}
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.Grace <= 0 {
		c.Grace = DefaultGrace
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = DefaultEventBuffer
	}
	return c
}
