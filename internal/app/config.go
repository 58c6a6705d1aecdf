package app

import (
	"github.com/vk/blockgrid/internal/config"
)

// Config holds the command-line settings of an App. Zero values leave the
// loaded engine configuration unchanged.
type Config struct {
	// ConfigPaths are .hcl files or directories with engine configuration.
	ConfigPaths []string
	// Program is the registered program to run.
	Program string

	LogFormat       string
	LogLevel        string
	HealthcheckPort int
	Workers         int
	Optimization    string
	Cache           string
}

// apply overrides the model with every setting given on the command line.
func (c *Config) apply(m *config.Model) {
	if c.Program != "" {
		m.Program = c.Program
	}
	if c.HealthcheckPort > 0 {
		m.Server.HealthcheckPort = c.HealthcheckPort
	}
	if c.Workers > 0 {
		m.Engine.Workers = c.Workers
	}
	if c.Optimization != "" {
		m.Planner.Optimization = c.Optimization
	}
	if c.Cache != "" {
		m.Cache.Backend = c.Cache
	}
}
