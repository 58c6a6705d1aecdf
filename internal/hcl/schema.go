package hcl

import "github.com/hashicorp/hcl/v2"

// fileRoot is used to decode every top-level block a file may hold.
type fileRoot struct {
	Program   *string          `hcl:"program,optional"`
	Engine    *engineBlock     `hcl:"engine,block"`
	Planner   *plannerBlock    `hcl:"planner,block"`
	Memory    *memoryBlock     `hcl:"memory,block"`
	Cache     *cacheBlock      `hcl:"cache,block"`
	Server    *serverBlock     `hcl:"server,block"`
	Variables []*variableBlock `hcl:"variable,block"`
}

// Durations are written as Go duration strings, e.g. "30s".
type engineBlock struct {
	Workers        *int    `hcl:"workers,optional"`
	DefaultTimeout *string `hcl:"default_timeout,optional"`
	Grace          *string `hcl:"grace,optional"`
	EventBuffer    *int    `hcl:"event_buffer,optional"`
}

type plannerBlock struct {
	Optimization  *string  `hcl:"optimization,optional"`
	CPU           *float64 `hcl:"cpu,optional"`
	MemoryBytes   *int64   `hcl:"memory_bytes,optional"`
	IOOps         *int64   `hcl:"io_ops,optional"`
	MaxUnits      *int     `hcl:"max_units,optional"`
	MaxSplitParts *int     `hcl:"max_split_parts,optional"`
}

// A memory block with pools replaces the default size classes.
type memoryBlock struct {
	Pools []*poolBlock `hcl:"pool,block"`
}

type poolBlock struct {
	BlockSize int `hcl:"block_size"`
	Blocks    int `hcl:"blocks"`
}

type cacheBlock struct {
	Backend  *string `hcl:"backend,optional"`
	TTL      *string `hcl:"ttl,optional"`
	MaxBytes *int64  `hcl:"max_bytes,optional"`
	Dir      *string `hcl:"dir,optional"`
}

type serverBlock struct {
	HealthcheckPort *int `hcl:"healthcheck_port,optional"`
}

// variableBlock declares one execution context binding.
type variableBlock struct {
	Name        string         `hcl:"name,label"`
	Type        hcl.Expression `hcl:"type,optional"`
	Default     hcl.Expression `hcl:"default,optional"`
	Description string         `hcl:"description,optional"`
}
