package planner

import (
	"fmt"
	"strings"

	"github.com/vk/blockgrid/internal/unit"
)

// OptimizationLevel selects how much effort goes into shaping stages.
type OptimizationLevel int

const (
	None OptimizationLevel = iota
	Basic
	Balanced
	Aggressive
)

func (l OptimizationLevel) String() string {
	switch l {
	case None:
		return "none"
	case Basic:
		return "basic"
	case Balanced:
		return "balanced"
	case Aggressive:
		return "aggressive"
	default:
		return fmt.Sprintf("OptimizationLevel(%d)", int(l))
	}
}

// ParseOptimizationLevel accepts the lower-case level names.
func ParseOptimizationLevel(s string) (OptimizationLevel, error) {
	switch strings.ToLower(s) {
	case "none":
		return None, nil
	case "basic":
		return Basic, nil
	case "", "balanced":
		return Balanced, nil
	case "aggressive":
		return Aggressive, nil
	default:
		return None, fmt.Errorf("unknown optimization level %q", s)
	}
}

// Limits is the per-stage resource budget. A zero field is unlimited.
type Limits struct {
	CPU         float64
	MemoryBytes int64
	IOOps       int64
	// MaxUnits caps the number of tasks in one stage.
	MaxUnits int
}

// DefaultLimits returns 4 cores, 1 GiB, 1000 io ops and 8 tasks per stage.
func DefaultLimits() Limits {
	return Limits{
		CPU:         4,
		MemoryBytes: 1 << 30,
		IOOps:       1000,
		MaxUnits:    8,
	}
}

// Fits reports whether n tasks costing r in total fit one stage.
func (l Limits) Fits(r unit.ResourceRequirements, n int) bool {
	if l.MaxUnits > 0 && n > l.MaxUnits {
		return false
	}
	if l.CPU > 0 && r.CPU > l.CPU+1e-9 {
		return false
	}
	if l.MemoryBytes > 0 && r.MemoryBytes > l.MemoryBytes {
		return false
	}
	if l.IOOps > 0 && r.IOOps > l.IOOps {
		return false
	}
	return true
}

// Requirements returns the limits as a resource vector.
func (l Limits) Requirements() unit.ResourceRequirements {
	return unit.ResourceRequirements{CPU: l.CPU, MemoryBytes: l.MemoryBytes, IOOps: l.IOOps}
}

// Config configures a Planner.
type Config struct {
	Level  OptimizationLevel
	Limits Limits
	// MaxSplitParts caps how many parts one node may be split into.
	MaxSplitParts int
}

// DefaultConfig plans at Balanced level within DefaultLimits.
func DefaultConfig() Config {
	return Config{
		Level:         Balanced,
		Limits:        DefaultLimits(),
		MaxSplitParts: 16,
	}
}
