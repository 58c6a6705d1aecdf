package unit

import (
	"fmt"
	"time"
)

// ResourceRequirements is a unit's estimated cost for one execution.
type ResourceRequirements struct {
	CPU         float64
	MemoryBytes int64
	IOOps       int64
	Duration    time.Duration
}

// DefaultRequirements is the estimate used for units that do not know better.
func DefaultRequirements() ResourceRequirements {
	return ResourceRequirements{
		CPU:         1,
		MemoryBytes: 1 << 20,
		IOOps:       10,
		Duration:    100 * time.Millisecond,
	}
}

// Add aggregates two estimates as they would run side by side in one
// stage: cpu, memory and io add up, duration is the longest of the two.
func (r ResourceRequirements) Add(o ResourceRequirements) ResourceRequirements {
	return ResourceRequirements{
		CPU:         r.CPU + o.CPU,
		MemoryBytes: r.MemoryBytes + o.MemoryBytes,
		IOOps:       r.IOOps + o.IOOps,
		Duration:    max(r.Duration, o.Duration),
	}
}

// Weight collapses the estimate into one number relative to limits, used
// to order nodes by size. It is the largest share of any budgeted dimension.
func (r ResourceRequirements) Weight(limits ResourceRequirements) float64 {
	w := 0.0
	if limits.CPU > 0 {
		w = max(w, r.CPU/limits.CPU)
	}
	if limits.MemoryBytes > 0 {
		w = max(w, float64(r.MemoryBytes)/float64(limits.MemoryBytes))
	}
	if limits.IOOps > 0 {
		w = max(w, float64(r.IOOps)/float64(limits.IOOps))
	}
	return w
}

func (r ResourceRequirements) String() string {
	return fmt.Sprintf("cpu=%g mem=%dB io=%d time=%s", r.CPU, r.MemoryBytes, r.IOOps, r.Duration)
}
