package memory

import (
	"context"
	"maps"
	"sync"
	"time"
)

const defaultMaxSamples = 1024

// PoolStats describes one pool.
type PoolStats struct {
	Name          string
	BlockSize     int
	Capacity      int
	Live          int
	HighWater     int
	Allocations   uint64
	Deallocations uint64
	Exhaustions   uint64
}

// Sample is the live-byte count at one point in time.
type Sample struct {
	At        time.Time
	LiveBytes int64
}

// Snapshot is a read-only copy of the profiler's state.
type Snapshot struct {
	Pools            []PoolStats
	Owners           map[string]uint64
	LiveBytes        int64
	PeakLiveBytes    int64
	GCRuns           uint64
	Collected        uint64
	Samples          int
	AverageLiveBytes int64
}

// Profiler records pool usage as the Manager reports it. It never feeds
// back into allocation.
type Profiler struct {
	mutex      sync.Mutex
	pools      []PoolStats
	owners     map[string]uint64
	liveBytes  int64
	peak       int64
	gcRuns     uint64
	collected  uint64
	samples    []Sample
	maxSamples int
	now        func() time.Time
}

func newProfiler(pools []*Pool) *Profiler {
	p := &Profiler{
		pools:      make([]PoolStats, len(pools)),
		owners:     make(map[string]uint64),
		maxSamples: defaultMaxSamples,
		now:        time.Now,
	}
	for i, pool := range pools {
		p.pools[i] = PoolStats{Name: pool.Name(), BlockSize: pool.BlockSize(), Capacity: pool.Capacity()}
	}
	return p
}

func (p *Profiler) allocated(class int, owner string, size int) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	s := &p.pools[class-1]
	s.Allocations++
	s.Live++
	s.HighWater = max(s.HighWater, s.Live)
	p.owners[owner]++
	p.liveBytes += int64(size)
	p.peak = max(p.peak, p.liveBytes)
}

func (p *Profiler) deallocated(class int, size int) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	s := &p.pools[class-1]
	s.Deallocations++
	s.Live--
	p.liveBytes -= int64(size)
}

func (p *Profiler) exhausted(class int) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.pools[class-1].Exhaustions++
}

func (p *Profiler) recordCollection(n int) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.gcRuns++
	p.collected += uint64(n)
}

// Sample records the current live-byte count.
func (p *Profiler) Sample() Sample {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	s := Sample{At: p.now(), LiveBytes: p.liveBytes}
	if len(p.samples) == p.maxSamples {
		copy(p.samples, p.samples[1:])
		p.samples = p.samples[:len(p.samples)-1]
	}
	p.samples = append(p.samples, s)
	return s
}

// Samples returns the recorded samples, oldest first.
func (p *Profiler) Samples() []Sample {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	out := make([]Sample, len(p.samples))
	copy(out, p.samples)
	return out
}

// Run samples every interval until ctx is done.
func (p *Profiler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Sample()
		}
	}
}

// Snapshot returns the current state.
func (p *Profiler) Snapshot() Snapshot {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	snap := Snapshot{
		Pools:         make([]PoolStats, len(p.pools)),
		Owners:        maps.Clone(p.owners),
		LiveBytes:     p.liveBytes,
		PeakLiveBytes: p.peak,
		GCRuns:        p.gcRuns,
		Collected:     p.collected,
		Samples:       len(p.samples),
	}
	copy(snap.Pools, p.pools)
	if len(p.samples) > 0 {
		var total int64
		for _, s := range p.samples {
			total += s.LiveBytes
		}
		snap.AverageLiveBytes = total / int64(len(p.samples))
	}
	return snap
}
