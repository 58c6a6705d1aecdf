package memory

import "github.com/prometheus/client_golang/prometheus"

// Collector exposes a Profiler as Prometheus metrics.
type Collector struct {
	profiler *Profiler

	poolLive      *prometheus.Desc
	poolHighWater *prometheus.Desc
	poolAllocs    *prometheus.Desc
	poolDeallocs  *prometheus.Desc
	poolExhausted *prometheus.Desc
	liveBytes     *prometheus.Desc
	peakBytes     *prometheus.Desc
	gcRuns        *prometheus.Desc
	gcCollected   *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector returns a collector reading p on every scrape.
func NewCollector(p *Profiler) *Collector {
	pool := []string{"pool"}
	return &Collector{
		profiler:      p,
		poolLive:      prometheus.NewDesc("blockgrid_memory_pool_live_blocks", "Blocks currently allocated in the pool.", pool, nil),
		poolHighWater: prometheus.NewDesc("blockgrid_memory_pool_high_water_blocks", "Most blocks ever allocated at once in the pool.", pool, nil),
		poolAllocs:    prometheus.NewDesc("blockgrid_memory_pool_allocations_total", "Blocks allocated from the pool.", pool, nil),
		poolDeallocs:  prometheus.NewDesc("blockgrid_memory_pool_deallocations_total", "Blocks returned to the pool.", pool, nil),
		poolExhausted: prometheus.NewDesc("blockgrid_memory_pool_exhaustions_total", "Allocations refused because the pool was full.", pool, nil),
		liveBytes:     prometheus.NewDesc("blockgrid_memory_live_bytes", "Bytes held by live containers.", nil, nil),
		peakBytes:     prometheus.NewDesc("blockgrid_memory_peak_live_bytes", "Highest live byte count observed.", nil, nil),
		gcRuns:        prometheus.NewDesc("blockgrid_memory_gc_runs_total", "Garbage collection sweeps.", nil, nil),
		gcCollected:   prometheus.NewDesc("blockgrid_memory_gc_collected_total", "Containers freed by garbage collection.", nil, nil),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.poolLive, c.poolHighWater, c.poolAllocs, c.poolDeallocs, c.poolExhausted,
		c.liveBytes, c.peakBytes, c.gcRuns, c.gcCollected,
	} {
		ch <- d
	}
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snap := c.profiler.Snapshot()
	for _, p := range snap.Pools {
		ch <- prometheus.MustNewConstMetric(c.poolLive, prometheus.GaugeValue, float64(p.Live), p.Name)
		ch <- prometheus.MustNewConstMetric(c.poolHighWater, prometheus.GaugeValue, float64(p.HighWater), p.Name)
		ch <- prometheus.MustNewConstMetric(c.poolAllocs, prometheus.CounterValue, float64(p.Allocations), p.Name)
		ch <- prometheus.MustNewConstMetric(c.poolDeallocs, prometheus.CounterValue, float64(p.Deallocations), p.Name)
		ch <- prometheus.MustNewConstMetric(c.poolExhausted, prometheus.CounterValue, float64(p.Exhaustions), p.Name)
	}
	ch <- prometheus.MustNewConstMetric(c.liveBytes, prometheus.GaugeValue, float64(snap.LiveBytes))
	ch <- prometheus.MustNewConstMetric(c.peakBytes, prometheus.GaugeValue, float64(snap.PeakLiveBytes))
	ch <- prometheus.MustNewConstMetric(c.gcRuns, prometheus.CounterValue, float64(snap.GCRuns))
	ch <- prometheus.MustNewConstMetric(c.gcCollected, prometheus.CounterValue, float64(snap.Collected))
}
