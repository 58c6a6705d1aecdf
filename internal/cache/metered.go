package cache

import (
	"context"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/vk/blockgrid/internal/unit"
)

// Stats counts cache traffic.
type Stats struct {
	Hits   uint64
	Misses uint64
	Stores uint64
	Errors uint64
}

// Metered wraps a Cache with traffic counters and exposes them as
// Prometheus metrics.
type Metered struct {
	Cache

	hits   atomic.Uint64
	misses atomic.Uint64
	stores atomic.Uint64
	errors atomic.Uint64

	desc *prometheus.Desc
}

var (
	_ Cache                = (*Metered)(nil)
	_ prometheus.Collector = (*Metered)(nil)
)

// NewMetered wraps c.
func NewMetered(c Cache) *Metered {
	return &Metered{
		Cache: c,
		desc: prometheus.NewDesc("blockgrid_cache_operations_total",
			"Cache lookups and stores by result.", []string{"result"}, nil),
	}
}

func (m *Metered) Get(ctx context.Context, key Key) (unit.Outputs, bool, error) {
	out, ok, err := m.Cache.Get(ctx, key)
	switch {
	case err != nil:
		m.errors.Add(1)
	case ok:
		m.hits.Add(1)
	default:
		m.misses.Add(1)
	}
	return out, ok, err
}

func (m *Metered) Set(ctx context.Context, key Key, outputs unit.Outputs) error {
	if err := m.Cache.Set(ctx, key, outputs); err != nil {
		m.errors.Add(1)
		return err
	}
	m.stores.Add(1)
	return nil
}

// Stats returns the counters.
func (m *Metered) Stats() Stats {
	return Stats{
		Hits:   m.hits.Load(),
		Misses: m.misses.Load(),
		Stores: m.stores.Load(),
		Errors: m.errors.Load(),
	}
}

func (m *Metered) Describe(ch chan<- *prometheus.Desc) { ch <- m.desc }

func (m *Metered) Collect(ch chan<- prometheus.Metric) {
	s := m.Stats()
	ch <- prometheus.MustNewConstMetric(m.desc, prometheus.CounterValue, float64(s.Hits), "hit")
	ch <- prometheus.MustNewConstMetric(m.desc, prometheus.CounterValue, float64(s.Misses), "miss")
	ch <- prometheus.MustNewConstMetric(m.desc, prometheus.CounterValue, float64(s.Stores), "store")
	ch <- prometheus.MustNewConstMetric(m.desc, prometheus.CounterValue, float64(s.Errors), "error")
}
