package memory

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newManager(t *testing.T, classes ...PoolConfig) *Manager {
	t.Helper()
	if len(classes) == 0 {
		classes = DefaultConfig().Classes
	}
	m, err := NewManager(Config{Classes: classes})
	require.NoError(t, err)
	return m
}

func TestPool(t *testing.T) {
	t.Run("exhaustion and reuse", func(t *testing.T) {
		p := NewPool(1, PoolConfig{BlockSize: 8, Blocks: 2})

		h1, err := p.Allocate()
		require.NoError(t, err)
		h2, err := p.Allocate()
		require.NoError(t, err)
		assert.NotEqual(t, h1, h2)
		assert.Equal(t, uint32(0), h1.Index, "low indexes are handed out first")

		_, err = p.Allocate()
		require.ErrorIs(t, err, ErrPoolExhausted)

		require.NoError(t, p.Deallocate(h1))
		h3, err := p.Allocate()
		require.NoError(t, err)
		assert.Equal(t, h1.Index, h3.Index)
		assert.NotEqual(t, h1.Gen, h3.Gen)
		assert.Equal(t, 2, p.Live())
	})

	t.Run("stale and double frees are rejected", func(t *testing.T) {
		p := NewPool(1, PoolConfig{BlockSize: 8, Blocks: 1})
		h, err := p.Allocate()
		require.NoError(t, err)

		require.NoError(t, p.Deallocate(h))
		assert.ErrorIs(t, p.Deallocate(h), ErrInvalidHandle)

		_, err = p.Allocate()
		require.NoError(t, err)
		assert.ErrorIs(t, p.Deallocate(h), ErrInvalidHandle, "old generation must not free the reused block")
		assert.ErrorIs(t, p.Deallocate(Handle{}), ErrInvalidHandle)
		assert.ErrorIs(t, p.Deallocate(Handle{Class: 2}), ErrInvalidHandle)
	})

	t.Run("names", func(t *testing.T) {
		assert.Equal(t, "16KiB", NewPool(1, PoolConfig{BlockSize: 16 << 10, Blocks: 1}).Name())
		assert.Equal(t, "1MiB", NewPool(1, PoolConfig{BlockSize: 1 << 20, Blocks: 1}).Name())
		assert.Equal(t, "100B", NewPool(1, PoolConfig{BlockSize: 100, Blocks: 1}).Name())
	})
}

func TestNewManager(t *testing.T) {
	_, err := NewManager(Config{})
	assert.Error(t, err)

	_, err = NewManager(Config{Classes: []PoolConfig{{BlockSize: 8, Blocks: 1}, {BlockSize: 8, Blocks: 2}}})
	assert.Error(t, err)

	_, err = NewManager(Config{Classes: []PoolConfig{{BlockSize: 0, Blocks: 1}}})
	assert.Error(t, err)

	m := newManager(t, PoolConfig{BlockSize: 64, Blocks: 1}, PoolConfig{BlockSize: 8, Blocks: 1})
	require.Len(t, m.Pools(), 2)
	assert.Equal(t, 8, m.Pools()[0].BlockSize(), "classes are ordered by block size")
}

func TestManager_Allocate(t *testing.T) {
	m := newManager(t)

	small, err := m.Allocate("A", 10)
	require.NoError(t, err)
	assert.Equal(t, 1, small.Class)

	medium, err := m.Allocate("A", 2000)
	require.NoError(t, err)
	assert.Equal(t, 2, medium.Class)

	_, err = m.Allocate("A", 2<<20)
	assert.ErrorIs(t, err, ErrTooLarge)

	stats := m.Stats()
	assert.Equal(t, 2, stats.LiveHandles)
	assert.Equal(t, int64(2010), stats.LiveBytes)
}

func TestManager_OwnershipAndHandoff(t *testing.T) {
	m := newManager(t)
	h, err := m.Allocate("producer", 5)
	require.NoError(t, err)

	require.NoError(t, m.Store(h, []byte("hello")))
	got, err := m.Load(h)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)

	got[0] = 'j'
	again, err := m.Load(h)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), again, "loads return copies")

	assert.ErrorIs(t, m.Store(h, make([]byte, 4096)), ErrTooLarge)
	assert.ErrorIs(t, m.Release(h), ErrNoReference, "no references before handoff")

	require.NoError(t, m.Handoff(h, 2))
	assert.ErrorIs(t, m.Store(h, []byte("x")), ErrReadOnly)
	assert.ErrorIs(t, m.Handoff(h, 1), ErrReadOnly)

	refs, err := m.Refs(h)
	require.NoError(t, err)
	assert.Equal(t, 2, refs)
}

func TestManager_Collect(t *testing.T) {
	// --- Arrange ---
	m := newManager(t)
	shared, err := m.Allocate("A", 100)
	require.NoError(t, err)
	require.NoError(t, m.Handoff(shared, 2))

	owned, err := m.Allocate("B", 100)
	require.NoError(t, err)

	unread, err := m.Allocate("C", 100)
	require.NoError(t, err)
	require.NoError(t, m.Handoff(unread, 0))

	// --- Act & Assert ---
	assert.Equal(t, 1, m.Collect(), "only the container without consumers is collectable")

	require.NoError(t, m.Release(shared))
	assert.Equal(t, 0, m.Collect(), "one consumer has not read yet")
	_, err = m.Load(shared)
	require.NoError(t, err)

	require.NoError(t, m.Release(shared))
	assert.Equal(t, 1, m.Collect())
	_, err = m.Load(shared)
	assert.ErrorIs(t, err, ErrInvalidHandle)
	assert.ErrorIs(t, m.Release(shared), ErrInvalidHandle)

	assert.Equal(t, 0, m.Collect(), "containers never handed off stay with their owner")
	require.NoError(t, m.Free(owned))
	assert.ErrorIs(t, m.Free(owned), ErrInvalidHandle)

	stats := m.Stats()
	assert.Equal(t, int64(0), stats.LiveBytes)
	assert.Equal(t, 0, stats.LiveHandles)
	assert.Equal(t, uint64(300), stats.AllocatedBytes)
	assert.Equal(t, uint64(300), stats.FreedBytes)
	assert.Equal(t, uint64(4), stats.GCRuns)
	assert.Equal(t, uint64(2), stats.Collected)

	snap := m.Profiler().Snapshot()
	assert.Equal(t, uint64(4), snap.GCRuns)
	assert.Equal(t, uint64(2), snap.Collected)
}

func TestManager_ExhaustionRecoversAfterCollect(t *testing.T) {
	m := newManager(t, PoolConfig{BlockSize: 16, Blocks: 1})
	h, err := m.Allocate("A", 8)
	require.NoError(t, err)
	require.NoError(t, m.Handoff(h, 0))

	_, err = m.Allocate("B", 8)
	require.ErrorIs(t, err, ErrPoolExhausted)

	m.Collect()
	_, err = m.Allocate("B", 8)
	assert.NoError(t, err)
	assert.Equal(t, uint64(1), m.Profiler().Snapshot().Pools[0].Exhaustions)
}

func TestManager_Concurrent(t *testing.T) {
	m := newManager(t)
	const workers, rounds = 8, 50

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			owner := fmt.Sprintf("unit%d", w)
			for i := 0; i < rounds; i++ {
				h, err := m.Allocate(owner, 64)
				if !assert.NoError(t, err) {
					return
				}
				assert.NoError(t, m.Store(h, []byte(owner)))
				assert.NoError(t, m.Handoff(h, 1))
				data, err := m.Load(h)
				assert.NoError(t, err)
				assert.Equal(t, owner, string(data))
				assert.NoError(t, m.Release(h))
			}
		}(w)
	}
	wg.Wait()

	assert.Equal(t, workers*rounds, m.Collect())
	assert.Equal(t, int64(0), m.Stats().LiveBytes)

	snap := m.Profiler().Snapshot()
	assert.Equal(t, int64(0), snap.LiveBytes)
	assert.Equal(t, uint64(rounds), snap.Owners["unit0"])
	assert.Equal(t, uint64(workers*rounds), snap.Pools[0].Allocations)
	assert.Equal(t, snap.Pools[0].Allocations, snap.Pools[0].Deallocations)
	assert.Equal(t, workers*rounds, snap.Pools[0].HighWater, "released containers stay live until Collect")
}

func TestProfiler(t *testing.T) {
	m := newManager(t)
	p := m.Profiler()
	clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	p.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	h1, err := m.Allocate("A", 100)
	require.NoError(t, err)
	p.Sample()
	h2, err := m.Allocate("B", 300)
	require.NoError(t, err)
	p.Sample()
	require.NoError(t, m.Free(h1))
	require.NoError(t, m.Free(h2))
	p.Sample()

	snap := p.Snapshot()
	assert.Equal(t, 3, snap.Samples)
	assert.Equal(t, int64(400), snap.PeakLiveBytes)
	assert.Equal(t, int64(166), snap.AverageLiveBytes)
	assert.Equal(t, int64(0), snap.LiveBytes)
	assert.Equal(t, 2, snap.Pools[0].HighWater)
	assert.Equal(t, map[string]uint64{"A": 1, "B": 1}, snap.Owners)

	samples := p.Samples()
	require.Len(t, samples, 3)
	assert.True(t, samples[0].At.Before(samples[2].At))

	snap.Owners["A"] = 99
	assert.Equal(t, uint64(1), p.Snapshot().Owners["A"], "snapshots are copies")
}

func TestProfiler_SampleBound(t *testing.T) {
	m := newManager(t)
	p := m.Profiler()
	p.maxSamples = 3
	for i := 0; i < 5; i++ {
		p.Sample()
	}
	assert.Len(t, p.Samples(), 3)
}

func TestCollector(t *testing.T) {
	m := newManager(t)
	_, err := m.Allocate("A", 10)
	require.NoError(t, err)

	c := NewCollector(m.Profiler())
	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(c))

	assert.Equal(t, 5*len(m.Pools())+4, promtest.CollectAndCount(c))
	assert.Equal(t, 1, promtest.CollectAndCount(c, "blockgrid_memory_live_bytes"))
}
