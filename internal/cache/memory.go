package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/vk/blockgrid/internal/unit"
)

// Memory is an in-process cache bounded by the encoded size of its entries.
type Memory struct {
	store *ristretto.Cache[uint64, []byte]
	ttl   time.Duration
}

// NewMemory returns a Memory cache holding at most maxBytes of encoded
// outputs. A zero ttl keeps entries until evicted.
func NewMemory(maxBytes int64, ttl time.Duration) (*Memory, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultConfig().MaxBytes
	}
	store, err := ristretto.NewCache(&ristretto.Config[uint64, []byte]{
		NumCounters: max(10*(maxBytes/1024), 1000),
		MaxCost:     maxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("creating memory cache: %w", err)
	}
	return &Memory{store: store, ttl: ttl}, nil
}

func (m *Memory) Get(_ context.Context, key Key) (unit.Outputs, bool, error) {
	data, ok := m.store.Get(uint64(key))
	if !ok {
		return nil, false, nil
	}
	out, err := unit.DecodeOutputs(data)
	if err != nil {
		return nil, false, err
	}
	return out, true, nil
}

// Set stores outputs and waits until the write is visible to Get.
func (m *Memory) Set(_ context.Context, key Key, outputs unit.Outputs) error {
	data, err := unit.EncodeOutputs(outputs)
	if err != nil {
		return err
	}
	m.store.SetWithTTL(uint64(key), data, int64(len(data)), m.ttl)
	m.store.Wait()
	return nil
}

func (m *Memory) Close() error {
	m.store.Close()
	return nil
}
