// Package cache memoizes the outputs of pure units keyed by a fingerprint
// of the unit's identity and inputs.
//
// The engine only relies on Get and Set; backends decide eviction. A
// backend error is treated by callers as a miss.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vk/blockgrid/internal/unit"
)

// Cache stores unit outputs by Key.
type Cache interface {
	Get(ctx context.Context, key Key) (unit.Outputs, bool, error)
	Set(ctx context.Context, key Key, outputs unit.Outputs) error
	Close() error
}

// Backend names accepted by New.
const (
	BackendNone   = "none"
	BackendMemory = "memory"
	BackendBadger = "badger"
)

// Config selects and sizes a backend.
type Config struct {
	Backend string        `validate:"omitempty,oneof=none memory badger"`
	TTL     time.Duration `validate:"gte=0"`

	// MaxBytes bounds the memory backend.
	MaxBytes int64 `validate:"gte=0"`

	// Dir is the badger directory; empty keeps badger in memory.
	Dir string
}

// DefaultConfig disables caching.
func DefaultConfig() Config {
	return Config{Backend: BackendNone, TTL: time.Hour, MaxBytes: 64 << 20}
}

// ErrUnknownBackend is returned by New for an unsupported backend name.
var ErrUnknownBackend = errors.New("unknown cache backend")

// New opens the backend named by cfg.
func New(cfg Config, opts ...BadgerOption) (Cache, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", BackendNone:
		return Nop{}, nil
	case BackendMemory:
		return NewMemory(cfg.MaxBytes, cfg.TTL)
	case BackendBadger:
		return OpenBadger(cfg.Dir, cfg.TTL, opts...)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}

// Nop never hits.
type Nop struct{}

func (Nop) Get(context.Context, Key) (unit.Outputs, bool, error) { return nil, false, nil }
func (Nop) Set(context.Context, Key, unit.Outputs) error         { return nil }
func (Nop) Close() error                                         { return nil }
