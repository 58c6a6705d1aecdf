package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/vk/blockgrid/internal/unit"
)

// Badger is a persistent cache; entries survive restarts when opened on a
// directory.
type Badger struct {
	db  *badger.DB
	ttl time.Duration
}

// BadgerOption configures OpenBadger.
type BadgerOption func(*badger.Options)

// WithBadgerLogger routes badger's own logging to logger.
func WithBadgerLogger(logger *slog.Logger) BadgerOption {
	return func(o *badger.Options) {
		*o = o.WithLogger(&badgerLogger{logger: logger})
	}
}

// OpenBadger opens a badger cache in dir, or in memory when dir is empty.
func OpenBadger(dir string, ttl time.Duration, opts ...BadgerOption) (*Badger, error) {
	var o badger.Options
	if dir == "" {
		o = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create cache directory %s: %w", dir, err)
		}
		o = badger.DefaultOptions(dir)
	}
	o = o.WithLogger(nil)
	for _, opt := range opts {
		opt(&o)
	}

	db, err := badger.Open(o)
	if err != nil {
		return nil, fmt.Errorf("open badger cache: %w", err)
	}
	return &Badger{db: db, ttl: ttl}, nil
}

func (b *Badger) Get(_ context.Context, key Key) (unit.Outputs, bool, error) {
	var data []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key.Bytes())
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading cache entry %s: %w", key, err)
	}
	out, err := unit.DecodeOutputs(data)
	if err != nil {
		return nil, false, err
	}
	return out, true, nil
}

func (b *Badger) Set(_ context.Context, key Key, outputs unit.Outputs) error {
	data, err := unit.EncodeOutputs(outputs)
	if err != nil {
		return err
	}
	err = b.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry(key.Bytes(), data)
		if b.ttl > 0 {
			e = e.WithTTL(b.ttl)
		}
		return txn.SetEntry(e)
	})
	if err != nil {
		return fmt.Errorf("writing cache entry %s: %w", key, err)
	}
	return nil
}

func (b *Badger) Close() error {
	return b.db.Close()
}

// badgerLogger adapts slog.Logger to badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...any) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
