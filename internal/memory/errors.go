package memory

import "errors"

var (
	// ErrPoolExhausted means no block of the required class is free.
	ErrPoolExhausted = errors.New("memory pool exhausted")
	// ErrInvalidHandle covers unknown, stale and already freed handles.
	ErrInvalidHandle = errors.New("invalid memory handle")
	// ErrTooLarge means no size class can hold the requested size.
	ErrTooLarge = errors.New("allocation larger than the largest size class")
	// ErrReadOnly is returned when writing a handle after its handoff.
	ErrReadOnly = errors.New("memory handle is read-only after handoff")
	// ErrNoReference is returned by Release on a handle without
	// outstanding consumer references.
	ErrNoReference = errors.New("memory handle has no outstanding references")
)
