package edge

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedAdapterForKind means the adapter cannot operate on the
	// value kind it was given, e.g. a window over a scalar.
	ErrUnsupportedAdapterForKind = errors.New("adapter not supported for value kind")
	// ErrInvalidPolicy means a policy's fields contradict each other.
	ErrInvalidPolicy = errors.New("invalid edge policy")
	// ErrUnknownAdapter means a map or filter names a function nobody registered.
	ErrUnknownAdapter = errors.New("unknown adapter function")
	// ErrReorderBufferExhausted means a value could not be placed in order
	// within the buffer capacity.
	ErrReorderBufferExhausted = errors.New("reorder buffer exhausted")
	// ErrBufferOverflow means an expanding buffer reached its bound.
	ErrBufferOverflow = errors.New("buffer overflow")
	// ErrChannelClosed means a send arrived after the producer side closed.
	ErrChannelClosed = errors.New("edge channel closed")
)

// EdgeError is a runtime failure of one edge.
type EdgeError struct {
	Edge string
	Err  error
}

func (e *EdgeError) Error() string {
	return fmt.Sprintf("edge %s: %v", e.Edge, e.Err)
}

func (e *EdgeError) Unwrap() error { return e.Err }

// AdapterError is a failure of an edge's adapter on one value.
type AdapterError struct {
	Edge string
	Op   AdapterOp
	Err  error
}

func (e *AdapterError) Error() string {
	return fmt.Sprintf("edge %s: %s adapter: %v", e.Edge, e.Op, e.Err)
}

func (e *AdapterError) Unwrap() error { return e.Err }
