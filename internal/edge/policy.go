package edge

import (
	"fmt"

	"github.com/vk/blockgrid/internal/port"
	"github.com/zclconf/go-cty/cty"
)

// Backpressure is the strategy applied when the producer outpaces the consumer.
type Backpressure int

const (
	// Block suspends the producer until the consumer frees space.
	Block Backpressure = iota
	// DropOldest evicts the oldest buffered value to admit a new one.
	DropOldest
	// DropNewest discards the incoming value.
	DropNewest
	// Expand grows the buffer up to MaxCapacity.
	Expand
)

func (b Backpressure) String() string {
	switch b {
	case Block:
		return "block"
	case DropOldest:
		return "drop-oldest"
	case DropNewest:
		return "drop-newest"
	case Expand:
		return "expand"
	default:
		return fmt.Sprintf("Backpressure(%d)", int(b))
	}
}

// Ordering is the delivery order guaranteed to the consumer.
type Ordering int

const (
	// SourceOrder delivers values in the producer's emission order.
	SourceOrder Ordering = iota
	// TimestampOrder delivers values by their event timestamp.
	TimestampOrder
	// KeyOrder delivers values by their stable key.
	KeyOrder
)

func (o Ordering) String() string {
	switch o {
	case SourceOrder:
		return "source"
	case TimestampOrder:
		return "timestamp"
	case KeyOrder:
		return "stable-key"
	default:
		return fmt.Sprintf("Ordering(%d)", int(o))
	}
}

// ErrorMode decides what an adapter failure does to the edge.
type ErrorMode int

const (
	// Strict aborts the edge on the first adapter failure.
	Strict ErrorMode = iota
	// Lenient drops the offending value and keeps going.
	Lenient
)

func (m ErrorMode) String() string {
	if m == Lenient {
		return "lenient"
	}
	return "strict"
}

// AdapterOp names the transformation applied to values on an edge.
type AdapterOp int

const (
	OpIdentity AdapterOp = iota
	OpMap
	OpFilter
	OpBuffer
	OpWindow
)

func (op AdapterOp) String() string {
	switch op {
	case OpIdentity:
		return "identity"
	case OpMap:
		return "map"
	case OpFilter:
		return "filter"
	case OpBuffer:
		return "buffer"
	case OpWindow:
		return "window"
	default:
		return fmt.Sprintf("AdapterOp(%d)", int(op))
	}
}

// AdapterSpec selects and parameterizes an edge adapter.
type AdapterSpec struct {
	Op AdapterOp
	// Func names a registered map or filter function.
	Func string
	// Size is the batch size for buffer and the window length for window.
	Size int
	// Step is how far a window slides; zero means one.
	Step int
	// Type is the result type of a map function. cty.NilType keeps the
	// input type.
	Type cty.Type
}

// ResultType is the type of values leaving the adapter when values of
// type in enter it.
func (s AdapterSpec) ResultType(in cty.Type) cty.Type {
	switch s.Op {
	case OpMap:
		if s.Type == cty.NilType {
			return in
		}
		return s.Type
	case OpBuffer, OpWindow:
		if in == cty.DynamicPseudoType {
			return cty.DynamicPseudoType
		}
		return cty.List(in)
	default:
		return in
	}
}

// Policy governs one edge.
type Policy struct {
	Adapter      AdapterSpec
	Backpressure Backpressure
	Ordering     Ordering
	// Capacity is the number of values the edge buffers.
	Capacity int
	// MaxCapacity bounds an expanding buffer.
	MaxCapacity int
	Mode        ErrorMode
}

// DefaultCapacity is the buffer size of DefaultPolicy.
const DefaultCapacity = 16

// DefaultPolicy blocks the producer on a source-ordered buffer of
// DefaultCapacity values with strict adapter errors.
func DefaultPolicy() Policy {
	return Policy{
		Backpressure: Block,
		Ordering:     SourceOrder,
		Capacity:     DefaultCapacity,
		Mode:         Strict,
	}
}

// Validate checks the policy against the kind of values the edge carries.
// Failures are reported as *port.ValidationError.
func (p Policy) Validate(kind port.Kind) error {
	if p.Capacity < 1 {
		switch p.Backpressure {
		case Block, Expand:
			return port.Invalid(ErrInvalidPolicy, "", "", "capacity must be at least 1 for %s backpressure", p.Backpressure)
		default:
			return port.Invalid(ErrInvalidPolicy, "", "", "capacity must be at least 1")
		}
	}
	if p.Backpressure == Expand && p.MaxCapacity < p.Capacity {
		return port.Invalid(ErrInvalidPolicy, "", "", "max capacity %d below capacity %d", p.MaxCapacity, p.Capacity)
	}
	switch p.Adapter.Op {
	case OpMap, OpFilter:
		if p.Adapter.Func == "" {
			return port.Invalid(ErrInvalidPolicy, "", "", "%s adapter needs a function name", p.Adapter.Op)
		}
	case OpBuffer:
		if p.Adapter.Size < 1 {
			return port.Invalid(ErrInvalidPolicy, "", "", "buffer adapter needs a positive size")
		}
	case OpWindow:
		if !kind.Sequential() {
			return port.Invalid(ErrUnsupportedAdapterForKind, "", "", "window adapter on %s values", kind)
		}
		if p.Adapter.Size < 1 || p.Adapter.Step < 0 || p.Adapter.Step > p.Adapter.Size {
			return port.Invalid(ErrInvalidPolicy, "", "", "window adapter needs a positive size and a step no larger than it")
		}
	}
	return nil
}

// WithAdapter returns a copy of p using the given adapter.
func (p Policy) WithAdapter(spec AdapterSpec) Policy {
	p.Adapter = spec
	return p
}

// Map is shorthand for a map AdapterSpec.
func Map(fn string) AdapterSpec { return AdapterSpec{Op: OpMap, Func: fn} }

// Filter is shorthand for a filter AdapterSpec.
func Filter(fn string) AdapterSpec { return AdapterSpec{Op: OpFilter, Func: fn} }

// Buffer is shorthand for a tumbling batch AdapterSpec.
func Buffer(size int) AdapterSpec { return AdapterSpec{Op: OpBuffer, Size: size} }

// Window is shorthand for a sliding window AdapterSpec.
func Window(size, step int) AdapterSpec { return AdapterSpec{Op: OpWindow, Size: size, Step: step} }
