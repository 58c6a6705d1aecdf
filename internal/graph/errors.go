package graph

import (
	"errors"

	"github.com/vk/blockgrid/internal/port"
)

var (
	// ErrUnconnectedInput means an input port without a default has no
	// inbound edge.
	ErrUnconnectedInput = errors.New("unconnected input")
	// ErrIllegalCycle means the graph contains a cycle outside an
	// iterative block.
	ErrIllegalCycle = errors.New("illegal cycle")
	// ErrExposureMismatch means a composite or iterative port does not map
	// to exactly one internal port of the same kind and type.
	ErrExposureMismatch = errors.New("exposure mismatch")
	// ErrUnknownUnit means an edge or dependency names a node not in the graph.
	ErrUnknownUnit = errors.New("unknown unit")
	// ErrUnknownPort means an edge names a port the unit does not declare.
	ErrUnknownPort = errors.New("unknown port")
	// ErrDuplicateUnit means two nodes share an ID.
	ErrDuplicateUnit = errors.New("duplicate unit")
	// ErrMissingTermination means an iterative block has no termination
	// condition.
	ErrMissingTermination = errors.New("missing termination condition")
	// ErrInvalidID means a node ID is not a valid identifier.
	ErrInvalidID = errors.New("invalid unit id")
)

// attach fills in the owning unit of a validation error produced by the
// port or edge packages.
func attach(err error, unitID, portName string) error {
	var vErr *port.ValidationError
	if errors.As(err, &vErr) {
		if vErr.Unit == "" {
			vErr.Unit = unitID
		}
		if vErr.Port == "" {
			vErr.Port = portName
		}
	}
	return err
}
