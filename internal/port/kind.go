// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file defines the value kinds and fan-in merge policies.
//

package port

import "fmt"

// Kind classifies how values flow through a port.
type Kind int

const (
	// KindScalar carries exactly one value per run.
	KindScalar Kind = iota
	// KindStream carries an ordered sequence of values.
	KindStream
	// KindEvent carries discrete, independently timestamped occurrences.
	KindEvent
	// KindComposite carries one structured value (object, map, tuple).
	KindComposite
)

func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindStream:
		return "stream"
	case KindEvent:
		return "event"
	case KindComposite:
		return "composite"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Sequential reports whether values of this kind form a sequence that can
// be windowed.
func (k Kind) Sequential() bool {
	return k == KindStream || k == KindEvent
}

// MergePolicy decides the order in which values from several inbound edges
// are presented on a fan-in input port.
type MergePolicy int

const (
	// MergeUnset is the zero value; it is only legal on single-inbound ports.
	MergeUnset MergePolicy = iota
	// MergeFirstArrival orders values by the time they reached the port.
	MergeFirstArrival
	// MergePriority concatenates sources in the port's priority list order.
	MergePriority
	// MergeRoundRobin interleaves one value from each source in turn.
	MergeRoundRobin
)

func (m MergePolicy) String() string {
	switch m {
	case MergeUnset:
		return "unset"
	case MergeFirstArrival:
		return "first-arrival"
	case MergePriority:
		return "priority"
	case MergeRoundRobin:
		return "round-robin"
	default:
		return fmt.Sprintf("MergePolicy(%d)", int(m))
	}
}
