// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file defines the envelope exchanged between units.
//

package port

import (
	"time"

	"github.com/zclconf/go-cty/cty"
)

// Value is the envelope carried across an edge. The kind is fixed at
// construction; ordering metadata is filled in by the producer side.
type Value struct {
	Kind Kind
	Data cty.Value

	// Seq is the producer's emission index on the output port.
	Seq uint64
	// Timestamp is the event time used by timestamp ordering.
	Timestamp time.Time
	// Key is the sort key used by stable-key ordering.
	Key string
	// Source is the id of the producing unit.
	Source string
	// Arrival is a run-wide monotonic stamp recorded when the value entered
	// an edge; fan-in first-arrival merging sorts on it.
	Arrival uint64
}

// New tags data with the given kind.
func New(kind Kind, data cty.Value) Value {
	return Value{Kind: kind, Data: data}
}

// ScalarValue builds a scalar envelope.
func ScalarValue(data cty.Value) Value { return New(KindScalar, data) }

// StreamValue builds one stream element.
func StreamValue(data cty.Value) Value { return New(KindStream, data) }

// EventValue builds an event stamped with the given time.
func EventValue(data cty.Value, at time.Time) Value {
	v := New(KindEvent, data)
	v.Timestamp = at
	return v
}

// CompositeValue builds a structured envelope.
func CompositeValue(data cty.Value) Value { return New(KindComposite, data) }

// WithData returns a copy of v carrying new data but the same kind and
// ordering metadata. Adapters use it so a transformation never changes
// the kind tag.
func (v Value) WithData(data cty.Value) Value {
	v.Data = data
	return v
}
