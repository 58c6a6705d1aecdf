// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file models a unit's typed connection point.
//

package port

import (
	"github.com/zclconf/go-cty/cty"
)

// Unbounded marks a cardinality limit with no upper bound.
const Unbounded = -1

// Cardinality bounds the number of connections a port accepts. For input
// ports it limits inbound edges; for stream output ports it limits
// concurrently open outbound connections. A zero Max means "exactly one".
type Cardinality struct {
	Min int
	Max int
}

// Limit returns the effective upper bound, or Unbounded.
func (c Cardinality) Limit() int {
	if c.Max == 0 {
		return 1
	}
	return c.Max
}

// FanIn reports whether more than one inbound edge is allowed.
func (c Cardinality) FanIn() bool {
	return c.Max == Unbounded || c.Max > 1
}

// Port is a typed connection point owned by exactly one unit.
type Port struct {
	Name string
	Kind Kind
	// Type is the declared value type. cty.DynamicPseudoType accepts anything.
	Type cty.Type
	// Default is used when the input is left unconnected. cty.NilVal means
	// no default.
	Default     cty.Value
	Cardinality Cardinality
	// Merge is mandatory when the port accepts more than one inbound edge.
	Merge MergePolicy
	// Priority lists source unit ids for MergePriority, highest first.
	Priority []string
}

// HasDefault reports whether the port declares a default value.
func (p Port) HasDefault() bool {
	return p.Default != cty.NilVal
}

// Find returns the port with the given name.
func Find(ports []Port, name string) (Port, bool) {
	for _, p := range ports {
		if p.Name == name {
			return p, true
		}
	}
	return Port{}, false
}

// Scalar is shorthand for a single-value port of the given type.
func Scalar(name string, ty cty.Type) Port {
	return Port{Name: name, Kind: KindScalar, Type: ty}
}

// Stream is shorthand for a stream port carrying elements of the given type.
func Stream(name string, ty cty.Type) Port {
	return Port{Name: name, Kind: KindStream, Type: ty, Cardinality: Cardinality{Max: Unbounded}}
}

// Event is shorthand for an event port carrying payloads of the given type.
func Event(name string, ty cty.Type) Port {
	return Port{Name: name, Kind: KindEvent, Type: ty}
}

// Composite is shorthand for a structured-value port.
func Composite(name string, ty cty.Type) Port {
	return Port{Name: name, Kind: KindComposite, Type: ty}
}

// WithDefault returns a copy of p with the default set.
func (p Port) WithDefault(v cty.Value) Port {
	p.Default = v
	return p
}

// WithFanIn returns a copy of p accepting up to max inbound edges merged
// by policy. Use Unbounded for no limit.
func (p Port) WithFanIn(max int, policy MergePolicy, priority ...string) Port {
	p.Cardinality.Max = max
	p.Merge = policy
	p.Priority = priority
	return p
}
