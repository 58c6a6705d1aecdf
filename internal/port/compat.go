// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file contains the wiring compatibility rules between two ports.
//

package port

import (
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// Compatible reports whether a value of type from may be delivered to a
// port declaring type to. Exact matches always pass; otherwise the target
// must be dynamic or cty must know a safe (lossless) conversion.
func Compatible(from, to cty.Type) bool {
	if from.Equals(to) || to == cty.DynamicPseudoType {
		return true
	}
	if from == cty.DynamicPseudoType {
		return false
	}
	return convert.GetConversion(from, to) != nil
}

// Coerce converts a delivered value to the input port's declared type.
func Coerce(v cty.Value, to cty.Type) (cty.Value, error) {
	if to == cty.DynamicPseudoType || v.Type().Equals(to) {
		return v, nil
	}
	return convert.Convert(v, to)
}

// ValidateConnection checks that out may feed in when in has inbound edges
// in total, this one included. The owning unit ids are attached by the
// caller.
func ValidateConnection(out, in Port, inbound int) error {
	if out.Kind != in.Kind {
		return Invalid(ErrTypeMismatch, "", in.Name, "output %q is %s, input %q is %s", out.Name, out.Kind, in.Name, in.Kind)
	}
	if !Compatible(out.Type, in.Type) {
		return Invalid(ErrTypeMismatch, "", in.Name, "cannot widen %s to %s", out.Type.FriendlyName(), in.Type.FriendlyName())
	}
	return CheckInbound(in, inbound)
}

// CheckInbound validates the number of inbound edges of an input port.
func CheckInbound(in Port, inbound int) error {
	limit := in.Cardinality.Limit()
	if limit != Unbounded && inbound > limit {
		return Invalid(ErrCardinalityViolation, "", in.Name, "%d inbound edges, at most %d allowed", inbound, limit)
	}
	if inbound > 1 && in.Merge == MergeUnset {
		return Invalid(ErrCardinalityViolation, "", in.Name, "fan-in of %d edges requires a merge policy", inbound)
	}
	if in.Merge == MergePriority && inbound > 1 && len(in.Priority) == 0 {
		return Invalid(ErrCardinalityViolation, "", in.Name, "priority merge requires a priority list")
	}
	if inbound < in.Cardinality.Min {
		return Invalid(ErrCardinalityViolation, "", in.Name, "%d inbound edges, at least %d required", inbound, in.Cardinality.Min)
	}
	return nil
}

// CheckOutbound validates the number of open connections of a stream
// output port. Non-stream outputs may fan out freely.
func CheckOutbound(out Port, outbound int) error {
	if out.Kind != KindStream {
		return nil
	}
	limit := out.Cardinality.Limit()
	if limit != Unbounded && outbound > limit {
		return Invalid(ErrCardinalityViolation, "", out.Name, "%d open connections, at most %d allowed", outbound, limit)
	}
	return nil
}
