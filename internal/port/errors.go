// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file defines the structural validation error shared by every layer
// that checks a graph before execution.
//

package port

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTypeMismatch means an output cannot feed an input's declared type or kind.
	ErrTypeMismatch = errors.New("type mismatch")
	// ErrCardinalityViolation means a port has too many or too few connections,
	// or a fan-in port lacks a merge policy.
	ErrCardinalityViolation = errors.New("cardinality violation")
)

// ValidationError is a structural problem found before any execution. It is
// never retried. Reason is one of the sentinel errors of this package or of
// the packages that build on it.
type ValidationError struct {
	Reason error
	Unit   string
	Port   string
	Detail string
}

func (e *ValidationError) Error() string {
	var sb strings.Builder
	sb.WriteString("validation error")
	if e.Unit != "" {
		sb.WriteString(" at ")
		sb.WriteString(e.Unit)
		if e.Port != "" {
			sb.WriteString(".")
			sb.WriteString(e.Port)
		}
	}
	sb.WriteString(": ")
	sb.WriteString(e.Reason.Error())
	if e.Detail != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Detail)
	}
	return sb.String()
}

func (e *ValidationError) Unwrap() error {
	return e.Reason
}

// Invalid builds a ValidationError with a formatted detail message.
func Invalid(reason error, unit, port, format string, args ...any) *ValidationError {
	return &ValidationError{Reason: reason, Unit: unit, Port: port, Detail: fmt.Sprintf(format, args...)}
}
