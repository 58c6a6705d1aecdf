// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// Package port defines the typed contract between units: the connection
// points a unit exposes, the envelope that carries a value across an edge,
// and the rules deciding whether an output may feed an input.
//
// Values are cty values. A port declares a cty.Type and one of four kinds
// (scalar, stream, event, composite); the kind tag is stamped on every Value
// at construction and never changes while the value travels through edges,
// which lets adapters refuse operations that make no sense for it.
package port
