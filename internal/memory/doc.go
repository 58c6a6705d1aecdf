// Package memory provides pooled storage for unit output containers.
//
// A Pool serves one size class from fixed blocks addressed by Handle, an
// index plus a generation counter, so a stale or doubled free is detected
// instead of corrupting a reused block. The Manager owns one pool per class
// and tracks every allocation's lifecycle: the producing unit owns the
// handle exclusively until Handoff, after which the handle is read-only
// and carries one reference per registered consumer. Consumers Release
// their reference once they have read the container; Collect sweeps the
// handed-off handles whose count has reached zero.
//
// The Profiler observes the manager without influencing it.
package memory
