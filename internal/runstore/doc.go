// Package runstore holds the mutable per-run state of every unit: its status,
// a summary of its outputs, its error, and the memory handle that backs its
// outputs while downstream consumers are still reading them.
//
// A Store is created fresh for each run and is never shared. It uses
// sync.Map because the key space (all unit ids) is fixed once the plan is
// built while values change constantly as workers update their units.
package runstore
