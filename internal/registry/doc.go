// Package registry provides the central "glue" for the block library.
//
// The Registry maps the kind names used by programs (e.g., "add", "print")
// to the Go factories that build the matching units, holds the named
// programs that assemble graphs out of those units, and owns the adapter
// functions edges may reference by name.
//
// During application startup, modules register their factories, adapter
// functions and programs, and the registry is then validated: every program
// must build, and every graph it builds must pass validation, so that a
// mismatch between the block library and the programs fails at startup
// instead of mid-run.
package registry
