// Package config defines the format-agnostic engine configuration model and
// the Loader interface that format-specific packages implement.
//
// The `config.Model` is the single source of truth for building the
// scheduler, memory manager and cache. Concrete loaders, such as the HCL
// one, live in separate packages. Command-line flags are applied on top of
// a loaded model by the app package.
package config
