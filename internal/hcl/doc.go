// Package hcl provides the concrete HCL implementation of the config.Loader
// interface. It is responsible for file discovery, parsing, and the
// translation of engine blocks and typed variables into the config model.
package hcl
