// Package app contains the core application logic. It defines the main App
// struct, its configuration, and the primary execution lifecycle: loading
// engine configuration, registering modules, running a program, and serving
// health, metrics and live events while it runs. It is decoupled from any
// specific entrypoint like the CLI.
package app
