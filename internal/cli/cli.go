package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/vk/blockgrid/internal/app"
	"github.com/vk/blockgrid/internal/cache"
	"github.com/vk/blockgrid/internal/planner"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Options is the outcome of a successful parse.
type Options struct {
	App *app.Config
	// List asks for the registered units and programs instead of a run.
	List bool
}

// paths collects a repeatable flag.
type paths []string

func (p *paths) String() string { return strings.Join(*p, ",") }

func (p *paths) Set(v string) error {
	*p = append(*p, v)
	return nil
}

// Parse processes command-line arguments. It returns the parsed Options,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*Options, bool, error) {
	slog.Debug("CLI parser started.")
	flagSet := flag.NewFlagSet("blockgrid", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
blockgrid - A staged, resource-aware executor for block programs.

Usage:
  blockgrid [options] [CONFIG_PATH...]

Arguments:
  CONFIG_PATH
    A .hcl file or a directory of .hcl files with engine configuration.
    Later files override earlier ones.

Options:
`)
		flagSet.PrintDefaults()
	}

	var configPaths paths
	flagSet.Var(&configPaths, "config", "Path to an engine configuration file or directory. Repeatable.")
	flagSet.Var(&configPaths, "c", "Path to an engine configuration file or directory (shorthand).")
	programFlag := flagSet.String("program", "", "Name of the registered program to run.")
	pFlag := flagSet.String("p", "", "Name of the registered program to run (shorthand).")
	listFlag := flagSet.Bool("list", false, "List the registered units and programs, then exit.")
	healthPortFlag := flagSet.Int("healthcheck-port", 0, "Port for the health, metrics and events server. 0 is disabled.")
	logFormatFlag := flagSet.String("log-format", "json", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	workersFlag := flagSet.Int("workers", 0, "Maximum concurrent units per stage. 0 keeps the configured value.")
	optimizationFlag := flagSet.String("optimization", "", "Planner optimization level: 'none', 'basic', 'balanced' or 'aggressive'.")
	cacheFlag := flagSet.String("cache", "", "Result cache backend: 'none', 'memory' or 'badger'.")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	slog.Debug("Arguments parsed successfully.")

	configPaths = append(configPaths, flagSet.Args()...)
	program := *programFlag
	if program == "" {
		program = *pFlag
	}

	if program == "" && len(configPaths) == 0 && !*listFlag {
		slog.Debug("Nothing to run, printing usage and exiting.")
		flagSet.Usage()
		return nil, true, nil
	}

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}

	if *workersFlag < 0 {
		return nil, false, &ExitError{Code: 2, Message: "invalid workers: must not be negative"}
	}
	if *healthPortFlag < 0 || *healthPortFlag > 65535 {
		return nil, false, &ExitError{Code: 2, Message: "invalid healthcheck-port: must be between 0 and 65535"}
	}

	optimization := strings.ToLower(*optimizationFlag)
	if optimization != "" {
		if _, err := planner.ParseOptimizationLevel(optimization); err != nil {
			return nil, false, &ExitError{Code: 2, Message: fmt.Sprintf("invalid optimization: %v", err)}
		}
	}

	backend := strings.ToLower(*cacheFlag)
	switch backend {
	case "", cache.BackendNone, cache.BackendMemory, cache.BackendBadger:
		// valid
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid cache: must be 'none', 'memory' or 'badger'"}
	}
	slog.Debug("CLI parameter validation complete.")

	opts := &Options{
		List: *listFlag,
		App: &app.Config{
			ConfigPaths:     configPaths,
			Program:         program,
			LogFormat:       logFormat,
			LogLevel:        logLevel,
			HealthcheckPort: *healthPortFlag,
			Workers:         *workersFlag,
			Optimization:    optimization,
			Cache:           backend,
		},
	}
	slog.Debug("CLI parser finished successfully.", "config", opts.App)
	return opts, false, nil
}
