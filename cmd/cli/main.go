package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/vk/blockgrid/internal/app"
	"github.com/vk/blockgrid/internal/cli"
	"github.com/vk/blockgrid/internal/hcl"
)

// main is the entrypoint for the blockgrid application.
func main() {
	// Use a minimal logger until the full one is configured.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Stdout, os.Args[1:])
	stop()

	if err != nil {
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run encapsulates the main application logic for easier testing and error handling.
func run(ctx context.Context, outW io.Writer, args []string) error {
	opts, shouldExit, err := cli.Parse(args, outW)
	if err != nil {
		return err
	}
	if shouldExit {
		return nil
	}

	loader := hcl.NewLoader()
	blockgrid, err := app.NewApp(outW, opts.App, loader)
	if err != nil {
		return fmt.Errorf("application startup failed: %w", err)
	}
	defer func() {
		if cerr := blockgrid.Close(context.WithoutCancel(ctx)); cerr != nil {
			slog.Error("Shutdown failed.", "error", cerr)
		}
	}()

	if opts.List {
		return blockgrid.List(outW)
	}
	return blockgrid.Run(ctx)
}
