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

	"github.com/cwobiora/oncoflow/internal/app"
	"github.com/cwobiora/oncoflow/internal/cli"
	"github.com/cwobiora/oncoflow/internal/hcl"
	"github.com/cwobiora/oncoflow/internal/scheduler"
)

// main is the entrypoint for the oncoflow orchestrator.
func main() {
	// Use a minimal logger until the full one is configured.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	if err := run(os.Stdout, os.Args[1:]); err != nil {
		if exitErr, ok := err.(*cli.ExitError); ok {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run encapsulates the main application logic for easier testing and error
// handling.
func run(outW io.Writer, args []string) (err error) {
	appConfig, shouldExit, parseErr := cli.Parse(args, outW)
	if parseErr != nil {
		return parseErr
	}
	if shouldExit {
		return nil
	}

	// The first interrupt aborts the run gracefully: running stage
	// processes are killed and the journal records the outcome. A second
	// interrupt terminates immediately.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if appConfig.History {
		return app.PrintHistory(ctx, outW, appConfig)
	}

	// The app panics on critical startup errors, so we recover here to
	// provide a clean exit message to the user.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("application startup panicked: %v", r)
		}
	}()

	loader := hcl.NewLoader()
	pipelineApp := app.NewApp(outW, appConfig, loader)

	err = pipelineApp.Run(ctx)
	var runErr *scheduler.RunError
	if errors.As(err, &runErr) {
		// The failure report has already been printed.
		return &cli.ExitError{Code: 1, Message: "run failed"}
	}
	return err
}
