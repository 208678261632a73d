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

	"github.com/joho/godotenv"

	"github.com/zoobzio/meterz/internal/config"
	"github.com/zoobzio/meterz/internal/logging"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run0())
}

func run0() int {
	// Use a minimal logger until the full one is configured.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	// Load .env file if present.
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			return exitErr.Code
		}
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

// run parses args and executes one command.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return &ExitError{Code: 2, Message: err.Error()}
	}

	opts, shouldExit, err := parse(args, cfg, stderr)
	if err != nil {
		return err
	}
	if shouldExit {
		return nil
	}

	logger, closer, err := logging.New(stderr, logging.Options{
		Level:  opts.LogLevel,
		Format: opts.LogFormat,
		File:   opts.LogFile,
	})
	if err != nil {
		return &ExitError{Code: 2, Message: err.Error()}
	}
	defer closer.Close()

	logger.Debug("meterz starting", "version", version, "command", opts.Command,
		"profile", opts.Profile, "overhead", opts.Overhead)

	c := &command{opts: opts, logger: logger, stdout: stdout}
	switch opts.Command {
	case "report":
		return c.report(ctx)
	case "calibrate":
		return c.calibrate()
	case "ingest":
		return c.ingest(ctx)
	case "sites":
		return c.sites(ctx)
	case "version":
		fmt.Fprintln(stdout, version)
	}
	return nil
}
