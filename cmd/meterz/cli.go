package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/zoobzio/meterz"
	"github.com/zoobzio/meterz/internal/config"
)

// ExitError carries a process exit code with its message.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string {
	return e.Message
}

const usage = `meterz - reconstruct compute-unit cost trees from instrumented execution logs.

Usage:
  meterz <command> [options] [FILE...]

Commands:
  report     Reconstruct log files and print a cost report.
  calibrate  Measure instrumentation overhead from a log of empty guards.
  ingest     Reconstruct log files and save them to a SQLite database.
  sites      Print per-label costs aggregated over a database.
  version    Print the version.

Run 'meterz <command> -h' for command options.
`

// options is the configuration of one invocation: environment defaults
// overridden by a profile, then by flags.
type options struct {
	config.Config
	Command string
	Files   []string
	Format  string
	Label   string
}

// parse reads the command and its flags. The bool result is true when the
// invocation only printed help.
func parse(args []string, cfg config.Config, output io.Writer) (*options, bool, error) {
	if len(args) == 0 {
		fmt.Fprint(output, usage)
		return nil, true, nil
	}

	opts := &options{Config: cfg, Command: args[0], Format: "table", Label: meterz.CalibrationLabel}
	switch opts.Command {
	case "help", "-h", "-help", "--help":
		fmt.Fprint(output, usage)
		return nil, true, nil
	case "version":
		return opts, false, nil
	case "report", "calibrate", "ingest", "sites":
	default:
		return nil, false, &ExitError{Code: 2, Message: fmt.Sprintf("unknown command %q\n\n%s", opts.Command, usage)}
	}

	flagSet := flag.NewFlagSet("meterz "+opts.Command, flag.ContinueOnError)
	flagSet.SetOutput(output)
	flagSet.Usage = func() {
		fmt.Fprintf(output, "Usage:\n  meterz %s [options]%s\n\nOptions:\n", opts.Command, argsUsage(opts.Command))
		flagSet.PrintDefaults()
	}

	flagSet.StringVar(&opts.LogLevel, "log-level", cfg.LogLevel, "Logging level. Options: 'debug', 'info', 'warn', 'error'.")
	flagSet.StringVar(&opts.LogFormat, "log-format", cfg.LogFormat, "Log output format. Options: 'text' or 'json'.")
	flagSet.StringVar(&opts.LogFile, "log-file", cfg.LogFile, "Also write JSON logs to this file.")
	flagSet.StringVar(&opts.ProfilesPath, "profiles", cfg.ProfilesPath, "HCL file of named overhead profiles.")
	flagSet.StringVar(&opts.Profile, "profile", cfg.Profile, "Profile to apply before flags.")
	overhead := flagSet.Uint64("overhead", cfg.Overhead, "Units subtracted from every span's gross cost.")
	var lineLimit int

	switch opts.Command {
	case "report":
		flagSet.StringVar(&opts.Format, "format", "table", "Output format. Options: 'table' or 'json'.")
		flagSet.IntVar(&opts.Top, "top", cfg.Top, "Rows per table; 0 shows all.")
		flagSet.IntVar(&opts.Workers, "workers", cfg.Workers, "Parallel reconstructions.")
		flagSet.StringVar(&opts.DatabasePath, "db", cfg.DatabasePath, "Also save traces to this SQLite database.")
		flagSet.StringVar(&opts.OTELEndpoint, "otlp-endpoint", cfg.OTELEndpoint, "Also export traces to this OTLP/HTTP endpoint.")
		flagSet.BoolVar(&opts.OTELInsecure, "otlp-insecure", cfg.OTELInsecure, "Use plain HTTP for the OTLP endpoint.")
		flagSet.IntVar(&lineLimit, "line-limit", cfg.LineLimit, "Warn about log lines longer than this; 0 disables.")
	case "calibrate":
		flagSet.StringVar(&opts.Label, "label", meterz.CalibrationLabel, "Label of the empty calibration guards.")
	case "ingest":
		flagSet.IntVar(&opts.Workers, "workers", cfg.Workers, "Parallel reconstructions.")
		flagSet.StringVar(&opts.DatabasePath, "db", cfg.DatabasePath, "SQLite database to save traces to.")
		flagSet.IntVar(&lineLimit, "line-limit", cfg.LineLimit, "Warn about log lines longer than this; 0 disables.")
	case "sites":
		flagSet.IntVar(&opts.Top, "top", cfg.Top, "Rows to print; 0 shows all.")
		flagSet.StringVar(&opts.DatabasePath, "db", cfg.DatabasePath, "SQLite database to read.")
	}

	if err := flagSet.Parse(args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	opts.Files = flagSet.Args()

	if opts.Profile != "" {
		profiles, err := config.LoadProfiles(opts.ProfilesPath)
		if err != nil {
			return nil, false, &ExitError{Code: 2, Message: err.Error()}
		}
		profile, err := profiles.Lookup(opts.Profile)
		if err != nil {
			return nil, false, &ExitError{Code: 2, Message: fmt.Sprintf("%s in %s", err, opts.ProfilesPath)}
		}
		opts.ApplyProfile(profile)
	}
	flagSet.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "overhead":
			opts.Overhead = *overhead
		case "line-limit":
			opts.LineLimit = lineLimit
		}
	})

	if err := validate(opts); err != nil {
		return nil, false, err
	}
	return opts, false, nil
}

func validate(opts *options) error {
	opts.Format = strings.ToLower(opts.Format)
	if opts.Format != "table" && opts.Format != "json" {
		return &ExitError{Code: 2, Message: "invalid format: must be 'table' or 'json'"}
	}
	if err := opts.Validate(); err != nil {
		return &ExitError{Code: 2, Message: err.Error()}
	}

	switch opts.Command {
	case "report", "ingest":
		if len(opts.Files) == 0 {
			return &ExitError{Code: 2, Message: opts.Command + ": at least one log file is required"}
		}
	case "calibrate":
		if len(opts.Files) != 1 {
			return &ExitError{Code: 2, Message: "calibrate: exactly one log file is required"}
		}
	}

	switch opts.Command {
	case "ingest", "sites":
		if opts.DatabasePath == "" {
			return &ExitError{Code: 2, Message: opts.Command + ": -db or METERZ_DB is required"}
		}
	}
	return nil
}

func argsUsage(command string) string {
	switch command {
	case "report", "ingest":
		return " FILE..."
	case "calibrate":
		return " FILE"
	}
	return ""
}
