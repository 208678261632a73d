package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/zoobzio/meterz"
	"github.com/zoobzio/meterz/internal/telemetry"
	"github.com/zoobzio/meterz/otelexport"
	"github.com/zoobzio/meterz/store"
)

type command struct {
	opts   *options
	logger *slog.Logger
	stdout io.Writer
}

// executionIDs names each log file after its base name, falling back to
// the cleaned path when two files share a base name and to a numeric
// suffix when the same path is given twice.
func executionIDs(paths []string) []string {
	bases := make(map[string]int, len(paths))
	for _, path := range paths {
		bases[filepath.Base(path)]++
	}

	ids := make([]string, len(paths))
	seen := make(map[string]int, len(paths))
	for i, path := range paths {
		id := filepath.Base(path)
		if bases[id] > 1 {
			id = filepath.Clean(path)
		}
		seen[id]++
		if n := seen[id]; n > 1 {
			id = fmt.Sprintf("%s#%d", id, n)
		}
		ids[i] = id
	}
	return ids
}

// readExecutions loads every log file as one execution.
func (c *command) readExecutions() ([]meterz.Execution, error) {
	ids := executionIDs(c.opts.Files)
	executions := make([]meterz.Execution, 0, len(c.opts.Files))
	for i, path := range c.opts.Files {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open log: %w", err)
		}
		lines, err := meterz.ReadLines(f)
		_ = f.Close()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}

		if limit := c.opts.LineLimit; limit > 0 {
			long := 0
			for _, line := range lines {
				if len(line) > limit {
					long++
				}
			}
			if long > 0 {
				c.logger.Warn("lines exceed the channel limit; the host may have truncated output",
					"file", path, "lines", long, "limit", limit)
			}
		}

		executions = append(executions, meterz.Execution{ID: ids[i], Lines: lines})
	}
	return executions, nil
}

// reconstruct rebuilds every log file in parallel. Files that fail are
// logged and counted; the error is non-nil only if none succeeded or ctx ended.
func (c *command) reconstruct(ctx context.Context) ([]*meterz.Trace, int, error) {
	executions, err := c.readExecutions()
	if err != nil {
		return nil, 0, err
	}

	results, err := meterz.ReconstructAll(ctx, executions, c.opts.Workers)
	if err != nil {
		return nil, 0, err
	}

	failed := 0
	for _, r := range results {
		if r.Err == nil {
			c.logger.Debug("reconstructed", "execution", r.ID, "spans", r.Trace.Len(),
				"records", r.Trace.Records, "skipped", r.Trace.Skipped)
			continue
		}
		failed++
		attrs := []any{"execution", r.ID, "error", r.Err}
		var rerr *meterz.ReconstructError
		if errors.As(r.Err, &rerr) {
			attrs = append(attrs, "label", rerr.Label, "line", rerr.Line)
		}
		c.logger.Warn("reconstruction failed", attrs...)
	}

	traces := meterz.Traces(results)
	if len(traces) == 0 {
		return nil, failed, &ExitError{Code: 1, Message: "no execution could be reconstructed"}
	}
	return traces, failed, nil
}

func (c *command) report(ctx context.Context) error {
	traces, failed, err := c.reconstruct(ctx)
	if err != nil {
		return err
	}
	overhead := meterz.Overhead(c.opts.Overhead)

	if c.opts.DatabasePath != "" {
		if err := c.save(ctx, traces); err != nil {
			return err
		}
	}

	if c.opts.OTELEndpoint != "" {
		shutdown, err := telemetry.Init(ctx, c.opts.OTELEndpoint, c.opts.ServiceName, version, c.opts.OTELInsecure)
		if err != nil {
			return err
		}
		exporter := otelexport.New(telemetry.Tracer(otelexport.ScopeName), otelexport.WithOverhead(overhead))
		for _, trace := range traces {
			exporter.Export(ctx, trace)
		}
		if err := shutdown(context.WithoutCancel(ctx)); err != nil {
			c.logger.Warn("telemetry shutdown failed", "error", err)
		}
		c.logger.Info("exported traces", "endpoint", c.opts.OTELEndpoint, "traces", len(traces))
	}

	report := meterz.NewReport(overhead, traces...)
	tableOpts := meterz.TableOptions{Sites: c.opts.Top, Occurrences: c.opts.Top}
	if c.opts.Format == "json" {
		err = report.WriteJSON(c.stdout, tableOpts)
	} else {
		err = report.WriteTable(c.stdout, tableOpts)
	}
	if err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	if failed > 0 {
		return &ExitError{Code: 1, Message: fmt.Sprintf("%d of %d executions failed to reconstruct", failed, failed+len(traces))}
	}
	return nil
}

func (c *command) calibrate() error {
	f, err := os.Open(c.opts.Files[0])
	if err != nil {
		return fmt.Errorf("open log: %w", err)
	}
	defer f.Close()

	trace, err := meterz.ReconstructReader(f)
	if err != nil {
		return &ExitError{Code: 1, Message: err.Error()}
	}
	overhead, err := meterz.OverheadFromTrace(trace, c.opts.Label)
	if err != nil {
		return &ExitError{Code: 1, Message: err.Error()}
	}

	c.logger.Debug("calibrated", "label", c.opts.Label, "overhead", overhead)
	fmt.Fprintln(c.stdout, overhead)
	return nil
}

func (c *command) ingest(ctx context.Context) error {
	traces, failed, err := c.reconstruct(ctx)
	if err != nil {
		return err
	}
	if err := c.save(ctx, traces); err != nil {
		return err
	}
	for _, trace := range traces {
		fmt.Fprintln(c.stdout, trace.ID)
	}
	if failed > 0 {
		return &ExitError{Code: 1, Message: fmt.Sprintf("%d of %d executions failed to reconstruct", failed, failed+len(traces))}
	}
	return nil
}

func (c *command) save(ctx context.Context, traces []*meterz.Trace) error {
	db, err := store.Open(ctx, c.opts.DatabasePath, c.logger)
	if err != nil {
		return err
	}
	defer db.Close()

	for _, trace := range traces {
		if _, err := db.SaveTrace(ctx, trace, meterz.Overhead(c.opts.Overhead)); err != nil {
			return err
		}
	}
	c.logger.Info("saved traces", "db", c.opts.DatabasePath, "traces", len(traces))
	return nil
}

func (c *command) sites(ctx context.Context) error {
	db, err := store.Open(ctx, c.opts.DatabasePath, c.logger)
	if err != nil {
		return err
	}
	defer db.Close()

	sites, err := db.Sites(ctx)
	if err != nil {
		return err
	}
	return meterz.WriteSites(c.stdout, meterz.Top(sites, c.opts.Top))
}
