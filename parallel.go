package meterz

import (
	"context"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Execution is the raw line output of one instrumented execution.
type Execution struct {
	ID    string
	Lines []string
}

// Result holds the outcome of reconstructing one execution.
// Exactly one of Trace and Err is set.
type Result struct {
	Trace *Trace
	Err   error
	ID    string
}

// ReconstructAll reconstructs independent executions in parallel, at most
// limit at a time (limit <= 0 means no bound). A malformed execution only
// fails its own Result. The returned error is non-nil only when ctx ends
// before every execution was processed.
//
// Executions without an ID are given a random one.
func ReconstructAll(ctx context.Context, executions []Execution, limit int) ([]Result, error) {
	results := make([]Result, len(executions))

	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}

	for i, exec := range executions {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			id := exec.ID
			if id == "" {
				id = uuid.NewString()
			}

			trace, err := Reconstruct(exec.Lines)
			if trace != nil {
				trace.ID = id
			}
			results[i] = Result{ID: id, Trace: trace, Err: err}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Traces returns the successfully reconstructed traces in input order.
func Traces(results []Result) []*Trace {
	traces := make([]*Trace, 0, len(results))
	for _, r := range results {
		if r.Err == nil && r.Trace != nil {
			traces = append(traces, r.Trace)
		}
	}
	return traces
}
