// Package otelexport replays reconstructed traces as OpenTelemetry spans so
// cost trees can be browsed in any tracing backend.
//
// Compute units are mapped onto a synthetic timeline: a span starts at
// base + (first reading - enter) * unit and ends at base + (first reading -
// exit) * unit, so span widths are proportional to gross cost.
package otelexport

import (
	"context"
	"math"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/zoobzio/meterz"
)

// ScopeName is the instrumentation scope used when no tracer is given.
const ScopeName = "github.com/zoobzio/meterz"

// ExecutionSpanName names the synthetic span that parents every root.
const ExecutionSpanName = "meterz.execution"

// Attribute keys set on exported spans.
const (
	AttrExecutionID = attribute.Key("meterz.execution.id")
	AttrRecords     = attribute.Key("meterz.records")
	AttrSkipped     = attribute.Key("meterz.skipped")
	AttrTotal       = attribute.Key("meterz.total")
	AttrOverhead    = attribute.Key("meterz.overhead")
	AttrSequence    = attribute.Key("meterz.sequence")
	AttrEnter       = attribute.Key("meterz.enter")
	AttrExit        = attribute.Key("meterz.exit")
	AttrGross       = attribute.Key("meterz.gross")
	AttrNet         = attribute.Key("meterz.net")
	AttrInclusive   = attribute.Key("meterz.inclusive")
)

// Option configures an Exporter.
type Option func(*Exporter)

// WithBase sets the timestamp of the first counter reading.
func WithBase(base time.Time) Option {
	return func(e *Exporter) {
		e.base = base
	}
}

// WithUnit sets the duration one compute unit is drawn as.
func WithUnit(unit time.Duration) Option {
	return func(e *Exporter) {
		if unit > 0 {
			e.unit = unit
		}
	}
}

// WithOverhead sets the overhead subtracted from net and inclusive costs.
func WithOverhead(overhead meterz.Overhead) Option {
	return func(e *Exporter) {
		e.overhead = overhead
	}
}

// Exporter converts traces into spans on a tracer.
type Exporter struct {
	tracer   trace.Tracer
	base     time.Time
	unit     time.Duration
	overhead meterz.Overhead
}

// New creates an exporter on tracer, or on the global provider when nil.
func New(tracer trace.Tracer, opts ...Option) *Exporter {
	if tracer == nil {
		tracer = otel.Tracer(ScopeName)
	}
	e := &Exporter{
		tracer: tracer,
		base:   time.Now(),
		unit:   time.Microsecond,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Export emits one execution span and a child span per reconstructed span.
// An empty trace emits nothing.
func (e *Exporter) Export(ctx context.Context, t *meterz.Trace) {
	if t == nil || len(t.Roots) == 0 {
		return
	}

	first := t.Roots[0].Enter
	last := t.Roots[len(t.Roots)-1].Exit
	at := func(reading uint64) time.Time {
		if reading > first {
			return e.base
		}
		return e.base.Add(time.Duration(first-reading) * e.unit)
	}

	report := meterz.NewReport(e.overhead, t)
	occurrences := make(map[*meterz.Span]meterz.Occurrence, t.Len())
	for _, occ := range report.Occurrences() {
		occurrences[occ.Span] = occ
	}

	execCtx, execSpan := e.tracer.Start(ctx, ExecutionSpanName,
		trace.WithTimestamp(at(first)),
		trace.WithAttributes(
			AttrExecutionID.String(t.ID),
			AttrRecords.Int(t.Records),
			AttrSkipped.Int(t.Skipped),
			AttrTotal.Int64(clamp(report.Total())),
			AttrOverhead.Int64(clamp(uint64(e.overhead))),
		),
	)

	contexts := make(map[*meterz.Span]context.Context)
	t.Walk(func(span *meterz.Span, _ int) bool {
		parent := execCtx
		if p := span.Parent(); p != nil {
			parent = contexts[p]
		}

		occ := occurrences[span]
		spanCtx, s := e.tracer.Start(parent, span.Label,
			trace.WithTimestamp(at(span.Enter)),
			trace.WithAttributes(
				AttrSequence.Int(span.Sequence),
				AttrEnter.Int64(clamp(span.Enter)),
				AttrExit.Int64(clamp(span.Exit)),
				AttrGross.Int64(clamp(occ.Gross)),
				AttrNet.Int64(clamp(occ.Net)),
				AttrInclusive.Int64(clamp(occ.Inclusive)),
			),
		)
		if len(span.Children) > 0 {
			contexts[span] = spanCtx
		}
		s.End(trace.WithTimestamp(at(span.Exit)))
		return true
	})

	execSpan.End(trace.WithTimestamp(at(last)))
}

func clamp(v uint64) int64 {
	if v > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(v)
}
