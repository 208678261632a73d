package meterz

import (
	"fmt"
	"io"
)

// WriterSink writes each line, newline terminated, to an io.Writer.
// The first write error is kept and later lines are dropped; check Err.
type WriterSink struct {
	w     io.Writer
	err   error
	limit int
}

// NewWriterSink creates a sink over w with the given line limit (0 = none).
func NewWriterSink(w io.Writer, limit int) *WriterSink {
	return &WriterSink{w: w, limit: limit}
}

// Log writes line followed by a newline.
func (s *WriterSink) Log(line string) {
	if s.err != nil {
		return
	}
	if _, err := io.WriteString(s.w, line); err != nil {
		s.err = err
		return
	}
	if _, err := io.WriteString(s.w, "\n"); err != nil {
		s.err = err
	}
}

// LineLimit returns the configured limit.
func (s *WriterSink) LineLimit() int {
	return s.limit
}

// Err returns the first write error, if any.
func (s *WriterSink) Err() error {
	return s.err
}

// ChargingSink forwards lines to another sink and charges a Budget for each
// one, modelling hosts that bill log output against the same meter.
// Charges saturate at zero.
type ChargingSink struct {
	sink     Sink
	budget   *Budget
	lineCost uint64
}

// NewChargingSink wraps sink so every line costs lineCost units of budget.
func NewChargingSink(sink Sink, budget *Budget, lineCost uint64) *ChargingSink {
	return &ChargingSink{sink: sink, budget: budget, lineCost: lineCost}
}

// Log charges the budget and forwards the line.
func (s *ChargingSink) Log(line string) {
	_ = s.budget.Consume(s.lineCost) // Drains to zero when exhausted.
	s.sink.Log(line)
}

// LineLimit forwards the wrapped sink's limit.
func (s *ChargingSink) LineLimit() int {
	if l, ok := s.sink.(Limiter); ok {
		return l.LineLimit()
	}
	return 0
}

// Logf formats a diagnostic line and writes it to sink.
func Logf(sink Sink, format string, args ...any) {
	sink.Log(fmt.Sprintf(format, args...))
}
