package meterz

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrLineTooLong is wrapped by LineError when a line exceeds the channel limit.
	ErrLineTooLong = errors.New("meterz: line exceeds channel limit")
	// ErrInvalidLabel is wrapped by LineError when a label cannot be framed.
	ErrInvalidLabel = errors.New("meterz: invalid label")
)

// Sink is the append-only, order-preserving line channel of one execution.
type Sink interface {
	Log(line string)
}

// Limiter is implemented by sinks that impose a hard per-line length limit.
// A limit of zero means unlimited.
type Limiter interface {
	LineLimit() int
}

// LineError reports a line the channel cannot carry intact.
type LineError struct {
	Err   error
	Label Label
	Line  string
	Limit int
}

func (e *LineError) Error() string {
	if errors.Is(e.Err, ErrLineTooLong) {
		return fmt.Sprintf("%s: %d bytes > %d (label %q)", e.Err, len(e.Line), e.Limit, e.Label)
	}
	return fmt.Sprintf("%s: %q", e.Err, e.Label)
}

func (e *LineError) Unwrap() error {
	return e.Err
}

// Emitter writes bracket records into a sink.
// The label lines of a guard are built once, on entry, so that the exit path
// only formats a counter line.
type Emitter struct {
	sink  Sink
	limit int
}

// NewEmitter creates an emitter for sink. The effective limit is the
// smaller non-zero value of limit and the sink's own LineLimit.
func NewEmitter(sink Sink, limit int) *Emitter {
	if l, ok := sink.(Limiter); ok {
		if sl := l.LineLimit(); sl > 0 && (limit <= 0 || sl < limit) {
			limit = sl
		}
	}
	return &Emitter{sink: sink, limit: limit}
}

// Limit returns the effective per-line limit, zero if unlimited.
func (e *Emitter) Limit() int {
	return e.limit
}

// Frame validates label and returns its enter and exit lines.
// Nothing is truncated: a label that does not fit yields a *LineError.
func (e *Emitter) Frame(label Label) (open, closing string, err error) {
	if label == "" || strings.ContainsAny(label, "\r\n") {
		return "", "", &LineError{Err: ErrInvalidLabel, Label: label}
	}
	open = label + openSuffix
	closing = label + closeSuffix
	if e.limit > 0 {
		if len(open) > e.limit {
			return "", "", &LineError{Err: ErrLineTooLong, Label: label, Line: open, Limit: e.limit}
		}
		if maxCounterLineLen > e.limit {
			return "", "", &LineError{Err: ErrLineTooLong, Label: label, Line: counterLine(^uint64(0)), Limit: e.limit}
		}
	}
	return open, closing, nil
}

// EmitEnter writes the enter pair for a framed label.
// The counter is read between the two lines.
func (e *Emitter) EmitEnter(open string, counter Counter) uint64 {
	e.sink.Log(open)
	n := counter.Remaining()
	e.sink.Log(counterLine(n))
	return n
}

// EmitExit writes the exit pair for a framed label.
// The counter is read before either line is written.
func (e *Emitter) EmitExit(closing string, counter Counter) uint64 {
	n := counter.Remaining()
	e.sink.Log(counterLine(n))
	e.sink.Log(closing)
	return n
}
