package meterz

import (
	"bufio"
	"errors"
	"fmt"
	"io"
)

// Reconstruction errors. Each one aborts the trace it was found in.
var (
	// ErrMismatchedSpan reports an Exit with no open span or with a label
	// other than the innermost open span's.
	ErrMismatchedSpan = errors.New("meterz: mismatched span")
	// ErrUnterminatedSpan reports spans still open at the end of the trace.
	ErrUnterminatedSpan = errors.New("meterz: unterminated span")
	// ErrOverflowingCost reports a reading above an earlier one in the same
	// execution.
	ErrOverflowingCost = errors.New("meterz: overflowing cost")
)

// maxLineSize bounds a single line read by ReconstructReader.
const maxLineSize = 64 * 1024 * 1024

// ReconstructError locates a reconstruction failure in the trace.
//
//nolint:govet // Field order follows the error message
type ReconstructError struct {
	Err      error
	Label    Label // Label of the offending record or open span.
	Expected Label // Innermost open label when the Exit mismatched, if any.
	Sequence int
	Line     int
	Previous uint64 // Last reading before the offending one, for ErrOverflowingCost.
	Reading  uint64
	Open     int // Spans still open, for ErrUnterminatedSpan.
}

func (e *ReconstructError) Error() string {
	switch {
	case errors.Is(e.Err, ErrMismatchedSpan) && e.Expected == "":
		return fmt.Sprintf("%s: exit %q at record %d (line %d) with no open span", e.Err, e.Label, e.Sequence, e.Line)
	case errors.Is(e.Err, ErrMismatchedSpan):
		return fmt.Sprintf("%s: exit %q at record %d (line %d), innermost open span is %q", e.Err, e.Label, e.Sequence, e.Line, e.Expected)
	case errors.Is(e.Err, ErrUnterminatedSpan):
		return fmt.Sprintf("%s: %d span(s) open at end of trace, innermost %q entered at record %d (line %d)", e.Err, e.Open, e.Label, e.Sequence, e.Line)
	case errors.Is(e.Err, ErrOverflowingCost):
		return fmt.Sprintf("%s: %q reading %d above previous reading %d at record %d (line %d)", e.Err, e.Label, e.Reading, e.Previous, e.Sequence, e.Line)
	default:
		return e.Err.Error()
	}
}

func (e *ReconstructError) Unwrap() error {
	return e.Err
}

// Reconstruct rebuilds the span forest of one execution from its lines.
// Lines that are not bracket records are skipped.
func Reconstruct(lines []string) (*Trace, error) {
	records, skipped := Decode(lines)
	trace, err := FromRecords(records)
	if err != nil {
		return nil, err
	}
	trace.Skipped = skipped
	return trace, nil
}

// ReconstructReader reads newline separated lines from r and reconstructs them.
func ReconstructReader(r io.Reader) (*Trace, error) {
	lines, err := ReadLines(r)
	if err != nil {
		return nil, err
	}
	return Reconstruct(lines)
}

// ReadLines splits r into lines, accepting lines up to 64 MiB.
func ReadLines(r io.Reader) ([]string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("meterz: read lines: %w", err)
	}
	return lines, nil
}

// FromRecords rebuilds the span forest from decoded bracket records, in
// sequence order, using an explicit stack of open spans. Readings must never
// increase from one record to the next.
func FromRecords(records []Record) (*Trace, error) {
	trace := &Trace{Records: len(records)}
	last := ^uint64(0)

	type open struct {
		span *Span
		line int
	}
	var stack []open

	for _, rec := range records {
		if rec.Kind == Enter || rec.Kind == Exit {
			if rec.Counter > last {
				return nil, &ReconstructError{
					Err:      ErrOverflowingCost,
					Label:    rec.Label,
					Sequence: rec.Sequence,
					Line:     rec.Line,
					Previous: last,
					Reading:  rec.Counter,
				}
			}
			last = rec.Counter
		}

		switch rec.Kind {
		case Enter:
			span := &Span{
				Label:    rec.Label,
				Sequence: rec.Sequence,
				Enter:    rec.Counter,
			}
			if len(stack) > 0 {
				parent := stack[len(stack)-1].span
				span.parent = parent
				parent.Children = append(parent.Children, span)
			} else {
				trace.Roots = append(trace.Roots, span)
			}
			stack = append(stack, open{span: span, line: rec.Line})

		case Exit:
			if len(stack) == 0 {
				return nil, &ReconstructError{
					Err:      ErrMismatchedSpan,
					Label:    rec.Label,
					Sequence: rec.Sequence,
					Line:     rec.Line,
				}
			}
			top := stack[len(stack)-1].span
			if top.Label != rec.Label {
				return nil, &ReconstructError{
					Err:      ErrMismatchedSpan,
					Label:    rec.Label,
					Expected: top.Label,
					Sequence: rec.Sequence,
					Line:     rec.Line,
				}
			}
			top.Exit = rec.Counter
			stack = stack[:len(stack)-1]

		default:
			return nil, fmt.Errorf("meterz: record %d has unknown kind %d", rec.Sequence, rec.Kind)
		}
	}

	if len(stack) > 0 {
		top := stack[len(stack)-1]
		return nil, &ReconstructError{
			Err:      ErrUnterminatedSpan,
			Label:    top.span.Label,
			Sequence: top.span.Sequence,
			Line:     top.line,
			Open:     len(stack),
		}
	}

	return trace, nil
}
