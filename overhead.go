package meterz

import (
	"errors"
	"fmt"
)

// CalibrationLabel labels the empty spans emitted by Calibrate.
const CalibrationLabel = "meterz.calibrate"

var (
	// ErrNoSamples is returned when calibration has nothing to measure.
	ErrNoSamples = errors.New("meterz: no calibration samples")
)

// Overhead is the per-span cost of the instrumentation itself: two counter
// reads and two line pairs. It is specific to a host runtime version.
type Overhead uint64

// Apply subtracts the overhead from a gross cost, flooring at zero.
func (o Overhead) Apply(gross uint64) uint64 {
	if gross <= uint64(o) {
		return 0
	}
	return gross - uint64(o)
}

// Calibrate measures the overhead of m by opening and immediately closing
// samples empty guards and taking the smallest gross cost observed.
// The calibration spans are written to m's sink like any other span.
func Calibrate(m *Meter, samples int) (Overhead, error) {
	if samples <= 0 {
		return 0, fmt.Errorf("%w: samples must be > 0, got %d", ErrNoSamples, samples)
	}

	records := make([]Record, 0, samples*2)
	id := m.OnRecord(func(r Record) {
		records = append(records, r)
	})
	defer m.RemoveHandler(id)

	for i := 0; i < samples; i++ {
		m.Enter(CalibrationLabel).Exit()
	}

	trace, err := FromRecords(records)
	if err != nil {
		return 0, fmt.Errorf("meterz: calibrate: %w", err)
	}
	return OverheadFromTrace(trace, CalibrationLabel)
}

// OverheadFromTrace returns the smallest gross cost among leaf spans
// labelled label. Use it on the log of a host run that emitted empty guards.
func OverheadFromTrace(trace *Trace, label Label) (Overhead, error) {
	found := false
	var smallest uint64
	trace.Walk(func(span *Span, _ int) bool {
		if span.Label == label && len(span.Children) == 0 {
			if g := span.Gross(); !found || g < smallest {
				smallest = g
			}
			found = true
		}
		return true
	})
	if !found {
		return 0, fmt.Errorf("%w: no empty %q spans in trace", ErrNoSamples, label)
	}
	return Overhead(smallest), nil
}
