// Package meterz provides a minimal, primitive resource-metering library.
//
// meterz brackets blocks of work with snapshots of a monotonically
// non-increasing resource counter (compute units, gas, a time budget) and
// writes the snapshots as plain text lines to an append-only channel. The
// channel is all the instrumented process gets: no structured fields, no
// timestamps, only order. Offline, the line stream is rebuilt into a nested
// cost tree and ranked.
//
// Core Components:
//   - Counter: Reports the units remaining in the current execution.
//   - Meter: Owns the counter and sink handles for one execution.
//   - Guard: One open measurement, closed exactly once by Exit.
//   - Collector: In-memory append-only sink.
//   - Reconstruct: Rebuilds spans from the emitted lines.
//   - Report: Ranks spans per occurrence and per call site.
//
// Basic Usage:
//
//	collector := meterz.NewCollector(0)
//	meter := meterz.New(counter, collector)
//
//	func transfer() error {
//		defer meter.Enter("transfer").Exit()
//		...
//	}
//
//	trace, err := meterz.Reconstruct(collector.Lines())
//	report := meterz.NewReport(overhead, trace)
//	report.WriteTable(os.Stdout, meterz.TableOptions{Sites: 10})
//
// Wire Format:
//
// Each guard writes two line pairs. On entry the label line precedes the
// counter line, on exit the counter line precedes the label line:
//
//	transfer {
//	Program consumption: 199850 units remaining
//	Program consumption: 195112 units remaining
//	transfer }
//
// Any other line in the channel is ignored during reconstruction.
//
// Thread Safety:
//
// A Meter and its Guards belong to one execution and are NOT safe for
// concurrent use. Collector is safe for concurrent use. Reconstruction and
// reporting share no state, so independent traces may be processed in
// parallel (see ReconstructAll).
//
// Overhead:
//
// Reading the counter and writing the lines costs units too. That cost is a
// per-span constant supplied as an Overhead when computing net costs. It
// depends on the host runtime version; re-measure it with Calibrate.
package meterz

// Label names a measured region of work. Labels describe, they never identify:
// two spans with the same label are still two spans.
type Label = string
