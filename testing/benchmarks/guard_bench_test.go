package benchmarks

import (
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/zoobzio/meterz"
)

// BenchmarkGuardEnterExit measures the cost of one instrumented span.
func BenchmarkGuardEnterExit(b *testing.B) {
	budget := meterz.NewBudget(^uint64(0))
	meter := meterz.New(budget, meterz.NewWriterSink(io.Discard, 0))

	b.ReportAllocs()
	b.ResetTimer()
	start := time.Now()

	for i := 0; i < b.N; i++ {
		meter.Enter("bench").Exit()
	}

	elapsed := time.Since(start)
	b.ReportMetric(float64(b.N)/elapsed.Seconds(), "spans/sec")
}

// BenchmarkGuardNested measures guards held at increasing depth.
func BenchmarkGuardNested(b *testing.B) {
	for _, depth := range []int{1, 8, 64} {
		b.Run(fmt.Sprintf("depth-%d", depth), func(b *testing.B) {
			budget := meterz.NewBudget(^uint64(0))
			meter := meterz.New(budget, meterz.NewWriterSink(io.Discard, 0))
			guards := make([]*meterz.Guard, depth)

			b.ReportAllocs()
			b.ResetTimer()

			for i := 0; i < b.N; i++ {
				for d := range guards {
					guards[d] = meter.Enter("nested")
				}
				for d := len(guards) - 1; d >= 0; d-- {
					guards[d].Exit()
				}
			}
		})
	}
}

// BenchmarkGuardWithHandler measures emission with a record handler attached.
func BenchmarkGuardWithHandler(b *testing.B) {
	budget := meterz.NewBudget(^uint64(0))
	meter := meterz.New(budget, meterz.NewWriterSink(io.Discard, 0))

	var seen int
	meter.OnRecord(func(meterz.Record) { seen++ })

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		meter.Enter("handled").Exit()
	}

	b.ReportMetric(float64(seen), "records")
}

// BenchmarkCollectorLog measures collector throughput in isolation.
func BenchmarkCollectorLog(b *testing.B) {
	collector := meterz.NewCollector(0)

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		collector.Log("Program consumption: 199000 units remaining")
		if i%4096 == 4095 {
			collector.Export()
		}
	}
}
