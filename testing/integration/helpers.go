package integration

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/zoobzio/meterz"
)

// TreeSpec describes a span to synthesize: its own work and its children.
type TreeSpec struct {
	Label    string
	Before   uint64 // Units consumed before the first child.
	After    uint64 // Units consumed after the last child.
	Children []TreeSpec
}

// RandomForest builds a random forest with at most maxDepth levels.
// Labels are drawn from a small pool so siblings often share one.
func RandomForest(rng *rand.Rand, roots, maxDepth int) []TreeSpec {
	labels := []string{"log", "load", "store", "hash", "cpi", "log"}
	var build func(depth int) TreeSpec
	build = func(depth int) TreeSpec {
		node := TreeSpec{
			Label:  labels[rng.Intn(len(labels))],
			Before: uint64(rng.Intn(500)),
			After:  uint64(rng.Intn(500)),
		}
		if depth < maxDepth {
			for i := rng.Intn(4); i > 0; i-- {
				node.Children = append(node.Children, build(depth+1))
			}
		}
		return node
	}

	forest := make([]TreeSpec, roots)
	for i := range forest {
		forest[i] = build(1)
	}
	return forest
}

// Expected computes the spans a correct reconstruction must yield when the
// forest is driven through a meter on a budget of limit units with the given
// per-query charge.
func Expected(forest []TreeSpec, limit, queryCost uint64) *meterz.Trace {
	remaining := limit
	sequence := 0
	read := func() uint64 {
		remaining -= queryCost
		return remaining
	}

	var build func(node TreeSpec, parent *meterz.Span) *meterz.Span
	build = func(node TreeSpec, parent *meterz.Span) *meterz.Span {
		span := &meterz.Span{Label: node.Label, Sequence: sequence, Enter: read()}
		sequence++
		remaining -= node.Before
		for _, child := range node.Children {
			span.Children = append(span.Children, build(child, span))
		}
		remaining -= node.After
		span.Exit = read()
		sequence++
		return span
	}

	trace := &meterz.Trace{}
	for _, root := range forest {
		trace.Roots = append(trace.Roots, build(root, nil))
	}
	return trace
}

// Drive runs the forest through meter, consuming budget as described.
func Drive(meter *meterz.Meter, budget *meterz.Budget, forest []TreeSpec) {
	var run func(node TreeSpec)
	run = func(node TreeSpec) {
		defer meter.Enter(node.Label).Exit()
		_ = budget.Consume(node.Before)
		for _, child := range node.Children {
			run(child)
		}
		_ = budget.Consume(node.After)
	}
	for _, root := range forest {
		run(root)
	}
}

// RequireEqualTraces fails the test if the traces differ structurally.
func RequireEqualTraces(t *testing.T, want, got *meterz.Trace) {
	t.Helper()
	if want.Equal(got) {
		return
	}
	t.Fatalf("Traces differ:\nwant %s\ngot  %s", describe(want), describe(got))
}

func describe(trace *meterz.Trace) string {
	if trace == nil {
		return "<nil>"
	}
	out := ""
	trace.Walk(func(s *meterz.Span, depth int) bool {
		out += fmt.Sprintf("%*s%s[%d] %d->%d; ", depth*2, "", s.Label, s.Sequence, s.Enter, s.Exit)
		return true
	})
	return out
}

// DiagnosticNoise is unrelated output a program may write between records.
var DiagnosticNoise = []string{
	"Program log: Instruction: Transfer",
	"Program 11111111111111111111111111111111 invoke [1]",
	"Program log: {",
	"}",
	"Program data: AAECAw==",
	"Program consumption: 42 units remaining",
	"Program log: struct {",
	"Program log: done }",
}

// BracketNoise is output shaped like half of a record. Its labels never
// collide with the labels RandomForest draws from.
var BracketNoise = []string{
	"Program log: struct {",
	"Program log: done }",
	"config {",
	"state }",
}

// Interleave mixes DiagnosticNoise between the given lines.
func Interleave(rng *rand.Rand, lines []string) []string {
	return InterleaveWith(rng, lines, DiagnosticNoise, 3)
}

// InterleaveWith puts a random noise line in roughly one of every `one`
// gaps between record pairs, including before the first and after the last.
func InterleaveWith(rng *rand.Rand, lines, noise []string, one int) []string {
	out := make([]string, 0, len(lines)*2)
	for i, line := range lines {
		// Noise only between record pairs, so adjacency inside a pair holds.
		if i%2 == 0 && rng.Intn(one) == 0 {
			out = append(out, noise[rng.Intn(len(noise))])
		}
		out = append(out, line)
	}
	if rng.Intn(one) == 0 {
		out = append(out, noise[rng.Intn(len(noise))])
	}
	return out
}
