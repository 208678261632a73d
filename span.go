package meterz

import (
	"strings"
)

// Span is one matched Enter/Exit pair rebuilt from a trace.
// Spans are owned by the Trace they were reconstructed into; Parent is a
// position in that tree, not ownership.
//
//nolint:govet // Field alignment optimized for JSON serialization order
type Span struct {
	parent   *Span
	Label    Label   `json:"label"`
	Sequence int     `json:"sequence"`
	Enter    uint64  `json:"enter"`
	Exit     uint64  `json:"exit"`
	Children []*Span `json:"children,omitempty"`
}

// Parent returns the enclosing span, nil for a root.
func (s *Span) Parent() *Span {
	return s.parent
}

// Gross returns the units consumed between the Enter and Exit readings.
func (s *Span) Gross() uint64 {
	if s.Exit > s.Enter {
		return 0
	}
	return s.Enter - s.Exit
}

// Net returns the gross cost minus the instrumentation overhead, floored at zero.
func (s *Span) Net(overhead Overhead) uint64 {
	return overhead.Apply(s.Gross())
}

// Inclusive returns the net cost of the span plus the inclusive cost of its
// children, which is the sum of Net over the whole subtree.
func (s *Span) Inclusive(overhead Overhead) uint64 {
	var total uint64
	s.Walk(func(span *Span, _ int) bool {
		total += span.Net(overhead)
		return true
	})
	return total
}

// Depth returns the number of ancestors.
func (s *Span) Depth() int {
	depth := 0
	for p := s.parent; p != nil; p = p.parent {
		depth++
	}
	return depth
}

// Path returns the labels from the root down to s joined by "/".
func (s *Span) Path() string {
	labels := []string{s.Label}
	for p := s.parent; p != nil; p = p.parent {
		labels = append(labels, p.Label)
	}
	for i, j := 0, len(labels)-1; i < j; i, j = i+1, j-1 {
		labels[i], labels[j] = labels[j], labels[i]
	}
	return strings.Join(labels, "/")
}

// Walk visits s and its descendants in pre-order. depth is relative to s.
// Returning false from fn skips the children of that span.
// Walk uses an explicit stack; nesting depth is unbounded.
func (s *Span) Walk(fn func(span *Span, depth int) bool) {
	type frame struct {
		span  *Span
		depth int
	}
	stack := []frame{{span: s}}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !fn(top.span, top.depth) {
			continue
		}
		// Push in reverse to visit children in order.
		for i := len(top.span.Children) - 1; i >= 0; i-- {
			stack = append(stack, frame{span: top.span.Children[i], depth: top.depth + 1})
		}
	}
}

// Equal reports whether s and other describe the same tree: labels, counter
// readings, sequence numbers and nesting.
func (s *Span) Equal(other *Span) bool {
	type pair struct{ a, b *Span }
	stack := []pair{{s, other}}
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if p.a == nil || p.b == nil {
			if p.a != p.b {
				return false
			}
			continue
		}
		if p.a.Label != p.b.Label || p.a.Enter != p.b.Enter || p.a.Exit != p.b.Exit ||
			p.a.Sequence != p.b.Sequence || len(p.a.Children) != len(p.b.Children) {
			return false
		}
		for i := range p.a.Children {
			stack = append(stack, pair{p.a.Children[i], p.b.Children[i]})
		}
	}
	return true
}

// Trace is the reconstructed span forest of one execution.
type Trace struct {
	ID      string  `json:"id,omitempty"`
	Roots   []*Span `json:"roots"`
	Records int     `json:"records"`
	Skipped int     `json:"skipped"`
}

// Walk visits every span of every root in order.
func (t *Trace) Walk(fn func(span *Span, depth int) bool) {
	for _, root := range t.Roots {
		root.Walk(fn)
	}
}

// Len returns the number of spans in the trace.
func (t *Trace) Len() int {
	n := 0
	t.Walk(func(*Span, int) bool {
		n++
		return true
	})
	return n
}

// Equal reports whether both traces hold structurally equal span forests.
// IDs and skipped-line counts are not compared.
func (t *Trace) Equal(other *Trace) bool {
	if t == nil || other == nil {
		return t == other
	}
	if len(t.Roots) != len(other.Roots) {
		return false
	}
	for i := range t.Roots {
		if !t.Roots[i].Equal(other.Roots[i]) {
			return false
		}
	}
	return true
}
