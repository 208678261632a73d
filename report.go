package meterz

import (
	"cmp"
	"slices"
)

// Occurrence is one span with its costs computed.
//
//nolint:govet // Field alignment optimized for JSON serialization order
type Occurrence struct {
	Span      *Span  `json:"-"`
	TraceID   string `json:"trace_id,omitempty"`
	Label     Label  `json:"label"`
	Path      string `json:"path"`
	Depth     int    `json:"depth"`
	Sequence  int    `json:"sequence"`
	Enter     uint64 `json:"enter"`
	Exit      uint64 `json:"exit"`
	Gross     uint64 `json:"gross"`
	Net       uint64 `json:"net"`
	Inclusive uint64 `json:"inclusive"`
	Leaf      bool   `json:"leaf"`
	trace     int
}

// Site aggregates every occurrence of one label across all traces.
type Site struct {
	Label          Label  `json:"label"`
	Count          int    `json:"count"`
	TotalNet       uint64 `json:"total_net"`
	MinNet         uint64 `json:"min_net"`
	MaxNet         uint64 `json:"max_net"`
	MeanNet        uint64 `json:"mean_net"`
	TotalInclusive uint64 `json:"total_inclusive"`
}

// Report is a read-only cost breakdown over reconstructed traces.
type Report struct {
	occurrences []Occurrence
	sites       []Site
	traces      int
	total       uint64
	overhead    Overhead
}

// NewReport computes net and inclusive costs for every span of traces and
// ranks them.
func NewReport(overhead Overhead, traces ...*Trace) *Report {
	r := &Report{overhead: overhead, traces: len(traces)}

	for ti, trace := range traces {
		// Pre-order puts every parent before its children, so a single
		// reverse pass accumulates inclusive costs bottom-up.
		start := len(r.occurrences)
		parents := make(map[*Span]int)
		trace.Walk(func(span *Span, depth int) bool {
			idx := len(r.occurrences)
			parents[span] = idx
			occ := Occurrence{
				Span:     span,
				TraceID:  trace.ID,
				Label:    span.Label,
				Path:     span.Label,
				Depth:    depth,
				Sequence: span.Sequence,
				Enter:    span.Enter,
				Exit:     span.Exit,
				Gross:    span.Gross(),
				Net:      span.Net(overhead),
				Leaf:     len(span.Children) == 0,
				trace:    ti,
			}
			occ.Inclusive = occ.Net
			if p := span.Parent(); p != nil {
				occ.Path = r.occurrences[parents[p]].Path + "/" + span.Label
			}
			r.occurrences = append(r.occurrences, occ)
			return true
		})
		for i := len(r.occurrences) - 1; i >= start; i-- {
			if p := r.occurrences[i].Span.Parent(); p != nil {
				r.occurrences[parents[p]].Inclusive += r.occurrences[i].Inclusive
			}
		}
		for _, root := range trace.Roots {
			r.total += r.occurrences[parents[root]].Inclusive
		}
	}

	r.sites = aggregateSites(r.occurrences)
	slices.SortStableFunc(r.occurrences, compareOccurrences)

	return r
}

func compareOccurrences(a, b Occurrence) int {
	if c := cmp.Compare(b.Net, a.Net); c != 0 {
		return c
	}
	if c := cmp.Compare(a.trace, b.trace); c != 0 {
		return c
	}
	return cmp.Compare(a.Sequence, b.Sequence)
}

func aggregateSites(occurrences []Occurrence) []Site {
	index := make(map[Label]int)
	var sites []Site
	for _, occ := range occurrences {
		i, ok := index[occ.Label]
		if !ok {
			i = len(sites)
			index[occ.Label] = i
			sites = append(sites, Site{Label: occ.Label, MinNet: occ.Net})
		}
		s := &sites[i]
		s.Count++
		s.TotalNet += occ.Net
		s.TotalInclusive += occ.Inclusive
		s.MinNet = min(s.MinNet, occ.Net)
		s.MaxNet = max(s.MaxNet, occ.Net)
	}
	for i := range sites {
		sites[i].MeanNet = sites[i].TotalNet / uint64(sites[i].Count)
	}
	slices.SortStableFunc(sites, func(a, b Site) int {
		if c := cmp.Compare(b.TotalNet, a.TotalNet); c != 0 {
			return c
		}
		return cmp.Compare(a.Label, b.Label)
	})
	return sites
}

// Overhead returns the overhead the report was computed with.
func (r *Report) Overhead() Overhead {
	return r.overhead
}

// Traces returns the number of traces in the report.
func (r *Report) Traces() int {
	return r.traces
}

// Total returns the summed inclusive cost of every root span.
func (r *Report) Total() uint64 {
	return r.total
}

// Occurrences returns every span, most expensive net cost first.
// The returned slice is a copy.
func (r *Report) Occurrences() []Occurrence {
	return slices.Clone(r.occurrences)
}

// Leaves returns the occurrences that have no children, ranked like Occurrences.
func (r *Report) Leaves() []Occurrence {
	var leaves []Occurrence
	for _, occ := range r.occurrences {
		if occ.Leaf {
			leaves = append(leaves, occ)
		}
	}
	return leaves
}

// Sites returns the per-label aggregation, largest total net cost first.
// The returned slice is a copy.
func (r *Report) Sites() []Site {
	return slices.Clone(r.sites)
}

// Site returns the aggregation for label.
func (r *Report) Site(label Label) (Site, bool) {
	for _, s := range r.sites {
		if s.Label == label {
			return s, true
		}
	}
	return Site{}, false
}

// Top returns at most n entries of s. n <= 0 returns s unchanged.
func Top[T any](s []T, n int) []T {
	if n <= 0 || n >= len(s) {
		return s
	}
	return s[:n]
}
