package meterz

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
)

// TableOptions limits the rows WriteTable renders. Zero means all rows.
type TableOptions struct {
	Sites       int
	Occurrences int
}

// WriteTable renders the per-site and per-occurrence listings as aligned
// plain text.
func (r *Report) WriteTable(w io.Writer, opts TableOptions) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintf(tw, "traces: %d\toverhead: %s\ttotal: %s\t\n\n",
		r.traces, units(uint64(r.overhead)), units(r.total))

	writeSites(tw, Top(r.sites, opts.Sites))

	fmt.Fprintln(tw, "\t\t\t\t\t\t\t")
	fmt.Fprintln(tw, "PATH\tSEQ\tGROSS\tNET\tINCLUSIVE\tTRACE\t")
	for _, o := range Top(r.occurrences, opts.Occurrences) {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\t\n",
			o.Path, o.Sequence, units(o.Gross), units(o.Net), units(o.Inclusive), o.TraceID)
	}

	return tw.Flush()
}

// WriteSites renders a site listing on its own, for sites aggregated
// elsewhere such as a trace store.
func WriteSites(w io.Writer, sites []Site) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	writeSites(tw, sites)
	return tw.Flush()
}

func writeSites(w io.Writer, sites []Site) {
	fmt.Fprintln(w, "SITE\tCOUNT\tTOTAL NET\tMIN\tMEAN\tMAX\tINCLUSIVE\t")
	for _, s := range sites {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\t%s\t\n",
			s.Label, s.Count, units(s.TotalNet), units(s.MinNet),
			units(s.MeanNet), units(s.MaxNet), units(s.TotalInclusive))
	}
}

type reportJSON struct {
	Traces      int          `json:"traces"`
	Overhead    uint64       `json:"overhead"`
	Total       uint64       `json:"total"`
	Sites       []Site       `json:"sites"`
	Occurrences []Occurrence `json:"occurrences"`
}

// WriteJSON renders the report as one JSON document.
func (r *Report) WriteJSON(w io.Writer, opts TableOptions) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(reportJSON{
		Traces:      r.traces,
		Overhead:    uint64(r.overhead),
		Total:       r.total,
		Sites:       Top(r.sites, opts.Sites),
		Occurrences: Top(r.occurrences, opts.Occurrences),
	})
}

func units(n uint64) string {
	if n > math.MaxInt64 {
		return strconv.FormatUint(n, 10)
	}
	return humanize.Comma(int64(n))
}
